package pipeline

import (
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// RunStats summarises one procedure run.
type RunStats struct {
	Procedure     string
	CasesRead     int64
	CasesWritten  int64
	CasesDeleted  int64
	CasesExcluded int64
	SplitGroups   int64
	Spilled       bool
	Duration      time.Duration
}

// Throughput returns cases read per second.
func (s RunStats) Throughput() float64 {
	if s.Duration <= 0 {
		return 0
	}
	return float64(s.CasesRead) / s.Duration.Seconds()
}

// MarshalLogObject implements zapcore.ObjectMarshaler.
func (s RunStats) MarshalLogObject(enc zapcore.ObjectEncoder) error {
	enc.AddString("procedure", s.Procedure)
	enc.AddInt64("cases_read", s.CasesRead)
	enc.AddInt64("cases_written", s.CasesWritten)
	enc.AddInt64("cases_deleted", s.CasesDeleted)
	enc.AddInt64("cases_excluded", s.CasesExcluded)
	enc.AddInt64("split_groups", s.SplitGroups)
	enc.AddBool("spilled", s.Spilled)
	enc.AddDuration("duration", s.Duration)
	enc.AddFloat64("throughput_cps", s.Throughput())
	return nil
}

// Field returns s as a single structured log field.
func (s RunStats) Field() zap.Field { return zap.Object("stats", s) }
