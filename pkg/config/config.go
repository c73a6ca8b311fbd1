// Package config provides the configuration system for tabula.
//
// The configuration is organized into logical sections:
//   - Workspace: memory budget for case streams and temporary file placement
//   - SysFile: defaults for system files written by procedures
//   - Export: defaults for Arrow, Parquet and Avro output
//   - Observability: logging, metrics and tracing
//
// Example usage:
//
//	cfg := config.NewDefault()
//	cfg.Workspace.MaxBytes = 64 << 20
//
//	if err := cfg.Validate(); err != nil {
//	    log.Fatal(err)
//	}
package config

import (
	"github.com/shirou/gopsutil/v3/mem"
	"go.uber.org/zap/zapcore"

	"github.com/ajitpratap0/tabula/pkg/compression"
	"github.com/ajitpratap0/tabula/pkg/errors"
)

const (
	// DefaultWorkspace is the default in-memory case budget.
	DefaultWorkspace int64 = 4 << 20
	// MinAutoWorkspace is the floor applied to an auto-sized workspace.
	MinAutoWorkspace int64 = 1 << 20
)

// Config is the engine configuration.
type Config struct {
	// Workspace settings control when case streams page to disk
	Workspace WorkspaceConfig `yaml:"workspace" json:"workspace"`

	// SysFile settings apply to system files written by procedures
	SysFile SysFileConfig `yaml:"sysfile" json:"sysfile"`

	// Export settings apply to columnar output
	Export ExportConfig `yaml:"export" json:"export"`

	// Observability settings for logging, metrics and tracing
	Observability ObservabilityConfig `yaml:"observability" json:"observability"`
}

// WorkspaceConfig bounds the memory used by in-memory case streams.
type WorkspaceConfig struct {
	// MaxBytes is the budget for one memory case stream
	MaxBytes int64 `yaml:"max_bytes" json:"max_bytes"`
	// AutoSize derives the budget from available system memory
	AutoSize bool `yaml:"auto_size" json:"auto_size"`
	// TempDir holds spill files; empty means the OS default
	TempDir string `yaml:"temp_dir" json:"temp_dir"`
	// SpillCompression selects the spill file codec (none, lz4, snappy, s2, zstd, gzip)
	SpillCompression string `yaml:"spill_compression" json:"spill_compression"`
}

// SysFileConfig holds system-file writer defaults.
type SysFileConfig struct {
	// Compress enables opcode compression of case data
	Compress bool `yaml:"compress" json:"compress"`
	// Bias is the compression bias, in (0, 251]
	Bias float64 `yaml:"bias" json:"bias"`
	// Product is recorded in the file header
	Product string `yaml:"product" json:"product"`
}

// ExportConfig holds columnar writer defaults.
type ExportConfig struct {
	// BatchSize is the number of cases per record batch or row group flush
	BatchSize int `yaml:"batch_size" json:"batch_size"`
	// Compression is the codec name passed to the format writer
	Compression string `yaml:"compression" json:"compression"`
}

// ObservabilityConfig contains monitoring and observability settings.
type ObservabilityConfig struct {
	// LogLevel sets logging verbosity (debug, info, warn, error)
	LogLevel string `yaml:"log_level" json:"log_level"`
	// LogEncoding is json or console
	LogEncoding string `yaml:"log_encoding" json:"log_encoding"`
	// EnableMetrics activates the Prometheus endpoint
	EnableMetrics bool `yaml:"enable_metrics" json:"enable_metrics"`
	// MetricsAddr is the listen address of the metrics endpoint
	MetricsAddr string `yaml:"metrics_addr" json:"metrics_addr"`
	// EnableTracing activates procedure spans
	EnableTracing bool `yaml:"enable_tracing" json:"enable_tracing"`
	// TracingSampleRate controls trace sampling (0.0-1.0)
	TracingSampleRate float64 `yaml:"tracing_sample_rate" json:"tracing_sample_rate"`
}

// NewDefault creates a Config with defaults suitable for interactive use.
func NewDefault() *Config {
	return &Config{
		Workspace: WorkspaceConfig{
			MaxBytes:         DefaultWorkspace,
			SpillCompression: string(compression.LZ4),
		},
		SysFile: SysFileConfig{
			Compress: true,
			Bias:     100,
			Product:  "tabula",
		},
		Export: ExportConfig{
			BatchSize:   10000,
			Compression: string(compression.Snappy),
		},
		Observability: ObservabilityConfig{
			LogLevel:          "info",
			LogEncoding:       "console",
			MetricsAddr:       ":9090",
			TracingSampleRate: 1.0,
		},
	}
}

// Validate checks that values are within acceptable ranges.
func (c *Config) Validate() error {
	if c.Workspace.MaxBytes < 0 {
		return invalid("workspace.max_bytes cannot be negative")
	}
	if _, err := compression.ParseAlgorithm(c.Workspace.SpillCompression); err != nil {
		return errors.Wrap(err, errors.ErrorTypeConfig, "workspace.spill_compression")
	}
	if c.SysFile.Bias <= 0 || c.SysFile.Bias > 251 {
		return invalid("sysfile.bias must be in (0, 251]").WithDetail("bias", c.SysFile.Bias)
	}
	if c.Export.BatchSize <= 0 {
		return invalid("export.batch_size must be positive").WithDetail("batch_size", c.Export.BatchSize)
	}
	if c.Export.Compression != "" {
		if _, err := compression.ParseAlgorithm(c.Export.Compression); err != nil {
			return errors.Wrap(err, errors.ErrorTypeConfig, "export.compression")
		}
	}
	if c.Observability.LogLevel != "" {
		if _, err := zapcore.ParseLevel(c.Observability.LogLevel); err != nil {
			return errors.Wrap(err, errors.ErrorTypeConfig, "observability.log_level")
		}
	}
	switch c.Observability.LogEncoding {
	case "", "json", "console":
	default:
		return invalid("observability.log_encoding must be json or console")
	}
	if r := c.Observability.TracingSampleRate; r < 0 || r > 1 {
		return invalid("observability.tracing_sample_rate must be in [0, 1]")
	}
	return nil
}

func invalid(msg string) *errors.Error {
	return errors.New(errors.ErrorTypeConfig, msg)
}

// virtualMemory is replaced in tests.
var virtualMemory = mem.VirtualMemory

// EffectiveWorkspace returns the memory budget for one case stream. With
// AutoSize it is a sixteenth of available memory, never below
// MinAutoWorkspace; if memory cannot be probed MaxBytes is used.
func (w *WorkspaceConfig) EffectiveWorkspace() int64 {
	if !w.AutoSize {
		return w.MaxBytes
	}
	vm, err := virtualMemory()
	if err != nil || vm == nil {
		return w.MaxBytes
	}
	size := int64(vm.Available / 16)
	if size < MinAutoWorkspace {
		size = MinAutoWorkspace
	}
	return size
}

// Codec returns the configured spill codec.
func (w *WorkspaceConfig) Codec() (compression.Codec, error) {
	alg, err := compression.ParseAlgorithm(w.SpillCompression)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConfig, "workspace.spill_compression")
	}
	return compression.NewCodec(&compression.Config{Algorithm: alg, Level: compression.Fastest})
}
