package observability

import (
	"os"
	"runtime"
	"runtime/pprof"
	"runtime/trace"
	"time"

	"go.uber.org/zap"

	"github.com/ajitpratap0/tabula/pkg/errors"
	"github.com/ajitpratap0/tabula/pkg/logger"
)

// ProfileConfig names the files a Profiler writes. Empty paths are
// skipped.
type ProfileConfig struct {
	CPUFile   string
	MemFile   string
	TraceFile string
	// MemProfileRate overrides runtime.MemProfileRate when positive.
	MemProfileRate int
}

// Enabled reports whether any profile is requested.
func (c ProfileConfig) Enabled() bool {
	return c.CPUFile != "" || c.MemFile != "" || c.TraceFile != ""
}

// Profiler collects pprof and execution-trace profiles around a command.
type Profiler struct {
	config    ProfileConfig
	logger    *zap.Logger
	startTime time.Time
	cpuFile   *os.File
	traceFile *os.File
}

// StartProfiler begins CPU profiling and tracing as configured.
func StartProfiler(config ProfileConfig, log *zap.Logger) (*Profiler, error) {
	p := &Profiler{
		config:    config,
		logger:    logger.Component(log, "profiler"),
		startTime: time.Now(),
	}
	if config.MemProfileRate > 0 {
		runtime.MemProfileRate = config.MemProfileRate
	}

	if config.CPUFile != "" {
		f, err := os.Create(config.CPUFile)
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrorTypeIO, "creating CPU profile").At(config.CPUFile, -1)
		}
		if err := pprof.StartCPUProfile(f); err != nil {
			f.Close()
			return nil, errors.Wrap(err, errors.ErrorTypeInternal, "starting CPU profile")
		}
		p.cpuFile = f
	}
	if config.TraceFile != "" {
		f, err := os.Create(config.TraceFile)
		if err != nil {
			p.Stop()
			return nil, errors.Wrap(err, errors.ErrorTypeIO, "creating trace file").At(config.TraceFile, -1)
		}
		if err := trace.Start(f); err != nil {
			f.Close()
			p.Stop()
			return nil, errors.Wrap(err, errors.ErrorTypeInternal, "starting execution trace")
		}
		p.traceFile = f
	}
	p.logger.Debug("profiling started",
		zap.String("cpu", config.CPUFile),
		zap.String("trace", config.TraceFile),
		zap.String("mem", config.MemFile))
	return p, nil
}

// Stop ends CPU profiling and tracing and writes the heap profile.
func (p *Profiler) Stop() error {
	var err error
	if p.cpuFile != nil {
		pprof.StopCPUProfile()
		err = p.cpuFile.Close()
		p.cpuFile = nil
	}
	if p.traceFile != nil {
		trace.Stop()
		if cerr := p.traceFile.Close(); err == nil {
			err = cerr
		}
		p.traceFile = nil
	}
	if p.config.MemFile != "" {
		if merr := p.writeHeap(); err == nil {
			err = merr
		}
	}

	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	p.logger.Info("profiling stopped",
		zap.Duration("elapsed", time.Since(p.startTime)),
		zap.Uint64("total_alloc_bytes", m.TotalAlloc),
		zap.Uint32("num_gc", m.NumGC),
		zap.Int("goroutines", runtime.NumGoroutine()))
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeIO, "writing profiles")
	}
	return nil
}

func (p *Profiler) writeHeap() error {
	f, err := os.Create(p.config.MemFile)
	if err != nil {
		return err
	}
	defer f.Close()
	runtime.GC()
	return pprof.WriteHeapProfile(f)
}
