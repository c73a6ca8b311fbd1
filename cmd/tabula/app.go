package main

import (
	"context"
	"io"
	"net"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/ajitpratap0/tabula/pkg/config"
	"github.com/ajitpratap0/tabula/pkg/diag"
	"github.com/ajitpratap0/tabula/pkg/errors"
	"github.com/ajitpratap0/tabula/pkg/logger"
	"github.com/ajitpratap0/tabula/pkg/observability"
	"github.com/ajitpratap0/tabula/pkg/sysfile"
)

// app is the state shared by every subcommand.
type app struct {
	out io.Writer
	v   *viper.Viper
	cfg *config.Config
	log *zap.Logger

	metrics  *http.Server
	tracing  bool
	profile  observability.ProfileConfig
	profiler *observability.Profiler
}

func newApp(out io.Writer) *app {
	v := viper.New()
	v.SetEnvPrefix("TABULA")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return &app{out: out, v: v}
}

// setting maps a viper key onto a Config field.
type setting struct {
	key   string
	flag  string
	usage string
	apply func(c *config.Config, v *viper.Viper, key string)
}

var settings = []setting{
	{"workspace.max_bytes", "workspace", "in-memory case budget in bytes",
		func(c *config.Config, v *viper.Viper, k string) { c.Workspace.MaxBytes = v.GetInt64(k) }},
	{"workspace.auto_size", "auto-workspace", "size the workspace from available memory",
		func(c *config.Config, v *viper.Viper, k string) { c.Workspace.AutoSize = v.GetBool(k) }},
	{"workspace.temp_dir", "temp-dir", "directory for spilled case streams",
		func(c *config.Config, v *viper.Viper, k string) { c.Workspace.TempDir = v.GetString(k) }},
	{"workspace.spill_compression", "spill-compression", "codec for spilled case streams",
		func(c *config.Config, v *viper.Viper, k string) { c.Workspace.SpillCompression = v.GetString(k) }},
	{"sysfile.compress", "compress", "compress system file output",
		func(c *config.Config, v *viper.Viper, k string) { c.SysFile.Compress = v.GetBool(k) }},
	{"export.compression", "export-compression", "codec for Arrow, Parquet and Avro output",
		func(c *config.Config, v *viper.Viper, k string) { c.Export.Compression = v.GetString(k) }},
	{"export.batch_size", "batch-size", "cases per columnar record batch",
		func(c *config.Config, v *viper.Viper, k string) { c.Export.BatchSize = v.GetInt(k) }},
	{"observability.log_level", "log-level", "log level (debug, info, warn, error)",
		func(c *config.Config, v *viper.Viper, k string) { c.Observability.LogLevel = v.GetString(k) }},
	{"observability.log_encoding", "log-encoding", "log encoding (json, console)",
		func(c *config.Config, v *viper.Viper, k string) { c.Observability.LogEncoding = v.GetString(k) }},
	{"observability.metrics_addr", "metrics-addr", "serve Prometheus metrics on this address",
		func(c *config.Config, v *viper.Viper, k string) {
			c.Observability.MetricsAddr = v.GetString(k)
			c.Observability.EnableMetrics = c.Observability.MetricsAddr != ""
		}},
	{"observability.enable_tracing", "trace", "write procedure spans to stderr",
		func(c *config.Config, v *viper.Viper, k string) { c.Observability.EnableTracing = v.GetBool(k) }},
}

func (a *app) bindFlags(fs *pflag.FlagSet) {
	fs.String("config", "", "YAML configuration file")
	_ = a.v.BindPFlag("config", fs.Lookup("config"))
	fs.StringVar(&a.profile.CPUFile, "cpuprofile", "", "write a CPU profile to this file")
	fs.StringVar(&a.profile.MemFile, "memprofile", "", "write a heap profile to this file on exit")
	fs.StringVar(&a.profile.TraceFile, "exec-trace", "", "write a runtime execution trace to this file")

	def := config.NewDefault()
	for _, s := range settings {
		switch s.key {
		case "workspace.max_bytes":
			fs.Int64(s.flag, def.Workspace.MaxBytes, s.usage)
		case "export.batch_size":
			fs.Int(s.flag, def.Export.BatchSize, s.usage)
		case "sysfile.compress":
			fs.Bool(s.flag, def.SysFile.Compress, s.usage)
		case "workspace.auto_size", "observability.enable_tracing":
			fs.Bool(s.flag, false, s.usage)
		default:
			fs.String(s.flag, "", s.usage)
		}
		_ = a.v.BindPFlag(s.key, fs.Lookup(s.flag))
	}
}

// loadConfig layers the config file, the environment and flags over the
// defaults.
func (a *app) loadConfig() (*config.Config, error) {
	cfg := config.NewDefault()
	if path := a.v.GetString("config"); path != "" {
		var err error
		if cfg, err = config.LoadFile(path); err != nil {
			return nil, err
		}
	}
	for _, s := range settings {
		if a.v.IsSet(s.key) {
			s.apply(cfg, a.v, s.key)
		}
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// setup loads configuration and starts logging, metrics and tracing.
func (a *app) setup() error {
	cfg, err := a.loadConfig()
	if err != nil {
		return err
	}
	a.cfg = cfg
	obs := cfg.Observability

	if a.log == nil {
		if err := logger.Init(logger.Config{Level: obs.LogLevel, Encoding: obs.LogEncoding}); err != nil {
			return errors.Wrap(err, errors.ErrorTypeConfig, "initialising logger")
		}
		a.log = logger.Get()
	}

	if obs.EnableMetrics && obs.MetricsAddr != "" {
		if err := a.serveMetrics(obs.MetricsAddr); err != nil {
			return err
		}
	}
	if obs.EnableTracing {
		tc := observability.DefaultTracingConfig()
		tc.ServiceVersion = version
		tc.SamplingRate = obs.TracingSampleRate
		tc.Output = os.Stderr
		if _, err := observability.InitTracing(tc); err != nil {
			return errors.Wrap(err, errors.ErrorTypeConfig, "initialising tracing")
		}
		a.tracing = true
	}
	if a.profile.Enabled() {
		p, err := observability.StartProfiler(a.profile, a.log)
		if err != nil {
			return err
		}
		a.profiler = p
	}
	return nil
}

func (a *app) serveMetrics(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return errors.Wrapf(err, errors.ErrorTypeIO, "metrics listener on %s", addr)
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	a.metrics = &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := a.metrics.Serve(ln); err != nil && err != http.ErrServerClosed {
			a.log.Warn("metrics server stopped", zap.Error(err))
		}
	}()
	a.log.Info("serving metrics", zap.String("addr", ln.Addr().String()))
	return nil
}

// close stops the metrics server, flushes spans and syncs the logger.
func (a *app) close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	var err error
	if a.profiler != nil {
		err = a.profiler.Stop()
		a.profiler = nil
	}
	if a.metrics != nil {
		if merr := a.metrics.Shutdown(ctx); err == nil {
			err = merr
		}
		a.metrics = nil
	}
	if a.tracing {
		if terr := observability.Shutdown(ctx); err == nil {
			err = terr
		}
		a.tracing = false
	}
	if a.log != nil {
		_ = a.log.Sync()
	}
	return err
}

// openInput opens a system file, reporting its warnings through the
// logger and, when extra is set, to extra as well.
func (a *app) openInput(path string, extra diag.Sink) (*sysfile.Reader, error) {
	sink := diag.NewLogSink(a.log)
	if extra != nil {
		sink = diag.Tee(sink, extra)
	}
	return sysfile.Open(path, sysfile.ReaderOptions{Diagnostics: sink})
}
