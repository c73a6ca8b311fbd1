package main

import (
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/ajitpratap0/tabula/pkg/compression"
	"github.com/ajitpratap0/tabula/pkg/dictionary"
	"github.com/ajitpratap0/tabula/pkg/errors"
	"github.com/ajitpratap0/tabula/pkg/formats/columnar"
	"github.com/ajitpratap0/tabula/pkg/models"
	"github.com/ajitpratap0/tabula/pkg/sysfile"
)

const formatSav = "sav"

// output is a case sink that is committed by Close and removed by Abort.
type output interface {
	models.CaseWriter
	Close() error
	Abort()
	Cases() int64
}

// outputFormat resolves --format, falling back to the extension of path.
func outputFormat(flag, path string) (string, error) {
	name := flag
	if name == "" {
		name = strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), ".")
	}
	if name == formatSav || name == "" {
		return formatSav, nil
	}
	f, err := columnar.ParseFormat(name)
	if err != nil {
		return "", err
	}
	return string(f), nil
}

// createOutput opens path for the cases described by d.
func (a *app) createOutput(path, format string, d *dictionary.Dictionary) (output, error) {
	if format == formatSav {
		w, err := sysfile.Create(path, d, sysfile.WriterOptions{
			Compress: a.cfg.SysFile.Compress,
			Bias:     a.cfg.SysFile.Bias,
			Product:  a.cfg.SysFile.Product,
		})
		if err != nil {
			return nil, err
		}
		return &savOutput{w: w, path: path}, nil
	}

	algo, err := compression.ParseAlgorithm(a.cfg.Export.Compression)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConfig, "export.compression")
	}
	if columnar.Format(format) == columnar.Arrow {
		switch algo {
		case compression.Snappy, compression.S2, compression.Gzip:
			a.log.Warn("arrow IPC files support only lz4 and zstd, using lz4", zap.String("compression", string(algo)))
			algo = compression.LZ4
		}
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeIO, "creating output").At(path, -1)
	}
	w, err := columnar.NewWriter(f, d, &columnar.WriterConfig{
		Format:      columnar.Format(format),
		Compression: algo,
		BatchSize:   a.cfg.Export.BatchSize,
		Logger:      a.log,
	})
	if err != nil {
		f.Close()
		os.Remove(path)
		return nil, err
	}
	return &columnarOutput{w: w, f: f, path: path, log: a.log}, nil
}

type savOutput struct {
	w    *sysfile.Writer
	path string
}

func (o *savOutput) WriteCase(c models.Case) error { return o.w.WriteCase(c) }
func (o *savOutput) Close() error                  { return o.w.Close() }
func (o *savOutput) Cases() int64                  { return o.w.CaseCount() }

func (o *savOutput) Abort() {
	o.w.Close()
	os.Remove(o.path)
}

type columnarOutput struct {
	w    columnar.Writer
	f    *os.File
	path string
	log  *zap.Logger
}

func (o *columnarOutput) WriteCase(c models.Case) error { return o.w.WriteCase(c) }
func (o *columnarOutput) Cases() int64                  { return o.w.CasesWritten() }

func (o *columnarOutput) Close() error {
	err := o.w.Close()
	if cerr := o.f.Close(); err == nil && cerr != nil {
		err = errors.Wrap(cerr, errors.ErrorTypeIO, "closing output").At(o.path, -1)
	}
	if err == nil {
		o.log.Debug("columnar output written",
			zap.String("path", o.path),
			zap.String("format", string(o.w.Format())),
			zap.Int64("bytes", o.w.BytesWritten()))
	}
	return err
}

func (o *columnarOutput) Abort() {
	o.w.Close()
	o.f.Close()
	os.Remove(o.path)
}

// finish closes out on success and aborts it otherwise.
func finish(out output, err error) error {
	if err != nil {
		out.Abort()
		return err
	}
	if err := out.Close(); err != nil {
		out.Abort()
		return err
	}
	return nil
}
