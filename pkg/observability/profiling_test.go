package observability

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func TestProfilerWritesFiles(t *testing.T) {
	dir := t.TempDir()
	cfg := ProfileConfig{
		CPUFile:   filepath.Join(dir, "cpu.pprof"),
		MemFile:   filepath.Join(dir, "mem.pprof"),
		TraceFile: filepath.Join(dir, "exec.trace"),
	}
	require.True(t, cfg.Enabled())

	p, err := StartProfiler(cfg, zaptest.NewLogger(t))
	require.NoError(t, err)
	sum := 0
	for i := 0; i < 1e5; i++ {
		sum += i
	}
	require.NoError(t, p.Stop())
	require.NoError(t, p.Stop(), "second stop only rewrites the heap profile")

	for _, f := range []string{cfg.CPUFile, cfg.MemFile, cfg.TraceFile} {
		st, err := os.Stat(f)
		require.NoError(t, err, f)
		assert.NotZero(t, st.Size(), f)
	}
}

func TestProfilerBadPath(t *testing.T) {
	assert.False(t, ProfileConfig{}.Enabled())
	_, err := StartProfiler(ProfileConfig{CPUFile: filepath.Join(t.TempDir(), "missing", "cpu.pprof")}, nil)
	assert.Error(t, err)
}
