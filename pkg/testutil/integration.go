package testutil

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"github.com/ajitpratap0/tabula/pkg/dictionary"
	"github.com/ajitpratap0/tabula/pkg/models"
	"github.com/ajitpratap0/tabula/pkg/sysfile"
)

// IntegrationTestSuite provides base functionality for tests that work
// on files.
type IntegrationTestSuite struct {
	suite.Suite
	ctx       context.Context
	cancel    context.CancelFunc
	tempDir   string
	startTime time.Time
}

// SetupSuite runs before all tests in the suite
func (s *IntegrationTestSuite) SetupSuite() {
	s.ctx, s.cancel = context.WithTimeout(context.Background(), 5*time.Minute)
	s.startTime = time.Now()

	tempDir, err := os.MkdirTemp("", "tabula-test-*")
	require.NoError(s.T(), err)
	s.tempDir = tempDir
}

// TearDownSuite runs after all tests in the suite
func (s *IntegrationTestSuite) TearDownSuite() {
	s.cancel()
	if s.tempDir != "" {
		os.RemoveAll(s.tempDir)
	}
	s.T().Logf("suite completed in %v", time.Since(s.startTime))
}

// Context returns the suite context
func (s *IntegrationTestSuite) Context() context.Context {
	return s.ctx
}

// TempDir returns the suite's temporary directory
func (s *IntegrationTestSuite) TempDir() string {
	return s.tempDir
}

// Path returns name inside the suite's temporary directory.
func (s *IntegrationTestSuite) Path(name string) string {
	return filepath.Join(s.tempDir, name)
}

// IntegrationTest skips the calling test in short mode.
func IntegrationTest(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}
}

// WriteSysFile writes d and cases to path as a compressed system file.
func WriteSysFile(t testing.TB, path string, d *dictionary.Dictionary, cases []models.Case) {
	t.Helper()
	w, err := sysfile.Create(path, d, sysfile.DefaultWriterOptions())
	require.NoError(t, err)
	for _, c := range cases {
		require.NoError(t, w.WriteCase(c))
	}
	require.NoError(t, w.Close())
}

// ReadSysFile reads the dictionary and every case of the system file at
// path.
func ReadSysFile(t testing.TB, path string) (*dictionary.Dictionary, []models.Case) {
	t.Helper()
	r, err := sysfile.Open(path, sysfile.ReaderOptions{})
	require.NoError(t, err)
	defer r.Close()
	d := r.Dictionary()
	var cases []models.Case
	for {
		c := d.NewCase()
		ok, err := r.ReadCase(c)
		require.NoError(t, err)
		if !ok {
			break
		}
		cases = append(cases, c)
	}
	return d, cases
}
