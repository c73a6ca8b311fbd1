package main

import (
	"bytes"
	"os"
	"testing"

	json "github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"github.com/ajitpratap0/tabula/pkg/testutil"
)

type CLISuite struct {
	testutil.IntegrationTestSuite
	survey string
}

func TestCLI(t *testing.T) {
	testutil.IntegrationTest(t)
	suite.Run(t, new(CLISuite))
}

func (s *CLISuite) SetupSuite() {
	s.IntegrationTestSuite.SetupSuite()
	t := s.T()

	d := testutil.NewDictionary(t, testutil.Num("ID"), testutil.Str("REGION", 4), testutil.Num("INCOME"))
	income := d.Lookup("INCOME")
	require.NoError(t, income.MissingValues().AddNum(99))
	income.Label = "Household income"
	s.survey = s.Path("survey.sav")
	testutil.WriteSysFile(t, s.survey, d, testutil.Cases(t, d,
		[]interface{}{1, "east", 10},
		[]interface{}{2, "east", 0},
		[]interface{}{3, "west", 99},
		[]interface{}{4, "west", 20},
	))
}

// run executes the command line and returns stdout, stderr and the exit
// code.
func (s *CLISuite) run(args ...string) (string, string, int) {
	var stdout, stderr bytes.Buffer
	code := execute(append(args, "--log-level", "error"), &stdout, &stderr)
	return stdout.String(), stderr.String(), code
}

func (s *CLISuite) mustRun(args ...string) string {
	out, errOut, code := s.run(args...)
	s.Require().Equal(0, code, errOut)
	return out
}

func (s *CLISuite) TestVersion() {
	s.Contains(s.mustRun("version"), "tabula v"+version)
}

func (s *CLISuite) TestInfoJSON() {
	out := s.mustRun("info", s.survey, "--json", "--cases", "2")

	var info fileInfo
	s.Require().NoError(json.Unmarshal([]byte(out), &info))
	s.Equal(int64(4), info.Cases)
	s.Equal(int64(4), info.Header.CaseCount)
	s.Require().Len(info.Variables, 3)
	s.Equal("REGION", info.Variables[1].Name)
	s.Equal(4, info.Variables[1].Width)
	s.Equal("99", info.Variables[2].Missing)
	s.Equal("Household income", info.Variables[2].Label)
	s.Equal([][]string{{"1", "east", "10"}, {"2", "east", "0"}}, info.Rows)
	s.Empty(info.Diagnostics)
}

func (s *CLISuite) TestInfoText() {
	out := s.mustRun("info", s.survey)
	s.Contains(out, "Cases:")
	s.Contains(out, "INCOME")
	s.Contains(out, "Household income")
}

func (s *CLISuite) TestConvertKeepAndSelect() {
	dst := s.Path("kept.sav")
	s.mustRun("convert", s.survey, dst, "--keep", "INCOME,ID", "--select-if", "INCOME")

	d, cases := testutil.ReadSysFile(s.T(), dst)
	s.Equal([][]interface{}{{10.0, 1.0}, {20.0, 4.0}}, testutil.Rows(d, cases))
	s.Equal("Household income", d.Lookup("INCOME").Label)
}

func (s *CLISuite) TestConvertLimit() {
	dst := s.Path("limited.sav")
	s.mustRun("convert", s.survey, dst, "--limit", "3", "--workspace", "1", "--temp-dir", s.TempDir())

	_, cases := testutil.ReadSysFile(s.T(), dst)
	s.Len(cases, 3)
}

func (s *CLISuite) TestProfileFlags() {
	cpu, mem := s.Path("cpu.pprof"), s.Path("mem.pprof")
	s.mustRun("convert", s.survey, s.Path("profiled.sav"), "--cpuprofile", cpu, "--memprofile", mem)
	for _, f := range []string{cpu, mem} {
		st, err := os.Stat(f)
		s.Require().NoError(err)
		s.NotZero(st.Size())
	}
}

func (s *CLISuite) TestConvertColumnar() {
	for _, tc := range []struct {
		file  string
		args  []string
		magic string
	}{
		{"survey.arrow", nil, "ARROW1"},
		{"survey.parquet", nil, "PAR1"},
		{"survey.avro", nil, "Obj\x01"},
		{"survey.out", []string{"--format", "feather", "--export-compression", "zstd"}, "ARROW1"},
	} {
		s.Run(tc.file, func() {
			dst := s.Path(tc.file)
			s.mustRun(append([]string{"convert", s.survey, dst}, tc.args...)...)
			b, err := os.ReadFile(dst)
			s.Require().NoError(err)
			s.True(bytes.HasPrefix(b, []byte(tc.magic)), "%s starts with %q", tc.file, b[:8])
		})
	}
}

func (s *CLISuite) TestAggregate() {
	dst := s.Path("totals.sav")
	s.mustRun("aggregate", s.survey, dst,
		"--break", "REGION",
		"--func", "TOTAL=SUM(INCOME)",
		"--func", "COUNT=N",
		"--func", "MISSED=NMISS(INCOME)")

	d, cases := testutil.ReadSysFile(s.T(), dst)
	s.Equal([][]interface{}{
		{"east", 10.0, 2.0, 0.0},
		{"west", 20.0, 2.0, 1.0},
	}, testutil.Rows(d, cases))
}

func (s *CLISuite) TestAggregateSplitAndWeight() {
	dst := s.Path("weighted.sav")
	s.mustRun("aggregate", s.survey, dst, "--split", "REGION", "--weight", "ID", "--func", "W=N")

	d, cases := testutil.ReadSysFile(s.T(), dst)
	s.Equal([][]interface{}{{3.0}, {7.0}}, testutil.Rows(d, cases))
}

func (s *CLISuite) TestMatch() {
	t := s.T()
	d := testutil.NewDictionary(t, testutil.Num("ID"), testutil.Num("AGE"))
	ages := s.Path("ages.sav")
	testutil.WriteSysFile(t, ages, d, testutil.Cases(t, d,
		[]interface{}{2, 40},
		[]interface{}{5, 50},
	))

	dst := s.Path("matched.sav")
	s.mustRun("match", dst, "--file", s.survey+"=INS", "--file", ages+"=INA", "--by", "ID")

	md, cases := testutil.ReadSysFile(t, dst)
	names := make([]string, 0, md.VarCount())
	for _, v := range md.Vars() {
		names = append(names, v.Name())
	}
	s.Equal([]string{"ID", "REGION", "INCOME", "AGE", "INS", "INA"}, names)
	s.Equal([][]interface{}{
		{1.0, "east", 10.0, nil, 1.0, 0.0},
		{2.0, "east", 0.0, 40.0, 1.0, 1.0},
		{3.0, "west", 99.0, nil, 1.0, 0.0},
		{4.0, "west", 20.0, nil, 1.0, 0.0},
		{5.0, "", nil, 50.0, 0.0, 1.0},
	}, testutil.Rows(md, cases))
}

func (s *CLISuite) TestFailuresLeaveNoOutput() {
	for _, tc := range []struct {
		name string
		args []string
	}{
		{"unknown keep variable", []string{"convert", s.survey, s.Path("bad1.sav"), "--keep", "NOPE"}},
		{"string select-if", []string{"convert", s.survey, s.Path("bad2.sav"), "--select-if", "REGION"}},
		{"unknown format", []string{"convert", s.survey, s.Path("bad3.xyz")}},
		{"bad function", []string{"aggregate", s.survey, s.Path("bad4.sav"), "--func", "X=BOGUS(INCOME)"}},
		{"table without keys", []string{"match", s.Path("bad5.sav"), "--file", s.survey, "--table", s.survey}},
		{"missing input", []string{"info", s.Path("absent.sav")}},
	} {
		s.Run(tc.name, func() {
			_, errOut, code := s.run(tc.args...)
			s.Equal(1, code)
			s.Contains(errOut, "error:")
			if len(tc.args) > 2 {
				for _, a := range tc.args {
					if a != s.survey && len(a) > len(s.TempDir()) && a[:len(s.TempDir())] == s.TempDir() {
						_, err := os.Stat(a)
						s.True(os.IsNotExist(err), "%s should not exist", a)
					}
				}
			}
		})
	}
}

func TestSplitInVar(t *testing.T) {
	for _, tc := range []struct {
		arg, path, inVar string
	}{
		{"a.sav", "a.sav", ""},
		{"a.sav=INA", "a.sav", "INA"},
		{"dir=x/a.sav", "dir=x/a.sav", ""},
		{"a.sav=", "a.sav=", ""},
	} {
		path, inVar := splitInVar(tc.arg)
		assert.Equal(t, tc.path, path, tc.arg)
		assert.Equal(t, tc.inVar, inVar, tc.arg)
	}
}

func TestOutputFormat(t *testing.T) {
	for _, tc := range []struct {
		flag, path, want string
		err              bool
	}{
		{"", "out.sav", "sav", false},
		{"", "out.SAV", "sav", false},
		{"", "out.parquet", "parquet", false},
		{"", "out.pq", "parquet", false},
		{"", "out.feather", "arrow", false},
		{"avro", "out.bin", "avro", false},
		{"", "out", "sav", false},
		{"", "out.csv", "", true},
	} {
		got, err := outputFormat(tc.flag, tc.path)
		if tc.err {
			assert.Error(t, err, tc.path)
			continue
		}
		require.NoError(t, err, tc.path)
		assert.Equal(t, tc.want, got, tc.path)
	}
}
