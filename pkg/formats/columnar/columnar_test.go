package columnar

import (
	"bytes"
	"context"
	"fmt"
	"testing"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/ipc"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/apache/arrow-go/v18/parquet"
	"github.com/apache/arrow-go/v18/parquet/pqarrow"
	"github.com/goccy/go-json"
	"github.com/linkedin/goavro/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ajitpratap0/tabula/pkg/compression"
	"github.com/ajitpratap0/tabula/pkg/dictionary"
	"github.com/ajitpratap0/tabula/pkg/errors"
	"github.com/ajitpratap0/tabula/pkg/models"
	"github.com/ajitpratap0/tabula/pkg/testutil"
)

// survey has a labelled string, a numeric with a user-missing value and a
// scratch variable that is never exported.
func survey(t *testing.T) (*dictionary.Dictionary, []models.Case) {
	d := testutil.NewDictionary(t,
		testutil.Num("ID"), testutil.Str("NAME", 6), testutil.Num("SCORE"), testutil.Num("#TMP"))
	d.SetLabel("survey 2024")
	d.Lookup("NAME").Label = "Respondent"

	score := d.Lookup("SCORE")
	var mv dictionary.MissingValues
	require.NoError(t, mv.AddNum(99))
	require.NoError(t, score.SetMissingValues(mv))
	require.NoError(t, score.AddValueLabel(models.NumValue(1), "low"))

	return d, testutil.Cases(t, d,
		[]interface{}{1, "alice", 1, 7},
		[]interface{}{2, "", 99, 7},
		[]interface{}{nil, "bob", 3.5, 7},
	)
}

var want = [][]interface{}{
	{1.0, "alice", 1.0},
	{2.0, "", nil},
	{nil, "bob", 3.5},
}

func write(t *testing.T, d *dictionary.Dictionary, cases []models.Case, cfg *WriterConfig) ([]byte, Writer) {
	t.Helper()
	var buf bytes.Buffer
	cfg.Logger = testutil.TestLogger(t)
	w, err := NewWriter(&buf, d, cfg)
	require.NoError(t, err)
	for _, c := range cases {
		require.NoError(t, w.WriteCase(c))
	}
	require.NoError(t, w.Close())
	assert.EqualValues(t, len(cases), w.CasesWritten())
	assert.EqualValues(t, buf.Len(), w.BytesWritten())
	return buf.Bytes(), w
}

func recordRows(rec arrow.Record) [][]interface{} {
	rows := make([][]interface{}, rec.NumRows())
	for i := range rows {
		row := make([]interface{}, rec.NumCols())
		for j, col := range rec.Columns() {
			if col.IsNull(i) {
				continue
			}
			switch a := col.(type) {
			case *array.Float64:
				row[j] = a.Value(i)
			case *array.String:
				row[j] = a.Value(i)
			}
		}
		rows[i] = row
	}
	return rows
}

func metadataValue(f arrow.Field, key string) string {
	i := f.Metadata.FindKey(key)
	if i < 0 {
		return ""
	}
	return f.Metadata.Values()[i]
}

func checkSchema(t *testing.T, schema *arrow.Schema) {
	t.Helper()
	require.Equal(t, 3, schema.NumFields())
	assert.Equal(t, "ID", schema.Field(0).Name)
	assert.Equal(t, arrow.BinaryTypes.String, schema.Field(1).Type)
	assert.Equal(t, "Respondent", metadataValue(schema.Field(1), MetaLabel))
	assert.Equal(t, "A6", metadataValue(schema.Field(1), MetaFormat))
	assert.JSONEq(t, `[{"value":1,"label":"low"}]`, metadataValue(schema.Field(2), MetaValueLabels))
	md := schema.Metadata()
	i := md.FindKey(MetaFileLabel)
	require.GreaterOrEqual(t, i, 0)
	assert.Equal(t, "survey 2024", md.Values()[i])
}

func TestArrow(t *testing.T) {
	d, cases := survey(t)
	for _, alg := range []compression.Algorithm{compression.None, compression.LZ4, compression.Zstd} {
		t.Run(string(alg), func(t *testing.T) {
			data, _ := write(t, d, cases, &WriterConfig{Format: Arrow, Compression: alg, BatchSize: 2})

			r, err := ipc.NewFileReader(bytes.NewReader(data), ipc.WithAllocator(memory.NewGoAllocator()))
			require.NoError(t, err)
			defer r.Close()
			checkSchema(t, r.Schema())
			require.Equal(t, 2, r.NumRecords(), "batch size 2 over 3 cases")

			var got [][]interface{}
			for i := 0; i < r.NumRecords(); i++ {
				rec, err := r.Record(i)
				require.NoError(t, err)
				got = append(got, recordRows(rec)...)
			}
			assert.Equal(t, want, got)
		})
	}
}

func TestParquet(t *testing.T) {
	d, cases := survey(t)
	for _, alg := range []compression.Algorithm{compression.None, compression.Snappy, compression.Gzip, compression.Zstd} {
		t.Run(string(alg), func(t *testing.T) {
			data, _ := write(t, d, cases, &WriterConfig{Format: Parquet, Compression: alg, BatchSize: 2})

			mem := memory.NewGoAllocator()
			tbl, err := pqarrow.ReadTable(context.Background(), bytes.NewReader(data),
				parquet.NewReaderProperties(mem), pqarrow.ArrowReadProperties{}, mem)
			require.NoError(t, err)
			defer tbl.Release()
			checkSchema(t, tbl.Schema())

			tr := array.NewTableReader(tbl, tbl.NumRows())
			defer tr.Release()
			var got [][]interface{}
			for tr.Next() {
				got = append(got, recordRows(tr.Record())...)
			}
			assert.Equal(t, want, got)
		})
	}
}

func TestAvro(t *testing.T) {
	d, cases := survey(t)
	for _, alg := range []compression.Algorithm{compression.None, compression.Snappy, compression.Gzip} {
		t.Run(string(alg), func(t *testing.T) {
			data, _ := write(t, d, cases, &WriterConfig{Format: Avro, Compression: alg, BatchSize: 2})

			ocf, err := goavro.NewOCFReader(bytes.NewReader(data))
			require.NoError(t, err)
			var got [][]interface{}
			for ocf.Scan() {
				datum, err := ocf.Read()
				require.NoError(t, err)
				rec := datum.(map[string]interface{})
				row := make([]interface{}, 3)
				for j, name := range []string{"ID", "NAME", "SCORE"} {
					if u, ok := rec[name].(map[string]interface{}); ok {
						for _, v := range u {
							row[j] = v
						}
					}
				}
				got = append(got, row)
			}
			require.NoError(t, ocf.Err())
			assert.Equal(t, want, got)
		})
	}
}

func TestAvroSchema(t *testing.T) {
	d := testutil.NewDictionary(t, testutil.Num("A.B"), testutil.Str("@C$1", 3))
	d.Lookup("A.B").Label = "dotted"
	s, err := AvroSchema(d)
	require.NoError(t, err)
	_, err = goavro.NewCodec(s)
	require.NoError(t, err)

	var rec avroRecord
	require.NoError(t, json.Unmarshal([]byte(s), &rec))
	require.Len(t, rec.Fields, 2)
	assert.Equal(t, "A_B", rec.Fields[0].Name)
	assert.Equal(t, "A.B", rec.Fields[0].SourceName)
	assert.Equal(t, "dotted", rec.Fields[0].Doc)
	assert.Equal(t, []string{"null", "double"}, rec.Fields[0].Type)
	assert.Equal(t, "_C_1", rec.Fields[1].Name)
	assert.Equal(t, []string{"null", "string"}, rec.Fields[1].Type)

	clash := testutil.NewDictionary(t, testutil.Num("A.B"), testutil.Num("A_B"))
	_, err = AvroSchema(clash)
	assert.True(t, errors.IsType(err, errors.ErrorTypeValidation), "%v", err)
}

func TestWriterErrors(t *testing.T) {
	d, _ := survey(t)
	var buf bytes.Buffer

	_, err := NewWriter(&buf, d, &WriterConfig{Format: "orc"})
	assert.True(t, errors.IsType(err, errors.ErrorTypeConfig))
	_, err = NewWriter(&buf, d, &WriterConfig{Format: Arrow, Compression: compression.Snappy})
	assert.True(t, errors.IsType(err, errors.ErrorTypeConfig))
	_, err = NewWriter(&buf, d, &WriterConfig{Format: Avro, Compression: compression.Zstd})
	assert.True(t, errors.IsType(err, errors.ErrorTypeConfig))

	scratchOnly := testutil.NewDictionary(t, testutil.Num("#X"))
	_, err = NewWriter(&buf, scratchOnly, nil)
	assert.True(t, errors.IsType(err, errors.ErrorTypeValidation))

	for _, f := range []Format{Arrow, Parquet, Avro} {
		buf.Reset()
		w, err := NewWriter(&buf, d, &WriterConfig{Format: f})
		require.NoError(t, err)
		assert.Equal(t, f, w.Format())
		require.NoError(t, w.Close())
		require.NoError(t, w.Close(), "second close")
		assert.Error(t, w.WriteCase(d.NewCase()), f)
	}
}

func TestParseFormat(t *testing.T) {
	for in, want := range map[string]Format{
		"parquet": Parquet, ".PARQUET": Parquet, "pq": Parquet,
		"arrow": Arrow, "feather": Arrow, ".ipc": Arrow,
		"avro": Avro,
	} {
		got, err := ParseFormat(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
	_, err := ParseFormat("csv")
	assert.Error(t, err)

	assert.Equal(t, ".parquet", GetFormatInfo(Parquet).FileExtension)
	assert.Nil(t, GetFormatInfo("csv"))
}

func BenchmarkWrite(b *testing.B) {
	d := dictionary.New()
	id, _ := d.CreateVar("ID", 0)
	name, _ := d.CreateVar("NAME", 12)
	score, _ := d.CreateVar("SCORE", 0)
	cases := make([]models.Case, 10000)
	for i := range cases {
		c := d.NewCase()
		c.SetNum(id.FV(), float64(i))
		c.SetStr(name.FV(), name.Width(), fmt.Sprintf("user %d", i))
		c.SetNum(score.FV(), float64(i%100)/3)
		cases[i] = c
	}

	for _, f := range []Format{Arrow, Parquet, Avro} {
		b.Run(string(f), func(b *testing.B) {
			var buf bytes.Buffer
			b.ReportAllocs()
			for i := 0; i < b.N; i++ {
				buf.Reset()
				w, err := NewWriter(&buf, d, &WriterConfig{Format: f, BatchSize: 1000})
				if err != nil {
					b.Fatal(err)
				}
				for _, c := range cases {
					if err := w.WriteCase(c); err != nil {
						b.Fatal(err)
					}
				}
				if err := w.Close(); err != nil {
					b.Fatal(err)
				}
			}
			b.SetBytes(int64(buf.Len()))
		})
	}
}
