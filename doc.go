// Package tabula reads, transforms and writes SPSS system files.
//
// A system file is loaded into a dictionary, which describes the variables,
// and a stream of cases, which holds their values. Procedures read the active
// file through a chain of transformations; whatever survives becomes the new
// active file. When the active file outgrows the configured workspace it is
// paged to a compressed temporary file.
//
// # Architecture
//
// Data flows through four layers:
//
//  1. Codec: pkg/sysfile decodes and encodes system files, including the
//     opcode compression of case data and both byte orders.
//  2. Model: pkg/dictionary holds variables, formats, missing values, value
//     labels, documents, vectors and the split, weight and filter settings.
//     pkg/models defines the slot-based case layout.
//  3. Pipeline: internal/pipeline runs procedures over the active file,
//     honouring TEMPORARY, LAG, SELECT IF, N OF CASES and split files.
//     pkg/casestream buffers cases in memory and spills to disk.
//  4. Procedures and export: pkg/aggregate, pkg/merge and
//     pkg/formats/columnar consume cases and write new files.
//
// # Quick Start
//
// Summarise a file by region:
//
//	r, _ := sysfile.Open("survey.sav", sysfile.ReaderOptions{})
//	defer r.Close()
//
//	pc := pipeline.NewContext(r.Dictionary(), config.NewDefault(), logger.Get())
//	defer pc.Close()
//	_ = pc.Load(r)
//
//	dest, _ := aggregate.ParseDestination("TOTAL=SUM(INCOME)")
//	agg, _ := aggregate.New(pc.Dict(), aggregate.Spec{
//	    Break:        []string{"REGION"},
//	    Destinations: []aggregate.Destination{dest},
//	})
//
//	w, _ := sysfile.Create("totals.sav", agg.OutputDictionary(), sysfile.DefaultWriterOptions())
//	_, err := pc.Procedure(ctx, agg.Procedure(w))
//	...
//	err = w.Close()
//
// The tabula command in cmd/tabula exposes the same operations on the
// command line.
//
// # Key Packages
//
//	pkg/sysfile            - System file reader and writer
//	pkg/dictionary         - Variables, formats, missing values and labels
//	pkg/casestream         - Memory and disk case streams
//	internal/pipeline      - Procedures, transformations, TEMPORARY and LAG
//	pkg/aggregate          - AGGREGATE
//	pkg/merge              - MATCH FILES
//	pkg/formats/columnar   - Arrow, Parquet and Avro export
//	pkg/config             - YAML configuration
//	pkg/errors             - Structured error handling
//	pkg/logger             - Structured logging
//	pkg/metrics            - Prometheus metrics
//	pkg/observability      - Tracing and profiling
package tabula
