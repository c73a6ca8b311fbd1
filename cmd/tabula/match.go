package main

import (
	"context"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ajitpratap0/tabula/pkg/dictionary"
	"github.com/ajitpratap0/tabula/pkg/logger"
	"github.com/ajitpratap0/tabula/pkg/merge"
	"github.com/ajitpratap0/tabula/pkg/observability"
	"github.com/ajitpratap0/tabula/pkg/sysfile"
)

func newMatchCmd(a *app) *cobra.Command {
	var (
		files, tables, by []string
		format            string
	)
	cmd := &cobra.Command{
		Use:   "match OUT",
		Short: "Merge sorted system files side by side",
		Long: `match combines --file inputs case by case on the --by keys. --table
inputs are lookups whose rows are copied into every output case with the
same key. Without --by the files are matched by position.

An input written PATH=NAME adds a variable NAME that is 1 when that input
contributed to the case. FILE inputs come before TABLE inputs in the output
dictionary.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.match(cmd.Context(), args[0], format, files, tables, by)
		},
	}
	cmd.Flags().StringArrayVar(&files, "file", nil, "FILE input, PATH or PATH=INVAR; repeatable")
	cmd.Flags().StringArrayVar(&tables, "table", nil, "TABLE input, PATH or PATH=INVAR; repeatable")
	cmd.Flags().StringSliceVar(&by, "by", nil, "key variables")
	cmd.Flags().StringVar(&format, "format", "", "output format (default from the extension)")
	return cmd
}

// splitInVar separates a trailing =NAME from an input argument when NAME is
// a valid variable name.
func splitInVar(arg string) (path, inVar string) {
	i := strings.LastIndexByte(arg, '=')
	if i < 0 || dictionary.ValidName(arg[i+1:]) != nil {
		return arg, ""
	}
	return arg[:i], arg[i+1:]
}

func (a *app) match(ctx context.Context, outPath, format string, files, tables, by []string) (err error) {
	ctx, span := observability.StartSpan(logger.WithCommand(ctx, "match"), "cli.match")
	defer func() { span.End(err) }()

	if format, err = outputFormat(format, outPath); err != nil {
		return err
	}

	var (
		inputs  []merge.Input
		readers []*sysfile.Reader
	)
	open := func(arg string, kind merge.Kind) error {
		path, inVar := splitInVar(arg)
		r, err := a.openInput(path, nil)
		if err != nil {
			return err
		}
		readers = append(readers, r)
		inputs = append(inputs, merge.Input{Name: path, Kind: kind, Dict: r.Dictionary(), Reader: r, InVar: inVar})
		return nil
	}
	defer func() {
		for _, r := range readers {
			r.Close()
		}
	}()
	for _, f := range files {
		if err := open(f, merge.File); err != nil {
			return err
		}
	}
	for _, t := range tables {
		if err := open(t, merge.Table); err != nil {
			return err
		}
	}
	span.SetAttribute("inputs", len(inputs))

	m, err := merge.New(inputs, by)
	if err != nil {
		return err
	}
	m.WithLogger(logger.FromContext(ctx, a.log))
	out, err := a.createOutput(outPath, format, m.OutputDictionary())
	if err != nil {
		return err
	}
	if err := finish(out, m.Run(out)); err != nil {
		return err
	}
	span.SetAttribute("cases", m.CasesWritten())
	logger.FromContext(ctx, a.log).Info("matched", zap.String("out", outPath), zap.Int("inputs", len(inputs)), zap.Int64("cases", m.CasesWritten()))
	return nil
}
