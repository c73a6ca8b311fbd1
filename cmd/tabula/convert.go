package main

import (
	"context"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ajitpratap0/tabula/internal/pipeline"
	"github.com/ajitpratap0/tabula/pkg/dictionary"
	"github.com/ajitpratap0/tabula/pkg/errors"
	"github.com/ajitpratap0/tabula/pkg/logger"
	"github.com/ajitpratap0/tabula/pkg/models"
)

// procOptions are the active-file settings shared by convert and
// aggregate.
type procOptions struct {
	keep     []string
	selectIf string
	limit    int64
	weight   string
	split    []string
	format   string
}

func (o *procOptions) bind(cmd *cobra.Command) {
	fs := cmd.Flags()
	fs.StringSliceVar(&o.keep, "keep", nil, "variables to keep, in output order")
	fs.StringVar(&o.selectIf, "select-if", "", "keep only cases where this numeric variable is non-missing and non-zero")
	fs.Int64Var(&o.limit, "limit", 0, "process at most N cases")
	fs.StringVar(&o.weight, "weight", "", "weight variable")
	fs.StringSliceVar(&o.split, "split", nil, "split-file variables")
	fs.StringVar(&o.format, "format", "", "output format: sav, arrow, parquet or avro (default from the extension)")
}

// load reads path into a new pipeline context and applies opts to it.
func (a *app) load(path string, o *procOptions) (*pipeline.Context, error) {
	r, err := a.openInput(path, nil)
	if err != nil {
		return nil, err
	}
	defer r.Close()

	pc := pipeline.NewContext(r.Dictionary(), a.cfg, a.log)
	if err := pc.Load(r); err != nil {
		pc.Close()
		return nil, err
	}
	if err := o.apply(pc); err != nil {
		pc.Close()
		return nil, err
	}
	return pc, nil
}

func (o *procOptions) apply(pc *pipeline.Context) error {
	d := pc.Dict()
	if o.selectIf != "" {
		v, err := d.MustLookup(o.selectIf)
		if err != nil {
			return err
		}
		if !v.IsNumeric() {
			return errors.Newf(errors.ErrorTypeValidation, "select-if variable %s is not numeric", v.Name())
		}
		pc.AddTransformation(pipeline.SelectIf(func(c models.Case) bool {
			return !v.IsMissing(c) && c.Num(v.FV()) != 0
		}))
	}
	if o.weight != "" {
		v, err := d.MustLookup(o.weight)
		if err != nil {
			return err
		}
		if err := d.SetWeight(v); err != nil {
			return err
		}
	}
	if len(o.split) > 0 {
		vs, err := d.LookupAll(o.split)
		if err != nil {
			return err
		}
		if err := d.SetSplitVars(vs); err != nil {
			return err
		}
	}
	if o.limit > 0 {
		d.SetCaseLimit(o.limit)
	}
	if len(o.keep) > 0 {
		keep, err := d.LookupAll(o.keep)
		if err != nil {
			return err
		}
		kept := make(map[*dictionary.Variable]bool, len(keep))
		for _, v := range keep {
			kept[v] = true
		}
		var drop []*dictionary.Variable
		for _, v := range d.Vars() {
			if !kept[v] {
				drop = append(drop, v)
			}
		}
		d.DeleteVars(drop)
		if err := d.ReorderVars(keep); err != nil {
			return err
		}
	}
	return nil
}

func newConvertCmd(a *app) *cobra.Command {
	var opts procOptions
	cmd := &cobra.Command{
		Use:   "convert IN OUT",
		Short: "Copy a system file to a system file, Arrow, Parquet or Avro",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.convert(cmd.Context(), args[0], args[1], &opts)
		},
	}
	opts.bind(cmd)
	return cmd
}

func (a *app) convert(ctx context.Context, in, outPath string, o *procOptions) error {
	format, err := outputFormat(o.format, outPath)
	if err != nil {
		return err
	}
	pc, err := a.load(in, o)
	if err != nil {
		return err
	}
	defer pc.Close()

	out, err := a.createOutput(outPath, format, pc.Dict())
	if err != nil {
		return err
	}
	ctx = logger.WithFile(logger.WithCommand(ctx, "convert"), in)
	stats, err := pc.Procedure(ctx, pipeline.Procedure{
		Name: "convert",
		Case: func(c models.Case) (bool, error) {
			return true, out.WriteCase(c)
		},
	})
	if err := finish(out, err); err != nil {
		return err
	}
	logger.FromContext(ctx, a.log).Info("converted", zap.String("out", outPath), zap.String("format", format), zap.Int64("written", out.Cases()), stats.Field())
	return nil
}
