package main

import (
	"context"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ajitpratap0/tabula/pkg/aggregate"
	"github.com/ajitpratap0/tabula/pkg/logger"
)

func newAggregateCmd(a *app) *cobra.Command {
	var (
		opts       procOptions
		breaks     []string
		funcs      []string
		columnwise bool
	)
	cmd := &cobra.Command{
		Use:   "aggregate IN OUT",
		Short: "Summarise groups of cases into one case per group",
		Long: `aggregate writes one case per run of equal break values. Each --func
adds a destination, for example

  --func 'TOTAL=SUM(INCOME)' --func 'SHARE=PGT(AGE,65)' --func 'COUNT=N'

The input must already be sorted by the break variables.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.aggregate(cmd.Context(), args[0], args[1], &opts, aggregate.Spec{
				Break:      breaks,
				Columnwise: columnwise,
			}, funcs)
		},
	}
	opts.bind(cmd)
	cmd.Flags().StringSliceVar(&breaks, "break", nil, "break variables")
	cmd.Flags().StringArrayVar(&funcs, "func", nil, "destination, NAME=FUNC(ARGS); repeatable")
	cmd.Flags().BoolVar(&columnwise, "columnwise", false, "a missing source makes the destination missing for the whole group")
	_ = cmd.MarkFlagRequired("func")
	return cmd
}

func (a *app) aggregate(ctx context.Context, in, outPath string, o *procOptions, spec aggregate.Spec, funcs []string) error {
	for _, f := range funcs {
		dest, err := aggregate.ParseDestination(f)
		if err != nil {
			return err
		}
		spec.Destinations = append(spec.Destinations, dest)
	}
	spec.Logger = a.log

	format, err := outputFormat(o.format, outPath)
	if err != nil {
		return err
	}
	pc, err := a.load(in, o)
	if err != nil {
		return err
	}
	defer pc.Close()

	agg, err := aggregate.New(pc.Dict(), spec)
	if err != nil {
		return err
	}
	out, err := a.createOutput(outPath, format, agg.OutputDictionary())
	if err != nil {
		return err
	}
	ctx = logger.WithFile(logger.WithCommand(ctx, "aggregate"), in)
	stats, err := pc.Procedure(ctx, agg.Procedure(out))
	if err := finish(out, err); err != nil {
		return err
	}
	logger.FromContext(ctx, a.log).Info("aggregated", zap.String("out", outPath), zap.Int64("groups", agg.Groups()), zap.Int64("written", out.Cases()), stats.Field())
	return nil
}
