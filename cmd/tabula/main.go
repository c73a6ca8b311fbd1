// Command tabula reads, transforms and writes SPSS system files.
//
//	tabula info survey.sav
//	tabula convert survey.sav survey.parquet --keep ID,AGE,INCOME
//	tabula aggregate survey.sav totals.sav --break REGION --func 'TOTAL=SUM(INCOME)'
//	tabula match merged.sav --file a.sav --file b.sav --table lookup.sav --by ID
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"runtime"

	"github.com/spf13/cobra"
)

var version = "0.1.0"

func main() {
	os.Exit(execute(os.Args[1:], os.Stdout, os.Stderr))
}

// execute runs the command line and returns the process exit code.
func execute(args []string, stdout, stderr io.Writer) int {
	a := newApp(stdout)
	root := newRootCmd(a)
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)

	err := root.ExecuteContext(context.Background())
	if cerr := a.close(); err == nil {
		err = cerr
	}
	if err != nil {
		fmt.Fprintln(stderr, "error:", err)
		return 1
	}
	return 0
}

func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:   "tabula",
		Short: "tabula - SPSS system file processing",
		Long: `tabula reads SPSS system files, runs procedures over their cases and
writes the result as a system file or as Arrow, Parquet or Avro.

Settings come from --config (YAML), then TABULA_* environment variables
(for example TABULA_WORKSPACE_MAX_BYTES), then flags.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.setup()
		},
	}
	a.bindFlags(root.PersistentFlags())

	root.AddCommand(
		newInfoCmd(a),
		newConvertCmd(a),
		newAggregateCmd(a),
		newMatchCmd(a),
		&cobra.Command{
			Use:   "version",
			Short: "Show version information",
			Run: func(cmd *cobra.Command, args []string) {
				fmt.Fprintf(a.out, "tabula v%s\n", version)
				fmt.Fprintf(a.out, "Go version: %s\n", runtime.Version())
				fmt.Fprintf(a.out, "OS/Arch: %s/%s\n", runtime.GOOS, runtime.GOARCH)
			},
		},
	)
	return root
}
