package main

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"text/tabwriter"

	json "github.com/goccy/go-json"
	"github.com/spf13/cobra"

	"github.com/ajitpratap0/tabula/pkg/diag"
	"github.com/ajitpratap0/tabula/pkg/dictionary"
	"github.com/ajitpratap0/tabula/pkg/models"
	"github.com/ajitpratap0/tabula/pkg/sysfile"
)

type fileInfo struct {
	File        string         `json:"file"`
	Header      sysfile.Header `json:"header"`
	Variables   []varInfo      `json:"variables"`
	Weight      string         `json:"weight,omitempty"`
	Documents   []string       `json:"documents,omitempty"`
	Cases       int64          `json:"cases"`
	Rows        [][]string     `json:"rows,omitempty"`
	Diagnostics []string       `json:"diagnostics,omitempty"`
}

type varInfo struct {
	Name        string            `json:"name"`
	Width       int               `json:"width"`
	Print       string            `json:"print"`
	Write       string            `json:"write"`
	Label       string            `json:"label,omitempty"`
	Missing     string            `json:"missing,omitempty"`
	ValueLabels map[string]string `json:"value_labels,omitempty"`
}

func newInfoCmd(a *app) *cobra.Command {
	var (
		asJSON bool
		rows   int
	)
	cmd := &cobra.Command{
		Use:   "info FILE",
		Short: "Describe a system file's dictionary",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			info, err := a.describe(args[0], rows)
			if err != nil {
				return err
			}
			if asJSON {
				b, err := json.MarshalIndent(info, "", "  ")
				if err != nil {
					return err
				}
				_, err = fmt.Fprintln(a.out, string(b))
				return err
			}
			return info.print(a.out)
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print as JSON")
	cmd.Flags().IntVar(&rows, "cases", 0, "also list the first N cases")
	return cmd
}

// describe reads the dictionary of path and counts its cases.
func (a *app) describe(path string, rows int) (*fileInfo, error) {
	var diags diag.Collector
	r, err := a.openInput(path, &diags)
	if err != nil {
		return nil, err
	}
	defer r.Close()

	d := r.Dictionary()
	info := &fileInfo{File: path, Header: r.Header(), Documents: d.Documents()}
	if w := d.Weight(); w != nil {
		info.Weight = w.Name()
	}
	for _, v := range d.Vars() {
		vi := varInfo{
			Name:    v.Name(),
			Width:   v.Width(),
			Print:   v.PrintFormat().String(),
			Write:   v.WriteFormat().String(),
			Label:   v.Label,
			Missing: missingString(v),
		}
		if labels := v.ValueLabels().Labels(); len(labels) > 0 {
			vi.ValueLabels = make(map[string]string, len(labels))
			for _, vl := range labels {
				vi.ValueLabels[valueString(v, vl.Value)] = vl.Label
			}
		}
		info.Variables = append(info.Variables, vi)
	}

	c := d.NewCase()
	for {
		ok, err := r.ReadCase(c)
		if err != nil {
			return nil, err
		}
		if !ok {
			break
		}
		if int(info.Cases) < rows {
			row := make([]string, 0, d.VarCount())
			for _, v := range d.Vars() {
				row = append(row, caseString(v, c))
			}
			info.Rows = append(info.Rows, row)
		}
		info.Cases++
	}
	for _, m := range diags.Messages() {
		info.Diagnostics = append(info.Diagnostics, m.String())
	}
	return info, nil
}

func (info *fileInfo) print(out io.Writer) error {
	h := info.Header
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "File:\t%s\n", info.File)
	if h.Label != "" {
		fmt.Fprintf(tw, "Label:\t%s\n", h.Label)
	}
	fmt.Fprintf(tw, "Created:\t%s %s\n", h.CreationDate, h.CreationTime)
	fmt.Fprintf(tw, "Product:\t%s\n", h.Product)
	fmt.Fprintf(tw, "Byte order:\t%s\n", h.ByteOrder)
	fmt.Fprintf(tw, "Compressed:\t%t\n", h.Compressed)
	fmt.Fprintf(tw, "Cases:\t%d\n", info.Cases)
	if info.Weight != "" {
		fmt.Fprintf(tw, "Weight:\t%s\n", info.Weight)
	}
	fmt.Fprintln(tw)

	fmt.Fprintln(tw, "Variable\tWidth\tFormat\tMissing\tLabels\tLabel")
	for _, v := range info.Variables {
		fmt.Fprintf(tw, "%s\t%d\t%s\t%s\t%d\t%s\n", v.Name, v.Width, v.Print, v.Missing, len(v.ValueLabels), v.Label)
	}
	if len(info.Rows) > 0 {
		fmt.Fprintln(tw)
		names := make([]string, len(info.Variables))
		for i, v := range info.Variables {
			names[i] = v.Name
		}
		fmt.Fprintln(tw, strings.Join(names, "\t"))
		for _, row := range info.Rows {
			fmt.Fprintln(tw, strings.Join(row, "\t"))
		}
	}
	for _, line := range info.Documents {
		fmt.Fprintf(tw, "Document:\t%s\n", strings.TrimRight(line, " "))
	}
	for _, m := range info.Diagnostics {
		fmt.Fprintln(tw, m)
	}
	return tw.Flush()
}

func numString(f float64) string {
	switch f {
	case models.SysMis:
		return "."
	case models.Lowest:
		return "LO"
	case models.Highest:
		return "HI"
	}
	return strconv.FormatFloat(f, 'g', -1, 64)
}

func valueString(v *dictionary.Variable, val models.Value) string {
	if v.IsNumeric() {
		return numString(val.F)
	}
	return strconv.Quote(strings.TrimRight(string(val.S[:]), " "))
}

func caseString(v *dictionary.Variable, c models.Case) string {
	if v.IsNumeric() {
		return numString(c.Num(v.FV()))
	}
	return strings.TrimRight(c.Str(v.FV(), v.Width()), " ")
}

// missingString renders a user-missing specification the way MISSING
// VALUES spells it.
func missingString(v *dictionary.Variable) string {
	mv := v.MissingValues()
	var parts []string
	if mv.HasRange() {
		parts = append(parts, numString(mv.Lo)+" THRU "+numString(mv.Hi))
	}
	for _, val := range mv.Discrete() {
		parts = append(parts, valueString(v, val))
	}
	return strings.Join(parts, ", ")
}
