package pipeline_test

import (
	"context"
	"fmt"

	"github.com/ajitpratap0/tabula/internal/pipeline"
	"github.com/ajitpratap0/tabula/pkg/casestream"
	"github.com/ajitpratap0/tabula/pkg/dictionary"
	"github.com/ajitpratap0/tabula/pkg/models"
)

func Example() {
	d := dictionary.New()
	region, _ := d.CreateVar("REGION", 4)
	sales, _ := d.CreateVar("SALES", 0)

	var cases []models.Case
	for _, row := range []struct {
		region string
		sales  float64
	}{{"east", 10}, {"east", 5}, {"west", 7}} {
		c := d.NewCase()
		c.SetStr(region.FV(), region.Width(), row.region)
		c.SetNum(sales.FV(), row.sales)
		cases = append(cases, c)
	}

	pc := pipeline.NewContext(d, nil, nil)
	pc.SetSource(casestream.FromCases(d.Layout(), cases))
	defer pc.Close()
	_ = d.SetSplitVars([]*dictionary.Variable{region})

	var total float64
	_, err := pc.Procedure(context.Background(), pipeline.Procedure{
		GroupHeader: func(vs []pipeline.SplitValue) { fmt.Println(vs[0]) },
		Begin:       func() error { total = 0; return nil },
		Case: func(c models.Case) (bool, error) {
			total += c.Num(sales.FV())
			return true, nil
		},
		End: func() error { fmt.Println("total", total); return nil },
	})
	if err != nil {
		fmt.Println(err)
	}
	// Output:
	// REGION = "east"
	// total 15
	// REGION = "west"
	// total 7
}
