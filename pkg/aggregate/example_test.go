package aggregate_test

import (
	"fmt"

	"github.com/ajitpratap0/tabula/pkg/aggregate"
	"github.com/ajitpratap0/tabula/pkg/dictionary"
	"github.com/ajitpratap0/tabula/pkg/models"
)

type printer struct{ d *dictionary.Dictionary }

func (p printer) WriteCase(c models.Case) error {
	g, total := p.d.Lookup("G"), p.d.Lookup("TOTAL")
	fmt.Printf("%s %g\n", c.Str(g.FV(), g.Width()), c.Num(total.FV()))
	return nil
}

type rows []models.Case

func (r *rows) ReadCase(c models.Case) (bool, error) {
	if len(*r) == 0 {
		return false, nil
	}
	copy(c, (*r)[0])
	*r = (*r)[1:]
	return true, nil
}

func Example() {
	d := dictionary.New()
	g, _ := d.CreateVar("G", 1)
	v, _ := d.CreateVar("V", 0)

	var in rows
	for _, r := range []struct {
		g string
		v float64
	}{{"x", 10}, {"x", 20}, {"y", 5}} {
		c := d.NewCase()
		c.SetStr(g.FV(), g.Width(), r.g)
		c.SetNum(v.FV(), r.v)
		in = append(in, c)
	}

	dest, _ := aggregate.ParseDestination("TOTAL=SUM(V)")
	agg, err := aggregate.New(d, aggregate.Spec{Break: []string{"G"}, Destinations: []aggregate.Destination{dest}})
	if err != nil {
		panic(err)
	}
	if err := agg.Run(&in, printer{agg.OutputDictionary()}); err != nil {
		panic(err)
	}
	// Output:
	// x 30
	// y 5
}
