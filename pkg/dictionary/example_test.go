package dictionary_test

import (
	"fmt"

	"github.com/ajitpratap0/tabula/pkg/dictionary"
)

// Example shows how deleting a variable leaves its slots in place until the
// dictionary is compacted.
func Example() {
	d := dictionary.New()
	_, _ = d.CreateVar("ID", 0)
	name, _ := d.CreateVar("NAME", 20)
	score, _ := d.CreateVar("SCORE", 0)

	fmt.Println(d.ValueCount(), score.FV())

	d.DeleteVar(name)
	fmt.Println(d.ValueCount(), score.FV())

	d.CompactValues()
	fmt.Println(d.ValueCount(), score.FV())

	// Output:
	// 5 4
	// 5 4
	// 2 1
}

// ExampleDictionary_RenameVars shows that a failed rename changes nothing.
func ExampleDictionary_RenameVars() {
	d := dictionary.New()
	a, _ := d.CreateVar("A", 0)
	b, _ := d.CreateVar("B", 0)
	_, _ = d.CreateVar("C", 0)

	err := d.RenameVars([]*dictionary.Variable{a, b}, []string{"X", "C"})
	fmt.Println(err)
	fmt.Println(a.Name(), b.Name())

	// Output:
	// config: rename B to C: duplicate variable name
	// A B
}
