package dictionary

import (
	"bytes"
	"sort"

	"github.com/ajitpratap0/tabula/pkg/models"
)

// MaxValueLabelLen is the longest label a value label record can carry.
const MaxValueLabelLen = 255

// ValueLabel is one value with its label.
type ValueLabel struct {
	Value models.Value
	Label string
}

// ValueLabels maps the values of a numeric or short string variable to
// labels. Keys are normalized so a numeric key never carries string bytes
// and a string key is always space padded.
type ValueLabels struct {
	width  int
	labels map[models.Value]string
}

// NewValueLabels returns an empty set for a variable of the given width.
func NewValueLabels(width int) *ValueLabels {
	return &ValueLabels{width: width, labels: make(map[models.Value]string)}
}

// Width is the width of the variable the labels apply to.
func (vl *ValueLabels) Width() int { return vl.width }

func (vl *ValueLabels) key(v models.Value) models.Value {
	if vl.width == 0 {
		return models.NumValue(v.F)
	}
	k := models.Value{S: v.S}
	for i := vl.width; i < models.SlotWidth; i++ {
		k.S[i] = models.PadByte
	}
	return k
}

func truncLabel(s string) string {
	if len(s) > MaxValueLabelLen {
		return s[:MaxValueLabelLen]
	}
	return s
}

// Add labels v unless it already has a label. It reports whether the label
// was added.
func (vl *ValueLabels) Add(v models.Value, label string) bool {
	k := vl.key(v)
	if _, ok := vl.labels[k]; ok {
		return false
	}
	vl.labels[k] = truncLabel(label)
	return true
}

// Replace labels v, overwriting any existing label.
func (vl *ValueLabels) Replace(v models.Value, label string) {
	vl.labels[vl.key(v)] = truncLabel(label)
}

// Remove deletes the label for v.
func (vl *ValueLabels) Remove(v models.Value) {
	delete(vl.labels, vl.key(v))
}

// Get returns the label for v.
func (vl *ValueLabels) Get(v models.Value) (string, bool) {
	if vl == nil {
		return "", false
	}
	s, ok := vl.labels[vl.key(v)]
	return s, ok
}

// Len returns the number of labels.
func (vl *ValueLabels) Len() int {
	if vl == nil {
		return 0
	}
	return len(vl.labels)
}

// Labels returns every label ordered by value.
func (vl *ValueLabels) Labels() []ValueLabel {
	if vl == nil {
		return nil
	}
	out := make([]ValueLabel, 0, len(vl.labels))
	for v, l := range vl.labels {
		out = append(out, ValueLabel{Value: v, Label: l})
	}
	if vl.width == 0 {
		sort.Slice(out, func(i, j int) bool { return out[i].Value.F < out[j].Value.F })
	} else {
		sort.Slice(out, func(i, j int) bool {
			return bytes.Compare(out[i].Value.S[:], out[j].Value.S[:]) < 0
		})
	}
	return out
}

// Clone returns an independent copy.
func (vl *ValueLabels) Clone() *ValueLabels {
	if vl == nil {
		return nil
	}
	c := NewValueLabels(vl.width)
	for k, v := range vl.labels {
		c.labels[k] = v
	}
	return c
}

// Equal compares two label sets.
func (vl *ValueLabels) Equal(o *ValueLabels) bool {
	if vl.Len() != o.Len() {
		return false
	}
	if vl.Len() == 0 {
		return true
	}
	if vl.width != o.width {
		return false
	}
	for k, v := range vl.labels {
		if ov, ok := o.labels[k]; !ok || ov != v {
			return false
		}
	}
	return true
}
