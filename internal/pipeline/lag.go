package pipeline

import "github.com/ajitpratap0/tabula/pkg/models"

// lagRing keeps copies of the last len(slots) cases in one arena.
type lagRing struct {
	arena  []models.Value
	slots  []models.Case
	head   int
	pushed int64
}

func newLagRing(depth, width int) *lagRing {
	r := &lagRing{
		arena: make([]models.Value, depth*width),
		slots: make([]models.Case, depth),
	}
	for i := range r.slots {
		r.slots[i] = r.arena[i*width : (i+1)*width : (i+1)*width]
	}
	return r
}

// push records c as the most recent case, overwriting the oldest.
func (r *lagRing) push(c models.Case) {
	copy(r.slots[r.head], c)
	r.head = (r.head + 1) % len(r.slots)
	r.pushed++
}

// get returns the case k pushes back, or nil when fewer than k cases have
// been pushed or k exceeds the depth.
func (r *lagRing) get(k int) models.Case {
	n := len(r.slots)
	if k < 1 || k > n || int64(k) > r.pushed {
		return nil
	}
	return r.slots[((r.head-k)%n+n)%n]
}
