package dispatch

import "sort"

// Pool holds the ids of rides no vehicle has taken yet. Iteration order is
// significant: policies break ties toward lower positions.
type Pool struct {
	ids []int
}

// NewPool builds a pool over all rides in input order, stable-sorted by
// start turn when sorted is true.
func NewPool(rides []Ride, sorted bool) *Pool {
	ids := make([]int, len(rides))
	for i := range rides {
		ids[i] = i
	}
	if sorted {
		sort.SliceStable(ids, func(a, b int) bool {
			return rides[ids[a]].StartTurn < rides[ids[b]].StartTurn
		})
	}
	return &Pool{ids: ids}
}

// PoolOf wraps an explicit id ordering.
func PoolOf(ids []int) *Pool {
	return &Pool{ids: append([]int(nil), ids...)}
}

func (p *Pool) Len() int { return len(p.ids) }

// At returns the ride id stored at position i.
func (p *Pool) At(i int) int { return p.ids[i] }

// Remove deletes position i and returns the ride id that was there.
func (p *Pool) Remove(i int) int {
	if i < 0 || i >= len(p.ids) {
		panic("dispatch: pool position out of range")
	}
	id := p.ids[i]
	p.ids = append(p.ids[:i], p.ids[i+1:]...)
	return id
}

// IDs returns a copy of the remaining ids in pool order.
func (p *Pool) IDs() []int { return append([]int(nil), p.ids...) }

// Shuffle permutes the pool with the provided swap source.
func (p *Pool) Shuffle(shuffle func(n int, swap func(i, j int))) {
	shuffle(len(p.ids), func(i, j int) { p.ids[i], p.ids[j] = p.ids[j], p.ids[i] })
}
