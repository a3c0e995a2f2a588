package dispatch

import (
	"fmt"
	"math/rand"
	"strings"
)

// Policy picks the next ride for an idle vehicle. Choose removes exactly one
// entry from pool and returns its ride id. Callers guarantee pool is not
// empty.
type Policy interface {
	Name() string
	Choose(v *Vehicle, rides []Ride, pool *Pool, turn, bonus int) int
}

// Greedy maximises GreedyScore over the pool. The baseline is position 0
// with score 0 and only a strictly greater score replaces it, so when no
// candidate scores above zero the first pool entry is taken.
type Greedy struct{}

func (Greedy) Name() string { return "greedy" }

func (Greedy) Choose(v *Vehicle, rides []Ride, pool *Pool, turn, bonus int) int {
	mustHaveRides(pool)
	bestPos, bestScore := 0, 0
	for i := 0; i < pool.Len(); i++ {
		s := GreedyScore(v, &rides[pool.At(i)], turn, bonus)
		if s > bestScore {
			bestPos, bestScore = i, s
		}
	}
	return pool.Remove(bestPos)
}

// First always takes the head of the pool.
type First struct{}

func (First) Name() string { return "first" }

func (First) Choose(_ *Vehicle, _ []Ride, pool *Pool, _, _ int) int {
	mustHaveRides(pool)
	return pool.Remove(0)
}

// Nearest takes the feasible ride with the closest pickup, falling back to
// the head of the pool.
type Nearest struct{}

func (Nearest) Name() string { return "nearest" }

func (Nearest) Choose(v *Vehicle, rides []Ride, pool *Pool, turn, _ int) int {
	mustHaveRides(pool)
	bestPos, bestDist := 0, int(^uint(0)>>1)
	for i := 0; i < pool.Len(); i++ {
		r := &rides[pool.At(i)]
		d := Distance(v.Pos, r.Start)
		if d < bestDist && CanComplete(v, r, turn) {
			bestPos, bestDist = i, d
		}
	}
	return pool.Remove(bestPos)
}

// Random takes a uniformly chosen pool entry.
type Random struct {
	Rng *rand.Rand
}

func (Random) Name() string { return "random" }

func (p Random) Choose(_ *Vehicle, _ []Ride, pool *Pool, _, _ int) int {
	mustHaveRides(pool)
	return pool.Remove(p.Rng.Intn(pool.Len()))
}

// PolicyNames lists the names accepted by PolicyByName.
var PolicyNames = []string{"greedy", "first", "nearest", "random"}

// PolicyByName resolves a configured policy name. An empty name selects
// Greedy. seed only affects the random policy.
func PolicyByName(name string, seed int64) (Policy, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "greedy":
		return Greedy{}, nil
	case "first":
		return First{}, nil
	case "nearest":
		return Nearest{}, nil
	case "random":
		if seed == 0 {
			seed = 1
		}
		return Random{Rng: rand.New(rand.NewSource(seed))}, nil
	}
	return nil, fmt.Errorf("unknown policy %q (allowed: %s)", name, strings.Join(PolicyNames, ","))
}

func mustHaveRides(pool *Pool) {
	if pool == nil || pool.Len() == 0 {
		panic("dispatch: choose from empty pool")
	}
}
