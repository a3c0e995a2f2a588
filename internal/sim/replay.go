package sim

import (
	"context"
	"errors"
	"fmt"

	"ridesim/internal/dispatch"
)

var ErrInvalidAssignment = errors.New("invalid assignment")

// Verify recomputes the score of a set of assignment logs. Each vehicle only
// interacts with the others through the pool, so replaying it alone with
// its own log as the pool reproduces every assignment turn and value.
func Verify(ctx context.Context, in Instance, assignments [][]int) (int, error) {
	if len(assignments) > in.Vehicles {
		return 0, fmt.Errorf("%w: %d logs for %d vehicles", ErrInvalidAssignment, len(assignments), in.Vehicles)
	}
	seen := make(map[int]int, len(in.Rides))
	for vi, log := range assignments {
		for _, id := range log {
			if id < 0 || id >= len(in.Rides) {
				return 0, fmt.Errorf("%w: vehicle %d references ride %d of %d", ErrInvalidAssignment, vi, id, len(in.Rides))
			}
			if prev, dup := seen[id]; dup {
				return 0, fmt.Errorf("%w: ride %d assigned to vehicles %d and %d", ErrInvalidAssignment, id, prev, vi)
			}
			seen[id] = vi
		}
	}

	total := 0
	for vi, log := range assignments {
		solo := in
		solo.Vehicles = 1
		res, err := New(solo, WithPolicy(dispatch.First{}), WithPool(dispatch.PoolOf(log))).Run(ctx)
		if err != nil {
			return 0, err
		}
		if got := res.Assignments[0]; len(got) != len(log) {
			return 0, fmt.Errorf("%w: vehicle %d only reaches %d of its %d rides within %d turns", ErrInvalidAssignment, vi, len(got), len(log), in.Turns)
		}
		total += res.Score
	}
	return total, nil
}
