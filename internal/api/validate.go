package api

import (
	"errors"
	"fmt"
	"slices"
	"strings"

	"ridesim/internal/dispatch"
	"ridesim/internal/instance"
	"ridesim/internal/model"
	"ridesim/internal/sim"
)

const maxRestarts = 64

// validateSimulationRequest checks req against lim and normalizes the
// policy name the way dispatch.PolicyByName reads it.
func validateSimulationRequest(req *model.SimulationRequest, lim instance.Limits) error {
	in := req.Instance
	if in == nil {
		return errors.New("instance is required")
	}
	if in.Rows < 0 || in.Cols < 0 || in.Vehicles < 0 || in.Bonus < 0 || in.Turns < 0 {
		return errors.New("rows, cols, vehicles, bonus and turns must be >= 0")
	}
	if err := lim.Check(in.Vehicles, len(in.Rides), in.Turns); err != nil {
		return err
	}
	for i, r := range in.Rides {
		if r.Start.X < 0 || r.Start.Y < 0 || r.End.X < 0 || r.End.Y < 0 {
			return fmt.Errorf("ride %d: coordinates must be >= 0", i)
		}
		if r.StartTurn < 0 || r.StartTurn > r.EndTurn {
			return fmt.Errorf("ride %d: need 0 <= startTurn <= endTurn", i)
		}
	}
	req.Policy = strings.ToLower(strings.TrimSpace(req.Policy))
	if req.Policy != "" && !slices.Contains(dispatch.PolicyNames, req.Policy) {
		return fmt.Errorf("invalid policy: %s (allowed: %v)", req.Policy, dispatch.PolicyNames)
	}
	if req.Restarts < 0 || req.Restarts > maxRestarts {
		return fmt.Errorf("restarts must be in [0,%d]", maxRestarts)
	}
	return nil
}

func toInstance(in *model.InstanceIn) sim.Instance {
	out := sim.Instance{Rows: in.Rows, Cols: in.Cols, Vehicles: in.Vehicles, Bonus: in.Bonus, Turns: in.Turns}
	out.Rides = make([]dispatch.Ride, len(in.Rides))
	for i, r := range in.Rides {
		out.Rides[i] = dispatch.Ride{
			ID:        i,
			Start:     dispatch.Position{X: r.Start.X, Y: r.Start.Y},
			End:       dispatch.Position{X: r.End.X, Y: r.End.Y},
			StartTurn: r.StartTurn,
			EndTurn:   r.EndTurn,
		}
	}
	return out
}

func fromInstance(in sim.Instance) *model.InstanceIn {
	out := &model.InstanceIn{Rows: in.Rows, Cols: in.Cols, Vehicles: in.Vehicles, Bonus: in.Bonus, Turns: in.Turns}
	out.Rides = make([]model.RideIn, len(in.Rides))
	for i, r := range in.Rides {
		out.Rides[i] = model.RideIn{
			Start:     model.Point{X: r.Start.X, Y: r.Start.Y},
			End:       model.Point{X: r.End.X, Y: r.End.Y},
			StartTurn: r.StartTurn,
			EndTurn:   r.EndTurn,
		}
	}
	return out
}
