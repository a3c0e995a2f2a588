// Package sim runs the turn-based dispatch simulation.
package sim

import (
	"context"
	"fmt"

	"ridesim/internal/dispatch"
)

// cancelCheckEvery bounds how many turns run between context checks.
const cancelCheckEvery = 1024

// Progress is reported to the Observer at 25, 50 and 75 percent of the
// horizon and once more when the run ends.
type Progress struct {
	Turn      int `json:"turn"`
	Turns     int `json:"turns"`
	Percent   int `json:"percent"`
	Score     int `json:"score"`
	PoolSize  int `json:"poolSize"`
	Completed int `json:"completed"`
}

type Observer func(Progress)

// Result is what a run hands to writers: one assignment log per vehicle and
// the score accumulated at assignment time.
type Result struct {
	Score       int     `json:"score"`
	Assignments [][]int `json:"assignments"`
	Completed   int     `json:"completed"`
	Assigned    int     `json:"assigned"`
	Turns       int     `json:"turns"`
}

type Option func(*Engine)

// WithPolicy replaces the default Greedy policy.
func WithPolicy(p dispatch.Policy) Option { return func(e *Engine) { e.policy = p } }

// WithPool replaces the start-turn sorted pool with an explicit ordering.
func WithPool(p *dispatch.Pool) Option { return func(e *Engine) { e.pool = p } }

// WithObserver registers a progress callback.
func WithObserver(o Observer) Option { return func(e *Engine) { e.observer = o } }

// Engine owns the rides, the vehicles and the pool for one run. It is not
// safe for concurrent use.
type Engine struct {
	bonus     int
	turns     int
	turn      int
	score     int
	completed int
	assigned  int
	rides     []dispatch.Ride
	vehicles  []*dispatch.Vehicle
	pool      *dispatch.Pool
	policy    dispatch.Policy
	observer  Observer
}

// New prepares a run over a private copy of the instance.
func New(in Instance, opts ...Option) *Engine {
	in = in.Clone()
	e := &Engine{
		bonus:  in.Bonus,
		turns:  in.Turns,
		rides:  in.Rides,
		policy: dispatch.Greedy{},
	}
	e.vehicles = make([]*dispatch.Vehicle, in.Vehicles)
	for i := range e.vehicles {
		e.vehicles[i] = dispatch.NewVehicle(i)
	}
	for _, o := range opts {
		o(e)
	}
	if e.pool == nil {
		e.pool = dispatch.NewPool(e.rides, true)
	}
	return e
}

// Run advances the simulation through every remaining turn. There is no
// early exit; an empty pool only stops dispatching.
func (e *Engine) Run(ctx context.Context) (Result, error) {
	for e.turn < e.turns {
		if e.turn%cancelCheckEvery == 0 {
			if err := ctx.Err(); err != nil {
				return e.Result(), fmt.Errorf("simulation stopped at turn %d: %w", e.turn, err)
			}
		}
		e.Step()
	}
	e.notify(100)
	return e.Result(), nil
}

// Step advances every vehicle by one turn, in vehicle order.
func (e *Engine) Step() {
	t := e.turn
	for _, v := range e.vehicles {
		e.advance(v, t)
	}
	e.turn++
	if pct, ok := quarterMark(e.turn, e.turns); ok {
		e.notify(pct)
	}
}

func (e *Engine) advance(v *dispatch.Vehicle, t int) {
	switch v.State {
	case dispatch.Idle, dispatch.EnRouteToRide, dispatch.OnRide:
	default:
		panic(fmt.Sprintf("sim: vehicle %d in unknown state %s", v.ID, v.State))
	}

	if v.State == dispatch.EnRouteToRide {
		if v.RemainingTurns > 0 {
			v.RemainingTurns--
		} else if r := e.activeRide(v); t >= r.StartTurn {
			v.State = dispatch.OnRide
			v.RemainingTurns = dispatch.Distance(v.Pos, r.End)
		}
	}

	if v.State == dispatch.OnRide {
		v.RemainingTurns--
		// a zero-length trip would otherwise count below zero forever
		if v.RemainingTurns <= 0 {
			r := e.activeRide(v)
			v.RemainingTurns = 0
			v.State = dispatch.Idle
			v.Pos = r.End
			r.Complete()
			e.completed++
		}
	}

	if v.State == dispatch.Idle && e.pool.Len() > 0 {
		id := e.policy.Choose(v, e.rides, e.pool, t, e.bonus)
		r := &e.rides[id]
		e.score += dispatch.Value(v, r, t, e.bonus)
		v.RideIDs = append(v.RideIDs, id)
		v.State = dispatch.EnRouteToRide
		v.RemainingTurns = dispatch.Distance(v.Pos, r.Start)
		r.Assign()
		e.assigned++
	}
}

func (e *Engine) activeRide(v *dispatch.Vehicle) *dispatch.Ride {
	id, ok := v.ActiveRide()
	if !ok {
		panic(fmt.Sprintf("sim: vehicle %d is %s without a ride", v.ID, v.State))
	}
	return &e.rides[id]
}

func (e *Engine) notify(pct int) {
	if e.observer == nil {
		return
	}
	e.observer(Progress{
		Turn:      e.turn,
		Turns:     e.turns,
		Percent:   pct,
		Score:     e.score,
		PoolSize:  e.pool.Len(),
		Completed: e.completed,
	})
}

// quarterMark reports whether done turns out of total lands exactly on 25,
// 50 or 75 percent.
func quarterMark(done, total int) (int, bool) {
	if total <= 0 || (done*4)%total != 0 {
		return 0, false
	}
	q := done * 4 / total
	if q < 1 || q > 3 {
		return 0, false
	}
	return q * 25, true
}

// Turn is the index of the next turn to be simulated.
func (e *Engine) Turn() int { return e.turn }

func (e *Engine) Score() int { return e.score }

// Vehicles exposes the live vehicle state.
func (e *Engine) Vehicles() []*dispatch.Vehicle { return e.vehicles }

// Rides exposes the live ride state.
func (e *Engine) Rides() []dispatch.Ride { return e.rides }

// Pool exposes the rides still unassigned.
func (e *Engine) Pool() *dispatch.Pool { return e.pool }

// Result snapshots the score and a copy of every assignment log.
func (e *Engine) Result() Result {
	logs := make([][]int, len(e.vehicles))
	for i, v := range e.vehicles {
		logs[i] = append([]int{}, v.RideIDs...)
	}
	return Result{
		Score:       e.score,
		Assignments: logs,
		Completed:   e.completed,
		Assigned:    e.assigned,
		Turns:       e.turn,
	}
}

// Simulate is a convenience wrapper around New and Run.
func Simulate(ctx context.Context, in Instance, opts ...Option) (Result, error) {
	return New(in, opts...).Run(ctx)
}
