package sim

import (
	"context"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ridesim/internal/dispatch"
)

func singleRide(startTurn, endTurn, turns int) Instance {
	return Instance{
		Rows: 3, Cols: 4, Vehicles: 1, Bonus: 10, Turns: turns,
		Rides: []dispatch.Ride{{Start: dispatch.Position{X: 0, Y: 0}, End: dispatch.Position{X: 2, Y: 0}, StartTurn: startTurn, EndTurn: endTurn}},
	}
}

func randomInstance(seed int64, vehicles, rides, turns int) Instance {
	rng := rand.New(rand.NewSource(seed))
	in := Instance{Rows: 20, Cols: 20, Vehicles: vehicles, Bonus: 5, Turns: turns}
	for i := 0; i < rides; i++ {
		s := dispatch.Position{X: rng.Intn(20), Y: rng.Intn(20)}
		e := dispatch.Position{X: rng.Intn(20), Y: rng.Intn(20)}
		start := rng.Intn(turns)
		end := start + dispatch.Distance(s, e) + rng.Intn(30)
		in.Rides = append(in.Rides, dispatch.Ride{ID: i, Start: s, End: e, StartTurn: start, EndTurn: end})
	}
	return in
}

func TestImmediatePickupEarnsBonus(t *testing.T) {
	e := New(singleRide(0, 5, 10))
	res, err := e.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 12, res.Score)
	assert.Equal(t, [][]int{{0}}, res.Assignments)
	assert.Equal(t, 1, res.Completed)
	assert.Equal(t, 10, res.Turns)
	v := e.Vehicles()[0]
	assert.Equal(t, dispatch.Position{X: 2, Y: 0}, v.Pos)
	assert.Equal(t, dispatch.Idle, v.State)
	assert.Equal(t, dispatch.RideDone, e.Rides()[0].State)
}

func TestVehicleWaitsAtPickupUntilStartTurn(t *testing.T) {
	e := New(singleRide(5, 10, 8))
	v := e.Vehicles()[0]

	e.Step()
	assert.Equal(t, 12, e.Score())
	assert.Equal(t, dispatch.EnRouteToRide, v.State)
	for e.Turn() < 5 {
		e.Step()
		require.Equal(t, dispatch.EnRouteToRide, v.State, "turn %d", e.Turn()-1)
		require.Zero(t, v.RemainingTurns)
	}

	e.Step() // turn 5
	assert.Equal(t, dispatch.OnRide, v.State)
	assert.Equal(t, 1, v.RemainingTurns)

	e.Step() // turn 6
	assert.Equal(t, dispatch.Idle, v.State)
	assert.Zero(t, v.RemainingTurns)
	assert.Equal(t, dispatch.Position{X: 2, Y: 0}, v.Pos)
	assert.Equal(t, dispatch.RideDone, e.Rides()[0].State)

	res, err := e.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 8, res.Turns)
	assert.Equal(t, 12, res.Score)
}

func TestOnRideCountdownStartsFromLastDropoff(t *testing.T) {
	in := Instance{Vehicles: 1, Turns: 20, Rides: []dispatch.Ride{
		{Start: dispatch.Position{X: 3, Y: 0}, End: dispatch.Position{X: 4, Y: 0}, StartTurn: 0, EndTurn: 50},
	}}
	e := New(in)
	for i := 0; i < 7; i++ {
		e.Step()
	}
	assert.Equal(t, dispatch.RideAssigned, e.Rides()[0].State)
	e.Step()
	assert.Equal(t, dispatch.RideDone, e.Rides()[0].State)
	assert.Equal(t, dispatch.Position{X: 4, Y: 0}, e.Vehicles()[0].Pos)
}

func TestZeroLengthRideCompletes(t *testing.T) {
	in := Instance{Vehicles: 1, Turns: 5, Rides: []dispatch.Ride{
		{Start: dispatch.Position{}, End: dispatch.Position{}, StartTurn: 0, EndTurn: 3},
		{Start: dispatch.Position{}, End: dispatch.Position{X: 1}, StartTurn: 2, EndTurn: 5},
	}}
	res, err := Simulate(context.Background(), in)
	require.NoError(t, err)
	assert.Equal(t, [][]int{{0, 1}}, res.Assignments)
	assert.Equal(t, 2, res.Completed)
}

func TestInfeasibleRideIsPassedOver(t *testing.T) {
	in := Instance{Vehicles: 1, Bonus: 2, Turns: 20, Rides: []dispatch.Ride{
		{Start: dispatch.Position{X: 0, Y: 0}, End: dispatch.Position{X: 0, Y: 6}, StartTurn: 0, EndTurn: 3},
		{Start: dispatch.Position{X: 0, Y: 1}, End: dispatch.Position{X: 0, Y: 4}, StartTurn: 1, EndTurn: 10},
	}}
	res, err := Simulate(context.Background(), in)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Assignments[0][0])
	assert.Equal(t, 5, res.Score, "3 for the trip plus the bonus")
}

func TestOnlyInfeasibleRidesStillDispatched(t *testing.T) {
	in := Instance{Vehicles: 1, Bonus: 2, Turns: 10, Rides: []dispatch.Ride{
		{Start: dispatch.Position{X: 5, Y: 5}, End: dispatch.Position{X: 9, Y: 9}, StartTurn: 0, EndTurn: 4},
	}}
	res, err := Simulate(context.Background(), in)
	require.NoError(t, err)
	assert.Equal(t, [][]int{{0}}, res.Assignments)
	assert.Zero(t, res.Score)
}

func TestPoolSharedInVehicleOrder(t *testing.T) {
	in := singleRide(0, 5, 10)
	in.Vehicles = 3
	res, err := Simulate(context.Background(), in)
	require.NoError(t, err)
	assert.Equal(t, [][]int{{0}, {}, {}}, res.Assignments)
}

func TestRideStatesOnlyMoveForward(t *testing.T) {
	e := New(randomInstance(11, 4, 60, 200))
	prev := make([]dispatch.RideState, len(e.Rides()))
	for e.Turn() < 200 {
		onRide := map[*dispatch.Vehicle]int{}
		for _, v := range e.Vehicles() {
			if v.State == dispatch.OnRide {
				id, _ := v.ActiveRide()
				onRide[v] = id
			}
		}
		e.Step()
		for i, r := range e.Rides() {
			require.GreaterOrEqual(t, r.State, prev[i], "ride %d went backwards", i)
			prev[i] = r.State
		}
		for v, id := range onRide {
			if e.Rides()[id].State != dispatch.RideDone {
				continue
			}
			require.Equal(t, e.Rides()[id].End, v.Pos)
			if v.State == dispatch.Idle {
				require.Zero(t, v.RemainingTurns)
			}
		}
	}
	done := 0
	for _, r := range e.Rides() {
		if r.State == dispatch.RideDone {
			done++
		}
	}
	assert.Equal(t, done, e.Result().Completed)
}

func TestEveryRideAssignedAtMostOnce(t *testing.T) {
	res, err := Simulate(context.Background(), randomInstance(5, 6, 120, 300))
	require.NoError(t, err)
	seen := map[int]bool{}
	for _, log := range res.Assignments {
		for _, id := range log {
			require.False(t, seen[id], "ride %d assigned twice", id)
			seen[id] = true
		}
	}
	assert.Equal(t, len(seen), res.Assigned)
}

func TestSimulationIsDeterministic(t *testing.T) {
	in := randomInstance(42, 5, 80, 250)
	a, err := Simulate(context.Background(), in)
	require.NoError(t, err)
	b, err := Simulate(context.Background(), in.Clone())
	require.NoError(t, err)
	assert.Equal(t, a, b)
	for _, r := range in.Rides {
		assert.Equal(t, dispatch.RideUnassigned, r.State, "caller's instance must not be mutated")
	}
}

func TestObserverFiresAtQuarterMarks(t *testing.T) {
	var got []int
	_, err := Simulate(context.Background(), singleRide(0, 5, 8), WithObserver(func(p Progress) {
		got = append(got, p.Percent)
	}))
	require.NoError(t, err)
	assert.Equal(t, []int{25, 50, 75, 100}, got)
}

func TestQuarterMarkNeedsExactFraction(t *testing.T) {
	_, ok := quarterMark(1, 10)
	assert.False(t, ok)
	pct, ok := quarterMark(5, 10)
	assert.True(t, ok)
	assert.Equal(t, 50, pct)
	_, ok = quarterMark(10, 10)
	assert.False(t, ok)
	_, ok = quarterMark(0, 0)
	assert.False(t, ok)
}

func TestRunHonoursCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := Simulate(ctx, randomInstance(1, 2, 10, 5000))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestWithPolicyFirst(t *testing.T) {
	in := Instance{Vehicles: 1, Turns: 30, Rides: []dispatch.Ride{
		{End: dispatch.Position{X: 1}, StartTurn: 9, EndTurn: 30},
		{End: dispatch.Position{X: 8}, StartTurn: 0, EndTurn: 30},
	}}
	res, err := Simulate(context.Background(), in, WithPolicy(dispatch.First{}), WithPool(dispatch.PoolOf([]int{0, 1})))
	require.NoError(t, err)
	assert.Equal(t, []int{0, 1}, res.Assignments[0])
}
