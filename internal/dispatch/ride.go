package dispatch

import "fmt"

type RideState int

const (
	RideUnassigned RideState = iota
	RideAssigned
	RideDone
)

func (s RideState) String() string {
	switch s {
	case RideUnassigned:
		return "unassigned"
	case RideAssigned:
		return "assigned"
	case RideDone:
		return "done"
	}
	return fmt.Sprintf("RideState(%d)", int(s))
}

// Ride is a single transportation request. ID is the ride's index in the
// instance as it was loaded; sorting the pool never renumbers rides.
type Ride struct {
	ID        int
	Start     Position
	End       Position
	StartTurn int // earliest start
	EndTurn   int // latest finish
	State     RideState
}

// Length is the number of turns needed to drive from pickup to dropoff.
func (r *Ride) Length() int { return Distance(r.Start, r.End) }

// Assign moves the ride from Unassigned to Assigned.
func (r *Ride) Assign() {
	if r.State != RideUnassigned {
		panic(fmt.Sprintf("dispatch: assign ride %d in state %s", r.ID, r.State))
	}
	r.State = RideAssigned
}

// Complete moves the ride from Assigned to Done.
func (r *Ride) Complete() {
	if r.State != RideAssigned {
		panic(fmt.Sprintf("dispatch: complete ride %d in state %s", r.ID, r.State))
	}
	r.State = RideDone
}

func (r Ride) String() string {
	return fmt.Sprintf("(%s, StartPos%s, EndPos%s, StartTurn(%d), EndTurn(%d))", r.State, r.Start, r.End, r.StartTurn, r.EndTurn)
}
