package dispatch

import "fmt"

type VehicleState int

const (
	Idle VehicleState = iota
	EnRouteToRide
	OnRide
)

func (s VehicleState) String() string {
	switch s {
	case Idle:
		return "idle"
	case EnRouteToRide:
		return "en_route"
	case OnRide:
		return "on_ride"
	}
	return fmt.Sprintf("VehicleState(%d)", int(s))
}

// NotCounting is the RemainingTurns sentinel of a vehicle that has never
// been dispatched.
const NotCounting = -1

// Vehicle is a dispatchable agent. Pos only changes when a ride completes;
// positions along the way are not tracked.
type Vehicle struct {
	ID             int
	State          VehicleState
	Pos            Position
	RemainingTurns int
	RideIDs        []int // assignment log, last entry is the active ride
}

// NewVehicle returns an idle vehicle parked at the origin.
func NewVehicle(id int) *Vehicle {
	return &Vehicle{ID: id, State: Idle, RemainingTurns: NotCounting, RideIDs: []int{}}
}

// ActiveRide returns the id of the ride the vehicle was last assigned.
func (v *Vehicle) ActiveRide() (int, bool) {
	if len(v.RideIDs) == 0 {
		return 0, false
	}
	return v.RideIDs[len(v.RideIDs)-1], true
}

func (v Vehicle) String() string {
	return fmt.Sprintf("(%s, Pos%s, RemTurns(%d), RideIds%v)", v.State, v.Pos, v.RemainingTurns, v.RideIDs)
}
