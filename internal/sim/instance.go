package sim

import "ridesim/internal/dispatch"

// Instance is a problem as handed over by a loader. Rides are in input
// order; ride i has ID i.
type Instance struct {
	Rows     int             `json:"rows"`
	Cols     int             `json:"cols"`
	Vehicles int             `json:"vehicles"`
	Bonus    int             `json:"bonus"`
	Turns    int             `json:"turns"`
	Rides    []dispatch.Ride `json:"rides"`
}

// Clone returns a deep copy with every ride reset to Unassigned.
func (in Instance) Clone() Instance {
	out := in
	out.Rides = make([]dispatch.Ride, len(in.Rides))
	for i, r := range in.Rides {
		r.ID = i
		r.State = dispatch.RideUnassigned
		out.Rides[i] = r
	}
	return out
}
