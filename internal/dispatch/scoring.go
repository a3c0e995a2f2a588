package dispatch

// CanComplete reports whether v, leaving now, can drive to the pickup and
// finish the ride no later than its end turn.
func CanComplete(v *Vehicle, r *Ride, turn int) bool {
	return turn+Distance(v.Pos, r.Start)+r.Length() <= r.EndTurn
}

// ArrivesOnTime reports whether v reaches the pickup by the ride's start turn.
func ArrivesOnTime(v *Vehicle, r *Ride, turn int) bool {
	return turn+Distance(v.Pos, r.Start) <= r.StartTurn
}

// Value is the score earned by assigning r to v at the given turn: the trip
// length plus the bonus for an on-time pickup, or 0 if the ride cannot be
// finished in time.
func Value(v *Vehicle, r *Ride, turn, bonus int) int {
	if !CanComplete(v, r, turn) {
		return 0
	}
	score := r.Length()
	if ArrivesOnTime(v, r, turn) {
		score += bonus
	}
	return score
}

// Wait is how many turns v would sit at the pickup before the ride may
// start. It is negative when v would arrive late.
func Wait(v *Vehicle, r *Ride, turn int) int {
	return r.StartTurn - (turn + Distance(v.Pos, r.Start))
}

// GreedyScore is Value minus the idle wait at the pickup.
func GreedyScore(v *Vehicle, r *Ride, turn, bonus int) int {
	return Value(v, r, turn, bonus) - Wait(v, r, turn)
}
