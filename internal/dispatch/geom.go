package dispatch

import "fmt"

// Position is a cell on the city grid.
type Position struct {
	X int `json:"x"`
	Y int `json:"y"`
}

func (p Position) String() string { return fmt.Sprintf("(%d, %d)", p.X, p.Y) }

// Distance returns the Manhattan distance between two grid cells.
func Distance(a, b Position) int {
	return abs(a.X-b.X) + abs(a.Y-b.Y)
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
