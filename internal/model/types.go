package model

import "time"

// API and persistence types

type Point struct {
	X int `json:"x"`
	Y int `json:"y"`
}

type RideIn struct {
	Start     Point `json:"start"`
	End       Point `json:"end"`
	StartTurn int   `json:"startTurn"`
	EndTurn   int   `json:"endTurn"`
}

type InstanceIn struct {
	Rows     int      `json:"rows"`
	Cols     int      `json:"cols"`
	Vehicles int      `json:"vehicles"`
	Bonus    int      `json:"bonus"`
	Turns    int      `json:"turns"`
	Rides    []RideIn `json:"rides"`
}

type SimulationRequest struct {
	Label    string      `json:"label,omitempty"`
	Instance *InstanceIn `json:"instance"`
	Policy   string      `json:"policy,omitempty"`
	Restarts int         `json:"restarts,omitempty"`
	Seed     int64       `json:"seed,omitempty"`
	SortPool *bool       `json:"sortPool,omitempty"`
}

// Run statuses
const (
	RunQueued    = "queued"
	RunRunning   = "running"
	RunCompleted = "completed"
	RunFailed    = "failed"
)

type Run struct {
	ID          string     `json:"id"`
	Label       string     `json:"label,omitempty"`
	Status      string     `json:"status"`
	Policy      string     `json:"policy"`
	Restarts    int        `json:"restarts"`
	Seed        int64      `json:"seed,omitempty"`
	Vehicles    int        `json:"vehicles"`
	Rides       int        `json:"rides"`
	Turns       int        `json:"turns"`
	Bonus       int        `json:"bonus"`
	Score       int        `json:"score"`
	Completed   int        `json:"completed"`
	Assigned    int        `json:"assigned"`
	BestTrial   int        `json:"bestTrial"`
	Assignments [][]int    `json:"assignments,omitempty"`
	Error       string     `json:"error,omitempty"`
	CreatedAt   time.Time  `json:"createdAt"`
	FinishedAt  *time.Time `json:"finishedAt,omitempty"`
	DurationMs  int64      `json:"durationMs,omitempty"`
}

// Finished reports whether the run reached a terminal status.
func (r Run) Finished() bool { return r.Status == RunCompleted || r.Status == RunFailed }

// Event is pushed to progress subscribers of a run.
type Event struct {
	Type  string         `json:"type"`
	RunID string         `json:"runId"`
	TS    string         `json:"ts"`
	Data  map[string]any `json:"data,omitempty"`
}

// Event types
const (
	EventProgress  = "simulation.progress"
	EventCompleted = "simulation.completed"
	EventFailed    = "simulation.failed"
)
