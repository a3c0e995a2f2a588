package store

import (
	"context"
	"sync"

	"ridesim/internal/model"
)

// Memory is a simple in-memory store used when no database URL is set.
type Memory struct {
	mu    sync.Mutex
	runs  map[string]model.Run // id -> run
	order []string             // insertion order
}

func NewMemory() *Memory {
	return &Memory{runs: map[string]model.Run{}}
}

func (m *Memory) SaveRun(ctx context.Context, run model.Run) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.runs[run.ID]; !ok {
		m.order = append(m.order, run.ID)
	}
	run.Assignments = copyLogs(run.Assignments)
	m.runs[run.ID] = run
	return nil
}

func (m *Memory) GetRun(ctx context.Context, id string) (model.Run, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.runs[id]
	if !ok {
		return model.Run{}, ErrNotFound
	}
	r.Assignments = copyLogs(r.Assignments)
	return r, nil
}

func (m *Memory) ListRuns(ctx context.Context, cursor string, limit int) ([]model.Run, string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	// An unknown cursor yields an empty page, as the keyset query does.
	start := 0
	if cursor != "" {
		start = len(m.order)
		for i, id := range m.order {
			if id == cursor {
				start = i + 1
				break
			}
		}
	}
	if limit <= 0 {
		limit = defaultLimit
	}
	out := []model.Run{}
	var next string
	for i := start; i < len(m.order) && len(out) < limit; i++ {
		r := m.runs[m.order[i]]
		r.Assignments = nil
		out = append(out, r)
		next = m.order[i]
	}
	if start+len(out) >= len(m.order) {
		next = ""
	}
	return out, next, nil
}

func (m *Memory) Ping(ctx context.Context) error { return nil }

func copyLogs(in [][]int) [][]int {
	if in == nil {
		return nil
	}
	out := make([][]int, len(in))
	for i, l := range in {
		out[i] = append([]int{}, l...)
	}
	return out
}
