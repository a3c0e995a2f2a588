package store

import (
	"context"
	"errors"

	"ridesim/internal/model"
)

// Store persists simulation runs.
type Store interface {
	// SaveRun inserts or replaces a run by ID.
	SaveRun(ctx context.Context, run model.Run) error
	GetRun(ctx context.Context, id string) (model.Run, error)
	// ListRuns pages through runs oldest first; cursor is the last ID seen.
	ListRuns(ctx context.Context, cursor string, limit int) (items []model.Run, nextCursor string, err error)
	Ping(ctx context.Context) error
}

var ErrNotFound = errors.New("not found")

const defaultLimit = 100
