package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"ridesim/internal/model"
)

const schema = `
CREATE TABLE IF NOT EXISTS simulation_runs (
    id           uuid PRIMARY KEY,
    label        text,
    status       text        NOT NULL,
    policy       text        NOT NULL,
    restarts     integer     NOT NULL,
    seed         bigint      NOT NULL DEFAULT 0,
    vehicles     integer     NOT NULL,
    rides        integer     NOT NULL,
    turns        bigint      NOT NULL,
    bonus        integer     NOT NULL,
    score        bigint      NOT NULL DEFAULT 0,
    completed    integer     NOT NULL DEFAULT 0,
    assigned     integer     NOT NULL DEFAULT 0,
    best_trial   integer     NOT NULL DEFAULT 0,
    assignments  jsonb,
    error        text,
    created_at   timestamptz NOT NULL,
    finished_at  timestamptz,
    duration_ms  bigint      NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS simulation_runs_created_idx ON simulation_runs (created_at, id);
`

const runColumns = `id::text, COALESCE(label,''), status, policy, restarts, seed, vehicles, rides, turns, bonus,
    score, completed, assigned, best_trial, assignments, COALESCE(error,''), created_at, finished_at, duration_ms`

type Postgres struct {
	db *sql.DB
}

func NewPostgres(dsn string) (*Postgres, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Postgres{db: db}, nil
}

// Migrate creates the runs table if it does not exist.
func (p *Postgres) Migrate(ctx context.Context) error {
	if _, err := p.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}

func (p *Postgres) Close() error { return p.db.Close() }

func (p *Postgres) Ping(ctx context.Context) error { return p.db.PingContext(ctx) }

func (p *Postgres) SaveRun(ctx context.Context, r model.Run) error {
	_, err := p.db.ExecContext(ctx, `
INSERT INTO simulation_runs (id, label, status, policy, restarts, seed, vehicles, rides, turns, bonus,
    score, completed, assigned, best_trial, assignments, error, created_at, finished_at, duration_ms)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19)
ON CONFLICT (id) DO UPDATE SET
    label=EXCLUDED.label, status=EXCLUDED.status, policy=EXCLUDED.policy, restarts=EXCLUDED.restarts,
    seed=EXCLUDED.seed, score=EXCLUDED.score, completed=EXCLUDED.completed, assigned=EXCLUDED.assigned,
    best_trial=EXCLUDED.best_trial, assignments=EXCLUDED.assignments, error=EXCLUDED.error,
    finished_at=EXCLUDED.finished_at, duration_ms=EXCLUDED.duration_ms`,
		r.ID, nullIfEmpty(r.Label), r.Status, r.Policy, r.Restarts, r.Seed, r.Vehicles, r.Rides, r.Turns, r.Bonus,
		r.Score, r.Completed, r.Assigned, r.BestTrial, logsJSON(r.Assignments), nullIfEmpty(r.Error),
		r.CreatedAt, r.FinishedAt, r.DurationMs)
	if err != nil {
		return fmt.Errorf("save run %s: %w", r.ID, err)
	}
	return nil
}

func (p *Postgres) GetRun(ctx context.Context, id string) (model.Run, error) {
	row := p.db.QueryRowContext(ctx, `SELECT `+runColumns+` FROM simulation_runs WHERE id::text = $1`, id)
	r, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Run{}, ErrNotFound
	}
	return r, err
}

func (p *Postgres) ListRuns(ctx context.Context, cursor string, limit int) ([]model.Run, string, error) {
	if limit <= 0 {
		limit = defaultLimit
	}
	var (
		rows *sql.Rows
		err  error
	)
	if cursor == "" {
		rows, err = p.db.QueryContext(ctx, `SELECT `+runColumns+` FROM simulation_runs
ORDER BY created_at, id LIMIT $1`, limit+1)
	} else {
		rows, err = p.db.QueryContext(ctx, `SELECT `+runColumns+` FROM simulation_runs
WHERE (created_at, id) > (SELECT created_at, id FROM simulation_runs WHERE id::text = $1)
ORDER BY created_at, id LIMIT $2`, cursor, limit+1)
	}
	if err != nil {
		return nil, "", err
	}
	defer rows.Close()
	out := []model.Run{}
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, "", err
		}
		r.Assignments = nil
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, "", err
	}
	next := ""
	if len(out) > limit {
		out = out[:limit]
		next = out[limit-1].ID
	}
	return out, next, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(s scanner) (model.Run, error) {
	var (
		r        model.Run
		logs     []byte
		finished sql.NullTime
	)
	err := s.Scan(&r.ID, &r.Label, &r.Status, &r.Policy, &r.Restarts, &r.Seed, &r.Vehicles, &r.Rides, &r.Turns, &r.Bonus,
		&r.Score, &r.Completed, &r.Assigned, &r.BestTrial, &logs, &r.Error, &r.CreatedAt, &finished, &r.DurationMs)
	if err != nil {
		return model.Run{}, err
	}
	if finished.Valid {
		t := finished.Time
		r.FinishedAt = &t
	}
	if len(logs) > 0 {
		if err := json.Unmarshal(logs, &r.Assignments); err != nil {
			return model.Run{}, fmt.Errorf("decode assignments of run %s: %w", r.ID, err)
		}
	}
	return r, nil
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func logsJSON(logs [][]int) any {
	if logs == nil {
		return nil
	}
	b, _ := json.Marshal(logs)
	return string(b)
}
