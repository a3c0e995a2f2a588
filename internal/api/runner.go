package api

import (
	"context"
	"time"

	"github.com/google/uuid"

	"ridesim/internal/dispatch"
	"ridesim/internal/metrics"
	"ridesim/internal/model"
	"ridesim/internal/sim"
)

// newRun builds the queued record for req, filling gaps from config.
func (s *Server) newRun(req model.SimulationRequest) model.Run {
	cfg := s.Config.Simulation
	policy := req.Policy
	if policy == "" {
		policy = cfg.Policy
	}
	if policy == "" {
		policy = "greedy"
	}
	restarts := req.Restarts
	if restarts == 0 {
		restarts = cfg.Restarts
	}
	if restarts < 1 {
		restarts = 1
	}
	seed := req.Seed
	if seed == 0 {
		seed = cfg.Seed
	}
	in := req.Instance
	return model.Run{
		ID:        uuid.NewString(),
		Label:     req.Label,
		Status:    model.RunQueued,
		Policy:    policy,
		Restarts:  restarts,
		Seed:      seed,
		Vehicles:  in.Vehicles,
		Rides:     len(in.Rides),
		Turns:     in.Turns,
		Bonus:     in.Bonus,
		CreatedAt: time.Now().UTC(),
	}
}

func (s *Server) sortPool(req model.SimulationRequest) bool {
	if req.SortPool != nil {
		return *req.SortPool
	}
	return s.Config.Simulation.SortedPool()
}

// startAsync runs the simulation on the server's background context.
func (s *Server) startAsync(run model.Run, in sim.Instance, sorted bool) {
	s.jobs.Add(1)
	go func() {
		defer s.jobs.Done()
		s.execute(s.ctx, run, in, sorted)
	}()
}

// execute runs the trials for run, persists each status change, and
// publishes the outcome to the broker and the notifier.
func (s *Server) execute(ctx context.Context, run model.Run, in sim.Instance, sorted bool) model.Run {
	log := s.Logger.With("run", run.ID, "policy", run.Policy)
	run.Status = model.RunRunning
	s.save(ctx, run)
	log.Info("simulation started", "vehicles", run.Vehicles, "rides", run.Rides, "turns", run.Turns, "restarts", run.Restarts)

	start := time.Now()
	best, _, err := sim.RunBest(ctx, in, sim.RestartOptions{
		Trials:         run.Restarts,
		Workers:        s.Config.Simulation.Workers,
		Seed:           run.Seed,
		KeepInputOrder: !sorted,
		Policy: func(trial int) (dispatch.Policy, error) {
			return dispatch.PolicyByName(run.Policy, run.Seed+int64(trial))
		},
		Observer: func(trial int, p sim.Progress) {
			log.Debug("simulation progress", "trial", trial, "percent", p.Percent, "score", p.Score, "pool", p.PoolSize)
			s.Broker.Publish(run.ID, progressEvent(run.ID, trial, p))
		},
	})
	elapsed := time.Since(start)
	finished := time.Now().UTC()
	run.FinishedAt = &finished
	run.DurationMs = elapsed.Milliseconds()
	if err != nil {
		run.Status = model.RunFailed
		run.Error = err.Error()
		log.Error("simulation failed", "err", err)
	} else {
		run.Status = model.RunCompleted
		run.Score = best.Result.Score
		run.Completed = best.Result.Completed
		run.Assigned = best.Result.Assigned
		run.BestTrial = best.Index
		run.Assignments = best.Result.Assignments
		metrics.SimulationScore.WithLabelValues(run.Policy).Set(float64(run.Score))
		metrics.RidesCompleted.Add(float64(run.Completed))
		log.Info("simulation completed", "score", run.Score, "completed", run.Completed, "bestTrial", run.BestTrial, "duration", elapsed)
	}
	metrics.SimulationRuns.WithLabelValues(run.Policy, run.Status).Inc()
	metrics.SimulationDuration.WithLabelValues(run.Policy).Observe(elapsed.Seconds())

	s.save(context.WithoutCancel(ctx), run)
	evt := runEvent(run)
	s.Broker.Publish(run.ID, evt)
	s.Notifier.Notify(ctx, evt)
	return run
}

func (s *Server) save(ctx context.Context, run model.Run) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := s.Store.SaveRun(ctx, run); err != nil {
		s.Logger.Error("save run failed", "run", run.ID, "status", run.Status, "err", err)
	}
}

func progressEvent(runID string, trial int, p sim.Progress) model.Event {
	return model.Event{
		Type:  model.EventProgress,
		RunID: runID,
		TS:    time.Now().UTC().Format(time.RFC3339),
		Data: map[string]any{
			"trial":     trial,
			"turn":      p.Turn,
			"turns":     p.Turns,
			"percent":   p.Percent,
			"score":     p.Score,
			"poolSize":  p.PoolSize,
			"completed": p.Completed,
		},
	}
}

// runEvent is the terminal event of a finished run.
func runEvent(run model.Run) model.Event {
	evt := model.Event{RunID: run.ID, TS: time.Now().UTC().Format(time.RFC3339)}
	if run.FinishedAt != nil {
		evt.TS = run.FinishedAt.Format(time.RFC3339)
	}
	if run.Status == model.RunFailed {
		evt.Type = model.EventFailed
		evt.Data = map[string]any{"error": run.Error}
		return evt
	}
	evt.Type = model.EventCompleted
	evt.Data = map[string]any{
		"label":      run.Label,
		"policy":     run.Policy,
		"score":      run.Score,
		"completed":  run.Completed,
		"assigned":   run.Assigned,
		"bestTrial":  run.BestTrial,
		"durationMs": run.DurationMs,
	}
	return evt
}
