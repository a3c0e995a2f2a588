package sim

import (
	"context"
	"math/rand"

	"golang.org/x/sync/errgroup"

	"ridesim/internal/dispatch"
)

// RestartOptions configures RunBest.
type RestartOptions struct {
	Trials  int
	Workers int
	Seed    int64
	// KeepInputOrder leaves trial 0's pool in input order instead of
	// sorting it by start turn.
	KeepInputOrder bool
	// Policy builds a fresh policy per trial; policies may hold RNG state.
	Policy func(trial int) (dispatch.Policy, error)
	// Observer is called from the worker running the trial.
	Observer func(trial int, p Progress)
}

// Trial is the outcome of one independent run.
type Trial struct {
	Index  int    `json:"index"`
	Policy string `json:"policy"`
	Result Result `json:"result"`
}

// RunBest runs independent trials on private copies of the instance and
// keeps the highest score, preferring the lowest trial index on ties.
// Trial 0 uses the start-turn sorted pool unless KeepInputOrder is set;
// trial k shuffles the pool with seed+k.
func RunBest(ctx context.Context, in Instance, opts RestartOptions) (Trial, []Trial, error) {
	if opts.Trials < 1 {
		opts.Trials = 1
	}
	if opts.Workers < 1 {
		opts.Workers = 1
	}
	if opts.Policy == nil {
		opts.Policy = func(int) (dispatch.Policy, error) { return dispatch.Greedy{}, nil }
	}

	trials := make([]Trial, opts.Trials)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(opts.Workers)
	for i := 0; i < opts.Trials; i++ {
		g.Go(func() error {
			pol, err := opts.Policy(i)
			if err != nil {
				return err
			}
			local := in.Clone()
			pool := dispatch.NewPool(local.Rides, !opts.KeepInputOrder)
			if i > 0 {
				rng := rand.New(rand.NewSource(opts.Seed + int64(i)))
				pool.Shuffle(rng.Shuffle)
			}
			eopts := []Option{WithPolicy(pol), WithPool(pool)}
			if opts.Observer != nil {
				eopts = append(eopts, WithObserver(func(p Progress) { opts.Observer(i, p) }))
			}
			res, err := New(local, eopts...).Run(gctx)
			if err != nil {
				return err
			}
			trials[i] = Trial{Index: i, Policy: pol.Name(), Result: res}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return Trial{}, nil, err
	}

	best := trials[0]
	for _, tr := range trials[1:] {
		if tr.Result.Score > best.Result.Score {
			best = tr
		}
	}
	return best, trials, nil
}
