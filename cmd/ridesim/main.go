// Command ridesim runs, verifies and serves ride dispatch simulations.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"ridesim/internal/api"
	"ridesim/internal/buildinfo"
	"ridesim/internal/config"
	"ridesim/internal/dispatch"
	"ridesim/internal/instance"
	"ridesim/internal/sim"
)

const usage = `usage: ridesim <command> [flags]

commands:
  run      simulate an instance and write the assignment file
  verify   recompute the score of an assignment file
  serve    run the HTTP service
  version  print build information
`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var err error
	switch os.Args[1] {
	case "run":
		err = runCmd(ctx, os.Args[2:], os.Stdout)
	case "verify":
		err = verifyCmd(ctx, os.Args[2:], os.Stdout)
	case "serve":
		err = serveCmd(ctx, os.Args[2:])
	case "version":
		fmt.Println(buildinfo.String())
	case "-h", "--help", "help":
		fmt.Print(usage)
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n%s", os.Args[1], usage)
		os.Exit(2)
	}
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(2)
		}
		slog.Error("ridesim failed", "cmd", os.Args[1], "err", err)
		os.Exit(1)
	}
}

// newLogger builds the process logger from the log section of cfg.
func newLogger(cfg config.LogConfig, w io.Writer) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if strings.EqualFold(cfg.Format, "text") {
		return slog.New(slog.NewTextHandler(w, opts))
	}
	return slog.New(slog.NewJSONHandler(w, opts))
}

func runCmd(ctx context.Context, args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("run", flag.ContinueOnError)
	cfgPath := fs.String("config", "", "path to YAML config")
	in := fs.String("in", "", "instance file")
	out := fs.String("out", "", "assignment file to write (default: stdout)")
	policy := fs.String("policy", "", "dispatch policy: "+strings.Join(dispatch.PolicyNames, "|"))
	restarts := fs.Int("restarts", 0, "independent trials; best score wins")
	seed := fs.Int64("seed", 0, "seed for shuffled restarts and the random policy")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *in == "" {
		return errors.New("run: -in is required")
	}
	cfg, err := config.Load(*cfgPath)
	if err != nil {
		return err
	}
	if *policy != "" {
		cfg.Simulation.Policy = *policy
	}
	if *restarts > 0 {
		cfg.Simulation.Restarts = *restarts
	}
	if *seed != 0 {
		cfg.Simulation.Seed = *seed
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	logger := newLogger(cfg.Log, os.Stderr)
	slog.SetDefault(logger)

	inst, err := instance.ReadFileLimited(*in, cfg.Simulation.Limits())
	if err != nil {
		return err
	}
	logger.Info("instance loaded", "file", *in, "rows", inst.Rows, "cols", inst.Cols,
		"vehicles", inst.Vehicles, "rides", len(inst.Rides), "bonus", inst.Bonus, "turns", inst.Turns)

	sc := cfg.Simulation
	best, trials, err := sim.RunBest(ctx, inst, sim.RestartOptions{
		Trials:         sc.Restarts,
		Workers:        sc.Workers,
		Seed:           sc.Seed,
		KeepInputOrder: !sc.SortedPool(),
		Policy: func(trial int) (dispatch.Policy, error) {
			return dispatch.PolicyByName(sc.Policy, sc.Seed+int64(trial))
		},
		Observer: func(trial int, p sim.Progress) {
			logger.Info("progress", "trial", trial, "percent", p.Percent, "turn", p.Turn, "score", p.Score, "pool", p.PoolSize)
		},
	})
	if err != nil {
		return err
	}
	for _, tr := range trials {
		logger.Debug("trial finished", "trial", tr.Index, "score", tr.Result.Score)
	}
	logger.Info("simulation finished", "policy", best.Policy, "trial", best.Index, "score", best.Result.Score,
		"completed", best.Result.Completed, "assigned", best.Result.Assigned)

	if *out == "" {
		return instance.WriteAssignments(stdout, best.Result.Assignments)
	}
	if err := instance.WriteAssignmentsFile(*out, best.Result.Assignments); err != nil {
		return err
	}
	logger.Info("assignments written", "file", *out)
	return nil
}

func verifyCmd(ctx context.Context, args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("verify", flag.ContinueOnError)
	cfgPath := fs.String("config", "", "path to YAML config")
	in := fs.String("in", "", "instance file")
	assignments := fs.String("assignments", "", "assignment file to check")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *in == "" || *assignments == "" {
		return errors.New("verify: -in and -assignments are required")
	}
	cfg, err := config.Load(*cfgPath)
	if err != nil {
		return err
	}
	inst, err := instance.ReadFileLimited(*in, cfg.Simulation.Limits())
	if err != nil {
		return err
	}
	logs, err := instance.ReadAssignmentsFile(*assignments, inst.Vehicles)
	if err != nil {
		return err
	}
	score, err := sim.Verify(ctx, inst, logs)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(stdout, score)
	return err
}

func serveCmd(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("serve", flag.ContinueOnError)
	cfgPath := fs.String("config", "", "path to YAML config")
	if err := fs.Parse(args); err != nil {
		return err
	}
	cfg, err := config.Load(*cfgPath)
	if err != nil {
		return err
	}
	logger := newLogger(cfg.Log, os.Stderr)
	slog.SetDefault(logger)

	srvDeps, err := api.NewServer(cfg, logger)
	if err != nil {
		return fmt.Errorf("init server: %w", err)
	}
	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           srvDeps.Routes(),
		ReadHeaderTimeout: cfg.Server.ReadHeaderTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("API listening", "addr", cfg.Server.Addr, "version", buildinfo.Version)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	err = srv.Shutdown(shutdownCtx)
	return errors.Join(err, srvDeps.Shutdown(shutdownCtx))
}
