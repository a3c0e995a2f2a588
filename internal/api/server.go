// Package api implements the HTTP service that runs and serves simulations.
package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"sync"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/time/rate"

	"ridesim/internal/config"
	"ridesim/internal/metrics"
	"ridesim/internal/notify"
	"ridesim/internal/store"
)

type Server struct {
	Store    store.Store
	Broker   EventBroker
	Notifier *notify.Notifier
	Config   config.Config
	Logger   *slog.Logger

	limiter *rate.Limiter
	ctx     context.Context // parent of background runs
	cancel  context.CancelFunc
	jobs    sync.WaitGroup
	closers []func() error
}

// NewServer wires the store, broker and notifiers from cfg. Without a
// database URL runs are kept in memory; without a Redis URL events stay
// in process.
func NewServer(cfg config.Config, logger *slog.Logger) (*Server, error) {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{Config: cfg, Logger: logger}

	if dsn := strings.TrimSpace(cfg.Store.DatabaseURL); dsn == "" {
		s.Store = store.NewMemory()
	} else {
		pg, err := store.NewPostgres(dsn)
		if err != nil {
			return nil, err
		}
		if cfg.Store.Migrate {
			if err := pg.Migrate(context.Background()); err != nil {
				_ = pg.Close()
				return nil, err
			}
		}
		s.Store = pg
		s.closers = append(s.closers, pg.Close)
	}

	if cfg.Broker.RedisURL != "" {
		rb, err := NewRedisBroker(cfg.Broker.RedisURL)
		if err != nil {
			logger.Warn("redis broker unavailable, using in-memory broker", "err", err)
			s.Broker = NewBroker()
		} else {
			s.Broker = rb
			s.closers = append(s.closers, rb.Close)
		}
	} else {
		s.Broker = NewBroker()
	}

	var sinks []notify.Sink
	if cfg.Notify.WebhookURL != "" {
		sinks = append(sinks, notify.NewWebhook(cfg.Notify.WebhookURL, cfg.Notify.WebhookSecret, cfg.Notify.MaxAttempts))
	}
	if cfg.Notify.AMQPURL != "" {
		a, err := notify.DialAMQP(cfg.Notify.AMQPURL, cfg.Notify.Exchange, cfg.Notify.RoutingKey)
		if err != nil {
			logger.Warn("amqp notifications disabled", "err", err)
		} else {
			sinks = append(sinks, a)
			s.closers = append(s.closers, a.Close)
		}
	}
	s.Notifier = notify.New(logger, sinks...)

	if cfg.Server.RateRPS > 0 {
		s.limiter = rate.NewLimiter(rate.Limit(cfg.Server.RateRPS), cfg.Server.RateBurst)
	}
	s.ctx, s.cancel = context.WithCancel(context.Background())
	metrics.RegisterDefault()
	return s, nil
}

// Routes builds the service mux wrapped in the standard middleware chain.
func (s *Server) Routes() http.Handler {
	mux := http.NewServeMux()

	// Simulations
	mux.HandleFunc("/v1/simulations", s.SimulationsHandler)
	mux.HandleFunc("/v1/simulations/", s.SimulationByIDHandler) // includes /output, /events

	// Health
	mux.HandleFunc("/healthz", s.HealthHandler)
	mux.HandleFunc("/readyz", s.ReadyHandler)

	// Ops
	mux.HandleFunc("/debug/info", s.DebugJSON)
	mux.Handle("/metrics", promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{}))

	return s.logMiddleware(s.metricsMiddleware(s.rateLimit(mux)))
}

// Shutdown waits for background runs until ctx expires, then cancels the
// rest and releases connections.
func (s *Server) Shutdown(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		s.jobs.Wait()
		close(done)
	}()
	var err error
	select {
	case <-done:
	case <-ctx.Done():
		err = ctx.Err()
	}
	s.cancel()
	s.jobs.Wait()
	for _, c := range s.closers {
		err = errors.Join(err, c())
	}
	return err
}
