// Package notify delivers run lifecycle events to external sinks.
package notify

import (
	"context"
	"log/slog"

	"ridesim/internal/metrics"
	"ridesim/internal/model"
)

// Sink is a destination for run events.
type Sink interface {
	Name() string
	Notify(ctx context.Context, ev model.Event) error
}

// Notifier fans an event out to every configured sink. A failing sink
// does not stop delivery to the others.
type Notifier struct {
	Sinks  []Sink
	Logger *slog.Logger
}

func New(logger *slog.Logger, sinks ...Sink) *Notifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &Notifier{Sinks: sinks, Logger: logger}
}

func (n *Notifier) Notify(ctx context.Context, ev model.Event) {
	if n == nil {
		return
	}
	for _, s := range n.Sinks {
		if err := s.Notify(ctx, ev); err != nil {
			metrics.Notifications.WithLabelValues(s.Name(), "failed").Inc()
			n.Logger.Warn("notification failed", "sink", s.Name(), "event", ev.Type, "run", ev.RunID, "err", err)
			continue
		}
		metrics.Notifications.WithLabelValues(s.Name(), "delivered").Inc()
		n.Logger.Debug("notification delivered", "sink", s.Name(), "event", ev.Type, "run", ev.RunID)
	}
}
