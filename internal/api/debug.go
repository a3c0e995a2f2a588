package api

import (
	"net/http"
	"time"

	"ridesim/internal/buildinfo"
)

func (s *Server) DebugJSON(w http.ResponseWriter, r *http.Request) {
	cfg := s.Config
	info := map[string]any{
		"build": buildinfo.Info(),
		"time":  time.Now().UTC().Format(time.RFC3339),
		"config": map[string]any{
			"addr":              cfg.Server.Addr,
			"rateRps":           cfg.Server.RateRPS,
			"rateBurst":         cfg.Server.RateBurst,
			"policy":            cfg.Simulation.Policy,
			"restarts":          cfg.Simulation.Restarts,
			"workers":           cfg.Simulation.Workers,
			"webhookAttempts":   cfg.Notify.MaxAttempts,
			"hasDatabaseUrl":    cfg.Store.DatabaseURL != "",
			"hasRedisUrl":       cfg.Broker.RedisURL != "",
			"hasWebhookUrl":     cfg.Notify.WebhookURL != "",
			"hasAmqpUrl":        cfg.Notify.AMQPURL != "",
			"notificationSinks": len(s.Notifier.Sinks),
		},
	}
	writeJSON(w, http.StatusOK, info)
}
