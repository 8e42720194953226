// Package http binds the badge lifecycle to a chi router.
package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-jose/go-jose/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Config wires the router's collaborators.
type Config struct {
	Service Service

	// JWKS returns the published key set.
	JWKS func() jose.JSONWebKeySet

	Logger         *slog.Logger
	AdminToken     string
	RequestTimeout time.Duration

	// Gatherer backs /metrics. Nil uses the default gatherer.
	Gatherer prometheus.Gatherer

	// Health backs /healthz. Nil serves an always healthy probe.
	Health *Health
}

// NewRouter builds the HTTP handler for the issuer API.
func NewRouter(cfg Config) http.Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	gatherer := cfg.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	health := cfg.Health
	if health == nil {
		health = NewHealth(0)
	}

	r := chi.NewRouter()
	r.Use(Recovery(logger))
	r.Use(RequestID)
	r.Use(Logger(logger))

	r.Method(http.MethodGet, "/healthz", health)
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	r.Group(func(r chi.Router) {
		if cfg.RequestTimeout > 0 {
			r.Use(Timeout(cfg.RequestTimeout))
		}
		r.Use(Identity(cfg.AdminToken))
		r.Use(AuditContext)

		if cfg.JWKS != nil {
			r.Get("/.well-known/jwks.json", func(w http.ResponseWriter, _ *http.Request) {
				writeJSON(w, http.StatusOK, cfg.JWKS())
			})
		}
		NewHandler(cfg.Service, logger).Register(r)
	})

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusNotFound, errorBody{Error: "not_found"})
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusMethodNotAllowed, errorBody{Error: "method_not_allowed"})
	})

	return r
}
