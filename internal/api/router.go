/**
 * @description
 * This file sets up the HTTP router for the payout gateway: health and metrics probes,
 * the inbound webhook, and the JWT-protected ledger query API.
 *
 * @dependencies
 * - github.com/go-chi/chi/v5: A lightweight and idiomatic router for Go.
 * - github.com/prometheus/client_golang: For the /metrics exposition handler.
 */

package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// RouterOptions configures optional routes.
type RouterOptions struct {
	// AdminJWTSecret mounts /ledger routes when set.
	AdminJWTSecret string
	// Gatherer backs /metrics when set.
	Gatherer       prometheus.Gatherer
	RequestTimeout time.Duration
}

// GatewayRoutes creates and returns a new router for the payout gateway.
func GatewayRoutes(h *GatewayHandlers, opts RouterOptions) http.Handler {
	timeout := opts.RequestTimeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}

	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(timeout))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("healthy"))
	})

	if opts.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(opts.Gatherer, promhttp.HandlerOpts{}))
	}

	r.Post("/webhook", h.WebhookHandler)

	if opts.AdminJWTSecret != "" {
		r.Group(func(r chi.Router) {
			r.Use(AdminAuthMiddleware(opts.AdminJWTSecret))
			r.Get("/ledger/records", h.LedgerRecordsHandler)
		})
	}

	return r
}
