// Pawprint - APRS live map core for Direwolf and AllStarLink nodes
// Copyright 2026 KI9NG
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/ki9ng/pawprint

package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ki9ng/pawprint/internal/middleware"
)

// NewRouter wires the HTTP surface: JSON API under /api, the websocket
// stream, Prometheus metrics, and the static map UI at the root.
func NewRouter(h *Handler, staticDir string) http.Handler {
	r := chi.NewRouter()

	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.RequestLogger)
	r.Use(middleware.Metrics)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Content-Type", "If-None-Match"},
		MaxAge:         300,
	}))

	r.Get("/metrics", promhttp.Handler().ServeHTTP)
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	r.Route("/api", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(httprate.LimitByIP(120, time.Minute))

			r.Get("/status", h.GetStatus)
			r.Get("/stations", h.GetStations)
			r.Get("/tracks", h.GetTracks)
			r.Get("/messages", h.GetMessages)
			r.Get("/config", h.GetConfig)
		})

		// Mutations get a tighter lid than reads.
		r.Group(func(r chi.Router) {
			r.Use(httprate.LimitByIP(30, time.Minute))

			r.Post("/send_message", h.SendMessage)
			r.Post("/config", h.UpdateConfig)
			r.Post("/cull_all", h.CullAll)
			r.Post("/beacon_now", h.BeaconNow)
		})

		// No rate limit on the stream; each tab holds one connection.
		r.Get("/stream", h.Stream)
	})

	if staticDir != "" {
		r.Handle("/*", http.FileServer(http.Dir(staticDir)))
	}

	return r
}
