package controller

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

func (c controller) GetMux() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.Recoverer)
	r.Use(c.requestIdMw)
	r.Use(c.requestLoggingMw)
	r.Use(cors.AllowAll().Handler)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/healthz", c.getHealth)
		r.Get("/ws", c.serveWS)
		r.Route("/rooms/{room-id}", func(r chi.Router) {
			r.Get("/", c.getRoom)
			r.Get("/transcript", c.getTranscript)
		})
	})

	if c.metricsHandler != nil {
		r.Handle("/metrics", c.metricsHandler)
	}

	return r
}
