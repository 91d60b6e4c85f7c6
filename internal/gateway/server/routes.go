package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"atelier/internal/gateway/handler"
	"atelier/internal/gateway/middleware"
)

func NewMux(h *handler.Handler) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.CORS)

	r.Get("/healthz", h.Health)
	r.Get("/ws", h.Stream)
	r.Get("/media/{id}", h.Media)

	r.Route("/api", func(r chi.Router) {
		r.Get("/state", h.State)
		r.Get("/scenarios", h.Scenarios)
		r.Post("/messages", h.SendMessage)

		r.Post("/assets", h.UploadAsset)
		r.Post("/assets/{id}/toggle", h.ToggleAsset)

		r.Post("/concepts", h.GenerateConcepts)
		r.Post("/concepts/select", h.SelectConcept)
		r.Route("/concepts/{id}", func(r chi.Router) {
			r.Post("/finalize", h.FinalizeConcept)
			r.Post("/specification", h.OpenSpecification)
			r.Post("/edit", h.ApplyEdit)
			r.Post("/refresh", h.RefreshDerivatives)
			r.Post("/techpack", h.RegenerateTechPack)
			r.Post("/produce", h.Produce)
		})
		r.Delete("/production", h.CancelProduction)
	})
	return r
}
