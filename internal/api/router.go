package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

func NewRouter(h *Handler) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(h.requestLogger)
	r.Use(h.recoverer)
	r.Use(middleware.StripSlashes)

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		h.writeFailure(w, r, http.StatusNotFound, "Route not found - "+r.URL.Path)
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		h.writeFailure(w, r, http.StatusMethodNotAllowed, "Method not allowed")
	})

	r.Get("/health", h.Health)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", h.Health)

		r.Route("/auth", func(r chi.Router) {
			r.Group(func(r chi.Router) {
				r.Use(h.rateLimited)
				r.Post("/send-otp", h.SendOTP)
				r.Post("/verify-otp", h.VerifyOTP)
			})
			r.Group(func(r chi.Router) {
				r.Use(h.authenticate)
				r.Post("/update-profile", h.UpdateProfile)
				r.Post("/complete-onboarding", h.CompleteOnboarding)
				r.Post("/delete-account", h.DeleteAccount)
			})
		})

		r.Route("/users/{userID}", func(r chi.Router) {
			r.Use(h.authenticate)
			r.Use(h.sameUser)

			r.Get("/", h.GetUser)
			r.Get("/stats", h.GetUserStats)
			r.Post("/context", h.AddStyleExample)

			r.Get("/modes", h.ListModes)
			r.Post("/modes", h.CreateMode)
			r.Put("/modes/{modeID}", h.UpdateMode)
			r.Delete("/modes/{modeID}", h.DeleteMode)
			r.Put("/selected-mode", h.SelectMode)
		})

		r.Route("/translations", func(r chi.Router) {
			r.Use(h.authenticate)

			r.Post("/", h.CreateTranslation)
			r.With(h.sameUser).Get("/history/{userID}", h.TranslationHistory)
			r.Get("/{translationID}", h.GetTranslation)
			r.Post("/{translationID}/regenerate", h.RegenerateTranslation)
			r.Patch("/{translationID}/selected-version", h.SelectTranslationVersion)
			r.Delete("/{translationID}", h.DeleteTranslation)
		})
	})

	return r
}
