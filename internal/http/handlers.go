package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/RaselmamunSD/Zuhha/internal/auth"
	"github.com/RaselmamunSD/Zuhha/internal/core"
	"github.com/RaselmamunSD/Zuhha/internal/dispatch"
)

type Server struct {
	Store   *core.Store
	Tokens  *auth.Tokens
	Sweeper *dispatch.Sweeper
	Redis   *redis.Client // nil disables the subscribe rate limiter
	Log     zerolog.Logger
}

func NewServer(store *core.Store, tokens *auth.Tokens, sweeper *dispatch.Sweeper, rdb *redis.Client, log zerolog.Logger) *Server {
	return &Server{Store: store, Tokens: tokens, Sweeper: sweeper, Redis: rdb, Log: log.With().Str("component", "http").Logger()}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RealIP, middleware.Recoverer)
	r.Use(instrument)

	s.mountHealth(r)
	s.mountMetrics(r)
	s.mountDocs(r)

	// Public surface
	r.Post("/auth/register", s.register)
	r.Post("/auth/login", s.login)
	r.Post("/auth/refresh", s.refresh)

	r.Get("/countries", s.listCountries)
	r.Get("/cities", s.listCities)
	r.Get("/prayer-times", s.listPrayerTimes)
	r.Get("/prayer-times/today", s.todayPrayerTimes)

	r.Get("/mosques", s.listMosques)
	r.Get("/mosques/nearby", s.nearbyMosques)
	r.Get("/mosques/{id}", s.getMosque)

	r.Group(func(r chi.Router) {
		r.Use(s.rateLimit)
		r.Post("/subscriptions", s.createSubscription)
		r.Post("/newsletter/subscribe", s.subscribeNewsletter)
	})
	r.Post("/subscriptions/activate", s.activateSubscription)
	r.Post("/subscriptions/unsubscribe", s.unsubscribe)
	r.Post("/newsletter/verify", s.verifyNewsletter)
	r.Post("/newsletter/unsubscribe", s.unsubscribeNewsletter)

	// Authenticated surface
	r.Group(func(r chi.Router) {
		r.Use(s.authenticate)
		r.Get("/me", s.me)
		r.Put("/me/profile", s.updateProfile)
		r.Get("/subscriptions", s.listSubscriptions)
		r.Get("/dispatch-logs", s.listDispatchLogs)

		r.Group(func(r chi.Router) {
			r.Use(s.requireAdmin)
			r.Post("/countries", s.createCountry)
			r.Post("/cities", s.createCity)
			r.Post("/mosques", s.createMosque)
			r.Put("/mosques/{id}", s.updateMosque)
			r.Post("/mosques/{id}/verify", s.verifyMosque)
			r.Post("/prayer-times", s.publishPrayerTimes)
			r.Post("/admin/dispatch/run", s.runDispatch)
		})
	})
	return r
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeErr(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
