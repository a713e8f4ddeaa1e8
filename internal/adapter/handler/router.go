package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/rl1809/record-store/internal/core/domain"
)

type RouterOptions struct {
	Gatherer      prometheus.Gatherer
	Throttler     *Throttler
	AllowedOrigin string
}

func (h *HTTPHandler) Routes(opts RouterOptions) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(RequestLogger(h.log))
	r.Use(Metrics(h.metrics))
	r.Use(middleware.Recoverer)
	r.Use(CORS(opts.AllowedOrigin))

	r.Get("/health", h.HealthCheck)
	if opts.Gatherer != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(opts.Gatherer, promhttp.HandlerOpts{}))
	}

	throttle := func(next http.Handler) http.Handler { return next }
	if opts.Throttler != nil {
		throttle = opts.Throttler.Middleware
	}
	authenticate := Authenticate(h.auth)

	r.Route("/api", func(r chi.Router) {
		r.Post("/auth/login", h.Login)

		r.Route("/records", func(r chi.Router) {
			r.Get("/", h.ListRecords)
			r.Group(func(r chi.Router) {
				r.Use(authenticate, RequireRole(domain.RoleAdmin))
				r.Post("/", h.CreateRecord)
				r.Put("/{id}", h.UpdateRecord)
				r.Delete("/{id}", h.DeleteRecord)
			})
		})

		r.Route("/orders", func(r chi.Router) {
			r.Use(throttle)
			r.Get("/most-ordered", h.MostOrdered)
			r.With(authenticate, RequireRole(domain.RoleUser)).Post("/", h.CreateOrder)
		})
	})

	return r
}
