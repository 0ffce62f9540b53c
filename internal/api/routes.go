package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/ignite/profile-mailer/internal/auth"
	"github.com/ignite/profile-mailer/internal/pkg/logger"
	"github.com/ignite/profile-mailer/internal/ratelimit"
)

// RouterConfig collects what SetupRoutes mounts. Gmail and Limiter may be
// nil; their routes or middleware are then skipped. A nil Clients keys
// rate limits and logs by the TCP peer.
type RouterConfig struct {
	Handlers       *Handlers
	Auth           *auth.Manager
	Gmail          *auth.GmailConnector
	Limiter        ratelimit.Limiter
	Clients        *ratelimit.ClientResolver
	AllowedOrigins []string
}

// SetupRoutes configures all routes.
func SetupRoutes(c RouterConfig) *chi.Mux {
	h := c.Handlers
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(requestLogger(c.Clients))
	r.Use(middleware.Recoverer)

	origins := c.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"http://localhost:5173", "http://localhost:8080"}
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-CSRF-Token"},
		ExposedHeaders:   []string{"Retry-After"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/health", h.HealthCheck)
	r.Get("/health/live", h.Live)
	r.Get("/health/ready", h.Ready)

	r.Route("/auth", func(r chi.Router) {
		r.Get("/login", c.Auth.HandleLogin)
		r.Get("/callback", c.Auth.HandleCallback)
		r.Get("/logout", c.Auth.HandleLogout)
		r.Post("/logout", c.Auth.HandleLogout)
		r.Get("/user", c.Auth.HandleUserInfo)
		if c.Gmail != nil {
			r.Group(func(r chi.Router) {
				r.Use(c.Auth.RequireAuth)
				r.Get("/gmail/connect", c.Gmail.HandleConnect)
				r.Get("/gmail/callback", c.Gmail.HandleCallback)
			})
		}
	})

	r.Route("/api", func(r chi.Router) {
		r.Use(c.Auth.RequireAuth)

		r.Post("/gmail-send", h.HandleGmailSend)
		r.Post("/smtp-send", h.HandleSMTPSend)

		r.Route("/campaigns", func(r chi.Router) {
			r.Get("/", h.ListCampaigns)
			r.Get("/{id}", h.GetCampaign)
			r.Delete("/{id}", h.DeleteCampaign)
		})

		r.Route("/subscribers", func(r chi.Router) {
			r.Get("/", h.ListSubscribers)
			r.Post("/", h.CreateSubscriber)
			r.Patch("/{id}", h.UpdateSubscriber)
			r.Delete("/{id}", h.DeleteSubscriber)
		})

		r.Route("/smtp-settings", func(r chi.Router) {
			r.Get("/", h.ListSmtpSettings)
			r.Post("/", h.CreateSmtpSetting)
			r.Put("/{id}", h.UpdateSmtpSetting)
			r.Delete("/{id}", h.DeleteSmtpSetting)
			r.Post("/{id}/test", h.TestSmtpSetting)
		})

		r.Get("/gmail/status", h.GmailStatus)
		r.Delete("/gmail", h.DisconnectGmail)
	})

	r.Route("/public/profiles/{slug}", func(r chi.Router) {
		subscribe := http.HandlerFunc(h.PublicSubscribe)
		contactForm := http.HandlerFunc(h.PublicContact)
		if c.Limiter != nil {
			r.With(ratelimit.Middleware(c.Limiter, "subscribe", c.Clients)).Post("/subscribe", subscribe)
			r.With(ratelimit.Middleware(c.Limiter, "contact", c.Clients)).Post("/contact", contactForm)
			return
		}
		r.Post("/subscribe", subscribe)
		r.Post("/contact", contactForm)
	})

	return r
}

func requestLogger(clients *ratelimit.ClientResolver) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)
			logger.Info("http request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"bytes", ww.BytesWritten(),
				"duration_ms", time.Since(start).Milliseconds(),
				"remote_ip", clients.ClientIP(r),
				"request_id", middleware.GetReqID(r.Context()))
		})
	}
}
