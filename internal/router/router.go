package router

import (
	"net/http"

	"github.com/avolkov/labelscan/internal/dashboard"
	"github.com/avolkov/labelscan/internal/logger"
	"github.com/avolkov/labelscan/internal/mailer"
	"github.com/avolkov/labelscan/internal/metrics"
	"github.com/avolkov/labelscan/internal/middleware"
	"github.com/avolkov/labelscan/internal/order"
	"github.com/avolkov/labelscan/internal/user"
	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
)

type Config struct {
	JWTSecret  []byte
	APIKey     string
	AllowedIPs string
	FileDir    string // root of the public document store
}

func NewRouter(
	userH *user.Handler,
	orderH *order.Handler,
	dashH *dashboard.Handler,
	mailH *mailer.Handler,
	reg *metrics.Registry,
	userRepo user.UserRepository,
	cfg Config,
) chi.Router {
	r := chi.NewRouter()

	r.Use(logger.WithLogging)
	r.Use(chiMiddleware.Recoverer)

	r.Use(middleware.GzipHandler)

	r.Route("/api/admin", func(r chi.Router) {
		r.Post("/login", userH.Login)

		r.Group(func(r chi.Router) {
			r.Use(middleware.JWTMiddleware(cfg.JWTSecret, userRepo))

			r.Get("/dashboard", dashH.Stats)

			r.Route("/users", func(r chi.Router) {
				r.Get("/", userH.ListUsers)
				r.Post("/", userH.CreateUser)
				r.Get("/{id}", userH.GetUser)
				r.Put("/{id}", userH.UpdateUser)
				r.Delete("/{id}", userH.DeleteUser)
			})

			r.Route("/orders", func(r chi.Router) {
				r.Get("/", orderH.ListOrders)
				r.Post("/check-sku", orderH.CheckSKU)
				r.Post("/store-scan", orderH.StoreScan)
				r.Post("/find-by-sku", orderH.FindBySKU)
				r.Post("/mark-as-printed", orderH.MarkAsPrinted)
				r.Delete("/{id}", orderH.DeleteOrder)
			})
		})
	})

	r.Get("/api/health", mailH.Health)
	r.With(
		middleware.APIKeyAuth(cfg.APIKey),
		middleware.IPWhitelist(cfg.AllowedIPs),
	).Post("/api/send-email", mailH.SendEmail)

	r.Method(http.MethodGet, "/metrics", reg.Handler())

	// Stored documents are public-read, like the original /storage mount.
	fs := http.StripPrefix("/storage/", http.FileServer(http.Dir(cfg.FileDir)))
	r.Get("/storage/*", fs.ServeHTTP)

	return r
}
