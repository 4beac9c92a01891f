/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the chi router, the middleware stack and the route table.
  This is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK (outermost first):
  1. RequestID:   Unique ID per request, echoed in logs
  2. RealIP:      Client address behind proxies
  3. Logger:      logrus access log (method, path, status, duration)
  4. Recoverer:   Panic recovery (500 instead of crash)
  5. CORS:        Cross-origin requests for the frontend
  6. Auth:        Resolves the actor (JWT or X-Actor-* headers)
  7. Idempotency: Replays retried mutations carrying Idempotency-Key

ROUTE GROUPS:
  /api/homes/*      Catalog, images, availability, home reviews
  /api/bookings/*   Booking lifecycle and per-booking ledger
  /api/ledger/*     Manual entries and dashboards
  /api/reviews/*    Booking reviews
  /api/wishlist/*   Actor wishlist
  /api/scenarios/*  Demo scenarios (optional)
  /uploads/*        Stored images (optional)

SEE ALSO:
  - handlers.go: Handler implementations
  - cmd/server/main.go: Server startup
*/
package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/sirupsen/logrus"

	"github.com/warp/stay-engine/auth"
	"github.com/warp/stay-engine/idempotency"
)

// RouterConfig carries the pieces NewRouter mounts around the handler.
type RouterConfig struct {
	Auth        auth.Provider
	Idempotency *idempotency.Store // nil disables replay
	CORSOrigins []string
	Uploads     http.Handler // nil disables /uploads
	UploadsPath string
	Scenarios   bool
}

// NewRouter creates a router with all routes configured.
func NewRouter(h *Handler, cfg RouterConfig) *chi.Mux {
	r := chi.NewRouter()

	origins := cfg.CORSOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(h.Log))
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{
			"Accept", "Authorization", "Content-Type",
			auth.HeaderActorID, auth.HeaderActorRole, idempotency.HeaderKey,
		},
		ExposedHeaders:   []string{idempotency.HeaderReplay},
		AllowCredentials: true,
	}))

	if cfg.Uploads != nil {
		path := cfg.UploadsPath
		if path == "" {
			path = "/uploads"
		}
		r.Handle(path+"/*", cfg.Uploads)
	}

	r.Route("/api", func(r chi.Router) {
		provider := cfg.Auth
		if provider == nil {
			provider = auth.Header{}
		}
		r.Use(auth.Middleware(provider, h.writeError))
		if cfg.Idempotency != nil {
			r.Use(idempotency.Middleware(cfg.Idempotency, h.Log, h.writeError))
		}

		r.Route("/homes", func(r chi.Router) {
			r.Get("/", h.ListHomes)
			r.Post("/", h.CreateHome)
			r.Get("/owner/{ownerId}", h.ListOwnerHomes)
			r.Get("/{id}", h.GetHome)
			r.Put("/{id}", h.UpdateHome)
			r.Put("/{id}/hide", h.HideHome)
			r.Put("/{id}/unavailable", h.MarkHomeUnavailable)
			r.Post("/{id}/images", h.UploadHomeImages)
			r.Get("/{id}/reviews", h.ListHomeReviews)
			r.Get("/{id}/availability", h.CheckAvailability)
		})

		r.Route("/bookings", func(r chi.Router) {
			r.Get("/", h.ListBookings)
			r.Post("/", h.CreateBooking)
			r.Get("/home/{homeId}", h.GetHeldNights)
			r.Get("/owner/{ownerId}", h.ListOwnerBookings)
			r.Get("/{id}", h.GetBooking)
			r.Post("/{id}/complete", h.CompleteBooking)
			r.Put("/{id}/cancel", h.CancelBooking)
			r.Get("/{id}/ledger", h.GetBookingLedger)
		})

		r.Route("/ledger", func(r chi.Router) {
			r.Post("/entries", h.CreateLedgerEntry)
			r.Get("/admin/dashboard", h.GetAdminDashboard)
			r.Get("/admin/audit", h.GetAuditReport)
			r.Get("/owner/dashboard", h.GetOwnerDashboard)
		})

		// {id} is the booking for POST/GET and the review for DELETE.
		r.Route("/reviews", func(r chi.Router) {
			r.Post("/{id}", h.AddReview)
			r.Get("/{id}", h.ListBookingReviews)
			r.Delete("/{id}", h.DeleteReview)
		})

		r.Route("/wishlist", func(r chi.Router) {
			r.Get("/", h.GetWishlist)
			r.Post("/", h.AddToWishlist)
			r.Delete("/{homeId}", h.RemoveFromWishlist)
		})

		if cfg.Scenarios {
			r.Route("/scenarios", func(r chi.Router) {
				r.Get("/", h.ListScenarios)
				r.Get("/current", h.GetCurrentScenario)
				r.Post("/load", h.LoadScenario)
				r.Post("/reset", h.ResetData)
			})
		}
	})

	return r
}

// requestLogger writes one logrus line per request.
func requestLogger(log logrus.FieldLogger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			defer func() {
				entry := log.WithFields(logrus.Fields{
					"request_id": middleware.GetReqID(r.Context()),
					"method":     r.Method,
					"path":       r.URL.Path,
					"status":     ww.Status(),
					"bytes":      ww.BytesWritten(),
					"duration":   time.Since(start).String(),
					"remote":     r.RemoteAddr,
				})
				switch {
				case ww.Status() >= 500:
					entry.Error("request")
				case ww.Status() >= 400:
					entry.Warn("request")
				default:
					entry.Info("request")
				}
			}()
			next.ServeHTTP(ww, r)
		})
	}
}
