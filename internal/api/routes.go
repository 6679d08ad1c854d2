package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/foundercrm/commitment-engine/internal/auth"
	"github.com/foundercrm/commitment-engine/internal/pkg/httputil"
)

// SetupRoutes configures the router: public health/webhook/auth endpoints
// plus the authenticated /api group.
func SetupRoutes(h *Handlers, authManager *auth.Manager) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)
	r.Use(middleware.RequestID)

	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			w.Header().Set("X-Server-Identity", "commitment-engine-v1.0")
			next.ServeHTTP(w, req)
		})
	})

	// CORS with credentials so the session cookie travels.
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"https://app.foundercrm.io", "http://localhost:5173", "http://localhost:8080"},
		AllowedMethods:   []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-User-ID", "X-Webhook-Secret"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/health", h.HealthCheck)
	r.Post("/webhook", h.Webhook)

	if authManager != nil {
		r.Get("/auth/login", authManager.HandleLogin)
		r.Get("/auth/callback", authManager.HandleCallback)
		r.Get("/auth/logout", authManager.HandleLogout)
		r.Get("/auth/user", authManager.HandleUserInfo)
	}

	r.Route("/api", func(r chi.Router) {
		r.Use(h.requireIdentity)

		r.Get("/check-connection", h.CheckConnection)
		r.Post("/disconnect", h.Disconnect)
		r.Get("/sync-status", h.SyncStatus)

		r.Route("/commitments", func(r chi.Router) {
			r.Get("/", h.ListCommitments)
			r.Get("/today-snapshot", h.TodaySnapshot)
			r.Get("/presets", h.Presets)
			r.Get("/completed", h.ListCompleted)
			r.Get("/deleted", h.ListDeleted)
			r.Patch("/{id}/complete", h.Complete)
			r.Delete("/{id}", h.Delete)
			r.Post("/restore/{id}", h.Restore)
		})

		r.Route("/credits", func(r chi.Router) {
			r.Get("/status", h.CreditsStatus)
			r.Post("/reset", h.CreditsReset)
		})

		r.Post("/admin/sync-unlock", h.SyncUnlock)
	})

	return r
}

// requireIdentity resolves the acting user and stashes it on the request
// context. Unresolvable requests get the standard 401 envelope.
func (h *Handlers) requireIdentity(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, err := h.identities.Identity(r)
		if err != nil {
			httputil.Unauthorized(w, "unauthorized")
			return
		}
		next.ServeHTTP(w, r.WithContext(withIdentity(r.Context(), id)))
	})
}
