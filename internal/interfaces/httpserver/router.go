package httpserver

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/relaydesk/relaydesk/internal/configs"
	"github.com/relaydesk/relaydesk/internal/interfaces/httpserver/handlers"
	"github.com/relaydesk/relaydesk/internal/interfaces/httpserver/middleware"
	"github.com/relaydesk/relaydesk/internal/metrics"
)

// NewRouter assembles the HTTP surface. Middleware order matters: the tenant
// scope must be in context before handlers run, and the timeout bounds
// everything below it.
func NewRouter(cfg *configs.Config, chat *handlers.ChatHandler, audit *handlers.AuditHandler) http.Handler {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	r.Use(middleware.RequestLogger())
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: cfg.CORSAllowedOrigins,
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", "X-Tenant-ID", "X-Request-ID"},
		ExposedHeaders: []string{"X-Request-ID"},
		MaxAge:         300,
	}))
	r.Use(middleware.AuthMiddleware(cfg.APIKey))
	r.Use(middleware.TenantMiddleware())
	r.Use(middleware.MetricsMiddleware())
	r.Use(middleware.TimeoutMiddleware(cfg.RequestTimeout))

	r.Get("/healthz", handlers.HandleHealth)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Post("/chat", chat.HandleChat)
		r.Get("/conversations/{conversationID}/messages", audit.HandleListMessages)
		r.Get("/runs", audit.HandleListRuns)
		r.Get("/runs/{runID}", audit.HandleGetRun)
		r.Get("/tickets", audit.HandleListTickets)
		r.Get("/tickets/{ticketID}", audit.HandleGetTicket)
		r.Get("/kb/documents", audit.HandleListDocuments)
	})

	return r
}
