package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/jonboulle/clockwork"
	"github.com/notafacil/nfse-agent/internal/api/handler"
	customMiddleware "github.com/notafacil/nfse-agent/internal/api/middleware"
	"github.com/notafacil/nfse-agent/internal/config"
	"github.com/notafacil/nfse-agent/internal/extract/gemini"
	"github.com/notafacil/nfse-agent/internal/gateway/tecnospeed"
	"github.com/notafacil/nfse-agent/internal/lookup"
	"github.com/notafacil/nfse-agent/internal/repository/postgres"
	"github.com/notafacil/nfse-agent/internal/repository/redis"
	"github.com/notafacil/nfse-agent/internal/security"
	"github.com/notafacil/nfse-agent/internal/service"
)

// NewRouter creates and configures the HTTP router
func NewRouter(cfg *config.Config, db *postgres.DB, redisClient *redis.Client) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(customMiddleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	// CORS
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	clock := clockwork.NewRealClock()

	// Initialize security components
	jwtManager := security.NewJWTManager(cfg.Auth.JWTSecret, cfg.Auth.AccessTokenTTL)

	// Initialize repositories
	snapshotRepo := postgres.NewSnapshotRepository(db)
	emissionRepo := postgres.NewEmissionRepository(db)
	counterpartyRepo := postgres.NewCounterpartyRepository(db)
	documentRepo := postgres.NewDocumentRepository(db)
	issuerDirectory := postgres.NewIssuerDirectory(db)
	sessionStore := redis.NewSessionStore(redisClient)

	// Initialize external clients
	registryClient := lookup.NewRegistryClient(cfg.Registry)
	gatewayClient := tecnospeed.NewClient(cfg.Gateway)
	extractor := gemini.NewProvider(cfg.Extractor.GeminiAPIKey, cfg.Extractor.Model)

	// Initialize services
	store := service.NewStore(sessionStore, snapshotRepo, clock, cfg.Session.TTLSeconds)
	emitter := service.NewEmitter(counterpartyRepo, registryClient, emissionRepo, documentRepo, gatewayClient, clock)
	processor := service.NewProcessor(issuerDirectory, store, extractor, emitter, clock, cfg.Session)
	reconciler := service.NewReconciler(emissionRepo, documentRepo, store, clock)

	// Initialize handlers
	messageHandler := handler.NewMessageHandler(processor)
	webhookHandler := handler.NewWebhookHandler(reconciler)
	sessionHandler := handler.NewSessionHandler(snapshotRepo, emissionRepo)

	// Auth middleware
	authMiddleware := customMiddleware.NewAuthMiddleware(jwtManager)

	r.Route("/api/v1", func(r chi.Router) {
		// Health check
		r.Get("/health", handler.HealthCheck)
		r.Get("/ready", handler.ReadyCheck(db))

		// Channel adapter and gateway callbacks (public)
		r.Post("/messages", messageHandler.Receive)
		r.Post("/webhooks/nfse", webhookHandler.Receive)

		// Reporting console (protected)
		r.Group(func(r chi.Router) {
			r.Use(authMiddleware.Authenticate)

			r.Route("/sessions", func(r chi.Router) {
				r.Get("/", sessionHandler.List)
				r.Get("/{sessionID}", sessionHandler.Get)
				r.Get("/{sessionID}/messages", sessionHandler.Messages)
			})

			r.Get("/emissions/{correlationID}", sessionHandler.GetEmission)
		})
	})

	return r
}
