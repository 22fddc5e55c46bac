// File: cmd/server/main.go
package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/gorilla/mux"
	"gorm.io/gorm"

	"github.com/evanmb/go-converse/internal/config"
	"github.com/evanmb/go-converse/internal/domain"
	"github.com/evanmb/go-converse/internal/handlers"
	"github.com/evanmb/go-converse/internal/middleware"
	"github.com/evanmb/go-converse/internal/ratelimit"
	"github.com/evanmb/go-converse/internal/repository/eventlog"
	"github.com/evanmb/go-converse/internal/services"
	"github.com/evanmb/go-converse/internal/services/ai"
	"github.com/evanmb/go-converse/internal/services/conversation"
	"github.com/evanmb/go-converse/internal/services/identity"
	"github.com/evanmb/go-converse/internal/services/stream"
)

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Origin, Content-Type, Accept, Authorization")
		w.Header().Set("Access-Control-Max-Age", "86400")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// newTransport picks the reply transport: the OpenAI-backed one when an API
// key is configured, otherwise the canned development transport.
func newTransport(cfg *config.Config, logger services.Logger) (stream.Transport, error) {
	aiConfig := ai.DefaultConfig()
	aiConfig.APIKey = cfg.OpenAIAPIKey
	aiConfig.BaseURL = cfg.OpenAIBaseURL
	aiConfig.Model = cfg.ChatModel
	aiConfig.ChunkDelay = time.Duration(cfg.StreamChunkDelayMS) * time.Millisecond

	if cfg.OpenAIAPIKey == "" {
		logger.Warn("no OPENAI_API_KEY set; using the canned development transport")
		return ai.NewCannedTransport(aiConfig, logger)
	}
	return ai.NewOpenAITransport(aiConfig, logger)
}

func main() {
	cfg := config.Load()
	logger := services.NewLogger("converse")

	db, err := gorm.Open(sqlite.Open(cfg.EventLogDB), &gorm.Config{})
	if err != nil {
		log.Fatalf("DB Error: %v", err)
	}
	if err := db.AutoMigrate(&domain.ClientEvent{}); err != nil {
		log.Fatalf("DB Migration Error: %v", err)
	}

	// --- Repositories ---
	eventRepo := eventlog.NewEventLogRepository(db)

	// --- Services ---
	transport, err := newTransport(cfg, logger)
	if err != nil {
		log.Fatalf("Failed to initialize transport: %v", err)
	}

	sessionSecret := cfg.SessionSecretKey
	if sessionSecret == "" {
		// Development fallback; production refuses to start without one.
		sessionSecret = "converse-dev-secret"
	}
	identityService, err := identity.NewService(sessionSecret, logger)
	if err != nil {
		log.Fatalf("Failed to initialize identity service: %v", err)
	}

	store := conversation.NewStore(logger)
	chatService, err := services.NewChatService(store, transport, logger)
	if err != nil {
		log.Fatalf("Failed to initialize chat service: %v", err)
	}

	// --- Handlers ---
	chatHandler, err := handlers.NewChatHandler(chatService, logger)
	if err != nil {
		log.Fatalf("Failed to initialize chat handler: %v", err)
	}
	identityHandler := handlers.NewIdentityHandler(identityService, logger)
	logHandler := handlers.NewLogHandler(eventRepo, logger)

	// --- Router Setup ---
	r := mux.NewRouter()
	r.Use(corsMiddleware)
	r.Use(middleware.RecoverPanic(logger))
	r.Use(middleware.Logging(logger))
	r.Use(middleware.WithIdentity(identityService))

	r.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	}).Methods("GET")

	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/state", chatHandler.GetState).Methods("GET")
	api.HandleFunc("/conversations", chatHandler.CreateConversation).Methods("POST")
	api.HandleFunc("/conversations/{id}/select", chatHandler.SelectConversation).Methods("POST")
	api.HandleFunc("/conversations/{id}", chatHandler.DeleteConversation).Methods("DELETE")
	api.HandleFunc("/conversations/{id}/messages", chatHandler.GetMessages).Methods("GET")
	api.HandleFunc("/me", identityHandler.Me).Methods("GET")
	api.HandleFunc("/logout", identityHandler.Logout).Methods("POST")
	api.HandleFunc("/log", logHandler.CreateEvent).Methods("POST")
	api.HandleFunc("/log", logHandler.RecentEvents).Methods("GET")

	streamLimiter := ratelimit.NewMemoryRateLimiter(ratelimit.DefaultStreamConfig())
	defer streamLimiter.Close()
	rateLimited := middleware.RateLimit(streamLimiter, logger)
	api.Handle("/stream", rateLimited(http.HandlerFunc(chatHandler.StreamResponse))).Methods("GET")

	// --- Server Configuration ---
	srv := &http.Server{
		Addr:    ":" + cfg.ServerPort,
		Handler: r,
	}

	logger.Info("server starting", "port", cfg.ServerPort, "environment", cfg.Environment)

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server startup failed: %v", err)
		}
	}()

	// --- Graceful Shutdown ---
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	logger.Info("shutting down")
	chatService.CancelActive()

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Fatalf("Server shutdown failed: %v", err)
	}
	logger.Info("server stopped")
}
