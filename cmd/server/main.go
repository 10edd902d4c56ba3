package main

import (
	"context"
	"fmt"
	"log"
	"net/http"

	"github.com/vedran77/relay/internal/config"
	"github.com/vedran77/relay/internal/database"
	"github.com/vedran77/relay/internal/membership"
	postgresrepo "github.com/vedran77/relay/internal/repository/postgres"
	"github.com/vedran77/relay/internal/router"
	"github.com/vedran77/relay/internal/service"
	"github.com/vedran77/relay/internal/session"
	"github.com/vedran77/relay/internal/transport/http/handlers"
	"github.com/vedran77/relay/internal/transport/http/middleware"
	"github.com/vedran77/relay/internal/transport/ws"
)

func main() {
	cfg := config.Load()

	// Database
	pool, err := database.Connect(cfg)
	if err != nil {
		log.Fatal(err)
	}
	defer pool.Close()
	if err := database.Migrate(context.Background(), pool); err != nil {
		log.Fatal(err)
	}
	log.Println("Connected to database")

	// Repositories
	messageRepo := postgresrepo.NewMessageRepo(pool)
	membershipRepo := postgresrepo.NewMembershipRepo(pool)

	// Fan-out plumbing: membership index + session registry feed the router.
	index := membership.NewIndex(membershipRepo)
	registry := session.NewRegistry()
	eventRouter := router.New(index, registry)
	registry.OnPresence(eventRouter.PublishPresence)

	// Services
	messageService := service.NewMessageService(messageRepo, eventRouter)
	receiptService := service.NewReceiptService(messageRepo, eventRouter)
	typingService := service.NewTypingService(eventRouter)

	// Handlers
	messageHandler := handlers.NewMessageHandler(messageService)
	receiptHandler := handlers.NewReceiptHandler(receiptService)
	presenceHandler := handlers.NewPresenceHandler(registry)
	membershipHandler := handlers.NewMembershipHandler(index)

	// Auth middleware
	auth := middleware.Auth(cfg.JWTSecret)

	// Routes
	mux := http.NewServeMux()

	// Public
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status": "ok"}`))
	})

	// Protected - Messages
	mux.Handle("POST /api/v1/conversations/{id}/messages", auth(http.HandlerFunc(messageHandler.Create)))
	mux.Handle("GET /api/v1/conversations/{id}/messages", auth(http.HandlerFunc(messageHandler.List)))
	mux.Handle("GET /api/v1/messages/{id}", auth(http.HandlerFunc(messageHandler.Get)))
	mux.Handle("PUT /api/v1/messages/{id}", auth(http.HandlerFunc(messageHandler.Edit)))
	mux.Handle("DELETE /api/v1/messages/{id}", auth(http.HandlerFunc(messageHandler.Delete)))

	// Protected - Reactions
	mux.Handle("PUT /api/v1/messages/{id}/reaction", auth(http.HandlerFunc(messageHandler.SetReaction)))
	mux.Handle("DELETE /api/v1/messages/{id}/reaction", auth(http.HandlerFunc(messageHandler.ClearReaction)))

	// Protected - Receipts and presence
	mux.Handle("POST /api/v1/conversations/{id}/delivered", auth(http.HandlerFunc(receiptHandler.AcknowledgeDelivered)))
	mux.Handle("POST /api/v1/conversations/{id}/read", auth(http.HandlerFunc(receiptHandler.AcknowledgeRead)))
	mux.Handle("GET /api/v1/users/{id}/presence", auth(http.HandlerFunc(presenceHandler.Get)))

	// Membership service push notifications
	mux.HandleFunc("POST /internal/v1/conversations/{id}/membership-changed", membershipHandler.Changed)

	// WebSocket
	mux.HandleFunc("GET /ws", ws.ServeWS(registry, receiptService, typingService, cfg.JWTSecret))

	// Start server with CORS
	addr := fmt.Sprintf(":%s", cfg.ServerPort)
	log.Printf("Starting server on %s", addr)
	log.Fatal(http.ListenAndServe(addr, middleware.CORS(mux)))
}
