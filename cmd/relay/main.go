package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/mohamedkhairy/chat-relay/internal/config"
	"github.com/mohamedkhairy/chat-relay/internal/relay"
	"github.com/mohamedkhairy/chat-relay/internal/storage"
	"github.com/mohamedkhairy/chat-relay/pkg/logger"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	if err := logger.Init(cfg.LogLevel, cfg.Environment); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Info("Starting relay service",
		logger.Int("port", cfg.Relay.Port),
		logger.Int("max_connections", cfg.Relay.MaxConnections),
	)

	// Initialize durable store
	store, err := storage.NewPostgresStore(cfg.Database)
	if err != nil {
		logger.Fatal("Failed to initialize PostgreSQL store",
			logger.ErrorField(err),
		)
	}
	defer store.Close()

	// Initialize optional presence mirror
	var presence storage.PresenceStore
	if cfg.Redis.Enabled() {
		redisPresence, err := storage.NewRedisPresence(cfg.Redis)
		if err != nil {
			logger.Fatal("Failed to initialize Redis presence mirror",
				logger.ErrorField(err),
			)
		}
		defer redisPresence.Close()
		presence = redisPresence
	} else {
		logger.Info("No Redis configured, running without presence mirror")
	}

	// Initialize authenticator and hub
	auth := relay.NewAuthenticator(cfg.Relay.JWTSecret, store)
	hub := relay.NewHub(cfg.Relay, store, store, presence)

	if err := hub.Start(); err != nil {
		logger.Fatal("Failed to start relay hub",
			logger.ErrorField(err),
		)
	}
	defer hub.Stop()

	upgrader := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			if len(cfg.Relay.AllowedOrigins) == 0 {
				return true
			}
			origin := r.Header.Get("Origin")
			for _, allowed := range cfg.Relay.AllowedOrigins {
				if origin == allowed {
					return true
				}
			}
			return false
		},
	}

	// Set up HTTP server
	router := mux.NewRouter()

	// WebSocket endpoint
	router.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		handleWebSocket(hub, auth, upgrader, w, r, cfg.Relay)
	})

	// Health check endpoints
	router.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(map[string]string{"status": "healthy"})
	})

	router.HandleFunc("/ready", func(w http.ResponseWriter, r *http.Request) {
		if hub.ActiveConnections() >= cfg.Relay.MaxConnections {
			w.WriteHeader(http.StatusServiceUnavailable)
			json.NewEncoder(w).Encode(map[string]string{"status": "at capacity"})
			return
		}
		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(map[string]string{"status": "ready"})
	})

	router.HandleFunc("/live", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(map[string]string{"status": "alive"})
	})

	// Stats endpoint
	router.HandleFunc("/stats", func(w http.ResponseWriter, r *http.Request) {
		stats := hub.GetStats()
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(stats)
	})

	// Metrics endpoint
	router.Handle("/metrics", promhttp.Handler())

	// Start HTTP server
	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Relay.Port),
		Handler: router,
	}

	go func() {
		logger.Info("Starting HTTP server",
			logger.String("addr", server.Addr),
		)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Failed to start HTTP server",
				logger.ErrorField(err),
			)
		}
	}()

	// Graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	<-sigChan
	logger.Info("Shutting down relay service")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		logger.Error("Error shutting down HTTP server",
			logger.ErrorField(err),
		)
	}

	logger.Info("Relay service stopped")
}

// handleWebSocket authenticates the handshake and hands the connection to the hub
func handleWebSocket(hub *relay.Hub, auth *relay.Authenticator, upgrader websocket.Upgrader, w http.ResponseWriter, r *http.Request, cfg config.RelayConfig) {
	if hub.ActiveConnections() >= cfg.MaxConnections {
		logger.Warn("Max connections reached, rejecting new connection",
			logger.Int("max_connections", cfg.MaxConnections),
		)
		http.Error(w, "Max connections reached", http.StatusServiceUnavailable)
		return
	}

	// Authenticate before upgrading; a failed handshake never reaches the hub
	token := relay.ExtractToken(r)
	user, err := auth.Authenticate(r.Context(), token)
	if err != nil {
		logger.Warn("Rejecting connection, authentication failed",
			logger.ErrorField(err),
			logger.String("remote_addr", r.RemoteAddr),
		)
		http.Error(w, "Authentication error", http.StatusUnauthorized)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Error("Failed to upgrade connection",
			logger.ErrorField(err),
		)
		return
	}

	connectionID := uuid.New().String()
	wsConn := relay.NewConnection(connectionID, user, conn, cfg.SendBufferSize)
	hub.Register(wsConn)

	logger.Info("WebSocket connection established",
		logger.String("connection_id", connectionID),
		logger.String("user_id", user.ID),
		logger.String("remote_addr", r.RemoteAddr),
	)
}
