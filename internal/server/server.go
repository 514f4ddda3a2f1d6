package server

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	_ "github.com/lib/pq"

	"studenthub-wallet/internal/auth"
	"studenthub-wallet/internal/config"
	"studenthub-wallet/internal/domain"
	"studenthub-wallet/internal/handler"
	"studenthub-wallet/internal/notify"
	"studenthub-wallet/internal/repository"
	"studenthub-wallet/internal/repository/memory"
	"studenthub-wallet/internal/service"
	"studenthub-wallet/migrations"
)

// Server represents the HTTP server
type Server struct {
	router     *mux.Router
	server     *http.Server
	db         *sql.DB
	dispatcher *notify.Dispatcher
	logger     *slog.Logger
	port       string
}

// Dependencies are the collaborators the router is built from.
type Dependencies struct {
	Store         domain.Store
	Events        domain.EventPublisher
	Authenticator *auth.Authenticator
	Withdrawal    service.WithdrawalConfig
	Logger        *slog.Logger
}

// NewServer creates a new server instance
func NewServer(cfg *config.Config, logger *slog.Logger) (*Server, error) {
	coinValue, err := cfg.CoinValue()
	if err != nil {
		return nil, err
	}

	store, db, err := openStore(cfg, logger)
	if err != nil {
		return nil, err
	}

	dispatcher := notify.NewDispatcher(store.Notification(), cfg.Notifications.Limit, cfg.Notifications.BufferSize, logger)

	router := NewRouter(Dependencies{
		Store:         store,
		Events:        dispatcher,
		Authenticator: auth.NewAuthenticator(cfg.Auth.JWTSecret, cfg.Auth.JWTIssuer),
		Withdrawal: service.WithdrawalConfig{
			MinimumWithdrawal: cfg.Wallet.MinimumWithdrawal,
			CoinValue:         coinValue,
			PayoutCurrency:    cfg.Wallet.PayoutCurrency,
		},
		Logger: logger,
	})

	return &Server{
		router:     router,
		db:         db,
		dispatcher: dispatcher,
		logger:     logger,
	}, nil
}

func openStore(cfg *config.Config, logger *slog.Logger) (domain.Store, *sql.DB, error) {
	if cfg.StorageDriver == config.StorageDriverMemory {
		logger.Warn("Using in-memory storage, data will not survive a restart")
		return memory.NewStore(logger), nil, nil
	}

	db, err := sql.Open("postgres", cfg.GetDBConnectionString())
	if err != nil {
		return nil, nil, err
	}

	lifetime, err := time.ParseDuration(cfg.DBConnMaxLifetime)
	if err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("invalid db_conn_max_lifetime %q: %w", cfg.DBConnMaxLifetime, err)
	}
	db.SetMaxOpenConns(cfg.DBMaxOpenConns)
	db.SetMaxIdleConns(cfg.DBMaxIdleConns)
	db.SetConnMaxLifetime(lifetime)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, nil, err
	}
	logger.Info("Successfully connected to database")

	if cfg.AutoMigrate {
		if err := migrations.Apply(ctx, db, logger); err != nil {
			db.Close()
			return nil, nil, err
		}
	}

	return repository.NewStore(db, logger), db, nil
}

// NewRouter wires services and handlers onto a router.
func NewRouter(deps Dependencies) *mux.Router {
	logger := deps.Logger

	accountService := service.NewAccountService(deps.Store, deps.Events, logger)
	withdrawalService := service.NewWithdrawalService(deps.Store, accountService, deps.Events, deps.Withdrawal, logger)
	adminService := service.NewAdminService(withdrawalService, accountService, logger)
	notificationService := service.NewNotificationService(deps.Store, logger)

	accountHandler := handler.NewAccountHandler(accountService)
	withdrawalHandler := handler.NewWithdrawalHandler(withdrawalService)
	adminHandler := handler.NewAdminHandler(adminService, withdrawalService)
	notificationHandler := handler.NewNotificationHandler(notificationService)

	router := mux.NewRouter()
	router.Use(loggingMiddleware(logger))

	router.HandleFunc("/health", healthHandler(deps.Store)).Methods("GET")

	authenticated := deps.Authenticator.Middleware(handler.WriteError)
	privileged := auth.RequireRole(handler.WriteError, auth.RoleAdmin, auth.RoleSystem)

	// Account routes
	accounts := router.PathPrefix("/accounts").Subrouter()
	accounts.Use(authenticated)
	accounts.Handle("", privileged(http.HandlerFunc(accountHandler.CreateAccount))).Methods("POST")
	accounts.HandleFunc("/{account_id}", accountHandler.GetAccount).Methods("GET")
	accounts.HandleFunc("/{account_id}/ledger", accountHandler.GetLedger).Methods("GET")
	accounts.Handle("/{account_id}/credits", privileged(http.HandlerFunc(accountHandler.Credit))).Methods("POST")
	accounts.HandleFunc("/{account_id}/withdrawals", withdrawalHandler.Submit).Methods("POST")
	accounts.HandleFunc("/{account_id}/withdrawals", withdrawalHandler.ListForAccount).Methods("GET")
	accounts.HandleFunc("/{account_id}/notifications", notificationHandler.List).Methods("GET")
	accounts.HandleFunc("/{account_id}/notifications/read", notificationHandler.MarkRead).Methods("POST")

	// Admin routes
	admin := router.PathPrefix("/admin").Subrouter()
	admin.Use(authenticated, auth.RequireRole(handler.WriteError, auth.RoleAdmin))
	admin.HandleFunc("/withdrawals", adminHandler.ListWithdrawals).Methods("GET")
	admin.HandleFunc("/withdrawals/{request_id}/approve", adminHandler.Approve).Methods("POST")
	admin.HandleFunc("/withdrawals/{request_id}/reject", adminHandler.Reject).Methods("POST")
	admin.HandleFunc("/withdrawals/{request_id}/paid", adminHandler.MarkPaid).Methods("POST")
	admin.HandleFunc("/accounts/{account_id}/reconcile", adminHandler.Reconcile).Methods("POST")
	admin.HandleFunc("/accounts/{account_id}/refunds", adminHandler.Refund).Methods("POST")

	return router
}

func healthHandler(store domain.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")

		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		if err := store.Account().Ping(ctx); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			json.NewEncoder(w).Encode(map[string]string{"status": "unhealthy", "error": "database unavailable"})
			return
		}

		json.NewEncoder(w).Encode(map[string]string{
			"status":    "healthy",
			"timestamp": time.Now().UTC().Format(time.RFC3339),
		})
	}
}

// loggingMiddleware adds request logging
func loggingMiddleware(logger *slog.Logger) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			ww := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

			next.ServeHTTP(ww, r)

			logger.Info("request completed",
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.statusCode,
				"duration", time.Since(start),
				"user_agent", r.UserAgent(),
			)
		})
	}
}

// responseWriter wraps http.ResponseWriter to capture status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// Start starts the HTTP server on the specified port
func (s *Server) Start(port string) (string, error) {
	listener, err := net.Listen("tcp", ":"+port)
	if err != nil {
		return "", err
	}

	addr := listener.Addr().(*net.TCPAddr)
	s.port = strconv.Itoa(addr.Port)

	s.server = &http.Server{
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	s.logger.Info("Starting server", "port", s.port)

	go func() {
		if err := s.server.Serve(listener); err != nil && err != http.ErrServerClosed {
			s.logger.Error("Server failed", "error", err)
		}
	}()

	return s.port, nil
}

// Stop drains HTTP traffic, flushes queued notifications and closes the database.
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info("Shutting down server")

	var err error
	if s.server != nil {
		err = s.server.Shutdown(ctx)
	}

	if s.dispatcher != nil {
		s.dispatcher.Close()
	}

	if s.db != nil {
		s.db.Close()
	}
	return err
}

// GetPort returns the port the server is listening on
func (s *Server) GetPort() string {
	return s.port
}

// GetBaseURL returns the base URL for the server
func (s *Server) GetBaseURL() string {
	return "http://localhost:" + s.port
}

// GetRouter returns the router for testing purposes
func (s *Server) GetRouter() *mux.Router {
	return s.router
}

// StartServer starts the server with the given configuration
func StartServer(cfg *config.Config) (*Server, string, error) {
	var logger *slog.Logger
	if cfg.ServerPort == "0" {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	} else {
		logger = slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.SlogLevel()}))
	}

	server, err := NewServer(cfg, logger)
	if err != nil {
		return nil, "", err
	}

	port, err := server.Start(cfg.ServerPort)
	if err != nil {
		server.Stop(context.Background())
		return nil, "", err
	}

	return server, port, nil
}
