package services

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"

	"github.com/rhetorio/backend/repository"
	ws "github.com/rhetorio/backend/websocket"
	"gorm.io/gorm"
)

// Server holds all server dependencies
type Server struct {
	config           *Config
	repo             *repository.GORMRepository
	ledger           *repository.LedgerRepository
	rawDB            *gorm.DB
	debaterService   *DebaterService
	scoringEngine    *ScoringEngine
	stateService     *SessionStateService
	eventProcessor   *DebateEventProcessor
	authService      *AuthService
	authEndpoints    *AuthEndpoints
	sessionEndpoints *SessionEndpoints
	topicEndpoints   *TopicEndpoints
	wsHub            *ws.Hub
	upgrader         websocket.Upgrader
}

// NewServer creates a new server instance
func NewServer(config *Config) *Server {
	return &Server{
		config: config,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return CheckOrigin(r, config.WebSocket.AllowedOrigins)
			},
		},
	}
}

// SetDatabase sets the database connection
func (s *Server) SetDatabase(repo *repository.GORMRepository, rawDB *gorm.DB) {
	s.repo = repo
	s.rawDB = rawDB
	s.ledger = repository.NewLedgerRepository(rawDB)
}

// InitializeServices wires every service the routes depend on.
func (s *Server) InitializeServices() error {
	if s.config.AI.GeminiAPIKey != "" {
		s.debaterService = NewDebaterService(
			s.config.AI.GeminiAPIKey,
			time.Duration(s.config.Debate.GenerationTimeoutSecs)*time.Second,
		)
		slog.Info("Debater service initialized")
	} else {
		slog.Warn("GEMINI_API_KEY not configured, AI turns will be unavailable")
	}

	if s.repo != nil {
		var generator textGenerator
		if s.debaterService != nil {
			generator = s.debaterService
		} else {
			generator = unavailableGenerator{}
		}
		s.scoringEngine = NewScoringEngine(s.repo, s.ledger, generator)
		s.stateService = NewSessionStateService(s.repo, s.ledger, s.scoringEngine)
		slog.Info("Session state service initialized")
	}

	if s.config.JWT.Secret != "" && s.repo != nil {
		s.authService = NewAuthService(s.repo, s.config.JWT.Secret)
		s.authEndpoints = NewAuthEndpoints(s.authService)
		s.sessionEndpoints = NewSessionEndpoints(s.repo, s.ledger, s.stateService, s.scoringEngine, s.config.Debate.DefaultTimeLimitSeconds)
		s.topicEndpoints = NewTopicEndpoints(s.repo)
		slog.Info("Authentication service initialized")
	}

	s.wsHub = ws.NewHub()
	go s.wsHub.Run()

	if s.repo != nil {
		s.eventProcessor = NewDebateEventProcessor(s.wsHub, s.repo, s.ledger, s.stateService, s.debaterService)
		slog.Info("Debate event processor initialized")
	}

	return nil
}

// SetupRoutes configures all HTTP routes
func (s *Server) SetupRoutes() *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Get("/health", s.healthHandler)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/", s.apiV1Handler)
		r.Get("/schema", s.schemaHandler)

		// WebSocket route (protected)
		if s.authService != nil {
			r.Group(func(r chi.Router) {
				r.Use(s.authService.Middleware)
				r.Get("/ws", s.websocketHandlerFunc)
			})
		}

		if s.authEndpoints != nil {
			r.Route("/auth", func(r chi.Router) {
				r.Post("/login", s.authEndpoints.LoginHandler)
				r.Post("/signup", s.authEndpoints.SignupHandler)
				r.Post("/refresh", s.authEndpoints.RefreshHandler)
				r.Post("/logout", s.authEndpoints.LogoutHandler)

				r.Group(func(r chi.Router) {
					r.Use(s.authService.Middleware)
					r.Get("/me", s.authEndpoints.MeHandler)
				})
			})
		}

		if s.topicEndpoints != nil && s.authService != nil {
			r.Group(func(r chi.Router) {
				r.Use(s.authService.Middleware)
				r.Get("/topics", s.topicEndpoints.ListTopicsHandler)
				r.Get("/topics/{topicID}", s.topicEndpoints.GetTopicHandler)
				r.Get("/leaderboard", s.topicEndpoints.LeaderboardHandler)
			})
		}

		if s.sessionEndpoints != nil && s.authService != nil {
			r.Group(func(r chi.Router) {
				r.Use(s.authService.Middleware)
				r.Route("/sessions", func(r chi.Router) {
					r.Post("/", s.sessionEndpoints.CreateSessionHandler)
					r.Get("/", s.sessionEndpoints.ListSessionsHandler)

					r.Route("/{sessionID}", func(r chi.Router) {
						r.Get("/", s.sessionEndpoints.GetSessionHandler)
						r.Post("/pause", s.sessionEndpoints.PauseSessionHandler)
						r.Post("/resume", s.sessionEndpoints.ResumeSessionHandler)
						r.Post("/end", s.sessionEndpoints.EndSessionHandler)
						r.Get("/analysis", s.sessionEndpoints.GetAnalysisHandler)

						r.Route("/messages", func(r chi.Router) {
							r.Get("/", s.sessionEndpoints.ListMessagesHandler)
							r.Post("/", s.sessionEndpoints.SendMessageHandler)
							r.Get("/search", s.sessionEndpoints.SearchMessagesHandler)
							r.Post("/{messageID}/react", s.sessionEndpoints.ReactHandler)
							r.Delete("/{messageID}/react", s.sessionEndpoints.RemoveReactionHandler)
							r.Post("/{messageID}/flag", s.sessionEndpoints.FlagMessageHandler)
						})
					})
				})
			})
		}
	})

	return r
}

// Start starts the HTTP server
func (s *Server) Start() {
	port := s.config.Server.Port
	if port == "" {
		port = "8080"
	}

	srv := &http.Server{
		Addr:    ":" + port,
		Handler: s.SetupRoutes(),
	}

	// Graceful shutdown
	go func() {
		slog.Info("Starting server", "port", port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("Server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("Shutting down server...")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		slog.Error("Server forced to shutdown", "error", err)
	}

	slog.Info("Server exited")
}

// CheckOrigin validates the origin of WebSocket connections to prevent CSRF
// attacks. An empty allowlist denies everything.
func CheckOrigin(r *http.Request, allowedOriginsStr string) bool {
	origin := r.Header.Get("Origin")

	if allowedOriginsStr == "" {
		slog.Warn("WebSocket connection rejected: no allowed origins configured", "origin", origin)
		return false
	}

	for _, allowed := range strings.Split(allowedOriginsStr, ",") {
		if strings.TrimSpace(allowed) == origin {
			return true
		}
	}

	slog.Warn("WebSocket connection rejected: origin not allowed", "origin", origin, "allowed_origins", allowedOriginsStr)
	return false
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	status := "ok"
	dbStatus := "not configured"

	if s.rawDB != nil {
		if sqlDB, err := s.rawDB.DB(); err != nil || sqlDB.Ping() != nil {
			dbStatus = "down"
			status = "degraded"
		} else {
			dbStatus = "up"
		}
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"status":"` + status + `","database":"` + dbStatus + `"}`))
}

func (s *Server) apiV1Handler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"message":"API v1","version":"1.0.0"}`))
}

// schemaHandler publishes the request validation rules so clients can mirror
// them.
func (s *Server) schemaHandler(w http.ResponseWriter, r *http.Request) {
	WriteData(w, http.StatusOK, RequestSchemas)
}

func (s *Server) websocketHandlerFunc(w http.ResponseWriter, r *http.Request) {
	user, ok := UserFromContext(r.Context())
	if !ok {
		WriteError(w, NewUnauthorizedError("authentication required"))
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Error("WebSocket upgrade failed", "error", err)
		return
	}

	slog.Info("WebSocket connection established", "user_id", user.ID)

	client := ws.NewClient(s.wsHub, conn, user.ID)
	if s.eventProcessor != nil {
		client.EventHandler = s.eventProcessor.HandleEvent
	}

	go client.WritePump()
	client.ReadPump()

	// ReadPump returns when the connection drops; let the session know.
	if client.SessionID != "" {
		s.wsHub.Publish(client.SessionID, EventUserLeft, map[string]string{"user_id": client.UserID})
	}
}

// unavailableGenerator backs the scoring engine when no API key is
// configured, so completed sessions still get midpoint metrics.
type unavailableGenerator struct{}

func (unavailableGenerator) GenerateText(ctx context.Context, prompt string) (string, error) {
	return "", NewGenerationUnavailableError(nil)
}
