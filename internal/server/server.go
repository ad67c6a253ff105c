// internal/server/server.go
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"nutrimood/internal/catalog"
	"nutrimood/internal/chat"
	"nutrimood/internal/gateway"
	"nutrimood/internal/matching"
	"nutrimood/internal/models"
	"nutrimood/internal/observability"
	"nutrimood/internal/session"
)

type Config struct {
	Host           string
	Port           int
	AllowedOrigins []string
	DefaultTopK    int
}

// Analytics reads back recorded exchanges and collects ratings.
type Analytics interface {
	ListConversations(ctx context.Context, sessionID string, limit int) ([]models.ConversationRecord, error)
	ListUserConversations(ctx context.Context, userID string, limit int) ([]models.ConversationRecord, error)
	SessionAnalytics(ctx context.Context, sessionID string) (*models.SessionAnalytics, error)
	RecordFeedback(ctx context.Context, fb models.Feedback) (*models.Feedback, error)
	FeedbackStats(ctx context.Context, userID string) (models.FeedbackStats, error)
}

// Deps are the components the HTTP surface dispatches to. Analytics may be nil.
type Deps struct {
	Catalogs  *catalog.Store
	Engine    *matching.Engine
	Chat      *chat.Service
	Sessions  session.Store
	Gateway   *gateway.Gateway
	Analytics Analytics
	Backend   string
}

type NutriMoodServer struct {
	httpServer *http.Server
	router     chi.Router
	deps       Deps
	config     *Config
}

func NewNutriMoodServer(cfg *Config, deps Deps) *NutriMoodServer {
	if cfg.DefaultTopK <= 0 {
		cfg.DefaultTopK = 5
	}
	s := &NutriMoodServer{
		deps:   deps,
		config: cfg,
	}
	s.router = s.routes()

	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)
	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

func (s *NutriMoodServer) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(requestLogger)

	origins := s.config.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		ExposedHeaders: []string{"X-Request-ID"},
		MaxAge:         300,
	}))

	r.Get("/healthz", s.handleHealth)

	r.Post("/chat", s.handleChat)
	r.Get("/session/{id}", s.handleGetSession)
	r.Delete("/session/{id}", s.handleDeleteSession)
	r.Post("/recommend", s.handleRecommend)

	r.Get("/foods", s.handleListFoods)
	r.Get("/foods/{id}", s.handleGetFood)
	r.Get("/categories", s.handleCategories)
	r.Get("/statistics", s.handleStatistics)
	r.Post("/admin/reload", s.handleReload)

	if s.deps.Analytics != nil {
		r.Route("/analytics", func(r chi.Router) {
			r.Get("/conversations/{session_id}", s.handleConversations)
			r.Get("/session/{session_id}", s.handleSessionAnalytics)
			r.Get("/user/{user_id}/conversations", s.handleUserConversations)
			r.Get("/feedback/stats", s.handleFeedbackStats)
		})
		r.Post("/feedback", s.handleFeedback)
	}

	r.Route("/mcp", func(r chi.Router) {
		r.Post("/", s.handleMCP)
		r.Get("/info", s.handleMCPInfo)
		r.Get("/tools", s.handleListTools)
		r.Post("/tools/{name}", s.handleCallTool)
		r.Get("/resources", s.handleListResources)
		r.Get("/resources/{name}", s.handleReadResource)
		r.Get("/prompts", s.handleListPrompts)
		r.Post("/prompts/{name}", s.handleGetPrompt)
	})

	return r
}

// Handler exposes the router, mainly for tests.
func (s *NutriMoodServer) Handler() http.Handler {
	return s.router
}

func (s *NutriMoodServer) Start(ctx context.Context) error {
	observability.L().Info("starting nutrimood server", zap.String("addr", s.httpServer.Addr))
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *NutriMoodServer) Stop(ctx context.Context) error {
	if s.httpServer != nil {
		return s.httpServer.Shutdown(ctx)
	}
	return nil
}

func (s *NutriMoodServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := map[string]any{
		"status":  "ok",
		"backend": s.deps.Backend,
	}
	if n, err := s.deps.Sessions.Count(r.Context()); err == nil {
		resp["active_sessions"] = n
	}

	cat, err := s.deps.Catalogs.Current()
	if err != nil {
		resp["status"] = "degraded"
		resp["catalog_loaded"] = false
		writeJSON(w, http.StatusServiceUnavailable, resp)
		return
	}
	resp["catalog_loaded"] = true
	resp["items"] = cat.Len()
	resp["catalog_loaded_at"] = cat.LoadedAt()
	writeJSON(w, http.StatusOK, resp)
}
