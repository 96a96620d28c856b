// Package server provides the HTTP REST API for the bullet optimizer.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/jonathan/bullet-optimizer/internal/config"
	"github.com/jonathan/bullet-optimizer/internal/db"
	"github.com/jonathan/bullet-optimizer/internal/llm"
	"github.com/jonathan/bullet-optimizer/internal/matching"
	"github.com/jonathan/bullet-optimizer/internal/qa"
	"github.com/jonathan/bullet-optimizer/internal/rewriting"
	"github.com/jonathan/bullet-optimizer/internal/scoring"
	"github.com/jonathan/bullet-optimizer/internal/server/middleware"
	"github.com/jonathan/bullet-optimizer/internal/server/ratelimit"
)

// anonymousUserID is the account used when authentication is disabled. The
// schema seeds this row.
var anonymousUserID = uuid.MustParse("00000000-0000-0000-0000-000000000001")

// Store is the subset of database operations the handlers call directly.
// *db.DB satisfies it; tests substitute an in-memory fake.
type Store interface {
	UserStore
	Ping(ctx context.Context) error
	StoreBullet(ctx context.Context, userID uuid.UUID, text, normalized string, embedding []float32) (*db.Bullet, bool, error)
	GetBullet(ctx context.Context, id uuid.UUID) (*db.Bullet, error)
	GetFacts(ctx context.Context, id uuid.UUID) (*db.FactRecord, error)
	UpdateFacts(ctx context.Context, id uuid.UUID, facts []byte) (*db.FactRecord, error)
	ConfirmFacts(ctx context.Context, id uuid.UUID) (bool, error)
	GetConfirmedFacts(ctx context.Context, bulletID uuid.UUID) ([]db.FactRecord, error)
	GetSession(ctx context.Context, id uuid.UUID) (*db.Session, error)
	UpdateSessionStatus(ctx context.Context, id uuid.UUID, status string) (bool, error)
}

// Matcher classifies incoming bullets against the stored bank.
type Matcher interface {
	Match(ctx context.Context, userID uuid.UUID, text string) (*matching.Result, error)
}

// SessionController drives the Q&A loop.
type SessionController interface {
	StartSession(ctx context.Context, userID uuid.UUID, bulletID *uuid.UUID, bulletText, jobDescription string) (*qa.StartResult, error)
	SubmitAnswers(ctx context.Context, sessionID uuid.UUID, answers []qa.Answer) (*qa.SubmitResult, error)
	GetState(ctx context.Context, sessionID uuid.UUID) (*qa.State, error)
	Abandon(ctx context.Context, sessionID uuid.UUID) error
}

// Rewriter rewrites bullets.
type Rewriter interface {
	RewriteBatch(ctx context.Context, bullets []string, roleCore string, terms []string) ([]string, error)
	RewriteWithFacts(ctx context.Context, bulletText, jobDescription string, facts []byte, capOverride int) (string, error)
}

// Scorer scores a rewrite against a job description.
type Scorer interface {
	ScoreChange(ctx context.Context, beforeText, afterText, jobDescription string) (*scoring.Report, error)
}

// Distiller reduces job descriptions for the batch rewrite path.
type Distiller interface {
	Distill(ctx context.Context, jobDescription string) (string, error)
	ExtractTerms(ctx context.Context, jobDescription string) (*scoring.Terms, error)
}

// Server is the HTTP server with all of its collaborators.
type Server struct {
	httpServer  *http.Server
	cfg         *config.Config
	logger      *zap.Logger
	store       Store
	llmClient   llm.Client
	matcher     Matcher
	sessions    SessionController
	rewriter    Rewriter
	scorer      Scorer
	distiller   Distiller
	rateLimiter *ratelimit.Limiter
	jwtService  *JWTService
	authHandler *AuthHandler
}

// New connects the database and the LLM provider and wires the full
// pipeline.
func New(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Server, error) {
	database, err := db.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	client, err := llm.NewClient(ctx, llm.DefaultConfig(), cfg.APIKey)
	if err != nil {
		database.Close()
		return nil, fmt.Errorf("failed to create LLM client: %w", err)
	}

	scorer := scoring.New(client, logger, scoring.Weights{
		Embedding: cfg.WeightEmbedding,
		Keywords:  cfg.WeightKeywords,
		LLM:       cfg.WeightLLM,
		Distilled: cfg.WeightDistilled,
	}, scoring.Options{
		UseDistilledJD: cfg.DistilledJDEnabled(),
		UseLLMTerms:    cfg.LLMTermsEnabled(),
	})

	s := &Server{
		cfg:       cfg,
		logger:    logger,
		store:     database,
		llmClient: client,
		matcher: matching.New(database, client,
			cfg.HighConfidenceThreshold, cfg.MediumConfidenceThreshold, cfg.MatchLimit),
		sessions:    qa.New(database, client, logger, cfg.RoundCap, cfg.EvalRetries),
		rewriter:    rewriting.New(client, logger, cfg.RepromptTries),
		scorer:      scorer,
		distiller:   scoring.NewDistiller(client),
		rateLimiter: ratelimit.NewLimiter(ratelimit.DefaultConfig()),
	}

	if cfg.JWTSecret != "" {
		s.jwtService = NewJWTService(cfg.JWTSecret)
		s.authHandler = NewAuthHandler(NewUserService(database), s.jwtService)
	}

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      s.routes(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 300 * time.Second, // LLM-backed endpoints run long
		IdleTimeout:  60 * time.Second,
	}
	return s, nil
}

// routes builds the router with middleware applied.
func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.handleHealth)

	if s.authHandler != nil {
		mux.HandleFunc("POST /auth/register", s.authHandler.Register)
		mux.HandleFunc("POST /auth/login", s.authHandler.Login)
	}

	api := http.NewServeMux()
	api.HandleFunc("POST /v2/onboarding/start", s.handleOnboardingStart)
	api.HandleFunc("POST /v2/onboarding/confirm-match", s.handleConfirmMatch)
	api.HandleFunc("GET /v2/sessions/{id}", s.handleGetSession)
	api.HandleFunc("POST /v2/sessions/{id}/answers", s.handleSubmitAnswers)
	api.HandleFunc("POST /v2/sessions/{id}/abandon", s.handleAbandonSession)
	api.HandleFunc("POST /v2/sessions/{id}/rewrite", s.handleRewriteSession)
	api.HandleFunc("POST /v2/facts/{id}/confirm", s.handleConfirmFacts)
	api.HandleFunc("POST /v2/apply/generate", s.handleApplyGenerate)
	api.HandleFunc("POST /v2/apply/document", s.handleApplyDocument)

	var apiHandler http.Handler = api
	if s.cfg.RequireAuth && s.jwtService != nil {
		apiHandler = middleware.Auth(s.jwtService.AsTokenValidator())(api)
	}
	mux.Handle("/v2/", apiHandler)

	return s.withRateLimit(s.withLogging(s.withCORS(mux)))
}

// Start listens until interrupted, then shuts down gracefully.
func (s *Server) Start() error {
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	go func() {
		s.logger.Info("server starting", zap.String("addr", s.httpServer.Addr))
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Fatal("server error", zap.Error(err))
		}
	}()

	<-stop
	s.logger.Info("shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	s.rateLimiter.Stop()
	if s.llmClient != nil {
		_ = s.llmClient.Close()
	}
	if database, ok := s.store.(*db.DB); ok {
		database.Close()
	}
	s.logger.Info("server stopped")
	return nil
}

// userID resolves the acting user: the authenticated id when auth is on,
// the seeded anonymous account otherwise.
func (s *Server) userID(r *http.Request) uuid.UUID {
	if id, err := middleware.GetUserID(r); err == nil {
		return id
	}
	return anonymousUserID
}

// withCORS adds CORS headers.
func (s *Server) withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// withRateLimit enforces the per-client limit. Health stays unlimited so
// probes never get throttled.
func (s *Server) withRateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" {
			next.ServeHTTP(w, r)
			return
		}

		allowed, info := s.rateLimiter.Allow(clientIP(r))
		if info.Limit > 0 {
			w.Header().Set("X-RateLimit-Limit", fmt.Sprintf("%d", info.Limit))
			w.Header().Set("X-RateLimit-Remaining", fmt.Sprintf("%d", info.Remaining))
			w.Header().Set("X-RateLimit-Reset", fmt.Sprintf("%d", info.ResetTime.Unix()))
		}
		if !allowed {
			if info.RetryAfter > 0 {
				w.Header().Set("Retry-After", fmt.Sprintf("%d", int(info.RetryAfter.Seconds())))
			}
			s.jsonResponse(w, http.StatusTooManyRequests, map[string]any{
				"error":    "rate_limit_exceeded",
				"reset_at": info.ResetTime.Format(time.RFC3339),
			})
			return
		}
		next.ServeHTTP(w, r)
	})
}

// withLogging logs each request with its duration.
func (s *Server) withLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		s.logger.Info("request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Duration("duration", time.Since(start)))
	})
}

// handleHealth reports service and database health. A down database makes
// the whole service unavailable, so it returns 503 rather than a green
// status with a caveat.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.store.Ping(r.Context()); err != nil {
		s.jsonResponse(w, http.StatusServiceUnavailable, map[string]string{
			"status":   "degraded",
			"database": "unreachable",
		})
		return
	}
	s.jsonResponse(w, http.StatusOK, map[string]string{"status": "ok"})
}

// jsonResponse writes a JSON response.
func (s *Server) jsonResponse(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.logger.Error("failed to encode response", zap.Error(err))
	}
}

// errorResponse writes an error with its mapped status.
func (s *Server) errorResponse(w http.ResponseWriter, err error) {
	status := HTTPStatus(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error("request failed", zap.Int("status", status), zap.Error(err))
	}
	s.jsonResponse(w, status, map[string]string{"error": err.Error()})
}

func clientIP(r *http.Request) string {
	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return ip
}
