package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"dailyjokes/internal/auth"
	"dailyjokes/internal/config"
	"dailyjokes/internal/database"
	"dailyjokes/internal/models"
	"dailyjokes/pkg/logger"
)

type SubscriberStore interface {
	Subscribe(ctx context.Context, email string, prefs models.Preferences, deliveryTime models.DeliveryTime) (*models.Subscriber, database.SubscribeOutcome, error)
	Unsubscribe(ctx context.Context, email string) error
}

type JokeStore interface {
	CreateInCategory(ctx context.Context, content, categoryName string) (*models.Joke, error)
	AddVote(ctx context.Context, jokeID int64, vote int) (*models.Joke, error)
}

type CategoryStore interface {
	Create(ctx context.Context, category *models.Category) error
	GetByName(ctx context.Context, name string) (*models.Category, error)
	List(ctx context.Context, activeOnly bool) ([]models.Category, error)
	SetActive(ctx context.Context, name string, active bool) error
}

type WelcomeSender interface {
	SendWelcome(ctx context.Context, email string) error
}

type JokeGenerator interface {
	Generate(ctx context.Context, categoryName, description string, count int) ([]string, error)
}

type DispatchRunner interface {
	Dispatch(ctx context.Context, hour, minute int) error
}

type CredentialVerifier interface {
	Verify(ctx context.Context, username, password string) (*models.Admin, error)
}

// Server is the JSON surface: the public subscribe/unsubscribe/vote calls,
// the Basic-auth admin calls, and the health endpoint.
type Server struct {
	cfg         config.ServerConfig
	subscribers SubscriberStore
	jokes       JokeStore
	categories  CategoryStore
	mailer      WelcomeSender
	generator   JokeGenerator
	dispatcher  DispatchRunner
	verifier    CredentialVerifier
	now         func() time.Time
}

type Option func(*Server)

// WithClock overrides the wall clock used by the manual dispatch endpoint.
func WithClock(now func() time.Time) Option {
	return func(s *Server) {
		s.now = now
	}
}

func New(cfg config.ServerConfig, subscribers SubscriberStore, jokes JokeStore, categories CategoryStore, mailer WelcomeSender, generator JokeGenerator, dispatcher DispatchRunner, verifier CredentialVerifier, opts ...Option) *Server {
	s := &Server{
		cfg:         cfg,
		subscribers: subscribers,
		jokes:       jokes,
		categories:  categories,
		mailer:      mailer,
		generator:   generator,
		dispatcher:  dispatcher,
		verifier:    verifier,
		now:         time.Now,
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	endpoint := s.cfg.HealthEndpoint
	if endpoint == "" {
		endpoint = "/healthz"
	}
	mux.HandleFunc("GET "+endpoint, s.handleHealth)

	mux.HandleFunc("GET /api/categories", s.handleListCategories)
	mux.HandleFunc("POST /api/subscribe", s.handleSubscribe)
	mux.HandleFunc("POST /api/unsubscribe", s.handleUnsubscribe)
	mux.HandleFunc("POST /api/jokes/{id}/vote", s.handleVote)

	mux.HandleFunc("POST /admin/jokes", s.requireAdmin(s.handleCreateJoke))
	mux.HandleFunc("POST /admin/categories", s.requireAdmin(s.handleCreateCategory))
	mux.HandleFunc("POST /admin/categories/{name}/toggle", s.requireAdmin(s.handleToggleCategory))
	mux.HandleFunc("POST /admin/generate", s.requireAdmin(s.handleGenerate))
	mux.HandleFunc("POST /admin/dispatch", s.requireAdmin(s.handleDispatch))

	return mux
}

func (s *Server) ListenAndServe() *http.Server {
	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", s.cfg.Port),
		Handler: s.Handler(),
	}

	go func() {
		logger.Info("http server starting", logger.Int("port", s.cfg.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", logger.Err(err))
		}
	}()

	return srv
}

// requireAdmin gates a handler behind HTTP Basic credentials checked through
// the plain verifier.
func (s *Server) requireAdmin(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		username, password, ok := r.BasicAuth()
		if !ok {
			w.Header().Set("WWW-Authenticate", `Basic realm="admin"`)
			writeError(w, http.StatusUnauthorized, "credentials required")
			return
		}

		admin, err := s.verifier.Verify(r.Context(), username, password)
		if err != nil {
			if errors.Is(err, auth.ErrInvalidCredentials) {
				w.Header().Set("WWW-Authenticate", `Basic realm="admin"`)
				writeError(w, http.StatusUnauthorized, "invalid credentials")
				return
			}
			logger.Error("credential check failed", logger.Err(err))
			writeError(w, http.StatusInternalServerError, "something went wrong")
			return
		}

		logger.Debug("admin authenticated", logger.String("username", admin.Username))
		next(w, r)
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Error("failed to encode response", logger.Err(err))
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "malformed request body")
		return false
	}
	return true
}
