// Package server exposes the auth and task operations over HTTP+JSON.
package server

import (
	"context"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"taskmanagement-api/internal/api"
)

// DefaultRequestTimeout bounds the store calls made by one request.
const DefaultRequestTimeout = 3 * time.Second

// TaskStore is the owner-scoped task persistence used by the handlers.
type TaskStore interface {
	ListTasks(ctx context.Context, ownerID int64, q api.ListQuery) ([]api.Task, int, error)
	GetTask(ctx context.Context, ownerID, id int64) (api.Task, error)
	CreateTask(ctx context.Context, ownerID int64, in api.NewTask) (api.Task, error)
	UpdateTask(ctx context.Context, ownerID, id int64, in api.TaskUpdate) (api.Task, error)
	SetCompletion(ctx context.Context, ownerID, id int64, complete bool) (api.Task, error)
	DeleteTask(ctx context.Context, ownerID, id int64) (bool, error)
}

// Authenticator implements register and login.
type Authenticator interface {
	Register(ctx context.Context, email, password string) error
	Login(ctx context.Context, email, password string) (string, error)
}

// TokenValidator turns a bearer token into the caller's user id.
type TokenValidator interface {
	Validate(token string) (int64, error)
}

type Options struct {
	Auth           Authenticator
	Tokens         TokenValidator
	Tasks          TaskStore
	Logger         *log.Logger
	RequestTimeout time.Duration
}

type Server struct {
	auth           Authenticator
	tokens         TokenValidator
	tasks          TaskStore
	logger         *log.Logger
	requestTimeout time.Duration
	router         *mux.Router
}

func New(opts Options) *Server {
	if opts.Logger == nil {
		opts.Logger = log.Default()
	}
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = DefaultRequestTimeout
	}
	s := &Server{
		auth:           opts.Auth,
		tokens:         opts.Tokens,
		tasks:          opts.Tasks,
		logger:         opts.Logger,
		requestTimeout: opts.RequestTimeout,
	}
	s.router = s.routes()
	return s
}

// Handler returns the root HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) routes() *mux.Router {
	r := mux.NewRouter()
	r.Use(s.logRequests, s.traceRequests, s.recoverPanics)

	r.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)
	r.HandleFunc("/auth/register", s.handleRegister).Methods(http.MethodPost)
	r.HandleFunc("/auth/login", s.handleLogin).Methods(http.MethodPost)

	tasks := r.PathPrefix("/taskmanagement").Subrouter()
	tasks.Use(s.requireBearer)
	tasks.HandleFunc("", s.handleListTasks).Methods(http.MethodGet)
	tasks.HandleFunc("", s.handleCreateTask).Methods(http.MethodPost)
	tasks.HandleFunc("/{id}", s.handleGetTask).Methods(http.MethodGet)
	tasks.HandleFunc("/{id}", s.handleUpdateTask).Methods(http.MethodPut)
	tasks.HandleFunc("/{id}", s.handleDeleteTask).Methods(http.MethodDelete)
	tasks.HandleFunc("/{id}/complete", s.handleCompleteTask).Methods(http.MethodPatch)

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondWithJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// storeContext bounds the store calls made on behalf of r.
func (s *Server) storeContext(r *http.Request) (context.Context, context.CancelFunc) {
	return context.WithTimeout(r.Context(), s.requestTimeout)
}
