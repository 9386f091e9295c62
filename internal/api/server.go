// Package api serves posts to the client over HTTP: a JSON REST interface
// and the uploaded images.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/go-playground/validator/v10/non-standard/validators"

	"github.com/edgard/sponsorbot/internal/database"
)

const maxBodyBytes = 1 << 20

// PostStore is the subset of database.Store used by the API.
type PostStore interface {
	Ping(ctx context.Context) error
	ListPosts(ctx context.Context) ([]database.Post, error)
	ListPostsPage(ctx context.Context, limit, offset int) ([]database.Post, error)
	CountPosts(ctx context.Context) (int, error)
	GetPost(ctx context.Context, id int64) (*database.Post, error)
	CreatePost(ctx context.Context, post *database.Post) error
	UpdatePost(ctx context.Context, id int64, update database.PostUpdate) (*database.Post, error)
	DeletePost(ctx context.Context, id int64) (bool, error)
	IncrementLike(ctx context.Context, id int64) (*database.Post, error)
	DecrementLike(ctx context.Context, id int64) (*database.Post, error)
}

// Options configure the HTTP surface.
type Options struct {
	CORSOrigin    string
	UploadsDir    string
	UploadsPrefix string
	MaxPageSize   int
}

// Server holds the HTTP handlers.
type Server struct {
	store    PostStore
	logger   *slog.Logger
	validate *validator.Validate
	opts     Options
}

// NewServer returns a Server backed by store.
func NewServer(store PostStore, opts Options, logger *slog.Logger) (*Server, error) {
	if store == nil {
		return nil, errors.New("api server requires a post store")
	}
	if logger == nil {
		logger = slog.Default()
	}
	if opts.CORSOrigin == "" {
		opts.CORSOrigin = "*"
	}
	if opts.MaxPageSize <= 0 {
		opts.MaxPageSize = 100
	}
	opts.UploadsPrefix = strings.TrimSuffix(opts.UploadsPrefix, "/")

	validate := validator.New(validator.WithRequiredStructEnabled())
	if err := validate.RegisterValidation("notblank", validators.NotBlank); err != nil {
		return nil, fmt.Errorf("failed to register validation: %w", err)
	}
	validate.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})

	return &Server{
		store:    store,
		logger:   logger.With("component", "api"),
		validate: validate,
		opts:     opts,
	}, nil
}

// Handler returns the routed handler wrapped in the middleware chain.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/health", s.health)
	mux.HandleFunc("GET /api/posts", s.listPosts)
	mux.HandleFunc("GET /api/posts/last", s.lastPosts)
	mux.HandleFunc("GET /api/posts/{id}", s.getPost)
	mux.HandleFunc("POST /api/posts", s.createPost)
	mux.HandleFunc("PUT /api/posts/{id}", s.updatePost)
	mux.HandleFunc("DELETE /api/posts/{id}", s.deletePost)
	mux.HandleFunc("POST /api/posts/{id}/like", s.likePost)
	mux.HandleFunc("POST /api/posts/{id}/unlike", s.unlikePost)

	if s.opts.UploadsDir != "" && s.opts.UploadsPrefix != "" {
		files := http.StripPrefix(s.opts.UploadsPrefix, http.FileServer(http.Dir(s.opts.UploadsDir)))
		mux.Handle("GET "+s.opts.UploadsPrefix+"/", noDirListing(files))
	}

	mux.HandleFunc("/", func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusNotFound, "Not found")
	})

	return chain(mux, s.recoverer, s.requestLogger, s.cors, sentryHandler)
}

// NewHTTPServer wraps handler in an http.Server with the given timeouts.
func NewHTTPServer(addr string, handler http.Handler, readTimeout, writeTimeout time.Duration) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadTimeout:       readTimeout,
		ReadHeaderTimeout: readTimeout,
		WriteTimeout:      writeTimeout,
	}
}

func writeJSON(w http.ResponseWriter, status int, body envelope) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeData(w http.ResponseWriter, status int, data any) {
	writeJSON(w, status, envelope{Success: true, Data: data})
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, envelope{Success: false, Error: message})
}

func (s *Server) internalError(w http.ResponseWriter, r *http.Request, op string, err error) {
	s.logger.ErrorContext(r.Context(), "Request failed", "op", op, "method", r.Method, "path", r.URL.Path, "error", err)
	writeError(w, http.StatusInternalServerError, "Internal server error")
}

func (s *Server) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(dst); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "Request body too large")
			return false
		}
		writeError(w, http.StatusBadRequest, "Invalid JSON body")
		return false
	}
	if err := s.validate.Struct(dst); err != nil {
		writeError(w, http.StatusBadRequest, validationMessage(err))
		return false
	}
	return true
}

func validationMessage(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return "Invalid request"
	}
	fe := verrs[0]
	switch fe.Tag() {
	case "required", "notblank":
		return fe.Field() + " is required"
	case "len=0|url", "url":
		return fe.Field() + " must be a valid URL"
	case "max":
		return fe.Field() + " is too long"
	default:
		return fe.Field() + " is invalid"
	}
}
