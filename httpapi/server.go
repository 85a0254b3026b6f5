package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/jonwraymond/dataops/dataset"
	"github.com/jonwraymond/dataops/health"
	"github.com/jonwraymond/dataops/observe"
	"github.com/jonwraymond/dataops/resilience"
)

// DefaultMaxBodyBytes bounds a load request body.
const DefaultMaxBodyBytes = 1 << 20

// statusClientClosedRequest is reported when the caller went away mid-request.
const statusClientClosedRequest = 499

// ErrNilCache is returned by NewHandler without a dataset cache.
var ErrNilCache = errors.New("httpapi: dataset cache is nil")

// Config wires the handler.
type Config struct {
	// Cache serves every dataset route. Required.
	Cache *dataset.Cache

	// Health backs /healthz, /readyz and /health. Optional.
	Health *health.Aggregator

	// Metrics is mounted at /metrics when not nil.
	Metrics http.Handler

	// Logger records one line per request. Default: no-op.
	Logger observe.Logger

	// CORSAllowedOrigins lists the browser origins allowed to call the API.
	// Empty disables CORS handling.
	CORSAllowedOrigins []string

	// RateLimiter rejects dataset requests above its rate with 429.
	// Optional.
	RateLimiter *resilience.RateLimiter

	// MaxBodyBytes bounds a load request body. Default: 1 MiB.
	MaxBodyBytes int64
}

type server struct {
	cache   *dataset.Cache
	logger  observe.Logger
	maxBody int64
}

// NewHandler returns the HTTP handler for the service.
func NewHandler(cfg Config) (http.Handler, error) {
	if cfg.Cache == nil {
		return nil, ErrNilCache
	}
	if cfg.Logger == nil {
		cfg.Logger = observe.NopLogger()
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = DefaultMaxBodyBytes
	}
	s := &server{cache: cfg.Cache, logger: cfg.Logger, maxBody: cfg.MaxBodyBytes}

	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.Recoverer)
	r.Use(requestLogger(cfg.Logger))
	// An empty origin list would make the cors package allow every origin.
	if len(cfg.CORSAllowedOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: cfg.CORSAllowedOrigins,
			AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
			AllowedHeaders: []string{"Accept", "Content-Type", "X-Request-Id"},
			ExposedHeaders: []string{"X-Request-Id"},
			MaxAge:         300,
		}))
	}

	if cfg.Health != nil {
		r.Get("/healthz", health.LivenessHandler())
		r.Get("/readyz", health.ReadinessHandler(cfg.Health))
		r.Get("/health", health.DetailedHandler(cfg.Health))
		r.Get("/health/{name}", health.SingleCheckHandler(cfg.Health))
	}
	if cfg.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", cfg.Metrics)
	}

	r.Route("/api/datasets", func(r chi.Router) {
		if cfg.RateLimiter != nil {
			r.Use(rateLimit(cfg.RateLimiter))
		}
		r.Post("/load", s.load)
		r.Get("/{key}", s.metadata)
		r.Get("/{key}/data", s.payload)
		r.Post("/{key}/extend", s.extend)
	})
	return r, nil
}

// MetadataResponse is the body of GET /api/datasets/{key}.
type MetadataResponse struct {
	Key string `json:"dataset_key"`
	dataset.Metadata
}

// DataResponse is the body of GET /api/datasets/{key}/data.
type DataResponse struct {
	Key     string   `json:"dataset_key"`
	Columns []string `json:"columns"`
	Rows    [][]any  `json:"rows"`
}

// ExtendResponse is the body of POST /api/datasets/{key}/extend.
type ExtendResponse struct {
	Key      string `json:"dataset_key"`
	Extended bool   `json:"extended"`
}

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	Error  string `json:"error"`
	Detail string `json:"detail,omitempty"`
}

func (s *server) load(w http.ResponseWriter, r *http.Request) {
	var req dataset.Request
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, s.maxBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{
			Error:  dataset.ErrInvalidRequest.Error(),
			Detail: decodeDetail(err),
		})
		return
	}

	res, err := s.cache.Load(r.Context(), req)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *server) metadata(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")
	md, err := s.cache.Metadata(r.Context(), key)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, MetadataResponse{Key: key, Metadata: *md})
}

func (s *server) payload(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")
	table, err := s.cache.Payload(r.Context(), key)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, DataResponse{Key: key, Columns: table.Columns, Rows: table.Rows})
}

func (s *server) extend(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")
	ok, err := s.cache.Extend(r.Context(), key)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if !ok {
		writeJSON(w, http.StatusNotFound, ErrorResponse{Error: dataset.ErrDatasetNotFound.Error()})
		return
	}
	writeJSON(w, http.StatusOK, ExtendResponse{Key: key, Extended: true})
}

func (s *server) fail(w http.ResponseWriter, r *http.Request, err error) {
	kind := dataset.KindOf(err)
	status := StatusCode(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error(r.Context(), "dataset request failed",
			observe.Field{Key: "path", Value: r.URL.Path},
			observe.Field{Key: "error", Value: err.Error()},
		)
	}
	body := ErrorResponse{Error: http.StatusText(status)}
	if kind != nil {
		body.Error = kind.Error()
		var derr *dataset.Error
		if errors.As(err, &derr) && derr.Err != nil && status < http.StatusInternalServerError {
			body.Detail = derr.Err.Error()
		}
	}
	writeJSON(w, status, body)
}

// StatusCode maps a dataset error to its HTTP status.
func StatusCode(err error) int {
	switch dataset.KindOf(err) {
	case dataset.ErrInvalidRequest:
		return http.StatusBadRequest
	case dataset.ErrDatasetNotFound:
		return http.StatusNotFound
	case dataset.ErrQueryExecutionFailed:
		return http.StatusBadGateway
	case dataset.ErrStoreUnavailable:
		return http.StatusServiceUnavailable
	case dataset.ErrQueryTimeout:
		return http.StatusGatewayTimeout
	}
	if errors.Is(err, context.Canceled) {
		return statusClientClosedRequest
	}
	return http.StatusInternalServerError
}

func decodeDetail(err error) string {
	var tooLarge *http.MaxBytesError
	switch {
	case errors.As(err, &tooLarge):
		return fmt.Sprintf("request body exceeds %d bytes", tooLarge.Limit)
	case errors.Is(err, io.EOF):
		return "request body is empty"
	default:
		return err.Error()
	}
}

func rateLimit(rl *resilience.RateLimiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !rl.Allow() {
				w.Header().Set("Retry-After", "1")
				writeJSON(w, http.StatusTooManyRequests, ErrorResponse{Error: "rate limit exceeded"})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func requestLogger(logger observe.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)
			logger.Info(r.Context(), "http request",
				observe.Field{Key: "method", Value: r.Method},
				observe.Field{Key: "path", Value: r.URL.Path},
				observe.Field{Key: "status", Value: ww.Status()},
				observe.Field{Key: "bytes", Value: ww.BytesWritten()},
				observe.Field{Key: "duration_ms", Value: time.Since(start).Milliseconds()},
				observe.Field{Key: "request_id", Value: chimw.GetReqID(r.Context())},
			)
		})
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
