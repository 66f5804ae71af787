package httpapi

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"preloadd/internal/imgsrc"
	"preloadd/internal/preload"
	"preloadd/pkg/types"
)

// Service defines the methods required by the HTTP API layer.
type Service interface {
	PreloadBatch(ctx context.Context, urls []string) ([]types.PreloadResult, error)
	Stats() types.CacheStats
	Clear() int
	Ready() bool
}

// serverBaseCtx is a process-level context that can be canceled on shutdown.
// Defaults to Background if not set.
var serverBaseCtx = context.Background()

// SetBaseContext sets the process-level base context used by handlers.
func SetBaseContext(ctx context.Context) {
	if ctx == nil {
		serverBaseCtx = context.Background()
		return
	}
	serverBaseCtx = ctx
}

func NewMux(svc Service) http.Handler {
	r := chi.NewRouter()
	// Basic middlewares: request id, real ip, recoverer
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	// Compression for JSON endpoints
	r.Use(middleware.Compress(5))
	// Security headers
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("X-Content-Type-Options", "nosniff")
			next.ServeHTTP(w, r)
		})
	})
	if corsEnabled {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: corsAllowedOrigins,
			AllowedMethods: corsAllowedMethods,
			AllowedHeaders: corsAllowedHeaders,
		}))
	}
	r.Use(MetricsMiddleware)

	r.Post("/preload", func(w http.ResponseWriter, r *http.Request) {
		ct := r.Header.Get("Content-Type")
		if ct == "" || !strings.HasPrefix(strings.ToLower(ct), "application/json") {
			writeJSONError(w, http.StatusUnsupportedMediaType, "Content-Type must be application/json")
			return
		}
		r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
		var req types.PreloadRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSONError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}
		if len(req.URLs) == 0 {
			writeJSONError(w, http.StatusBadRequest, "urls is required")
			return
		}
		quality := req.Quality
		if quality == 0 {
			quality = defaultQuality
		}
		urls := make([]string, len(req.URLs))
		for i, raw := range req.URLs {
			opt, err := imgsrc.Optimize(raw, imgsrc.Options{Quality: quality})
			if err != nil {
				writeJSONError(w, http.StatusBadRequest, err.Error())
				return
			}
			urls[i] = opt
		}

		start := time.Now()
		lvl := requestLogLevel(r)
		if lvl >= LevelInfo {
			logRequest(r, "preload start", map[string]any{"urls": len(req.URLs)})
		}
		// Join server base context with request context so shutdown cancels work too.
		joinedCtx, cancel := joinContexts(serverBaseCtx, r.Context())
		defer cancel()
		results, err := svc.PreloadBatch(joinedCtx, urls)
		if err != nil {
			// If context was canceled (client disconnect), just return.
			if r.Context().Err() != nil || serverBaseCtx.Err() != nil {
				return
			}
			status := statusForError(err)
			if status == http.StatusTooManyRequests {
				IncrementBackpressure("inflight_limit")
			}
			writeJSONError(w, status, err.Error())
			if lvl >= LevelInfo {
				logRequest(r, "preload end", map[string]any{"status": status, "dur": time.Since(start).String(), "error": err.Error()})
			}
			return
		}
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(types.PreloadResponse{Results: results}); err != nil {
			writeJSONError(w, http.StatusInternalServerError, "failed to encode response")
			return
		}
		if lvl >= LevelInfo {
			logRequest(r, "preload end", map[string]any{"status": 200, "dur": time.Since(start).String()})
		}
	})

	r.Get("/stats", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(svc.Stats()); err != nil {
			writeJSONError(w, http.StatusInternalServerError, "failed to encode response")
			return
		}
	})

	r.Post("/clear", func(w http.ResponseWriter, r *http.Request) {
		n := svc.Clear()
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(types.ClearResponse{Evicted: n}); err != nil {
			writeJSONError(w, http.StatusInternalServerError, "failed to encode response")
			return
		}
	})

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	r.Get("/readyz", func(w http.ResponseWriter, r *http.Request) {
		if svc.Ready() {
			w.WriteHeader(http.StatusOK)
			w.Write([]byte("ready"))
			return
		}
		w.WriteHeader(http.StatusServiceUnavailable)
		w.Write([]byte("warming"))
	})

	// Prometheus metrics endpoint
	r.Get("/metrics", promhttp.Handler().ServeHTTP)

	MountSwagger(r)

	return r
}

// statusForError maps well-known preload errors to HTTP status codes.
func statusForError(err error) int {
	switch {
	case preload.IsConstruction(err):
		return http.StatusBadRequest
	case preload.IsTooManyInflight(err):
		return http.StatusTooManyRequests
	case preload.IsFetchFailure(err):
		return http.StatusBadGateway
	}
	if he, ok := err.(HTTPError); ok {
		return he.StatusCode()
	}
	return http.StatusInternalServerError
}

// logRequest emits a structured line when a logger is installed, falling
// back to the standard logger otherwise.
func logRequest(r *http.Request, msg string, fields map[string]any) {
	if zlog != nil {
		z := zlog.Info().Str("path", r.URL.Path)
		if rid := middleware.GetReqID(r.Context()); rid != "" {
			z = z.Str("request_id", rid)
		}
		z.Fields(fields).Msg(msg)
		return
	}
	log.Printf("%s path=%s fields=%v", msg, r.URL.Path, fields)
}
