package api

import (
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/example/checkout-engine/internal/api/middleware"
	"github.com/example/checkout-engine/internal/auth"
)

type RouterConfig struct {
	Handlers   *Handlers
	JWTService *auth.JWTService
	Logger     zerolog.Logger
}

func NewRouter(cfg RouterConfig) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	mux.Handle("/metrics", promhttp.Handler())

	mux.HandleFunc("/checkout/session", func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodPost:
			cfg.Handlers.CreateSession(w, r)
		default:
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		}
	})

	mux.HandleFunc("/checkout/session/", func(w http.ResponseWriter, r *http.Request) {
		path := r.URL.Path
		switch {
		case strings.HasSuffix(path, "/release") && r.Method == http.MethodPost:
			cfg.Handlers.ReleaseSession(w, r)
		case strings.HasSuffix(path, "/confirm") && r.Method == http.MethodPost:
			cfg.Handlers.ConfirmSession(w, r)
		case strings.HasSuffix(path, "/fail") && r.Method == http.MethodPost:
			cfg.Handlers.FailSession(w, r)
		case r.Method == http.MethodGet:
			cfg.Handlers.GetSession(w, r)
		default:
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		}
	})

	var handler http.Handler = mux
	if cfg.JWTService != nil {
		handler = middleware.OptionalAuth(cfg.JWTService)(handler)
	}
	return withLogging(handler, cfg.Logger)
}

func withLogging(next http.Handler, logger zerolog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		logger.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Dur("elapsed", time.Since(start)).
			Msg("request")
	})
}
