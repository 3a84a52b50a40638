package app

import (
	"context"
	"net/http"
	"time"

	authapi "sessiond/cmd/internal/auth/api"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
)

// readyCheck is one dependency probed by /readyz.
type readyCheck struct {
	name string
	ping func(ctx context.Context) error
}

type routerDeps struct {
	log        Logger
	cfg        Config
	trustProxy bool
	auth       *authapi.Handler
	checks     []readyCheck
	dbEnabled  bool
	gatherer   prometheus.Gatherer
	metrics    *httpMetrics
}

// newHTTPHandler builds the chi router and wraps it with the process-wide middleware.
func newHTTPHandler(d routerDeps) http.Handler {
	r := chi.NewRouter()
	if d.trustProxy {
		r.Use(middleware.RealIP)
	}
	r.Use(middleware.Recoverer)
	if d.metrics != nil {
		r.Use(d.metrics.middleware)
	}

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok\n"))
	})

	r.Get("/readyz", func(w http.ResponseWriter, r *http.Request) {
		if d.cfg.ReadinessRequireDB && !d.dbEnabled {
			http.Error(w, "db not configured", http.StatusServiceUnavailable)
			return
		}

		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		for _, c := range d.checks {
			if err := c.ping(ctx); err != nil {
				d.log.Info("readyz.not_ready", "check", c.name, "err", err)
				http.Error(w, c.name+" not ready", http.StatusServiceUnavailable)
				return
			}
		}

		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready\n"))
	})

	if d.gatherer != nil {
		r.Method(http.MethodGet, "/metrics", metricsHandler(d.gatherer))
	}

	if d.auth != nil {
		d.auth.Register(r)
	}

	var h http.Handler = r
	h = WithCORS(h, d.cfg, d.log)
	h = WithSecurityHeaders(h)
	h = WithRequestLogging(h, d.log)
	return middleware.RequestID(h)
}
