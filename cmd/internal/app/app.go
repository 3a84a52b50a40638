// Package app wires the sessiond runtime: config, logging, storage backends,
// HTTP routes and the background session janitor.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"sessiond/cmd/identity"
	"sessiond/cmd/internal/app/migrations"
	authapi "sessiond/cmd/internal/auth/api"
	"sessiond/cmd/internal/auth/session"
	"sessiond/cmd/security/password"
	"sessiond/cmd/security/token"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"
)

// App owns the HTTP server and every resource the session service depends on.
type App struct {
	cfg Config
	log Logger

	dbPool *pgxpool.Pool
	redis  *redis.Client

	sessions *session.Service
	sweep    time.Duration
	handler  http.Handler
}

// New builds a fully wired App. Resources opened before a failure are closed.
func New(ctx context.Context, cfg Config, log Logger) (_ *App, err error) {
	if log == nil {
		log = NewLogger(cfg.LogLevel, cfg.LogFormat, cfg.LogColor)
	}
	if err := ValidateSecurityConfig(cfg); err != nil {
		return nil, err
	}

	backend, err := cfg.sessionBackend()
	if err != nil {
		return nil, err
	}

	a := &App{cfg: cfg, log: log}
	defer func() {
		if err != nil {
			a.close()
		}
	}()

	if cfg.DatabaseURL != "" {
		if cfg.AutoMigrate {
			if cfg.DBSchema != migrations.DefaultSchema {
				return nil, fmt.Errorf("config: SESSIOND_AUTO_MIGRATE only supports schema %q", migrations.DefaultSchema)
			}
			if err := migrations.Up(cfg.DatabaseURL); err != nil {
				return nil, err
			}
			log.Info("db.migrate.done")
		}

		a.dbPool, err = NewDBPool(ctx, cfg)
		if err != nil {
			return nil, err
		}
		log.Info("db.enabled", "schema", cfg.DBSchema)
	}

	if backend == StoreRedis {
		a.redis, err = NewRedisClient(ctx, cfg.RedisURL)
		if err != nil {
			return nil, err
		}
	}

	store, err := a.newSessionStore(backend)
	if err != nil {
		return nil, err
	}
	log.Info("session.store", "backend", backend)

	sessCfg, err := session.LoadConfigFromEnv()
	if err != nil {
		return nil, err
	}
	key, err := signingKey(log)
	if err != nil {
		return nil, err
	}
	codec, err := session.NewCodec(sessCfg, key)
	if err != nil {
		return nil, err
	}

	reg := newRegistry()
	a.sessions, err = session.NewService(sessCfg, store, codec, token.NewHasher(key),
		session.WithMetrics(session.NewMetrics(reg)),
		session.WithLogger(log),
	)
	if err != nil {
		return nil, err
	}
	a.sweep = sessCfg.SweepInterval

	var accounts identity.Store = identity.NewMemoryStore()
	if a.dbPool != nil {
		accounts, err = identity.NewPostgresStore(a.dbPool, identity.WithSchema(cfg.DBSchema))
		if err != nil {
			return nil, err
		}
	}

	authCfg, err := authapi.LoadConfigFromEnv()
	if err != nil {
		return nil, err
	}
	pwCfg, err := password.FromEnv()
	if err != nil {
		return nil, err
	}
	opts := []authapi.HandlerOption{authapi.WithPasswordConfig(pwCfg)}
	if a.dbPool != nil {
		opts = append(opts, authapi.WithAudit(a.dbPool, cfg.DBSchema))
	}
	auth, err := authapi.NewHandler(log, authCfg, a.sessions, accounts, opts...)
	if err != nil {
		return nil, err
	}

	checks := []readyCheck{{name: "session_store", ping: store.Ping}}
	if a.dbPool != nil && backend != StorePostgres {
		checks = append(checks, readyCheck{name: "db", ping: func(ctx context.Context) error {
			return PingDB(ctx, a.dbPool, time.Second)
		}})
	}

	a.handler = newHTTPHandler(routerDeps{
		log:        log,
		cfg:        cfg,
		trustProxy: authCfg.TrustProxy,
		auth:       auth,
		checks:     checks,
		dbEnabled:  a.dbPool != nil,
		gatherer:   reg,
		metrics:    newHTTPMetrics(reg),
	})
	return a, nil
}

func (a *App) newSessionStore(backend string) (session.Store, error) {
	switch backend {
	case StorePostgres:
		return session.NewPostgresStore(a.dbPool, session.WithSchema(a.cfg.DBSchema))
	case StoreRedis:
		return session.NewRedisStore(a.redis, session.WithKeyPrefix(a.cfg.RedisKeyPrefix)), nil
	default:
		return session.NewMemoryStore(), nil
	}
}

// Handler returns the root HTTP handler.
func (a *App) Handler() http.Handler { return a.handler }

// Run serves HTTP and sweeps expired sessions until ctx is cancelled or the
// server fails, then shuts down gracefully and releases resources.
func (a *App) Run(ctx context.Context) error {
	defer a.close()

	srv := &http.Server{
		Addr:              a.cfg.HTTPAddr,
		Handler:           a.handler,
		ReadHeaderTimeout: nonZeroDuration(a.cfg.ReadHeaderTimeout, 5*time.Second),
		ReadTimeout:       nonZeroDuration(a.cfg.ReadTimeout, 15*time.Second),
		WriteTimeout:      nonZeroDuration(a.cfg.WriteTimeout, 15*time.Second),
		IdleTimeout:       nonZeroDuration(a.cfg.IdleTimeout, 60*time.Second),
		MaxHeaderBytes:    nonZeroInt(a.cfg.MaxHeaderBytes, 1<<20),
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		a.log.Info("server.start", "addr", a.cfg.HTTPAddr, "db_enabled", a.dbPool != nil)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.log.Error("server.fail", "err", err)
			return err
		}
		return nil
	})

	g.Go(func() error {
		return session.RunJanitor(gctx, a.sessions, a.sweep, a.log)
	})

	g.Go(func() error {
		<-gctx.Done()
		a.log.Info("server.stop", "reason", "context_done")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), nonZeroDuration(a.cfg.ShutdownTimeout, 10*time.Second))
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			a.log.Error("server.shutdown.fail", "err", err)
			return err
		}
		return nil
	})

	err := g.Wait()
	a.log.Info("server.stopped")
	return err
}

func (a *App) close() {
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			a.log.Error("redis.close.fail", "err", err)
		}
		a.redis = nil
	}
	if a.dbPool != nil {
		a.dbPool.Close()
		a.dbPool = nil
	}
}

func nonZeroDuration(v, def time.Duration) time.Duration {
	if v <= 0 {
		return def
	}
	return v
}

func nonZeroInt(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}
