// Package app wires the Dwell chat server runtime: config, logging, stores,
// the broadcast bus, HTTP routes, and the realtime gateway.
package app

import (
	"context"
	"crypto/rand"
	"errors"
	"net/http"
	"time"

	"dwell/cmd/internal/auth"
	"dwell/cmd/internal/chat"
	chatapi "dwell/cmd/internal/chat/api"
	"dwell/cmd/internal/directory"
	"dwell/cmd/internal/notify"
	"dwell/cmd/internal/realtime"
	"dwell/cmd/security/password"
	"dwell/cmd/security/token"

	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
)

// App is the Dwell server runtime. It owns the lifecycle of every wired
// resource: DB pool, Redis client, task queue, bus, and HTTP server.
type App struct {
	cfg Config
	log Logger

	dbPool    *pgxpool.Pool
	dbEnabled bool

	rdb          *redis.Client
	redisEnabled bool

	bus         realtime.Bus
	asynqClient *asynq.Client
	worker      *asynq.Server
	workerMux   *asynq.ServeMux

	ws      *realtime.WSGateway
	authAPI *auth.Handler
	chatAPI *chatapi.Handler
}

// New constructs a fully wired App instance from config and logger.
func New(cfg Config, log Logger) (*App, error) {
	if log == nil {
		log = NewLogger(cfg.LogLevel)
	}

	a := &App{cfg: cfg, log: log}

	key, err := tokenKey(log)
	if err != nil {
		return nil, err
	}
	pwCfg, err := password.FromEnv()
	if err != nil {
		return nil, err
	}

	users, listings, chatStore, err := a.initStores(context.Background())
	if err != nil {
		return nil, err
	}

	reminders, err := a.initRedis(context.Background(), chatStore)
	if err != nil {
		a.closeResources()
		return nil, err
	}

	svc, err := chat.NewService(log, chatStore, users, listings, reminders)
	if err != nil {
		a.closeResources()
		return nil, err
	}

	authenticator, err := auth.NewTokenAuthenticator(key)
	if err != nil {
		a.closeResources()
		return nil, err
	}
	a.authAPI, err = auth.NewHandler(log, users, pwCfg, key, auth.WithTokenTTL(cfg.TokenTTL))
	if err != nil {
		a.closeResources()
		return nil, err
	}
	a.chatAPI, err = chatapi.NewHandler(log, svc, authenticator)
	if err != nil {
		a.closeResources()
		return nil, err
	}
	a.ws, err = realtime.NewWSGateway(log, svc, a.bus, authenticator)
	if err != nil {
		a.closeResources()
		return nil, err
	}

	return a, nil
}

// initStores decides between Postgres-backed persistence and the in-memory
// dev stores.
func (a *App) initStores(ctx context.Context) (directory.Users, directory.Listings, chat.Store, error) {
	if a.cfg.DatabaseURL == "" {
		a.log.Info("db.disabled.inmemory_store")
		dir := directory.NewInMemoryStore()
		return dir, dir, chat.NewInMemoryStore(), nil
	}

	if a.cfg.MigrateOnStart {
		if err := RunMigrate(a.log, a.cfg.DatabaseURL, "up", nil); err != nil {
			return nil, nil, nil, err
		}
	}

	pool, err := NewDBPool(ctx, a.cfg)
	if err != nil {
		return nil, nil, nil, err
	}
	a.dbPool = pool
	a.dbEnabled = true

	a.log.Info("db.enabled.postgres_store", "schema", a.cfg.DBSchema)

	dir, err := directory.NewPostgresStore(pool, directory.WithSchema(a.cfg.DBSchema))
	if err != nil {
		return nil, nil, nil, err
	}
	chatStore, err := chat.NewPostgresStore(pool, chat.WithSchema(a.cfg.DBSchema))
	if err != nil {
		return nil, nil, nil, err
	}
	return dir, dir, chatStore, nil
}

// initRedis wires the broadcast bus and the reminder queue. Without Redis,
// delivery stays correct on a single instance (in-process bus) and
// reminders are disabled.
func (a *App) initRedis(ctx context.Context, chatStore chat.Store) (chat.ReminderEnqueuer, error) {
	if a.cfg.RedisURL == "" {
		a.log.Info("redis.disabled.inprocess_bus")
		a.bus = realtime.NewMemoryBus()
		return chat.NopEnqueuer{}, nil
	}

	ropts, err := redis.ParseURL(a.cfg.RedisURL)
	if err != nil {
		return nil, err
	}
	a.rdb = redis.NewClient(ropts)

	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := a.rdb.Ping(pingCtx).Err(); err != nil {
		return nil, err
	}
	a.redisEnabled = true

	bus, err := realtime.NewRedisBus(a.log, a.rdb)
	if err != nil {
		return nil, err
	}
	a.bus = bus

	connOpt, err := asynq.ParseRedisURI(a.cfg.RedisURL)
	if err != nil {
		return nil, err
	}
	a.asynqClient = asynq.NewClient(connOpt)

	enq, err := notify.NewEnqueuer(a.log, a.asynqClient, notify.WithReminderDelay(a.cfg.ReminderDelay))
	if err != nil {
		return nil, err
	}

	if a.cfg.WorkerEnabled {
		wkr, err := notify.NewWorker(a.log, chatStore, nil)
		if err != nil {
			return nil, err
		}
		a.worker = notify.NewServer(connOpt, a.cfg.WorkerConcurrency)
		a.workerMux = wkr.Mux()
	}

	a.log.Info("redis.enabled", "worker", a.cfg.WorkerEnabled)
	return enq, nil
}

// Run starts the HTTP server (and the reminder worker, when enabled) and
// blocks until context cancellation or fatal server error.
func (a *App) Run(ctx context.Context) error {
	if a.worker != nil {
		if err := a.worker.Start(a.workerMux); err != nil {
			return err
		}
	}

	mux := http.NewServeMux()
	registerHTTP(mux, a.log, a.cfg, a.dbPool, a.dbEnabled, a.ws, a.authAPI, a.chatAPI)

	srv := &http.Server{
		Addr:              a.cfg.HTTPAddr,
		Handler:           WithRequestLogging(mux, a.log),
		ReadHeaderTimeout: nonZeroDuration(a.cfg.ReadHeaderTimeout, 5*time.Second),
		ReadTimeout:       nonZeroDuration(a.cfg.ReadTimeout, 15*time.Second),
		WriteTimeout:      nonZeroDuration(a.cfg.WriteTimeout, 15*time.Second),
		IdleTimeout:       nonZeroDuration(a.cfg.IdleTimeout, 60*time.Second),
		MaxHeaderBytes:    nonZeroInt(a.cfg.MaxHeaderBytes, 1<<20),
	}

	a.log.Info("server.start",
		"addr", a.cfg.HTTPAddr,
		"db_enabled", a.dbEnabled,
		"redis_enabled", a.redisEnabled,
	)

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		a.log.Info("server.stop", "reason", "context_done")
	case err := <-errCh:
		a.log.Error("server.fail", "err", err)
		a.stopWorker()
		a.closeResources()
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.log.Error("server.shutdown.fail", "err", err)
		a.stopWorker()
		a.closeResources()
		return err
	}

	a.stopWorker()
	a.closeResources()

	a.log.Info("server.stopped")
	return nil
}

func (a *App) stopWorker() {
	if a.worker != nil {
		a.worker.Shutdown()
		a.worker = nil
	}
}

func (a *App) closeResources() {
	if a.bus != nil {
		_ = a.bus.Close()
		a.bus = nil
	}
	if a.asynqClient != nil {
		_ = a.asynqClient.Close()
		a.asynqClient = nil
	}
	if a.rdb != nil {
		_ = a.rdb.Close()
		a.rdb = nil
	}
	if a.dbPool != nil {
		a.dbPool.Close()
		a.dbPool = nil
	}
}

// tokenKey loads the signing key from the environment, or generates an
// ephemeral one for keyless dev runs (tokens won't survive a restart).
func tokenKey(log Logger) ([]byte, error) {
	key, err := token.HMACKeyFromEnv(token.MinKeyBytes)
	if err == nil {
		return key, nil
	}
	if !errors.Is(err, token.ErrHMACKeyMissing) {
		return nil, err
	}

	key = make([]byte, token.MinKeyBytes)
	if _, err := rand.Read(key); err != nil {
		return nil, err
	}
	log.Warn("auth.key.ephemeral", "hint", token.HMACEnvKey+" is not set; sessions reset on restart")
	return key, nil
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
