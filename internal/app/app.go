// Package app wires the Ripple server runtime: config, logging, storage,
// chat services, the HTTP API and the realtime gateway.
package app

import (
	"context"
	"errors"
	"net/http"
	"time"

	"ripple/internal/auth"
	"ripple/internal/chat"
	chatapi "ripple/internal/chat/api"
	"ripple/internal/directory"
	"ripple/internal/realtime"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
)

// App is the Ripple server runtime. It owns resource lifecycles; the services
// it wires only borrow them.
type App struct {
	cfg Config
	log Logger

	dbPool    *pgxpool.Pool
	dbEnabled bool

	redis *redis.Client

	store     chat.Store
	blacklist auth.Blacklist

	ws   *realtime.Gateway
	chat *chatapi.Handler
}

// New constructs a fully wired App instance from config and logger.
func New(cfg Config, log Logger) (*App, error) {
	if log == nil {
		log = NewLogger(cfg.LogLevel)
	}

	a := &App{cfg: cfg, log: log}

	store, dir, err := a.newStorage(context.Background())
	if err != nil {
		return nil, err
	}
	a.store = store

	verifier, err := auth.NewPasetoV4Verifier(auth.Config{
		Issuer:       cfg.TokenIssuer,
		PublicKeyHex: cfg.TokenPublicKeyHex,
		ClockSkew:    cfg.TokenClockSkew,
	})
	if err != nil {
		a.closeResources()
		return nil, err
	}

	var limiter chatapi.RateLimiter
	if a.redis != nil {
		a.blacklist = auth.NewRedisBlacklist(a.redis)
		limiter = chatapi.NewRedisRateLimiter(a.redis, cfg.RateLimit, cfg.RateWindow)
		log.Info("redis.enabled", "addr", cfg.RedisAddr)
	} else {
		a.blacklist = auth.NewMemoryBlacklist(log, cfg.BlacklistSweep)
		limiter = chatapi.NewMemoryRateLimiter(cfg.RateLimit, cfg.RateWindow)
	}

	authn := auth.NewAuthenticator(verifier, a.blacklist)

	msgs := chat.NewMessageService(log, store, dir)
	convs := chat.NewConversationService(log, store, dir, msgs)

	a.ws = realtime.NewGateway(log, realtime.NewHub(log), authn, convs, realtime.GatewayConfig{
		OriginRequired:    cfg.WSOriginRequired,
		AllowedOrigins:    cfg.WSAllowedOrigins,
		StrictMembership:  cfg.WSStrictMembership,
		WriteTimeout:      cfg.WSWriteTimeout,
		ReadIdleTimeout:   cfg.WSReadIdleTimeout,
		SendQueueSize:     cfg.WSSendQueue,
		HeartbeatInterval: cfg.WSHeartbeat,
		HeartbeatTimeout:  cfg.WSHeartbeatTimeout,
		RateEvents:        cfg.WSRateEvents,
		RateWindow:        cfg.WSRateWindow,
	})

	a.chat = chatapi.NewHandler(log, chatapi.Config{RateWindow: cfg.RateWindow}, convs, msgs, authn,
		chatapi.WithRateLimiter(limiter),
		chatapi.WithNotifier(a.ws),
	)

	return a, nil
}

// Run starts the HTTP server and blocks until context cancellation or fatal
// server error.
func (a *App) Run(ctx context.Context) error {
	// The memory blacklist needs its sweep loop; Redis expires keys itself.
	if mb, ok := a.blacklist.(*auth.MemoryBlacklist); ok {
		go mb.Run(ctx)
	}

	mux := http.NewServeMux()
	registerHTTP(mux, a.log, a.cfg, a.dbPool, a.dbEnabled, a.ws, a.chat)

	srv := &http.Server{
		Addr:              a.cfg.HTTPAddr,
		Handler:           WithRequestLogging(mux, a.log),
		ReadHeaderTimeout: nonZeroDuration(a.cfg.ReadHeaderTimeout, 5*time.Second),
		ReadTimeout:       nonZeroDuration(a.cfg.ReadTimeout, 15*time.Second),
		WriteTimeout:      nonZeroDuration(a.cfg.WriteTimeout, 15*time.Second),
		IdleTimeout:       nonZeroDuration(a.cfg.IdleTimeout, 60*time.Second),
		MaxHeaderBytes:    nonZeroInt(a.cfg.MaxHeaderBytes, 1<<20),
	}

	a.log.Info("server.start", "addr", a.cfg.HTTPAddr, "db_enabled", a.dbEnabled)

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
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.log.Error("server.shutdown.fail", "err", err)
		return err
	}

	a.closeResources()
	a.log.Info("server.stopped")
	return nil
}

// newStorage decides between Postgres-backed persistence and the in-memory
// dev store, and dials Redis when configured.
//
// Ownership model: the app owns the pool and Redis client lifecycles; store
// Close methods are no-ops for borrowed resources.
func (a *App) newStorage(ctx context.Context) (chat.Store, directory.Directory, error) {
	if a.cfg.RedisAddr != "" {
		a.redis = redis.NewClient(&redis.Options{
			Addr:     a.cfg.RedisAddr,
			Password: a.cfg.RedisPassword,
			DB:       a.cfg.RedisDB,
		})
	}

	if a.cfg.DatabaseURL == "" {
		a.log.Info("db.disabled.inmemory_store")
		return chat.NewMemoryStore(), directory.NewMemoryDirectory(), nil
	}

	pool, err := NewDBPool(ctx, a.cfg)
	if err != nil {
		return nil, nil, err
	}
	a.dbPool = pool
	a.dbEnabled = true

	a.log.Info("db.enabled.postgres_store", "schema", a.cfg.DBSchema)

	store, err := chat.NewPostgresStore(pool, chat.WithSchema(a.cfg.DBSchema))
	if err != nil {
		pool.Close()
		return nil, nil, err
	}
	dir, err := directory.NewPostgresDirectory(pool, directory.WithSchema(a.cfg.DBSchema))
	if err != nil {
		pool.Close()
		return nil, nil, err
	}
	return store, dir, nil
}

func (a *App) closeResources() {
	if a.store != nil {
		_ = a.store.Close()
	}
	if a.dbPool != nil {
		a.dbPool.Close()
		a.dbPool = nil
	}
	if a.redis != nil {
		_ = a.redis.Close()
		a.redis = nil
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
