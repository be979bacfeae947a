package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/yashasviy/cave-treasure-api/api"
	"github.com/yashasviy/cave-treasure-api/auth"
	"github.com/yashasviy/cave-treasure-api/config"
	"github.com/yashasviy/cave-treasure-api/db"
	"github.com/yashasviy/cave-treasure-api/middleware"
	"github.com/yashasviy/cave-treasure-api/models"
	"github.com/yashasviy/cave-treasure-api/store"
	"github.com/yashasviy/cave-treasure-api/treasure"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("invalid configuration", "error", err.Error())
		os.Exit(1)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.SlogLevel()})).
		With("service", "cave-treasure-api")
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("server stopped", "event", "server_failed", "error", err.Error())
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Config, logger *slog.Logger) error {
	ledger := treasure.Ledger{
		ThiefKey:   cfg.ThiefKey,
		HolderKey:  cfg.HolderKey,
		ThiefSeed:  cfg.ThiefSeed,
		HolderSeed: cfg.HolderSeed,
		TTL:        cfg.BalanceTTL,
	}

	var (
		balances treasure.BalanceStore
		rdb      *redis.Client
	)
	if cfg.RedisAddr != "" {
		client, err := store.Dial(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err != nil {
			return err
		}
		defer client.Close()
		rdb = client
		balances = store.NewRedis(client)
		logger.Info("redis connected", "event", "redis_connected", "addr", cfg.RedisAddr)
	} else {
		balances = store.NewMemory()
		logger.Warn("REDIS_ADDR not set, balances are kept in process memory", "event", "memory_store_selected")
	}

	engine := treasure.Engine{
		Reader: treasure.Reader{Store: balances, Ledger: ledger, Logger: logger},
		Locker: treasure.NewLocalLocker(),
		Logger: logger,
	}
	if cfg.LockBackend == config.LockBackendRedis {
		engine.Locker = treasure.RedisLocker{Client: rdb, Timeout: cfg.LockTimeout, Logger: logger}
	}

	if cfg.DBURL != "" {
		conn, err := db.Open(ctx, cfg.DBURL)
		if err != nil {
			return err
		}
		defer conn.Close()
		if err := db.Initialize(ctx, conn); err != nil {
			return err
		}
		engine.Journal = db.NewJournal(conn)
		logger.Info("transfer journal enabled", "event", "journal_enabled")
	}

	deps := api.Deps{
		Engine: engine,
		Gate: auth.JWTGate{
			Secret:     []byte(cfg.JWTSecret),
			Issuer:     cfg.JWTIssuer,
			Audience:   cfg.JWTAudience,
			RolesClaim: cfg.JWTRolesClaim,
		},
		Policy: auth.DefaultPolicy(),
		PublicConfig: models.AppConfig{
			AuthDomain:   cfg.AuthDomain,
			AuthClientID: cfg.AuthClientID,
		},
		Logger: logger,
	}
	if rdb != nil {
		deps.Idempotency = middleware.Idempotency(rdb, logger)
	}

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           api.NewRouter(deps),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       cfg.HTTPReadTimeout,
		WriteTimeout:      cfg.HTTPWriteTimeout,
		IdleTimeout:       cfg.HTTPIdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server listening", "event", "server_started", "addr", cfg.HTTPAddr, "lock_backend", cfg.LockBackend)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	logger.Info("server shutting down", "event", "server_stopping")
	return srv.Shutdown(shutdownCtx)
}
