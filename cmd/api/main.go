package main

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/josh-kwaku/account-ledger/internal/accountnumber"
	"github.com/josh-kwaku/account-ledger/internal/config"
	"github.com/josh-kwaku/account-ledger/internal/handler"
	"github.com/josh-kwaku/account-ledger/internal/lock"
	"github.com/josh-kwaku/account-ledger/internal/logging"
	"github.com/josh-kwaku/account-ledger/internal/middleware"
	"github.com/josh-kwaku/account-ledger/internal/repository"
	"github.com/josh-kwaku/account-ledger/internal/service"
)

//go:embed openapi.yaml
var openAPIDoc []byte

const idempotencySweepInterval = time.Hour

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logging.Init("account-ledger", cfg.LogLevel, cfg.AppEnv)

	if err := run(cfg); err != nil {
		slog.Error("server exited with error", "error", err)
		os.Exit(1)
	}
	slog.Info("server stopped")
}

func run(cfg *config.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := repository.NewPostgresDB(ctx, cfg.DatabaseURL, repository.PoolConfig{
		MaxOpenConns:    cfg.DBMaxOpenConns,
		MaxIdleConns:    cfg.DBMaxIdleConns,
		ConnMaxLifetime: time.Duration(cfg.DBConnMaxLifetimeS) * time.Second,
		ConnMaxIdleTime: time.Duration(cfg.DBConnMaxIdleTimeS) * time.Second,
	})
	if err != nil {
		return fmt.Errorf("run: %w", err)
	}
	defer db.Close()

	checks := map[string]handler.HealthCheck{"database": db.PingContext}

	locker, closeLocker, err := newLocker(ctx, cfg, checks)
	if err != nil {
		return fmt.Errorf("run: %w", err)
	}
	defer closeLocker()

	users := repository.NewUserRepository(db)
	accounts := repository.NewAccountRepository(db)
	transactions := repository.NewTransactionRepository(db)
	idempotency := repository.NewIdempotencyRepository(db)

	accountSvc := service.NewAccountService(users, accounts, accountnumber.NewGenerator(accounts, nil), locker)
	txSvc := service.NewTransactionService(accounts, transactions, repository.NewDB(db), locker, cfg.BalanceHoldDelay)

	accountHandler := handler.NewAccountHandler(accountSvc)
	txHandler := handler.NewTransactionHandler(txSvc)
	healthHandler := handler.NewHealthHandler(checks)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /health/live", healthHandler.Liveness)
	mux.HandleFunc("GET /health/ready", healthHandler.Readiness)
	mux.HandleFunc("GET /docs", handler.ServeDocs())
	mux.HandleFunc("GET /docs/openapi.yaml", handler.ServeOpenAPI(openAPIDoc))

	mux.HandleFunc("POST /account", accountHandler.Create)
	mux.HandleFunc("DELETE /account", accountHandler.Delete)
	mux.HandleFunc("GET /account", accountHandler.List)
	mux.HandleFunc("GET /account/{id}", accountHandler.Get)

	mux.HandleFunc("POST /transaction/use", txHandler.Use)
	mux.HandleFunc("POST /transaction/cancel", txHandler.Cancel)
	mux.HandleFunc("GET /transaction/{transactionId}", txHandler.Get)

	root := middleware.Chain(mux,
		middleware.Recovery,
		middleware.Tracing,
		middleware.Logging,
		middleware.Idempotency(idempotency, locker),
	)

	// Balance mutations clear the write deadline in their handlers, since they
	// may queue on an account lock for longer than WriteTimeout.
	addr := fmt.Sprintf(":%d", cfg.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           root,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go sweepIdempotencyKeys(ctx, idempotency)

	errCh := make(chan error, 1)
	go func() {
		slog.Info("server started", "addr", addr, "lock_backend", cfg.LockBackend)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("run: listen: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	slog.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("run: shutdown: %w", err)
	}
	return nil
}

// newLocker builds the configured lock backend. For redis it also registers
// a readiness check.
func newLocker(ctx context.Context, cfg *config.Config, checks map[string]handler.HealthCheck) (lock.Locker, func(), error) {
	if cfg.LockBackend != config.LockBackendRedis {
		return lock.NewLocal(), func() {}, nil
	}

	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, nil, fmt.Errorf("newLocker: parse REDIS_URL: %w", err)
	}
	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, nil, fmt.Errorf("newLocker: ping redis: %w", err)
	}

	locker, err := lock.NewRedis(client, lock.RedisOptions{
		Expiry:     cfg.LockExpiry,
		RetryDelay: cfg.LockRetryDelay,
	})
	if err != nil {
		client.Close()
		return nil, nil, fmt.Errorf("newLocker: %w", err)
	}

	checks["redis"] = func(ctx context.Context) error { return client.Ping(ctx).Err() }

	return locker, func() {
		if err := client.Close(); err != nil {
			slog.Warn("failed to close redis client", "error", err)
		}
	}, nil
}

func sweepIdempotencyKeys(ctx context.Context, repo *repository.IdempotencyRepository) {
	ticker := time.NewTicker(idempotencySweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := repo.CleanExpired(ctx)
			if err != nil {
				slog.Warn("idempotency sweep failed", "error", err)
				continue
			}
			if n > 0 {
				slog.Info("idempotency sweep removed expired keys", "count", n)
			}
		}
	}
}
