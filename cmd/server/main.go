package main // Entry point package

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"

	"github.com/iliyamo/table-reservation/internal/config"
	"github.com/iliyamo/table-reservation/internal/database"
	"github.com/iliyamo/table-reservation/internal/handler"
	"github.com/iliyamo/table-reservation/internal/logger"
	"github.com/iliyamo/table-reservation/internal/middleware"
	"github.com/iliyamo/table-reservation/internal/obs"
	"github.com/iliyamo/table-reservation/internal/queue"
	"github.com/iliyamo/table-reservation/internal/repository"
	"github.com/iliyamo/table-reservation/internal/router"
	"github.com/iliyamo/table-reservation/internal/service"
)

func main() {
	_ = godotenv.Load() // .env is optional; real env vars win

	cfg := config.Load()
	zl, err := logger.New(cfg.Env, "reservation-api")
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer func() { _ = zl.Sync() }()

	if err := run(cfg, zl); err != nil {
		zl.Fatal("server stopped", zap.Error(err))
	}
}

func run(cfg config.Config, zl *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	tcfg, err := config.LoadTracing()
	if err != nil {
		return err
	}
	shutdownTracing, err := obs.InitTracer(ctx, tcfg, cfg.Env)
	if err != nil {
		return err
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = shutdownTracing(sctx)
	}()

	db, err := database.Open(cfg.DBUser, cfg.DBPass, cfg.DBHost, cfg.DBPort, cfg.DBName)
	if err != nil {
		return err
	}
	defer db.Close()
	if cfg.AutoMigrate {
		if err := database.Migrate(ctx, db); err != nil {
			return err
		}
	}

	notifier := newNotifier(zl)
	if c, ok := notifier.(interface{ Close() error }); ok {
		defer c.Close()
	}

	var (
		limiter *middleware.RateLimiter
		cache   *middleware.ResponseCache
	)
	if rdb := config.NewRedisClient(zl); rdb != nil {
		defer rdb.Close()
		limiter = middleware.NewRateLimiter(config.LoadRateLimitConfig(), rdb, zl)
		cache = middleware.NewResponseCache(config.LoadCacheConfig(), rdb, zl)
	}

	store := repository.NewStore(db, zl, cfg.TxMaxAttempts)
	reservations := service.NewReservationService(store, notifier, zl, cfg.ReserveTimeout)
	queries := service.NewQueryService(store)

	e := router.New(router.Deps{
		Log:          zl,
		JWTSecret:    cfg.JWTSecret,
		Health:       handler.Health(db),
		Auth:         handler.NewAuthHandler(cfg, repository.NewUserRepo(db), repository.NewTokenRepo(db), zl),
		Restaurants:  handler.NewRestaurantHandler(repository.NewRestaurantRepo(db), cache, zl),
		Reservations: handler.NewReservationHandler(reservations, queries, cache, zl),
		Limiter:      limiter,
		Cache:        cache,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           otelhttp.NewHandler(e, "reservation-api"),
		ReadHeaderTimeout: 5 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		zl.Info("listening", zap.String("addr", srv.Addr), zap.String("env", cfg.Env))
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
	zl.Info("shutting down")
	sctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(sctx)
}

// newNotifier connects the booking event publisher.  Reservations never
// depend on the broker, so any failure falls back to a no-op notifier.
func newNotifier(zl *zap.Logger) service.Notifier {
	ncfg, err := config.LoadNotify()
	if err != nil {
		zl.Warn("invalid notify config, notifications disabled", zap.Error(err))
		return queue.NopNotifier{}
	}
	if !ncfg.Enabled {
		return queue.NopNotifier{}
	}
	pub, err := queue.NewPublisher(ncfg.AMQPURL, ncfg.Exchange, zl)
	if err != nil {
		zl.Warn("broker unavailable, notifications disabled", zap.Error(err))
		return queue.NopNotifier{}
	}
	return pub
}
