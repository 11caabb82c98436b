package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/iliyamo/table-reservation/internal/config"
	"github.com/iliyamo/table-reservation/internal/logger"
	"github.com/iliyamo/table-reservation/internal/queue"
)

// notify-worker drains booking events from RabbitMQ and hands each one to
// the mailer until SIGINT or SIGTERM.
func main() {
	_ = godotenv.Load()

	env := os.Getenv("APP_ENV")
	zl, err := logger.New(env, "notify-worker")
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer func() { _ = zl.Sync() }()

	ncfg, err := config.LoadNotify()
	if err != nil {
		zl.Fatal("notify config", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	consumer := queue.NewConsumer(queue.ConsumerConfig{
		URL:      ncfg.AMQPURL,
		Exchange: ncfg.Exchange,
		Queue:    ncfg.Queue,
		Prefetch: ncfg.Prefetch,
	}, queue.NewLogMailer(ncfg.LogPath, zl), zl)

	zl.Info("notify worker started", zap.String("queue", ncfg.Queue))
	if err := consumer.Run(ctx); err != nil && ctx.Err() == nil {
		zl.Fatal("consumer stopped", zap.Error(err))
	}
	zl.Info("notify worker stopped")
}
