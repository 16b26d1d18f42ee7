package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	"posting-scheduler/internal/adapters/repo"
	"posting-scheduler/internal/adapters/uploadpost"
	"posting-scheduler/internal/api"
	"posting-scheduler/internal/domain"
	"posting-scheduler/internal/infra/cache"
	"posting-scheduler/internal/infra/config"
	"posting-scheduler/internal/infra/db"
	"posting-scheduler/internal/infra/events"
	infrahttp "posting-scheduler/internal/infra/http"
	"posting-scheduler/internal/infra/log"
	"posting-scheduler/internal/infra/metrics"
	"posting-scheduler/internal/infra/queue"
	"posting-scheduler/internal/usecase/profiles"
)

func main() {
	cfg := config.Load()
	logger := log.NewLogger(cfg.AppEnv).With().Str("service", "api").Logger()
	metrics.MustRegister(prometheus.DefaultRegisterer)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := db.Connect(cfg.PGDSN)
	if err != nil {
		logger.Fatal().Err(err).Msg("api: нет подключения к БД")
	}
	defer pool.Close()
	repoAdapter := repo.NewPostgres(pool)

	redisClient := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	defer redisClient.Close()

	var runQueue domain.RunQueue
	if cfg.RabbitManagementURL != "" {
		rabbit, err := queue.NewRabbitRunQueue(cfg.RabbitURL, cfg.RabbitManagementURL, cfg.Queues.Runs)
		if err != nil {
			logger.Fatal().Err(err).Msg("api: нет подключения к RabbitMQ")
		}
		runQueue = rabbit
	} else {
		runQueue = queue.NewRedisRunQueue(redisClient, cfg.Queues.Runs)
	}

	publisher := uploadpost.NewClient(cfg.UploadPost.APIKey, cfg.UploadPost.Timeout)
	broadcaster := events.NewBroadcaster(logger)
	syncer := profiles.NewSyncer(repoAdapter, publisher, logger)

	server := infrahttp.NewServer(logger)
	handler := api.NewHandler(repoAdapter, repoAdapter, repoAdapter, runQueue, publisher, cache.NewRedis(redisClient), syncer, broadcaster, logger)
	handler.Register(server.Router)

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start(fmt.Sprintf(":%d", cfg.Port))
	}()

	select {
	case <-ctx.Done():
		logger.Info().Msg("api: получен сигнал остановки")
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("api: сервер упал")
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("api: ошибка при остановке сервера")
	}
}
