package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/adhocore/gronx"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"posting-scheduler/internal/adapters/repo"
	"posting-scheduler/internal/domain"
	"posting-scheduler/internal/infra/config"
	"posting-scheduler/internal/infra/db"
	"posting-scheduler/internal/infra/log"
	"posting-scheduler/internal/infra/metrics"
	"posting-scheduler/internal/infra/queue"
)

// Как часто сверяем cron-выражение с текущим временем.
const checkInterval = 30 * time.Second

func main() {
	cfg := config.Load()
	logger := log.NewLogger(cfg.AppEnv).With().Str("service", "scheduler").Logger()
	metrics.MustRegister(prometheus.DefaultRegisterer)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	go metrics.StartServer(ctx, logger, ":9090")

	pool, err := db.Connect(cfg.PGDSN)
	if err != nil {
		logger.Fatal().Err(err).Msg("scheduler: нет подключения к БД")
	}
	defer pool.Close()
	repoAdapter := repo.NewPostgres(pool)

	var runQueue domain.RunQueue
	if cfg.RabbitManagementURL != "" {
		rabbit, err := queue.NewRabbitRunQueue(cfg.RabbitURL, cfg.RabbitManagementURL, cfg.Queues.Runs)
		if err != nil {
			logger.Fatal().Err(err).Msg("scheduler: нет подключения к RabbitMQ")
		}
		runQueue = rabbit
	} else {
		redisClient := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		defer redisClient.Close()
		runQueue = queue.NewRedisRunQueue(redisClient, cfg.Queues.Runs)
	}

	logger.Info().Msg("scheduler: запущен, следим за cron-расписанием")
	runLoop(ctx, repoAdapter, runQueue, logger)
}

// runLoop каждые полминуты проверяет cron из настроек и ставит запуск в
// очередь. Минута срабатывания запоминается, чтобы не продублировать задачу
// внутри одной минуты.
func runLoop(ctx context.Context, settings domain.SettingsRepo, runQueue domain.RunQueue, logger zerolog.Logger) {
	cron := gronx.New()
	lastFired := ""

	ticker := time.NewTicker(checkInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			logger.Info().Msg("scheduler: остановка")
			return
		case <-ticker.C:
		}

		current, err := settings.LoadSettings(ctx)
		if err != nil {
			logger.Error().Err(err).Msg("scheduler: не удалось загрузить настройки")
			continue
		}
		if !current.Schedule.Enabled {
			continue
		}

		loc, err := time.LoadLocation(current.Schedule.Timezone)
		if err != nil {
			logger.Warn().Err(err).Str("tz", current.Schedule.Timezone).Msg("scheduler: неизвестная таймзона, используем UTC")
			loc = time.UTC
		}
		now := time.Now().In(loc)

		minute := now.Format("2006-01-02 15:04")
		if minute == lastFired {
			continue
		}

		due, err := cron.IsDue(current.CronSchedule, now)
		if err != nil {
			logger.Error().Err(err).Str("cron", current.CronSchedule).Msg("scheduler: некорректное cron-выражение")
			continue
		}
		if !due {
			continue
		}

		job := domain.RunJob{
			ID:          uuid.NewString(),
			Reason:      "cron",
			RequestedAt: time.Now().UTC(),
		}
		if err := runQueue.Enqueue(ctx, job); err != nil {
			logger.Error().Err(err).Msg("scheduler: не удалось поставить запуск в очередь")
			continue
		}
		lastFired = minute
		logger.Info().Str("run_id", job.ID).Str("cron", current.CronSchedule).Msg("scheduler: запуск поставлен в очередь")
	}
}
