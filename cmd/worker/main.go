package main

import (
	"context"
	"errors"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"posting-scheduler/internal/adapters/captioner"
	"posting-scheduler/internal/adapters/notifier"
	"posting-scheduler/internal/adapters/repo"
	"posting-scheduler/internal/adapters/uploadpost"
	"posting-scheduler/internal/adapters/yadisk"
	"posting-scheduler/internal/domain"
	"posting-scheduler/internal/infra/cache"
	"posting-scheduler/internal/infra/config"
	"posting-scheduler/internal/infra/db"
	"posting-scheduler/internal/infra/events"
	"posting-scheduler/internal/infra/log"
	"posting-scheduler/internal/infra/metrics"
	"posting-scheduler/internal/infra/openai"
	"posting-scheduler/internal/infra/queue"
	"posting-scheduler/internal/usecase/publish"
	"posting-scheduler/internal/usecase/schedule"
)

func main() {
	cfg := config.Load()
	logger := log.NewLogger(cfg.AppEnv).With().Str("service", "worker").Logger()
	metrics.MustRegister(prometheus.DefaultRegisterer)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	go metrics.StartServer(ctx, logger, ":9090")

	pool, err := db.Connect(cfg.PGDSN)
	if err != nil {
		logger.Fatal().Err(err).Msg("worker: нет подключения к БД")
	}
	defer pool.Close()
	repoAdapter := repo.NewPostgres(pool)

	redisClient := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	defer redisClient.Close()
	guard := cache.NewRedis(redisClient)

	var runQueue domain.RunQueue
	if cfg.RabbitManagementURL != "" {
		rabbit, err := queue.NewRabbitRunQueue(cfg.RabbitURL, cfg.RabbitManagementURL, cfg.Queues.Runs)
		if err != nil {
			logger.Fatal().Err(err).Msg("worker: нет подключения к RabbitMQ")
		}
		runQueue = rabbit
	} else {
		runQueue = queue.NewRedisRunQueue(redisClient, cfg.Queues.Runs)
	}

	catalog := yadisk.NewClient(cfg.Yandex.Token, cfg.Yandex.Timeout)
	publisher := uploadpost.NewClient(cfg.UploadPost.APIKey, cfg.UploadPost.Timeout)

	var captionerAdapter domain.Captioner = captioner.StaticCaptioner{}
	if cfg.OpenAI.APIKey != "" {
		llm := openai.NewClient(cfg.OpenAI.APIKey, cfg.OpenAI.BaseURL, cfg.OpenAI.Timeout)
		captionerAdapter = captioner.NewOpenAICaptioner(llm, cfg.OpenAI.Model, captioner.StaticCaptioner{}, logger)
	} else {
		logger.Info().Msg("worker: ключ OpenAI не задан, подписи генерируются шаблоном")
	}

	adminNotifier, err := notifier.NewTelegramNotifier(cfg.Telegram.Token, cfg.Telegram.AdminChatID, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("worker: не удалось настроить уведомления")
	}

	broadcaster := events.NewBroadcaster(logger)
	publishService := publish.NewService(
		repoAdapter, repoAdapter, repoAdapter,
		catalog, publisher, captionerAdapter,
		broadcaster, logger, cfg.Publish.Concurrency,
	)
	runner := schedule.NewRunner(
		repoAdapter, repoAdapter, repoAdapter, repoAdapter,
		catalog, publishService, guard, adminNotifier, broadcaster, logger,
	)

	go publishLoop(ctx, publishService, adminNotifier, cfg.Publish.Interval, logger)

	logger.Info().Msg("worker: запущен, ждём задачи на планирование")
	for {
		job, err := runQueue.Pop(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || ctx.Err() != nil {
				logger.Info().Msg("worker: остановка")
				return
			}
			logger.Error().Err(err).Msg("worker: ошибка чтения очереди")
			time.Sleep(5 * time.Second)
			continue
		}
		if err := runner.Run(ctx, job); err != nil {
			logger.Error().Err(err).Str("run_id", job.ID).Msg("worker: запуск завершился ошибкой")
		}
	}
}

// publishLoop с заданным интервалом публикует созревшие записи истории.
func publishLoop(ctx context.Context, service *publish.Service, adminNotifier domain.Notifier, interval time.Duration, logger zerolog.Logger) {
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		if err := service.PublishDue(ctx, time.Now()); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error().Err(err).Msg("worker: цикл публикации завершился ошибкой")
			if notifyErr := adminNotifier.NotifyError(ctx, "publish", err); notifyErr != nil {
				logger.Warn().Err(notifyErr).Msg("worker: не удалось отправить уведомление об ошибке")
			}
		}
	}
}
