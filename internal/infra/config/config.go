package config

import (
	"log"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// AppConfig описывает конфигурацию сервисов из окружения. Параметры самого
// планирования живут в документе настроек в БД, здесь только инфраструктура.
type AppConfig struct {
	AppEnv string `envconfig:"APP_ENV" default:"dev"`
	TZ     string `envconfig:"TZ" default:"Europe/Moscow"`
	Port   int    `envconfig:"PORT" default:"8080"`

	PGDSN string `envconfig:"PG_DSN"`

	RedisAddr string `envconfig:"REDIS_ADDR"`

	RabbitURL           string `envconfig:"RABBITMQ_URL"`
	RabbitManagementURL string `envconfig:"RABBITMQ_MANAGEMENT_URL"`

	Yandex struct {
		Token   string        `envconfig:"YANDEX_TOKEN"`
		Timeout time.Duration `envconfig:"YANDEX_TIMEOUT" default:"60s"`
	} `envconfig:""`

	UploadPost struct {
		APIKey  string        `envconfig:"UPLOAD_POST_API_KEY"`
		Timeout time.Duration `envconfig:"UPLOAD_POST_TIMEOUT" default:"60s"`
	} `envconfig:""`

	OpenAI struct {
		APIKey  string        `envconfig:"OPENAI_API_KEY"`
		BaseURL string        `envconfig:"OPENAI_BASE_URL" default:"https://openrouter.ai/api/v1"`
		Model   string        `envconfig:"OPENAI_MODEL" default:"openai/gpt-4o-mini"`
		Timeout time.Duration `envconfig:"OPENAI_TIMEOUT" default:"45s"`
	} `envconfig:""`

	Telegram struct {
		Token       string `envconfig:"TG_BOT_TOKEN"`
		AdminChatID int64  `envconfig:"TG_ADMIN_CHAT_ID"`
	} `envconfig:""`

	Queues struct {
		Runs string `envconfig:"RUN_QUEUE_KEY" default:"schedule_runs"`
	} `envconfig:""`

	Publish struct {
		Concurrency int           `envconfig:"PUBLISH_CONCURRENCY" default:"4"`
		Interval    time.Duration `envconfig:"PUBLISH_INTERVAL" default:"1m"`
	} `envconfig:""`
}

// Load загружает конфиг из окружения.
func Load() AppConfig {
	var cfg AppConfig
	if err := envconfig.Process("", &cfg); err != nil {
		log.Fatalf("не удалось загрузить конфиг: %v", err)
	}
	return cfg
}
