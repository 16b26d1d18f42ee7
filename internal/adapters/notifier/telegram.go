package notifier

import (
	"context"
	"fmt"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"

	"posting-scheduler/internal/domain"
	"posting-scheduler/internal/infra/metrics"
)

// TelegramNotifier шлёт служебные сообщения администратору в Telegram.
type TelegramNotifier struct {
	bot    *tgbotapi.BotAPI
	chatID int64
	log    zerolog.Logger
}

var _ domain.Notifier = (*TelegramNotifier)(nil)

// NewTelegramNotifier создаёт уведомитель. При пустом токене или chat id
// возвращается выключенный экземпляр: все вызовы становятся no-op.
func NewTelegramNotifier(token string, chatID int64, log zerolog.Logger) (*TelegramNotifier, error) {
	if token == "" || chatID == 0 {
		log.Info().Msg("notifier: telegram не настроен, уведомления отключены")
		return &TelegramNotifier{log: log}, nil
	}
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("notifier: инициализация telegram: %w", err)
	}
	return &TelegramNotifier{bot: bot, chatID: chatID, log: log}, nil
}

// NotifyRun отправляет сводку завершённого запуска планирования.
func (n *TelegramNotifier) NotifyRun(ctx context.Context, report domain.RunReport) error {
	var text string
	if report.Err != nil {
		text = fmt.Sprintf("❌ Планирование %s завершилось ошибкой\n%v", report.RunID, report.Err)
	} else {
		text = fmt.Sprintf(
			"✅ Планирование %s завершено\nВидео в каталоге: %d\nАктивных профилей: %d\nЗапланировано постов: %d\nДлительность: %s",
			report.RunID, report.Videos, report.Profiles, report.Planned,
			report.FinishedAt.Sub(report.StartedAt).Round(time.Second),
		)
	}
	return n.send(ctx, text)
}

// NotifyError сообщает об ошибке компонента.
func (n *TelegramNotifier) NotifyError(ctx context.Context, component string, err error) error {
	return n.send(ctx, fmt.Sprintf("⚠️ %s: %v", component, err))
}

func (n *TelegramNotifier) send(ctx context.Context, text string) error {
	if n.bot == nil {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	msg := tgbotapi.NewMessage(n.chatID, text)

	start := time.Now()
	_, err := n.bot.Send(msg)
	metrics.ObserveNetworkRequest("telegram", "send_message", "admin", start, err)
	if err != nil {
		n.log.Warn().Err(err).Msg("notifier: не удалось отправить сообщение")
		return fmt.Errorf("notifier: отправка сообщения: %w", err)
	}
	return nil
}
