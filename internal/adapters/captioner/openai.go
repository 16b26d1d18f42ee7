package captioner

import (
	"context"
	"fmt"
	"path"
	"strings"

	"github.com/rs/zerolog"

	"posting-scheduler/internal/domain"
	"posting-scheduler/internal/infra/openai"
)

// Для YouTube модель отдаёт заголовок и описание одной строкой через
// разделитель.
const youtubeSeparator = "$$"

const defaultSystemPrompt = "Ты пишешь короткие продающие подписи к вертикальным видео для соцсетей. " +
	"Отвечай только текстом подписи, без кавычек и пояснений."

// OpenAICaptioner генерирует подписи через Chat Completions.
type OpenAICaptioner struct {
	client   *openai.Client
	model    string
	fallback domain.Captioner
	log      zerolog.Logger
}

var _ domain.Captioner = (*OpenAICaptioner)(nil)

// NewOpenAICaptioner создаёт генератор. При ошибке модели используется
// fallback, чтобы публикация не падала из-за подписи.
func NewOpenAICaptioner(client *openai.Client, model string, fallback domain.Captioner, log zerolog.Logger) *OpenAICaptioner {
	return &OpenAICaptioner{client: client, model: model, fallback: fallback, log: log}
}

// Generate строит подпись для видео под конкретную платформу.
func (c *OpenAICaptioner) Generate(ctx context.Context, videoPath, platform string, client *domain.ClientConfig, author string) (domain.Caption, error) {
	system := defaultSystemPrompt
	if client != nil && strings.TrimSpace(client.Prompt) != "" {
		system = client.Prompt
	}
	if author != "" {
		system += fmt.Sprintf(" В конец подписи добавь хэштег #by%s.", author)
	}

	user := fmt.Sprintf("Платформа: %s. Название видео: %s.", platform, videoName(videoPath))
	if platform == domain.PlatformYouTube {
		user += fmt.Sprintf(" Верни заголовок и описание одной строкой, раздели их символами %q.", youtubeSeparator)
	}

	text, err := c.client.Complete(ctx, openai.Request{
		Model: c.model,
		Messages: []openai.Message{
			{Role: openai.RoleSystem, Content: system},
			{Role: openai.RoleUser, Content: user},
		},
		Temperature: 0.8,
		MaxTokens:   300,
	})
	if err != nil {
		c.log.Warn().Err(err).Str("video", videoPath).Msg("captioner: модель недоступна, используем запасную подпись")
		if c.fallback != nil {
			return c.fallback.Generate(ctx, videoPath, platform, client, author)
		}
		return domain.Caption{}, fmt.Errorf("генерация подписи: %w", err)
	}

	return parseCaption(text, platform), nil
}

// parseCaption чистит ответ модели и разбирает заголовок для YouTube.
func parseCaption(text, platform string) domain.Caption {
	text = strings.Trim(strings.TrimSpace(text), `"`)
	if platform != domain.PlatformYouTube {
		return domain.Caption{Body: text}
	}
	title, body, found := strings.Cut(text, youtubeSeparator)
	if !found {
		return domain.Caption{Title: firstLine(text), Body: text}
	}
	return domain.Caption{Title: strings.TrimSpace(title), Body: strings.TrimSpace(body)}
}

func firstLine(text string) string {
	line, _, _ := strings.Cut(text, "\n")
	return strings.TrimSpace(line)
}

func videoName(videoPath string) string {
	name := path.Base(strings.ReplaceAll(videoPath, "\\", "/"))
	return strings.TrimSuffix(name, path.Ext(name))
}
