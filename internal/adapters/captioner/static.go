package captioner

import (
	"context"
	"fmt"

	"posting-scheduler/internal/domain"
)

// StaticCaptioner отдаёт шаблонную подпись без обращения к модели.
// Используется как запасной вариант и в окружениях без API-ключа.
type StaticCaptioner struct{}

var _ domain.Captioner = StaticCaptioner{}

// Generate собирает подпись из автора и стандартных хэштегов.
func (StaticCaptioner) Generate(_ context.Context, videoPath, platform string, _ *domain.ClientConfig, author string) (domain.Caption, error) {
	body := "video #shorts"
	if author != "" {
		body = fmt.Sprintf("%s video #shorts #by%s", author, author)
	}
	caption := domain.Caption{Body: body}
	if platform == domain.PlatformYouTube {
		caption.Title = videoName(videoPath)
		if caption.Title == "" {
			caption.Title = "Shorts"
		}
	}
	return caption, nil
}
