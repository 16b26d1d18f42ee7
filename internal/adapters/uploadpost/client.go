package uploadpost

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"posting-scheduler/internal/domain"
	"posting-scheduler/internal/infra/metrics"
)

const defaultBaseURL = "https://api.upload-post.com/api"

// Client — транспорт публикации через upload-post.com.
type Client struct {
	http    *http.Client
	baseURL string
	apiKey  string
}

var _ domain.Publisher = (*Client)(nil)

// NewClient создаёт клиента с API-ключом.
func NewClient(apiKey string, timeout time.Duration) *Client {
	if timeout <= 0 {
		// Публикация тянет видео по ссылке на своей стороне, это долго.
		timeout = 5 * time.Minute
	}
	return &Client{
		http:    &http.Client{Timeout: timeout},
		baseURL: defaultBaseURL,
		apiKey:  apiKey,
	}
}

// Publish отправляет видео на одну платформу одного аккаунта. Файл не
// скачиваем: сервис сам забирает его по временной ссылке.
func (c *Client) Publish(ctx context.Context, req domain.PublishRequest) error {
	var body strings.Builder
	writer := multipart.NewWriter(&body)

	fields := map[string]string{
		"user":       req.Username,
		"platform[]": req.Platform,
		"video":      req.VideoURL,
		"title":      req.Caption,
	}
	switch req.Platform {
	case domain.PlatformInstagram:
		fields["media_type"] = "REELS"
	case domain.PlatformTikTok:
		fields["post_mode"] = "DIRECT_POST"
	case domain.PlatformYouTube:
		title := req.Title
		if title == "" {
			title = req.Caption
		}
		fields["youtube_title"] = title
		fields["youtube_description"] = req.Caption
		fields["categoryId"] = "22"
		fields["privacyStatus"] = "public"
	}
	for name, value := range fields {
		if err := writer.WriteField(name, value); err != nil {
			return fmt.Errorf("uploadpost: поле %s: %w", name, err)
		}
	}
	if err := writer.Close(); err != nil {
		return fmt.Errorf("uploadpost: закрытие формы: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/upload", strings.NewReader(body.String()))
	if err != nil {
		return fmt.Errorf("uploadpost: сборка запроса: %w", err)
	}
	httpReq.Header.Set("Content-Type", writer.FormDataContentType())
	httpReq.Header.Set("Authorization", "Apikey "+c.apiKey)

	start := time.Now()
	resp, err := c.http.Do(httpReq)
	metrics.ObserveNetworkRequest("uploadpost", "upload", req.Platform, start, err)
	if err != nil {
		return fmt.Errorf("uploadpost: публикация %s/%s: %w", req.Username, req.Platform, err)
	}
	defer resp.Body.Close()

	data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if resp.StatusCode >= 300 {
		return fmt.Errorf("uploadpost: публикация %s/%s: статус %d: %s",
			req.Username, req.Platform, resp.StatusCode, strings.TrimSpace(string(data)))
	}

	// Сервис может вернуть 200 с success=false в теле.
	var parsed struct {
		Success *bool  `json:"success"`
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(data, &parsed); err == nil && parsed.Success != nil && !*parsed.Success {
		reason := parsed.Error
		if reason == "" {
			reason = parsed.Message
		}
		return fmt.Errorf("uploadpost: публикация %s/%s отклонена: %s", req.Username, req.Platform, reason)
	}
	return nil
}

type profilesResponse struct {
	Profiles []struct {
		Username       string                     `json:"username"`
		SocialAccounts map[string]json.RawMessage `json:"social_accounts"`
	} `json:"profiles"`
}

// Profiles возвращает список профилей сервиса с подключёнными платформами.
// Платформа считается подключённой, если её ключ в social_accounts непустой.
func (c *Client) Profiles(ctx context.Context) ([]domain.RemoteProfile, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/uploadposts/users", nil)
	if err != nil {
		return nil, fmt.Errorf("uploadpost: сборка запроса: %w", err)
	}
	httpReq.Header.Set("Authorization", "Apikey "+c.apiKey)

	start := time.Now()
	resp, err := c.http.Do(httpReq)
	metrics.ObserveNetworkRequest("uploadpost", "profiles", "users", start, err)
	if err != nil {
		return nil, fmt.Errorf("uploadpost: запрос профилей: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("uploadpost: запрос профилей: статус %d: %s", resp.StatusCode, strings.TrimSpace(string(data)))
	}

	var parsed profilesResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("uploadpost: разбор профилей: %w", err)
	}

	profiles := make([]domain.RemoteProfile, 0, len(parsed.Profiles))
	for _, p := range parsed.Profiles {
		if p.Username == "" {
			continue
		}
		remote := domain.RemoteProfile{Username: p.Username}
		for _, platform := range domain.KnownPlatforms {
			if raw, ok := p.SocialAccounts[platform]; ok && connected(raw) {
				remote.Platforms = append(remote.Platforms, platform)
			}
		}
		profiles = append(profiles, remote)
	}
	return profiles, nil
}

// connected отличает привязанный аккаунт от пустой заглушки (null, "", {}).
func connected(raw json.RawMessage) bool {
	trimmed := strings.TrimSpace(string(raw))
	switch trimmed {
	case "", "null", `""`, "{}":
		return false
	}
	return true
}
