package yadisk

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"posting-scheduler/internal/domain"
	"posting-scheduler/internal/infra/metrics"
)

const defaultBaseURL = "https://cloud-api.yandex.net/v1/disk"

// Диск отдаёт плоский список страницами; одна страница не больше этого.
const pageLimit = 1000

// Client — REST-клиент Яндекс Диска, источник каталога видео.
type Client struct {
	http    *http.Client
	baseURL string
	token   string
}

var _ domain.Catalog = (*Client)(nil)

// NewClient создаёт клиента с OAuth-токеном.
func NewClient(token string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &Client{
		http:    &http.Client{Timeout: timeout},
		baseURL: defaultBaseURL,
		token:   token,
	}
}

type fileItem struct {
	Name    string `json:"name"`
	Path    string `json:"path"`
	MD5     string `json:"md5"`
	Size    int64  `json:"size"`
	Created string `json:"created"`
}

type filesResponse struct {
	Items []fileItem `json:"items"`
}

// ListVideos выгружает все видеофайлы диска плоским списком.
func (c *Client) ListVideos(ctx context.Context) ([]domain.VideoItem, error) {
	var videos []domain.VideoItem
	for offset := 0; ; offset += pageLimit {
		page, err := c.listPage(ctx, offset)
		if err != nil {
			return nil, err
		}
		for _, item := range page {
			video := domain.VideoItem{
				Path: item.Path,
				Name: item.Name,
				MD5:  item.MD5,
				Size: item.Size,
			}
			if item.Created != "" {
				if created, err := time.Parse(time.RFC3339, item.Created); err == nil {
					video.CreatedAt = created
				}
			}
			videos = append(videos, video)
		}
		if len(page) < pageLimit {
			break
		}
	}
	sort.Slice(videos, func(i, j int) bool { return videos[i].Name < videos[j].Name })
	return videos, nil
}

func (c *Client) listPage(ctx context.Context, offset int) ([]fileItem, error) {
	query := url.Values{}
	query.Set("limit", strconv.Itoa(pageLimit))
	query.Set("offset", strconv.Itoa(offset))
	query.Set("media_type", "video")
	query.Set("fields", "items.name,items.path,items.md5,items.size,items.created")

	var parsed filesResponse
	if err := c.get(ctx, "list_files", "/resources/files?"+query.Encode(), &parsed); err != nil {
		return nil, fmt.Errorf("список файлов: %w", err)
	}
	return parsed.Items, nil
}

// DownloadLink возвращает временную ссылку на скачивание файла.
func (c *Client) DownloadLink(ctx context.Context, path string) (string, error) {
	query := url.Values{}
	query.Set("path", path)

	var parsed struct {
		Href string `json:"href"`
	}
	if err := c.get(ctx, "download_link", "/resources/download?"+query.Encode(), &parsed); err != nil {
		return "", fmt.Errorf("ссылка на скачивание %s: %w", path, err)
	}
	if parsed.Href == "" {
		return "", fmt.Errorf("ссылка на скачивание %s: пустой href", path)
	}
	return parsed.Href, nil
}

// Delete безвозвратно удаляет файл.
func (c *Client) Delete(ctx context.Context, path string) error {
	query := url.Values{}
	query.Set("path", path)
	query.Set("permanently", "true")

	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, c.baseURL+"/resources?"+query.Encode(), nil)
	if err != nil {
		return fmt.Errorf("удаление %s: %w", path, err)
	}
	c.applyAuth(req)

	start := time.Now()
	resp, err := c.http.Do(req)
	metrics.ObserveNetworkRequest("yadisk", "delete", "resources", start, err)
	if err != nil {
		return fmt.Errorf("удаление %s: %w", path, err)
	}
	defer resp.Body.Close()
	// 202 значит, что диск удаляет асинхронно.
	if resp.StatusCode != http.StatusNoContent && resp.StatusCode != http.StatusAccepted {
		return fmt.Errorf("удаление %s: статус %d", path, resp.StatusCode)
	}
	return nil
}

func (c *Client) get(ctx context.Context, operation, pathWithQuery string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+pathWithQuery, nil)
	if err != nil {
		return err
	}
	c.applyAuth(req)

	start := time.Now()
	resp, err := c.http.Do(req)
	metrics.ObserveNetworkRequest("yadisk", operation, "resources", start, err)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("статус %d: %s", resp.StatusCode, strings.TrimSpace(string(data)))
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func (c *Client) applyAuth(req *http.Request) {
	req.Header.Set("Authorization", "OAuth "+c.token)
}
