package yadisk

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"
)

func testServerClient(t *testing.T, handler http.HandlerFunc) (*Client, func()) {
	t.Helper()
	server := httptest.NewServer(handler)
	client := &Client{
		http:    &http.Client{Timeout: 5 * time.Second},
		baseURL: server.URL,
		token:   "test-token",
	}
	return client, server.Close
}

func TestListVideosPagination(t *testing.T) {
	total := pageLimit + 3
	client, closeFn := testServerClient(t, func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "OAuth test-token" {
			t.Errorf("неожиданный заголовок авторизации: %q", got)
		}
		if got := r.URL.Query().Get("media_type"); got != "video" {
			t.Errorf("ожидали media_type=video, получили %q", got)
		}
		offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))

		items := make([]map[string]any, 0, pageLimit)
		for i := offset; i < total && i < offset+pageLimit; i++ {
			items = append(items, map[string]any{
				"name":    fmt.Sprintf("clip%04d.mp4", i),
				"path":    fmt.Sprintf("disk:/ВИДЕО/Иван/авто/Бренд/clip%04d.mp4", i),
				"md5":     fmt.Sprintf("hash%d", i),
				"size":    100,
				"created": "2026-08-01T10:00:00+03:00",
			})
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"items": items})
	})
	defer closeFn()

	videos, err := client.ListVideos(context.Background())
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if len(videos) != total {
		t.Fatalf("ожидали %d видео за две страницы, получили %d", total, len(videos))
	}
	for i := 1; i < len(videos); i++ {
		if videos[i-1].Name > videos[i].Name {
			t.Fatalf("список должен быть отсортирован по имени")
		}
	}
	if videos[0].CreatedAt.IsZero() {
		t.Fatalf("дата создания должна разбираться из RFC3339")
	}
}

func TestDownloadLink(t *testing.T) {
	client, closeFn := testServerClient(t, func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("path"); got != "disk:/clip.mp4" {
			t.Errorf("ожидали путь файла, получили %q", got)
		}
		_ = json.NewEncoder(w).Encode(map[string]string{"href": "https://downloader.example/clip"})
	})
	defer closeFn()

	link, err := client.DownloadLink(context.Background(), "disk:/clip.mp4")
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if link != "https://downloader.example/clip" {
		t.Fatalf("неожиданная ссылка: %q", link)
	}
}

func TestDownloadLinkEmptyHref(t *testing.T) {
	client, closeFn := testServerClient(t, func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]string{})
	})
	defer closeFn()

	if _, err := client.DownloadLink(context.Background(), "disk:/clip.mp4"); err == nil {
		t.Fatalf("пустой href должен считаться ошибкой")
	}
}

func TestDeletePermanently(t *testing.T) {
	var gotQuery string
	client, closeFn := testServerClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodDelete {
			t.Errorf("ожидали DELETE, получили %s", r.Method)
		}
		gotQuery = r.URL.Query().Get("permanently")
		w.WriteHeader(http.StatusNoContent)
	})
	defer closeFn()

	if err := client.Delete(context.Background(), "disk:/clip.mp4"); err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if gotQuery != "true" {
		t.Fatalf("удаление должно быть безвозвратным, permanently=%q", gotQuery)
	}
}

func TestDeleteAsyncAccepted(t *testing.T) {
	client, closeFn := testServerClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusAccepted)
	})
	defer closeFn()

	if err := client.Delete(context.Background(), "disk:/clip.mp4"); err != nil {
		t.Fatalf("202 — это успех (асинхронное удаление), получили %v", err)
	}
}

func TestListVideosAPIError(t *testing.T) {
	client, closeFn := testServerClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"message":"unauthorized"}`, http.StatusUnauthorized)
	})
	defer closeFn()

	if _, err := client.ListVideos(context.Background()); err == nil {
		t.Fatalf("статус 401 должен считаться ошибкой")
	}
}
