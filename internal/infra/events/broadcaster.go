package events

import (
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Каналы событий.
const (
	ChannelPostStatus = "post_status"
	ChannelStats      = "stats"
	ChannelRuns       = "runs"
	ChannelAll        = "all"
)

const subscriberBuffer = 100

// Event — событие для SSE-подписчиков.
type Event struct {
	Type      string         `json:"type"`
	Timestamp time.Time      `json:"timestamp"`
	Data      map[string]any `json:"data"`
}

// Broadcaster раздаёт события подписчикам по каналам. Подписчик с
// переполненным буфером отключается, чтобы не тормозить остальных.
type Broadcaster struct {
	mu          sync.Mutex
	subscribers map[string]map[chan Event]struct{}
	log         zerolog.Logger
}

// NewBroadcaster создаёт брокер событий.
func NewBroadcaster(log zerolog.Logger) *Broadcaster {
	return &Broadcaster{
		subscribers: make(map[string]map[chan Event]struct{}),
		log:         log,
	}
}

// Subscribe подписывает на канал и возвращает канал событий.
func (b *Broadcaster) Subscribe(channel string) chan Event {
	ch := make(chan Event, subscriberBuffer)
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.subscribers[channel] == nil {
		b.subscribers[channel] = make(map[chan Event]struct{})
	}
	b.subscribers[channel][ch] = struct{}{}
	b.log.Debug().Str("channel", channel).Int("total", len(b.subscribers[channel])).Msg("events: новый подписчик")
	return ch
}

// Unsubscribe отписывает канал.
func (b *Broadcaster) Unsubscribe(channel string, ch chan Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if subs, ok := b.subscribers[channel]; ok {
		delete(subs, ch)
	}
	close(ch)
}

// Broadcast рассылает событие подписчикам канала и канала "all".
func (b *Broadcaster) Broadcast(channel, eventType string, data map[string]any) {
	event := Event{Type: eventType, Timestamp: time.Now().UTC(), Data: data}

	b.mu.Lock()
	defer b.mu.Unlock()
	for _, subs := range []map[chan Event]struct{}{b.subscribers[channel], b.subscribers[ChannelAll]} {
		for ch := range subs {
			select {
			case ch <- event:
			default:
				b.log.Warn().Str("channel", channel).Msg("events: буфер подписчика переполнен, отключаем")
				delete(subs, ch)
			}
		}
	}
}

// PostStatus — событие смены статуса записи истории.
func (b *Broadcaster) PostStatus(recordID int64, status string) {
	b.Broadcast(ChannelPostStatus, "post_updated", map[string]any{
		"post_id": recordID,
		"status":  status,
	})
}

// RunFinished — событие завершения запуска планирования.
func (b *Broadcaster) RunFinished(runID string, planned int, err error) {
	data := map[string]any{"run_id": runID, "planned": planned}
	if err != nil {
		data["error"] = err.Error()
	}
	b.Broadcast(ChannelRuns, "run_finished", data)
}

// StatsUpdated — уведомление об обновлении статистики.
func (b *Broadcaster) StatsUpdated() {
	b.Broadcast(ChannelStats, "stats_refreshed", map[string]any{
		"message": "statistics updated",
	})
}
