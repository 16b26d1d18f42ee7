package plan

import (
	"testing"

	"posting-scheduler/internal/domain"
)

func TestLedgerStrictMode(t *testing.T) {
	ledger := NewLedger(false, true)
	item := domain.VideoItem{Path: "/v/a.mp4", MD5: "h1"}

	if !ledger.Eligible(item, "acc1") {
		t.Fatalf("новое видео должно быть доступно")
	}
	ledger.MarkUsed(item, "acc1")
	if ledger.Eligible(item, "acc1") {
		t.Fatalf("выданное видео недоступно тому же профилю")
	}
	if ledger.Eligible(item, "acc2") {
		t.Fatalf("в строгом режиме видео недоступно и другим профилям")
	}
}

func TestLedgerReuseMode(t *testing.T) {
	ledger := NewLedger(true, true)
	item := domain.VideoItem{Path: "/v/a.mp4", MD5: "h1"}

	ledger.MarkUsed(item, "acc1")
	if ledger.Eligible(item, "acc1") {
		t.Fatalf("повтор тому же профилю запрещён")
	}
	if !ledger.Eligible(item, "acc2") {
		t.Fatalf("в режиме переиспользования видео доступно другому профилю")
	}
}

func TestLedgerIdentityByHash(t *testing.T) {
	ledger := NewLedger(false, false)
	original := domain.VideoItem{Path: "/v/a.mp4", MD5: "same"}
	duplicate := domain.VideoItem{Path: "/v/copy.mp4", MD5: "same"}

	ledger.MarkUsed(original, "acc1")
	if ledger.Eligible(duplicate, "acc2") {
		t.Fatalf("дубликат с тем же md5 должен считаться тем же видео")
	}
}

func TestLedgerHistoryCheck(t *testing.T) {
	ledger := NewLedger(false, true)
	ledger.Preload(map[domain.DeliveredPair]struct{}{
		{Username: "acc1", Path: "/v/old.mp4"}: {},
	})
	item := domain.VideoItem{Path: "/v/old.mp4"}

	if ledger.Eligible(item, "acc1") {
		t.Fatalf("видео из истории недоступно тому же профилю")
	}
	if !ledger.Eligible(item, "acc2") {
		t.Fatalf("история привязана к паре профиль+путь")
	}
}

func TestLedgerHistoryCheckDisabled(t *testing.T) {
	ledger := NewLedger(false, false)
	ledger.Preload(map[domain.DeliveredPair]struct{}{
		{Username: "acc1", Path: "/v/old.mp4"}: {},
	})
	if !ledger.Eligible(domain.VideoItem{Path: "/v/old.mp4"}, "acc1") {
		t.Fatalf("с выключенной проверкой история игнорируется")
	}
}
