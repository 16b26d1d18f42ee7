package plan

import (
	"math/rand"
	"testing"
	"time"
)

func TestRandomTimeStaysInWindow(t *testing.T) {
	allocator := NewSlotAllocator(rand.New(rand.NewSource(1)), 45*time.Minute)
	start := time.Date(2026, 8, 29, 8, 0, 0, 0, time.UTC)
	end := time.Date(2026, 8, 29, 23, 0, 0, 0, time.UTC)

	for i := 0; i < 1000; i++ {
		got := allocator.RandomTime(start, end)
		if got.Before(start) || !got.Before(end) {
			t.Fatalf("момент %s вне окна [%s, %s)", got, start, end)
		}
	}
}

func TestAllocateRespectsMinGap(t *testing.T) {
	minGap := 45 * time.Minute
	allocator := NewSlotAllocator(rand.New(rand.NewSource(42)), minGap)
	start := time.Date(2026, 8, 29, 8, 0, 0, 0, time.UTC)
	end := time.Date(2026, 8, 29, 23, 0, 0, 0, time.UTC)
	occupied := []time.Time{time.Date(2026, 8, 29, 10, 0, 0, 0, time.UTC)}

	for i := 0; i < 500; i++ {
		slot, ok := allocator.Allocate(occupied, start, end)
		if !ok {
			continue
		}
		delta := slot.Sub(occupied[0])
		if delta < 0 {
			delta = -delta
		}
		if delta < minGap {
			t.Fatalf("слот %s нарушает интервал %s от занятого %s", slot, minGap, occupied[0])
		}
	}
}

func TestAllocateGivesUpWhenWindowFull(t *testing.T) {
	minGap := 45 * time.Minute
	allocator := NewSlotAllocator(rand.New(rand.NewSource(7)), minGap)
	start := time.Date(2026, 8, 29, 8, 0, 0, 0, time.UTC)
	end := time.Date(2026, 8, 29, 10, 0, 0, 0, time.UTC)

	// Занятые слоты каждые 30 минут не оставляют места под интервал 45 минут.
	occupied := make([]time.Time, 0, 8)
	for ts := start; ts.Before(end.Add(time.Hour)); ts = ts.Add(30 * time.Minute) {
		occupied = append(occupied, ts)
	}

	if slot, ok := allocator.Allocate(occupied, start, end); ok {
		t.Fatalf("в забитом окне слот не должен находиться, получили %s", slot)
	}
}

func TestAllocateEmptyOccupied(t *testing.T) {
	allocator := NewSlotAllocator(rand.New(rand.NewSource(3)), 45*time.Minute)
	start := time.Date(2026, 8, 29, 8, 0, 0, 0, time.UTC)
	end := time.Date(2026, 8, 29, 23, 0, 0, 0, time.UTC)

	slot, ok := allocator.Allocate(nil, start, end)
	if !ok {
		t.Fatalf("в пустом окне слот должен находиться с первой попытки")
	}
	if slot.Before(start) || !slot.Before(end) {
		t.Fatalf("слот %s вне окна", slot)
	}
}
