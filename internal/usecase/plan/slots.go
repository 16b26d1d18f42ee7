package plan

import (
	"math/rand"
	"time"
)

// slotAttempts ограничивает поиск свободного слота. После исчерпания попыток
// пара профиль/видео пропускается в этом проходе, это не ошибка.
const slotAttempts = 15

// maxConflictShift — верхняя граница случайного сдвига при конфликте.
const maxConflictShift = time.Hour

// SlotAllocator подбирает время публикации внутри дневного окна так, чтобы
// между постами одного профиля оставался минимальный интервал.
type SlotAllocator struct {
	rnd    *rand.Rand
	minGap time.Duration
}

// NewSlotAllocator создаёт аллокатор с инжектированным генератором.
func NewSlotAllocator(rnd *rand.Rand, minGap time.Duration) *SlotAllocator {
	return &SlotAllocator{rnd: rnd, minGap: minGap}
}

// RandomTime возвращает равномерно случайный момент в [start, end).
func (a *SlotAllocator) RandomTime(start, end time.Time) time.Time {
	window := end.Sub(start)
	if window <= 0 {
		return start
	}
	return start.Add(time.Duration(a.rnd.Int63n(int64(window))))
}

// Allocate ищет момент, отстоящий от каждого занятого слота минимум на
// minGap. При конфликте кандидат сдвигается вперёд на случайный интервал
// [minGap, minGap+60м); вылет за границу окна приводит к новому розыгрышу.
func (a *SlotAllocator) Allocate(occupied []time.Time, start, end time.Time) (time.Time, bool) {
	candidate := a.RandomTime(start, end)
	for attempt := 0; attempt < slotAttempts; attempt++ {
		if a.free(occupied, candidate) {
			return candidate, true
		}
		candidate = candidate.Add(a.minGap + time.Duration(a.rnd.Int63n(int64(maxConflictShift))))
		if candidate.After(end) {
			candidate = a.RandomTime(start, end)
		}
	}
	return time.Time{}, false
}

func (a *SlotAllocator) free(occupied []time.Time, candidate time.Time) bool {
	for _, slot := range occupied {
		delta := candidate.Sub(slot)
		if delta < 0 {
			delta = -delta
		}
		if delta < a.minGap {
			return false
		}
	}
	return true
}
