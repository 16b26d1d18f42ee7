package plan

import "posting-scheduler/internal/domain"

type usedPair struct {
	identity string
	username string
}

// Ledger — дедупликация в пределах одного запуска плюс проверка
// персистентной истории доставок.
//
// Режим строгой уникальности: видео, отданное любому профилю, больше не
// используется до конца запуска. Режим переиспользования: одно видео можно
// отдать нескольким профилям, но каждому не больше одного раза.
type Ledger struct {
	reuseAllowed bool
	checkHistory bool

	usedIdentities map[string]struct{}
	usedPairs      map[usedPair]struct{}
	history        map[domain.DeliveredPair]struct{}
}

// NewLedger создаёт пустой журнал.
func NewLedger(reuseAllowed, checkHistory bool) *Ledger {
	return &Ledger{
		reuseAllowed:   reuseAllowed,
		checkHistory:   checkHistory,
		usedIdentities: make(map[string]struct{}),
		usedPairs:      make(map[usedPair]struct{}),
		history:        make(map[domain.DeliveredPair]struct{}),
	}
}

// Preload загружает историю доставок одним куском до начала распределения.
// Внутренний цикл планировщика после этого работает за O(1) на кандидата.
func (l *Ledger) Preload(pairs map[domain.DeliveredPair]struct{}) {
	for pair := range pairs {
		l.history[pair] = struct{}{}
	}
}

// Eligible проверяет, можно ли отдать видео профилю.
func (l *Ledger) Eligible(item domain.VideoItem, username string) bool {
	if l.checkHistory {
		if _, ok := l.history[domain.DeliveredPair{Username: username, Path: item.Path}]; ok {
			return false
		}
	}
	if l.reuseAllowed {
		_, ok := l.usedPairs[usedPair{identity: item.Identity(), username: username}]
		return !ok
	}
	_, ok := l.usedIdentities[item.Identity()]
	return !ok
}

// MarkUsed фиксирует выдачу. Вызывается только после успешного подбора
// слота: неудачная попытка не должна "сжигать" видео.
func (l *Ledger) MarkUsed(item domain.VideoItem, username string) {
	if l.reuseAllowed {
		l.usedPairs[usedPair{identity: item.Identity(), username: username}] = struct{}{}
		return
	}
	l.usedIdentities[item.Identity()] = struct{}{}
}
