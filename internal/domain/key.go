package domain

import "strings"

// Key — нормализованный ключ категории или бренда. Все сравнения и поиски
// по категориям и брендам проходят через Key, чтобы нормализацию нельзя было
// пропустить на месте вызова.
type Key struct {
	value string
}

// KeyUnknown используется для контента, который не удалось классифицировать.
var KeyUnknown = Key{value: "unknown"}

// NewKey нормализует строку: нижний регистр, ё→е, без пробелов.
func NewKey(raw string) Key {
	v := strings.ToLower(strings.TrimSpace(raw))
	v = strings.ReplaceAll(v, "ё", "е")
	v = strings.ReplaceAll(v, " ", "")
	if v == "" {
		return KeyUnknown
	}
	return Key{value: v}
}

// String возвращает нормализованное значение.
func (k Key) String() string {
	return k.value
}

// IsUnknown сообщает, что ключ не классифицирован.
func (k Key) IsUnknown() bool {
	return k.value == KeyUnknown.value || k.value == ""
}
