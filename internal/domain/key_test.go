package domain

import "testing"

func TestNewKeyNormalization(t *testing.T) {
	cases := map[string]string{
		"Мёд":        "мед",
		" Sport Car": "sportcar",
		"КРОССОВКИ":  "кроссовки",
		"a b c":      "abc",
	}
	for input, expected := range cases {
		if got := NewKey(input).String(); got != expected {
			t.Fatalf("для %q ожидали %q, получили %q", input, expected, got)
		}
	}
}

func TestNewKeyEmpty(t *testing.T) {
	for _, input := range []string{"", "   ", " \t "} {
		if !NewKey(input).IsUnknown() {
			t.Fatalf("пустой ввод %q должен давать unknown", input)
		}
	}
}

func TestKeyEquality(t *testing.T) {
	if NewKey("Ёлки Иголки") != NewKey("елки иголки") {
		t.Fatalf("нормализованные ключи должны совпадать")
	}
}
