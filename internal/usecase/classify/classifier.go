package classify

import (
	"regexp"
	"strings"

	"github.com/rs/zerolog"

	"posting-scheduler/internal/domain"
)

// Сегмент-якорь в пути диска, от которого отсчитываются автор, категория и
// бренд: /ВИДЕО/<автор>/<категория>/<бренд>/<файл>.
var anchorNames = map[string]struct{}{
	"video": {},
	"видео": {},
}

var videoExtensions = []string{".mp4", ".mov", ".avi", ".mkv", ".webm"}

type clientMatcher struct {
	client domain.ClientConfig
	key    domain.Key
	re     *regexp.Regexp
}

// Classifier извлекает категорию, бренд и автора из пути файла и сверяет
// бренд с реестром клиентов.
type Classifier struct {
	aliases map[domain.Key]domain.Key
	clients []clientMatcher
	log     zerolog.Logger
}

// New строит классификатор из таблицы синонимов категорий и реестра
// клиентов. Клиент с некорректным регулярным выражением не отбрасывается
// целиком: матчинг продолжает работать по точному имени.
func New(aliases map[string][]string, clients []domain.ClientConfig, log zerolog.Logger) *Classifier {
	index := make(map[domain.Key]domain.Key)
	for canonical, synonyms := range aliases {
		canonicalKey := domain.NewKey(canonical)
		index[canonicalKey] = canonicalKey
		for _, synonym := range synonyms {
			index[domain.NewKey(synonym)] = canonicalKey
		}
	}

	matchers := make([]clientMatcher, 0, len(clients))
	for _, c := range clients {
		m := clientMatcher{client: c, key: domain.NewKey(c.Name)}
		re, err := c.CompileRegex()
		if err != nil {
			log.Warn().Err(err).Str("client", c.Name).Msg("классификатор: регулярное выражение клиента пропущено")
		} else {
			m.re = re
		}
		matchers = append(matchers, m)
	}

	return &Classifier{aliases: index, clients: matchers, log: log}
}

// Category возвращает канонический ключ категории для пути.
func (c *Classifier) Category(path string) domain.Key {
	parts := splitPath(path)
	raw := ""
	if idx := anchorIndex(parts); idx >= 0 {
		if idx+2 < len(parts) {
			raw = stripComment(parts[idx+2])
		}
	} else if len(parts) >= 3 {
		raw = stripComment(parts[len(parts)-3])
	}
	if raw == "" {
		return domain.KeyUnknown
	}
	return c.resolveAlias(domain.NewKey(raw))
}

// BrandSegment возвращает исходный (ненормализованный) сегмент бренда.
// Пустая строка означает, что бренд извлечь не удалось.
func (c *Classifier) BrandSegment(path string) string {
	parts := splitPath(path)
	idx := anchorIndex(parts)
	if idx < 0 {
		if len(parts) >= 2 {
			return stripComment(parts[len(parts)-2])
		}
		return ""
	}
	// Сегмент с точкой — это имя файла, а не папка бренда.
	if idx+3 < len(parts) {
		if seg := stripComment(parts[idx+3]); seg != "" && !strings.Contains(seg, ".") {
			return seg
		}
	}
	if idx+2 < len(parts) {
		if seg := stripComment(parts[idx+2]); seg != "" && !strings.Contains(seg, ".") {
			return seg
		}
	}
	if len(parts) >= 2 {
		if seg := stripComment(parts[len(parts)-2]); seg != "" && !strings.Contains(seg, ".") {
			return seg
		}
	}
	return ""
}

// Brand возвращает нормализованный ключ бренда.
func (c *Classifier) Brand(path string) domain.Key {
	seg := c.BrandSegment(path)
	if seg == "" {
		return domain.KeyUnknown
	}
	return domain.NewKey(seg)
}

// Canonical нормализует произвольное значение категории (например theme_key
// профиля) и сводит синонимы к каноническому ключу.
func (c *Classifier) Canonical(raw string) domain.Key {
	return c.resolveAlias(domain.NewKey(raw))
}

// Author возвращает имя автора (сегмент сразу после якоря).
func (c *Classifier) Author(path string) string {
	parts := splitPath(path)
	idx := anchorIndex(parts)
	if idx < 0 || idx+1 >= len(parts) {
		return "unknown"
	}
	author := stripComment(parts[idx+1])
	lower := strings.ToLower(author)
	for _, ext := range videoExtensions {
		if strings.HasSuffix(lower, ext) {
			return "unknown"
		}
	}
	if author == "" {
		return "unknown"
	}
	return author
}

// KnownBrand сообщает, зарегистрирован ли бренд в реестре клиентов: точное
// совпадение нормализованного имени либо регулярное выражение по исходному
// сегменту.
func (c *Classifier) KnownBrand(rawSegment string) bool {
	return c.clientFor(rawSegment) != nil
}

// ClientFor возвращает конфигурацию клиента для сегмента бренда.
func (c *Classifier) ClientFor(rawSegment string) *domain.ClientConfig {
	return c.clientFor(rawSegment)
}

func (c *Classifier) clientFor(rawSegment string) *domain.ClientConfig {
	if rawSegment == "" {
		return nil
	}
	key := domain.NewKey(rawSegment)
	for i := range c.clients {
		if c.clients[i].key == key {
			return &c.clients[i].client
		}
		if c.clients[i].re != nil && c.clients[i].re.MatchString(rawSegment) {
			return &c.clients[i].client
		}
	}
	return nil
}

func (c *Classifier) resolveAlias(key domain.Key) domain.Key {
	if canonical, ok := c.aliases[key]; ok {
		return canonical
	}
	return key
}

func splitPath(path string) []string {
	normalized := strings.ReplaceAll(path, "\\", "/")
	parts := make([]string, 0, 8)
	for _, p := range strings.Split(normalized, "/") {
		if p == "" || p == "disk:" {
			continue
		}
		parts = append(parts, p)
	}
	return parts
}

func anchorIndex(parts []string) int {
	for i, p := range parts {
		if _, ok := anchorNames[strings.ToLower(p)]; ok {
			return i
		}
	}
	return -1
}

// stripComment отрезает пометки вида "Бренд (старое)" или "Бренд*архив".
func stripComment(segment string) string {
	if i := strings.Index(segment, "*"); i >= 0 {
		segment = segment[:i]
	}
	if i := strings.Index(segment, "("); i >= 0 {
		segment = segment[:i]
	}
	return strings.TrimSpace(segment)
}
