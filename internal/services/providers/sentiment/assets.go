package sentiment

import (
	"strings"
)

// AssetsHelper recognizes asset mentions in free text.
type AssetsHelper struct {
	// Short lists tickers, e.g. BTC. They only match when written in upper case.
	Short []string `yaml:"short"`
	// LongToShort maps full names to tickers, e.g. BITCOIN -> BTC. Matching is case insensitive.
	LongToShort map[string]string `yaml:"long_to_short"`

	short map[string]struct{}
}

func NewAssetsHelper(short []string, longToShort map[string]string) *AssetsHelper {
	h := &AssetsHelper{Short: short, LongToShort: make(map[string]string, len(longToShort))}
	for long, s := range longToShort {
		h.LongToShort[strings.ToUpper(long)] = strings.ToUpper(s)
	}
	h.index()
	return h
}

func (h *AssetsHelper) index() {
	h.short = make(map[string]struct{}, len(h.Short))
	for _, s := range h.Short {
		h.short[strings.ToUpper(s)] = struct{}{}
	}
}

// Find returns the distinct tickers mentioned in text.
func (h *AssetsHelper) Find(text string) map[string]struct{} {
	found := make(map[string]struct{})
	for _, word := range strings.Fields(text) {
		if len(word) > 1 && word[0] == '#' {
			word = word[1:]
		}
		word = strings.TrimFunc(word, isTrailingPunct)
		if name, ok := h.match(word); ok {
			found[name] = struct{}{}
		}
	}
	return found
}

func (h *AssetsHelper) match(word string) (string, bool) {
	if word == "" {
		return "", false
	}
	upper := strings.ToUpper(word)
	if s, ok := h.LongToShort[upper]; ok {
		return s, true
	}
	if upper != word {
		return "", false
	}
	_, ok := h.short[upper]
	return upper, ok
}

func isTrailingPunct(r rune) bool {
	switch r {
	case '.', ',', '!', '?', ':', ';', '"', '\'', '(', ')':
		return true
	}
	return false
}
