package narrative

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
)

var piiPatterns = []struct {
	re       *regexp.Regexp
	category string
}{
	{regexp.MustCompile(`\b[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}\b`), "EMAIL"},
	{regexp.MustCompile(`\b\d{3}[-.]?\d{3}[-.]?\d{4}\b`), "PHONE"},
	{regexp.MustCompile(`\b\d{1,5}\s\w+(?:\s\w+)*\s(?:St|Ave|Blvd|Dr|Rd|Ln|Way|Ct)\b`), "ADDRESS"},
	{regexp.MustCompile(`\b[A-Z][a-z]+(?:\s[A-Z][a-z]+)+\b`), "ENTITY"},
}

// Masker swaps personal data for stable tokens before text leaves the
// process, and restores it in whatever comes back. A Masker is not safe for
// concurrent use; create one per request.
type Masker struct {
	tokens   map[string]string // token -> original
	reverse  map[string]string // original -> token
	counters map[string]int
}

func NewMasker() *Masker {
	return &Masker{
		tokens:   map[string]string{},
		reverse:  map[string]string{},
		counters: map[string]int{},
	}
}

func (m *Masker) token(category, value string) string {
	if t, ok := m.reverse[value]; ok {
		return t
	}
	n := m.counters[category]
	m.counters[category] = n + 1
	t := fmt.Sprintf("[%s_%s]", category, suffix(n))
	m.tokens[t] = value
	m.reverse[value] = t
	return t
}

// Mask replaces known entities first (longest first), then pattern matches.
func (m *Masker) Mask(text string, entities ...string) string {
	sorted := append([]string(nil), entities...)
	sort.Slice(sorted, func(i, j int) bool { return len(sorted[i]) > len(sorted[j]) })
	for _, e := range sorted {
		if e != "" && strings.Contains(text, e) {
			text = strings.ReplaceAll(text, e, m.token("VENDOR", e))
		}
	}
	for _, p := range piiPatterns {
		text = p.re.ReplaceAllStringFunc(text, func(v string) string {
			return m.token(p.category, v)
		})
	}
	return text
}

func (m *Masker) Unmask(text string) string {
	for t, original := range m.tokens {
		text = strings.ReplaceAll(text, t, original)
	}
	return text
}

// suffix maps 0, 1, .. 25, 26 to A, B, .. Z, AA.
func suffix(n int) string {
	s := ""
	for {
		s = string(rune('A'+n%26)) + s
		n = n/26 - 1
		if n < 0 {
			return s
		}
	}
}
