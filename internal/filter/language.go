package filter

import (
	"strings"
	"sync"

	"github.com/abadojack/whatlanggo"
)

// historySize caps the per-author language tally window
const historySize = 20

// iso639Aliases maps common two-letter codes to the ISO 639-3 codes
// whatlanggo reports
var iso639Aliases = map[string]string{
	"ja": "jpn",
	"en": "eng",
	"ko": "kor",
	"zh": "cmn",
	"es": "spa",
	"fr": "fra",
	"de": "deu",
	"pt": "por",
	"ru": "rus",
	"it": "ita",
}

// LanguageMatcher decides whether a post matches the configured languages.
// A post matches when its own detected language is allowed, or when the
// majority language of the author's recently observed posts is allowed.
type LanguageMatcher struct {
	allowed map[string]bool

	mu      sync.Mutex
	history map[string][]string // author pubkey -> recent detected codes
}

// NewLanguageMatcher creates a matcher for the given ISO 639 codes
func NewLanguageMatcher(languages []string) *LanguageMatcher {
	allowed := make(map[string]bool, len(languages))
	for _, lang := range languages {
		allowed[normalizeLangCode(lang)] = true
	}

	return &LanguageMatcher{
		allowed: allowed,
		history: make(map[string][]string),
	}
}

// Observe records the detected language of an author's post. Unreliable
// detections (very short posts, mixed scripts) are not recorded.
func (m *LanguageMatcher) Observe(author, content string) {
	code, ok := detectLanguage(content)
	if !ok {
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	recent := append(m.history[author], code)
	if len(recent) > historySize {
		recent = recent[len(recent)-historySize:]
	}
	m.history[author] = recent
}

// Matches reports whether the post passes the language filter
func (m *LanguageMatcher) Matches(author, content string) bool {
	code, ok := detectLanguage(content)
	if !ok {
		// Too short or ambiguous to classify; never hide on a guess
		return true
	}

	if m.allowed[code] {
		return true
	}

	majority := m.majorityLanguage(author)
	return majority != "" && m.allowed[majority]
}

// majorityLanguage returns the most frequent recorded code for an author
func (m *LanguageMatcher) majorityLanguage(author string) string {
	m.mu.Lock()
	defer m.mu.Unlock()

	counts := make(map[string]int)
	for _, code := range m.history[author] {
		counts[code]++
	}

	best := ""
	bestCount := 0
	for code, count := range counts {
		if count > bestCount {
			best = code
			bestCount = count
		}
	}

	return best
}

// detectLanguage returns the ISO 639-3 code of the content, or false
// when detection is not reliable
func detectLanguage(content string) (string, bool) {
	trimmed := strings.TrimSpace(content)
	if trimmed == "" {
		return "", false
	}

	info := whatlanggo.Detect(trimmed)
	if !info.IsReliable() {
		return "", false
	}

	return whatlanggo.LangToString(info.Lang), true
}

// normalizeLangCode lower-cases a configured code and resolves two-letter
// aliases to ISO 639-3
func normalizeLangCode(code string) string {
	code = strings.ToLower(strings.TrimSpace(code))
	if alias, ok := iso639Aliases[code]; ok {
		return alias
	}
	return code
}
