package filter

import (
	"strings"
	"unicode"

	"github.com/nbd-wtf/go-nostr"

	"github.com/awayuki/lumiline/internal/config"
	"github.com/awayuki/lumiline/internal/ops"
)

// kindNote mirrors timeline.KindNote; the timeline package imports this
// one, so the constant cannot be shared.
const kindNote = 1

// Pipeline applies the client-side filter predicates to fetched events.
//
// Predicates run in a fixed order, cheap checks first: mute -> ad/NSFW
// heuristic -> kind inclusion -> NG words -> NG tags -> required tags ->
// language. Each predicate independently narrows the set, so the order
// matters only for performance.
type Pipeline struct {
	cfg          *config.Filters
	showKinds    map[int]bool
	mutedAuthors map[string]bool
	mutedEvents  map[string]bool
	language     *LanguageMatcher
	log          *ops.Logger
}

// New creates a filter pipeline for the given settings and visible kinds
func New(cfg *config.Filters, kinds []int, log *ops.Logger) *Pipeline {
	showKinds := make(map[int]bool, len(kinds))
	for _, kind := range kinds {
		showKinds[kind] = true
	}

	mutedAuthors := make(map[string]bool, len(cfg.MutedAuthors))
	for _, pubkey := range cfg.MutedAuthors {
		mutedAuthors[pubkey] = true
	}

	mutedEvents := make(map[string]bool, len(cfg.MutedEvents))
	for _, id := range cfg.MutedEvents {
		mutedEvents[id] = true
	}

	var language *LanguageMatcher
	if len(cfg.Languages) > 0 {
		language = NewLanguageMatcher(cfg.Languages)
	}

	return &Pipeline{
		cfg:          cfg,
		showKinds:    showKinds,
		mutedAuthors: mutedAuthors,
		mutedEvents:  mutedEvents,
		language:     language,
		log:          log.WithComponent("filter"),
	}
}

// Apply filters a batch of raw events, returning the kept subset in order.
// All note content is observed for the per-author language tally before
// any predicate runs, so that filtered-out posts still inform the majority.
func (p *Pipeline) Apply(events []*nostr.Event) []*nostr.Event {
	if p.language != nil {
		for _, event := range events {
			if event.Kind == kindNote {
				p.language.Observe(event.PubKey, event.Content)
			}
		}
	}

	kept := make([]*nostr.Event, 0, len(events))
	for _, event := range events {
		if p.Keep(event) {
			kept = append(kept, event)
		}
	}

	if dropped := len(events) - len(kept); dropped > 0 {
		p.log.Debug("events filtered", "raw", len(events), "kept", len(kept), "dropped", dropped)
	}

	return kept
}

// Keep reports whether a single event passes every predicate
func (p *Pipeline) Keep(event *nostr.Event) bool {
	if p.isMuted(event) {
		return false
	}
	if p.isSensitive(event) {
		return false
	}
	if p.looksLikeAd(event) {
		return false
	}
	if !p.showKinds[event.Kind] {
		return false
	}
	if p.hasNGWord(event) {
		return false
	}
	if p.hasNGTag(event) {
		return false
	}
	if !p.hasRequiredTags(event) {
		return false
	}
	if !p.matchesLanguage(event) {
		return false
	}
	return true
}

// isMuted checks the mute list for author and event id
func (p *Pipeline) isMuted(event *nostr.Event) bool {
	return p.mutedAuthors[event.PubKey] || p.mutedEvents[event.ID]
}

// isSensitive checks the content-warning tag and the nsfw hashtag
func (p *Pipeline) isSensitive(event *nostr.Event) bool {
	if !p.cfg.HideSensitive {
		return false
	}

	for _, tag := range event.Tags {
		if len(tag) >= 1 && tag[0] == "content-warning" {
			return true
		}
		if len(tag) >= 2 && tag[0] == "t" && strings.EqualFold(tag[1], "nsfw") {
			return true
		}
	}

	return containsInlineTag(event.Content, "nsfw")
}

// looksLikeAd applies the keyword and link-density heuristics
func (p *Pipeline) looksLikeAd(event *nostr.Event) bool {
	content := strings.ToLower(event.Content)

	for _, keyword := range p.cfg.AdKeywords {
		if keyword != "" && strings.Contains(content, strings.ToLower(keyword)) {
			return true
		}
	}

	links := strings.Count(content, "https://") + strings.Count(content, "http://")
	return p.cfg.AdMaxLinks > 0 && links >= p.cfg.AdMaxLinks
}

// hasNGWord checks case-folded substring occurrence
func (p *Pipeline) hasNGWord(event *nostr.Event) bool {
	if len(p.cfg.NGWords) == 0 {
		return false
	}

	content := strings.ToLower(event.Content)
	for _, word := range p.cfg.NGWords {
		if word != "" && strings.Contains(content, strings.ToLower(word)) {
			return true
		}
	}

	return false
}

// hasNGTag checks structured t tags and inline #tag occurrences
func (p *Pipeline) hasNGTag(event *nostr.Event) bool {
	for _, ngTag := range p.cfg.NGTags {
		if ngTag == "" {
			continue
		}
		if hasStructuredTag(event, ngTag) || containsInlineTag(event.Content, ngTag) {
			return true
		}
	}
	return false
}

// hasRequiredTags requires every configured tag, structurally or inline
func (p *Pipeline) hasRequiredTags(event *nostr.Event) bool {
	for _, required := range p.cfg.RequiredTags {
		if required == "" {
			continue
		}
		if !hasStructuredTag(event, required) && !containsInlineTag(event.Content, required) {
			return false
		}
	}
	return true
}

// matchesLanguage passes when the post's own language matches, or the
// author's recent-post majority matches, so a single foreign-language
// aside does not hide an otherwise-matching author.
func (p *Pipeline) matchesLanguage(event *nostr.Event) bool {
	if p.language == nil || event.Kind != kindNote {
		return true
	}
	return p.language.Matches(event.PubKey, event.Content)
}

// hasStructuredTag checks t tags for a case-insensitive match
func hasStructuredTag(event *nostr.Event, tag string) bool {
	for _, t := range event.Tags {
		if len(t) >= 2 && t[0] == "t" && strings.EqualFold(t[1], tag) {
			return true
		}
	}
	return false
}

// containsInlineTag reports whether content contains #tag as a whole
// word: not preceded by a word rune or another #, not followed by a
// word rune.
func containsInlineTag(content, tag string) bool {
	if tag == "" {
		return false
	}

	lower := strings.ToLower(content)
	needle := "#" + strings.ToLower(tag)

	offset := 0
	for {
		idx := strings.Index(lower[offset:], needle)
		if idx < 0 {
			return false
		}
		idx += offset

		boundaryBefore := true
		if idx > 0 {
			before := []rune(lower[:idx])
			r := before[len(before)-1]
			if isWordRune(r) || r == '#' {
				boundaryBefore = false
			}
		}

		after := lower[idx+len(needle):]
		boundaryAfter := true
		if after != "" {
			r := []rune(after)[0]
			if isWordRune(r) {
				boundaryAfter = false
			}
		}

		if boundaryBefore && boundaryAfter {
			return true
		}
		offset = idx + 1
	}
}

func isWordRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_'
}
