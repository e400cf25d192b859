package timeline

import (
	"testing"

	"github.com/nbd-wtf/go-nostr"
)

func TestParseTagsDecodesKnownVariants(t *testing.T) {
	event := &nostr.Event{
		Kind: KindNote,
		Tags: nostr.Tags{
			nostr.Tag{"e", "root-id", "", "root"},
			nostr.Tag{"e", "parent-id", "", "reply"},
			nostr.Tag{"p", "alice"},
			nostr.Tag{"p", "bob"},
			nostr.Tag{"t", "golang"},
			nostr.Tag{"emoji", "wave", "https://example.com/wave.png"},
			nostr.Tag{"content-warning"},
			nostr.Tag{"stella", "yellow", "3"},
			nostr.Tag{"stella", "red", "1"},
		},
	}

	parsed := ParseTags(event)

	if parsed.Root != "root-id" || parsed.ReplyTo != "parent-id" {
		t.Errorf("thread pointers wrong: root=%q reply=%q", parsed.Root, parsed.ReplyTo)
	}
	if parsed.Pointer != "root-id" {
		t.Errorf("expected first e tag as pointer, got %q", parsed.Pointer)
	}
	if parsed.PointerAuthor != "alice" {
		t.Errorf("expected first p tag as pointer author, got %q", parsed.PointerAuthor)
	}
	if len(parsed.Mentions) != 2 {
		t.Errorf("expected 2 mentions, got %v", parsed.Mentions)
	}
	if len(parsed.Hashtags) != 1 || parsed.Hashtags[0] != "golang" {
		t.Errorf("unexpected hashtags: %v", parsed.Hashtags)
	}
	if parsed.Emojis["wave"] != "https://example.com/wave.png" {
		t.Errorf("unexpected emojis: %v", parsed.Emojis)
	}
	if !parsed.ContentWarning {
		t.Error("expected content warning flag")
	}
	if parsed.Stella["yellow"] != 3 || parsed.Stella["red"] != 1 {
		t.Errorf("unexpected stella counts: %v", parsed.Stella)
	}
	if !parsed.IsReply() {
		t.Error("expected reply")
	}
}

func TestParseTagsIgnoresMalformedStella(t *testing.T) {
	event := &nostr.Event{
		Kind: KindReaction,
		Tags: nostr.Tags{
			nostr.Tag{"stella", "yellow", "three"},
			nostr.Tag{"stella", "red", "-2"},
			nostr.Tag{"stella", "green"},
			nostr.Tag{"stella", "blue", "4"},
		},
	}

	parsed := ParseTags(event)

	if len(parsed.Stella) != 1 || parsed.Stella["blue"] != 4 {
		t.Errorf("expected only blue:4 to survive, got %v", parsed.Stella)
	}
}

func TestParseTagsSkipsEmptyValues(t *testing.T) {
	event := &nostr.Event{
		Kind: KindNote,
		Tags: nostr.Tags{
			nostr.Tag{"e", ""},
			nostr.Tag{"p", ""},
			nostr.Tag{"t", ""},
			nostr.Tag{},
		},
	}

	parsed := ParseTags(event)

	if parsed.Pointer != "" || parsed.PointerAuthor != "" || len(parsed.Hashtags) != 0 {
		t.Errorf("expected empty tag values skipped: %+v", parsed)
	}
}

func TestResolveThreadMarkedRootOnly(t *testing.T) {
	event := &nostr.Event{
		Kind: KindNote,
		Tags: nostr.Tags{nostr.Tag{"e", "root-id", "", "root"}},
	}

	parsed := ParseTags(event)

	// A reply directly under the root
	if parsed.Root != "root-id" || parsed.ReplyTo != "root-id" {
		t.Errorf("expected both pointers at root, got root=%q reply=%q", parsed.Root, parsed.ReplyTo)
	}
}

func TestResolveThreadPositionalFallback(t *testing.T) {
	tests := []struct {
		name      string
		eTags     []string
		wantRoot  string
		wantReply string
	}{
		{"no e tags", nil, "", ""},
		{"single e tag", []string{"only"}, "only", "only"},
		{"two e tags", []string{"first", "last"}, "first", "last"},
		{"three e tags", []string{"first", "middle", "last"}, "first", "last"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			event := &nostr.Event{Kind: KindNote}
			for _, id := range tt.eTags {
				event.Tags = append(event.Tags, nostr.Tag{"e", id})
			}

			parsed := ParseTags(event)
			if parsed.Root != tt.wantRoot || parsed.ReplyTo != tt.wantReply {
				t.Errorf("got root=%q reply=%q, want root=%q reply=%q",
					parsed.Root, parsed.ReplyTo, tt.wantRoot, tt.wantReply)
			}
		})
	}
}
