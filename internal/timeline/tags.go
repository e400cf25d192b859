package timeline

import (
	"strconv"

	"github.com/nbd-wtf/go-nostr"
)

// ParsedTags is the decoded form of an event's tag list. Tags are decoded
// once at ingestion so the rest of the engine never re-scans raw arrays.
type ParsedTags struct {
	Root           string            // root of the thread (e tag, root marker or NIP-10 positional)
	ReplyTo        string            // direct parent (e tag, reply marker or positional)
	Pointer        string            // first e tag; repost pointer / reaction target
	PointerAuthor  string            // first p tag
	Mentions       []string          // all p tags
	Hashtags       []string          // t tags
	Emojis         map[string]string // emoji shortcode -> image url
	ContentWarning bool
	Stella         map[string]int // stella category -> cumulative count
}

// ParseTags decodes the raw tag list into its known variants
func ParseTags(event *nostr.Event) *ParsedTags {
	parsed := &ParsedTags{}

	var eTags []nostr.Tag

	for _, tag := range event.Tags {
		if len(tag) == 0 {
			continue
		}

		switch tag[0] {
		case "e":
			if len(tag) >= 2 && tag[1] != "" {
				eTags = append(eTags, tag)
				if parsed.Pointer == "" {
					parsed.Pointer = tag[1]
				}
			}
		case "p":
			if len(tag) >= 2 && tag[1] != "" {
				if parsed.PointerAuthor == "" {
					parsed.PointerAuthor = tag[1]
				}
				parsed.Mentions = append(parsed.Mentions, tag[1])
			}
		case "t":
			if len(tag) >= 2 && tag[1] != "" {
				parsed.Hashtags = append(parsed.Hashtags, tag[1])
			}
		case "emoji":
			if len(tag) >= 3 {
				if parsed.Emojis == nil {
					parsed.Emojis = make(map[string]string)
				}
				parsed.Emojis[tag[1]] = tag[2]
			}
		case "content-warning":
			parsed.ContentWarning = true
		case "stella":
			if len(tag) >= 3 {
				count, err := strconv.Atoi(tag[2])
				if err != nil || count < 0 {
					continue
				}
				if parsed.Stella == nil {
					parsed.Stella = make(map[string]int)
				}
				parsed.Stella[tag[1]] = count
			}
		}
	}

	parsed.Root, parsed.ReplyTo = resolveThread(eTags)

	return parsed
}

// resolveThread extracts root and reply pointers from e tags, honoring
// NIP-10 markers with a positional fallback for unmarked tags
func resolveThread(eTags []nostr.Tag) (root, replyTo string) {
	for _, tag := range eTags {
		if len(tag) >= 4 {
			switch tag[3] {
			case "root":
				root = tag[1]
			case "reply":
				replyTo = tag[1]
			}
		}
	}

	if root != "" || replyTo != "" {
		if replyTo == "" {
			// A marked root with no reply marker is a direct reply to the root
			replyTo = root
		}
		return root, replyTo
	}

	// Positional fallback: first e is root, last e is the parent
	switch len(eTags) {
	case 0:
		return "", ""
	case 1:
		return eTags[0][1], eTags[0][1]
	default:
		return eTags[0][1], eTags[len(eTags)-1][1]
	}
}

// IsReply reports whether the event is a reply to another event
func (p *ParsedTags) IsReply() bool {
	return p.ReplyTo != ""
}
