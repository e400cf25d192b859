package profile

import (
	"context"

	"github.com/nbd-wtf/go-nostr"
	"github.com/puzpuzpuz/xsync/v3"
	"github.com/tidwall/gjson"

	"github.com/awayuki/lumiline/internal/ops"
)

// Profile is the decoded kind-0 metadata for a pubkey. Fields the
// author never set are empty strings.
type Profile struct {
	Pubkey      string
	Name        string
	DisplayName string
	About       string
	Picture     string
	NIP05       string
	Lud16       string
	Lud06       string
}

// BestName picks the most presentable name the author provided
func (p *Profile) BestName() string {
	if p.DisplayName != "" {
		return p.DisplayName
	}
	if p.Name != "" {
		return p.Name
	}
	if len(p.Pubkey) > 8 {
		return p.Pubkey[:8]
	}
	return p.Pubkey
}

// LightningAddress returns the author's payment address, preferring
// lud16 over the legacy lud06 form. Empty when the author set neither.
func (p *Profile) LightningAddress() string {
	if p.Lud16 != "" {
		return p.Lud16
	}
	return p.Lud06
}

// Fetcher fetches the newest metadata event for a pubkey
type Fetcher interface {
	FetchMetadata(ctx context.Context, pubkey string) *nostr.Event
}

// Resolver resolves pubkeys to profiles with a session-scoped cache.
// Misses are cached too, so an author without metadata costs one relay
// round trip per session, not one per payment attempt.
type Resolver struct {
	fetcher Fetcher
	log     *ops.Logger
	cache   *xsync.MapOf[string, *Profile]
}

// NewResolver creates a profile resolver
func NewResolver(fetcher Fetcher, log *ops.Logger) *Resolver {
	return &Resolver{
		fetcher: fetcher,
		log:     log.WithComponent("profile"),
		cache:   xsync.NewMapOf[string, *Profile](),
	}
}

// Resolve returns the profile for a pubkey, fetching it on first use
func (r *Resolver) Resolve(ctx context.Context, pubkey string) *Profile {
	if cached, ok := r.cache.Load(pubkey); ok {
		return cached
	}

	profile := &Profile{Pubkey: pubkey}
	if event := r.fetcher.FetchMetadata(ctx, pubkey); event != nil {
		parseMetadata(event.Content, profile)
	} else {
		r.log.Debug("no metadata found", "pubkey", pubkey)
	}

	actual, _ := r.cache.LoadOrStore(pubkey, profile)
	return actual
}

// PaymentAddress resolves a pubkey to its Lightning payment address.
// Empty when the author cannot receive payments.
func (r *Resolver) PaymentAddress(ctx context.Context, pubkey string) (string, error) {
	return r.Resolve(ctx, pubkey).LightningAddress(), nil
}

// Forget drops a cached profile so the next Resolve refetches it
func (r *Resolver) Forget(pubkey string) {
	r.cache.Delete(pubkey)
}

// parseMetadata decodes the JSON content of a kind-0 event. Malformed
// content leaves the profile with whatever fields parsed cleanly.
func parseMetadata(content string, profile *Profile) {
	if !gjson.Valid(content) {
		return
	}

	parsed := gjson.Parse(content)
	profile.Name = parsed.Get("name").String()
	profile.DisplayName = parsed.Get("display_name").String()
	profile.About = parsed.Get("about").String()
	profile.Picture = parsed.Get("picture").String()
	profile.NIP05 = parsed.Get("nip05").String()
	profile.Lud16 = parsed.Get("lud16").String()
	profile.Lud06 = parsed.Get("lud06").String()
}
