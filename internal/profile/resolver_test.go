package profile

import (
	"context"
	"sync/atomic"
	"testing"

	"github.com/nbd-wtf/go-nostr"

	"github.com/awayuki/lumiline/internal/config"
	"github.com/awayuki/lumiline/internal/ops"
)

type fakeFetcher struct {
	calls    atomic.Int64
	metadata map[string]string // pubkey -> kind-0 content
}

func (f *fakeFetcher) FetchMetadata(ctx context.Context, pubkey string) *nostr.Event {
	f.calls.Add(1)

	content, ok := f.metadata[pubkey]
	if !ok {
		return nil
	}
	return &nostr.Event{
		Kind:    nostr.KindProfileMetadata,
		PubKey:  pubkey,
		Content: content,
	}
}

func newTestResolver(t *testing.T, fetcher *fakeFetcher) *Resolver {
	t.Helper()

	logger := ops.NewLogger(&config.Logging{Level: "error", Format: "text"})
	return NewResolver(fetcher, logger)
}

func TestResolveParsesMetadata(t *testing.T) {
	fetcher := &fakeFetcher{metadata: map[string]string{
		"alice": `{"name":"alice","display_name":"Alice","nip05":"alice@example.com","lud16":"alice@wallet.example","picture":"https://example.com/a.png"}`,
	}}
	r := newTestResolver(t, fetcher)

	profile := r.Resolve(context.Background(), "alice")
	if profile.Name != "alice" {
		t.Errorf("expected name alice, got %q", profile.Name)
	}
	if profile.DisplayName != "Alice" {
		t.Errorf("expected display name Alice, got %q", profile.DisplayName)
	}
	if profile.Lud16 != "alice@wallet.example" {
		t.Errorf("expected lud16, got %q", profile.Lud16)
	}
	if profile.BestName() != "Alice" {
		t.Errorf("expected BestName Alice, got %q", profile.BestName())
	}
}

func TestResolveCachesResults(t *testing.T) {
	fetcher := &fakeFetcher{metadata: map[string]string{
		"alice": `{"name":"alice"}`,
	}}
	r := newTestResolver(t, fetcher)

	r.Resolve(context.Background(), "alice")
	r.Resolve(context.Background(), "alice")

	if got := fetcher.calls.Load(); got != 1 {
		t.Errorf("expected 1 fetch, got %d", got)
	}
}

func TestResolveCachesMisses(t *testing.T) {
	fetcher := &fakeFetcher{}
	r := newTestResolver(t, fetcher)

	profile := r.Resolve(context.Background(), "ghost-pubkey")
	if profile.Pubkey != "ghost-pubkey" {
		t.Errorf("expected pubkey carried through, got %q", profile.Pubkey)
	}
	if profile.LightningAddress() != "" {
		t.Errorf("expected no address, got %q", profile.LightningAddress())
	}

	r.Resolve(context.Background(), "ghost-pubkey")
	if got := fetcher.calls.Load(); got != 1 {
		t.Errorf("expected miss to be cached, got %d fetches", got)
	}
}

func TestResolveMalformedContent(t *testing.T) {
	fetcher := &fakeFetcher{metadata: map[string]string{
		"bob": `{"name": truncated`,
	}}
	r := newTestResolver(t, fetcher)

	profile := r.Resolve(context.Background(), "bob")
	if profile.Name != "" {
		t.Errorf("expected empty name from malformed content, got %q", profile.Name)
	}
}

func TestPaymentAddressPrefersLud16(t *testing.T) {
	fetcher := &fakeFetcher{metadata: map[string]string{
		"both":      `{"lud16":"both@wallet.example","lud06":"lnurl1dp68gurn8ghj7"}`,
		"lud06only": `{"lud06":"lnurl1dp68gurn8ghj7"}`,
	}}
	r := newTestResolver(t, fetcher)

	if addr, _ := r.PaymentAddress(context.Background(), "both"); addr != "both@wallet.example" {
		t.Errorf("expected lud16 preferred, got %q", addr)
	}
	if addr, _ := r.PaymentAddress(context.Background(), "lud06only"); addr != "lnurl1dp68gurn8ghj7" {
		t.Errorf("expected lud06 fallback, got %q", addr)
	}
}

func TestForgetDropsCacheEntry(t *testing.T) {
	fetcher := &fakeFetcher{metadata: map[string]string{
		"alice": `{"name":"alice"}`,
	}}
	r := newTestResolver(t, fetcher)

	r.Resolve(context.Background(), "alice")
	r.Forget("alice")
	r.Resolve(context.Background(), "alice")

	if got := fetcher.calls.Load(); got != 2 {
		t.Errorf("expected refetch after Forget, got %d fetches", got)
	}
}

func TestBestNameFallsBackToPubkey(t *testing.T) {
	p := &Profile{Pubkey: "3bf0c63fcb93463407af97a5e5ee64fa883d107ef9e558472c4eb9aaaefa459d"}
	if got := p.BestName(); got != "3bf0c63f" {
		t.Errorf("expected shortened pubkey, got %q", got)
	}
}
