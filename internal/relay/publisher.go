package relay

import (
	"context"
	"fmt"

	"github.com/nbd-wtf/go-nostr"
	"github.com/nbd-wtf/go-nostr/nip19"

	"github.com/awayuki/lumiline/internal/ops"
)

// Signer holds the local identity's signing key
type Signer struct {
	secretKey string
	pubKey    string
}

// NewSigner creates a signer from a bech32 nsec
func NewSigner(nsec string) (*Signer, error) {
	prefix, value, err := nip19.Decode(nsec)
	if err != nil {
		return nil, fmt.Errorf("failed to decode nsec: %w", err)
	}
	if prefix != "nsec" {
		return nil, fmt.Errorf("expected nsec, got %s", prefix)
	}

	secretKey := value.(string)
	pubKey, err := nostr.GetPublicKey(secretKey)
	if err != nil {
		return nil, fmt.Errorf("failed to derive public key: %w", err)
	}

	return &Signer{
		secretKey: secretKey,
		pubKey:    pubKey,
	}, nil
}

// PubKey returns the hex public key of the local identity
func (s *Signer) PubKey() string {
	return s.pubKey
}

// Sign signs the event template in place, setting PubKey, ID and Sig
func (s *Signer) Sign(event *nostr.Event) error {
	event.PubKey = s.pubKey
	if err := event.Sign(s.secretKey); err != nil {
		return fmt.Errorf("failed to sign event: %w", err)
	}
	return nil
}

// Publisher broadcasts events to all configured relays
type Publisher struct {
	client *Client
	signer *Signer
	log    *ops.Logger
}

// NewPublisher creates a publisher over the given client and signer
func NewPublisher(client *Client, signer *Signer, log *ops.Logger) *Publisher {
	return &Publisher{
		client: client,
		signer: signer,
		log:    log.WithComponent("publisher"),
	}
}

// Publish broadcasts a signed event. Delivery to a multi-relay target is
// not transactional: the publish succeeds if at least one relay accepted it.
func (p *Publisher) Publish(ctx context.Context, event *nostr.Event) error {
	results := p.client.pool.PublishMany(ctx, p.client.relays.Seeds, *event)

	var lastErr error
	successCount := 0

	for result := range results {
		if result.Error != nil {
			lastErr = result.Error
		} else {
			successCount++
		}
	}

	if successCount == 0 {
		if lastErr == nil {
			lastErr = fmt.Errorf("no relay accepted the event")
		}
		err := fmt.Errorf("failed to publish to any relay: %w", lastErr)
		p.log.LogPublish(event.ID, event.Kind, err)
		return err
	}

	p.log.LogPublish(event.ID, event.Kind, nil)
	return nil
}

// SignAndPublish signs the template with the local identity and broadcasts it
func (p *Publisher) SignAndPublish(ctx context.Context, event *nostr.Event) (*nostr.Event, error) {
	if event.CreatedAt == 0 {
		event.CreatedAt = nostr.Now()
	}

	if err := p.signer.Sign(event); err != nil {
		return nil, err
	}

	if err := p.Publish(ctx, event); err != nil {
		return nil, err
	}

	return event, nil
}
