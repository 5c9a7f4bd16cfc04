// Package mailclient defines the provider-agnostic mail interface the
// Dispatcher (C5), Engagement Simulator (C6), Reply Matcher (C7) and Spam
// Recovery (C8) components depend on. Concrete adapters live in the gmail
// and imap subpackages.
package mailclient

import (
	"context"
	"time"

	"warmup-engine/internal/models"
)

// SentMessage is the result of a successful send: the provider's own
// identifiers, needed later to match replies and find spam placements.
type SentMessage struct {
	ProviderMsgID    string
	ProviderThreadID string
}

// InboundMessage is one message returned by ListUnreadTo or ListSpamFrom.
type InboundMessage struct {
	ProviderMsgID    string
	ProviderThreadID string
	From             string
	Subject          string
}

// Client is the interface every provider adapter (gmail, imap, future
// providers) must implement. Every method takes the Mailbox's current
// Credentials explicitly rather than holding state, so a single adapter
// instance can serve many mailboxes sharing a provider.
type Client interface {
	Send(ctx context.Context, creds models.Credentials, from, to, subject, html string) (SentMessage, error)
	SendReply(ctx context.Context, creds models.Credentials, from, to, originalThreadID, originalMsgID, subject, html string) (SentMessage, error)
	ListUnreadTo(ctx context.Context, creds models.Credentials, since time.Time) ([]InboundMessage, error)
	MarkRead(ctx context.Context, creds models.Credentials, providerMsgID string) error
	MarkImportant(ctx context.Context, creds models.Credentials, providerMsgID string) error
	ListSpamFrom(ctx context.Context, creds models.Credentials, senderAddresses []string) ([]InboundMessage, error)
	Unspam(ctx context.Context, creds models.Credentials, providerMsgID string) error
	Refresh(ctx context.Context, creds models.Credentials) (models.Credentials, error)
}

// Registry resolves a Mailbox's Provider to the Client that can speak to
// it. For reports false for an unregistered provider; it returns no error
// value, and what to do next is left to the caller.
type Registry struct {
	clients map[models.Provider]Client
}

func NewRegistry() *Registry {
	return &Registry{clients: make(map[models.Provider]Client)}
}

func (r *Registry) Register(p models.Provider, c Client) {
	r.clients[p] = c
}

func (r *Registry) For(p models.Provider) (Client, bool) {
	c, ok := r.clients[p]
	return c, ok
}
