// Package replymatcher implements the Reply Matcher (C7): polls each
// active sender's inbox for unread inbound mail and stamps replied_at on
// the outbound Message it answers.
package replymatcher

import (
	"context"
	"regexp"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"warmup-engine/internal/mailclient"
	"warmup-engine/internal/metrics"
	"warmup-engine/internal/models"
	"warmup-engine/internal/store"
)

// Matcher polls each active sender once per tick.
type Matcher struct {
	store      *store.Store
	registry   *mailclient.Registry
	metrics    *metrics.Metrics
	lastPollBy map[uint]time.Time
}

func New(s *store.Store, registry *mailclient.Registry, m *metrics.Metrics) *Matcher {
	return &Matcher{store: s, registry: registry, metrics: m, lastPollBy: make(map[uint]time.Time)}
}

func (m *Matcher) Tick(ctx context.Context) {
	senders, err := m.store.ActiveSenders()
	if err != nil {
		logrus.WithError(err).Error("replymatcher: failed to load active senders")
		return
	}
	for _, sender := range senders {
		m.pollSender(ctx, sender)
	}
}

func (m *Matcher) pollSender(ctx context.Context, sender models.Mailbox) {
	client, ok := m.registry.For(sender.Provider)
	if !ok {
		return
	}
	creds, err := sender.Credentials()
	if err != nil {
		return
	}

	since, polled := m.lastPollBy[sender.ID]
	if !polled {
		since = time.Now().Add(-24 * time.Hour)
	}

	inbound, err := client.ListUnreadTo(ctx, creds, since)
	if err != nil {
		logrus.WithError(err).WithField("sender_id", sender.ID).Warn("replymatcher: failed to list unread inbound messages")
		return
	}
	m.lastPollBy[sender.ID] = time.Now()
	if len(inbound) == 0 {
		return
	}

	candidates, err := m.store.UnrepliedSentBy(sender.ID)
	if err != nil {
		logrus.WithError(err).WithField("sender_id", sender.ID).Warn("replymatcher: failed to load unreplied sent messages")
		return
	}

	for _, in := range inbound {
		matched := matchByThread(candidates, in.ProviderThreadID)
		if matched == nil {
			matched = matchBySubject(candidates, in.Subject)
		}
		if matched == nil {
			continue
		}
		if err := m.store.MarkReplied(matched.ID, time.Now()); err != nil {
			logrus.WithError(err).WithField("message_id", matched.ID).Warn("replymatcher: failed to persist replied_at")
			continue
		}
		m.metrics.RepliesMatched.Inc()
	}
}

func matchByThread(candidates []models.Message, threadID string) *models.Message {
	if threadID == "" {
		return nil
	}
	for i := range candidates {
		if candidates[i].ProviderThreadID == threadID {
			return &candidates[i]
		}
	}
	return nil
}

var rePrefix = regexp.MustCompile(`(?i)^(re|fwd|fw)\s*:\s*`)

func normalizeSubject(s string) string {
	for {
		trimmed := rePrefix.ReplaceAllString(strings.TrimSpace(s), "")
		if trimmed == s {
			return strings.ToLower(strings.TrimSpace(trimmed))
		}
		s = trimmed
	}
}

func matchBySubject(candidates []models.Message, subject string) *models.Message {
	normalized := normalizeSubject(subject)
	if normalized == "" {
		return nil
	}
	for i := range candidates {
		if normalizeSubject(candidates[i].Subject) == normalized {
			return &candidates[i]
		}
	}
	return nil
}
