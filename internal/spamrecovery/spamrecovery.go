// Package spamrecovery implements Spam Recovery (C8): polls each active
// recipient's spam folder for warmup mail from active senders and attempts
// to move it back to the inbox.
package spamrecovery

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"warmup-engine/internal/mailclient"
	"warmup-engine/internal/metrics"
	"warmup-engine/internal/models"
	"warmup-engine/internal/store"
)

const maxAttempts = 3

// Recovery polls every active recipient once per tick.
type Recovery struct {
	store    *store.Store
	registry *mailclient.Registry
	metrics  *metrics.Metrics
}

func New(s *store.Store, registry *mailclient.Registry, m *metrics.Metrics) *Recovery {
	return &Recovery{store: s, registry: registry, metrics: m}
}

func (r *Recovery) Tick(ctx context.Context) {
	recipients, err := r.store.ActiveRecipients()
	if err != nil {
		logrus.WithError(err).Error("spamrecovery: failed to load active recipients")
		return
	}
	senders, err := r.store.ActiveSenders()
	if err != nil {
		logrus.WithError(err).Error("spamrecovery: failed to load active senders")
		return
	}
	if len(senders) == 0 {
		return
	}
	senderAddrs := make([]string, len(senders))
	senderByEmail := make(map[string]models.Mailbox, len(senders))
	for i, s := range senders {
		senderAddrs[i] = s.Email
		senderByEmail[s.Email] = s
	}

	for _, recipient := range recipients {
		r.processRecipient(ctx, recipient, senderAddrs, senderByEmail)
	}
}

func (r *Recovery) processRecipient(ctx context.Context, recipient models.Mailbox, senderAddrs []string, senderByEmail map[string]models.Mailbox) {
	client, ok := r.registry.For(recipient.Provider)
	if !ok {
		return
	}
	creds, err := recipient.Credentials()
	if err != nil {
		return
	}

	spamMessages, err := client.ListSpamFrom(ctx, creds, senderAddrs)
	if err != nil {
		logrus.WithError(err).WithField("recipient_id", recipient.ID).Warn("spamrecovery: failed to list spam folder")
		return
	}

	for _, sm := range spamMessages {
		sender, ok := senderByEmail[sm.From]
		if !ok {
			continue
		}
		r.recoverOne(ctx, client, creds, recipient, sender, sm)
	}
}

func (r *Recovery) recoverOne(ctx context.Context, client mailclient.Client, creds models.Credentials, recipient, sender models.Mailbox, sm mailclient.InboundMessage) {
	event, err := r.store.OpenSpamEventFor(recipient.ID, sm.ProviderMsgID)
	if err != nil {
		logrus.WithError(err).Warn("spamrecovery: failed to look up existing spam event")
		return
	}
	if event == nil {
		msg, _ := r.store.FindMessageByProviderMsgID(sender.ID, sm.ProviderMsgID)
		var messageID *uint
		if msg != nil {
			messageID = &msg.ID
		}
		event = &models.SpamEvent{
			TrackingID:    uuid.New().String(),
			MessageID:     messageID,
			RecipientID:   recipient.ID,
			SenderID:      sender.ID,
			ProviderMsgID: sm.ProviderMsgID,
			DetectedAt:    time.Now(),
			Status:        models.SpamDetected,
		}
		if err := r.store.CreateSpamEvent(event); err != nil {
			logrus.WithError(err).Warn("spamrecovery: failed to create spam event")
			return
		}
		r.metrics.SpamDetected.Inc()
	}

	if event.Status != models.SpamDetected {
		return
	}
	if event.Attempts >= maxAttempts {
		return
	}

	event.Attempts++
	if err := client.Unspam(ctx, creds, sm.ProviderMsgID); err != nil {
		event.Error = err.Error()
		if event.Attempts >= maxAttempts {
			event.Status = models.SpamFailed
			r.metrics.SpamFailed.Inc()
		}
		_ = r.store.SaveSpamEvent(event)
		return
	}

	now := time.Now()
	event.Status = models.SpamRecovered
	event.RecoveredAt = &now
	if err := r.store.SaveSpamEvent(event); err != nil {
		logrus.WithError(err).Warn("spamrecovery: failed to persist recovered spam event")
		return
	}
	r.metrics.SpamRecovered.Inc()
}
