// Package dayadvancer implements the Day Advancer (C9): once per local
// calendar day, advances a sender's warmup_day and recomputes its
// daily_limit from the Phase Model.
package dayadvancer

import (
	"time"

	"github.com/sirupsen/logrus"

	"warmup-engine/internal/metrics"
	"warmup-engine/internal/models"
	"warmup-engine/internal/phase"
	"warmup-engine/internal/store"
)

// Advancer ticks hourly across every active sender.
type Advancer struct {
	store   *store.Store
	metrics *metrics.Metrics
}

func New(s *store.Store, m *metrics.Metrics) *Advancer {
	return &Advancer{store: s, metrics: m}
}

func (a *Advancer) Tick() {
	senders, err := a.store.ActiveSenders()
	if err != nil {
		logrus.WithError(err).Error("dayadvancer: failed to load active senders")
		return
	}
	for _, sender := range senders {
		a.advanceOne(sender)
	}
}

func (a *Advancer) advanceOne(sender models.Mailbox) {
	loc, err := time.LoadLocation(sender.TZ)
	if err != nil {
		logrus.WithField("tz", sender.TZ).WithError(err).Warn("dayadvancer: unknown timezone, skipping sender")
		return
	}
	localToday := dateOnly(time.Now().In(loc))

	if sender.LastAdvanceDate != nil && !localToday.After(dateOnly(*sender.LastAdvanceDate)) {
		return // already advanced today; at-most-once per local calendar day.
	}

	sender.WarmupDay++
	newPhase, dailyLimit := phase.For(sender.WarmupDay, sender.Target)
	sender.DailyLimit = dailyLimit
	sender.LastAdvanceDate = &localToday

	if phase.CrossesBoundary(sender.WarmupDay) {
		logrus.WithFields(logrus.Fields{
			"sender_id":   sender.ID,
			"sender":      sender.Email,
			"warmup_day":  sender.WarmupDay,
			"phase":       newPhase,
			"daily_limit": dailyLimit,
		}).Info("dayadvancer: phase transition")
		a.metrics.PhaseTransitions.Inc()
	}

	if err := a.store.SaveMailbox(&sender); err != nil {
		logrus.WithError(err).WithField("sender_id", sender.ID).Warn("dayadvancer: failed to persist advance")
		return
	}
	a.metrics.DayAdvances.Inc()
}

func dateOnly(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}
