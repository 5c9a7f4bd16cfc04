// Package dispatcher implements the Dispatcher (C5): the periodic loop that
// turns due PlanEntries into sent Messages.
package dispatcher

import (
	"context"
	"errors"
	"math/rand"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"warmup-engine/internal/calendar"
	"warmup-engine/internal/content"
	"warmup-engine/internal/errs"
	"warmup-engine/internal/mailclient"
	"warmup-engine/internal/metrics"
	"warmup-engine/internal/models"
	"warmup-engine/internal/phase"
	"warmup-engine/internal/planner"
	"warmup-engine/internal/ratelimit"
	"warmup-engine/internal/store"
)

// Config holds the tunables spec.md §6 exposes for this component.
type Config struct {
	GraceWindow  time.Duration
	FireWindow   time.Duration
	SendDeadline time.Duration
	MaxAttempts  int
}

func DefaultConfig() Config {
	return Config{
		GraceWindow:  5 * time.Minute,
		FireWindow:   2 * time.Minute,
		SendDeadline: 30 * time.Second,
		MaxAttempts:  3,
	}
}

// Dispatcher wires the Schedule Store, Planner, Content Generator and mail
// client registry together for one tick at a time.
type Dispatcher struct {
	store    *store.Store
	planner  *planner.Planner
	registry *mailclient.Registry
	gen      content.Generator
	limiter  *ratelimit.Limiter
	clock    calendar.Clock
	hours    calendar.BusinessHours
	cfg      Config
	metrics  *metrics.Metrics
	rng      *rand.Rand
}

func New(s *store.Store, p *planner.Planner, registry *mailclient.Registry, gen content.Generator, limiter *ratelimit.Limiter, clock calendar.Clock, hours calendar.BusinessHours, cfg Config, m *metrics.Metrics) *Dispatcher {
	return &Dispatcher{
		store:    s,
		planner:  p,
		registry: registry,
		gen:      gen,
		limiter:  limiter,
		clock:    clock,
		hours:    hours,
		cfg:      cfg,
		metrics:  m,
		rng:      rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Tick runs one dispatch cycle: group active senders by tz, process the
// zones currently inside business hours, and send every plan entry due now.
func (d *Dispatcher) Tick(ctx context.Context) {
	start := time.Now()
	d.metrics.DispatchTicks.Inc()
	defer func() { d.metrics.DispatchDuration.Observe(time.Since(start).Seconds()) }()

	senders, err := d.store.ActiveSenders()
	if err != nil {
		logrus.WithError(err).Error("dispatcher: failed to load active senders")
		return
	}
	d.metrics.ActiveSenders.Set(float64(len(senders)))

	byZone := groupByZone(senders)
	now := d.clock.Now()

	for tz, zoneSenders := range byZone {
		loc, err := time.LoadLocation(tz)
		if err != nil {
			logrus.WithField("tz", tz).WithError(err).Warn("dispatcher: unknown timezone, skipping zone")
			continue
		}
		localNow := now.In(loc)
		if !calendar.IsBusinessHours(localNow, d.hours) {
			continue
		}

		d.ensurePlansExist(ctx, zoneSenders, localNow, loc)
		d.dispatchZone(ctx, zoneSenders, now)
	}
}

// ensurePlansExist triggers the Planner for any sender with no PENDING or
// SENT entries for today, per spec.md §4.9's "planner triggered implicitly".
func (d *Dispatcher) ensurePlansExist(ctx context.Context, senders []models.Mailbox, localNow time.Time, loc *time.Location) {
	today := localNow
	for _, sender := range senders {
		count, err := d.store.PlanCountForDate(sender.ID, today)
		if err != nil {
			logrus.WithError(err).WithField("sender_id", sender.ID).Warn("dispatcher: failed to count plan entries")
			continue
		}
		if count > 0 {
			continue
		}
		_, dailyLimit := phase.For(sender.WarmupDay, sender.Target)
		entries := d.planner.Plan(today, dailyLimit, loc)
		if len(entries) < dailyLimit {
			logrus.WithFields(logrus.Fields{"sender_id": sender.ID, "planned": len(entries), "daily_limit": dailyLimit}).
				Info("dispatcher: planner produced fewer entries than daily_limit")
		}
		timestamps := make([]time.Time, len(entries))
		bands := make([]models.Band, len(entries))
		for i, e := range entries {
			timestamps[i] = e.FireAt
			bands[i] = e.Band
		}
		if err := d.store.UpsertPlan(sender.ID, today, timestamps, bands); err != nil {
			logrus.WithError(err).WithField("sender_id", sender.ID).Warn("dispatcher: failed to persist plan")
		}
	}
}

func (d *Dispatcher) dispatchZone(ctx context.Context, senders []models.Mailbox, now time.Time) {
	ids := make([]uint, len(senders))
	byID := make(map[uint]models.Mailbox, len(senders))
	for i, s := range senders {
		ids[i] = s.ID
		byID[s.ID] = s
	}

	var due []models.PlanEntry
	err := d.store.WithTx(func(tx *gorm.DB) error {
		entries, err := d.store.DuePending(tx, ids, now, d.cfg.GraceWindow, d.cfg.FireWindow)
		if err != nil {
			return err
		}
		due = entries
		return nil
	})
	if err != nil {
		logrus.WithError(err).Error("dispatcher: failed to fetch due plan entries")
		return
	}

	for _, entry := range due {
		sender, ok := byID[entry.SenderID]
		if !ok {
			continue
		}
		d.dispatchOne(ctx, sender, entry)
	}
}

func (d *Dispatcher) dispatchOne(ctx context.Context, sender models.Mailbox, entry models.PlanEntry) {
	if d.limiter != nil && !d.limiter.Allow(sender.ID) {
		return // next tick retries; the plan entry stays PENDING.
	}

	recipient, err := d.pickRecipient()
	if err != nil {
		d.failEntry(entry, err)
		return
	}

	client, ok := d.registry.For(sender.Provider)
	if !ok {
		_ = d.store.MarkNeedsReauth(sender.ID)
		logrus.WithField("provider", sender.Provider).Warn("dispatcher: unknown provider, mailbox paused")
		return
	}

	creds, err := sender.Credentials()
	if err != nil {
		d.failEntry(entry, err)
		return
	}

	sendCtx, cancel := context.WithTimeout(ctx, d.cfg.SendDeadline)
	defer cancel()

	if creds.Expired(time.Now()) {
		refreshed, err := client.Refresh(sendCtx, creds)
		if err != nil {
			d.handleReauth(sender, entry, err)
			return
		}
		creds = refreshed
		sender.SetCredentials(creds)
		if err := d.store.SaveMailbox(&sender); err != nil {
			logrus.WithError(err).Warn("dispatcher: failed to persist refreshed credentials")
		}
	}

	subject, bodyHTML, err := d.gen.Generate(sendCtx, "general")
	if err != nil {
		d.failEntry(entry, err)
		return
	}

	sent, err := client.Send(sendCtx, creds, sender.Email, recipient.Email, subject, bodyHTML)
	if err != nil {
		if errs.Is(err, errs.KindExpiredToken) {
			refreshed, rerr := client.Refresh(sendCtx, creds)
			if rerr != nil {
				d.handleReauth(sender, entry, rerr)
				return
			}
			sender.SetCredentials(refreshed)
			_ = d.store.SaveMailbox(&sender)
			sent, err = client.Send(sendCtx, refreshed, sender.Email, recipient.Email, subject, bodyHTML)
		}
		if errs.Is(err, errs.KindNeedsReauth) {
			d.handleReauth(sender, entry, err)
			return
		}
		if err != nil {
			d.failEntry(entry, err)
			return
		}
	}

	trackingID := uuid.New().String()
	msg := &models.Message{
		TrackingID:              trackingID,
		SenderID:                sender.ID,
		RecipientAddress:        recipient.Email,
		Subject:                 subject,
		Body:                    bodyHTML,
		ProviderMsgID:           sent.ProviderMsgID,
		ProviderThreadID:        sent.ProviderThreadID,
		SentAt:                  time.Now(),
		OpenRateTargetSnapshot:  sender.OpenRateTarget,
		ReplyRateTargetSnapshot: sender.ReplyRateTarget,
	}

	err = d.store.WithTx(func(tx *gorm.DB) error {
		if err := d.store.CreateMessage(tx, msg); err != nil {
			return err
		}
		return store.MarkSent(tx, entry.ID, msg.ID)
	})
	if err != nil {
		if isDuplicateDispatch(err) {
			return // another worker already claimed this entry.
		}
		logrus.WithError(err).Warn("dispatcher: failed to persist sent message")
		return
	}
	d.metrics.MessagesSent.Inc()
}

func (d *Dispatcher) pickRecipient() (models.Mailbox, error) {
	recipients, err := d.store.ActiveRecipients()
	if err != nil {
		return models.Mailbox{}, errs.New(errs.KindTransientNetwork, "dispatcher.pick_recipient", err)
	}
	if len(recipients) == 0 {
		return models.Mailbox{}, errs.New(errs.KindInvalidPlan, "dispatcher.pick_recipient", errors.New("no active recipient mailboxes"))
	}
	return recipients[d.rng.Intn(len(recipients))], nil
}

func (d *Dispatcher) failEntry(entry models.PlanEntry, err error) {
	d.metrics.MessagesFailed.Inc()
	_ = d.store.WithTx(func(tx *gorm.DB) error {
		return store.MarkFailed(tx, entry.ID, err.Error())
	})
	if entry.Attempts+1 >= d.cfg.MaxAttempts {
		logrus.WithFields(logrus.Fields{"plan_entry_id": entry.ID, "attempts": entry.Attempts + 1}).
			Warn("dispatcher: entry exhausted attempts, planner will regenerate remaining day")
	}
}

func (d *Dispatcher) handleReauth(sender models.Mailbox, entry models.PlanEntry, cause error) {
	logrus.WithField("sender_id", sender.ID).WithError(cause).Warn("dispatcher: mailbox needs reauth, pausing")
	if err := d.store.MarkNeedsReauth(sender.ID); err != nil {
		logrus.WithError(err).Warn("dispatcher: failed to mark mailbox needs_reauth")
	}
	if err := d.store.SkipPendingFrom(sender.ID, time.Now(), "needs_reauth"); err != nil {
		logrus.WithError(err).Warn("dispatcher: failed to skip pending entries")
	}
}

func isDuplicateDispatch(err error) bool {
	return errors.Is(err, store.ErrAlreadyClaimed)
}

func groupByZone(senders []models.Mailbox) map[string][]models.Mailbox {
	byZone := make(map[string][]models.Mailbox)
	for _, s := range senders {
		byZone[s.TZ] = append(byZone[s.TZ], s)
	}
	return byZone
}
