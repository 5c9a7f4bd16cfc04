// Package orchestrator wires the six periodic components (dispatch,
// engagement, reply matching, spam recovery, day advance, scoring) plus
// plan retention cleanup onto a single cron scheduler, the same way the
// relay's internal/scheduler drives its one processing cycle.
package orchestrator

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"warmup-engine/internal/config"
	"warmup-engine/internal/dayadvancer"
	"warmup-engine/internal/dispatcher"
	"warmup-engine/internal/engagement"
	"warmup-engine/internal/replymatcher"
	"warmup-engine/internal/scorer"
	"warmup-engine/internal/spamrecovery"
	"warmup-engine/internal/store"
)

// JobStatus summarizes one cron entry for the /healthz endpoint.
type JobStatus struct {
	Name string    `json:"name"`
	Prev time.Time `json:"prev"`
	Next time.Time `json:"next"`
}

// Orchestrator owns the cron.Cron instance and every registered entry ID.
type Orchestrator struct {
	cron    *cron.Cron
	store   *store.Store
	sched   config.ScheduleConfig
	plan    config.PlanConfig
	entries map[string]cron.EntryID

	dispatch *dispatcher.Dispatcher
	engage   *engagement.Simulator
	replies  *replymatcher.Matcher
	spam     *spamrecovery.Recovery
	advancer *dayadvancer.Advancer
	score    *scorer.Engine

	ctx       context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	mu        sync.RWMutex
	isRunning bool
}

// Components bundles the already-constructed periodic workers.
type Components struct {
	Dispatch   *dispatcher.Dispatcher
	Engagement *engagement.Simulator
	Replies    *replymatcher.Matcher
	Spam       *spamrecovery.Recovery
	Advancer   *dayadvancer.Advancer
	Score      *scorer.Engine
}

func New(s *store.Store, sched config.ScheduleConfig, plan config.PlanConfig, c Components) *Orchestrator {
	ctx, cancel := context.WithCancel(context.Background())
	return &Orchestrator{
		cron:     cron.New(cron.WithSeconds()),
		store:    s,
		plan:     plan,
		entries:  make(map[string]cron.EntryID),
		dispatch: c.Dispatch,
		engage:   c.Engagement,
		replies:  c.Replies,
		spam:     c.Spam,
		advancer: c.Advancer,
		score:    c.Score,
		ctx:      ctx,
		cancel:   cancel,
		sched:    sched,
	}
}

// Start registers all seven jobs and starts the cron loop.
func (o *Orchestrator) Start() error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.isRunning {
		return fmt.Errorf("orchestrator is already running")
	}

	jobs := []struct {
		name     string
		interval time.Duration
		run      func()
	}{
		{"dispatch", o.sched.DispatchInterval, o.runDispatch},
		{"engagement", o.sched.EngagementInterval, o.runEngagement},
		{"reply_poll", o.sched.ReplyPollInterval, o.runReplyPoll},
		{"spam_recovery", o.sched.SpamRecoveryInterval, o.runSpamRecovery},
		{"day_advance", o.sched.DayAdvanceInterval, o.runDayAdvance},
		{"score", o.sched.ScoreInterval, o.runScore},
		{"cleanup", o.sched.CleanupInterval, o.runCleanup},
	}

	for _, job := range jobs {
		spec := everySpec(job.interval)
		id, err := o.cron.AddFunc(spec, job.run)
		if err != nil {
			return fmt.Errorf("failed to add cron job %s: %w", job.name, err)
		}
		o.entries[job.name] = id
	}

	o.cron.Start()
	o.isRunning = true
	logrus.Info("orchestrator: started")
	return nil
}

// Stop cancels the context and stops the cron loop, waiting up to 30s for
// in-flight jobs to finish.
func (o *Orchestrator) Stop() error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if !o.isRunning {
		return nil
	}

	o.cancel()
	stopCtx := o.cron.Stop()

	select {
	case <-stopCtx.Done():
		logrus.Info("orchestrator: stopped gracefully")
	case <-time.After(30 * time.Second):
		logrus.Warn("orchestrator: stop timeout, forcing shutdown")
	}

	o.isRunning = false
	return nil
}

func (o *Orchestrator) Wait() {
	o.wg.Wait()
}

func (o *Orchestrator) IsRunning() bool {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.isRunning
}

// Entries reports the previous/next fire time of every registered job.
func (o *Orchestrator) Entries() []JobStatus {
	o.mu.RLock()
	defer o.mu.RUnlock()

	statuses := make([]JobStatus, 0, len(o.entries))
	for name, id := range o.entries {
		entry := o.cron.Entry(id)
		statuses = append(statuses, JobStatus{Name: name, Prev: entry.Prev, Next: entry.Next})
	}
	return statuses
}

func (o *Orchestrator) runDispatch() {
	o.track(func() { o.dispatch.Tick(o.ctx) })
}

func (o *Orchestrator) runEngagement() {
	o.track(func() { o.engage.Tick(o.ctx) })
}

func (o *Orchestrator) runReplyPoll() {
	o.track(func() { o.replies.Tick(o.ctx) })
}

func (o *Orchestrator) runSpamRecovery() {
	o.track(func() { o.spam.Tick(o.ctx) })
}

func (o *Orchestrator) runDayAdvance() {
	o.track(func() { o.advancer.Tick() })
}

func (o *Orchestrator) runScore() {
	o.track(func() { o.score.Tick() })
}

func (o *Orchestrator) runCleanup() {
	o.track(func() {
		n, err := o.store.Purge(o.plan.Retention, time.Now())
		if err != nil {
			logrus.WithError(err).Error("orchestrator: plan entry purge failed")
			return
		}
		if n > 0 {
			logrus.WithField("purged", n).Info("orchestrator: purged stale plan entries")
		}
	})
}

// track runs a job under the waitgroup, guarding against overlap with
// shutdown the same way the relay's scheduler does for processEmails.
func (o *Orchestrator) track(fn func()) {
	o.wg.Add(1)
	defer o.wg.Done()

	o.mu.RLock()
	running := o.isRunning
	o.mu.RUnlock()
	if !running {
		return
	}

	select {
	case <-o.ctx.Done():
		return
	default:
	}

	fn()
}

// everySpec builds a robfig/cron seconds-resolution spec that fires every
// d. Intervals below a second are raised to one second; intervals of an
// hour or more are rounded down to whole hours, and those between a minute
// and an hour to whole minutes, to keep the spec string compact.
func everySpec(d time.Duration) string {
	switch {
	case d <= time.Minute:
		secs := int(d.Seconds())
		if secs < 1 {
			secs = 1
		}
		return fmt.Sprintf("*/%d * * * * *", secs)
	case d < time.Hour:
		mins := int(d / time.Minute)
		return fmt.Sprintf("0 */%d * * * *", mins)
	default:
		hours := int(d / time.Hour)
		return fmt.Sprintf("0 0 */%d * * *", hours)
	}
}
