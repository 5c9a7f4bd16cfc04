// Package scorer implements the Score Engine (C10): a 30-day rolling
// reputation score per sender, computed from Messages and SpamEvents.
package scorer

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/sirupsen/logrus"

	"warmup-engine/internal/metrics"
	"warmup-engine/internal/models"
	"warmup-engine/internal/phase"
	"warmup-engine/internal/store"
)

// Config holds the tunables spec.md §6 exposes for this component.
type Config struct {
	Window time.Duration
}

func DefaultConfig() Config {
	return Config{Window: 30 * 24 * time.Hour}
}

// Result is the per-sender score breakdown returned alongside the rolling
// numeric score, per spec.md §4.10.
type Result struct {
	SenderID uint
	Score    float64
	Grade    string
	SOpen    float64
	SReply   float64
	SPhase   float64
	SSpam    float64
	Status   string
}

// Engine computes scores for every active sender once per tick.
type Engine struct {
	store   *store.Store
	cfg     Config
	metrics *metrics.Metrics
}

func New(s *store.Store, cfg Config, m *metrics.Metrics) *Engine {
	return &Engine{store: s, cfg: cfg, metrics: m}
}

func (e *Engine) Tick() []Result {
	senders, err := e.store.ActiveSenders()
	if err != nil {
		logrus.WithError(err).Error("scorer: failed to load active senders")
		return nil
	}

	needsReauth := 0
	results := make([]Result, 0, len(senders))
	for _, sender := range senders {
		if sender.NeedsReauth {
			needsReauth++
		}
		result, err := e.scoreOne(sender)
		if err != nil {
			logrus.WithError(err).WithField("sender_id", sender.ID).Warn("scorer: failed to compute score")
			continue
		}
		results = append(results, result)

		sender.Score = result.Score
		if err := e.store.SaveMailbox(&sender); err != nil {
			logrus.WithError(err).WithField("sender_id", sender.ID).Warn("scorer: failed to persist score")
		}
		e.metrics.SenderScore.WithLabelValues(sender.Email).Set(result.Score)
		logrus.WithFields(logrus.Fields{
			"sender_id": sender.ID, "sender": sender.Email, "score": result.Score, "grade": result.Grade,
		}).Info(result.Status)
	}
	e.metrics.NeedsReauthTotal.Set(float64(needsReauth))
	return results
}

func (e *Engine) scoreOne(sender models.Mailbox) (Result, error) {
	since := time.Now().Add(-e.cfg.Window)

	messages, err := e.store.MessagesSince(sender.ID, since)
	if err != nil {
		return Result{}, fmt.Errorf("messages since: %w", err)
	}
	spamEvents, err := e.store.SpamEventsSince(sender.ID, since)
	if err != nil {
		return Result{}, fmt.Errorf("spam events since: %w", err)
	}

	sent := len(messages)
	var opened, replied int
	for _, m := range messages {
		if m.OpenedAt != nil {
			opened++
		}
		if m.RepliedAt != nil {
			replied++
		}
	}

	var recovered int
	for _, ev := range spamEvents {
		if ev.Status == models.SpamRecovered {
			recovered++
		}
	}
	spamDetectedCount := len(spamEvents)

	openRate := safeDiv(float64(opened), float64(sent))
	replyRate := safeDiv(float64(replied), float64(sent))
	spamRate := safeDiv(float64(spamDetectedCount), float64(sent))
	recoveryRate := safeDiv(float64(recovered), float64(spamDetectedCount))

	phaseActual := averageSentPerBusinessDay(messages, 7)
	phaseNum, phaseTarget := phase.For(sender.WarmupDay, sender.Target)

	sOpen := scoreOpen(openRate)
	sReply := scoreReply(replyRate)
	sPhase := scorePhase(phaseNum, phaseActual, float64(phaseTarget))
	sSpam := scoreSpam(spamRate, recoveryRate, spamDetectedCount)

	raw := 0.40*sOpen + 0.30*sReply + 0.20*sPhase + 0.10*sSpam
	score := math.Round(clamp(raw, 0, 100)*10) / 10
	grade := gradeFor(score)

	status := fmt.Sprintf(
		"sender=%s score=%.1f grade=%s open_rate=%.2f reply_rate=%.2f spam_rate=%.2f phase=%d",
		sender.Email, score, grade, openRate, replyRate, spamRate, phaseNum,
	)

	return Result{
		SenderID: sender.ID, Score: score, Grade: grade,
		SOpen: sOpen, SReply: sReply, SPhase: sPhase, SSpam: sSpam, Status: status,
	}, nil
}

func scoreOpen(rate float64) float64 {
	switch {
	case rate >= 0.6:
		return 100
	case rate >= 0.4:
		return 80
	case rate >= 0.2:
		return 60
	default:
		return (rate / 0.2) * 60
	}
}

func scoreReply(rate float64) float64 {
	switch {
	case rate >= 0.25:
		return 100
	case rate >= 0.15:
		return 85
	case rate >= 0.05:
		return 70
	default:
		return (rate / 0.05) * 70
	}
}

var phaseBase = map[int]float64{1: 50, 2: 65, 3: 80, 4: 90, 5: 100}

func scorePhase(phaseNum int, actual, target float64) float64 {
	base := phaseBase[phaseNum]
	switch {
	case target > 0 && actual >= 0.9*target:
		base += 10
	case target > 0 && actual < 0.5*target:
		base -= 15
	}
	return clamp(base, 0, 100)
}

func scoreSpam(spamRate, recoveryRate float64, spamDetectedCount int) float64 {
	var base float64
	switch {
	case spamRate <= 0.02:
		base = 100
	case spamRate <= 0.05:
		base = 85
	case spamRate <= 0.10:
		base = 60
	default:
		base = math.Max(0, 100-spamRate*100*8)
	}
	if spamDetectedCount > 0 {
		if recoveryRate >= 0.8 {
			base += 10
		} else if recoveryRate < 0.5 {
			base -= 10
		}
	}
	return clamp(base, 0, 100)
}

func gradeFor(score float64) string {
	switch {
	case score >= 90:
		return "A+"
	case score >= 80:
		return "A"
	case score >= 70:
		return "B"
	case score >= 60:
		return "C"
	case score >= 50:
		return "D"
	default:
		return "F"
	}
}

func safeDiv(num, denom float64) float64 {
	if denom == 0 {
		return 0
	}
	return num / denom
}

func clamp(v, min, max float64) float64 {
	if v < min {
		return min
	}
	if v > max {
		return max
	}
	return v
}

// averageSentPerBusinessDay buckets messages by local calendar date and
// averages the send count over the most recent `days` distinct business
// days seen, per "avg(sent per last 7 business days)" from spec.md §4.10.
func averageSentPerBusinessDay(messages []models.Message, days int) float64 {
	counts := make(map[string]int)
	for _, m := range messages {
		wd := m.SentAt.Weekday()
		if wd == time.Saturday || wd == time.Sunday {
			continue
		}
		key := m.SentAt.Format("2006-01-02")
		counts[key]++
	}
	if len(counts) == 0 {
		return 0
	}
	keys := make([]string, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	sort.Sort(sort.Reverse(sort.StringSlice(keys)))

	n := len(keys)
	if n > days {
		n = days
	}
	total := 0
	for _, k := range keys[:n] {
		total += counts[k]
	}
	return float64(total) / float64(n)
}
