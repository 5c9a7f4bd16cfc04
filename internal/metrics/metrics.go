// Package metrics holds the Prometheus instruments every periodic
// component reports through, following the teacher's one-struct-per-process
// pattern.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the engine process.
type Metrics struct {
	DispatchTicks    prometheus.Counter
	MessagesSent     prometheus.Counter
	MessagesFailed   prometheus.Counter
	DispatchDuration prometheus.Histogram

	EngagementOpens   prometheus.Counter
	EngagementStars   prometheus.Counter
	EngagementReplies prometheus.Counter

	RepliesMatched prometheus.Counter

	SpamDetected  prometheus.Counter
	SpamRecovered prometheus.Counter
	SpamFailed    prometheus.Counter

	DayAdvances      prometheus.Counter
	PhaseTransitions prometheus.Counter

	ActiveSenders    prometheus.Gauge
	NeedsReauthTotal prometheus.Gauge
	SenderScore      *prometheus.GaugeVec

	PlanEntriesPurged prometheus.Counter
}

func New() *Metrics {
	return &Metrics{
		DispatchTicks: promauto.NewCounter(prometheus.CounterOpts{
			Name: "warmup_dispatch_ticks_total",
			Help: "Total number of dispatcher ticks run",
		}),
		MessagesSent: promauto.NewCounter(prometheus.CounterOpts{
			Name: "warmup_messages_sent_total",
			Help: "Total number of warmup messages successfully sent",
		}),
		MessagesFailed: promauto.NewCounter(prometheus.CounterOpts{
			Name: "warmup_messages_failed_total",
			Help: "Total number of send attempts that failed",
		}),
		DispatchDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "warmup_dispatch_tick_duration_seconds",
			Help:    "Time spent processing one dispatcher tick",
			Buckets: prometheus.DefBuckets,
		}),
		EngagementOpens: promauto.NewCounter(prometheus.CounterOpts{
			Name: "warmup_engagement_opens_total",
			Help: "Total number of simulated message opens",
		}),
		EngagementStars: promauto.NewCounter(prometheus.CounterOpts{
			Name: "warmup_engagement_stars_total",
			Help: "Total number of simulated message stars",
		}),
		EngagementReplies: promauto.NewCounter(prometheus.CounterOpts{
			Name: "warmup_engagement_replies_total",
			Help: "Total number of simulated replies sent",
		}),
		RepliesMatched: promauto.NewCounter(prometheus.CounterOpts{
			Name: "warmup_replies_matched_total",
			Help: "Total number of inbound replies matched to outbound messages",
		}),
		SpamDetected: promauto.NewCounter(prometheus.CounterOpts{
			Name: "warmup_spam_detected_total",
			Help: "Total number of warmup messages found in a spam folder",
		}),
		SpamRecovered: promauto.NewCounter(prometheus.CounterOpts{
			Name: "warmup_spam_recovered_total",
			Help: "Total number of spam placements successfully recovered",
		}),
		SpamFailed: promauto.NewCounter(prometheus.CounterOpts{
			Name: "warmup_spam_recovery_failed_total",
			Help: "Total number of spam recovery attempts that exhausted retries",
		}),
		DayAdvances: promauto.NewCounter(prometheus.CounterOpts{
			Name: "warmup_day_advances_total",
			Help: "Total number of sender warmup_day increments",
		}),
		PhaseTransitions: promauto.NewCounter(prometheus.CounterOpts{
			Name: "warmup_phase_transitions_total",
			Help: "Total number of senders crossing into a new warmup phase",
		}),
		ActiveSenders: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "warmup_active_senders",
			Help: "Number of currently active sender mailboxes",
		}),
		NeedsReauthTotal: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "warmup_needs_reauth_total",
			Help: "Number of sender mailboxes currently paused for reauth",
		}),
		SenderScore: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Name: "warmup_sender_score",
			Help: "Current reputation score per sender mailbox",
		}, []string{"sender_email"}),
		PlanEntriesPurged: promauto.NewCounter(prometheus.CounterOpts{
			Name: "warmup_plan_entries_purged_total",
			Help: "Total number of plan entries removed by the retention sweep",
		}),
	}
}
