package orchestrator

import (
	"fmt"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"warmup-engine/internal/calendar"
	"warmup-engine/internal/config"
	"warmup-engine/internal/content"
	"warmup-engine/internal/dayadvancer"
	"warmup-engine/internal/dispatcher"
	"warmup-engine/internal/engagement"
	"warmup-engine/internal/mailclient"
	"warmup-engine/internal/metrics"
	"warmup-engine/internal/models"
	"warmup-engine/internal/planner"
	"warmup-engine/internal/ratelimit"
	"warmup-engine/internal/replymatcher"
	"warmup-engine/internal/scorer"
	"warmup-engine/internal/spamrecovery"
	"warmup-engine/internal/store"
)

func newTestOrchestrator(t *testing.T) *Orchestrator {
	prometheus.DefaultRegisterer = prometheus.NewRegistry()
	db, err := gorm.Open(sqlite.Open(fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(models.AllModels()...))
	s := store.New(db)
	m := metrics.New()

	registry := mailclient.NewRegistry()
	gen := content.NewTemplateGenerator(content.DefaultTemplates(), content.DefaultPlaceholders(), nil, content.Ratios{PureTemplate: 1})
	hours := calendar.DefaultBusinessHours()
	p := planner.New(planner.DefaultBandWeights(), hours)
	limiter := ratelimit.New(0.05, 1)

	dispatch := dispatcher.New(s, p, registry, gen, limiter, calendar.RealClock{}, hours, dispatcher.DefaultConfig(), m)
	engage := engagement.New(s, registry, engagement.DefaultConfig(), m)
	replies := replymatcher.New(s, registry, m)
	spam := spamrecovery.New(s, registry, m)
	advancer := dayadvancer.New(s, m)
	score := scorer.New(s, scorer.DefaultConfig(), m)

	sched := config.ScheduleConfig{
		DispatchInterval: time.Minute, EngagementInterval: time.Minute, ReplyPollInterval: time.Minute,
		SpamRecoveryInterval: time.Hour, ScoreInterval: time.Hour, DayAdvanceInterval: time.Hour, CleanupInterval: 24 * time.Hour,
	}
	plan := config.PlanConfig{Retention: 7 * 24 * time.Hour}

	return New(s, sched, plan, Components{
		Dispatch: dispatch, Engagement: engage, Replies: replies,
		Spam: spam, Advancer: advancer, Score: score,
	})
}

func TestStartRegistersAllSevenJobs(t *testing.T) {
	o := newTestOrchestrator(t)
	require.NoError(t, o.Start())
	defer o.Stop()

	assert.True(t, o.IsRunning())
	assert.Len(t, o.Entries(), 7)
}

func TestStartTwiceErrors(t *testing.T) {
	o := newTestOrchestrator(t)
	require.NoError(t, o.Start())
	defer o.Stop()

	assert.Error(t, o.Start())
}

func TestStopMarksNotRunning(t *testing.T) {
	o := newTestOrchestrator(t)
	require.NoError(t, o.Start())
	require.NoError(t, o.Stop())

	assert.False(t, o.IsRunning())
}
