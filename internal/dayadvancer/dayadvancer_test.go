package dayadvancer

import (
	"testing"
	"time"

	"fmt"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"warmup-engine/internal/metrics"
	"warmup-engine/internal/models"
	"warmup-engine/internal/store"
)

func newTestAdvancer(t *testing.T) (*Advancer, *store.Store) {
	prometheus.DefaultRegisterer = prometheus.NewRegistry()
	db, err := gorm.Open(sqlite.Open(fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(models.AllModels()...))
	s := store.New(db)
	return New(s, metrics.New()), s
}

func TestAdvanceOneIncrementsWarmupDay(t *testing.T) {
	a, s := newTestAdvancer(t)
	yesterday := time.Now().AddDate(0, 0, -1)
	sender := &models.Mailbox{Email: "s@example.com", Provider: models.ProviderGmail, Role: models.RoleSender, Active: true, TZ: "UTC", Target: 50, WarmupDay: 7, LastAdvanceDate: &yesterday}
	require.NoError(t, s.DB().Create(sender).Error)

	a.advanceOne(*sender)

	var reloaded models.Mailbox
	require.NoError(t, s.DB().First(&reloaded, sender.ID).Error)
	assert.Equal(t, 8, reloaded.WarmupDay)
	assert.NotNil(t, reloaded.LastAdvanceDate)
}

func TestAdvanceOneIsAtMostOncePerDay(t *testing.T) {
	a, s := newTestAdvancer(t)
	today := time.Now()
	sender := &models.Mailbox{Email: "s@example.com", Provider: models.ProviderGmail, Role: models.RoleSender, Active: true, TZ: "UTC", Target: 50, WarmupDay: 7, LastAdvanceDate: &today}
	require.NoError(t, s.DB().Create(sender).Error)

	a.advanceOne(*sender)

	var reloaded models.Mailbox
	require.NoError(t, s.DB().First(&reloaded, sender.ID).Error)
	assert.Equal(t, 7, reloaded.WarmupDay)
}
