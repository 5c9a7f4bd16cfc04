package store

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"warmup-engine/internal/models"
)

func newTestStore(t *testing.T) *Store {
	db, err := gorm.Open(sqlite.Open(fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(models.AllModels()...))
	return New(db)
}

func seedSender(t *testing.T, s *Store) uint {
	m := &models.Mailbox{
		Email:    "sender@example.com",
		Provider: models.ProviderGmail,
		Role:     models.RoleSender,
		Active:   true,
		TZ:       "UTC",
		Target:   50,
	}
	require.NoError(t, s.db.Create(m).Error)
	return m.ID
}

func TestUpsertPlanThenDuePending(t *testing.T) {
	s := newTestStore(t)
	senderID := seedSender(t, s)
	day := time.Date(2026, 1, 5, 0, 0, 0, 0, time.UTC)

	times := []time.Time{
		day.Add(9 * time.Hour),
		day.Add(10 * time.Hour),
	}
	bands := []models.Band{models.BandPeak, models.BandPeak}
	require.NoError(t, s.UpsertPlan(senderID, day, times, bands))

	count, err := s.PlanCountForDate(senderID, day)
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)

	now := day.Add(9*time.Hour + 30*time.Second)
	due, err := s.DuePending(s.db, []uint{senderID}, now, time.Minute, 2*time.Minute)
	require.NoError(t, err)
	require.Len(t, due, 1)
	assert.Equal(t, models.BandPeak, due[0].Band)
}

func TestUpsertPlanReplacesPendingOnly(t *testing.T) {
	s := newTestStore(t)
	senderID := seedSender(t, s)
	day := time.Date(2026, 1, 5, 0, 0, 0, 0, time.UTC)

	require.NoError(t, s.UpsertPlan(senderID, day, []time.Time{day.Add(9 * time.Hour)}, []models.Band{models.BandPeak}))
	require.NoError(t, s.UpsertPlan(senderID, day, []time.Time{day.Add(10 * time.Hour), day.Add(11 * time.Hour)}, []models.Band{models.BandPeak, models.BandNormal}))

	count, err := s.PlanCountForDate(senderID, day)
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)
}

func TestUpsertPlanRefusesOverSentDay(t *testing.T) {
	s := newTestStore(t)
	senderID := seedSender(t, s)
	day := time.Date(2026, 1, 5, 0, 0, 0, 0, time.UTC)

	require.NoError(t, s.UpsertPlan(senderID, day, []time.Time{day.Add(9 * time.Hour)}, []models.Band{models.BandPeak}))
	var entry models.PlanEntry
	require.NoError(t, s.db.Where("sender_id = ?", senderID).First(&entry).Error)
	require.NoError(t, s.WithTx(func(tx *gorm.DB) error {
		return MarkSent(tx, entry.ID, 0)
	}))

	err := s.UpsertPlan(senderID, day, []time.Time{day.Add(14 * time.Hour)}, []models.Band{models.BandNormal})
	assert.Error(t, err)
}

func TestMarkSentIsIdempotent(t *testing.T) {
	s := newTestStore(t)
	senderID := seedSender(t, s)
	day := time.Date(2026, 1, 5, 0, 0, 0, 0, time.UTC)
	require.NoError(t, s.UpsertPlan(senderID, day, []time.Time{day.Add(9 * time.Hour)}, []models.Band{models.BandPeak}))

	var entry models.PlanEntry
	require.NoError(t, s.db.Where("sender_id = ?", senderID).First(&entry).Error)

	require.NoError(t, s.WithTx(func(tx *gorm.DB) error {
		return MarkSent(tx, entry.ID, 0)
	}))

	// Second claim on the same entry must fail: it is no longer PENDING.
	err := s.WithTx(func(tx *gorm.DB) error {
		return MarkSent(tx, entry.ID, 0)
	})
	assert.Error(t, err)
}

func TestMarkOpenedIsOnceOnly(t *testing.T) {
	s := newTestStore(t)
	senderID := seedSender(t, s)
	msg := &models.Message{
		TrackingID:       "track-1",
		SenderID:         senderID,
		RecipientAddress: "recipient@example.com",
		Subject:          "hello",
		Body:             "hi",
		SentAt:           time.Now(),
	}
	require.NoError(t, s.db.Create(msg).Error)

	first := time.Date(2026, 1, 5, 10, 0, 0, 0, time.UTC)
	second := first.Add(time.Hour)
	require.NoError(t, s.MarkOpened(msg.ID, first))
	require.NoError(t, s.MarkOpened(msg.ID, second))

	var reloaded models.Message
	require.NoError(t, s.db.First(&reloaded, msg.ID).Error)
	require.NotNil(t, reloaded.OpenedAt)
	assert.True(t, reloaded.OpenedAt.Equal(first))
}

func TestPurgeRemovesOldEntriesOnly(t *testing.T) {
	s := newTestStore(t)
	senderID := seedSender(t, s)
	now := time.Date(2026, 1, 20, 0, 0, 0, 0, time.UTC)
	old := now.AddDate(0, 0, -10)
	recent := now.AddDate(0, 0, -1)

	require.NoError(t, s.UpsertPlan(senderID, old, []time.Time{old.Add(9 * time.Hour)}, []models.Band{models.BandPeak}))
	require.NoError(t, s.UpsertPlan(senderID, recent, []time.Time{recent.Add(9 * time.Hour)}, []models.Band{models.BandPeak}))

	removed, err := s.Purge(7*24*time.Hour, now)
	require.NoError(t, err)
	assert.Equal(t, int64(1), removed)

	count, err := s.PlanCountForDate(senderID, recent)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
}
