package dispatcher

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"warmup-engine/internal/calendar"
	"warmup-engine/internal/content"
	"warmup-engine/internal/mailclient"
	"warmup-engine/internal/metrics"
	"warmup-engine/internal/models"
	"warmup-engine/internal/planner"
	"warmup-engine/internal/store"
)

// dummyClient implements mailclient.Client but does nothing but succeed.
type dummyClient struct {
	sent int
}

func (d *dummyClient) Send(ctx context.Context, creds models.Credentials, from, to, subject, html string) (mailclient.SentMessage, error) {
	d.sent++
	return mailclient.SentMessage{ProviderMsgID: "msg-1", ProviderThreadID: "thread-1"}, nil
}
func (d *dummyClient) SendReply(ctx context.Context, creds models.Credentials, from, to, originalThreadID, originalMsgID, subject, html string) (mailclient.SentMessage, error) {
	return mailclient.SentMessage{}, nil
}
func (d *dummyClient) ListUnreadTo(ctx context.Context, creds models.Credentials, since time.Time) ([]mailclient.InboundMessage, error) {
	return nil, nil
}
func (d *dummyClient) MarkRead(ctx context.Context, creds models.Credentials, providerMsgID string) error {
	return nil
}
func (d *dummyClient) MarkImportant(ctx context.Context, creds models.Credentials, providerMsgID string) error {
	return nil
}
func (d *dummyClient) ListSpamFrom(ctx context.Context, creds models.Credentials, senderAddresses []string) ([]mailclient.InboundMessage, error) {
	return nil, nil
}
func (d *dummyClient) Unspam(ctx context.Context, creds models.Credentials, providerMsgID string) error {
	return nil
}
func (d *dummyClient) Refresh(ctx context.Context, creds models.Credentials) (models.Credentials, error) {
	return creds, nil
}

func newTestDispatcher(t *testing.T, client mailclient.Client, clock calendar.Clock) (*Dispatcher, *store.Store) {
	prometheus.DefaultRegisterer = prometheus.NewRegistry()
	db, err := gorm.Open(sqlite.Open(fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(models.AllModels()...))
	s := store.New(db)

	registry := mailclient.NewRegistry()
	registry.Register(models.ProviderGmail, client)

	gen := content.NewTemplateGenerator(nil, nil, nil, content.Ratios{PureTemplate: 1.0})
	p := planner.New(planner.DefaultBandWeights(), calendar.DefaultBusinessHours())

	d := New(s, p, registry, gen, nil, clock, calendar.DefaultBusinessHours(), DefaultConfig(), metrics.New())
	return d, s
}

func TestTickSendsDuePlanEntry(t *testing.T) {
	mondayNoon := time.Date(2026, 1, 12, 10, 0, 0, 0, time.UTC)
	clock := calendar.FixedClock{At: mondayNoon}
	client := &dummyClient{}
	d, s := newTestDispatcher(t, client, clock)

	sender := &models.Mailbox{
		Email: "sender@example.com", Provider: models.ProviderGmail, Role: models.RoleSender,
		Active: true, TZ: "UTC", Target: 50, WarmupDay: 10, DailyLimit: 12,
		OpenRateTarget: 0.7, ReplyRateTarget: 0.3,
	}
	require.NoError(t, sender.SetCredentials(models.Credentials{Access: "tok", Expiry: mondayNoon.Add(time.Hour)}))
	require.NoError(t, s.DB().Create(sender).Error)

	recipient := &models.Mailbox{
		Email: "recipient@example.com", Provider: models.ProviderGmail, Role: models.RoleRecipient,
		Active: true, TZ: "UTC",
	}
	require.NoError(t, s.DB().Create(recipient).Error)

	require.NoError(t, s.UpsertPlan(sender.ID, mondayNoon, []time.Time{mondayNoon}, []models.Band{models.BandPeak}))

	d.Tick(context.Background())

	assert.Equal(t, 1, client.sent)
	var msgCount int64
	require.NoError(t, s.DB().Model(&models.Message{}).Count(&msgCount).Error)
	assert.Equal(t, int64(1), msgCount)

	var entry models.PlanEntry
	require.NoError(t, s.DB().First(&entry).Error)
	assert.Equal(t, models.PlanSent, entry.Status)
}

func TestTickSkipsOutsideBusinessHours(t *testing.T) {
	mondayNight := time.Date(2026, 1, 12, 22, 0, 0, 0, time.UTC)
	clock := calendar.FixedClock{At: mondayNight}
	client := &dummyClient{}
	d, s := newTestDispatcher(t, client, clock)

	sender := &models.Mailbox{
		Email: "sender@example.com", Provider: models.ProviderGmail, Role: models.RoleSender,
		Active: true, TZ: "UTC", Target: 50, WarmupDay: 10, DailyLimit: 12,
	}
	require.NoError(t, sender.SetCredentials(models.Credentials{Access: "tok"}))
	require.NoError(t, s.DB().Create(sender).Error)

	require.NoError(t, s.UpsertPlan(sender.ID, mondayNight, []time.Time{mondayNight}, []models.Band{models.BandPeak}))

	d.Tick(context.Background())

	assert.Equal(t, 0, client.sent)
}
