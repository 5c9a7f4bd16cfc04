package engagement

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

	"warmup-engine/internal/mailclient"
	"warmup-engine/internal/metrics"
	"warmup-engine/internal/models"
	"warmup-engine/internal/store"
)

type fakeClient struct {
	markedRead  []string
	markedImportant []string
	replies     int
}

func (f *fakeClient) Send(ctx context.Context, creds models.Credentials, from, to, subject, html string) (mailclient.SentMessage, error) {
	return mailclient.SentMessage{}, nil
}
func (f *fakeClient) SendReply(ctx context.Context, creds models.Credentials, from, to, originalThreadID, originalMsgID, subject, html string) (mailclient.SentMessage, error) {
	f.replies++
	return mailclient.SentMessage{ProviderMsgID: "reply-1"}, nil
}
func (f *fakeClient) ListUnreadTo(ctx context.Context, creds models.Credentials, since time.Time) ([]mailclient.InboundMessage, error) {
	return nil, nil
}
func (f *fakeClient) MarkRead(ctx context.Context, creds models.Credentials, providerMsgID string) error {
	f.markedRead = append(f.markedRead, providerMsgID)
	return nil
}
func (f *fakeClient) MarkImportant(ctx context.Context, creds models.Credentials, providerMsgID string) error {
	f.markedImportant = append(f.markedImportant, providerMsgID)
	return nil
}
func (f *fakeClient) ListSpamFrom(ctx context.Context, creds models.Credentials, senderAddresses []string) ([]mailclient.InboundMessage, error) {
	return nil, nil
}
func (f *fakeClient) Unspam(ctx context.Context, creds models.Credentials, providerMsgID string) error {
	return nil
}
func (f *fakeClient) Refresh(ctx context.Context, creds models.Credentials) (models.Credentials, error) {
	return creds, nil
}

func newTestSimulator(t *testing.T, client mailclient.Client) (*Simulator, *store.Store) {
	prometheus.DefaultRegisterer = prometheus.NewRegistry()
	db, err := gorm.Open(sqlite.Open(fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(models.AllModels()...))
	s := store.New(db)

	registry := mailclient.NewRegistry()
	registry.Register(models.ProviderGmail, client)

	sim := New(s, registry, DefaultConfig(), metrics.New())
	return sim, s
}

func TestMaybeOpenMarksReadWhenDelayElapsedAndRollDraws(t *testing.T) {
	client := &fakeClient{}
	sim, s := newTestSimulator(t, client)

	recipient := &models.Mailbox{Email: "recipient@example.com", Provider: models.ProviderGmail, Role: models.RoleRecipient, Active: true}
	require.NoError(t, recipient.SetCredentials(models.Credentials{Access: "tok"}))
	require.NoError(t, s.DB().Create(recipient).Error)

	msg := &models.Message{
		TrackingID: "t1", SenderID: 1, RecipientAddress: recipient.Email,
		Subject: "hi", Body: "hi", ProviderMsgID: "pmsg-1",
		SentAt: time.Now().Add(-time.Hour), OpenRateTargetSnapshot: 1.0,
	}
	require.NoError(t, s.DB().Create(msg).Error)

	sim.maybeOpen(context.Background(), *recipient, *msg)

	var reloaded models.Message
	require.NoError(t, s.DB().First(&reloaded, msg.ID).Error)
	assert.NotNil(t, reloaded.OpenedAt)
	assert.Contains(t, client.markedRead, "pmsg-1")
}

func TestMaybeOpenSkipsWhenRollMisses(t *testing.T) {
	client := &fakeClient{}
	sim, s := newTestSimulator(t, client)

	recipient := &models.Mailbox{Email: "recipient@example.com", Provider: models.ProviderGmail, Role: models.RoleRecipient, Active: true}
	require.NoError(t, recipient.SetCredentials(models.Credentials{Access: "tok"}))
	require.NoError(t, s.DB().Create(recipient).Error)

	msg := &models.Message{
		TrackingID: "t2", SenderID: 1, RecipientAddress: recipient.Email,
		Subject: "hi", Body: "hi", ProviderMsgID: "pmsg-2",
		SentAt: time.Now().Add(-time.Hour), OpenRateTargetSnapshot: 0.0,
	}
	require.NoError(t, s.DB().Create(msg).Error)

	sim.maybeOpen(context.Background(), *recipient, *msg)

	var reloaded models.Message
	require.NoError(t, s.DB().First(&reloaded, msg.ID).Error)
	assert.Nil(t, reloaded.OpenedAt)
}
