// Package models holds the gorm-mapped entities from spec.md §3: Mailbox,
// PlanEntry, Message and SpamEvent.
package models

import (
	"encoding/json"
	"time"
)

// Role distinguishes warmed senders from engaging recipients.
type Role string

const (
	RoleSender    Role = "SENDER"
	RoleRecipient Role = "RECIPIENT"
)

// Provider names the mail backend a Mailbox's credentials belong to.
type Provider string

const (
	ProviderGmail Provider = "gmail"
	ProviderIMAP  Provider = "imap"
)

// PlanStatus is a PlanEntry's lifecycle state; transitions are one-way
// PENDING -> {SENT|FAILED|SKIPPED} per spec.md §3.
type PlanStatus string

const (
	PlanPending PlanStatus = "PENDING"
	PlanSent    PlanStatus = "SENT"
	PlanFailed  PlanStatus = "FAILED"
	PlanSkipped PlanStatus = "SKIPPED"
)

// Band mirrors calendar.Band as a storable string to keep this package free
// of a dependency on the calendar package's concrete type.
type Band string

const (
	BandPeak   Band = "PEAK"
	BandNormal Band = "NORMAL"
	BandLow    Band = "LOW"
)

// SpamStatus is a SpamEvent's terminal/non-terminal lifecycle state.
type SpamStatus string

const (
	SpamDetected  SpamStatus = "DETECTED"
	SpamRecovered SpamStatus = "RECOVERED"
	SpamFailed    SpamStatus = "FAILED"
)

// Credentials is the typed OAuth2-style token bundle spec.md §9 calls for —
// a parse/serialize boundary at the persistence edge rather than a free-form
// JSON blob threaded through the engine. No component passes it to a log
// call.
type Credentials struct {
	Access       string    `json:"access"`
	Refresh      string    `json:"refresh"`
	Expiry       time.Time `json:"expiry"`
	ClientID     string    `json:"client_id"`
	ClientSecret string    `json:"client_secret"`
	Scopes       []string  `json:"scopes"`
}

// Expired reports whether the access token has already lapsed as of now.
func (c Credentials) Expired(now time.Time) bool {
	return !c.Expiry.IsZero() && now.After(c.Expiry)
}

// Mailbox is an email account the engine controls, either a warmed SENDER
// or an engaging RECIPIENT.
type Mailbox struct {
	ID       uint     `gorm:"primaryKey;autoIncrement"`
	Email    string   `gorm:"type:varchar(255);not null;uniqueIndex"`
	Provider Provider `gorm:"type:varchar(20);not null"`
	Role     Role     `gorm:"type:varchar(20);not null;index"`

	CredentialsJSON string `gorm:"type:text;not null" json:"-"`

	Active bool   `gorm:"default:true;index"`
	TZ     string `gorm:"type:varchar(64);not null"`

	// Warmup state, meaningful only when Role == RoleSender.
	Target          int     `gorm:"default:0"`
	WarmupDay       int     `gorm:"default:0"`
	DailyLimit      int     `gorm:"default:0"`
	OpenRateTarget  float64 `gorm:"default:0"`
	ReplyRateTarget float64 `gorm:"default:0"`
	Score           float64 `gorm:"default:0"`

	NeedsReauth     bool       `gorm:"default:false;index"`
	LastAdvanceDate *time.Time `gorm:"type:date"`

	CreatedAt time.Time
	UpdatedAt time.Time
}

func (Mailbox) TableName() string { return "mailboxes" }

// Credentials unmarshals the stored token bundle. It is the only place the
// raw JSON blob is touched outside the gorm column itself.
func (m *Mailbox) Credentials() (Credentials, error) {
	var c Credentials
	if m.CredentialsJSON == "" {
		return c, nil
	}
	err := json.Unmarshal([]byte(m.CredentialsJSON), &c)
	return c, err
}

// SetCredentials serializes and stores a new token bundle, e.g. after a
// refresh. Callers are responsible for persisting the Mailbox afterward.
func (m *Mailbox) SetCredentials(c Credentials) error {
	b, err := json.Marshal(c)
	if err != nil {
		return err
	}
	m.CredentialsJSON = string(b)
	return nil
}

// PlanEntry is one intended send, produced by the Schedule Planner (C3) and
// consumed by the Dispatcher (C5).
type PlanEntry struct {
	ID         uint `gorm:"primaryKey;autoIncrement"`
	SenderID   uint `gorm:"not null;index:idx_plan_sender_date,priority:1"`
	LocalDate  time.Time `gorm:"type:date;not null;index:idx_plan_sender_date,priority:2"`
	FireAt     time.Time `gorm:"not null;index:idx_plan_status_fire,priority:2"`
	Band       Band       `gorm:"type:varchar(10);not null"`
	Status     PlanStatus `gorm:"type:varchar(10);not null;default:PENDING;index:idx_plan_status_fire,priority:1"`
	MessageID  *uint
	Attempts   int `gorm:"default:0"`
	LastError  string `gorm:"type:text"`
	CreatedAt  time.Time
	UpdatedAt  time.Time

	Sender  *Mailbox `gorm:"foreignKey:SenderID"`
	Message *Message `gorm:"foreignKey:MessageID"`
}

func (PlanEntry) TableName() string { return "plan_entries" }

// Message is a sent email, with engagement timestamps filled in later by
// the Engagement Simulator (C6) and Reply Matcher (C7).
type Message struct {
	ID                uint   `gorm:"primaryKey;autoIncrement"`
	TrackingID        string `gorm:"type:varchar(64);not null;uniqueIndex"`
	SenderID          uint   `gorm:"not null;index;uniqueIndex:idx_message_sender_provider_msg,priority:1"`
	RecipientAddress  string `gorm:"type:varchar(255);not null;index"`
	Subject           string `gorm:"type:varchar(500);not null"`
	Body              string `gorm:"type:text;not null"`
	ProviderMsgID     string `gorm:"type:varchar(255);not null;uniqueIndex:idx_message_sender_provider_msg,priority:2"`
	ProviderThreadID  string `gorm:"type:varchar(255);not null;index"`
	SentAt            time.Time  `gorm:"not null;index"`
	OpenedAt          *time.Time
	StarredAt         *time.Time
	RepliedAt         *time.Time

	// OpenDecidedAt/ReplyDecidedAt pin the open and reply draws to a single
	// roll each, so a message whose draw misses doesn't get re-rolled on
	// every subsequent engagement tick.
	OpenDecidedAt  *time.Time
	WillOpen       bool
	ReplyDecidedAt *time.Time
	WillReply      bool

	// Policy snapshot captured at send time (spec.md §3's Message
	// invariant: later engagement simulation uses the rates that existed
	// when the mail was produced, not whatever the sender's current
	// policy is).
	OpenRateTargetSnapshot  float64
	ReplyRateTargetSnapshot float64

	CreatedAt time.Time

	Sender *Mailbox `gorm:"foreignKey:SenderID"`
}

func (Message) TableName() string { return "messages" }

// SpamEvent is one detection of a warmup mail found in a recipient's spam
// folder, produced and resolved by Spam Recovery (C8).
type SpamEvent struct {
	ID           uint       `gorm:"primaryKey;autoIncrement"`
	TrackingID   string     `gorm:"type:varchar(64);not null;uniqueIndex"`
	MessageID    *uint      `gorm:"index"`
	RecipientID  uint       `gorm:"not null;index"`
	SenderID     uint       `gorm:"not null;index"`
	ProviderMsgID string    `gorm:"type:varchar(255);not null"`
	DetectedAt   time.Time  `gorm:"not null"`
	RecoveredAt  *time.Time
	Status       SpamStatus `gorm:"type:varchar(10);not null;default:DETECTED;index"`
	Attempts     int        `gorm:"default:0"`
	Error        string     `gorm:"type:text"`

	CreatedAt time.Time
	UpdatedAt time.Time

	Message   *Message `gorm:"foreignKey:MessageID"`
	Recipient *Mailbox `gorm:"foreignKey:RecipientID"`
	Sender    *Mailbox `gorm:"foreignKey:SenderID"`
}

func (SpamEvent) TableName() string { return "spam_events" }

// AllModels is the list gorm.AutoMigrate runs over at startup.
func AllModels() []interface{} {
	return []interface{}{
		&Mailbox{},
		&PlanEntry{},
		&Message{},
		&SpamEvent{},
	}
}
