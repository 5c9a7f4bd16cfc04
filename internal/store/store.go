// Package store implements the Persistence Layer (C11) and the Schedule
// Store (C4) operations on top of it: a thin gorm repository with
// row-level serialization for the concurrency guarantees spec.md §4.4 and
// §5 require.
package store

import (
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"warmup-engine/internal/models"
)

// Store wraps a *gorm.DB with the domain queries the engine's components
// need. None of it holds in-memory state — every call round-trips to the
// database, matching spec.md §9's "no ambient singletons" rule.
type Store struct {
	db *gorm.DB
}

func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

// DB exposes the underlying connection for callers (e.g. health checks)
// that need a raw ping.
func (s *Store) DB() *gorm.DB { return s.db }

// --- Mailbox ---

func (s *Store) ActiveSenders() ([]models.Mailbox, error) {
	var mailboxes []models.Mailbox
	err := s.db.Where("role = ? AND active = ?", models.RoleSender, true).Find(&mailboxes).Error
	if err != nil {
		return nil, fmt.Errorf("active senders: %w", err)
	}
	return mailboxes, nil
}

func (s *Store) ActiveRecipients() ([]models.Mailbox, error) {
	var mailboxes []models.Mailbox
	err := s.db.Where("role = ? AND active = ?", models.RoleRecipient, true).Find(&mailboxes).Error
	if err != nil {
		return nil, fmt.Errorf("active recipients: %w", err)
	}
	return mailboxes, nil
}

func (s *Store) GetMailbox(id uint) (*models.Mailbox, error) {
	var m models.Mailbox
	if err := s.db.First(&m, id).Error; err != nil {
		return nil, fmt.Errorf("get mailbox %d: %w", id, err)
	}
	return &m, nil
}

// SaveMailbox persists field updates (credentials refresh, score, warmup
// state) — a full Save, not a partial Update, since callers always load the
// row first via GetMailbox/ActiveSenders.
func (s *Store) SaveMailbox(m *models.Mailbox) error {
	if err := s.db.Save(m).Error; err != nil {
		return fmt.Errorf("save mailbox %d: %w", m.ID, err)
	}
	return nil
}

// MarkNeedsReauth pauses a mailbox and flags it for the admin/analytics
// surface and the Score Engine, per spec.md §4.5/§7's NeedsReauth policy.
func (s *Store) MarkNeedsReauth(senderID uint) error {
	err := s.db.Model(&models.Mailbox{}).Where("id = ?", senderID).
		Updates(map[string]interface{}{"needs_reauth": true, "active": false}).Error
	if err != nil {
		return fmt.Errorf("mark needs reauth %d: %w", senderID, err)
	}
	return nil
}

// --- PlanEntry / Schedule Store (C4) ---

// HasPendingOrSentPlan reports whether (sender, localDate) already has a
// plan, and whether any entry in it has reached SENT. UpsertPlan does not
// call it; it runs its own SENT count inside its transaction.
func (s *Store) HasPendingOrSentPlan(senderID uint, localDate time.Time) (exists bool, anySent bool, err error) {
	var count, sentCount int64
	d := dateOnly(localDate)
	if err = s.db.Model(&models.PlanEntry{}).
		Where("sender_id = ? AND local_date = ? AND status IN ?", senderID, d, []models.PlanStatus{models.PlanPending, models.PlanSent}).
		Count(&count).Error; err != nil {
		return false, false, fmt.Errorf("count plan: %w", err)
	}
	if err = s.db.Model(&models.PlanEntry{}).
		Where("sender_id = ? AND local_date = ? AND status = ?", senderID, d, models.PlanSent).
		Count(&sentCount).Error; err != nil {
		return false, false, fmt.Errorf("count sent plan: %w", err)
	}
	return count > 0, sentCount > 0, nil
}

// UpsertPlan replaces any existing PENDING plan for (sender, localDate) with
// the given timestamps/bands. It refuses to touch a day that already has a
// SENT entry, returning an error the caller should treat as InvalidPlan.
func (s *Store) UpsertPlan(senderID uint, localDate time.Time, firesAt []time.Time, bands []models.Band) error {
	if len(firesAt) != len(bands) {
		return fmt.Errorf("upsert plan: mismatched timestamps/bands lengths")
	}
	d := dateOnly(localDate)

	return s.db.Transaction(func(tx *gorm.DB) error {
		var sentCount int64
		if err := tx.Model(&models.PlanEntry{}).
			Where("sender_id = ? AND local_date = ? AND status = ?", senderID, d, models.PlanSent).
			Count(&sentCount).Error; err != nil {
			return fmt.Errorf("count sent plan: %w", err)
		}
		if sentCount > 0 {
			return fmt.Errorf("upsert plan: plan for %s already has sent entries", d.Format("2006-01-02"))
		}

		if err := tx.Where("sender_id = ? AND local_date = ? AND status = ?", senderID, d, models.PlanPending).
			Delete(&models.PlanEntry{}).Error; err != nil {
			return fmt.Errorf("clear pending plan: %w", err)
		}

		entries := make([]models.PlanEntry, len(firesAt))
		for i, t := range firesAt {
			entries[i] = models.PlanEntry{
				SenderID:  senderID,
				LocalDate: d,
				FireAt:    t,
				Band:      bands[i],
				Status:    models.PlanPending,
			}
		}
		if len(entries) == 0 {
			return nil
		}
		if err := tx.Create(&entries).Error; err != nil {
			return fmt.Errorf("create plan entries: %w", err)
		}
		return nil
	})
}

// DuePending returns PENDING entries whose fire_at falls in
// (now-grace, now+window], locked row-by-row with SELECT ... FOR UPDATE
// SKIP LOCKED so two dispatcher workers never claim the same entry — the
// serialization spec.md §4.4/§5 requires.
func (s *Store) DuePending(tx *gorm.DB, senderIDs []uint, now time.Time, grace, window time.Duration) ([]models.PlanEntry, error) {
	var entries []models.PlanEntry
	err := tx.Clauses(clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"}).
		Where("sender_id IN ? AND status = ? AND fire_at > ? AND fire_at <= ?",
			senderIDs, models.PlanPending, now.Add(-grace), now.Add(window)).
		Order("fire_at ASC").
		Find(&entries).Error
	if err != nil {
		return nil, fmt.Errorf("due pending: %w", err)
	}
	return entries, nil
}

// WithTx runs fn inside a transaction, the unit the Dispatcher and friends
// use to claim-and-mark a PlanEntry atomically.
func (s *Store) WithTx(fn func(tx *gorm.DB) error) error {
	return s.db.Transaction(fn)
}

// ErrAlreadyClaimed is returned by MarkSent when the conditional UPDATE
// affected zero rows — another worker already transitioned the entry out of
// PENDING. Callers should treat this as errs.KindDuplicateDispatch and skip
// silently, per spec.md §7.
var ErrAlreadyClaimed = errors.New("store: plan entry already claimed")

// MarkSent transitions a PlanEntry PENDING -> SENT, attaching the Message
// it produced.
func MarkSent(tx *gorm.DB, entryID uint, messageID uint) error {
	res := tx.Model(&models.PlanEntry{}).
		Where("id = ? AND status = ?", entryID, models.PlanPending).
		Updates(map[string]interface{}{"status": models.PlanSent, "message_id": messageID})
	if res.Error != nil {
		return fmt.Errorf("mark sent %d: %w", entryID, res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("mark sent %d: %w", entryID, ErrAlreadyClaimed)
	}
	return nil
}

// MarkFailed transitions a PlanEntry PENDING -> FAILED and records the
// error, incrementing attempts.
func MarkFailed(tx *gorm.DB, entryID uint, errMsg string) error {
	res := tx.Model(&models.PlanEntry{}).
		Where("id = ? AND status = ?", entryID, models.PlanPending).
		Updates(map[string]interface{}{
			"status":     models.PlanFailed,
			"last_error": errMsg,
			"attempts":   gorm.Expr("attempts + 1"),
		})
	if res.Error != nil {
		return fmt.Errorf("mark failed %d: %w", entryID, res.Error)
	}
	return nil
}

// MarkSkipped transitions a PlanEntry PENDING -> SKIPPED, used for
// malformed entries (spec.md §5 Poisoning) and for entries orphaned by a
// NeedsReauth pause.
func (s *Store) MarkSkipped(entryID uint, reason string) error {
	res := s.db.Model(&models.PlanEntry{}).
		Where("id = ? AND status = ?", entryID, models.PlanPending).
		Updates(map[string]interface{}{"status": models.PlanSkipped, "last_error": reason})
	if res.Error != nil {
		return fmt.Errorf("mark skipped %d: %w", entryID, res.Error)
	}
	return nil
}

// SkipPendingFrom marks every PENDING entry for senderID at or after `from`
// as SKIPPED — used when a mailbox transitions to needs-reauth mid-day.
func (s *Store) SkipPendingFrom(senderID uint, from time.Time, reason string) error {
	err := s.db.Model(&models.PlanEntry{}).
		Where("sender_id = ? AND status = ? AND fire_at >= ?", senderID, models.PlanPending, from).
		Updates(map[string]interface{}{"status": models.PlanSkipped, "last_error": reason}).Error
	if err != nil {
		return fmt.Errorf("skip pending from %d: %w", senderID, err)
	}
	return nil
}

// PlanCountForDate counts PENDING+SENT entries for (sender, date) — the
// invariant spec.md §8 property 1 checks.
func (s *Store) PlanCountForDate(senderID uint, localDate time.Time) (int64, error) {
	var count int64
	err := s.db.Model(&models.PlanEntry{}).
		Where("sender_id = ? AND local_date = ? AND status IN ?", senderID, dateOnly(localDate), []models.PlanStatus{models.PlanPending, models.PlanSent}).
		Count(&count).Error
	if err != nil {
		return 0, fmt.Errorf("plan count: %w", err)
	}
	return count, nil
}

// Purge deletes PlanEntries older than the retention window, per spec.md
// §4.4's `purge(older_than = 7d)`.
func (s *Store) Purge(olderThan time.Duration, now time.Time) (int64, error) {
	res := s.db.Where("local_date < ?", now.Add(-olderThan)).Delete(&models.PlanEntry{})
	if res.Error != nil {
		return 0, fmt.Errorf("purge plan entries: %w", res.Error)
	}
	return res.RowsAffected, nil
}

// --- Message ---

func (s *Store) CreateMessage(tx *gorm.DB, m *models.Message) error {
	if err := tx.Create(m).Error; err != nil {
		return fmt.Errorf("create message: %w", err)
	}
	return nil
}

// UnengagedMessagesFor returns Messages addressed to recipientAddr that were
// sent before the cutoff and have not yet been opened.
func (s *Store) UnengagedMessagesFor(recipientAddr string, sentBefore time.Time) ([]models.Message, error) {
	var msgs []models.Message
	err := s.db.Where("recipient_address = ? AND sent_at < ? AND opened_at IS NULL", recipientAddr, sentBefore).
		Find(&msgs).Error
	if err != nil {
		return nil, fmt.Errorf("unengaged messages: %w", err)
	}
	return msgs, nil
}

// OpenedNotRepliedFor returns Messages that have been opened but not yet
// replied to, for a given recipient — the Engagement Simulator's reply stage
// input.
func (s *Store) OpenedNotRepliedFor(recipientAddr string) ([]models.Message, error) {
	var msgs []models.Message
	err := s.db.Where("recipient_address = ? AND opened_at IS NOT NULL AND replied_at IS NULL", recipientAddr).
		Find(&msgs).Error
	if err != nil {
		return nil, fmt.Errorf("opened not replied: %w", err)
	}
	return msgs, nil
}

// MarkOpened stamps opened_at exactly once; a second call is a no-op,
// satisfying spec.md §4.6's "engagement draws happen exactly once" invariant.
func (s *Store) MarkOpened(messageID uint, at time.Time) error {
	res := s.db.Model(&models.Message{}).Where("id = ? AND opened_at IS NULL", messageID).
		Update("opened_at", at)
	if res.Error != nil {
		return fmt.Errorf("mark opened %d: %w", messageID, res.Error)
	}
	return nil
}

// RecordOpenDecision persists the open/no-open draw for a message exactly
// once; a second call (open_decided_at already set) is a no-op, satisfying
// spec.md §4.6's "engagement draws happen exactly once" invariant.
func (s *Store) RecordOpenDecision(messageID uint, willOpen bool, at time.Time) error {
	res := s.db.Model(&models.Message{}).Where("id = ? AND open_decided_at IS NULL", messageID).
		Updates(map[string]interface{}{"open_decided_at": at, "will_open": willOpen})
	if res.Error != nil {
		return fmt.Errorf("record open decision %d: %w", messageID, res.Error)
	}
	return nil
}

// RecordReplyDecision persists the reply/no-reply draw for a message
// exactly once, the reply-side counterpart to RecordOpenDecision.
func (s *Store) RecordReplyDecision(messageID uint, willReply bool, at time.Time) error {
	res := s.db.Model(&models.Message{}).Where("id = ? AND reply_decided_at IS NULL", messageID).
		Updates(map[string]interface{}{"reply_decided_at": at, "will_reply": willReply})
	if res.Error != nil {
		return fmt.Errorf("record reply decision %d: %w", messageID, res.Error)
	}
	return nil
}

func (s *Store) MarkStarred(messageID uint, at time.Time) error {
	res := s.db.Model(&models.Message{}).Where("id = ? AND starred_at IS NULL", messageID).
		Update("starred_at", at)
	if res.Error != nil {
		return fmt.Errorf("mark starred %d: %w", messageID, res.Error)
	}
	return nil
}

func (s *Store) MarkReplied(messageID uint, at time.Time) error {
	res := s.db.Model(&models.Message{}).Where("id = ? AND replied_at IS NULL", messageID).
		Update("replied_at", at)
	if res.Error != nil {
		return fmt.Errorf("mark replied %d: %w", messageID, res.Error)
	}
	return nil
}

// UnrepliedSentBy returns outbound Messages from senderID that have not yet
// been matched to an inbound reply — the Reply Matcher's candidate set.
func (s *Store) UnrepliedSentBy(senderID uint) ([]models.Message, error) {
	var msgs []models.Message
	err := s.db.Where("sender_id = ? AND replied_at IS NULL", senderID).Find(&msgs).Error
	if err != nil {
		return nil, fmt.Errorf("unreplied sent by %d: %w", senderID, err)
	}
	return msgs, nil
}

// FindMessageByProviderMsgID looks up a Message by (sender, provider id) —
// spec.md §3's unique constraint.
func (s *Store) FindMessageByProviderMsgID(senderID uint, providerMsgID string) (*models.Message, error) {
	var m models.Message
	err := s.db.Where("sender_id = ? AND provider_msg_id = ?", senderID, providerMsgID).First(&m).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find message by provider id: %w", err)
	}
	return &m, nil
}

// MessagesSince returns all Messages from senderID sent within the last
// window — the Score Engine's raw input.
func (s *Store) MessagesSince(senderID uint, since time.Time) ([]models.Message, error) {
	var msgs []models.Message
	err := s.db.Where("sender_id = ? AND sent_at >= ?", senderID, since).Find(&msgs).Error
	if err != nil {
		return nil, fmt.Errorf("messages since: %w", err)
	}
	return msgs, nil
}

// --- SpamEvent ---

// OpenSpamEventFor returns the current non-terminal SpamEvent for a given
// providerMsgID/recipient pair, if any — enforcing "at most one open
// SpamEvent per placement" from spec.md §3.
func (s *Store) OpenSpamEventFor(recipientID uint, providerMsgID string) (*models.SpamEvent, error) {
	var ev models.SpamEvent
	err := s.db.Where("recipient_id = ? AND provider_msg_id = ? AND status = ?", recipientID, providerMsgID, models.SpamDetected).
		First(&ev).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("open spam event: %w", err)
	}
	return &ev, nil
}

func (s *Store) CreateSpamEvent(ev *models.SpamEvent) error {
	if err := s.db.Create(ev).Error; err != nil {
		return fmt.Errorf("create spam event: %w", err)
	}
	return nil
}

func (s *Store) SaveSpamEvent(ev *models.SpamEvent) error {
	if err := s.db.Save(ev).Error; err != nil {
		return fmt.Errorf("save spam event %d: %w", ev.ID, err)
	}
	return nil
}

// SpamEventsSince returns SpamEvents detected for messages from senderID
// within the score window.
func (s *Store) SpamEventsSince(senderID uint, since time.Time) ([]models.SpamEvent, error) {
	var events []models.SpamEvent
	err := s.db.Where("sender_id = ? AND detected_at >= ?", senderID, since).Find(&events).Error
	if err != nil {
		return nil, fmt.Errorf("spam events since: %w", err)
	}
	return events, nil
}

func dateOnly(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}
