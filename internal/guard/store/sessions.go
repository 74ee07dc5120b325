package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Verification session states. A session only ever advances
// JOINED_LOCKED -> WAITING_DM_CONFIRM -> CONFIRMED_UNLOCKED; a rejoin after
// leaving mid-verification resets it back to JOINED_LOCKED.
const (
	StateJoinedLocked   = "JOINED_LOCKED"
	StateWaitingConfirm = "WAITING_DM_CONFIRM"
	StateConfirmed      = "CONFIRMED_UNLOCKED"
)

// Session tracks one user's verification attempt in one group.
type Session struct {
	ID               uuid.UUID
	GroupID          int64
	UserID           int64
	State            string
	MagicWord        string
	WelcomeMessageID sql.NullInt64
	ReminderCount    int
	RemindAt         time.Time
	ExpiresAt        time.Time
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// Expired reports whether the session's expiry has passed at the given time.
func (sess *Session) Expired(now time.Time) bool {
	return !sess.ExpiresAt.After(now)
}

const sessionColumns = `id, group_id, user_id, state, magic_word, welcome_message_id,
	reminder_count, remind_at, expires_at, created_at, updated_at`

func scanSession(row interface{ Scan(...any) error }) (*Session, error) {
	sess := &Session{}
	var id string
	err := row.Scan(
		&id, &sess.GroupID, &sess.UserID, &sess.State, &sess.MagicWord,
		&sess.WelcomeMessageID, &sess.ReminderCount, &sess.RemindAt,
		&sess.ExpiresAt, &sess.CreatedAt, &sess.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	sess.ID, err = uuid.Parse(id)
	if err != nil {
		return nil, fmt.Errorf("parse session id %q: %w", id, err)
	}
	return sess, nil
}

// UpsertSession creates or resets the session for (groupID, userID). A fresh
// or non-confirmed session is (re)started in JOINED_LOCKED with the supplied
// magic word and timers; a CONFIRMED_UNLOCKED session is left untouched and
// returned as is.
func (s *Store) UpsertSession(ctx context.Context, groupID, userID int64, magicWord string, remindAt, expiresAt time.Time) (*Session, error) {
	now := time.Now().UTC()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO verification_sessions
			(id, group_id, user_id, state, magic_word, reminder_count, remind_at, expires_at, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, 0, ?, ?, ?, ?)
		ON CONFLICT (group_id, user_id) DO UPDATE SET
			state = excluded.state,
			magic_word = excluded.magic_word,
			reminder_count = 0,
			remind_at = excluded.remind_at,
			expires_at = excluded.expires_at,
			updated_at = excluded.updated_at
		WHERE verification_sessions.state != ?
	`, uuid.New().String(), groupID, userID, StateJoinedLocked, magicWord,
		remindAt.UTC(), expiresAt.UTC(), now, now, StateConfirmed)
	if err != nil {
		return nil, fmt.Errorf("store: upsert session: %w", err)
	}
	return s.GetSession(ctx, groupID, userID)
}

// GetSession returns the session for (groupID, userID), or ErrNotFound.
func (s *Store) GetSession(ctx context.Context, groupID, userID int64) (*Session, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+sessionColumns+`
		FROM verification_sessions
		WHERE group_id = ? AND user_id = ?
	`, groupID, userID)
	sess, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("store: session for user %d: %w", userID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("store: get session: %w", err)
	}
	return sess, nil
}

// GetSessionByID returns the session with the given id, or ErrNotFound.
func (s *Store) GetSessionByID(ctx context.Context, id uuid.UUID) (*Session, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+sessionColumns+`
		FROM verification_sessions
		WHERE id = ?
	`, id.String())
	sess, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("store: session %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("store: get session by id: %w", err)
	}
	return sess, nil
}

// SetWelcomeMessageID records the id of the welcome message sent for the
// session so it can be edited on success.
func (s *Store) SetWelcomeMessageID(ctx context.Context, id uuid.UUID, messageID int64) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE verification_sessions
		SET welcome_message_id = ?, updated_at = ?
		WHERE id = ?
	`, messageID, time.Now().UTC(), id.String())
	if err != nil {
		return fmt.Errorf("store: set welcome message id: %w", err)
	}
	return nil
}

// SetSessionState advances the session to the given state.
func (s *Store) SetSessionState(ctx context.Context, id uuid.UUID, state string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE verification_sessions
		SET state = ?, updated_at = ?
		WHERE id = ?
	`, state, time.Now().UTC(), id.String())
	if err != nil {
		return fmt.Errorf("store: set session state: %w", err)
	}
	return nil
}

// ConfirmSession marks the session CONFIRMED_UNLOCKED and pushes the reminder
// schedule past its cap (count = maxReminders, remind_at = expires_at) so the
// reminder worker never picks it up again.
func (s *Store) ConfirmSession(ctx context.Context, id uuid.UUID, maxReminders int) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE verification_sessions
		SET state = ?, reminder_count = ?, remind_at = expires_at, updated_at = ?
		WHERE id = ?
	`, StateConfirmed, maxReminders, time.Now().UTC(), id.String())
	if err != nil {
		return fmt.Errorf("store: confirm session: %w", err)
	}
	return nil
}

// DescheduleReminders stops future reminders for the session without changing
// its state. Used when the user has left the group mid-verification.
func (s *Store) DescheduleReminders(ctx context.Context, id uuid.UUID, maxReminders int) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE verification_sessions
		SET reminder_count = ?, remind_at = expires_at, updated_at = ?
		WHERE id = ?
	`, maxReminders, time.Now().UTC(), id.String())
	if err != nil {
		return fmt.Errorf("store: deschedule reminders: %w", err)
	}
	return nil
}

// RecordReminder bumps the session's reminder counter and schedules the next
// reminder.
func (s *Store) RecordReminder(ctx context.Context, id uuid.UUID, nextRemindAt time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE verification_sessions
		SET reminder_count = reminder_count + 1, remind_at = ?, updated_at = ?
		WHERE id = ?
	`, nextRemindAt.UTC(), time.Now().UTC(), id.String())
	if err != nil {
		return fmt.Errorf("store: record reminder: %w", err)
	}
	return nil
}

// DueSessions returns the sessions owed a reminder at the given time: not yet
// confirmed, reminder due, under the reminder cap and not expired.
func (s *Store) DueSessions(ctx context.Context, now time.Time, maxReminders int) ([]*Session, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+sessionColumns+`
		FROM verification_sessions
		WHERE state != ?
		  AND remind_at <= ?
		  AND reminder_count < ?
		  AND expires_at > ?
		ORDER BY remind_at
	`, StateConfirmed, now.UTC(), maxReminders, now.UTC())
	if err != nil {
		return nil, fmt.Errorf("store: query due sessions: %w", err)
	}
	defer rows.Close()

	var sessions []*Session
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("store: scan due session: %w", err)
		}
		sessions = append(sessions, sess)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: iterate due sessions: %w", err)
	}
	return sessions, nil
}
