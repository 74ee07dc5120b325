package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// Moderation event actions and reasons.
const (
	ActionNone  = "NONE"
	ActionMuted = "MUTED"

	ReasonKeyword = "KEYWORD"
	ReasonAI      = "AI"
)

// ModerationEvent is one append-only audit record of a moderation decision.
type ModerationEvent struct {
	ID           int64
	GroupID      int64
	UserID       int64
	MessageID    int64
	Action       string
	ReasonType   string
	MatchedWord  sql.NullString
	AILabel      sql.NullString
	AIConfidence sql.NullFloat64
	AISummary    sql.NullString
	CreatedAt    time.Time
}

// InsertEvent appends a moderation event to the audit log.
func (s *Store) InsertEvent(ctx context.Context, ev *ModerationEvent) error {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO moderation_events
			(group_id, user_id, message_id, action, reason_type, matched_word, ai_label, ai_confidence, ai_summary, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, ev.GroupID, ev.UserID, ev.MessageID, ev.Action, ev.ReasonType,
		ev.MatchedWord, ev.AILabel, ev.AIConfidence, ev.AISummary, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("store: insert moderation event: %w", err)
	}
	ev.ID, _ = res.LastInsertId()
	return nil
}

// ListEventsByUser returns the most recent moderation events for the user,
// newest first.
func (s *Store) ListEventsByUser(ctx context.Context, userID int64, limit int) ([]*ModerationEvent, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, group_id, user_id, message_id, action, reason_type,
		       matched_word, ai_label, ai_confidence, ai_summary, created_at
		FROM moderation_events
		WHERE user_id = ?
		ORDER BY id DESC
		LIMIT ?
	`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("store: list moderation events: %w", err)
	}
	defer rows.Close()

	var events []*ModerationEvent
	for rows.Next() {
		ev := &ModerationEvent{}
		err := rows.Scan(
			&ev.ID, &ev.GroupID, &ev.UserID, &ev.MessageID, &ev.Action, &ev.ReasonType,
			&ev.MatchedWord, &ev.AILabel, &ev.AIConfidence, &ev.AISummary, &ev.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("store: scan moderation event: %w", err)
		}
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: iterate moderation events: %w", err)
	}
	return events, nil
}
