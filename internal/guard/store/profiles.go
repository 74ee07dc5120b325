package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// UserProfile caches what the daemon knows about a user across interactions.
// The phone number is only ever written from a verified contact share.
type UserProfile struct {
	UserID           int64
	FirstName        string
	LastName         sql.NullString
	Username         sql.NullString
	PhoneNumber      sql.NullString
	LastAICheckAt    sql.NullTime
	LastModerationAt sql.NullTime
	UpdatedAt        time.Time
}

// FullName renders the profile's display name, falling back to the numeric id.
func (p *UserProfile) FullName() string {
	name := p.FirstName
	if p.LastName.Valid && p.LastName.String != "" {
		name = name + " " + p.LastName.String
	}
	if name == "" {
		return fmt.Sprintf("ID:%d", p.UserID)
	}
	return name
}

// UpsertProfile refreshes the stored identity fields for the user. The phone
// number is overwritten only when phone is non-empty so a later interaction
// without a contact share never erases it.
func (s *Store) UpsertProfile(ctx context.Context, userID int64, firstName, lastName, username, phone string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO user_profiles (user_id, first_name, last_name, username, phone_number, updated_at)
		VALUES (?, ?, NULLIF(?, ''), NULLIF(?, ''), NULLIF(?, ''), ?)
		ON CONFLICT (user_id) DO UPDATE SET
			first_name = excluded.first_name,
			last_name = excluded.last_name,
			username = excluded.username,
			phone_number = COALESCE(excluded.phone_number, user_profiles.phone_number),
			updated_at = excluded.updated_at
	`, userID, firstName, lastName, username, phone, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("store: upsert profile: %w", err)
	}
	return nil
}

// GetProfile returns the profile for userID, or ErrNotFound.
func (s *Store) GetProfile(ctx context.Context, userID int64) (*UserProfile, error) {
	p := &UserProfile{}
	err := s.db.QueryRowContext(ctx, `
		SELECT user_id, first_name, last_name, username, phone_number,
		       last_ai_check_at, last_moderation_at, updated_at
		FROM user_profiles
		WHERE user_id = ?
	`, userID).Scan(
		&p.UserID, &p.FirstName, &p.LastName, &p.Username, &p.PhoneNumber,
		&p.LastAICheckAt, &p.LastModerationAt, &p.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("store: profile %d: %w", userID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("store: get profile: %w", err)
	}
	return p, nil
}

// StampAICheck records that the user was submitted to the AI classifier at
// the given time. The stamp is committed before the classifier call so the
// cooldown holds even when the call fails or messages arrive in a burst.
func (s *Store) StampAICheck(ctx context.Context, userID int64, at time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO user_profiles (user_id, first_name, last_ai_check_at, updated_at)
		VALUES (?, '', ?, ?)
		ON CONFLICT (user_id) DO UPDATE SET
			last_ai_check_at = excluded.last_ai_check_at,
			updated_at = excluded.updated_at
	`, userID, at.UTC(), time.Now().UTC())
	if err != nil {
		return fmt.Errorf("store: stamp ai check: %w", err)
	}
	return nil
}

// StampModeration records that the user was punished by the moderation
// pipeline at the given time.
func (s *Store) StampModeration(ctx context.Context, userID int64, at time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO user_profiles (user_id, first_name, last_moderation_at, updated_at)
		VALUES (?, '', ?, ?)
		ON CONFLICT (user_id) DO UPDATE SET
			last_moderation_at = excluded.last_moderation_at,
			updated_at = excluded.updated_at
	`, userID, at.UTC(), time.Now().UTC())
	if err != nil {
		return fmt.Errorf("store: stamp moderation: %w", err)
	}
	return nil
}
