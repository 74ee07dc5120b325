package store

import (
	"context"
	"fmt"
	"time"
)

// ApprovedMember records a user who completed verification in a group.
// Rows are created once and never mutated.
type ApprovedMember struct {
	ID         int64
	GroupID    int64
	UserID     int64
	ApprovedAt time.Time
}

// IsApproved reports whether the user has completed verification in the group.
func (s *Store) IsApproved(ctx context.Context, groupID, userID int64) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(1) FROM approved_members WHERE group_id = ? AND user_id = ?
	`, groupID, userID).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("store: check approved member: %w", err)
	}
	return n > 0, nil
}

// ApproveMember whitelists the user in the group. Approving an already
// approved user is a no-op.
func (s *Store) ApproveMember(ctx context.Context, groupID, userID int64) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO approved_members (group_id, user_id, approved_at)
		VALUES (?, ?, ?)
		ON CONFLICT (group_id, user_id) DO NOTHING
	`, groupID, userID, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("store: approve member: %w", err)
	}
	return nil
}

// CountApproved returns the number of approved members in the group.
func (s *Store) CountApproved(ctx context.Context, groupID int64) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(1) FROM approved_members WHERE group_id = ?
	`, groupID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("store: count approved members: %w", err)
	}
	return n, nil
}
