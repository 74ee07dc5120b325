// Package moderation screens group messages from verified members: a fast
// in-memory lexicon pass first, then a rate-limited AI classifier for what
// slips through. A hit forwards the message to the primary admin, deletes it,
// mutes the author and records an audit event.
package moderation

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"sync"
	"time"

	"guardbot/internal/guard/aimod"
	"guardbot/internal/guard/lexicon"
	"guardbot/internal/guard/settings"
	"guardbot/internal/guard/store"
	"guardbot/internal/guard/telegram"
	"guardbot/internal/guard/texts"
)

const (
	// notifyWindow throttles the public "user muted" announcement per user.
	notifyWindow = 30 * time.Second

	// excerptLen caps the message excerpt shown on admin cards.
	excerptLen = 200
)

// Classifier yields an advisory verdict for a message, or nil when it cannot.
type Classifier interface {
	Classify(ctx context.Context, text string) *aimod.Decision
}

var _ Classifier = (*aimod.Client)(nil)

// Service runs the moderation pipeline for the configured group.
type Service struct {
	store      *store.Store
	api        telegram.API
	cache      *lexicon.Cache
	classifier Classifier
	runtime    *settings.Runtime
	groupID    int64
	loc        *time.Location

	// Now and Rand are test seams; they default to time.Now and a uniform
	// [0,1) source.
	Now  func() time.Time
	Rand func() float64

	mu         sync.Mutex
	lastNotify map[int64]time.Time
}

// New wires the moderation service.
func New(st *store.Store, api telegram.API, cache *lexicon.Cache, classifier Classifier, runtime *settings.Runtime, groupID int64, loc *time.Location) *Service {
	return &Service{
		store:      st,
		api:        api,
		cache:      cache,
		classifier: classifier,
		runtime:    runtime,
		groupID:    groupID,
		loc:        loc,
		Now:        time.Now,
		Rand:       rand.Float64,
		lastNotify: make(map[int64]time.Time),
	}
}

// Cache returns the lexicon cache, for admin-panel refreshes.
func (s *Service) Cache() *lexicon.Cache {
	return s.cache
}

// HandleMessage screens one group message. Admins are exempt; any message
// from an unverified member is deleted outright, text or not, since they
// should not be able to post at all.
func (s *Service) HandleMessage(ctx context.Context, from telegram.User, messageID int, text string) error {
	if from.IsBot {
		return nil
	}
	if s.isAdmin(from.ID) {
		return nil
	}

	approved, err := s.store.IsApproved(ctx, s.groupID, from.ID)
	if err != nil {
		return fmt.Errorf("moderation: handle message: %w", err)
	}
	if !approved {
		if err := s.api.DeleteMessage(s.groupID, messageID); err != nil {
			slog.Warn("failed to delete message from unverified user", "user", from.ID, "err", err)
		}
		return nil
	}
	if text == "" {
		return nil
	}

	if entry := s.cache.Match(text); entry != nil {
		s.punish(ctx, from, messageID, text, verdict{
			reasonType:  store.ReasonKeyword,
			matchedWord: entry.Original,
		})
		return nil
	}

	decision := s.classify(ctx, from.ID, text)
	if decision == nil {
		return nil
	}
	s.punish(ctx, from, messageID, text, verdict{
		reasonType: store.ReasonAI,
		label:      decision.Label,
		confidence: decision.Confidence,
		reason:     decision.Reason,
	})
	return nil
}

func (s *Service) isAdmin(userID int64) bool {
	if s.runtime.IsAdmin(userID) {
		return true
	}
	status, err := s.api.ChatMemberStatus(s.groupID, userID)
	if err != nil {
		slog.Warn("failed to resolve member status", "user", userID, "err", err)
		return false
	}
	return status == telegram.StatusCreator || status == telegram.StatusAdministrator
}

// classify runs the AI gates and returns an accepted verdict, or nil. The
// cooldown stamp is committed before the classifier call so a burst of
// messages costs at most one request per window.
func (s *Service) classify(ctx context.Context, userID int64, text string) *aimod.Decision {
	cfg := s.runtime.Base()
	if !s.runtime.AIModerationEnabled() {
		return nil
	}
	if len([]rune(text)) < cfg.AIMinChars {
		return nil
	}
	if s.Rand() >= cfg.AISampleRate {
		return nil
	}

	now := s.Now().UTC()
	cooldown := time.Duration(cfg.AICooldownSec) * time.Second
	profile, err := s.store.GetProfile(ctx, userID)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		slog.Warn("failed to load profile for ai gate", "user", userID, "err", err)
		return nil
	}
	if profile != nil && profile.LastAICheckAt.Valid && now.Sub(profile.LastAICheckAt.Time) < cooldown {
		return nil
	}
	if err := s.store.StampAICheck(ctx, userID, now); err != nil {
		slog.Warn("failed to stamp ai check", "user", userID, "err", err)
		return nil
	}

	decision := s.classifier.Classify(ctx, text)
	if decision == nil || !decision.IsProhibited {
		return nil
	}
	if decision.Confidence < cfg.AIConfidenceThreshold {
		slog.Info("ai verdict below confidence threshold",
			"user", userID, "label", decision.Label, "confidence", decision.Confidence)
		return nil
	}
	if !labelAccepted(decision.Label, cfg.AIProhibitedLabels) {
		slog.Info("ai verdict label not in accept set", "user", userID, "label", decision.Label)
		return nil
	}
	return decision
}

func labelAccepted(label string, accepted []string) bool {
	for _, l := range accepted {
		if l == label {
			return true
		}
	}
	return false
}

type verdict struct {
	reasonType  string
	matchedWord string
	label       string
	confidence  float64
	reason      string
}

// punish applies the full response to a hit. Each step is independent so one
// API failure never blocks the rest.
func (s *Service) punish(ctx context.Context, from telegram.User, messageID int, text string, v verdict) {
	now := s.Now().UTC()
	until := now.Add(s.runtime.MuteDuration())
	admin := s.runtime.PrimaryAdmin()

	if admin != 0 {
		if err := s.api.ForwardMessage(admin, s.groupID, messageID); err != nil {
			slog.Warn("failed to forward offending message", "user", from.ID, "err", err)
		}
	}
	if err := s.api.DeleteMessage(s.groupID, messageID); err != nil {
		slog.Warn("failed to delete offending message", "user", from.ID, "err", err)
	}
	if err := s.api.MuteUntil(s.groupID, from.ID, until); err != nil {
		slog.Error("failed to mute user", "user", from.ID, "err", err)
	}

	untilStr := texts.FormatUntil(until, s.loc)
	if s.allowNotify(from.ID, now) {
		if _, err := s.api.SendHTML(s.groupID, texts.GroupMuted(from.ID, from.FullName(), untilStr)); err != nil {
			slog.Warn("failed to post mute notification", "user", from.ID, "err", err)
		}
	}

	if admin != 0 {
		if _, err := s.api.SendHTML(admin, s.adminCard(ctx, from, text, untilStr, v)); err != nil {
			slog.Warn("failed to send admin card", "user", from.ID, "err", err)
		}
	}

	ev := &store.ModerationEvent{
		GroupID:    s.groupID,
		UserID:     from.ID,
		MessageID:  int64(messageID),
		Action:     store.ActionMuted,
		ReasonType: v.reasonType,
	}
	if v.reasonType == store.ReasonKeyword {
		ev.MatchedWord = nullString(v.matchedWord)
	} else {
		ev.AILabel = nullString(v.label)
		ev.AIConfidence.Valid = true
		ev.AIConfidence.Float64 = v.confidence
		ev.AISummary = nullString(v.reason)
	}
	if err := s.store.InsertEvent(ctx, ev); err != nil {
		slog.Error("failed to record moderation event", "user", from.ID, "err", err)
	}
	if err := s.store.StampModeration(ctx, from.ID, now); err != nil {
		slog.Warn("failed to stamp moderation", "user", from.ID, "err", err)
	}

	slog.Info("user muted", "user", from.ID, "reason", v.reasonType, "until", until)
}

// allowNotify reports whether the public mute announcement for userID is
// outside the throttle window, recording the attempt when it is.
func (s *Service) allowNotify(userID int64, now time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if last, ok := s.lastNotify[userID]; ok && now.Sub(last) < notifyWindow {
		return false
	}
	s.lastNotify[userID] = now
	return true
}

func (s *Service) adminCard(ctx context.Context, from telegram.User, text, untilStr string, v verdict) string {
	card := texts.UserCard{
		UserID:   from.ID,
		FullName: from.FullName(),
		Username: from.Username,
	}
	if profile, err := s.store.GetProfile(ctx, from.ID); err == nil {
		if profile.PhoneNumber.Valid {
			card.Phone = profile.PhoneNumber.String
		}
	}

	if v.reasonType == store.ReasonKeyword {
		return texts.KeywordCard(card, v.matchedWord, untilStr, s.groupID)
	}
	return texts.AICard(card, v.label, v.confidence, v.reason, untilStr, excerpt(text))
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func excerpt(text string) string {
	runes := []rune(text)
	if len(runes) <= excerptLen {
		return text
	}
	return string(runes[:excerptLen])
}
