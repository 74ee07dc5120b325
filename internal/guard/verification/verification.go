// Package verification drives the join-verification state machine: a new
// member is locked on join, walked through a group button, a deep link into
// the bot's private chat and a magic-word challenge, and unlocked on success.
package verification

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"guardbot/internal/guard/normalize"
	"guardbot/internal/guard/settings"
	"guardbot/internal/guard/signing"
	"guardbot/internal/guard/store"
	"guardbot/internal/guard/telegram"
	"guardbot/internal/guard/texts"
	"guardbot/internal/guard/words"
)

// Service owns the verification lifecycle for the configured group.
type Service struct {
	store   *store.Store
	api     telegram.API
	signer  *signing.Signer
	runtime *settings.Runtime
	norm    *normalize.Normalizer
	groupID int64

	// Now and PickWord are test seams; they default to time.Now and
	// words.Random.
	Now      func() time.Time
	PickWord func() string
}

// New wires the verification service.
func New(st *store.Store, api telegram.API, signer *signing.Signer, runtime *settings.Runtime, norm *normalize.Normalizer, groupID int64) *Service {
	return &Service{
		store:    st,
		api:      api,
		signer:   signer,
		runtime:  runtime,
		norm:     norm,
		groupID:  groupID,
		Now:      time.Now,
		PickWord: words.Random,
	}
}

// AgreeButton builds the inline button attached to welcome and reminder
// messages for the session.
func (s *Service) AgreeButton(sess *store.Session) telegram.Button {
	return telegram.Button{
		Label:        texts.AgreeButtonLabel,
		CallbackData: s.signer.CallbackData(sess.GroupID, sess.UserID, sess.ID),
	}
}

// OnJoin handles a user entering the group: creates or resets their session,
// locks them and posts the welcome message with the agree button. Users who
// already completed verification are left alone.
func (s *Service) OnJoin(ctx context.Context, user telegram.User) error {
	if user.IsBot {
		return nil
	}
	if err := s.store.UpsertProfile(ctx, user.ID, user.FirstName, user.LastName, user.Username, ""); err != nil {
		slog.Warn("failed to upsert profile on join", "user", user.ID, "err", err)
	}

	approved, err := s.store.IsApproved(ctx, s.groupID, user.ID)
	if err != nil {
		return fmt.Errorf("verification: on join: %w", err)
	}
	if approved {
		return nil
	}

	now := s.Now().UTC()
	sess, err := s.store.UpsertSession(ctx, s.groupID, user.ID, s.PickWord(),
		now.Add(s.runtime.RemindAfter()), now.Add(s.runtime.ExpireAfter()))
	if err != nil {
		return fmt.Errorf("verification: on join: %w", err)
	}
	if sess.State == store.StateConfirmed {
		return nil
	}

	if err := s.api.RestrictUser(s.groupID, user.ID); err != nil {
		slog.Error("failed to restrict joining user", "user", user.ID, "err", err)
	}

	messageID, err := s.api.SendHTML(s.groupID, texts.Welcome(user.ID, user.FullName()), s.AgreeButton(sess))
	if err != nil {
		slog.Error("failed to send welcome message", "user", user.ID, "err", err)
		return nil
	}
	if err := s.store.SetWelcomeMessageID(ctx, sess.ID, int64(messageID)); err != nil {
		slog.Warn("failed to record welcome message id", "session", sess.ID, "err", err)
	}

	slog.Info("locked new user", "user", user.ID, "group", s.groupID)
	return nil
}

// OnAgreeCallback handles a press of the agree button. A press by the wrong
// user gets the alert text; any validation failure is answered silently so an
// attacker learns nothing. On success the user is redirected to the bot's
// private chat through a signed deep link.
func (s *Service) OnAgreeCallback(ctx context.Context, callbackID string, from telegram.User, data string) error {
	silent := func(why string) error {
		slog.Debug("agree callback rejected", "why", why, "from", from.ID)
		return s.api.AnswerCallback(callbackID, "")
	}

	userID, sessionID, sig, ok := signing.ParseCallbackData(data)
	if !ok {
		return silent("malformed payload")
	}
	if from.ID != userID {
		return s.api.AnswerCallbackAlert(callbackID, texts.WrongUserAlert)
	}
	if !s.signer.VerifyCallback(s.groupID, userID, sessionID, sig) {
		return silent("bad signature")
	}

	sess, err := s.store.GetSessionByID(ctx, sessionID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return silent("session not found")
		}
		return fmt.Errorf("verification: agree callback: %w", err)
	}
	if sess.UserID != userID || sess.GroupID != s.groupID {
		return silent("session mismatch")
	}

	payload := signing.StartPrefix + s.signer.StartPayload(s.groupID, userID, sessionID)
	link := telegram.DeepLink(s.api.Username(), payload)
	if err := s.api.AnswerCallbackURL(callbackID, link); err != nil {
		return fmt.Errorf("verification: agree callback: %w", err)
	}
	slog.Info("redirected user to private chat", "user", userID)
	return nil
}

// OnStart handles the /start deep link in the bot's private chat. payload is
// the argument after the "agree_" prefix. Validation failures are silent; on
// success the session advances to WAITING_DM_CONFIRM and the rules text with
// the magic word is sent.
func (s *Service) OnStart(ctx context.Context, from telegram.User, payload string) error {
	reject := func(why string) error {
		slog.Debug("start payload rejected", "why", why, "from", from.ID)
		return nil
	}

	sessionID, ok := signing.ParseStartPayload(payload)
	if !ok {
		return reject("malformed payload")
	}

	sess, err := s.store.GetSessionByID(ctx, sessionID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return reject("session not found")
		}
		return fmt.Errorf("verification: on start: %w", err)
	}
	if sess.GroupID != s.groupID {
		return reject("group mismatch")
	}
	if from.ID != sess.UserID {
		return reject("user mismatch")
	}
	if !s.signer.VerifyStartPayload(sess.GroupID, sess.UserID, sess.ID, payload) {
		return reject("bad signature")
	}
	if sess.State == store.StateConfirmed {
		return reject("already confirmed")
	}
	if sess.Expired(s.Now().UTC()) {
		return reject("session expired")
	}

	if err := s.store.SetSessionState(ctx, sess.ID, store.StateWaitingConfirm); err != nil {
		return fmt.Errorf("verification: on start: %w", err)
	}
	if _, err := s.api.SendHTML(from.ID, texts.Rules(sess.MagicWord)); err != nil {
		return fmt.Errorf("verification: on start: %w", err)
	}
	slog.Info("sent rules", "user", from.ID)
	return nil
}

// OnPrivateMessage handles a non-command private message: a contact share
// from the user themselves persists their phone number regardless of
// verification outcome, and a correct magic word completes verification.
func (s *Service) OnPrivateMessage(ctx context.Context, from telegram.User, text string, contactUserID int64, contactPhone string) error {
	phone := ""
	if contactPhone != "" && contactUserID == from.ID {
		phone = contactPhone
	}
	if err := s.store.UpsertProfile(ctx, from.ID, from.FirstName, from.LastName, from.Username, phone); err != nil {
		slog.Warn("failed to upsert profile", "user", from.ID, "err", err)
	}

	sess, err := s.store.GetSession(ctx, s.groupID, from.ID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil
		}
		return fmt.Errorf("verification: private message: %w", err)
	}
	if sess.State != store.StateJoinedLocked && sess.State != store.StateWaitingConfirm {
		return nil
	}
	if sess.Expired(s.Now().UTC()) {
		return nil
	}
	if s.norm.Text(text) != s.norm.Text(sess.MagicWord) {
		return nil
	}

	if err := s.api.UnrestrictUser(s.groupID, from.ID); err != nil {
		slog.Error("failed to unrestrict user", "user", from.ID, "err", err)
	}
	if err := s.store.ApproveMember(ctx, s.groupID, from.ID); err != nil {
		return fmt.Errorf("verification: private message: %w", err)
	}
	if err := s.store.ConfirmSession(ctx, sess.ID, s.runtime.MaxReminders()); err != nil {
		return fmt.Errorf("verification: private message: %w", err)
	}

	s.announceSuccess(sess, from)

	if _, err := s.api.SendHTML(from.ID, texts.DMSuccess); err != nil {
		slog.Warn("failed to send confirmation dm", "user", from.ID, "err", err)
	}

	slog.Info("user approved", "user", from.ID, "group", s.groupID)
	return nil
}

// announceSuccess replaces the welcome message with the success text, falling
// back to a fresh group message when the edit is impossible.
func (s *Service) announceSuccess(sess *store.Session, from telegram.User) {
	text := texts.Success(from.ID, from.FullName())
	if sess.WelcomeMessageID.Valid {
		if err := s.api.EditHTML(s.groupID, int(sess.WelcomeMessageID.Int64), text); err == nil {
			return
		}
		slog.Warn("failed to edit welcome message, sending fresh", "session", sess.ID)
	}
	if _, err := s.api.SendHTML(s.groupID, text); err != nil {
		slog.Error("failed to announce verification success", "user", from.ID, "err", err)
	}
}
