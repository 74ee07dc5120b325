// Package reminder periodically nudges members who joined but have not yet
// completed verification. Sessions whose user already left the group are
// descheduled instead of reminded.
package reminder

import (
	"context"
	"log/slog"
	"time"

	"guardbot/internal/guard/settings"
	"guardbot/internal/guard/store"
	"guardbot/internal/guard/telegram"
	"guardbot/internal/guard/texts"
	"guardbot/internal/guard/verification"
)

const defaultInterval = 20 * time.Second

// Worker drives the reminder loop.
type Worker struct {
	store   *store.Store
	api     telegram.API
	verify  *verification.Service
	runtime *settings.Runtime
	groupID int64

	// Interval is the tick cadence; Now is a test seam.
	Interval time.Duration
	Now      func() time.Time
}

// New wires the reminder worker.
func New(st *store.Store, api telegram.API, verify *verification.Service, runtime *settings.Runtime, groupID int64) *Worker {
	return &Worker{
		store:    st,
		api:      api,
		verify:   verify,
		runtime:  runtime,
		groupID:  groupID,
		Interval: defaultInterval,
		Now:      time.Now,
	}
}

// Run ticks until the context is cancelled. A panicking tick is logged and the
// loop continues on the next tick.
func (w *Worker) Run(ctx context.Context) {
	ticker := time.NewTicker(w.Interval)
	defer ticker.Stop()

	slog.Info("reminder worker started", "interval", w.Interval)
	for {
		select {
		case <-ctx.Done():
			slog.Info("reminder worker stopped")
			return
		case <-ticker.C:
			w.safeTick(ctx)
		}
	}
}

func (w *Worker) safeTick(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("reminder tick panicked", "panic", r)
		}
	}()
	w.Tick(ctx)
}

// Tick processes every due session once. Per-session failures are logged and
// do not block the rest of the batch.
func (w *Worker) Tick(ctx context.Context) {
	now := w.Now().UTC()
	maxReminders := w.runtime.MaxReminders()

	due, err := w.store.DueSessions(ctx, now, maxReminders)
	if err != nil {
		slog.Error("failed to load due sessions", "err", err)
		return
	}

	for _, sess := range due {
		if err := w.remind(ctx, sess, now, maxReminders); err != nil {
			slog.Error("failed to process reminder", "session", sess.ID, "user", sess.UserID, "err", err)
		}
	}
}

func (w *Worker) remind(ctx context.Context, sess *store.Session, now time.Time, maxReminders int) error {
	// A failed status lookup is not proof the user left; send anyway and let
	// the next tick sort it out.
	status, err := w.api.ChatMemberStatus(w.groupID, sess.UserID)
	if err != nil {
		slog.Warn("failed to resolve member status, sending reminder anyway", "user", sess.UserID, "err", err)
	} else if status == telegram.StatusLeft || status == telegram.StatusKicked {
		slog.Info("descheduling reminders for departed user", "user", sess.UserID, "status", status)
		return w.store.DescheduleReminders(ctx, sess.ID, maxReminders)
	}

	name := w.displayName(ctx, sess.UserID)
	if _, err := w.api.SendHTML(w.groupID, texts.Reminder(sess.UserID, name), w.verify.AgreeButton(sess)); err != nil {
		return err
	}
	if err := w.store.RecordReminder(ctx, sess.ID, now.Add(w.runtime.RemindAfter())); err != nil {
		return err
	}
	slog.Info("reminder sent", "user", sess.UserID, "count", sess.ReminderCount+1)
	return nil
}

func (w *Worker) displayName(ctx context.Context, userID int64) string {
	profile, err := w.store.GetProfile(ctx, userID)
	if err != nil {
		return telegram.User{ID: userID}.FullName()
	}
	return profile.FullName()
}
