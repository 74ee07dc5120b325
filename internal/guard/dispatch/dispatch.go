// Package dispatch routes Bot API updates to the verification, moderation
// and admin-panel services. Each update is handled in its own goroutine; Run
// returns only after the update channel closes and all handlers drain.
package dispatch

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"guardbot/common/retry"
	"guardbot/internal/guard/adminpanel"
	"guardbot/internal/guard/moderation"
	"guardbot/internal/guard/signing"
	"guardbot/internal/guard/telegram"
	"guardbot/internal/guard/texts"
	"guardbot/internal/guard/verification"
)

// Dispatcher fans updates out to the handler services.
type Dispatcher struct {
	api     telegram.API
	verify  *verification.Service
	mod     *moderation.Service
	panel   *adminpanel.Panel
	groupID int64

	wg sync.WaitGroup
}

// New wires the dispatcher.
func New(api telegram.API, verify *verification.Service, mod *moderation.Service, panel *adminpanel.Panel, groupID int64) *Dispatcher {
	return &Dispatcher{
		api:     api,
		verify:  verify,
		mod:     mod,
		panel:   panel,
		groupID: groupID,
	}
}

// Run consumes the update channel until it closes, then waits for in-flight
// handlers to finish.
func (d *Dispatcher) Run(ctx context.Context, updates tgbotapi.UpdatesChannel) {
	for update := range updates {
		d.wg.Add(1)
		go func(u tgbotapi.Update) {
			defer d.wg.Done()
			d.safeHandle(ctx, u)
		}(update)
	}
	d.wg.Wait()
}

func (d *Dispatcher) safeHandle(ctx context.Context, update tgbotapi.Update) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("update handler panicked", "update", update.UpdateID, "panic", r)
		}
	}()

	// Transient storage contention gets one retry; everything else surfaces
	// immediately.
	err := retry.Do(ctx, retry.Config{
		MaxAttempts: 2,
		Delay:       100 * time.Millisecond,
		ShouldRetry: isBusy,
	}, func() error {
		return d.Handle(ctx, update)
	})
	if err != nil {
		slog.Error("failed to handle update", "update", update.UpdateID, "err", err)
	}
}

func isBusy(err error) bool {
	s := err.Error()
	return strings.Contains(s, "database is locked") || strings.Contains(s, "database table is locked")
}

// Handle routes a single update.
func (d *Dispatcher) Handle(ctx context.Context, update tgbotapi.Update) error {
	switch {
	case update.ChatMember != nil:
		return d.handleChatMember(ctx, update.ChatMember)
	case update.CallbackQuery != nil:
		return d.handleCallback(ctx, update.CallbackQuery)
	case update.Message != nil:
		return d.handleMessage(ctx, update.Message)
	}
	return nil
}

// handleChatMember reacts to join transitions reported via chat_member
// updates.
func (d *Dispatcher) handleChatMember(ctx context.Context, upd *tgbotapi.ChatMemberUpdated) error {
	if upd.Chat.ID != d.groupID {
		return nil
	}
	if !joined(upd.OldChatMember.Status, upd.NewChatMember.Status) {
		return nil
	}
	return d.verify.OnJoin(ctx, fromUser(upd.NewChatMember.User))
}

func joined(oldStatus, newStatus string) bool {
	wasOut := oldStatus == telegram.StatusLeft || oldStatus == telegram.StatusKicked || oldStatus == ""
	isIn := newStatus == telegram.StatusMember || newStatus == telegram.StatusRestricted
	return wasOut && isIn
}

func (d *Dispatcher) handleCallback(ctx context.Context, cb *tgbotapi.CallbackQuery) error {
	if cb.From == nil || cb.Message == nil {
		return nil
	}
	from := fromUser(cb.From)
	switch {
	case strings.HasPrefix(cb.Data, signing.CallbackPrefix):
		return d.verify.OnAgreeCallback(ctx, cb.ID, from, cb.Data)
	case strings.HasPrefix(cb.Data, adminpanel.CallbackPrefix):
		return d.panel.HandleCallback(ctx, cb.ID, from, cb.Message.Chat.ID, cb.Message.MessageID, cb.Data)
	}
	return d.api.AnswerCallback(cb.ID, "")
}

func (d *Dispatcher) handleMessage(ctx context.Context, msg *tgbotapi.Message) error {
	switch {
	case msg.Chat.ID == d.groupID:
		return d.handleGroupMessage(ctx, msg)
	case msg.Chat.IsPrivate():
		return d.handlePrivateMessage(ctx, msg)
	}
	return nil
}

func (d *Dispatcher) handleGroupMessage(ctx context.Context, msg *tgbotapi.Message) error {
	// Join service messages double as a join signal for groups where
	// chat_member updates are not delivered, and are removed to keep the
	// chat clean.
	if len(msg.NewChatMembers) > 0 {
		for i := range msg.NewChatMembers {
			if err := d.verify.OnJoin(ctx, fromUser(&msg.NewChatMembers[i])); err != nil {
				return err
			}
		}
		d.deleteServiceMessage(msg)
		return nil
	}
	if msg.LeftChatMember != nil {
		d.deleteServiceMessage(msg)
		return nil
	}
	if msg.From == nil {
		return nil
	}

	text := msg.Text
	if text == "" {
		text = msg.Caption
	}
	return d.mod.HandleMessage(ctx, fromUser(msg.From), msg.MessageID, text)
}

func (d *Dispatcher) deleteServiceMessage(msg *tgbotapi.Message) {
	if err := d.api.DeleteMessage(msg.Chat.ID, msg.MessageID); err != nil {
		slog.Warn("failed to delete service message", "message", msg.MessageID, "err", err)
	}
}

func (d *Dispatcher) handlePrivateMessage(ctx context.Context, msg *tgbotapi.Message) error {
	if msg.From == nil {
		return nil
	}
	from := fromUser(msg.From)

	if msg.IsCommand() {
		switch msg.Command() {
		case "start":
			arg := msg.CommandArguments()
			if payload, ok := strings.CutPrefix(arg, signing.StartPrefix); ok {
				return d.verify.OnStart(ctx, from, payload)
			}
			_, err := d.api.SendHTML(msg.Chat.ID, texts.NoActiveSession)
			return err
		case "admin":
			return d.panel.HandleAdminCommand(ctx, from, msg.Chat.ID)
		case "cancel":
			return d.panel.HandleCancel(ctx, from, msg.Chat.ID)
		}
		return nil
	}

	if consumed, err := d.panel.HandleInput(ctx, from, msg.Chat.ID, msg.Text); consumed || err != nil {
		return err
	}

	var contactUserID int64
	var contactPhone string
	if msg.Contact != nil {
		contactUserID = msg.Contact.UserID
		contactPhone = msg.Contact.PhoneNumber
	}
	return d.verify.OnPrivateMessage(ctx, from, msg.Text, contactUserID, contactPhone)
}

func fromUser(u *tgbotapi.User) telegram.User {
	if u == nil {
		return telegram.User{}
	}
	return telegram.User{
		ID:        u.ID,
		FirstName: u.FirstName,
		LastName:  u.LastName,
		Username:  u.UserName,
		IsBot:     u.IsBot,
	}
}
