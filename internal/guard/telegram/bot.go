package telegram

import (
	"fmt"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// Bot implements API over go-telegram-bot-api.
type Bot struct {
	api *tgbotapi.BotAPI
}

// NewBot authenticates against the Bot API with the given token.
func NewBot(token string) (*Bot, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("telegram: authorize bot: %w", err)
	}
	return &Bot{api: api}, nil
}

// Raw exposes the underlying client for the update long-poll loop.
func (b *Bot) Raw() *tgbotapi.BotAPI {
	return b.api
}

// Username returns the bot's own username.
func (b *Bot) Username() string {
	return b.api.Self.UserName
}

// SendHTML sends an HTML message, optionally with one row of inline buttons.
func (b *Bot) SendHTML(chatID int64, text string, buttons ...Button) (int, error) {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = tgbotapi.ModeHTML
	if len(buttons) > 0 {
		row := make([]tgbotapi.InlineKeyboardButton, len(buttons))
		for i, btn := range buttons {
			row[i] = tgbotapi.NewInlineKeyboardButtonData(btn.Label, btn.CallbackData)
		}
		msg.ReplyMarkup = tgbotapi.NewInlineKeyboardMarkup(tgbotapi.NewInlineKeyboardRow(row...))
	}

	sent, err := b.api.Send(msg)
	if err != nil {
		return 0, fmt.Errorf("telegram: send message: %w", err)
	}
	return sent.MessageID, nil
}

// EditHTML replaces the text of an existing message.
func (b *Bot) EditHTML(chatID int64, messageID int, text string) error {
	edit := tgbotapi.NewEditMessageText(chatID, messageID, text)
	edit.ParseMode = tgbotapi.ModeHTML
	if _, err := b.api.Request(edit); err != nil {
		return fmt.Errorf("telegram: edit message: %w", err)
	}
	return nil
}

func keyboard(rows [][]Button) tgbotapi.InlineKeyboardMarkup {
	kb := make([][]tgbotapi.InlineKeyboardButton, len(rows))
	for i, row := range rows {
		kb[i] = make([]tgbotapi.InlineKeyboardButton, len(row))
		for j, btn := range row {
			kb[i][j] = tgbotapi.NewInlineKeyboardButtonData(btn.Label, btn.CallbackData)
		}
	}
	return tgbotapi.NewInlineKeyboardMarkup(kb...)
}

// SendMenu sends an HTML message with a multi-row inline keyboard.
func (b *Bot) SendMenu(chatID int64, text string, rows [][]Button) (int, error) {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = tgbotapi.ModeHTML
	msg.ReplyMarkup = keyboard(rows)

	sent, err := b.api.Send(msg)
	if err != nil {
		return 0, fmt.Errorf("telegram: send menu: %w", err)
	}
	return sent.MessageID, nil
}

// EditMenu replaces the text and keyboard of an existing message.
func (b *Bot) EditMenu(chatID int64, messageID int, text string, rows [][]Button) error {
	kb := keyboard(rows)
	edit := tgbotapi.NewEditMessageTextAndMarkup(chatID, messageID, text, kb)
	edit.ParseMode = tgbotapi.ModeHTML
	if _, err := b.api.Request(edit); err != nil {
		return fmt.Errorf("telegram: edit menu: %w", err)
	}
	return nil
}

// DeleteMessage removes a message from a chat.
func (b *Bot) DeleteMessage(chatID int64, messageID int) error {
	if _, err := b.api.Request(tgbotapi.NewDeleteMessage(chatID, messageID)); err != nil {
		return fmt.Errorf("telegram: delete message: %w", err)
	}
	return nil
}

// ForwardMessage forwards a message between chats.
func (b *Bot) ForwardMessage(toChatID, fromChatID int64, messageID int) error {
	if _, err := b.api.Send(tgbotapi.NewForward(toChatID, fromChatID, messageID)); err != nil {
		return fmt.Errorf("telegram: forward message: %w", err)
	}
	return nil
}

// AnswerCallback acknowledges a callback query with optional toast text.
func (b *Bot) AnswerCallback(callbackID, text string) error {
	if _, err := b.api.Request(tgbotapi.NewCallback(callbackID, text)); err != nil {
		return fmt.Errorf("telegram: answer callback: %w", err)
	}
	return nil
}

// AnswerCallbackAlert acknowledges a callback query with a modal alert.
func (b *Bot) AnswerCallbackAlert(callbackID, text string) error {
	if _, err := b.api.Request(tgbotapi.NewCallbackWithAlert(callbackID, text)); err != nil {
		return fmt.Errorf("telegram: answer callback alert: %w", err)
	}
	return nil
}

// AnswerCallbackURL acknowledges a callback query by sending the user to a
// URL (used for t.me deep links).
func (b *Bot) AnswerCallbackURL(callbackID, url string) error {
	cfg := tgbotapi.CallbackConfig{CallbackQueryID: callbackID, URL: url}
	if _, err := b.api.Request(cfg); err != nil {
		return fmt.Errorf("telegram: answer callback url: %w", err)
	}
	return nil
}

// lockedPermissions turns off everything a member could post.
var lockedPermissions = tgbotapi.ChatPermissions{
	CanSendMessages:       false,
	CanSendMediaMessages:  false,
	CanSendPolls:          false,
	CanSendOtherMessages:  false,
	CanAddWebPagePreviews: false,
	CanChangeInfo:         false,
	CanInviteUsers:        false,
	CanPinMessages:        false,
}

// memberPermissions restores a normal member: posting on, chat management
// still off.
var memberPermissions = tgbotapi.ChatPermissions{
	CanSendMessages:       true,
	CanSendMediaMessages:  true,
	CanSendPolls:          true,
	CanSendOtherMessages:  true,
	CanAddWebPagePreviews: true,
	CanChangeInfo:         false,
	CanInviteUsers:        true,
	CanPinMessages:        false,
}

func (b *Bot) restrict(chatID, userID int64, perms tgbotapi.ChatPermissions, until int64) error {
	cfg := tgbotapi.RestrictChatMemberConfig{
		ChatMemberConfig: tgbotapi.ChatMemberConfig{
			ChatID: chatID,
			UserID: userID,
		},
		UntilDate:   until,
		Permissions: &perms,
	}
	if _, err := b.api.Request(cfg); err != nil {
		return fmt.Errorf("telegram: restrict member: %w", err)
	}
	return nil
}

// RestrictUser removes all posting permissions indefinitely.
func (b *Bot) RestrictUser(chatID, userID int64) error {
	return b.restrict(chatID, userID, lockedPermissions, 0)
}

// UnrestrictUser restores normal member posting permissions.
func (b *Bot) UnrestrictUser(chatID, userID int64) error {
	return b.restrict(chatID, userID, memberPermissions, 0)
}

// MuteUntil removes posting permissions until the given time.
func (b *Bot) MuteUntil(chatID, userID int64, until time.Time) error {
	return b.restrict(chatID, userID, lockedPermissions, until.Unix())
}

// ChatMemberStatus returns the user's membership status in the chat.
func (b *Bot) ChatMemberStatus(chatID, userID int64) (string, error) {
	member, err := b.api.GetChatMember(tgbotapi.GetChatMemberConfig{
		ChatConfigWithUser: tgbotapi.ChatConfigWithUser{
			ChatID: chatID,
			UserID: userID,
		},
	})
	if err != nil {
		return "", fmt.Errorf("telegram: get chat member: %w", err)
	}
	return member.Status, nil
}
