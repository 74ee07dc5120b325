// Package telegram wraps the Bot API surface the daemon uses. Handlers
// depend on the API interface so tests can substitute a recording fake; the
// production implementation is a thin adapter over go-telegram-bot-api.
package telegram

import (
	"fmt"
	"time"
)

// Member statuses reported by ChatMemberStatus.
const (
	StatusCreator       = "creator"
	StatusAdministrator = "administrator"
	StatusMember        = "member"
	StatusRestricted    = "restricted"
	StatusLeft          = "left"
	StatusKicked        = "kicked"
)

// Button is one inline-keyboard callback button.
type Button struct {
	Label        string
	CallbackData string
}

// User is the platform identity attached to an update.
type User struct {
	ID        int64
	FirstName string
	LastName  string
	Username  string
	IsBot     bool
}

// FullName joins the user's first and last name, falling back to the id.
func (u User) FullName() string {
	name := u.FirstName
	if u.LastName != "" {
		if name != "" {
			name += " "
		}
		name += u.LastName
	}
	if name == "" {
		return fmt.Sprintf("ID:%d", u.ID)
	}
	return name
}

// API is the Bot API surface used by the daemon. All sends use HTML parse
// mode.
type API interface {
	// SendHTML sends a message, optionally with one row of inline buttons,
	// and returns the sent message id.
	SendHTML(chatID int64, text string, buttons ...Button) (int, error)
	// EditHTML replaces the text of an existing message.
	EditHTML(chatID int64, messageID int, text string) error
	// SendMenu sends a message with a multi-row inline keyboard.
	SendMenu(chatID int64, text string, rows [][]Button) (int, error)
	// EditMenu replaces the text and keyboard of an existing message.
	EditMenu(chatID int64, messageID int, text string, rows [][]Button) error
	DeleteMessage(chatID int64, messageID int) error
	ForwardMessage(toChatID, fromChatID int64, messageID int) error

	// AnswerCallback acknowledges a callback query with optional toast text.
	AnswerCallback(callbackID, text string) error
	// AnswerCallbackAlert acknowledges a callback query with a modal alert.
	AnswerCallbackAlert(callbackID, text string) error
	// AnswerCallbackURL acknowledges a callback query by opening a URL.
	AnswerCallbackURL(callbackID, url string) error

	// RestrictUser removes all posting permissions indefinitely.
	RestrictUser(chatID, userID int64) error
	// UnrestrictUser restores normal member posting permissions.
	UnrestrictUser(chatID, userID int64) error
	// MuteUntil removes posting permissions until the given time.
	MuteUntil(chatID, userID int64, until time.Time) error

	// ChatMemberStatus returns the user's membership status in the chat.
	ChatMemberStatus(chatID, userID int64) (string, error)

	// Username returns the bot's own username, for deep links.
	Username() string
}

// DeepLink builds a t.me /start deep link for the given bot and payload.
func DeepLink(botUsername, payload string) string {
	return fmt.Sprintf("https://t.me/%s?start=%s", botUsername, payload)
}
