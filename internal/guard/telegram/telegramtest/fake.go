// Package telegramtest provides a recording fake of the telegram.API
// interface for handler tests.
package telegramtest

import (
	"fmt"
	"sync"
	"time"

	"guardbot/internal/guard/telegram"
)

// Sent records one SendHTML call.
type Sent struct {
	ChatID  int64
	Text    string
	Buttons []telegram.Button
}

// Edited records one EditHTML or EditMenu call.
type Edited struct {
	ChatID    int64
	MessageID int
	Text      string
	Rows      [][]telegram.Button
}

// Menu records one SendMenu call.
type Menu struct {
	ChatID int64
	Text   string
	Rows   [][]telegram.Button
}

// Deleted records one DeleteMessage call.
type Deleted struct {
	ChatID    int64
	MessageID int
}

// Forwarded records one ForwardMessage call.
type Forwarded struct {
	ToChatID   int64
	FromChatID int64
	MessageID  int
}

// Callback records one callback answer of any variant.
type Callback struct {
	ID    string
	Text  string
	URL   string
	Alert bool
}

// Restriction records one permission change.
type Restriction struct {
	ChatID int64
	UserID int64
	Muted  bool
	Until  time.Time
}

// Fake is an in-memory telegram.API that records every call. The zero value
// is usable; configure Statuses and the Fail set as needed.
type Fake struct {
	mu sync.Mutex

	// Statuses maps user id to the status ChatMemberStatus reports.
	// Users not present report "member".
	Statuses map[int64]string

	// Fail lists method names that should return an error, e.g. "EditHTML".
	Fail map[string]bool

	BotUsername string

	nextMessageID int

	Sent         []Sent
	Menus        []Menu
	Edits        []Edited
	Deletes      []Deleted
	Forwards     []Forwarded
	Callbacks    []Callback
	Restrictions []Restriction
	Unrestricted []Restriction
}

var _ telegram.API = (*Fake)(nil)

func (f *Fake) fails(method string) error {
	if f.Fail[method] {
		return fmt.Errorf("telegramtest: %s failed", method)
	}
	return nil
}

func (f *Fake) SendHTML(chatID int64, text string, buttons ...telegram.Button) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.fails("SendHTML"); err != nil {
		return 0, err
	}
	f.nextMessageID++
	f.Sent = append(f.Sent, Sent{ChatID: chatID, Text: text, Buttons: buttons})
	return f.nextMessageID, nil
}

func (f *Fake) EditHTML(chatID int64, messageID int, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.fails("EditHTML"); err != nil {
		return err
	}
	f.Edits = append(f.Edits, Edited{ChatID: chatID, MessageID: messageID, Text: text})
	return nil
}

func (f *Fake) SendMenu(chatID int64, text string, rows [][]telegram.Button) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.fails("SendMenu"); err != nil {
		return 0, err
	}
	f.nextMessageID++
	f.Menus = append(f.Menus, Menu{ChatID: chatID, Text: text, Rows: rows})
	return f.nextMessageID, nil
}

func (f *Fake) EditMenu(chatID int64, messageID int, text string, rows [][]telegram.Button) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.fails("EditMenu"); err != nil {
		return err
	}
	f.Edits = append(f.Edits, Edited{ChatID: chatID, MessageID: messageID, Text: text, Rows: rows})
	return nil
}

func (f *Fake) DeleteMessage(chatID int64, messageID int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.fails("DeleteMessage"); err != nil {
		return err
	}
	f.Deletes = append(f.Deletes, Deleted{ChatID: chatID, MessageID: messageID})
	return nil
}

func (f *Fake) ForwardMessage(toChatID, fromChatID int64, messageID int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.fails("ForwardMessage"); err != nil {
		return err
	}
	f.Forwards = append(f.Forwards, Forwarded{ToChatID: toChatID, FromChatID: fromChatID, MessageID: messageID})
	return nil
}

func (f *Fake) AnswerCallback(callbackID, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.fails("AnswerCallback"); err != nil {
		return err
	}
	f.Callbacks = append(f.Callbacks, Callback{ID: callbackID, Text: text})
	return nil
}

func (f *Fake) AnswerCallbackAlert(callbackID, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.fails("AnswerCallbackAlert"); err != nil {
		return err
	}
	f.Callbacks = append(f.Callbacks, Callback{ID: callbackID, Text: text, Alert: true})
	return nil
}

func (f *Fake) AnswerCallbackURL(callbackID, url string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.fails("AnswerCallbackURL"); err != nil {
		return err
	}
	f.Callbacks = append(f.Callbacks, Callback{ID: callbackID, URL: url})
	return nil
}

func (f *Fake) RestrictUser(chatID, userID int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.fails("RestrictUser"); err != nil {
		return err
	}
	f.Restrictions = append(f.Restrictions, Restriction{ChatID: chatID, UserID: userID})
	return nil
}

func (f *Fake) UnrestrictUser(chatID, userID int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.fails("UnrestrictUser"); err != nil {
		return err
	}
	f.Unrestricted = append(f.Unrestricted, Restriction{ChatID: chatID, UserID: userID})
	return nil
}

func (f *Fake) MuteUntil(chatID, userID int64, until time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.fails("MuteUntil"); err != nil {
		return err
	}
	f.Restrictions = append(f.Restrictions, Restriction{ChatID: chatID, UserID: userID, Muted: true, Until: until})
	return nil
}

func (f *Fake) ChatMemberStatus(chatID, userID int64) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.fails("ChatMemberStatus"); err != nil {
		return "", err
	}
	if status, ok := f.Statuses[userID]; ok {
		return status, nil
	}
	return telegram.StatusMember, nil
}

func (f *Fake) Username() string {
	if f.BotUsername == "" {
		return "guardbot"
	}
	return f.BotUsername
}

// LastMenu returns the most recent SendMenu call, or nil.
func (f *Fake) LastMenu() *Menu {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.Menus) == 0 {
		return nil
	}
	return &f.Menus[len(f.Menus)-1]
}

// LastEdit returns the most recent edit of either kind, or nil.
func (f *Fake) LastEdit() *Edited {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.Edits) == 0 {
		return nil
	}
	return &f.Edits[len(f.Edits)-1]
}

// LastSent returns the most recent SendHTML call, or nil.
func (f *Fake) LastSent() *Sent {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.Sent) == 0 {
		return nil
	}
	return &f.Sent[len(f.Sent)-1]
}

// SentTo returns every SendHTML call addressed to chatID.
func (f *Fake) SentTo(chatID int64) []Sent {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []Sent
	for _, s := range f.Sent {
		if s.ChatID == chatID {
			out = append(out, s)
		}
	}
	return out
}
