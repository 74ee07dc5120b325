// Package adminpanel implements the private-chat admin menu: lexicon
// management (list, add, disable, search, bulk import, export) and runtime
// setting edits. All entry points silently ignore non-admins.
package adminpanel

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"

	"guardbot/internal/guard/lexicon"
	"guardbot/internal/guard/normalize"
	"guardbot/internal/guard/settings"
	"guardbot/internal/guard/store"
	"guardbot/internal/guard/telegram"
)

// CallbackPrefix marks callback queries routed to the panel.
const CallbackPrefix = "admin:"

const pageSize = 10

// Input prompts awaited from the admin.
const (
	modeAdd     = "add"
	modeRemove  = "remove"
	modeSearch  = "search"
	modeImport  = "import"
	modeSetting = "setting"
)

type pending struct {
	mode string
	key  string
}

// Panel drives the admin menu. One pending prompt is tracked per admin chat;
// a new prompt replaces the previous one.
type Panel struct {
	store   *store.Store
	api     telegram.API
	cache   *lexicon.Cache
	norm    *normalize.Normalizer
	runtime *settings.Runtime

	mu      sync.Mutex
	pending map[int64]pending
}

// New wires the admin panel.
func New(st *store.Store, api telegram.API, cache *lexicon.Cache, norm *normalize.Normalizer, runtime *settings.Runtime) *Panel {
	return &Panel{
		store:   st,
		api:     api,
		cache:   cache,
		norm:    norm,
		runtime: runtime,
		pending: make(map[int64]pending),
	}
}

func (p *Panel) authorized(userID int64) bool {
	return p.runtime.Base().AdminPanelEnabled && p.runtime.IsAdmin(userID)
}

func (p *Panel) setPending(chatID int64, mode, key string) {
	p.mu.Lock()
	p.pending[chatID] = pending{mode: mode, key: key}
	p.mu.Unlock()
}

func (p *Panel) takePending(chatID int64) (pending, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	pn, ok := p.pending[chatID]
	if ok {
		delete(p.pending, chatID)
	}
	return pn, ok
}

// HandleAdminCommand opens the main menu in response to /admin.
func (p *Panel) HandleAdminCommand(ctx context.Context, from telegram.User, chatID int64) error {
	if !p.authorized(from.ID) {
		return nil
	}
	p.takePending(chatID)
	if _, err := p.api.SendMenu(chatID, "🛠 Admin panel", p.mainMenuRows()); err != nil {
		return fmt.Errorf("adminpanel: open menu: %w", err)
	}
	return nil
}

// HandleCancel drops any pending prompt in response to /cancel.
func (p *Panel) HandleCancel(ctx context.Context, from telegram.User, chatID int64) error {
	if !p.authorized(from.ID) {
		return nil
	}
	if _, ok := p.takePending(chatID); !ok {
		return nil
	}
	if _, err := p.api.SendHTML(chatID, "Bekor qilindi."); err != nil {
		return fmt.Errorf("adminpanel: cancel: %w", err)
	}
	return nil
}

func (p *Panel) mainMenuRows() [][]telegram.Button {
	return [][]telegram.Button{
		{{Label: "📋 So'zlar ro'yxati", CallbackData: "admin:list:0"}},
		{
			{Label: "➕ Qo'shish", CallbackData: "admin:add"},
			{Label: "➖ O'chirish", CallbackData: "admin:remove"},
		},
		{{Label: "🔍 Qidirish", CallbackData: "admin:search"}},
		{
			{Label: "📥 Import", CallbackData: "admin:import"},
			{Label: "📤 Export", CallbackData: "admin:export"},
		},
		{{Label: "⚙️ Sozlamalar", CallbackData: "admin:settings"}},
	}
}

// HandleCallback routes one "admin:" callback query.
func (p *Panel) HandleCallback(ctx context.Context, callbackID string, from telegram.User, chatID int64, messageID int, data string) error {
	if !p.authorized(from.ID) {
		return p.api.AnswerCallback(callbackID, "")
	}
	rest, ok := strings.CutPrefix(data, CallbackPrefix)
	if !ok {
		return p.api.AnswerCallback(callbackID, "")
	}
	if err := p.api.AnswerCallback(callbackID, ""); err != nil {
		slog.Warn("failed to answer admin callback", "err", err)
	}

	action, arg, _ := strings.Cut(rest, ":")
	switch action {
	case "menu":
		return p.edit(chatID, messageID, "🛠 Admin panel", p.mainMenuRows())
	case "list":
		return p.showWordList(ctx, chatID, messageID, atoiOr(arg, 0))
	case "word":
		id, page := splitIDPage(arg)
		return p.showWordDetail(ctx, chatID, messageID, id, page)
	case "toggle":
		id, page := splitIDPage(arg)
		return p.toggleWord(ctx, chatID, messageID, id, page)
	case "delask":
		id, page := splitIDPage(arg)
		return p.confirmDelete(ctx, chatID, messageID, id, page)
	case "del":
		id, page := splitIDPage(arg)
		return p.deleteWord(ctx, chatID, messageID, id, page)
	case "add":
		return p.prompt(chatID, modeAdd, "", "Yangi taqiqlangan so'z yoki iborani yuboring. /cancel bilan bekor qilinadi.")
	case "remove":
		return p.prompt(chatID, modeRemove, "", "O'chiriladigan so'zni yuboring. /cancel bilan bekor qilinadi.")
	case "search":
		return p.prompt(chatID, modeSearch, "", "Qidiruv so'rovini yuboring.")
	case "import":
		return p.prompt(chatID, modeImport, "", "Har bir qatorda bitta so'z yoki ibora bo'lgan ro'yxatni yuboring.")
	case "export":
		return p.exportWords(ctx, chatID)
	case "settings":
		return p.showSettings(chatID, messageID)
	case "set":
		if !isSupportedKey(arg) {
			return nil
		}
		return p.prompt(chatID, modeSetting, arg, fmt.Sprintf("%s uchun yangi qiymatni yuboring.", arg))
	}
	slog.Debug("unknown admin callback", "data", data)
	return nil
}

// HandleInput consumes a text message when a prompt is pending. It reports
// whether the message was consumed so the dispatcher can fall through to the
// verification flow otherwise.
func (p *Panel) HandleInput(ctx context.Context, from telegram.User, chatID int64, text string) (bool, error) {
	if !p.authorized(from.ID) {
		return false, nil
	}
	pn, ok := p.takePending(chatID)
	if !ok {
		return false, nil
	}

	var err error
	switch pn.mode {
	case modeAdd:
		err = p.addWord(ctx, from, chatID, text)
	case modeRemove:
		err = p.disableWord(ctx, chatID, text)
	case modeSearch:
		err = p.searchWords(ctx, chatID, text)
	case modeImport:
		err = p.importWords(ctx, from, chatID, text)
	case modeSetting:
		err = p.applySetting(ctx, from, chatID, pn.key, text)
	default:
		return false, nil
	}
	return true, err
}

func (p *Panel) prompt(chatID int64, mode, key, text string) error {
	p.setPending(chatID, mode, key)
	if _, err := p.api.SendHTML(chatID, text); err != nil {
		return fmt.Errorf("adminpanel: prompt: %w", err)
	}
	return nil
}

// edit updates a menu message in place, sending a fresh one when the edit is
// rejected (e.g. the message is too old).
func (p *Panel) edit(chatID int64, messageID int, text string, rows [][]telegram.Button) error {
	if err := p.api.EditMenu(chatID, messageID, text, rows); err == nil {
		return nil
	}
	if _, err := p.api.SendMenu(chatID, text, rows); err != nil {
		return fmt.Errorf("adminpanel: render view: %w", err)
	}
	return nil
}

func atoiOr(s string, def int) int {
	n, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return n
}

func splitIDPage(arg string) (int64, int) {
	idStr, pageStr, _ := strings.Cut(arg, ":")
	id, _ := strconv.ParseInt(idStr, 10, 64)
	return id, atoiOr(pageStr, 0)
}

func isSupportedKey(key string) bool {
	for _, k := range settings.SupportedKeys {
		if k == key {
			return true
		}
	}
	return false
}
