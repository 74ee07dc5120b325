package adminpanel

import (
	"context"
	"errors"
	"fmt"
	"html"
	"log/slog"
	"strings"

	"guardbot/internal/guard/store"
	"guardbot/internal/guard/telegram"
)

const (
	minWordLen = 3

	// exportChunkLen keeps exported lists under the message size limit.
	exportChunkLen = 3500
)

// canonical maps admin input to the stored normalized form and match type.
// Entries whose normalized text keeps inner whitespace match as phrases.
func (p *Panel) canonical(input string) (norm, matchType string) {
	text := p.norm.Text(input)
	if strings.Contains(text, " ") {
		return text, store.MatchPhrase
	}
	return p.norm.Token(input), store.MatchToken
}

func (p *Panel) refreshCache(ctx context.Context) {
	if err := p.cache.Refresh(ctx); err != nil {
		slog.Error("failed to refresh lexicon cache", "err", err)
	}
}

func (p *Panel) showWordList(ctx context.Context, chatID int64, messageID, page int) error {
	total, err := p.store.CountWords(ctx)
	if err != nil {
		return fmt.Errorf("adminpanel: word list: %w", err)
	}
	if page < 0 {
		page = 0
	}
	words, err := p.store.ListWordsPage(ctx, page*pageSize, pageSize)
	if err != nil {
		return fmt.Errorf("adminpanel: word list: %w", err)
	}

	text := fmt.Sprintf("📋 Taqiqlangan so'zlar (%d ta)\nSahifa %d", total, page+1)
	if total == 0 {
		text = "Ro'yxat bo'sh."
	}

	var rows [][]telegram.Button
	for _, w := range words {
		label := w.Display()
		if !w.Enabled {
			label += " (o'chiq)"
		}
		rows = append(rows, []telegram.Button{{
			Label:        label,
			CallbackData: fmt.Sprintf("admin:word:%d:%d", w.ID, page),
		}})
	}

	var nav []telegram.Button
	if page > 0 {
		nav = append(nav, telegram.Button{Label: "⬅️", CallbackData: fmt.Sprintf("admin:list:%d", page-1)})
	}
	if (page+1)*pageSize < total {
		nav = append(nav, telegram.Button{Label: "➡️", CallbackData: fmt.Sprintf("admin:list:%d", page+1)})
	}
	if len(nav) > 0 {
		rows = append(rows, nav)
	}
	rows = append(rows, []telegram.Button{{Label: "🔙 Menyu", CallbackData: "admin:menu"}})

	return p.edit(chatID, messageID, text, rows)
}

func (p *Panel) showWordDetail(ctx context.Context, chatID int64, messageID int, id int64, page int) error {
	w, err := p.store.GetWordByID(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return p.showWordList(ctx, chatID, messageID, page)
	}
	if err != nil {
		return fmt.Errorf("adminpanel: word detail: %w", err)
	}

	state := "yoqilgan"
	toggleLabel := "🚫 O'chirish"
	if !w.Enabled {
		state = "o'chirilgan"
		toggleLabel = "✅ Yoqish"
	}
	text := fmt.Sprintf(
		"So'z: <b>%s</b>\nNormal shakl: <code>%s</code>\nTuri: %s\nHolati: %s",
		html.EscapeString(w.Display()), html.EscapeString(w.Word), w.MatchType, state)

	rows := [][]telegram.Button{
		{
			{Label: toggleLabel, CallbackData: fmt.Sprintf("admin:toggle:%d:%d", w.ID, page)},
			{Label: "🗑 Butunlay o'chirish", CallbackData: fmt.Sprintf("admin:delask:%d:%d", w.ID, page)},
		},
		{{Label: "🔙 Ro'yxat", CallbackData: fmt.Sprintf("admin:list:%d", page)}},
	}
	return p.edit(chatID, messageID, text, rows)
}

func (p *Panel) toggleWord(ctx context.Context, chatID int64, messageID int, id int64, page int) error {
	w, err := p.store.GetWordByID(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return p.showWordList(ctx, chatID, messageID, page)
	}
	if err != nil {
		return fmt.Errorf("adminpanel: toggle word: %w", err)
	}
	if err := p.store.SetWordEnabled(ctx, id, !w.Enabled); err != nil {
		return fmt.Errorf("adminpanel: toggle word: %w", err)
	}
	p.refreshCache(ctx)
	return p.showWordDetail(ctx, chatID, messageID, id, page)
}

func (p *Panel) confirmDelete(ctx context.Context, chatID int64, messageID int, id int64, page int) error {
	w, err := p.store.GetWordByID(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return p.showWordList(ctx, chatID, messageID, page)
	}
	if err != nil {
		return fmt.Errorf("adminpanel: confirm delete: %w", err)
	}

	text := fmt.Sprintf("<b>%s</b> butunlay o'chirilsinmi?", html.EscapeString(w.Display()))
	rows := [][]telegram.Button{
		{
			{Label: "Ha, o'chirilsin", CallbackData: fmt.Sprintf("admin:del:%d:%d", id, page)},
			{Label: "Yo'q", CallbackData: fmt.Sprintf("admin:word:%d:%d", id, page)},
		},
	}
	return p.edit(chatID, messageID, text, rows)
}

func (p *Panel) deleteWord(ctx context.Context, chatID int64, messageID int, id int64, page int) error {
	if err := p.store.DeleteWord(ctx, id); err != nil {
		return fmt.Errorf("adminpanel: delete word: %w", err)
	}
	p.refreshCache(ctx)
	return p.showWordList(ctx, chatID, messageID, page)
}

func (p *Panel) addWord(ctx context.Context, from telegram.User, chatID int64, input string) error {
	norm, matchType := p.canonical(input)
	if len(norm) < minWordLen {
		_, err := p.api.SendHTML(chatID, "Juda qisqa. Kamida 3 ta belgi bo'lishi kerak.")
		return err
	}

	existing, err := p.store.GetWordByNorm(ctx, norm)
	switch {
	case err == nil && existing.Enabled:
		_, err = p.api.SendHTML(chatID, "Bu so'z allaqachon ro'yxatda bor.")
		return err
	case err == nil:
		if err := p.store.SetWordEnabled(ctx, existing.ID, true); err != nil {
			return fmt.Errorf("adminpanel: add word: %w", err)
		}
		p.refreshCache(ctx)
		_, err = p.api.SendHTML(chatID, fmt.Sprintf("<b>%s</b> qayta yoqildi.", html.EscapeString(existing.Display())))
		return err
	case !errors.Is(err, store.ErrNotFound):
		return fmt.Errorf("adminpanel: add word: %w", err)
	}

	if err := p.store.InsertWord(ctx, norm, strings.TrimSpace(input), matchType, from.ID); err != nil {
		return fmt.Errorf("adminpanel: add word: %w", err)
	}
	p.refreshCache(ctx)
	_, err = p.api.SendHTML(chatID, fmt.Sprintf("<b>%s</b> ro'yxatga qo'shildi.", html.EscapeString(strings.TrimSpace(input))))
	return err
}

func (p *Panel) disableWord(ctx context.Context, chatID int64, input string) error {
	norm, _ := p.canonical(input)
	w, err := p.store.GetWordByNorm(ctx, norm)
	if errors.Is(err, store.ErrNotFound) {
		_, err := p.api.SendHTML(chatID, "Bunday so'z topilmadi.")
		return err
	}
	if err != nil {
		return fmt.Errorf("adminpanel: disable word: %w", err)
	}
	if err := p.store.SetWordEnabled(ctx, w.ID, false); err != nil {
		return fmt.Errorf("adminpanel: disable word: %w", err)
	}
	p.refreshCache(ctx)
	_, err = p.api.SendHTML(chatID, fmt.Sprintf("<b>%s</b> o'chirildi.", html.EscapeString(w.Display())))
	return err
}

func (p *Panel) searchWords(ctx context.Context, chatID int64, query string) error {
	norm, _ := p.canonical(query)
	words, err := p.store.SearchWords(ctx, norm, pageSize)
	if err != nil {
		return fmt.Errorf("adminpanel: search words: %w", err)
	}
	if len(words) == 0 {
		_, err := p.api.SendHTML(chatID, "Hech narsa topilmadi.")
		return err
	}

	var sb strings.Builder
	sb.WriteString("🔍 Topildi:\n")
	for _, w := range words {
		sb.WriteString("• ")
		sb.WriteString(html.EscapeString(w.Display()))
		if !w.Enabled {
			sb.WriteString(" (o'chiq)")
		}
		sb.WriteString("\n")
	}
	_, err = p.api.SendHTML(chatID, sb.String())
	return err
}

// importWords processes a newline-separated list, reporting how many entries
// were added, re-enabled and skipped.
func (p *Panel) importWords(ctx context.Context, from telegram.User, chatID int64, input string) error {
	var added, reenabled, skipped int
	for _, line := range strings.Split(input, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		norm, matchType := p.canonical(line)
		if len(norm) < minWordLen {
			skipped++
			continue
		}

		existing, err := p.store.GetWordByNorm(ctx, norm)
		switch {
		case err == nil && existing.Enabled:
			skipped++
		case err == nil:
			if err := p.store.SetWordEnabled(ctx, existing.ID, true); err != nil {
				return fmt.Errorf("adminpanel: import words: %w", err)
			}
			reenabled++
		case errors.Is(err, store.ErrNotFound):
			if err := p.store.InsertWord(ctx, norm, line, matchType, from.ID); err != nil {
				return fmt.Errorf("adminpanel: import words: %w", err)
			}
			added++
		default:
			return fmt.Errorf("adminpanel: import words: %w", err)
		}
	}
	p.refreshCache(ctx)

	_, err := p.api.SendHTML(chatID, fmt.Sprintf(
		"Import yakunlandi.\nQo'shildi: %d\nQayta yoqildi: %d\nO'tkazib yuborildi: %d",
		added, reenabled, skipped))
	return err
}

// exportWords sends the enabled entries as plain newline-separated chunks.
func (p *Panel) exportWords(ctx context.Context, chatID int64) error {
	words, err := p.store.ListEnabledWords(ctx)
	if err != nil {
		return fmt.Errorf("adminpanel: export words: %w", err)
	}
	if len(words) == 0 {
		_, err := p.api.SendHTML(chatID, "Ro'yxat bo'sh.")
		return err
	}

	var chunk strings.Builder
	flush := func() error {
		if chunk.Len() == 0 {
			return nil
		}
		_, err := p.api.SendHTML(chatID, "<code>"+html.EscapeString(chunk.String())+"</code>")
		chunk.Reset()
		return err
	}
	for _, w := range words {
		line := w.Display()
		if chunk.Len()+len(line)+1 > exportChunkLen {
			if err := flush(); err != nil {
				return fmt.Errorf("adminpanel: export words: %w", err)
			}
		}
		if chunk.Len() > 0 {
			chunk.WriteString("\n")
		}
		chunk.WriteString(line)
	}
	if err := flush(); err != nil {
		return fmt.Errorf("adminpanel: export words: %w", err)
	}
	return nil
}
