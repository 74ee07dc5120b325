package adminpanel

import (
	"context"
	"fmt"
	"html"

	"guardbot/internal/guard/settings"
	"guardbot/internal/guard/telegram"
)

func (p *Panel) showSettings(chatID int64, messageID int) error {
	snap := p.runtime.Snapshot()

	rows := make([][]telegram.Button, 0, len(settings.SupportedKeys)+1)
	for _, key := range settings.SupportedKeys {
		rows = append(rows, []telegram.Button{{
			Label:        fmt.Sprintf("%s = %s", key, snap[key]),
			CallbackData: "admin:set:" + key,
		}})
	}
	rows = append(rows, []telegram.Button{{Label: "🔙 Menyu", CallbackData: "admin:menu"}})

	return p.edit(chatID, messageID, "⚙️ Sozlamalar. O'zgartirish uchun tugmani bosing.", rows)
}

// applySetting validates and applies a new value for key, persisting it so it
// survives restarts. A value that fails validation is reported back verbatim.
func (p *Panel) applySetting(ctx context.Context, from telegram.User, chatID int64, key, value string) error {
	canonical, err := settings.Coerce(key, value)
	if err != nil {
		_, sendErr := p.api.SendHTML(chatID, fmt.Sprintf("Qiymat qabul qilinmadi: %s", html.EscapeString(err.Error())))
		return sendErr
	}
	if err := p.runtime.Set(key, canonical); err != nil {
		return fmt.Errorf("adminpanel: apply setting: %w", err)
	}
	if err := p.store.UpsertSetting(ctx, key, canonical, from.ID); err != nil {
		return fmt.Errorf("adminpanel: apply setting: %w", err)
	}
	_, err = p.api.SendHTML(chatID, fmt.Sprintf("Saqlandi: <b>%s</b> = <code>%s</code>", key, html.EscapeString(canonical)))
	return err
}
