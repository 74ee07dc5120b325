// Package app is the composition root: it wires the store, the Bot API
// client and the handler services together and runs the update loop.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"guardbot/internal/guard/adminpanel"
	"guardbot/internal/guard/aimod"
	"guardbot/internal/guard/dispatch"
	"guardbot/internal/guard/lexicon"
	"guardbot/internal/guard/moderation"
	"guardbot/internal/guard/normalize"
	"guardbot/internal/guard/reminder"
	"guardbot/internal/guard/settings"
	"guardbot/internal/guard/signing"
	"guardbot/internal/guard/store"
	"guardbot/internal/guard/telegram"
	"guardbot/internal/guard/verification"
)

// App holds the assembled daemon.
type App struct {
	cfg    *settings.Config
	store  *store.Store
	bot    *telegram.Bot
	worker *reminder.Worker
	disp   *dispatch.Dispatcher
}

// New builds the daemon from the configuration: opens the store, applies
// persisted runtime overrides, seeds and loads the lexicon, and wires the
// services.
func New(ctx context.Context, cfg *settings.Config) (*App, error) {
	st, err := store.New(cfg.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("app: open store: %w", err)
	}

	runtime := settings.NewRuntime(*cfg)
	if err := runtime.LoadFromStore(ctx, st); err != nil {
		st.Close()
		return nil, fmt.Errorf("app: %w", err)
	}

	norm := normalize.New(cfg.CaseInsensitive)
	seeded, err := lexicon.SeedFromFile(ctx, st, norm, cfg.ProhibitedWordsPath, runtime.PrimaryAdmin())
	if err != nil {
		st.Close()
		return nil, fmt.Errorf("app: %w", err)
	}
	if seeded > 0 {
		slog.Info("seeded prohibited words", "count", seeded, "path", cfg.ProhibitedWordsPath)
	}

	cache := lexicon.NewCache(st, norm)
	if err := cache.Refresh(ctx); err != nil {
		st.Close()
		return nil, fmt.Errorf("app: %w", err)
	}

	bot, err := telegram.NewBot(cfg.BotToken)
	if err != nil {
		st.Close()
		return nil, fmt.Errorf("app: %w", err)
	}
	slog.Info("authorized", "bot", bot.Username())

	verify := verification.New(st, bot, signing.New(cfg.SecretKey), runtime, norm, cfg.GroupID)
	classifier := aimod.New(aimod.Config{
		APIKey:  cfg.OpenRouterAPIKey,
		BaseURL: cfg.OpenRouterBaseURL,
		Model:   cfg.OpenRouterModel,
		Timeout: time.Duration(cfg.OpenRouterTimeoutSec) * time.Second,
		Labels:  strings.Join(cfg.AIProhibitedLabels, ","),
	})
	mod := moderation.New(st, bot, cache, classifier, runtime, cfg.GroupID, cfg.Location())
	panel := adminpanel.New(st, bot, cache, norm, runtime)

	return &App{
		cfg:    cfg,
		store:  st,
		bot:    bot,
		worker: reminder.New(st, bot, verify, runtime, cfg.GroupID),
		disp:   dispatch.New(bot, verify, mod, panel, cfg.GroupID),
	}, nil
}

// Run long-polls for updates until the context is cancelled, then drains
// in-flight handlers before returning.
func (a *App) Run(ctx context.Context) error {
	go a.worker.Run(ctx)

	cfg := tgbotapi.NewUpdate(0)
	cfg.Timeout = 30
	cfg.AllowedUpdates = []string{"message", "callback_query", "chat_member"}
	updates := a.bot.Raw().GetUpdatesChan(cfg)

	go func() {
		<-ctx.Done()
		a.bot.Raw().StopReceivingUpdates()
	}()

	slog.Info("update loop started", "group", a.cfg.GroupID)
	a.disp.Run(ctx, updates)
	slog.Info("update loop stopped")
	return nil
}

// Close releases the store.
func (a *App) Close() error {
	return a.store.Close()
}
