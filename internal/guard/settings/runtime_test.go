package settings_test

import (
	"context"
	"os"
	"testing"
	"time"

	"guardbot/internal/guard/settings"
	"guardbot/internal/guard/store"
)

func baseConfig() settings.Config {
	return settings.Config{
		AdminID:             1,
		AdminIDs:            []int64{2, 3},
		RemindAfterMin:      10,
		ExpireAfterMin:      60,
		MaxReminders:        2,
		MuteMinutes:         10,
		AIModerationEnabled: true,
	}
}

func TestRuntime_BaseValues(t *testing.T) {
	r := settings.NewRuntime(baseConfig())

	if got := r.RemindAfter(); got != 10*time.Minute {
		t.Errorf("RemindAfter: got %v", got)
	}
	if got := r.ExpireAfter(); got != time.Hour {
		t.Errorf("ExpireAfter: got %v", got)
	}
	if got := r.MaxReminders(); got != 2 {
		t.Errorf("MaxReminders: got %d", got)
	}
	if !r.AIModerationEnabled() {
		t.Error("AIModerationEnabled: got false")
	}
}

func TestRuntime_OverridePrecedence(t *testing.T) {
	r := settings.NewRuntime(baseConfig())

	if err := r.Set("MAX_REMINDERS", "5"); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if err := r.Set("AI_MODERATION_ENABLED", "off"); err != nil {
		t.Fatalf("Set: %v", err)
	}

	if got := r.MaxReminders(); got != 5 {
		t.Errorf("MaxReminders: got %d, want 5", got)
	}
	if r.AIModerationEnabled() {
		t.Error("AIModerationEnabled override ignored")
	}
}

func TestRuntime_AdminRoster(t *testing.T) {
	r := settings.NewRuntime(baseConfig())

	ids := r.AdminIDs()
	if len(ids) != 3 || ids[0] != 1 {
		t.Errorf("AdminIDs: got %v", ids)
	}
	if r.PrimaryAdmin() != 1 {
		t.Errorf("PrimaryAdmin: got %d, want 1", r.PrimaryAdmin())
	}
	if !r.IsAdmin(3) || r.IsAdmin(99) {
		t.Error("IsAdmin roster membership wrong")
	}

	if err := r.Set("ADMIN_IDS", "7, 8"); err != nil {
		t.Fatalf("Set: %v", err)
	}
	ids = r.AdminIDs()
	if len(ids) != 3 || ids[0] != 1 || ids[1] != 7 || ids[2] != 8 {
		t.Errorf("AdminIDs after override: got %v", ids)
	}
}

func TestCoerce_RejectsBadValues(t *testing.T) {
	cases := []struct{ key, value string }{
		{"MAX_REMINDERS", "abc"},
		{"MAX_REMINDERS", "-1"},
		{"AI_MODERATION_ENABLED", "maybe"},
		{"ADMIN_IDS", "not,numbers"},
		{"UNKNOWN_KEY", "1"},
	}
	for _, c := range cases {
		if _, err := settings.Coerce(c.key, c.value); err == nil {
			t.Errorf("Coerce(%q, %q): expected error", c.key, c.value)
		}
	}
}

func TestCoerce_Canonicalizes(t *testing.T) {
	got, err := settings.Coerce("AI_MODERATION_ENABLED", "Yes")
	if err != nil {
		t.Fatalf("Coerce: %v", err)
	}
	if got != "true" {
		t.Errorf("Coerce boolean: got %q, want %q", got, "true")
	}

	got, err = settings.Coerce("ADMIN_IDS", " 7 , 8 ")
	if err != nil {
		t.Fatalf("Coerce: %v", err)
	}
	if got != "7,8" {
		t.Errorf("Coerce id list: got %q, want %q", got, "7,8")
	}
}

func TestRuntime_SetRejectsInvalid(t *testing.T) {
	r := settings.NewRuntime(baseConfig())
	if err := r.Set("MAX_REMINDERS", "many"); err == nil {
		t.Error("Set accepted a non-numeric value")
	}
	if got := r.MaxReminders(); got != 2 {
		t.Errorf("failed Set changed the value: %d", got)
	}
}

func TestRuntime_LoadFromStore(t *testing.T) {
	f, err := os.CreateTemp(t.TempDir(), "settings-test-*.db")
	if err != nil {
		t.Fatalf("temp db: %v", err)
	}
	f.Close()
	st, err := store.New(f.Name())
	if err != nil {
		t.Fatalf("store.New: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	ctx := context.Background()
	if err := st.UpsertSetting(ctx, "MUTE_MINUTES", "25", 1); err != nil {
		t.Fatalf("UpsertSetting: %v", err)
	}
	// Invalid persisted value and unsupported key are both skipped.
	if err := st.UpsertSetting(ctx, "MAX_REMINDERS", "garbage", 1); err != nil {
		t.Fatalf("UpsertSetting: %v", err)
	}
	if err := st.UpsertSetting(ctx, "NOT_A_KEY", "1", 1); err != nil {
		t.Fatalf("UpsertSetting: %v", err)
	}

	r := settings.NewRuntime(baseConfig())
	if err := r.LoadFromStore(ctx, st); err != nil {
		t.Fatalf("LoadFromStore: %v", err)
	}

	if got := r.MuteDuration(); got != 25*time.Minute {
		t.Errorf("MuteDuration: got %v, want 25m", got)
	}
	if got := r.MaxReminders(); got != 2 {
		t.Errorf("MaxReminders: got %d, want base 2", got)
	}
}

func TestRuntime_Snapshot(t *testing.T) {
	r := settings.NewRuntime(baseConfig())
	if err := r.Set("MUTE_MINUTES", "15"); err != nil {
		t.Fatalf("Set: %v", err)
	}

	snap := r.Snapshot()
	if snap["MUTE_MINUTES"] != "15" {
		t.Errorf("MUTE_MINUTES: got %q", snap["MUTE_MINUTES"])
	}
	if snap["REMIND_AFTER_MIN"] != "10" {
		t.Errorf("REMIND_AFTER_MIN: got %q", snap["REMIND_AFTER_MIN"])
	}
	if snap["ADMIN_IDS"] != "2,3" {
		t.Errorf("ADMIN_IDS: got %q", snap["ADMIN_IDS"])
	}
}
