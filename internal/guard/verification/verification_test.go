package verification_test

import (
	"context"
	"os"
	"strings"
	"testing"
	"time"

	"guardbot/internal/guard/normalize"
	"guardbot/internal/guard/settings"
	"guardbot/internal/guard/signing"
	"guardbot/internal/guard/store"
	"guardbot/internal/guard/telegram"
	"guardbot/internal/guard/telegram/telegramtest"
	"guardbot/internal/guard/verification"
)

const (
	testGroup  = int64(-100500)
	testSecret = "test-secret"
)

func newTestService(t *testing.T) (*verification.Service, *store.Store, *telegramtest.Fake) {
	t.Helper()
	f, err := os.CreateTemp(t.TempDir(), "verify-test-*.db")
	if err != nil {
		t.Fatalf("temp db: %v", err)
	}
	f.Close()
	st, err := store.New(f.Name())
	if err != nil {
		t.Fatalf("store.New: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	api := &telegramtest.Fake{}
	runtime := settings.NewRuntime(settings.Config{
		AdminID:        1,
		RemindAfterMin: 10,
		ExpireAfterMin: 60,
		MaxReminders:   2,
	})
	svc := verification.New(st, api, signing.New(testSecret), runtime, normalize.New(true), testGroup)
	svc.PickWord = func() string { return "apricot" }
	return svc, st, api
}

func user(id int64) telegram.User {
	return telegram.User{ID: id, FirstName: "Ali", Username: "ali"}
}

func TestOnJoin_LocksAndWelcomes(t *testing.T) {
	svc, st, api := newTestService(t)
	ctx := context.Background()

	if err := svc.OnJoin(ctx, user(100)); err != nil {
		t.Fatalf("OnJoin: %v", err)
	}

	sess, err := st.GetSession(ctx, testGroup, 100)
	if err != nil {
		t.Fatalf("GetSession: %v", err)
	}
	if sess.State != store.StateJoinedLocked {
		t.Errorf("State: got %q", sess.State)
	}
	if sess.MagicWord != "apricot" {
		t.Errorf("MagicWord: got %q", sess.MagicWord)
	}
	if !sess.WelcomeMessageID.Valid {
		t.Error("welcome message id not recorded")
	}

	if len(api.Restrictions) != 1 || api.Restrictions[0].UserID != 100 {
		t.Errorf("Restrictions: %+v", api.Restrictions)
	}
	sent := api.LastSent()
	if sent == nil || sent.ChatID != testGroup {
		t.Fatalf("welcome not sent to group: %+v", sent)
	}
	if len(sent.Buttons) != 1 || !strings.HasPrefix(sent.Buttons[0].CallbackData, "agree:100:") {
		t.Errorf("agree button: %+v", sent.Buttons)
	}
}

func TestOnJoin_ApprovedUserUntouched(t *testing.T) {
	svc, st, api := newTestService(t)
	ctx := context.Background()

	if err := st.ApproveMember(ctx, testGroup, 100); err != nil {
		t.Fatalf("ApproveMember: %v", err)
	}
	if err := svc.OnJoin(ctx, user(100)); err != nil {
		t.Fatalf("OnJoin: %v", err)
	}

	if len(api.Restrictions) != 0 || len(api.Sent) != 0 {
		t.Errorf("approved user was processed: restrictions=%d sent=%d", len(api.Restrictions), len(api.Sent))
	}
	if _, err := st.GetSession(ctx, testGroup, 100); err == nil {
		t.Error("session created for an approved user")
	}
}

func TestOnJoin_BotIgnored(t *testing.T) {
	svc, _, api := newTestService(t)

	if err := svc.OnJoin(context.Background(), telegram.User{ID: 7, IsBot: true}); err != nil {
		t.Fatalf("OnJoin: %v", err)
	}
	if len(api.Sent) != 0 {
		t.Error("bot join produced messages")
	}
}

// Full happy path: join, button press, deep link, magic word.
func TestHappyPath(t *testing.T) {
	svc, st, api := newTestService(t)
	ctx := context.Background()

	if err := svc.OnJoin(ctx, user(100)); err != nil {
		t.Fatalf("OnJoin: %v", err)
	}
	callbackData := api.LastSent().Buttons[0].CallbackData

	// Button press answers with a deep link.
	if err := svc.OnAgreeCallback(ctx, "cb1", user(100), callbackData); err != nil {
		t.Fatalf("OnAgreeCallback: %v", err)
	}
	cb := api.Callbacks[len(api.Callbacks)-1]
	if cb.URL == "" || !strings.Contains(cb.URL, "?start=agree_") {
		t.Fatalf("callback answer: %+v", cb)
	}

	// The /start payload is everything after "agree_".
	payload := cb.URL[strings.Index(cb.URL, "agree_")+len("agree_"):]
	if err := svc.OnStart(ctx, user(100), payload); err != nil {
		t.Fatalf("OnStart: %v", err)
	}

	sess, err := st.GetSession(ctx, testGroup, 100)
	if err != nil {
		t.Fatalf("GetSession: %v", err)
	}
	if sess.State != store.StateWaitingConfirm {
		t.Errorf("State after /start: got %q", sess.State)
	}
	rules := api.SentTo(100)
	if len(rules) == 0 || !strings.Contains(rules[len(rules)-1].Text, "<b>apricot</b>") {
		t.Errorf("rules dm: %+v", rules)
	}

	// Magic word with different case still matches.
	if err := svc.OnPrivateMessage(ctx, user(100), "Apricot", 0, ""); err != nil {
		t.Fatalf("OnPrivateMessage: %v", err)
	}

	sess, err = st.GetSession(ctx, testGroup, 100)
	if err != nil {
		t.Fatalf("GetSession: %v", err)
	}
	if sess.State != store.StateConfirmed {
		t.Errorf("State after magic word: got %q", sess.State)
	}
	if sess.ReminderCount != 2 || !sess.RemindAt.Equal(sess.ExpiresAt) {
		t.Errorf("reminders not descheduled: count=%d", sess.ReminderCount)
	}

	approved, err := st.IsApproved(ctx, testGroup, 100)
	if err != nil {
		t.Fatalf("IsApproved: %v", err)
	}
	if !approved {
		t.Error("user not approved")
	}
	if len(api.Unrestricted) != 1 || api.Unrestricted[0].UserID != 100 {
		t.Errorf("Unrestricted: %+v", api.Unrestricted)
	}
	if len(api.Edits) != 1 {
		t.Errorf("welcome message not edited: %+v", api.Edits)
	}
	dm := api.SentTo(100)
	if len(dm) == 0 || dm[len(dm)-1].Text == "" {
		t.Error("confirmation dm missing")
	}
}

func TestOnAgreeCallback_WrongUserGetsAlert(t *testing.T) {
	svc, _, api := newTestService(t)
	ctx := context.Background()

	if err := svc.OnJoin(ctx, user(100)); err != nil {
		t.Fatalf("OnJoin: %v", err)
	}
	callbackData := api.LastSent().Buttons[0].CallbackData

	if err := svc.OnAgreeCallback(ctx, "cb1", user(200), callbackData); err != nil {
		t.Fatalf("OnAgreeCallback: %v", err)
	}
	cb := api.Callbacks[len(api.Callbacks)-1]
	if !cb.Alert || cb.Text == "" {
		t.Errorf("expected alert answer, got %+v", cb)
	}
	if cb.URL != "" {
		t.Error("wrong user received the deep link")
	}
}

func TestOnAgreeCallback_TamperedSignatureSilent(t *testing.T) {
	svc, st, api := newTestService(t)
	ctx := context.Background()

	if err := svc.OnJoin(ctx, user(100)); err != nil {
		t.Fatalf("OnJoin: %v", err)
	}
	callbackData := api.LastSent().Buttons[0].CallbackData

	// Flip the final signature character.
	last := callbackData[len(callbackData)-1]
	flip := byte('A')
	if last == 'A' {
		flip = 'B'
	}
	tampered := callbackData[:len(callbackData)-1] + string(flip)

	if err := svc.OnAgreeCallback(ctx, "cb1", user(100), tampered); err != nil {
		t.Fatalf("OnAgreeCallback: %v", err)
	}
	cb := api.Callbacks[len(api.Callbacks)-1]
	if cb.Alert || cb.Text != "" || cb.URL != "" {
		t.Errorf("tampered signature not answered silently: %+v", cb)
	}

	sess, err := st.GetSession(ctx, testGroup, 100)
	if err != nil {
		t.Fatalf("GetSession: %v", err)
	}
	if sess.State != store.StateJoinedLocked {
		t.Errorf("state changed on tampered callback: %q", sess.State)
	}
}

func TestOnStart_ExpiredSessionRejected(t *testing.T) {
	svc, st, api := newTestService(t)
	ctx := context.Background()

	if err := svc.OnJoin(ctx, user(100)); err != nil {
		t.Fatalf("OnJoin: %v", err)
	}
	sess, err := st.GetSession(ctx, testGroup, 100)
	if err != nil {
		t.Fatalf("GetSession: %v", err)
	}

	// Jump past the expiry.
	svc.Now = func() time.Time { return time.Now().Add(2 * time.Hour) }

	payload := signing.New(testSecret).StartPayload(testGroup, 100, sess.ID)
	if err := svc.OnStart(ctx, user(100), payload); err != nil {
		t.Fatalf("OnStart: %v", err)
	}

	got, err := st.GetSession(ctx, testGroup, 100)
	if err != nil {
		t.Fatalf("GetSession: %v", err)
	}
	if got.State != store.StateJoinedLocked {
		t.Errorf("expired session advanced: %q", got.State)
	}
	if len(api.SentTo(100)) != 0 {
		t.Error("rules sent for an expired session")
	}

	// The magic word is rejected too; the user stays restricted.
	if err := svc.OnPrivateMessage(ctx, user(100), "apricot", 0, ""); err != nil {
		t.Fatalf("OnPrivateMessage: %v", err)
	}
	if len(api.Unrestricted) != 0 {
		t.Error("expired session unlocked the user")
	}
}

func TestOnPrivateMessage_WrongWordIgnored(t *testing.T) {
	svc, st, api := newTestService(t)
	ctx := context.Background()

	if err := svc.OnJoin(ctx, user(100)); err != nil {
		t.Fatalf("OnJoin: %v", err)
	}
	if err := svc.OnPrivateMessage(ctx, user(100), "banana", 0, ""); err != nil {
		t.Fatalf("OnPrivateMessage: %v", err)
	}

	sess, err := st.GetSession(ctx, testGroup, 100)
	if err != nil {
		t.Fatalf("GetSession: %v", err)
	}
	if sess.State != store.StateJoinedLocked {
		t.Errorf("wrong word advanced the session: %q", sess.State)
	}
	if len(api.Unrestricted) != 0 {
		t.Error("wrong word unlocked the user")
	}
}

func TestOnPrivateMessage_ContactPersistsPhone(t *testing.T) {
	svc, st, _ := newTestService(t)
	ctx := context.Background()

	// No session at all; the phone still lands in the profile.
	if err := svc.OnPrivateMessage(ctx, user(100), "", 100, "+998901234567"); err != nil {
		t.Fatalf("OnPrivateMessage: %v", err)
	}
	p, err := st.GetProfile(ctx, 100)
	if err != nil {
		t.Fatalf("GetProfile: %v", err)
	}
	if !p.PhoneNumber.Valid || p.PhoneNumber.String != "+998901234567" {
		t.Errorf("PhoneNumber: %+v", p.PhoneNumber)
	}

	// A contact for somebody else is ignored.
	if err := svc.OnPrivateMessage(ctx, user(200), "", 100, "+998907654321"); err != nil {
		t.Fatalf("OnPrivateMessage: %v", err)
	}
	if _, err := st.GetProfile(ctx, 200); err != nil {
		t.Fatalf("GetProfile: %v", err)
	}
	p200, _ := st.GetProfile(ctx, 200)
	if p200.PhoneNumber.Valid {
		t.Errorf("foreign contact persisted a phone: %+v", p200.PhoneNumber)
	}
}

func TestRejoinResetsSession(t *testing.T) {
	svc, st, _ := newTestService(t)
	ctx := context.Background()

	if err := svc.OnJoin(ctx, user(100)); err != nil {
		t.Fatalf("OnJoin: %v", err)
	}
	first, err := st.GetSession(ctx, testGroup, 100)
	if err != nil {
		t.Fatalf("GetSession: %v", err)
	}
	if err := st.SetSessionState(ctx, first.ID, store.StateWaitingConfirm); err != nil {
		t.Fatalf("SetSessionState: %v", err)
	}

	svc.PickWord = func() string { return "walnut" }
	if err := svc.OnJoin(ctx, user(100)); err != nil {
		t.Fatalf("OnJoin (rejoin): %v", err)
	}

	second, err := st.GetSession(ctx, testGroup, 100)
	if err != nil {
		t.Fatalf("GetSession: %v", err)
	}
	if second.State != store.StateJoinedLocked {
		t.Errorf("rejoin state: %q", second.State)
	}
	if second.MagicWord != "walnut" {
		t.Errorf("rejoin magic word: %q", second.MagicWord)
	}
	if second.ReminderCount != 0 {
		t.Errorf("rejoin reminder count: %d", second.ReminderCount)
	}
}

func TestAnnounceSuccess_EditFallsBackToSend(t *testing.T) {
	svc, _, api := newTestService(t)
	ctx := context.Background()

	if err := svc.OnJoin(ctx, user(100)); err != nil {
		t.Fatalf("OnJoin: %v", err)
	}
	api.Fail = map[string]bool{"EditHTML": true}

	if err := svc.OnPrivateMessage(ctx, user(100), "apricot", 0, ""); err != nil {
		t.Fatalf("OnPrivateMessage: %v", err)
	}

	group := api.SentTo(testGroup)
	// Welcome plus the fallback success announcement.
	if len(group) != 2 {
		t.Fatalf("group messages: got %d, want 2", len(group))
	}
	if !strings.Contains(group[1].Text, "rozilik bildirdi") {
		t.Errorf("fallback announcement text: %q", group[1].Text)
	}
}
