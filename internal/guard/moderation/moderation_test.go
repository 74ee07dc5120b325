package moderation_test

import (
	"context"
	"os"
	"strings"
	"testing"
	"time"

	"guardbot/internal/guard/aimod"
	"guardbot/internal/guard/lexicon"
	"guardbot/internal/guard/moderation"
	"guardbot/internal/guard/normalize"
	"guardbot/internal/guard/settings"
	"guardbot/internal/guard/store"
	"guardbot/internal/guard/telegram"
	"guardbot/internal/guard/telegram/telegramtest"
)

const (
	testGroup = int64(-100500)
	adminID   = int64(1)
)

type fakeClassifier struct {
	decision *aimod.Decision
	calls    int
}

func (f *fakeClassifier) Classify(ctx context.Context, text string) *aimod.Decision {
	f.calls++
	return f.decision
}

type fixture struct {
	svc        *moderation.Service
	store      *store.Store
	api        *telegramtest.Fake
	classifier *fakeClassifier
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f, err := os.CreateTemp(t.TempDir(), "moderation-test-*.db")
	if err != nil {
		t.Fatalf("temp db: %v", err)
	}
	f.Close()
	st, err := store.New(f.Name())
	if err != nil {
		t.Fatalf("store.New: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	norm := normalize.New(true)
	cache := lexicon.NewCache(st, norm)
	api := &telegramtest.Fake{}
	classifier := &fakeClassifier{}
	runtime := settings.NewRuntime(settings.Config{
		AdminID:               adminID,
		MuteMinutes:           10,
		AIModerationEnabled:   true,
		AISampleRate:          1.0,
		AIMinChars:            12,
		AICooldownSec:         30,
		AIProhibitedLabels:    []string{"gambling", "fraud"},
		AIConfidenceThreshold: 0.7,
	})

	svc := moderation.New(st, api, cache, classifier, runtime, testGroup, time.UTC)
	svc.Rand = func() float64 { return 0 }
	return &fixture{svc: svc, store: st, api: api, classifier: classifier}
}

func (fx *fixture) approve(t *testing.T, userID int64) {
	t.Helper()
	if err := fx.store.ApproveMember(context.Background(), testGroup, userID); err != nil {
		t.Fatalf("ApproveMember: %v", err)
	}
}

func member(id int64) telegram.User {
	return telegram.User{ID: id, FirstName: "Bek", Username: "bek"}
}

func TestLexiconHitPunishes(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()
	fx.approve(t, 100)

	if err := fx.store.InsertWord(ctx, "casino", "casino", store.MatchToken, adminID); err != nil {
		t.Fatalf("InsertWord: %v", err)
	}
	if err := fx.svc.Cache().Refresh(ctx); err != nil {
		t.Fatalf("Refresh: %v", err)
	}

	if err := fx.svc.HandleMessage(ctx, member(100), 42, "kecha CASINO haqida"); err != nil {
		t.Fatalf("HandleMessage: %v", err)
	}

	if len(fx.api.Forwards) != 1 || fx.api.Forwards[0].ToChatID != adminID || fx.api.Forwards[0].MessageID != 42 {
		t.Errorf("Forwards: %+v", fx.api.Forwards)
	}
	if len(fx.api.Deletes) != 1 || fx.api.Deletes[0].MessageID != 42 {
		t.Errorf("Deletes: %+v", fx.api.Deletes)
	}
	if len(fx.api.Restrictions) != 1 || !fx.api.Restrictions[0].Muted || fx.api.Restrictions[0].UserID != 100 {
		t.Errorf("Restrictions: %+v", fx.api.Restrictions)
	}

	group := fx.api.SentTo(testGroup)
	if len(group) != 1 || !strings.Contains(group[0].Text, "cheklab") {
		t.Errorf("group notification: %+v", group)
	}
	cards := fx.api.SentTo(adminID)
	if len(cards) != 1 || !strings.Contains(cards[0].Text, "casino") {
		t.Errorf("admin card: %+v", cards)
	}

	events, err := fx.store.ListEventsByUser(ctx, 100, 10)
	if err != nil {
		t.Fatalf("ListEventsByUser: %v", err)
	}
	if len(events) != 1 || events[0].ReasonType != store.ReasonKeyword || events[0].Action != store.ActionMuted {
		t.Fatalf("events: %+v", events)
	}
	if !events[0].MatchedWord.Valid || events[0].MatchedWord.String != "casino" {
		t.Errorf("MatchedWord: %+v", events[0].MatchedWord)
	}

	// The classifier is never consulted once the lexicon hits.
	if fx.classifier.calls != 0 {
		t.Errorf("classifier calls: %d", fx.classifier.calls)
	}
}

func TestAIHitPunishes(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()
	fx.approve(t, 100)
	fx.classifier.decision = &aimod.Decision{
		IsProhibited: true,
		Label:        "gambling",
		Confidence:   0.91,
		Reason:       "tikish reklamasi",
	}

	if err := fx.svc.HandleMessage(ctx, member(100), 7, "pul tikib katta yutuq oling hoziroq"); err != nil {
		t.Fatalf("HandleMessage: %v", err)
	}

	if fx.classifier.calls != 1 {
		t.Fatalf("classifier calls: %d", fx.classifier.calls)
	}
	if len(fx.api.Deletes) != 1 {
		t.Errorf("Deletes: %+v", fx.api.Deletes)
	}
	cards := fx.api.SentTo(adminID)
	if len(cards) != 1 || !strings.Contains(cards[0].Text, "gambling") || !strings.Contains(cards[0].Text, "0.91") {
		t.Errorf("admin card: %+v", cards)
	}

	events, err := fx.store.ListEventsByUser(ctx, 100, 10)
	if err != nil {
		t.Fatalf("ListEventsByUser: %v", err)
	}
	if len(events) != 1 || events[0].ReasonType != store.ReasonAI {
		t.Fatalf("events: %+v", events)
	}
	if !events[0].AIConfidence.Valid || events[0].AIConfidence.Float64 != 0.91 {
		t.Errorf("AIConfidence: %+v", events[0].AIConfidence)
	}
}

func TestAILowConfidenceRejected(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()
	fx.approve(t, 100)
	fx.classifier.decision = &aimod.Decision{IsProhibited: true, Label: "gambling", Confidence: 0.4}

	if err := fx.svc.HandleMessage(ctx, member(100), 7, "pul tikib katta yutuq oling hoziroq"); err != nil {
		t.Fatalf("HandleMessage: %v", err)
	}

	if len(fx.api.Deletes) != 0 || len(fx.api.Restrictions) != 0 {
		t.Error("low-confidence verdict punished the user")
	}

	// The check is still stamped, so the cooldown holds.
	p, err := fx.store.GetProfile(ctx, 100)
	if err != nil {
		t.Fatalf("GetProfile: %v", err)
	}
	if !p.LastAICheckAt.Valid {
		t.Error("ai check not stamped")
	}
}

func TestAILabelOutsideAcceptSetRejected(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()
	fx.approve(t, 100)
	fx.classifier.decision = &aimod.Decision{IsProhibited: true, Label: "other", Confidence: 0.95}

	if err := fx.svc.HandleMessage(ctx, member(100), 7, "nimadir shubhali gap yozilgan xabar"); err != nil {
		t.Fatalf("HandleMessage: %v", err)
	}
	if len(fx.api.Deletes) != 0 {
		t.Error("off-label verdict punished the user")
	}
}

func TestAICooldownSkipsSecondCheck(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()
	fx.approve(t, 100)

	base := time.Now().UTC()
	fx.svc.Now = func() time.Time { return base }

	if err := fx.svc.HandleMessage(ctx, member(100), 1, "birinchi yetarlicha uzun xabar"); err != nil {
		t.Fatalf("HandleMessage: %v", err)
	}
	if err := fx.svc.HandleMessage(ctx, member(100), 2, "ikkinchi yetarlicha uzun xabar"); err != nil {
		t.Fatalf("HandleMessage: %v", err)
	}
	if fx.classifier.calls != 1 {
		t.Errorf("classifier calls within cooldown: %d", fx.classifier.calls)
	}

	// Past the cooldown the classifier runs again.
	fx.svc.Now = func() time.Time { return base.Add(31 * time.Second) }
	if err := fx.svc.HandleMessage(ctx, member(100), 3, "uchinchi yetarlicha uzun xabar"); err != nil {
		t.Fatalf("HandleMessage: %v", err)
	}
	if fx.classifier.calls != 2 {
		t.Errorf("classifier calls after cooldown: %d", fx.classifier.calls)
	}
}

func TestAIShortMessageSkipped(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()
	fx.approve(t, 100)

	if err := fx.svc.HandleMessage(ctx, member(100), 1, "qisqa gap"); err != nil {
		t.Fatalf("HandleMessage: %v", err)
	}
	if fx.classifier.calls != 0 {
		t.Errorf("classifier called for a short message: %d", fx.classifier.calls)
	}
}

func TestAISampleRateSkips(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()
	fx.approve(t, 100)
	fx.svc.Rand = func() float64 { return 0.999 }

	if err := fx.svc.HandleMessage(ctx, member(100), 1, "pul tikib katta yutuq oling hoziroq"); err != nil {
		t.Fatalf("HandleMessage: %v", err)
	}
	if fx.classifier.calls != 0 {
		t.Errorf("classifier called despite sampling: %d", fx.classifier.calls)
	}
}

func TestNotifyThrottle(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()
	fx.approve(t, 100)

	if err := fx.store.InsertWord(ctx, "casino", "casino", store.MatchToken, adminID); err != nil {
		t.Fatalf("InsertWord: %v", err)
	}
	if err := fx.svc.Cache().Refresh(ctx); err != nil {
		t.Fatalf("Refresh: %v", err)
	}

	base := time.Now().UTC()
	fx.svc.Now = func() time.Time { return base }

	for i := 0; i < 3; i++ {
		if err := fx.svc.HandleMessage(ctx, member(100), 1, "casino"); err != nil {
			t.Fatalf("HandleMessage: %v", err)
		}
	}

	// One public announcement; everything else still ran each time.
	if got := len(fx.api.SentTo(testGroup)); got != 1 {
		t.Errorf("group notifications: got %d, want 1", got)
	}
	if len(fx.api.Deletes) != 3 {
		t.Errorf("Deletes: got %d, want 3", len(fx.api.Deletes))
	}
	if got := len(fx.api.SentTo(adminID)); got != 3 {
		t.Errorf("admin cards: got %d, want 3", got)
	}

	fx.svc.Now = func() time.Time { return base.Add(31 * time.Second) }
	if err := fx.svc.HandleMessage(ctx, member(100), 1, "casino"); err != nil {
		t.Fatalf("HandleMessage: %v", err)
	}
	if got := len(fx.api.SentTo(testGroup)); got != 2 {
		t.Errorf("group notifications after window: got %d, want 2", got)
	}
}

func TestAdminBypass(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()

	if err := fx.store.InsertWord(ctx, "casino", "casino", store.MatchToken, adminID); err != nil {
		t.Fatalf("InsertWord: %v", err)
	}
	if err := fx.svc.Cache().Refresh(ctx); err != nil {
		t.Fatalf("Refresh: %v", err)
	}

	// Configured admin.
	if err := fx.svc.HandleMessage(ctx, member(adminID), 1, "casino"); err != nil {
		t.Fatalf("HandleMessage: %v", err)
	}
	// Group administrator not on the roster.
	fx.api.Statuses = map[int64]string{200: telegram.StatusAdministrator}
	if err := fx.svc.HandleMessage(ctx, member(200), 2, "casino"); err != nil {
		t.Fatalf("HandleMessage: %v", err)
	}

	if len(fx.api.Deletes) != 0 || len(fx.api.Restrictions) != 0 {
		t.Errorf("admin message punished: deletes=%d restrictions=%d", len(fx.api.Deletes), len(fx.api.Restrictions))
	}
}

func TestUnverifiedMessageDeleted(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()

	if err := fx.svc.HandleMessage(ctx, member(100), 9, "salom hammaga"); err != nil {
		t.Fatalf("HandleMessage: %v", err)
	}

	if len(fx.api.Deletes) != 1 || fx.api.Deletes[0].MessageID != 9 {
		t.Errorf("Deletes: %+v", fx.api.Deletes)
	}
	if len(fx.api.Restrictions) != 0 {
		t.Error("unverified user was muted")
	}
	events, err := fx.store.ListEventsByUser(ctx, 100, 10)
	if err != nil {
		t.Fatalf("ListEventsByUser: %v", err)
	}
	if len(events) != 0 {
		t.Errorf("events recorded for deleted unverified message: %+v", events)
	}
}

func TestUnverifiedMediaMessageDeleted(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()

	// A sticker or photo arrives with no text at all; it still goes.
	if err := fx.svc.HandleMessage(ctx, member(100), 9, ""); err != nil {
		t.Fatalf("HandleMessage: %v", err)
	}
	if len(fx.api.Deletes) != 1 || fx.api.Deletes[0].MessageID != 9 {
		t.Errorf("Deletes: %+v", fx.api.Deletes)
	}
}

func TestApprovedMediaMessageIgnored(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()
	fx.approve(t, 100)

	if err := fx.svc.HandleMessage(ctx, member(100), 9, ""); err != nil {
		t.Fatalf("HandleMessage: %v", err)
	}
	if len(fx.api.Deletes) != 0 {
		t.Errorf("approved media message deleted: %+v", fx.api.Deletes)
	}
	if fx.classifier.calls != 0 {
		t.Errorf("classifier called for empty text: %d", fx.classifier.calls)
	}
}
