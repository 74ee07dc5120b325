package signing_test

import (
	"strings"
	"testing"

	"github.com/google/uuid"

	"guardbot/internal/guard/signing"
)

func TestEncodeDecodeSessionID(t *testing.T) {
	id := uuid.New()

	token := signing.EncodeSessionID(id)
	if len(token) != signing.TokenLen {
		t.Fatalf("token length: got %d, want %d", len(token), signing.TokenLen)
	}
	if strings.ContainsAny(token, "=+/") {
		t.Errorf("token %q contains non-urlsafe characters", token)
	}

	got, err := signing.DecodeSessionID(token)
	if err != nil {
		t.Fatalf("DecodeSessionID: %v", err)
	}
	if got != id {
		t.Errorf("round trip: got %s, want %s", got, id)
	}
}

func TestDecodeSessionID_Invalid(t *testing.T) {
	for _, token := range []string{"", "not base64 !!!", "dG9vc2hvcnQ"} {
		if _, err := signing.DecodeSessionID(token); err == nil {
			t.Errorf("DecodeSessionID(%q): expected error", token)
		}
	}
}

func TestCallbackRoundTrip(t *testing.T) {
	s := signing.New("test-secret")
	id := uuid.New()
	const groupID, userID = int64(-100123), int64(42)

	data := s.CallbackData(groupID, userID, id)
	if !strings.HasPrefix(data, signing.CallbackPrefix) {
		t.Fatalf("callback data %q missing prefix", data)
	}

	gotUser, gotSession, sig, ok := signing.ParseCallbackData(data)
	if !ok {
		t.Fatalf("ParseCallbackData(%q) failed", data)
	}
	if gotUser != userID || gotSession != id {
		t.Errorf("parsed user=%d session=%s, want user=%d session=%s", gotUser, gotSession, userID, id)
	}
	if len(sig) != signing.SigLen {
		t.Errorf("sig length: got %d, want %d", len(sig), signing.SigLen)
	}
	if !s.VerifyCallback(groupID, userID, id, sig) {
		t.Error("VerifyCallback rejected a valid signature")
	}
}

func TestVerifyCallback_RejectsTampering(t *testing.T) {
	s := signing.New("test-secret")
	id := uuid.New()
	const groupID, userID = int64(-100123), int64(42)
	sig := strings.Split(s.CallbackData(groupID, userID, id), ":")[3]

	if s.VerifyCallback(groupID, userID+1, id, sig) {
		t.Error("accepted signature for a different user")
	}
	if s.VerifyCallback(groupID+1, userID, id, sig) {
		t.Error("accepted signature for a different group")
	}
	if s.VerifyCallback(groupID, userID, uuid.New(), sig) {
		t.Error("accepted signature for a different session")
	}
	if signing.New("other-secret").VerifyCallback(groupID, userID, id, sig) {
		t.Error("accepted signature made with a different secret")
	}
	tampered := sig[:len(sig)-1] + string('A'+(sig[len(sig)-1]-'A'+1)%26)
	if s.VerifyCallback(groupID, userID, id, tampered) {
		t.Error("accepted a modified signature")
	}
}

func TestParseCallbackData_Invalid(t *testing.T) {
	cases := []string{
		"",
		"agree:",
		"noprefix:1:token:sig",
		"agree:notanumber:dG9rZW4:sig",
		"agree:1:2:3:4",
		"agree:1:!!!badtoken!!!:sig",
	}
	for _, data := range cases {
		if _, _, _, ok := signing.ParseCallbackData(data); ok {
			t.Errorf("ParseCallbackData(%q): expected failure", data)
		}
	}
}

func TestStartPayloadRoundTrip(t *testing.T) {
	s := signing.New("test-secret")
	id := uuid.New()
	const groupID, userID = int64(-100123), int64(42)

	payload := s.StartPayload(groupID, userID, id)
	if len(payload) != signing.TokenLen+signing.SigLen {
		t.Fatalf("payload length: got %d, want %d", len(payload), signing.TokenLen+signing.SigLen)
	}

	gotID, ok := signing.ParseStartPayload(payload)
	if !ok {
		t.Fatalf("ParseStartPayload(%q) failed", payload)
	}
	if gotID != id {
		t.Errorf("parsed session %s, want %s", gotID, id)
	}
	if !s.VerifyStartPayload(groupID, userID, id, payload) {
		t.Error("VerifyStartPayload rejected a valid payload")
	}
}

func TestVerifyStartPayload_RejectsTampering(t *testing.T) {
	s := signing.New("test-secret")
	id := uuid.New()
	const groupID, userID = int64(-100123), int64(42)
	payload := s.StartPayload(groupID, userID, id)

	if s.VerifyStartPayload(groupID, userID+1, id, payload) {
		t.Error("accepted payload for a different user")
	}
	if s.VerifyStartPayload(groupID, userID, uuid.New(), payload) {
		t.Error("accepted payload for a different session")
	}
	if s.VerifyStartPayload(groupID, userID, id, payload[:signing.TokenLen]) {
		t.Error("accepted payload with no signature")
	}
	other := s.StartPayload(groupID, userID, uuid.New())
	mixed := payload[:signing.TokenLen] + other[signing.TokenLen:]
	if s.VerifyStartPayload(groupID, userID, id, mixed) {
		t.Error("accepted payload with a swapped signature")
	}
}

func TestParseStartPayload_TooShort(t *testing.T) {
	if _, ok := signing.ParseStartPayload("short"); ok {
		t.Error("accepted an undersized payload")
	}
}
