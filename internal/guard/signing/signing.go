// Package signing produces and verifies the HMAC-signed tokens that travel
// through inline-button callback data and /start deep links. A session id is
// opaque to the user; the signature binds it to a specific group and user so a
// forwarded link cannot unlock somebody else.
package signing

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"
)

const (
	// TokenLen is the length of an encoded session id: 16 bytes of UUID as
	// urlsafe base64 without padding.
	TokenLen = 22
	// SigLen is the length of an encoded signature: the first 8 bytes of the
	// HMAC-SHA256 digest as urlsafe base64 without padding.
	SigLen = 11

	sigBytes = 8

	// CallbackPrefix marks the agree-button callback data.
	CallbackPrefix = "agree:"
	// StartPrefix marks the deep-link /start payload.
	StartPrefix = "agree_"
)

// Signer signs verification tokens with a shared secret.
type Signer struct {
	secret []byte
}

// New returns a Signer for the given secret.
func New(secret string) *Signer {
	return &Signer{secret: []byte(secret)}
}

// EncodeSessionID renders a session UUID as a 22-char urlsafe token.
func EncodeSessionID(id uuid.UUID) string {
	return base64.RawURLEncoding.EncodeToString(id[:])
}

// DecodeSessionID reverses EncodeSessionID.
func DecodeSessionID(token string) (uuid.UUID, error) {
	raw, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return uuid.Nil, fmt.Errorf("signing: decode session token: %w", err)
	}
	id, err := uuid.FromBytes(raw)
	if err != nil {
		return uuid.Nil, fmt.Errorf("signing: decode session token: %w", err)
	}
	return id, nil
}

// Sign returns the urlsafe base64 encoding of the first n bytes of the
// HMAC-SHA256 digest of data.
func (s *Signer) Sign(data string, n int) string {
	mac := hmac.New(sha256.New, s.secret)
	mac.Write([]byte(data))
	return base64.RawURLEncoding.EncodeToString(mac.Sum(nil)[:n])
}

func (s *Signer) sessionSig(groupID, userID int64, sessionID uuid.UUID) string {
	return s.Sign(fmt.Sprintf("%d:%d:%s", groupID, userID, sessionID), sigBytes)
}

// CallbackData builds the agree-button payload: "agree:{user_id}:{token}:{sig}".
func (s *Signer) CallbackData(groupID, userID int64, sessionID uuid.UUID) string {
	return fmt.Sprintf("%s%d:%s:%s",
		CallbackPrefix, userID, EncodeSessionID(sessionID), s.sessionSig(groupID, userID, sessionID))
}

// ParseCallbackData splits an agree-button payload into its parts. It does not
// verify the signature; callers must follow up with VerifyCallback.
func ParseCallbackData(data string) (userID int64, sessionID uuid.UUID, sig string, ok bool) {
	rest, found := strings.CutPrefix(data, CallbackPrefix)
	if !found {
		return 0, uuid.Nil, "", false
	}
	parts := strings.Split(rest, ":")
	if len(parts) != 3 {
		return 0, uuid.Nil, "", false
	}
	userID, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil {
		return 0, uuid.Nil, "", false
	}
	sessionID, err = DecodeSessionID(parts[1])
	if err != nil {
		return 0, uuid.Nil, "", false
	}
	return userID, sessionID, parts[2], true
}

// VerifyCallback reports whether sig is the valid signature for the given
// group, user and session. Comparison is constant time.
func (s *Signer) VerifyCallback(groupID, userID int64, sessionID uuid.UUID, sig string) bool {
	expected := s.sessionSig(groupID, userID, sessionID)
	return hmac.Equal([]byte(expected), []byte(sig))
}

// StartPayload builds the deep-link payload body "{token}{sig}". The dispatch
// layer prepends StartPrefix when composing the t.me link.
func (s *Signer) StartPayload(groupID, userID int64, sessionID uuid.UUID) string {
	return EncodeSessionID(sessionID) + s.sessionSig(groupID, userID, sessionID)
}

// ParseStartPayload extracts the session id from a deep-link payload body.
// The payload carries no group or user identity; those come from the stored
// session, and the signature is checked against them with VerifyStartPayload.
func ParseStartPayload(payload string) (uuid.UUID, bool) {
	if len(payload) < TokenLen+1 {
		return uuid.Nil, false
	}
	id, err := DecodeSessionID(payload[:TokenLen])
	if err != nil {
		return uuid.Nil, false
	}
	return id, true
}

// VerifyStartPayload reports whether payload matches the given session in the
// given group for the given user. Comparison is constant time.
func (s *Signer) VerifyStartPayload(groupID, userID int64, sessionID uuid.UUID, payload string) bool {
	if len(payload) < TokenLen+SigLen {
		return false
	}
	id, err := DecodeSessionID(payload[:TokenLen])
	if err != nil || id != sessionID {
		return false
	}
	sig := payload[TokenLen : TokenLen+SigLen]
	expected := s.sessionSig(groupID, userID, sessionID)
	return hmac.Equal([]byte(expected), []byte(sig))
}
