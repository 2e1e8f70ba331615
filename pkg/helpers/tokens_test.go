package helpers

import (
	"errors"
	"testing"
	"time"
)

func newTestCodec() *TokenCodec {
	return NewTokenCodec("access-secret", "reset-secret", "verify-secret", time.Hour, time.Hour, time.Hour)
}

func TestTokenCodec_IssueAndVerify(t *testing.T) {
	t.Parallel()

	codec := newTestCodec()
	purposes := []TokenPurpose{TokenPurposeAccess, TokenPurposePasswordReset, TokenPurposeVerifyEmail}

	for _, p := range purposes {
		tok, exp, err := codec.Issue(p, "user-123")
		if err != nil {
			t.Fatalf("Issue(%s) error: %v", p, err)
		}
		if time.Until(exp) <= 0 {
			t.Fatalf("Issue(%s) returned expiry in the past", p)
		}
		uid, err := codec.Verify(p, tok)
		if err != nil {
			t.Fatalf("Verify(%s) error: %v", p, err)
		}
		if uid != "user-123" {
			t.Fatalf("Verify(%s) uid = %q, want user-123", p, uid)
		}
	}
}

func TestTokenCodec_Expired(t *testing.T) {
	t.Parallel()

	codec := NewTokenCodec("a", "r", "v", -time.Minute, -time.Minute, -time.Minute)
	tok, _, err := codec.Issue(TokenPurposeAccess, "u1")
	if err != nil {
		t.Fatalf("Issue error: %v", err)
	}
	if _, err := codec.Verify(TokenPurposeAccess, tok); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken for expired token, got %v", err)
	}
}

func TestTokenCodec_CrossPurposeRejected(t *testing.T) {
	t.Parallel()

	codec := newTestCodec()

	verifyTok, _, err := codec.Issue(TokenPurposeVerifyEmail, "u1")
	if err != nil {
		t.Fatalf("Issue error: %v", err)
	}
	if _, err := codec.Verify(TokenPurposePasswordReset, verifyTok); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("verify-email token accepted by password-reset verifier: %v", err)
	}

	resetTok, _, err := codec.Issue(TokenPurposePasswordReset, "u1")
	if err != nil {
		t.Fatalf("Issue error: %v", err)
	}
	if _, err := codec.Verify(TokenPurposeVerifyEmail, resetTok); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("password-reset token accepted by verify-email verifier: %v", err)
	}
}

func TestTokenCodec_WrongSecretRejected(t *testing.T) {
	t.Parallel()

	codec := newTestCodec()
	other := NewTokenCodec("other-access", "other-reset", "other-verify", time.Hour, time.Hour, time.Hour)

	tok, _, err := other.Issue(TokenPurposeAccess, "u1")
	if err != nil {
		t.Fatalf("Issue error: %v", err)
	}
	if _, err := codec.Verify(TokenPurposeAccess, tok); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken for foreign signature, got %v", err)
	}
}

func TestTokenCodec_Malformed(t *testing.T) {
	t.Parallel()

	codec := newTestCodec()
	for _, tok := range []string{"", "not-a-jwt", "a.b.c"} {
		if _, err := codec.Verify(TokenPurposeAccess, tok); !errors.Is(err, ErrInvalidToken) {
			t.Fatalf("Verify(%q) = %v, want ErrInvalidToken", tok, err)
		}
	}
}

func TestTokenCodec_UnknownPurpose(t *testing.T) {
	t.Parallel()

	codec := newTestCodec()
	if _, _, err := codec.Issue(TokenPurpose("session"), "u1"); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("Issue with unknown purpose = %v, want ErrInvalidToken", err)
	}
	if _, err := codec.Verify(TokenPurpose("session"), "whatever"); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("Verify with unknown purpose = %v, want ErrInvalidToken", err)
	}
}
