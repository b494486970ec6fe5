package token

import (
	"errors"
	"testing"
	"time"

	"eddisonso.com/edd-directory/internal/apperr"
	"github.com/golang-jwt/jwt/v5"
)

var testSecret = []byte("test-secret-with-enough-bytes-000")

func TestIssueAndVerify(t *testing.T) {
	s := NewSigner(testSecret, time.Hour)
	tok, expires, err := s.Issue("alice", 7)
	if err != nil {
		t.Fatal(err)
	}
	if time.Until(expires) <= 59*time.Minute {
		t.Fatalf("expiry too close: %v", expires)
	}

	claims, err := s.Verify(tok)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if claims.Username != "alice" || claims.AccountID != 7 {
		t.Fatalf("unexpected claims: %+v", claims)
	}
}

func TestVerify_Expired(t *testing.T) {
	s := NewSigner(testSecret, time.Minute)
	s.now = func() time.Time { return time.Now().Add(-2 * time.Hour) }
	tok, _, err := s.Issue("alice", 1)
	if err != nil {
		t.Fatal(err)
	}

	s.now = time.Now
	_, err = s.Verify(tok)
	if !errors.Is(err, apperr.ErrTokenExpired) {
		t.Fatalf("expected ErrTokenExpired, got %v", err)
	}
}

func TestVerify_WrongSecret(t *testing.T) {
	tok, _, err := NewSigner([]byte("another-secret-another-secret-00"), time.Hour).Issue("alice", 1)
	if err != nil {
		t.Fatal(err)
	}
	_, err = NewSigner(testSecret, time.Hour).Verify(tok)
	if !errors.Is(err, apperr.ErrTokenInvalid) {
		t.Fatalf("expected ErrTokenInvalid, got %v", err)
	}
}

func TestVerify_Garbage(t *testing.T) {
	_, err := NewSigner(testSecret, time.Hour).Verify("not-a-token")
	if !errors.Is(err, apperr.ErrTokenInvalid) {
		t.Fatalf("expected ErrTokenInvalid, got %v", err)
	}
}

func TestVerify_RejectsNoneAlgorithm(t *testing.T) {
	claims := jwt.MapClaims{"user": "alice", "id": 1, "exp": time.Now().Add(time.Hour).Unix()}
	tok, err := jwt.NewWithClaims(jwt.SigningMethodNone, claims).SignedString(jwt.UnsafeAllowNoneSignatureType)
	if err != nil {
		t.Fatal(err)
	}
	_, err = NewSigner(testSecret, time.Hour).Verify(tok)
	if !errors.Is(err, apperr.ErrTokenInvalid) {
		t.Fatalf("expected ErrTokenInvalid, got %v", err)
	}
}

func TestVerify_MissingClaims(t *testing.T) {
	tests := []struct {
		name   string
		claims jwt.MapClaims
	}{
		{"no id", jwt.MapClaims{"user": "alice"}},
		{"no user", jwt.MapClaims{"id": 3}},
		{"zero id", jwt.MapClaims{"user": "alice", "id": 0}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.claims["exp"] = time.Now().Add(time.Hour).Unix()
			tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, tt.claims).SignedString(testSecret)
			if err != nil {
				t.Fatal(err)
			}
			_, err = NewSigner(testSecret, time.Hour).Verify(tok)
			if !errors.Is(err, apperr.ErrTokenMalformed) {
				t.Fatalf("expected ErrTokenMalformed, got %v", err)
			}
		})
	}
}

func TestVerify_RequiresExpiry(t *testing.T) {
	claims := jwt.MapClaims{"user": "alice", "id": 1}
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(testSecret)
	if err != nil {
		t.Fatal(err)
	}
	_, err = NewSigner(testSecret, time.Hour).Verify(tok)
	if !errors.Is(err, apperr.ErrTokenInvalid) {
		t.Fatalf("expected ErrTokenInvalid for token without exp, got %v", err)
	}
}
