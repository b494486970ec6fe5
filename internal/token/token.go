package token

import (
	"errors"
	"fmt"
	"time"

	"eddisonso.com/edd-directory/internal/apperr"
	"github.com/golang-jwt/jwt/v5"
)

// Claims is the signed claim set carried by every bearer token.
type Claims struct {
	Username  string `json:"user"`
	AccountID int64  `json:"id"`
	jwt.RegisteredClaims
}

// Signer issues and verifies HS256 tokens with a shared secret.
type Signer struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

func NewSigner(secret []byte, ttl time.Duration) *Signer {
	return &Signer{secret: secret, ttl: ttl, now: time.Now}
}

// TTL is the validity window of issued tokens.
func (s *Signer) TTL() time.Duration {
	return s.ttl
}

// Issue signs a token for the account, returning it with its expiry.
func (s *Signer) Issue(username string, accountID int64) (string, time.Time, error) {
	now := s.now()
	expires := now.Add(s.ttl)
	claims := Claims{
		Username:  username,
		AccountID: accountID,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(expires),
			IssuedAt:  jwt.NewNumericDate(now),
			Subject:   username,
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign token: %w", err)
	}
	return signed, expires, nil
}

// Verify checks signature and expiry, then requires both identity claims.
// Failures wrap apperr.ErrTokenExpired, ErrTokenInvalid or ErrTokenMalformed.
func (s *Signer) Verify(tokenString string) (*Claims, error) {
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, fmt.Errorf("%w: %v", apperr.ErrTokenExpired, err)
		}
		return nil, fmt.Errorf("%w: %v", apperr.ErrTokenInvalid, err)
	}

	if claims.Username == "" || claims.AccountID <= 0 {
		return nil, apperr.ErrTokenMalformed
	}
	return claims, nil
}
