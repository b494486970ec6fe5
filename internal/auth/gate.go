package auth

import (
	"context"
	"fmt"

	"eddisonso.com/edd-directory/internal/apperr"
	"eddisonso.com/edd-directory/internal/session"
	"eddisonso.com/edd-directory/internal/token"
)

// Identity is the authenticated caller.
type Identity struct {
	AccountID int64
	Username  string
}

// Gate authenticates bearer tokens for the directory service.
type Gate struct {
	signer   *token.Signer
	sessions session.Registry
}

func NewGate(signer *token.Signer, sessions session.Registry) *Gate {
	return &Gate{signer: signer, sessions: sessions}
}

// Authenticate checks, in order: a token is present, its signature and
// expiry hold, its identity claims are set, and the account's session flag
// still exists. The registry is only consulted for tokens that pass the
// local checks.
func (g *Gate) Authenticate(ctx context.Context, bearer string) (Identity, error) {
	if bearer == "" {
		return Identity{}, apperr.ErrUnauthenticated
	}

	claims, err := g.signer.Verify(bearer)
	if err != nil {
		return Identity{}, err
	}

	active, err := g.sessions.Active(ctx, claims.AccountID)
	if err != nil {
		return Identity{}, err
	}
	if !active {
		return Identity{}, fmt.Errorf("account %d: %w", claims.AccountID, apperr.ErrSessionRevoked)
	}

	return Identity{AccountID: claims.AccountID, Username: claims.Username}, nil
}
