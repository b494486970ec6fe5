package auth

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"eddisonso.com/edd-directory/internal/apperr"
	"eddisonso.com/edd-directory/internal/db"
	"eddisonso.com/edd-directory/internal/session"
	"eddisonso.com/edd-directory/internal/token"
)

// AccountStore is the slice of the record store the issuer needs.
type AccountStore interface {
	GetAccountByUsername(ctx context.Context, username string) (*db.Account, error)
	CreateAccount(ctx context.Context, a *db.Account) (*db.Account, error)
}

// Events receives account and session lifecycle notifications.
type Events interface {
	PublishAccountCreated(ctx context.Context, accountID int64, username, fullName string) error
	PublishSessionCreated(ctx context.Context, accountID int64, expiresAt time.Time) error
	PublishSessionInvalidated(ctx context.Context, accountID int64) error
}

type Issuer struct {
	accounts AccountStore
	sessions session.Registry
	signer   *token.Signer
	hasher   PasswordHasher
	events   Events
}

type IssuerConfig struct {
	Accounts AccountStore
	Sessions session.Registry
	Signer   *token.Signer
	Hasher   PasswordHasher // bcrypt when nil
	Events   Events         // optional
}

func NewIssuer(cfg IssuerConfig) *Issuer {
	hasher := cfg.Hasher
	if hasher == nil {
		hasher = BcryptHasher{}
	}
	return &Issuer{
		accounts: cfg.Accounts,
		sessions: cfg.Sessions,
		signer:   cfg.Signer,
		hasher:   hasher,
		events:   cfg.Events,
	}
}

type RegisterInput struct {
	Username string
	Password string
	FullName string
	Email    string
}

type LoginResult struct {
	Token     string
	ExpiresAt time.Time
	AccountID int64
	Username  string
}

// Register creates an account and returns its id.
func (i *Issuer) Register(ctx context.Context, in RegisterInput) (int64, error) {
	in.Username = strings.TrimSpace(in.Username)
	if in.Username == "" || in.Password == "" {
		return 0, fmt.Errorf("%w: username and password required", apperr.ErrInvalidInput)
	}

	existing, err := i.accounts.GetAccountByUsername(ctx, in.Username)
	if err != nil {
		return 0, err
	}
	if existing != nil {
		return 0, fmt.Errorf("register %q: %w", in.Username, apperr.ErrAlreadyExists)
	}

	hash, err := i.hasher.Hash(in.Password)
	if err != nil {
		return 0, err
	}

	// The unique index still rejects a concurrent duplicate.
	account, err := i.accounts.CreateAccount(ctx, &db.Account{
		Username:     in.Username,
		PasswordHash: hash,
		FullName:     strings.TrimSpace(in.FullName),
		Email:        strings.TrimSpace(in.Email),
	})
	if err != nil {
		return 0, err
	}

	if i.events != nil {
		i.events.PublishAccountCreated(ctx, account.ID, account.Username, account.FullName)
	}
	slog.Info("account registered", "account_id", account.ID, "username", account.Username)
	return account.ID, nil
}

// Login verifies credentials, issues a token and activates the account's
// session flag for the token's lifetime. A previous flag is overwritten.
func (i *Issuer) Login(ctx context.Context, username, password string) (*LoginResult, error) {
	username = strings.TrimSpace(username)
	if username == "" || password == "" {
		return nil, fmt.Errorf("%w: username and password required", apperr.ErrInvalidInput)
	}

	account, err := i.accounts.GetAccountByUsername(ctx, username)
	if err != nil {
		return nil, err
	}
	if account == nil {
		return nil, apperr.ErrInvalidCredentials
	}
	if err := i.hasher.Compare(account.PasswordHash, password); err != nil {
		return nil, apperr.ErrInvalidCredentials
	}

	signed, expires, err := i.signer.Issue(account.Username, account.ID)
	if err != nil {
		return nil, err
	}

	if err := i.sessions.Activate(ctx, account.ID, i.signer.TTL()); err != nil {
		return nil, err
	}

	if i.events != nil {
		i.events.PublishSessionCreated(ctx, account.ID, expires)
	}
	return &LoginResult{
		Token:     signed,
		ExpiresAt: expires,
		AccountID: account.ID,
		Username:  account.Username,
	}, nil
}

// Logout revokes the session flag of the token's account. Tokens that no
// longer verify are accepted silently so that retries after expiry succeed.
func (i *Issuer) Logout(ctx context.Context, tokenString string) error {
	if tokenString == "" {
		return nil
	}
	claims, err := i.signer.Verify(tokenString)
	if err != nil {
		slog.Debug("logout with unverifiable token", "error", err)
		return nil
	}

	if err := i.sessions.Revoke(ctx, claims.AccountID); err != nil {
		return err
	}

	if i.events != nil {
		i.events.PublishSessionInvalidated(ctx, claims.AccountID)
	}
	return nil
}
