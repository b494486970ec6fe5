package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"eddisonso.com/edd-directory/internal/apperr"
)

type Account struct {
	ID           int64
	Username     string
	PasswordHash string
	FullName     string
	Email        string
	CreatedAt    time.Time
}

// GetAccountByUsername returns nil, nil when no account matches.
func (db *DB) GetAccountByUsername(ctx context.Context, username string) (*Account, error) {
	a := &Account{}
	var created int64
	err := db.QueryRowContext(ctx, db.q(`
		SELECT id, username, password_hash, full_name, email, created_at
		FROM accounts WHERE username = $1
	`), username).Scan(&a.ID, &a.Username, &a.PasswordHash, &a.FullName, &a.Email, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query account: %w: %v", apperr.ErrInternalStore, err)
	}
	a.CreatedAt = time.Unix(created, 0)
	return a, nil
}

func (db *DB) CreateAccount(ctx context.Context, a *Account) (*Account, error) {
	now := time.Now()
	var id int64
	err := db.QueryRowContext(ctx, db.q(`
		INSERT INTO accounts (username, password_hash, full_name, email, created_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id
	`), a.Username, a.PasswordHash, a.FullName, a.Email, now.Unix()).Scan(&id)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("create account %q: %w", a.Username, apperr.ErrAlreadyExists)
		}
		return nil, fmt.Errorf("create account: %w: %v", apperr.ErrInternalStore, err)
	}

	created := *a
	created.ID = id
	created.CreatedAt = time.Unix(now.Unix(), 0)
	return &created, nil
}
