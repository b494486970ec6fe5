// Package session records which accounts hold an honored login. A token is
// only accepted while the flag for its account id exists.
package session

import (
	"context"
	"strconv"
	"time"
)

// Registry stores one active flag per account id. Activate overwrites any
// previous flag, so the most recent login determines the expiry.
type Registry interface {
	Activate(ctx context.Context, accountID int64, ttl time.Duration) error
	Active(ctx context.Context, accountID int64) (bool, error)
	Revoke(ctx context.Context, accountID int64) error
}

const activeValue = "active"

// Key is the registry key for an account.
func Key(accountID int64) string {
	return "session:" + strconv.FormatInt(accountID, 10)
}
