// Package cache holds serialized query results with an expiry.
package cache

import (
	"context"
	"errors"
	"strconv"
	"time"
)

// ErrMiss is returned by Get when the key is absent or expired.
var ErrMiss = errors.New("cache miss")

type Cache interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	// Delete removes the keys if present; absent keys are not an error.
	Delete(ctx context.Context, keys ...string) error
}

// ListKey addresses an owner's employee list.
func ListKey(ownerID int64) string {
	return "employees:owner:" + strconv.FormatInt(ownerID, 10)
}

// EntryKey addresses a single employee.
func EntryKey(employeeID int64) string {
	return "employee:" + strconv.FormatInt(employeeID, 10)
}
