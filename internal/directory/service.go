// Package directory serves an owner's employee records through a
// read-through result cache and keeps that cache consistent with writes.
package directory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/singleflight"

	"eddisonso.com/edd-directory/internal/apperr"
	"eddisonso.com/edd-directory/internal/auth"
	"eddisonso.com/edd-directory/internal/cache"
	"eddisonso.com/edd-directory/internal/db"
	"eddisonso.com/edd-directory/internal/events"
)

// Store is the record store surface used for employees.
type Store interface {
	ListEmployeesByOwner(ctx context.Context, ownerID int64) ([]*db.Employee, error)
	GetEmployee(ctx context.Context, id int64) (*db.Employee, error)
	CreateEmployee(ctx context.Context, e *db.Employee) (*db.Employee, error)
	UpdateEmployee(ctx context.Context, id int64, u db.EmployeeUpdate) (*db.Employee, error)
	DeleteEmployee(ctx context.Context, id int64) (bool, error)
}

// Photos is the blob store client.
type Photos interface {
	Upload(ctx context.Context, filename, contentType string, body io.Reader) (string, error)
	Delete(ctx context.Context, key string) error
}

type Events interface {
	PublishEmployeeChanged(ctx context.Context, action events.EmployeeAction, employeeID, ownerID int64, fullName string) error
}

// loadTimeout bounds a shared store load.
const loadTimeout = 10 * time.Second

type Config struct {
	Store          Store
	Cache          cache.Cache
	Photos         Photos
	Events         Events // optional
	ListTTL        time.Duration
	EntryTTL       time.Duration
	PhotoURLPrefix string
}

type Service struct {
	store          Store
	cache          cache.Cache
	photos         Photos
	events         Events
	listTTL        time.Duration
	entryTTL       time.Duration
	photoURLPrefix string

	loads singleflight.Group
}

func NewService(cfg Config) *Service {
	return &Service{
		store:          cfg.Store,
		cache:          cfg.Cache,
		photos:         cfg.Photos,
		events:         cfg.Events,
		listTTL:        cfg.ListTTL,
		entryTTL:       cfg.EntryTTL,
		photoURLPrefix: strings.TrimRight(cfg.PhotoURLPrefix, "/"),
	}
}

// List returns the caller's employees ordered by full name, descending.
func (s *Service) List(ctx context.Context, who auth.Identity) ([]EmployeePublic, error) {
	key := cache.ListKey(who.AccountID)
	b, err := s.readThrough(ctx, key, s.listTTL, func(ctx context.Context) ([]byte, error) {
		rows, err := s.store.ListEmployeesByOwner(ctx, who.AccountID)
		if err != nil {
			return nil, err
		}
		out := make([]EmployeePublic, 0, len(rows))
		for _, e := range rows {
			out = append(out, s.project(e))
		}
		return json.Marshal(out)
	})
	if err != nil {
		return nil, err
	}

	list, err := decodeList(b, who.AccountID)
	if err != nil {
		s.evict(ctx, key)
		return nil, err
	}
	return list, nil
}

// Get returns one employee. Records owned by another account are reported
// as not found, whether they come from the cache or the store.
func (s *Service) Get(ctx context.Context, who auth.Identity, id int64) (*EmployeePublic, error) {
	key := cache.EntryKey(id)
	b, err := s.readThrough(ctx, key, s.entryTTL, func(ctx context.Context) ([]byte, error) {
		e, err := s.store.GetEmployee(ctx, id)
		if err != nil {
			return nil, err
		}
		if e == nil {
			return nil, fmt.Errorf("employee %d: %w", id, apperr.ErrNotFound)
		}
		return json.Marshal(s.project(e))
	})
	if err != nil {
		return nil, err
	}

	e, err := decodeEntry(b, id)
	if err != nil {
		s.evict(ctx, key)
		return nil, err
	}
	if e.OwnerID != who.AccountID {
		return nil, fmt.Errorf("employee %d: %w", id, apperr.ErrForbidden)
	}
	return e, nil
}

// readThrough serves key from the cache, or loads, stores and returns it.
// Concurrent misses on one key share a single load. A failing cache read
// degrades to the store; a failing cache write is only logged.
func (s *Service) readThrough(ctx context.Context, key string, ttl time.Duration, load func(context.Context) ([]byte, error)) ([]byte, error) {
	b, err := s.cache.Get(ctx, key)
	if err == nil {
		return b, nil
	}
	if !errors.Is(err, cache.ErrMiss) {
		slog.Warn("cache read failed, falling back to store", "key", key, "error", err)
	}

	ch := s.loads.DoChan(key, func() (any, error) {
		// Shared by every caller waiting on key, so it ignores the
		// cancellation of whichever caller started it.
		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), loadTimeout)
		defer cancel()

		b, err := load(ctx)
		if err != nil {
			return nil, err
		}
		if err := s.cache.Set(ctx, key, b, ttl); err != nil {
			slog.Warn("cache populate failed", "key", key, "error", err)
		}
		return b, nil
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.([]byte), nil
	}
}

func (s *Service) evict(ctx context.Context, key string) {
	if err := s.cache.Delete(ctx, key); err != nil {
		slog.Warn("failed to evict unreadable cache entry", "key", key, "error", err)
	}
}

// invalidate removes cached results touched by a committed write, and
// detaches loads already in flight for those keys so later reads start
// fresh. Failure leaves stale data readable, so it fails the write.
func (s *Service) invalidate(ctx context.Context, keys ...string) error {
	for _, key := range keys {
		s.loads.Forget(key)
	}
	if err := s.cache.Delete(ctx, keys...); err != nil {
		if errors.Is(err, apperr.ErrInternalStore) {
			return fmt.Errorf("invalidate %v: %w", keys, err)
		}
		return fmt.Errorf("invalidate %v: %w: %v", keys, apperr.ErrInternalStore, err)
	}
	return nil
}

// Save creates or updates an employee owned by the caller.
//
// A new photo is uploaded before the record is touched, and an upload
// failure aborts the save. After the record commits, the caller's list and
// the entry are evicted from the cache; the replaced photo is then removed
// on a best-effort basis.
func (s *Service) Save(ctx context.Context, who auth.Identity, in SaveInput) (*Employee, error) {
	in.FullName = strings.TrimSpace(in.FullName)
	if in.FullName == "" {
		return nil, fmt.Errorf("%w: full_name required", apperr.ErrInvalidInput)
	}

	var existing *db.Employee
	if in.EmployeeID != 0 {
		var err error
		existing, err = s.loadOwned(ctx, who, in.EmployeeID)
		if err != nil {
			return nil, err
		}
	}

	var newKey string
	if in.Photo != nil {
		key, err := s.photos.Upload(ctx, in.Photo.Filename, in.Photo.ContentType, in.Photo.Body)
		if err != nil {
			if !errors.Is(err, apperr.ErrUpstreamUnavailable) {
				err = fmt.Errorf("%w: %v", apperr.ErrUpstreamUnavailable, err)
			}
			return nil, fmt.Errorf("upload photo: %w", err)
		}
		newKey = key
	}

	var saved *db.Employee
	var err error
	action := events.EmployeeCreated
	if existing == nil {
		saved, err = s.store.CreateEmployee(ctx, &db.Employee{
			OwnerID:   who.AccountID,
			ObjectKey: newKey,
			FullName:  in.FullName,
			Location:  in.Location,
			JobTitle:  in.JobTitle,
			Badges:    in.Badges,
		})
	} else {
		action = events.EmployeeUpdated
		update := db.EmployeeUpdate{
			FullName: in.FullName,
			Location: in.Location,
			JobTitle: in.JobTitle,
			Badges:   in.Badges,
		}
		if newKey != "" {
			update.ObjectKey = &newKey
		}
		saved, err = s.store.UpdateEmployee(ctx, existing.ID, update)
		if err == nil && saved == nil {
			err = fmt.Errorf("employee %d: %w", existing.ID, apperr.ErrNotFound)
		}
	}
	if err != nil {
		if newKey != "" {
			s.removePhoto(ctx, newKey)
		}
		return nil, err
	}

	if err := s.invalidate(ctx, cache.EntryKey(saved.ID), cache.ListKey(who.AccountID)); err != nil {
		return nil, err
	}

	if existing != nil && newKey != "" && existing.ObjectKey != "" && existing.ObjectKey != newKey {
		s.removePhoto(ctx, existing.ObjectKey)
	}

	s.publish(ctx, action, saved)
	return &Employee{EmployeePublic: s.project(saved), CreatedAt: saved.CreatedAt}, nil
}

// Delete removes an employee owned by the caller along with its photo.
func (s *Service) Delete(ctx context.Context, who auth.Identity, id int64) error {
	existing, err := s.loadOwned(ctx, who, id)
	if err != nil {
		return err
	}

	removed, err := s.store.DeleteEmployee(ctx, id)
	if err != nil {
		return err
	}
	if !removed {
		return fmt.Errorf("employee %d: %w", id, apperr.ErrNotFound)
	}

	if err := s.invalidate(ctx, cache.EntryKey(id), cache.ListKey(who.AccountID)); err != nil {
		return err
	}

	if existing.ObjectKey != "" {
		s.removePhoto(ctx, existing.ObjectKey)
	}
	s.publish(ctx, events.EmployeeDeleted, existing)
	return nil
}

// loadOwned reads the record straight from the store; writes never trust
// cached ownership.
func (s *Service) loadOwned(ctx context.Context, who auth.Identity, id int64) (*db.Employee, error) {
	e, err := s.store.GetEmployee(ctx, id)
	if err != nil {
		return nil, err
	}
	if e == nil {
		return nil, fmt.Errorf("employee %d: %w", id, apperr.ErrNotFound)
	}
	if e.OwnerID != who.AccountID {
		return nil, fmt.Errorf("employee %d: %w", id, apperr.ErrForbidden)
	}
	return e, nil
}

func (s *Service) removePhoto(ctx context.Context, key string) {
	if err := s.photos.Delete(ctx, key); err != nil {
		slog.Warn("failed to delete photo", "object_key", key, "error", err)
	}
}

func (s *Service) publish(ctx context.Context, action events.EmployeeAction, e *db.Employee) {
	if s.events == nil {
		return
	}
	s.events.PublishEmployeeChanged(ctx, action, e.ID, e.OwnerID, e.FullName)
}
