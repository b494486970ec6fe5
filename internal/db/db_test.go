package db

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"eddisonso.com/edd-directory/internal/apperr"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	database, err := Open(context.Background(), "sqlite", filepath.Join(t.TempDir(), "directory.db"), Options{})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { database.Close() })
	return database
}

func TestRebindPlaceholders(t *testing.T) {
	lite := &DB{driver: "sqlite"}
	got := lite.q("UPDATE t SET a = $1, b = $12 WHERE c = $2 AND d = '$'")
	want := "UPDATE t SET a = ?1, b = ?12 WHERE c = ?2 AND d = '$'"
	if got != want {
		t.Fatalf("got %q, want %q", got, want)
	}

	pg := &DB{driver: "postgres"}
	if q := pg.q("SELECT $1"); q != "SELECT $1" {
		t.Fatalf("postgres query rewritten: %q", q)
	}
}

func TestOpen_UnsupportedDriver(t *testing.T) {
	if _, err := Open(context.Background(), "mysql", "x", Options{}); err == nil {
		t.Fatal("expected error")
	}
}

func TestOpen_MigrationsAreIdempotent(t *testing.T) {
	database := openTestDB(t)
	if err := database.migrate(context.Background()); err != nil {
		t.Fatalf("second migrate: %v", err)
	}
}

func TestAccounts(t *testing.T) {
	ctx := context.Background()
	database := openTestDB(t)

	created, err := database.CreateAccount(ctx, &Account{Username: "alice", PasswordHash: "hash", FullName: "Alice A"})
	if err != nil {
		t.Fatal(err)
	}
	if created.ID <= 0 {
		t.Fatalf("expected assigned id, got %d", created.ID)
	}

	_, err = database.CreateAccount(ctx, &Account{Username: "alice", PasswordHash: "other"})
	if !errors.Is(err, apperr.ErrAlreadyExists) {
		t.Fatalf("expected ErrAlreadyExists, got %v", err)
	}

	found, err := database.GetAccountByUsername(ctx, "alice")
	if err != nil {
		t.Fatal(err)
	}
	if found == nil || found.ID != created.ID || found.PasswordHash != "hash" || found.FullName != "Alice A" {
		t.Fatalf("unexpected account: %+v", found)
	}

	missing, err := database.GetAccountByUsername(ctx, "nobody")
	if err != nil || missing != nil {
		t.Fatalf("expected nil, nil; got %+v, %v", missing, err)
	}
}

func TestEmployees_ListScopedAndOrdered(t *testing.T) {
	ctx := context.Background()
	database := openTestDB(t)

	for _, e := range []*Employee{
		{OwnerID: 1, FullName: "Alma", Location: "Seoul"},
		{OwnerID: 1, FullName: "Zed", Location: "Busan"},
		{OwnerID: 2, FullName: "Other", Location: "Daegu"},
		{OwnerID: 1, FullName: "Mia", Location: "Incheon"},
	} {
		if _, err := database.CreateEmployee(ctx, e); err != nil {
			t.Fatal(err)
		}
	}

	list, err := database.ListEmployeesByOwner(ctx, 1)
	if err != nil {
		t.Fatal(err)
	}
	var names []string
	for _, e := range list {
		names = append(names, e.FullName)
	}
	if len(names) != 3 || names[0] != "Zed" || names[1] != "Mia" || names[2] != "Alma" {
		t.Fatalf("unexpected order: %v", names)
	}

	empty, err := database.ListEmployeesByOwner(ctx, 99)
	if err != nil {
		t.Fatal(err)
	}
	if empty == nil || len(empty) != 0 {
		t.Fatalf("expected empty non-nil slice, got %#v", empty)
	}
}

func TestEmployees_UpdateKeepsPhotoUnlessGiven(t *testing.T) {
	ctx := context.Background()
	database := openTestDB(t)

	e, err := database.CreateEmployee(ctx, &Employee{OwnerID: 1, FullName: "Bob", ObjectKey: "old.png", Badges: "go"})
	if err != nil {
		t.Fatal(err)
	}

	updated, err := database.UpdateEmployee(ctx, e.ID, EmployeeUpdate{FullName: "Bobby", Location: "Seoul"})
	if err != nil {
		t.Fatal(err)
	}
	if updated.FullName != "Bobby" || updated.ObjectKey != "old.png" || updated.Badges != "" {
		t.Fatalf("unexpected update: %+v", updated)
	}

	key := "new.png"
	updated, err = database.UpdateEmployee(ctx, e.ID, EmployeeUpdate{FullName: "Bobby", ObjectKey: &key})
	if err != nil {
		t.Fatal(err)
	}
	if updated.ObjectKey != "new.png" || updated.OwnerID != 1 {
		t.Fatalf("unexpected update: %+v", updated)
	}

	missing, err := database.UpdateEmployee(ctx, 4242, EmployeeUpdate{FullName: "Ghost"})
	if err != nil || missing != nil {
		t.Fatalf("expected nil, nil; got %+v, %v", missing, err)
	}
}

func TestEmployees_GetAndDelete(t *testing.T) {
	ctx := context.Background()
	database := openTestDB(t)

	e, err := database.CreateEmployee(ctx, &Employee{OwnerID: 3, FullName: "Cy"})
	if err != nil {
		t.Fatal(err)
	}

	got, err := database.GetEmployee(ctx, e.ID)
	if err != nil || got == nil || got.FullName != "Cy" || got.OwnerID != 3 {
		t.Fatalf("get: %+v, %v", got, err)
	}

	removed, err := database.DeleteEmployee(ctx, e.ID)
	if err != nil || !removed {
		t.Fatalf("delete: %v, %v", removed, err)
	}
	removed, err = database.DeleteEmployee(ctx, e.ID)
	if err != nil || removed {
		t.Fatalf("second delete: %v, %v", removed, err)
	}

	got, err = database.GetEmployee(ctx, e.ID)
	if err != nil || got != nil {
		t.Fatalf("expected nil, nil after delete; got %+v, %v", got, err)
	}
}

type unknownRowsResult struct{}

func (unknownRowsResult) LastInsertId() (int64, error) { return 0, nil }
func (unknownRowsResult) RowsAffected() (int64, error) {
	return 0, errors.New("rows affected not supported")
}

func TestRemovedAny(t *testing.T) {
	if _, err := removedAny(unknownRowsResult{}); !errors.Is(err, apperr.ErrInternalStore) {
		t.Fatalf("expected ErrInternalStore, got %v", err)
	}
	if removed, err := removedAny(driverResult(1)); err != nil || !removed {
		t.Fatalf("one row: %v, %v", removed, err)
	}
	if removed, err := removedAny(driverResult(0)); err != nil || removed {
		t.Fatalf("no rows: %v, %v", removed, err)
	}
}

type driverResult int64

func (r driverResult) LastInsertId() (int64, error) { return 0, nil }
func (r driverResult) RowsAffected() (int64, error) { return int64(r), nil }
