package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"eddisonso.com/edd-directory/internal/apperr"
)

type Employee struct {
	ID        int64
	OwnerID   int64
	ObjectKey string
	FullName  string
	Location  string
	JobTitle  string
	Badges    string
	CreatedAt time.Time
}

// EmployeeUpdate carries the mutable fields of an employee. ObjectKey is left
// untouched when nil.
type EmployeeUpdate struct {
	FullName  string
	Location  string
	JobTitle  string
	Badges    string
	ObjectKey *string
}

const employeeColumns = `id, owner_id, object_key, full_name, location, job_title, badges, created_at`

type scanner interface {
	Scan(dest ...any) error
}

func scanEmployee(row scanner) (*Employee, error) {
	e := &Employee{}
	var created int64
	if err := row.Scan(&e.ID, &e.OwnerID, &e.ObjectKey, &e.FullName, &e.Location, &e.JobTitle, &e.Badges, &created); err != nil {
		return nil, err
	}
	e.CreatedAt = time.Unix(created, 0)
	return e, nil
}

// ListEmployeesByOwner returns the owner's employees by full name, descending.
func (db *DB) ListEmployeesByOwner(ctx context.Context, ownerID int64) ([]*Employee, error) {
	rows, err := db.QueryContext(ctx, db.q(`
		SELECT `+employeeColumns+`
		FROM employees WHERE owner_id = $1
		ORDER BY full_name DESC, id DESC
	`), ownerID)
	if err != nil {
		return nil, fmt.Errorf("query employees: %w: %v", apperr.ErrInternalStore, err)
	}
	defer rows.Close()

	employees := []*Employee{}
	for rows.Next() {
		e, err := scanEmployee(rows)
		if err != nil {
			return nil, fmt.Errorf("scan employee: %w: %v", apperr.ErrInternalStore, err)
		}
		employees = append(employees, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate employees: %w: %v", apperr.ErrInternalStore, err)
	}
	return employees, nil
}

// GetEmployee returns nil, nil when the id is unknown.
func (db *DB) GetEmployee(ctx context.Context, id int64) (*Employee, error) {
	e, err := scanEmployee(db.QueryRowContext(ctx, db.q(`
		SELECT `+employeeColumns+` FROM employees WHERE id = $1
	`), id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query employee: %w: %v", apperr.ErrInternalStore, err)
	}
	return e, nil
}

func (db *DB) CreateEmployee(ctx context.Context, e *Employee) (*Employee, error) {
	now := time.Now().Unix()
	created, err := scanEmployee(db.QueryRowContext(ctx, db.q(`
		INSERT INTO employees (owner_id, object_key, full_name, location, job_title, badges, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING `+employeeColumns+`
	`), e.OwnerID, e.ObjectKey, e.FullName, e.Location, e.JobTitle, e.Badges, now))
	if err != nil {
		return nil, fmt.Errorf("create employee: %w: %v", apperr.ErrInternalStore, err)
	}
	return created, nil
}

// UpdateEmployee returns nil, nil when the id is unknown.
func (db *DB) UpdateEmployee(ctx context.Context, id int64, u EmployeeUpdate) (*Employee, error) {
	query := `
		UPDATE employees SET full_name = $1, location = $2, job_title = $3, badges = $4
		WHERE id = $5
		RETURNING ` + employeeColumns
	args := []any{u.FullName, u.Location, u.JobTitle, u.Badges, id}
	if u.ObjectKey != nil {
		query = `
		UPDATE employees SET full_name = $1, location = $2, job_title = $3, badges = $4, object_key = $6
		WHERE id = $5
		RETURNING ` + employeeColumns
		args = append(args, *u.ObjectKey)
	}

	e, err := scanEmployee(db.QueryRowContext(ctx, db.q(query), args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("update employee: %w: %v", apperr.ErrInternalStore, err)
	}
	return e, nil
}

// DeleteEmployee reports whether a row was removed.
func (db *DB) DeleteEmployee(ctx context.Context, id int64) (bool, error) {
	result, err := db.ExecContext(ctx, db.q(`DELETE FROM employees WHERE id = $1`), id)
	if err != nil {
		return false, fmt.Errorf("delete employee: %w: %v", apperr.ErrInternalStore, err)
	}
	return removedAny(result)
}

func removedAny(result sql.Result) (bool, error) {
	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("delete employee: %w: %v", apperr.ErrInternalStore, err)
	}
	return rows > 0, nil
}
