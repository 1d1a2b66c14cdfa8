// Package sqlstore persists users in SQLite.
package sqlstore

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"time"

	apperrors "github.com/jrsteele09/go-backoffice/internal/errors"
	"github.com/jrsteele09/go-backoffice/users"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// Immediate transactions take the write lock on BEGIN, which serializes the
// bootstrap count-then-insert across connections.
const dsnParams = "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)&_txlock=immediate"

var _ users.UserRepo = (*SQLiteStore)(nil)

// SQLiteStore implements users.UserRepo using SQLite.
type SQLiteStore struct {
	db     *sql.DB
	logger zerolog.Logger
}

// NewSQLiteStore opens (or creates) a SQLite database at dbPath and applies
// the schema. Use ":memory:" for an in-memory database.
func NewSQLiteStore(ctx context.Context, dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath+dsnParams)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", dbPath, err)
	}
	if dbPath == ":memory:" {
		// Every connection would otherwise get its own empty database.
		db.SetMaxOpenConns(1)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite %s: %w", dbPath, err)
	}

	s := &SQLiteStore{
		db:     db,
		logger: log.With().Str("component", "userstore").Logger(),
	}
	if err := migrate(ctx, db); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanUser(row scanner) (*users.User, error) {
	var u users.User
	var role, createdAt string
	if err := row.Scan(&u.ID, &u.Email, &u.Name, &role, &createdAt); err != nil {
		return nil, err
	}
	u.Role = users.Role(role)
	t, err := time.Parse(time.RFC3339Nano, createdAt)
	if err != nil {
		return nil, fmt.Errorf("parse created_at %q: %w", createdAt, err)
	}
	u.CreatedAt = t
	return &u, nil
}

const selectUser = `SELECT id, email, name, role, created_at FROM users`

func (s *SQLiteStore) GetByID(ctx context.Context, id string) (*users.User, error) {
	s.logger.Debug().Str("op", "select").Str("id", id).Msg("sql")

	u, err := scanUser(s.db.QueryRowContext(ctx, selectUser+` WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.ErrNotFound
	}
	if err != nil {
		return nil, classify("get user", err)
	}
	return u, nil
}

// CreateBootstrapped runs inside an immediate transaction. The role is
// decided by the INSERT itself from the emptiness of the table, so the check
// and the write are one statement under the database write lock.
func (s *SQLiteStore) CreateBootstrapped(ctx context.Context, user *users.User) (*users.User, bool, error) {
	s.logger.Debug().Str("op", "bootstrap").Str("id", user.ID).Msg("sql")

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, false, classify("begin tx", err)
	}
	defer tx.Rollback()

	existing, err := scanUser(tx.QueryRowContext(ctx, selectUser+` WHERE id = ?`, user.ID))
	if err == nil {
		return existing, false, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, false, classify("check existing user", err)
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO users (id, email, name, role, created_at)
		 SELECT ?, ?, ?,
		        CASE WHEN EXISTS (SELECT 1 FROM users) THEN 'USER' ELSE 'ADMIN' END,
		        ?`,
		user.ID, user.Email, user.Name, user.CreatedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return nil, false, classify("insert user", err)
	}

	stored, err := scanUser(tx.QueryRowContext(ctx, selectUser+` WHERE id = ?`, user.ID))
	if err != nil {
		return nil, false, classify("read back user", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, false, classify("commit", err)
	}
	return stored, true, nil
}

func (s *SQLiteStore) UpdateRole(ctx context.Context, id string, role users.Role) (*users.User, error) {
	s.logger.Debug().Str("op", "update").Str("id", id).Str("role", string(role)).Msg("sql")

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, classify("begin tx", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `UPDATE users SET role = ? WHERE id = ?`, string(role), id)
	if err != nil {
		return nil, classify("update role", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, classify("update role", err)
	}
	if n == 0 {
		return nil, apperrors.ErrNotFound
	}

	u, err := scanUser(tx.QueryRowContext(ctx, selectUser+` WHERE id = ?`, id))
	if err != nil {
		return nil, classify("read back user", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, classify("commit", err)
	}
	return u, nil
}

func (s *SQLiteStore) List(ctx context.Context, offset, limit int) (users.UsersListResponse, error) {
	s.logger.Debug().Str("op", "list").Int("offset", offset).Int("limit", limit).Msg("sql")

	total, err := s.Count(ctx)
	if err != nil {
		return users.UsersListResponse{}, err
	}

	rows, err := s.db.QueryContext(ctx,
		selectUser+` ORDER BY created_at, id LIMIT ? OFFSET ?`, limit, offset)
	if err != nil {
		return users.UsersListResponse{}, classify("list users", err)
	}
	defer rows.Close()

	list := make([]*users.User, 0)
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return users.UsersListResponse{}, classify("scan user", err)
		}
		list = append(list, u)
	}
	if err := rows.Err(); err != nil {
		return users.UsersListResponse{}, classify("list users", err)
	}

	return users.UsersListResponse{
		Users:  list,
		Total:  total,
		Offset: offset,
		Limit:  limit,
	}, nil
}

func (s *SQLiteStore) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM users`).Scan(&n); err != nil {
		return 0, classify("count users", err)
	}
	return n, nil
}

func (s *SQLiteStore) Delete(ctx context.Context, id string) error {
	s.logger.Debug().Str("op", "delete").Str("id", id).Msg("sql")

	res, err := s.db.ExecContext(ctx, `DELETE FROM users WHERE id = ?`, id)
	if err != nil {
		return classify("delete user", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return classify("delete user", err)
	}
	if n == 0 {
		return apperrors.ErrNotFound
	}
	return nil
}

// classify marks lock contention and dropped connections as transient so the
// retry executor repeats them; everything else is returned as is.
func classify(op string, err error) error {
	if isTransient(err) {
		return apperrors.Transient(fmt.Errorf("%s: %w", op, err))
	}
	return fmt.Errorf("%s: %w", op, err)
}

func isTransient(err error) bool {
	if errors.Is(err, driver.ErrBadConn) || errors.Is(err, sql.ErrConnDone) {
		return true
	}
	var se *sqlite.Error
	if errors.As(err, &se) {
		switch se.Code() & 0xff {
		case sqlite3.SQLITE_BUSY, sqlite3.SQLITE_LOCKED:
			return true
		}
	}
	return false
}
