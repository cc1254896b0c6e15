// Package sqlite implementa repository.Store sobre SQLite (modernc, sin cgo).
// Pensado para desarrollo, instalaciones de un solo nodo y tests.
package sqlite

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	msqlite "modernc.org/sqlite"
	sqlite3lib "modernc.org/sqlite/lib"

	"github.com/dropDatabas3/oauthlink/internal/domain/repository"
)

//go:embed schema.sql
var schemaSQL string

// Store es el driver SQLite.
type Store struct {
	db *sql.DB
}

var _ repository.Store = (*Store)(nil)

func toMillis(t time.Time) int64 { return t.UTC().UnixMilli() }

func fromMillis(v int64) time.Time { return time.UnixMilli(v).UTC() }

// Open abre (o crea) la base en path. Una sola conexión: SQLite serializa
// escritores de todos modos y así las transacciones no chocan con SQLITE_BUSY.
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("sqlite: path is required")
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return nil, fmt.Errorf("sqlite: mkdir: %w", err)
		}
	}
	dsn := filepath.Clean(path) + "?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlite: open: %w", err)
	}
	db.SetMaxOpenConns(1)
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite: ping: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("sqlite: apply schema: %w", err)
	}
	return nil
}

func (s *Store) Repos() repository.Repos { return repos{db: s.db} }

func (s *Store) InTx(ctx context.Context, fn func(repository.Repos) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite: begin: %w", err)
	}
	defer tx.Rollback()

	if err := fn(repos{db: tx}); err != nil {
		return err
	}
	return tx.Commit()
}

// dbtx es lo común entre *sql.DB y *sql.Tx.
type dbtx interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type repos struct{ db dbtx }

func (r repos) Users() repository.UserRepository { return userRepo{db: r.db} }
func (r repos) Links() repository.LinkRepository { return linkRepo{db: r.db} }

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	var sqliteErr *msqlite.Error
	if errors.As(err, &sqliteErr) {
		switch sqliteErr.Code() {
		case sqlite3lib.SQLITE_CONSTRAINT_PRIMARYKEY, sqlite3lib.SQLITE_CONSTRAINT_UNIQUE:
			return true
		}
	}
	return strings.Contains(strings.ToLower(err.Error()), "unique constraint failed")
}

type scanner interface {
	Scan(dest ...any) error
}

// ─── users ───

type userRepo struct{ db dbtx }

const userCols = `id, email, name, password_hash, created_at`

func scanUser(row scanner) (*repository.User, error) {
	var (
		u       repository.User
		pw      sql.NullString
		created int64
	)
	if err := row.Scan(&u.ID, &u.Email, &u.Name, &pw, &created); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}
	if pw.Valid {
		u.PasswordHash = &pw.String
	}
	u.CreatedAt = fromMillis(created)
	return &u, nil
}

func (r userRepo) FindByID(ctx context.Context, id string) (*repository.User, error) {
	return scanUser(r.db.QueryRowContext(ctx, `SELECT `+userCols+` FROM users WHERE id = ?`, id))
}

func (r userRepo) FindByEmail(ctx context.Context, email string) (*repository.User, error) {
	email = strings.TrimSpace(email)
	if email == "" {
		return nil, repository.ErrNotFound
	}
	return scanUser(r.db.QueryRowContext(ctx,
		`SELECT `+userCols+` FROM users WHERE LOWER(email) = LOWER(?) AND email <> ''`, email))
}

func (r userRepo) Create(ctx context.Context, in repository.CreateUserInput) (*repository.User, error) {
	u := &repository.User{
		ID:        uuid.NewString(),
		Email:     strings.TrimSpace(in.Email),
		Name:      in.Name,
		CreatedAt: time.Now().UTC().Truncate(time.Millisecond),
	}
	var pw sql.NullString
	if in.PasswordHash != "" {
		h := in.PasswordHash
		u.PasswordHash = &h
		pw = sql.NullString{String: h, Valid: true}
	}
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO users (id, email, name, password_hash, created_at) VALUES (?, ?, ?, ?, ?)`,
		u.ID, u.Email, u.Name, pw, toMillis(u.CreatedAt))
	if err != nil {
		if isUniqueViolation(err) {
			return nil, repository.ErrConflict
		}
		return nil, err
	}
	return u, nil
}

// ─── oauth_accounts ───

type linkRepo struct{ db dbtx }

const linkCols = `id, user_id, provider, provider_user_id, email, name, avatar_url, created_at, updated_at`

func scanLink(row scanner) (*repository.AccountLink, error) {
	var (
		l                repository.AccountLink
		created, updated int64
	)
	err := row.Scan(&l.ID, &l.UserID, &l.Provider, &l.ProviderUserID,
		&l.Email, &l.DisplayName, &l.AvatarURL, &created, &updated)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}
	l.CreatedAt = fromMillis(created)
	l.UpdatedAt = fromMillis(updated)
	return &l, nil
}

func (r linkRepo) GetByProvider(ctx context.Context, provider, providerUserID string) (*repository.AccountLink, error) {
	return scanLink(r.db.QueryRowContext(ctx,
		`SELECT `+linkCols+` FROM oauth_accounts WHERE provider = ? AND provider_user_id = ?`,
		provider, providerUserID))
}

func (r linkRepo) ListByUser(ctx context.Context, userID string) ([]repository.AccountLink, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+linkCols+` FROM oauth_accounts WHERE user_id = ? ORDER BY created_at, provider`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []repository.AccountLink
	for rows.Next() {
		l, err := scanLink(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *l)
	}
	return out, rows.Err()
}

func (r linkRepo) Create(ctx context.Context, in repository.CreateLinkInput) (*repository.AccountLink, error) {
	now := time.Now().UTC().Truncate(time.Millisecond)
	l := &repository.AccountLink{
		ID:             uuid.NewString(),
		UserID:         in.UserID,
		Provider:       in.Provider,
		ProviderUserID: in.ProviderUserID,
		Email:          in.Email,
		DisplayName:    in.DisplayName,
		AvatarURL:      in.AvatarURL,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO oauth_accounts (id, user_id, provider, provider_user_id, email, name, avatar_url, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		l.ID, l.UserID, l.Provider, l.ProviderUserID, l.Email, l.DisplayName, l.AvatarURL,
		toMillis(now), toMillis(now))
	if err != nil {
		if isUniqueViolation(err) {
			return nil, repository.ErrConflict
		}
		return nil, err
	}
	return l, nil
}

func (r linkRepo) UpdateProfile(ctx context.Context, id string, p repository.LinkProfile) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE oauth_accounts SET email = ?, name = ?, avatar_url = ?, updated_at = ?
		WHERE id = ?`, p.Email, p.DisplayName, p.AvatarURL, toMillis(time.Now()), id)
	if err != nil {
		return err
	}
	return requireAffected(res)
}

func (r linkRepo) Delete(ctx context.Context, userID, provider string) error {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM oauth_accounts WHERE user_id = ? AND provider = ?`, userID, provider)
	if err != nil {
		return err
	}
	return requireAffected(res)
}

func requireAffected(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return repository.ErrNotFound
	}
	return nil
}
