// Package pg implementa repository.Store sobre PostgreSQL (pgxpool).
package pg

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dropDatabas3/oauthlink/internal/domain/repository"
)

//go:embed schema.sql
var schemaSQL string

// Config tuning opcional del pool.
type Config struct {
	DSN      string
	MaxConns int
	MinConns int
}

// Store es el driver PostgreSQL.
type Store struct {
	pool *pgxpool.Pool
}

var _ repository.Store = (*Store)(nil)

// Open crea el pool y verifica la conexión.
func Open(ctx context.Context, cfg Config) (*Store, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("pg: parse DSN: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = int32(cfg.MaxConns)
	} else {
		poolCfg.MaxConns = 10
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = int32(cfg.MinConns)
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("pg: create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pg: ping failed: %w", err)
	}
	return &Store{pool: pool}, nil
}

func (s *Store) Ping(ctx context.Context) error { return s.pool.Ping(ctx) }

func (s *Store) Close() error {
	if s != nil && s.pool != nil {
		s.pool.Close()
	}
	return nil
}

func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("pg: apply schema: %w", err)
	}
	return nil
}

func (s *Store) Repos() repository.Repos { return repos{db: s.pool} }

func (s *Store) InTx(ctx context.Context, fn func(repository.Repos) error) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("pg: begin: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := fn(repos{db: tx}); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// dbtx es lo común entre *pgxpool.Pool y pgx.Tx.
type dbtx interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type repos struct{ db dbtx }

func (r repos) Users() repository.UserRepository { return userRepo{db: r.db} }
func (r repos) Links() repository.LinkRepository { return linkRepo{db: r.db} }

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505" // unique_violation
}

// ─── users ───

type userRepo struct{ db dbtx }

const userCols = `id, email, name, password_hash, created_at`

func scanUser(row pgx.Row) (*repository.User, error) {
	var u repository.User
	if err := row.Scan(&u.ID, &u.Email, &u.Name, &u.PasswordHash, &u.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}
	return &u, nil
}

func (r userRepo) FindByID(ctx context.Context, id string) (*repository.User, error) {
	return scanUser(r.db.QueryRow(ctx, `SELECT `+userCols+` FROM users WHERE id = $1`, id))
}

func (r userRepo) FindByEmail(ctx context.Context, email string) (*repository.User, error) {
	email = strings.TrimSpace(email)
	if email == "" {
		return nil, repository.ErrNotFound
	}
	return scanUser(r.db.QueryRow(ctx,
		`SELECT `+userCols+` FROM users WHERE LOWER(email) = LOWER($1) AND email <> ''`, email))
}

func (r userRepo) Create(ctx context.Context, in repository.CreateUserInput) (*repository.User, error) {
	u := &repository.User{
		ID:        uuid.NewString(),
		Email:     strings.TrimSpace(in.Email),
		Name:      in.Name,
		CreatedAt: time.Now().UTC(),
	}
	if in.PasswordHash != "" {
		h := in.PasswordHash
		u.PasswordHash = &h
	}
	_, err := r.db.Exec(ctx,
		`INSERT INTO users (id, email, name, password_hash, created_at) VALUES ($1, $2, $3, $4, $5)`,
		u.ID, u.Email, u.Name, u.PasswordHash, u.CreatedAt)
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

func scanLink(row pgx.Row) (*repository.AccountLink, error) {
	var l repository.AccountLink
	err := row.Scan(&l.ID, &l.UserID, &l.Provider, &l.ProviderUserID,
		&l.Email, &l.DisplayName, &l.AvatarURL, &l.CreatedAt, &l.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}
	return &l, nil
}

func (r linkRepo) GetByProvider(ctx context.Context, provider, providerUserID string) (*repository.AccountLink, error) {
	return scanLink(r.db.QueryRow(ctx,
		`SELECT `+linkCols+` FROM oauth_accounts WHERE provider = $1 AND provider_user_id = $2`,
		provider, providerUserID))
}

func (r linkRepo) ListByUser(ctx context.Context, userID string) ([]repository.AccountLink, error) {
	rows, err := r.db.Query(ctx,
		`SELECT `+linkCols+` FROM oauth_accounts WHERE user_id = $1 ORDER BY created_at, provider`, userID)
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
	now := time.Now().UTC()
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
	_, err := r.db.Exec(ctx, `
		INSERT INTO oauth_accounts (id, user_id, provider, provider_user_id, email, name, avatar_url, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $8)`,
		l.ID, l.UserID, l.Provider, l.ProviderUserID, l.Email, l.DisplayName, l.AvatarURL, now)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, repository.ErrConflict
		}
		return nil, err
	}
	return l, nil
}

func (r linkRepo) UpdateProfile(ctx context.Context, id string, p repository.LinkProfile) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE oauth_accounts SET email = $2, name = $3, avatar_url = $4, updated_at = NOW()
		WHERE id = $1`, id, p.Email, p.DisplayName, p.AvatarURL)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}

func (r linkRepo) Delete(ctx context.Context, userID, provider string) error {
	tag, err := r.db.Exec(ctx,
		`DELETE FROM oauth_accounts WHERE user_id = $1 AND provider = $2`, userID, provider)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}
