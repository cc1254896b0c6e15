package repository

import "context"

// Repos agrupa los repositorios ligados a una misma transacción.
type Repos interface {
	Users() UserRepository
	Links() LinkRepository
}

// Store es implementado por cada driver.
type Store interface {
	// InTx corre fn dentro de una transacción. Commit si fn retorna nil,
	// rollback en cualquier otro caso.
	InTx(ctx context.Context, fn func(Repos) error) error

	// Repos sin transacción, para lecturas sueltas.
	Repos() Repos

	// EnsureSchema aplica el DDL idempotente (CREATE ... IF NOT EXISTS).
	EnsureSchema(ctx context.Context) error

	Ping(ctx context.Context) error
	Close() error
}
