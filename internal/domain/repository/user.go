package repository

import (
	"context"
	"time"
)

// User es el registro interno de usuario. Los usuarios creados por el flujo
// OAuth no tienen PasswordHash.
type User struct {
	ID           string
	Email        string
	Name         string
	PasswordHash *string
	CreatedAt    time.Time
}

// HasPassword indica si el usuario puede loguearse sin un provider externo.
func (u *User) HasPassword() bool {
	return u != nil && u.PasswordHash != nil && *u.PasswordHash != ""
}

// CreateUserInput contiene los datos para crear un usuario.
type CreateUserInput struct {
	Email string
	Name  string
	// PasswordHash vacío = sin password.
	PasswordHash string
}

// UserRepository define operaciones sobre usuarios.
type UserRepository interface {
	// FindByID retorna ErrNotFound si no existe.
	FindByID(ctx context.Context, id string) (*User, error)

	// FindByEmail compara case-insensitive. Retorna ErrNotFound si no existe.
	FindByEmail(ctx context.Context, email string) (*User, error)

	// Create inserta un usuario nuevo. ErrConflict si el email ya existe.
	Create(ctx context.Context, in CreateUserInput) (*User, error)
}
