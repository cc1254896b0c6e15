package repository

import (
	"context"
	"time"
)

// AccountLink asocia una identidad externa (provider, provider_user_id) a un usuario.
type AccountLink struct {
	ID             string
	UserID         string
	Provider       string // "google", "github", "oidc"
	ProviderUserID string
	Email          string
	DisplayName    string
	AvatarURL      string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// CreateLinkInput contiene los datos para crear un link.
type CreateLinkInput struct {
	UserID         string
	Provider       string
	ProviderUserID string
	Email          string
	DisplayName    string
	AvatarURL      string
}

// LinkProfile son los campos refrescados en cada login.
type LinkProfile struct {
	Email       string
	DisplayName string
	AvatarURL   string
}

// LinkRepository define operaciones sobre oauth_accounts.
type LinkRepository interface {
	// GetByProvider busca por (provider, provider_user_id). ErrNotFound si no existe.
	GetByProvider(ctx context.Context, provider, providerUserID string) (*AccountLink, error)

	// ListByUser lista los links de un usuario, ordenados por created_at.
	ListByUser(ctx context.Context, userID string) ([]AccountLink, error)

	// Create inserta un link. ErrConflict si (provider, provider_user_id)
	// ya existe, o si el usuario ya tiene un link para ese provider.
	Create(ctx context.Context, in CreateLinkInput) (*AccountLink, error)

	// UpdateProfile refresca email/nombre/avatar y updated_at.
	UpdateProfile(ctx context.Context, id string, p LinkProfile) error

	// Delete elimina el link del usuario para ese provider. ErrNotFound si no había.
	Delete(ctx context.Context, userID, provider string) error
}
