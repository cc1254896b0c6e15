package oauth

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubProvider struct{ id ProviderID }

func (s stubProvider) ID() ProviderID { return s.id }
func (s stubProvider) AuthorizationURL(context.Context, string, string) (string, error) {
	return "", nil
}
func (s stubProvider) ExchangeCode(context.Context, string, string) (*Token, error) {
	return nil, nil
}
func (s stubProvider) FetchIdentity(context.Context, *Token) (*Identity, error) {
	return nil, nil
}

func TestRegistry_EnableBuildsOnce(t *testing.T) {
	r := NewRegistry()
	calls := 0
	r.RegisterFactory(GitHub, func(cfg ProviderConfig) (Provider, error) {
		calls++
		return stubProvider{id: GitHub}, nil
	})

	p1, err := r.Enable(GitHub, ProviderConfig{ClientID: "x"})
	require.NoError(t, err)
	p2, err := r.Enable(GitHub, ProviderConfig{ClientID: "x"})
	require.NoError(t, err)
	assert.Equal(t, p1, p2)
	assert.Equal(t, 1, calls)

	got, err := r.Get(GitHub)
	require.NoError(t, err)
	assert.Equal(t, GitHub, got.ID())
}

func TestRegistry_Unknown(t *testing.T) {
	r := NewRegistry()
	_, err := r.Get(Google)
	assert.ErrorIs(t, err, ErrUnknownProvider)

	_, err = r.Enable(Google, ProviderConfig{})
	assert.Error(t, err)

	r.RegisterFactory(OIDC, func(ProviderConfig) (Provider, error) { return nil, errors.New("boom") })
	_, err = r.Enable(OIDC, ProviderConfig{})
	assert.ErrorContains(t, err, "boom")
	_, err = r.Get(OIDC)
	assert.ErrorIs(t, err, ErrUnknownProvider)
}

func TestRegistry_EnabledSorted(t *testing.T) {
	r := NewRegistry()
	r.Add(stubProvider{id: OIDC})
	r.Add(stubProvider{id: GitHub})
	r.Add(stubProvider{id: Google})
	assert.Equal(t, []ProviderID{GitHub, Google, OIDC}, r.Enabled())
}
