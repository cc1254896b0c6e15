package pg_test

import (
	"context"
	"os"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dropDatabas3/oauthlink/internal/domain/repository"
	"github.com/dropDatabas3/oauthlink/internal/linker"
	"github.com/dropDatabas3/oauthlink/internal/oauth"
	"github.com/dropDatabas3/oauthlink/internal/store/pg"
)

// Requiere un Postgres real: OAUTHLINK_TEST_PG_DSN=postgres://...
func openTestStore(t *testing.T) *pg.Store {
	t.Helper()
	dsn := os.Getenv("OAUTHLINK_TEST_PG_DSN")
	if dsn == "" {
		t.Skip("OAUTHLINK_TEST_PG_DSN not set")
	}
	ctx := context.Background()
	s, err := pg.Open(ctx, pg.Config{DSN: dsn, MaxConns: 16})
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	require.NoError(t, s.EnsureSchema(ctx))
	require.NoError(t, s.EnsureSchema(ctx))
	return s
}

// la base es compartida entre corridas: emails e ids únicos por test
func uniq(prefix string) string { return prefix + "-" + uuid.NewString() }

func TestUsersAndLinks_ConflictsMapToErrConflict(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	email := uniq("ada") + "@example.com"

	u, err := s.Repos().Users().Create(ctx, repository.CreateUserInput{Email: email, Name: "Ada"})
	require.NoError(t, err)
	assert.False(t, u.HasPassword())

	_, err = s.Repos().Users().Create(ctx, repository.CreateUserInput{Email: email})
	assert.ErrorIs(t, err, repository.ErrConflict)

	sub := uniq("gh")
	_, err = s.Repos().Links().Create(ctx, repository.CreateLinkInput{UserID: u.ID, Provider: "github", ProviderUserID: sub})
	require.NoError(t, err)
	_, err = s.Repos().Links().Create(ctx, repository.CreateLinkInput{UserID: u.ID, Provider: "github", ProviderUserID: sub})
	assert.ErrorIs(t, err, repository.ErrConflict)

	require.NoError(t, s.Repos().Links().Delete(ctx, u.ID, "github"))
	assert.ErrorIs(t, s.Repos().Links().Delete(ctx, u.ID, "github"), repository.ErrNotFound)
}

func TestInTx_ConflictAbortsAndRollsBack(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	email := uniq("tx") + "@example.com"

	_, err := s.Repos().Users().Create(ctx, repository.CreateUserInput{Email: email})
	require.NoError(t, err)

	other := uniq("tx-other") + "@example.com"
	err = s.InTx(ctx, func(r repository.Repos) error {
		if _, err := r.Users().Create(ctx, repository.CreateUserInput{Email: other}); err != nil {
			return err
		}
		_, err := r.Users().Create(ctx, repository.CreateUserInput{Email: email})
		return err
	})
	require.ErrorIs(t, err, repository.ErrConflict)

	_, err = s.Repos().Users().FindByEmail(ctx, other)
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestLinker_ConcurrentFirstLoginCreatesOneLink(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	l := linker.New(s, linker.Options{})

	id := &oauth.Identity{
		Provider:       oauth.Google,
		ProviderUserID: uniq("g"),
		Email:          uniq("race") + "@example.com",
		EmailVerified:  true,
		DisplayName:    "Racer",
	}

	const n = 8
	var wg sync.WaitGroup
	users := make([]string, n)
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			res, err := l.Resolve(ctx, id, "")
			errs[i] = err
			if err == nil {
				users[i] = res.User.ID
			}
		}(i)
	}
	wg.Wait()

	for i := 0; i < n; i++ {
		require.NoError(t, errs[i])
		assert.Equal(t, users[0], users[i])
	}
	links, err := l.Links(ctx, users[0])
	require.NoError(t, err)
	assert.Len(t, links, 1)
}
