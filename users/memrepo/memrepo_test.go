package memrepo_test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	apperrors "github.com/jrsteele09/prepa-auth/internal/errors"
	"github.com/jrsteele09/prepa-auth/users"
	"github.com/jrsteele09/prepa-auth/users/memrepo"
	"github.com/stretchr/testify/require"
)

func newUser(username, email string) *users.User {
	return &users.User{
		Username:     username,
		Email:        email,
		PasswordHash: "hash",
		Active:       true,
	}
}

func TestUserRepo_InsertAssignsIDAndFinds(t *testing.T) {
	repo := memrepo.New()
	ctx := context.Background()

	u := newUser("alice", "a@x.com")
	require.NoError(t, repo.Insert(ctx, u))
	require.NotEmpty(t, u.ID)

	byName, err := repo.FindByUsername(ctx, "alice")
	require.NoError(t, err)
	require.Equal(t, u.ID, byName.ID)

	byID, err := repo.FindByID(ctx, u.ID)
	require.NoError(t, err)
	require.Equal(t, "a@x.com", byID.Email)
}

func TestUserRepo_ReturnsCopies(t *testing.T) {
	repo := memrepo.New()
	ctx := context.Background()

	u := newUser("alice", "a@x.com")
	require.NoError(t, repo.Insert(ctx, u))

	found, err := repo.FindByID(ctx, u.ID)
	require.NoError(t, err)
	found.Username = "mallory"

	again, err := repo.FindByID(ctx, u.ID)
	require.NoError(t, err)
	require.Equal(t, "alice", again.Username)
}

func TestUserRepo_InsertUniqueness(t *testing.T) {
	repo := memrepo.New()
	ctx := context.Background()
	require.NoError(t, repo.Insert(ctx, newUser("alice", "a@x.com")))

	t.Run("same username", func(t *testing.T) {
		err := repo.Insert(ctx, newUser("alice", "other@x.com"))
		require.ErrorIs(t, err, apperrors.ErrUsernameTaken)
	})

	t.Run("same email", func(t *testing.T) {
		err := repo.Insert(ctx, newUser("bob", "a@x.com"))
		require.ErrorIs(t, err, apperrors.ErrEmailTaken)
	})

	t.Run("both taken reports username", func(t *testing.T) {
		err := repo.Insert(ctx, newUser("alice", "a@x.com"))
		require.ErrorIs(t, err, apperrors.ErrUsernameTaken)
	})
}

func TestUserRepo_ConcurrentRegistrationHasOneWinner(t *testing.T) {
	repo := memrepo.New()
	ctx := context.Background()

	const attempts = 50
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
		taken     int
	)
	start := make(chan struct{})
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			err := repo.Insert(ctx, newUser("alice", fmt.Sprintf("a%d@x.com", i)))
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				successes++
			case apperrors.Is(err, apperrors.ErrUsernameTaken):
				taken++
			}
		}(i)
	}
	close(start)
	wg.Wait()

	require.Equal(t, 1, successes)
	require.Equal(t, attempts-1, taken)
}

func TestUserRepo_UpdateProfile(t *testing.T) {
	repo := memrepo.New()
	ctx := context.Background()

	alice := newUser("alice", "a@x.com")
	bob := newUser("bob", "b@x.com")
	require.NoError(t, repo.Insert(ctx, alice))
	require.NoError(t, repo.Insert(ctx, bob))

	t.Run("keeps own username and email", func(t *testing.T) {
		updated, err := repo.UpdateProfile(ctx, alice.ID, users.ProfileUpdate{Username: "alice", Email: "a@x.com", FirstName: "Alice"})
		require.NoError(t, err)
		require.Equal(t, "Alice", updated.FirstName)
	})

	t.Run("username owned by another user", func(t *testing.T) {
		_, err := repo.UpdateProfile(ctx, alice.ID, users.ProfileUpdate{Username: "bob", Email: "a@x.com"})
		require.ErrorIs(t, err, apperrors.ErrUsernameTaken)
	})

	t.Run("email owned by another user", func(t *testing.T) {
		_, err := repo.UpdateProfile(ctx, alice.ID, users.ProfileUpdate{Username: "alice", Email: "b@x.com"})
		require.ErrorIs(t, err, apperrors.ErrEmailTaken)
	})

	t.Run("rename frees the old username", func(t *testing.T) {
		_, err := repo.UpdateProfile(ctx, alice.ID, users.ProfileUpdate{Username: "alicia", Email: "a@x.com"})
		require.NoError(t, err)

		_, err = repo.FindByUsername(ctx, "alice")
		require.ErrorIs(t, err, apperrors.ErrNotFound)

		require.NoError(t, repo.Insert(ctx, newUser("alice", "new@x.com")))
	})

	t.Run("unknown user", func(t *testing.T) {
		_, err := repo.UpdateProfile(ctx, "missing", users.ProfileUpdate{Username: "x", Email: "x@x.com"})
		require.ErrorIs(t, err, apperrors.ErrNotFound)
	})
}

func TestUserRepo_ConcurrentRenameHasOneWinner(t *testing.T) {
	repo := memrepo.New()
	ctx := context.Background()

	a := newUser("a", "a@x.com")
	b := newUser("b", "b@x.com")
	require.NoError(t, repo.Insert(ctx, a))
	require.NoError(t, repo.Insert(ctx, b))

	errs := make(chan error, 2)
	var wg sync.WaitGroup
	for _, u := range []*users.User{a, b} {
		wg.Add(1)
		go func(u *users.User) {
			defer wg.Done()
			_, err := repo.UpdateProfile(ctx, u.ID, users.ProfileUpdate{Username: "shared", Email: u.Email})
			errs <- err
		}(u)
	}
	wg.Wait()
	close(errs)

	var successes int
	for err := range errs {
		if err == nil {
			successes++
			continue
		}
		require.ErrorIs(t, err, apperrors.ErrUsernameTaken)
	}
	require.Equal(t, 1, successes)
}

func TestUserRepo_PasswordLastLoginAndDelete(t *testing.T) {
	repo := memrepo.New()
	ctx := context.Background()

	u := newUser("alice", "a@x.com")
	require.NoError(t, repo.Insert(ctx, u))

	updated, err := repo.UpdatePasswordHash(ctx, u.ID, "new-hash")
	require.NoError(t, err)
	require.Equal(t, "new-hash", updated.PasswordHash)

	at := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, repo.UpdateLastLogin(ctx, u.ID, at))
	found, err := repo.FindByID(ctx, u.ID)
	require.NoError(t, err)
	require.NotNil(t, found.LastLogin)
	require.True(t, at.Equal(*found.LastLogin))

	require.NoError(t, repo.Delete(ctx, u.ID))
	_, err = repo.FindByID(ctx, u.ID)
	require.ErrorIs(t, err, apperrors.ErrNotFound)
	require.ErrorIs(t, repo.Delete(ctx, u.ID), apperrors.ErrNotFound)

	// Username and email are free again once the user is gone.
	require.NoError(t, repo.Insert(ctx, newUser("alice", "a@x.com")))
}
