package repo

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ovaphlow/pitchfork/service-account-go/internal/user/entity"
)

func TestMemoryUserRepo_CRUD(t *testing.T) {
	ctx := context.Background()
	r := NewMemoryUserRepo()

	created, err := r.Create(ctx, &entity.User{Email: "a@x.com", Name: "Ann", PasswordHash: "hash"})
	require.NoError(t, err)
	assert.NotEmpty(t, created.ID)
	assert.Empty(t, created.PasswordHash)
	assert.False(t, created.CreatedAt.IsZero())

	byID, err := r.GetByID(ctx, created.ID)
	require.NoError(t, err)
	assert.Empty(t, byID.PasswordHash)

	byEmail, err := r.GetByEmail(ctx, "a@x.com")
	require.NoError(t, err)
	assert.Equal(t, "hash", byEmail.PasswordHash)

	_, err = r.GetByEmail(ctx, "A@x.com")
	assert.ErrorIs(t, err, ErrNotFound)

	updated, err := r.Update(ctx, created.ID, entity.UserPatch{Email: strPtr("b@x.com"), Bio: strPtr("bio")})
	require.NoError(t, err)
	assert.Equal(t, "b@x.com", updated.Email)
	assert.Equal(t, "bio", *updated.Bio)
	assert.Empty(t, updated.PasswordHash)

	_, err = r.GetByEmail(ctx, "a@x.com")
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, r.SetPasswordHash(ctx, created.ID, "hash2"))
	byEmail, err = r.GetByEmail(ctx, "b@x.com")
	require.NoError(t, err)
	assert.Equal(t, "hash2", byEmail.PasswordHash)

	require.NoError(t, r.Delete(ctx, created.ID))
	assert.ErrorIs(t, r.Delete(ctx, created.ID), ErrNotFound)
	_, err = r.GetByID(ctx, created.ID)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Zero(t, r.Len())
}

func TestMemoryUserRepo_DuplicateEmail(t *testing.T) {
	ctx := context.Background()
	r := NewMemoryUserRepo()

	a, err := r.Create(ctx, &entity.User{Email: "a@x.com", Name: "Ann"})
	require.NoError(t, err)
	_, err = r.Create(ctx, &entity.User{Email: "b@x.com", Name: "Bob"})
	require.NoError(t, err)

	_, err = r.Create(ctx, &entity.User{Email: "a@x.com", Name: "Other"})
	assert.ErrorIs(t, err, ErrDuplicateEmail)

	_, err = r.Update(ctx, a.ID, entity.UserPatch{Email: strPtr("b@x.com")})
	assert.ErrorIs(t, err, ErrDuplicateEmail)

	// same email is not a conflict with itself
	_, err = r.Update(ctx, a.ID, entity.UserPatch{Email: strPtr("a@x.com")})
	assert.NoError(t, err)
	assert.Equal(t, 2, r.Len())
}

func TestMemoryUserRepo_ConcurrentDuplicateCreate(t *testing.T) {
	ctx := context.Background()
	r := NewMemoryUserRepo()

	const n = 16
	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := r.Create(ctx, &entity.User{Email: "race@x.com", Name: "Racer"})
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	ok := 0
	for err := range errs {
		if err == nil {
			ok++
			continue
		}
		assert.ErrorIs(t, err, ErrDuplicateEmail)
	}
	assert.Equal(t, 1, ok)
	assert.Equal(t, 1, r.Len())
}
