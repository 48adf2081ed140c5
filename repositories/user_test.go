package repositories

import (
	"chatto/domain"
	"chatto/errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestUserRepository_CreateAndGet(t *testing.T) {
	req := require.New(t)
	db, ids := openDB(t)
	repo := NewUserRepository(db, ids)

	// Given a registered user with a mixed case email
	created, err := repo.CreateUser("Alice@Example.com ", "hash")
	req.NoError(err)
	req.Equal("alice@example.com", created.Email)
	req.NotZero(created.ID)

	// Then it can be found by email in any case and by id
	byEmail, err := repo.GetUserByEmail("ALICE@example.com")
	req.NoError(err)
	req.Equal(created.ID, byEmail.ID)
	req.Equal("hash", byEmail.PasswordHash)

	byID, err := repo.GetUser(created.ID)
	req.NoError(err)
	req.Equal(created.Email, byID.Email)
}

func TestUserRepository_DuplicateEmail(t *testing.T) {
	req := require.New(t)
	db, ids := openDB(t)
	repo := NewUserRepository(db, ids)

	_, err := repo.CreateUser("bob@example.com", "hash")
	req.NoError(err)

	// When the same email registers again
	_, err = repo.CreateUser("BOB@example.com", "other")

	// Then it is rejected as a validation error
	req.ErrorIs(err, errors.ErrEmailTaken)
	req.ErrorIs(err, errors.ErrValidation)
}

func TestUserRepository_Unknown(t *testing.T) {
	req := require.New(t)
	db, ids := openDB(t)
	repo := NewUserRepository(db, ids)

	_, err := repo.GetUser(42)
	req.ErrorIs(err, errors.ErrUserNotFound)

	_, err = repo.GetUserByEmail("nobody@example.com")
	req.ErrorIs(err, errors.ErrUserNotFound)

	alice, err := repo.CreateUser("alice@example.com", "hash")
	req.NoError(err)
	_, err = repo.GetUsers([]domain.UserID{alice.ID, 999})
	req.ErrorIs(err, errors.ErrNotFound)
}

func TestUserRepository_SearchUsers(t *testing.T) {
	req := require.New(t)
	db, ids := openDB(t)
	repo := NewUserRepository(db, ids)

	alice, err := repo.CreateUser("alice@example.com", "hash")
	req.NoError(err)
	_, err = repo.CreateUser("alicia@example.com", "hash")
	req.NoError(err)
	_, err = repo.CreateUser("bob@example.com", "hash")
	req.NoError(err)

	t.Run("should exclude the requester", func(t *testing.T) {
		users, err := repo.SearchUsers("ALI", alice.ID, 10)
		require.NoError(t, err)
		require.Len(t, users, 1)
		require.Equal(t, "alicia@example.com", users[0].Email)
	})

	t.Run("should honor the limit", func(t *testing.T) {
		users, err := repo.SearchUsers("example", 0, 2)
		require.NoError(t, err)
		require.Len(t, users, 2)
	})
}

func TestUserRepository_UpdatePassword(t *testing.T) {
	req := require.New(t)
	db, ids := openDB(t)
	repo := NewUserRepository(db, ids)

	user, err := repo.CreateUser("carol@example.com", "old")
	req.NoError(err)

	req.NoError(repo.UpdatePassword(user.ID, "new"))
	fetched, err := repo.GetUser(user.ID)
	req.NoError(err)
	req.Equal("new", fetched.PasswordHash)
	req.Equal(user.Email, fetched.Email)

	req.ErrorIs(repo.UpdatePassword(999, "x"), errors.ErrUserNotFound)
}
