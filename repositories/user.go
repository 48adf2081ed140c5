//go:generate go run go.uber.org/mock/mockgen -source=user.go -destination=../mocks/mock_user_repository.go -package=mocks
package repositories

import (
	"chatto/domain"
	"chatto/errors"
	"strings"
	"time"

	"github.com/dgraph-io/badger/v4"
)

type IUserRepository interface {
	CreateUser(email, hashedPassword string) (domain.User, error)
	GetUserByEmail(email string) (domain.User, error)
	GetUser(id domain.UserID) (domain.User, error)
	GetUsers(ids []domain.UserID) (map[domain.UserID]domain.User, error)
	SearchUsers(query string, exclude domain.UserID, limit int) ([]domain.User, error)
	UpdatePassword(id domain.UserID, hashedPassword string) error
}

type UserRepository struct {
	db  *badger.DB
	ids *IDGenerator
}

func NewUserRepository(db *badger.DB, ids *IDGenerator) *UserRepository {
	return &UserRepository{db: db, ids: ids}
}

// CreateUser persists a user under its id and reserves its email.
// The email key makes the uniqueness check and the insert one transaction.
func (u *UserRepository) CreateUser(email, hashedPassword string) (domain.User, error) {
	id, err := u.ids.Next(seqUser)
	if err != nil {
		return domain.User{}, err
	}
	user := domain.User{
		ID:           domain.UserID(id),
		Email:        domain.NormalizeEmail(email),
		PasswordHash: hashedPassword,
		CreatedAt:    time.Now().UTC(),
	}

	err = update(u.db, func(txn *badger.Txn) error {
		emailKey := userEmailKey(user.Email)
		taken, err := exists(txn, emailKey)
		if err != nil {
			return err
		}
		if taken {
			return errors.ErrEmailTaken
		}
		if err := txn.Set(emailKey, encodeUint64(uint64(user.ID))); err != nil {
			return err
		}
		return setRecord(txn, userKey(user.ID), user)
	})
	if err != nil {
		return domain.User{}, err
	}
	return user, nil
}

func (u *UserRepository) GetUserByEmail(email string) (domain.User, error) {
	var user domain.User
	err := u.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(userEmailKey(email))
		if err != nil {
			return err
		}
		raw, err := item.ValueCopy(nil)
		if err != nil {
			return err
		}
		return getRecord(txn, userKey(domain.UserID(decodeUint64(raw))), &user)
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return domain.User{}, errors.ErrUserNotFound
	}
	return user, err
}

func (u *UserRepository) GetUser(id domain.UserID) (domain.User, error) {
	var user domain.User
	err := u.db.View(func(txn *badger.Txn) error {
		return getRecord(txn, userKey(id), &user)
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return domain.User{}, errors.ErrUserNotFound
	}
	return user, err
}

// GetUsers resolves every id or fails with ErrUserNotFound.
func (u *UserRepository) GetUsers(ids []domain.UserID) (map[domain.UserID]domain.User, error) {
	users := make(map[domain.UserID]domain.User, len(ids))
	err := u.db.View(func(txn *badger.Txn) error {
		for _, id := range ids {
			if _, ok := users[id]; ok {
				continue
			}
			var user domain.User
			if err := getRecord(txn, userKey(id), &user); err != nil {
				return err
			}
			users[id] = user
		}
		return nil
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, errors.ErrUserNotFound
	}
	return users, err
}

// SearchUsers matches a case-insensitive substring of the email, in email order.
func (u *UserRepository) SearchUsers(query string, exclude domain.UserID, limit int) ([]domain.User, error) {
	needle := strings.ToLower(strings.TrimSpace(query))
	var users []domain.User
	err := u.db.View(func(txn *badger.Txn) error {
		options := badger.DefaultIteratorOptions
		options.PrefetchValues = false
		prefix := []byte(PrefixUserEmail)
		it := txn.NewIterator(options)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			if limit > 0 && len(users) == limit {
				break
			}
			item := it.Item()
			email := string(item.Key()[len(prefix):])
			if !strings.Contains(email, needle) {
				continue
			}
			raw, err := item.ValueCopy(nil)
			if err != nil {
				return err
			}
			id := domain.UserID(decodeUint64(raw))
			if id == exclude {
				continue
			}
			var user domain.User
			if err := getRecord(txn, userKey(id), &user); err != nil {
				return err
			}
			users = append(users, user)
		}
		return nil
	})
	return users, err
}

func (u *UserRepository) UpdatePassword(id domain.UserID, hashedPassword string) error {
	err := update(u.db, func(txn *badger.Txn) error {
		var user domain.User
		if err := getRecord(txn, userKey(id), &user); err != nil {
			return err
		}
		user.PasswordHash = hashedPassword
		return setRecord(txn, userKey(id), user)
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return errors.ErrUserNotFound
	}
	return err
}
