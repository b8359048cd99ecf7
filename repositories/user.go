//go:generate go run go.uber.org/mock/mockgen -source=user.go -destination=../mocks/mock_user_repository.go -package=mocks
package repositories

import (
	stderrors "errors"
	"fmt"
	"profilebook/errors"
	"strings"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
)

type IUserRepository interface {
	CreateUser(email, username, hashedPassword string, roles []string) (User, error)
	GetUserByEmail(email string) (User, error)
	GetUserByID(id string) (User, error)
	GetUserByUsername(username string) (User, error)
	Exists(id string) (bool, error)
}

type UserRepository struct {
	db *badger.DB
}

func NewUserRepository(db *badger.DB) *UserRepository {
	return &UserRepository{db: db}
}

// User is the account row behind a subject identifier.
type User struct {
	ID           string
	Email        string
	Username     string
	PasswordHash string
	Roles        []string
	CreatedAt    time.Time
}

// CreateUser persists a new account keyed by its generated ID. The email and
// username keys are secondary indexes pointing to that ID, both unique.
func (u *UserRepository) CreateUser(email, username, hashedPassword string, roles []string) (User, error) {
	user := User{
		ID:           uuid.New().String(),
		Email:        normalize(email),
		Username:     username,
		PasswordHash: hashedPassword,
		Roles:        roles,
		CreatedAt:    time.Now().UTC(),
	}
	if len(user.Roles) == 0 {
		user.Roles = []string{"user"}
	}

	err := u.db.Update(func(txn *badger.Txn) error {
		for _, key := range [][]byte{emailKey(user.Email), usernameKey(user.Username)} {
			_, err := txn.Get(key)
			if err == nil {
				return errors.ErrUserAlreadyExists
			}
			if !stderrors.Is(err, badger.ErrKeyNotFound) {
				return err
			}
		}
		if err := txn.Set(userKey(user.ID), marshalUser(user)); err != nil {
			return err
		}
		if err := txn.Set(emailKey(user.Email), []byte(user.ID)); err != nil {
			return err
		}
		return txn.Set(usernameKey(user.Username), []byte(user.ID))
	})
	if stderrors.Is(err, errors.ErrUserAlreadyExists) {
		return User{}, err
	}
	if err != nil {
		return User{}, fmt.Errorf("%w: %v", errors.ErrStoreUnavailable, err)
	}
	return user, nil
}

func (u *UserRepository) GetUserByEmail(email string) (User, error) {
	return u.getByIndex(emailKey(normalize(email)))
}

func (u *UserRepository) GetUserByUsername(username string) (User, error) {
	return u.getByIndex(usernameKey(username))
}

func (u *UserRepository) GetUserByID(id string) (User, error) {
	var user User
	err := u.db.View(func(txn *badger.Txn) error {
		var err error
		user, err = readUser(txn, id)
		return err
	})
	return user, translate(err)
}

// Exists reports whether an account with this ID was ever registered.
func (u *UserRepository) Exists(id string) (bool, error) {
	_, err := u.GetUserByID(id)
	if stderrors.Is(err, errors.ErrNotFound) {
		return false, nil
	}
	return err == nil, err
}

func (u *UserRepository) getByIndex(key []byte) (User, error) {
	var user User
	err := u.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(key)
		if err != nil {
			return err
		}
		id, err := item.ValueCopy(nil)
		if err != nil {
			return err
		}
		user, err = readUser(txn, string(id))
		return err
	})
	return user, translate(err)
}

func readUser(txn *badger.Txn, id string) (User, error) {
	item, err := txn.Get(userKey(id))
	if err != nil {
		return User{}, err
	}
	var user User
	err = item.Value(func(val []byte) error {
		user, err = unmarshalUser(val)
		return err
	})
	return user, err
}

func translate(err error) error {
	switch {
	case err == nil:
		return nil
	case stderrors.Is(err, badger.ErrKeyNotFound):
		return errors.ErrNotFound
	default:
		return fmt.Errorf("%w: %v", errors.ErrStoreUnavailable, err)
	}
}

func normalize(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func userKey(id string) []byte       { return []byte("user:id:" + id) }
func emailKey(email string) []byte   { return []byte("user:email:" + email) }
func usernameKey(name string) []byte { return []byte("user:name:" + name) }
