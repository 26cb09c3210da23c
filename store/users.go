package store

import (
	"context"
	"errors"
	"time"

	"chat-sync/domain"
	syncerrors "chat-sync/errors"

	"github.com/dgraph-io/badger/v4"
)

// Account is the stored shape of a registered user: the public profile plus
// the credential material the auth layer verifies. Username is the
// immutable login handle; Profile.Name is the mutable display name.
// Queries only ever see the projected domain.User.
type Account struct {
	ID           string
	Username     string
	Profile      domain.Profile
	PasswordHash string
	CreatedAt    time.Time
}

func (a Account) User() domain.User {
	return domain.User{ID: a.ID, Profile: a.Profile}
}

// CreateAccount persists a new account. Fails with ErrUserAlreadyExists
// when the username is taken.
func (s *Store) CreateAccount(account Account) error {
	key := []byte(userPrefix + account.ID)
	loginKey := []byte(loginPrefix + account.Username)
	err := s.db.Update(func(txn *badger.Txn) error {
		if _, err := txn.Get(loginKey); err == nil {
			return syncerrors.ErrUserAlreadyExists
		}
		bytes, err := encode(account)
		if err != nil {
			return err
		}
		if err = txn.Set(key, bytes); err != nil {
			return err
		}
		return txn.Set(loginKey, []byte(account.ID))
	})
	if err != nil {
		return err
	}
	return s.indexProfile(account.ID, account.Profile)
}

// GetAccountByUsername resolves the login handle, then loads the account.
func (s *Store) GetAccountByUsername(username string) (Account, error) {
	var userID string
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(loginPrefix + username))
		if err != nil {
			return err
		}
		return item.Value(func(value []byte) error {
			userID = string(value)
			return nil
		})
	})
	if err != nil {
		return Account{}, err
	}
	return s.GetAccount(userID)
}

func (s *Store) GetAccount(userID string) (Account, error) {
	return get[Account](s, userPrefix+userID)
}

func (s *Store) GetUser(userID string) (domain.User, error) {
	account, err := s.GetAccount(userID)
	if err != nil {
		return domain.User{}, err
	}
	return account.User(), nil
}

// UpdateProfile replaces the profile of an existing account and refreshes
// the name index.
func (s *Store) UpdateProfile(userID string, profile domain.Profile) error {
	key := []byte(userPrefix + userID)
	err := s.db.Update(func(txn *badger.Txn) error {
		item, err := txn.Get(key)
		if err != nil {
			return err
		}
		var account Account
		if err = item.Value(func(value []byte) error {
			return decode(value, &account)
		}); err != nil {
			return err
		}
		account.Profile = profile
		bytes, err := encode(account)
		if err != nil {
			return err
		}
		return txn.Set(key, bytes)
	})
	if err != nil {
		return err
	}
	return s.indexProfile(userID, profile)
}

// SearchUsers resolves the ids of users whose profile name matches the
// pattern. An empty pattern matches everyone.
func (s *Store) SearchUsers(ctx context.Context, pattern string) ([]string, error) {
	if s.index == nil {
		return nil, errors.New("name index not configured")
	}
	return s.index.Search(ctx, pattern)
}

func (s *Store) indexProfile(userID string, profile domain.Profile) error {
	if s.index == nil {
		return nil
	}
	return s.index.IndexProfile(userID, profile.Name)
}
