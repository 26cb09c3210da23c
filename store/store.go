// Package store is the single source of truth for documents. It keeps the
// three collections (users, chats, messages) in BadgerDB and a full-text
// index of profile names in Bluge for the user search feed.
//
// Writers serialize per document through badger transactions; reads run
// over a badger snapshot, so query evaluation never observes a partial
// write.
package store

import (
	"encoding/json"
	"fmt"
	"log/slog"

	"chat-sync/domain"

	"github.com/dgraph-io/badger/v4"
)

const (
	userPrefix  = "user:"
	loginPrefix = "login:"
	chatPrefix  = "chat:"
	msgPrefix   = "msg:"
)

type Store struct {
	db    *badger.DB
	log   *slog.Logger
	index *NameIndex
}

func New(db *badger.DB, index *NameIndex, log *slog.Logger) *Store {
	return &Store{db: db, index: index, log: log}
}

// Open opens BadgerDB and the Bluge name index at the given paths.
func Open(badgerPath, blugePath string, log *slog.Logger) (*Store, error) {
	options := badger.DefaultOptions(badgerPath).WithLoggingLevel(badger.ERROR)
	db, err := badger.Open(options)
	if err != nil {
		return nil, fmt.Errorf("badger opening failed: %w", err)
	}
	index, err := OpenNameIndex(blugePath)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("bluge opening failed: %w", err)
	}
	return New(db, index, log), nil
}

// OpenReadOnly opens BadgerDB for inspection while another process holds
// the write lock. The name index stays closed; search is unavailable.
func OpenReadOnly(badgerPath string, log *slog.Logger) (*Store, error) {
	options := badger.DefaultOptions(badgerPath).
		WithReadOnly(true).
		WithBypassLockGuard(true).
		WithLoggingLevel(badger.ERROR)
	db, err := badger.Open(options)
	if err != nil {
		return nil, fmt.Errorf("badger opening failed: %w", err)
	}
	return New(db, nil, log), nil
}

func (s *Store) Close() error {
	if s.index != nil {
		_ = s.index.Close()
	}
	return s.db.Close()
}

// Documents returns every document of a collection in key order. The result
// is a fresh slice over a single badger snapshot.
func (s *Store) Documents(collection domain.Collection) ([]domain.Document, error) {
	switch collection {
	case domain.Users:
		// Accounts are projected down to their public shape; credential
		// material never reaches a query result.
		return collect(s, userPrefix, func(a Account) domain.Document { return a.User() })
	case domain.Chats:
		return collect(s, chatPrefix, func(c domain.Chat) domain.Document { return c })
	case domain.Messages:
		return collect(s, msgPrefix, func(m domain.Message) domain.Document { return m })
	}
	return nil, fmt.Errorf("unknown collection %q", collection)
}

// collect prefix-scans one collection and decodes every value.
func collect[T any](s *Store, prefix string, wrap func(T) domain.Document) ([]domain.Document, error) {
	var docs []domain.Document
	err := s.db.View(func(txn *badger.Txn) error {
		options := badger.DefaultIteratorOptions
		options.Prefix = []byte(prefix)
		it := txn.NewIterator(options)
		defer it.Close()

		for it.Rewind(); it.ValidForPrefix([]byte(prefix)); it.Next() {
			err := it.Item().Value(func(value []byte) error {
				var record T
				if err := json.Unmarshal(value, &record); err != nil {
					return err
				}
				docs = append(docs, wrap(record))
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	return docs, err
}

// Store values are JSON. The serialization format is private to this
// package; nothing outside ever touches raw bytes.
func encode(record any) ([]byte, error) { return json.Marshal(record) }

func decode(value []byte, record any) error { return json.Unmarshal(value, record) }

// put encodes a record and writes it under key in one transaction.
func (s *Store) put(key string, record any) error {
	bytes, err := encode(record)
	if err != nil {
		return err
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(key), bytes)
	})
}

// get decodes the record stored under key. Returns badger.ErrKeyNotFound
// when absent.
func get[T any](s *Store, key string) (T, error) {
	var record T
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if err != nil {
			return err
		}
		return item.Value(func(value []byte) error {
			return json.Unmarshal(value, &record)
		})
	})
	return record, err
}
