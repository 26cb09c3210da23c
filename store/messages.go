package store

import (
	"fmt"

	"chat-sync/domain"

	"github.com/dgraph-io/badger/v4"
)

// messageKey formats "msg:{chat_id}:{timestamp_padded}:{message_id}".
// The 19-digit zero padding keeps keys in chronological order under
// lexicographic iteration; the message id disambiguates two messages
// stored on the same nanosecond.
func messageKey(message domain.Message) string {
	return fmt.Sprintf("%s%s:%019d:%s",
		msgPrefix,
		message.ChatID,
		message.CreatedAt.UnixNano(),
		message.ID,
	)
}

func (s *Store) PutMessage(message domain.Message) error {
	return s.put(messageKey(message), message)
}

// ListMessages returns the newest messages of a chat, newest first, at most
// limit of them (0 means all). Reverse iteration over the padded keys gives
// the createdAt-descending order directly.
func (s *Store) ListMessages(chatID string, limit int) ([]domain.Message, error) {
	var messages []domain.Message
	prefix := []byte(msgPrefix + chatID + ":")
	err := s.db.View(func(txn *badger.Txn) error {
		options := badger.DefaultIteratorOptions
		options.Reverse = true
		it := txn.NewIterator(options)
		defer it.Close()

		// Seek past the newest possible key for this chat, then walk back.
		seekKey := append(append([]byte{}, prefix...), []byte("9999999999999999999")...)
		for it.Seek(seekKey); it.ValidForPrefix(prefix); it.Next() {
			if limit > 0 && len(messages) == limit {
				break
			}
			err := it.Item().Value(func(value []byte) error {
				var message domain.Message
				if err := decode(value, &message); err != nil {
					return err
				}
				messages = append(messages, message)
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	return messages, err
}

// CountMessages counts the messages of one chat without loading values.
func (s *Store) CountMessages(chatID string) (int, error) {
	count := 0
	prefix := []byte(msgPrefix + chatID + ":")
	err := s.db.View(func(txn *badger.Txn) error {
		options := badger.DefaultIteratorOptions
		options.PrefetchValues = false
		options.Prefix = prefix
		it := txn.NewIterator(options)
		defer it.Close()
		for it.Rewind(); it.ValidForPrefix(prefix); it.Next() {
			count++
		}
		return nil
	})
	return count, err
}

// DeleteMessagesForChat drops every message of a chat in one transaction.
func (s *Store) DeleteMessagesForChat(chatID string) error {
	prefix := []byte(msgPrefix + chatID + ":")
	return s.db.Update(func(txn *badger.Txn) error {
		options := badger.DefaultIteratorOptions
		options.PrefetchValues = false
		options.Prefix = prefix
		it := txn.NewIterator(options)
		defer it.Close()

		var keys [][]byte
		for it.Rewind(); it.ValidForPrefix(prefix); it.Next() {
			keys = append(keys, it.Item().KeyCopy(nil))
		}
		for _, key := range keys {
			if err := txn.Delete(key); err != nil {
				return err
			}
		}
		return nil
	})
}
