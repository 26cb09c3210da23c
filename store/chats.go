package store

import (
	"chat-sync/domain"

	"github.com/dgraph-io/badger/v4"
)

func (s *Store) PutChat(chat domain.Chat) error {
	return s.put(chatPrefix+chat.ID, chat)
}

func (s *Store) GetChat(chatID string) (domain.Chat, error) {
	return get[domain.Chat](s, chatPrefix+chatID)
}

func (s *Store) HasChat(chatID string) (bool, error) {
	err := s.db.View(func(txn *badger.Txn) error {
		_, err := txn.Get([]byte(chatPrefix + chatID))
		return err
	})
	if err == badger.ErrKeyNotFound {
		return false, nil
	}
	return err == nil, err
}

// FindChatByMembers looks up the unique chat connecting the unordered pair.
func (s *Store) FindChatByMembers(a, b string) (domain.Chat, bool, error) {
	docs, err := s.Documents(domain.Chats)
	if err != nil {
		return domain.Chat{}, false, err
	}
	for _, doc := range docs {
		chat := doc.(domain.Chat)
		if chat.SameMembers(a, b) {
			return chat, true, nil
		}
	}
	return domain.Chat{}, false, nil
}

// DeleteChat removes the chat document. Message cascade is the gateway's
// decision, see DeleteMessagesForChat.
func (s *Store) DeleteChat(chatID string) error {
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete([]byte(chatPrefix + chatID))
	})
}
