// Package domain contains the core records of the chat system.
// Documents are immutable values; derived fields are computed per read
// and never persisted.
package domain

// Collection identifies one of the versioned document collections.
type Collection string

const (
	Users    Collection = "users"
	Chats    Collection = "chats"
	Messages Collection = "messages"
)

// Document is anything the store versions and queries.
type Document interface {
	DocumentID() string
	DocumentCollection() Collection
}
