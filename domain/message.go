package domain

import "time"

type MessageType string

const (
	TextMessage     MessageType = "TEXT"
	LocationMessage MessageType = "LOCATION"
	PictureMessage  MessageType = "PICTURE"
)

// Ownership is a transient view attribute, never persisted.
type Ownership string

const (
	OwnershipMine  Ownership = "mine"
	OwnershipOther Ownership = "other"
)

// Message is an immutable chat event. CreatedAt is server assigned and is
// the sole sort key of every message query.
type Message struct {
	ID        string
	ChatID    string
	SenderID  string
	Type      MessageType
	Content   string
	CreatedAt time.Time
}

func (m Message) DocumentID() string             { return m.ID }
func (m Message) DocumentCollection() Collection { return Messages }

// OwnershipFor tags the message relative to the viewing user.
func (m Message) OwnershipFor(viewerID string) Ownership {
	if m.SenderID == viewerID {
		return OwnershipMine
	}
	return OwnershipOther
}
