// Package store defines the persistence collaborators of the signaling core:
// identity lookup and message creation. The rest of the system depends only on
// the interfaces here, never on the backing database.
package store

import (
	"errors"
	"time"
)

// ErrNotFound is reported when a referenced identity does not exist.
var ErrNotFound = errors.New("not found")

// Identity is the persisted representation of a chat user as this core sees
// it. Registration, passwords and profiles live in the CRUD layer.
type Identity struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
}

// Message is one persisted chat message. Immutable once created; read/receipt
// flags are managed elsewhere.
type Message struct {
	ID         string    `json:"id"`
	SenderID   int64     `json:"sender_id"`
	ReceiverID int64     `json:"receiver_id"`
	Body       string    `json:"body"`
	Timestamp  time.Time `json:"timestamp"`
}

type IdentityStore interface {
	// FindIdentityByID reports ErrNotFound when no identity has the id.
	FindIdentityByID(id int64) (Identity, error)
	// FindIdentityByName reports ErrNotFound when no identity has the name.
	FindIdentityByName(name string) (Identity, error)
	SaveIdentity(identity Identity) error
}

type MessageStore interface {
	// CreateMessage persists one message, assigning its id and a
	// server-generated timestamp, and returns the stored record.
	CreateMessage(sender, receiver Identity, body string) (Message, error)
}
