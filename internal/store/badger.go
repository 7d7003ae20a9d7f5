package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
)

// BadgerStore implements IdentityStore and MessageStore over a single
// BadgerDB instance.
//
// Message keys are formatted as "msg:{timestamp_padded}:{uuid}" so records
// sort chronologically; the UUID disambiguates two messages created in the
// same nanosecond. Identities are indexed twice, by id and by username.
type BadgerStore struct {
	db     *badger.DB
	logger *slog.Logger
}

var (
	_ IdentityStore = (*BadgerStore)(nil)
	_ MessageStore  = (*BadgerStore)(nil)
)

func OpenBadger(path string, inMemory bool, logger *slog.Logger) (*BadgerStore, error) {
	opts := badger.DefaultOptions(path).
		WithInMemory(inMemory).
		WithLogger(nil)

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger store: %w", err)
	}
	return &BadgerStore{
		db:     db,
		logger: logger.With(slog.String("component", "badger_store")),
	}, nil
}

func (s *BadgerStore) Close() error {
	return s.db.Close()
}

func identityIDKey(id int64) []byte {
	return []byte(fmt.Sprintf("identity:id:%d", id))
}

func identityNameKey(name string) []byte {
	return []byte("identity:name:" + name)
}

func (s *BadgerStore) SaveIdentity(identity Identity) error {
	data, err := json.Marshal(identity)
	if err != nil {
		return fmt.Errorf("marshal identity: %w", err)
	}
	return s.db.Update(func(txn *badger.Txn) error {
		if err := txn.Set(identityIDKey(identity.ID), data); err != nil {
			return err
		}
		return txn.Set(identityNameKey(identity.Username), data)
	})
}

func (s *BadgerStore) FindIdentityByID(id int64) (Identity, error) {
	return s.getIdentity(identityIDKey(id))
}

func (s *BadgerStore) FindIdentityByName(name string) (Identity, error) {
	return s.getIdentity(identityNameKey(name))
}

func (s *BadgerStore) getIdentity(key []byte) (Identity, error) {
	var identity Identity
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(key)
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &identity)
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return Identity{}, fmt.Errorf("identity %q: %w", key, ErrNotFound)
	}
	if err != nil {
		return Identity{}, fmt.Errorf("get identity: %w", err)
	}
	return identity, nil
}

// CreateMessage persists the message before returning it; the timestamp the
// caller broadcasts is exactly the one stored here.
func (s *BadgerStore) CreateMessage(sender, receiver Identity, body string) (Message, error) {
	msg := Message{
		ID:         uuid.NewString(),
		SenderID:   sender.ID,
		ReceiverID: receiver.ID,
		Body:       body,
		Timestamp:  time.Now().UTC(),
	}

	data, err := json.Marshal(msg)
	if err != nil {
		return Message{}, fmt.Errorf("marshal message: %w", err)
	}

	key := fmt.Sprintf("msg:%019d:%s", msg.Timestamp.UnixNano(), msg.ID)
	err = s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(key), data)
	})
	if err != nil {
		return Message{}, fmt.Errorf("store message: %w", err)
	}

	s.logger.Debug("message stored", "messageID", msg.ID, "sender", sender.ID, "receiver", receiver.ID)
	return msg, nil
}
