package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"chatboard/models"
	"chatboard/pkg/validation"

	"github.com/dgraph-io/badger/v4"
)

const (
	badgerPrefix   = "message:"
	badgerSequence = "seq:message"
)

// BadgerStore keeps messages in an embedded Badger database. Keys are
// "message:{id zero padded to 20 digits}" so a prefix scan walks rows in id
// order.
type BadgerStore struct {
	db  *badger.DB
	seq *badger.Sequence
	// serializes read-modify-write of a single row
	mu sync.Mutex
}

// OpenBadger opens a Badger directory. An empty dir opens an in-memory
// database.
func OpenBadger(dir string) (*BadgerStore, error) {
	opts := badger.DefaultOptions(dir).WithLoggingLevel(badger.WARNING)
	if dir == "" {
		opts = opts.WithInMemory(true)
	}
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("database opening failed: %w", err)
	}
	seq, err := db.GetSequence([]byte(badgerSequence), 100)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("message sequence: %w", err)
	}
	return &BadgerStore{db: db, seq: seq}, nil
}

func badgerKey(id uint64) []byte {
	return []byte(fmt.Sprintf("%s%020d", badgerPrefix, id))
}

func (s *BadgerStore) nextID() (uint64, error) {
	n, err := s.seq.Next()
	if err != nil {
		return 0, err
	}
	// sequences start at zero, ids start at one
	return n + 1, nil
}

func (s *BadgerStore) Create(ctx context.Context, in models.MessageInput) (models.Message, error) {
	if err := validation.MessageInput(&in); err != nil {
		return models.Message{}, err
	}
	if err := ctx.Err(); err != nil {
		return models.Message{}, err
	}
	id, err := s.nextID()
	if err != nil {
		return models.Message{}, fmt.Errorf("create message: %w", err)
	}
	ts := now()
	m := models.Message{
		ID:        id,
		Name:      in.Name,
		Message:   in.Message,
		IPAddress: in.IPAddress,
		CreatedAt: ts,
		UpdatedAt: ts,
	}
	if err := s.db.Update(func(txn *badger.Txn) error {
		return putMessage(txn, m)
	}); err != nil {
		logf("badger create failed: %v", err)
		return models.Message{}, fmt.Errorf("create message: %w", err)
	}
	return m, nil
}

func (s *BadgerStore) Get(ctx context.Context, id uint64) (models.Message, error) {
	if err := ctx.Err(); err != nil {
		return models.Message{}, err
	}
	var m models.Message
	err := s.db.View(func(txn *badger.Txn) error {
		var err error
		m, err = getMessage(txn, id)
		return err
	})
	return m, err
}

func (s *BadgerStore) List(ctx context.Context) ([]models.Message, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	msgs := []models.Message{}
	err := s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		prefix := []byte(badgerPrefix)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			var m models.Message
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &m)
			}); err != nil {
				return err
			}
			msgs = append(msgs, m)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	// id order is creation order; re-sort in case the clock stepped back
	sortMessages(msgs)
	return msgs, nil
}

func (s *BadgerStore) Update(ctx context.Context, id uint64, in models.MessageInput) (models.Message, error) {
	if err := validation.MessageInput(&in); err != nil {
		return models.Message{}, err
	}
	if err := ctx.Err(); err != nil {
		return models.Message{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	var m models.Message
	err := s.db.Update(func(txn *badger.Txn) error {
		var err error
		if m, err = getMessage(txn, id); err != nil {
			return err
		}
		m.Name = in.Name
		m.Message = in.Message
		m.IPAddress = in.IPAddress
		m.UpdatedAt = now()
		if m.UpdatedAt.Before(m.CreatedAt) {
			m.UpdatedAt = m.CreatedAt
		}
		return putMessage(txn, m)
	})
	if err != nil {
		return models.Message{}, err
	}
	return m, nil
}

func (s *BadgerStore) Delete(ctx context.Context, id uint64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.db.Update(func(txn *badger.Txn) error {
		if _, err := txn.Get(badgerKey(id)); err != nil {
			if errors.Is(err, badger.ErrKeyNotFound) {
				return ErrNotFound
			}
			return err
		}
		return txn.Delete(badgerKey(id))
	})
}

func (s *BadgerStore) Close() error {
	if err := s.seq.Release(); err != nil {
		logf("badger sequence release: %v", err)
	}
	return s.db.Close()
}

func getMessage(txn *badger.Txn, id uint64) (models.Message, error) {
	item, err := txn.Get(badgerKey(id))
	if err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return models.Message{}, ErrNotFound
		}
		return models.Message{}, err
	}
	var m models.Message
	err = item.Value(func(val []byte) error {
		return json.Unmarshal(val, &m)
	})
	return m, err
}

func putMessage(txn *badger.Txn, m models.Message) error {
	raw, err := json.Marshal(m)
	if err != nil {
		return err
	}
	return txn.Set(badgerKey(m.ID), raw)
}
