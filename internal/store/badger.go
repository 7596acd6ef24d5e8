package store

import (
	"context"
	"fmt"

	"github.com/bytedance/sonic"
	"github.com/dgraph-io/badger/v4"
	"github.com/pkg/errors"
	"github.com/samber/lo"

	"github.com/zhouzirui/relay-chat/backend/internal/model/chat"
)

const badgerPrefix = "msg:"

// BadgerStore keeps messages in an embedded BadgerDB.
type BadgerStore struct {
	db    *badger.DB
	limit int
}

// OpenBadger opens (or creates) the database at path. An empty path runs in memory.
func OpenBadger(path string, limit int) (*BadgerStore, error) {
	opts := badger.DefaultOptions(path).WithLoggingLevel(badger.ERROR)
	if path == "" {
		opts = opts.WithInMemory(true)
	}
	db, err := badger.Open(opts)
	if err != nil {
		return nil, errors.Wrap(err, "open badger")
	}
	return NewBadgerStore(db, limit), nil
}

// NewBadgerStore wraps an already opened database.
func NewBadgerStore(db *badger.DB, limit int) *BadgerStore {
	return &BadgerStore{db: db, limit: normalizeLimit(limit)}
}

// badgerKey is "msg:{unix_nano_padded}:{id}". The 19 digit padding keeps lexicographic order
// chronological; the id separates messages stamped in the same nanosecond.
func badgerKey(msg chat.Message) []byte {
	return []byte(fmt.Sprintf("%s%019d:%s", badgerPrefix, msg.Timestamp.UnixNano(), msg.ID))
}

func (s *BadgerStore) SaveMessage(_ context.Context, msg chat.Message) error {
	value, err := sonic.Marshal(msg)
	if err != nil {
		return errors.Wrap(err, "encode message")
	}
	err = s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(badgerKey(msg), value)
	})
	return errors.Wrap(err, "badger set")
}

// RecentMessages walks the keyspace backwards from the newest entry and stops at the limit.
func (s *BadgerStore) RecentMessages(_ context.Context) ([]chat.Message, error) {
	var messages []chat.Message
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Reverse = true
		opts.Prefix = []byte(badgerPrefix)
		it := txn.NewIterator(opts)
		defer it.Close()

		seek := append([]byte(badgerPrefix), 0xFF)
		for it.Seek(seek); it.ValidForPrefix(opts.Prefix); it.Next() {
			if len(messages) == s.limit {
				break
			}
			var msg chat.Message
			if err := it.Item().Value(func(val []byte) error {
				return sonic.Unmarshal(val, &msg)
			}); err != nil {
				return err
			}
			messages = append(messages, msg)
		}
		return nil
	})
	if err != nil {
		return nil, errors.Wrap(err, "badger scan")
	}
	return lo.Reverse(append([]chat.Message{}, messages...)), nil
}

func (s *BadgerStore) ClearMessages(_ context.Context) error {
	return errors.Wrap(s.db.DropPrefix([]byte(badgerPrefix)), "badger drop prefix")
}

func (s *BadgerStore) Close() error {
	return s.db.Close()
}
