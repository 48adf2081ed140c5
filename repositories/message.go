//go:generate go run go.uber.org/mock/mockgen -source=message.go -destination=../mocks/mock_message_repository.go -package=mocks
package repositories

import (
	"chatto/domain"
	"chatto/errors"
	"log/slog"
	"time"

	"github.com/dgraph-io/badger/v4"
)

type IMessageRepository interface {
	StoreMessage(message domain.Message) (domain.Message, uint64, error)
	GetMessages(conversation domain.ConversationID, page domain.Page) ([]domain.Message, error)
	LastMessage(conversation domain.ConversationID) (*domain.Message, error)
}

type MessageRepository struct {
	db  *badger.DB
	ids *IDGenerator
	log *slog.Logger
	now func() time.Time
}

func NewMessageRepository(db *badger.DB, ids *IDGenerator, log *slog.Logger) *MessageRepository {
	return &MessageRepository{
		db:  db,
		ids: ids,
		log: log,
		now: func() time.Time { return time.Now().UTC() },
	}
}

// StoreMessage assigns an id and persists the message together with the
// conversation counter and last message. The author's edge is read in the
// same transaction, so a message never lands after its author was removed.
// A zero CreatedAt is stamped on every attempt, after a conflict too, and the
// last message only moves forward in (CreatedAt, ID) order.
// It returns the stored message and the conversation message count including it.
func (m *MessageRepository) StoreMessage(message domain.Message) (domain.Message, uint64, error) {
	id, err := m.ids.Next(seqMessage)
	if err != nil {
		return domain.Message{}, 0, err
	}
	message.ID = domain.MessageID(id)
	stamp := message.CreatedAt.IsZero()

	var (
		stored domain.Message
		count  uint64
	)
	err = update(m.db, func(txn *badger.Txn) error {
		stored = message
		if stamp {
			stored.CreatedAt = m.now()
		}

		member, err := exists(txn, memberChatKey(stored.ConversationID, stored.SenderID))
		if err != nil {
			return err
		}
		if !member {
			return errors.ErrNotParticipant
		}

		count = 0
		item, err := txn.Get(countKey(stored.ConversationID))
		switch {
		case err == nil:
			raw, err := item.ValueCopy(nil)
			if err != nil {
				return err
			}
			count = decodeUint64(raw)
		case !errors.Is(err, badger.ErrKeyNotFound):
			return err
		}
		count++

		if err := setRecord(txn, messageKey(stored), stored); err != nil {
			return err
		}
		newer, err := isAfterLast(txn, stored)
		if err != nil {
			return err
		}
		if newer {
			if err := setRecord(txn, lastKey(stored.ConversationID), stored); err != nil {
				return err
			}
		}
		return txn.Set(countKey(stored.ConversationID), encodeUint64(count))
	})
	if err != nil {
		return domain.Message{}, 0, err
	}
	return stored, count, nil
}

// isAfterLast reports whether message sorts after the stored last message.
func isAfterLast(txn *badger.Txn, message domain.Message) (bool, error) {
	var last domain.Message
	err := getRecord(txn, lastKey(message.ConversationID), &last)
	if errors.Is(err, badger.ErrKeyNotFound) {
		return true, nil
	}
	if err != nil {
		return false, err
	}
	if c := message.CreatedAt.Compare(last.CreatedAt); c != 0 {
		return c > 0, nil
	}
	return message.ID > last.ID, nil
}

// GetMessages returns one page of history in ascending time order.
// The padded timestamp in the key keeps the prefix scan chronological.
func (m *MessageRepository) GetMessages(conversation domain.ConversationID, page domain.Page) ([]domain.Message, error) {
	messages := make([]domain.Message, 0, page.Limit)
	err := m.db.View(func(txn *badger.Txn) error {
		prefix := messagePrefix(conversation)
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		skip := page.Offset()
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			if skip > 0 {
				skip--
				continue
			}
			if page.Limit > 0 && len(messages) == page.Limit {
				break
			}
			var message domain.Message
			err := it.Item().Value(func(val []byte) error {
				return Unmarshal(val, &message)
			})
			if err != nil {
				return err
			}
			messages = append(messages, message)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	m.log.Debug("Messages fetched", "conversation_id", conversation, "page", page.Number, "count", len(messages))
	return messages, nil
}

// LastMessage returns nil when the conversation has no message yet.
func (m *MessageRepository) LastMessage(conversation domain.ConversationID) (*domain.Message, error) {
	var message domain.Message
	err := m.db.View(func(txn *badger.Txn) error {
		return getRecord(txn, lastKey(conversation), &message)
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &message, nil
}
