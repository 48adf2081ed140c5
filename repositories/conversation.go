//go:generate go run go.uber.org/mock/mockgen -source=conversation.go -destination=../mocks/mock_conversation_repository.go -package=mocks
package repositories

import (
	"chatto/domain"
	"chatto/errors"
	"time"

	"github.com/dgraph-io/badger/v4"
)

// IConversationRepository is the membership store: conversations and their
// participant edges. Every mutation is a single badger transaction.
type IConversationRepository interface {
	CreateDirect(requester, other domain.UserID, at time.Time) (domain.Conversation, bool, error)
	CreateGroup(name string, creator domain.UserID, members []domain.UserID, at time.Time) (domain.Conversation, error)
	GetConversation(id domain.ConversationID) (domain.Conversation, error)
	Participants(id domain.ConversationID) ([]domain.Participant, error)
	IsParticipant(id domain.ConversationID, user domain.UserID) (bool, error)
	ConversationsOf(user domain.UserID) ([]domain.ConversationID, error)
	AddParticipant(id domain.ConversationID, user domain.UserID, at time.Time) error
	RemoveParticipant(id domain.ConversationID, user domain.UserID) error
}

type ConversationRepository struct {
	db  *badger.DB
	ids *IDGenerator
}

func NewConversationRepository(db *badger.DB, ids *IDGenerator) *ConversationRepository {
	return &ConversationRepository{db: db, ids: ids}
}

// CreateDirect returns the direct conversation of the unordered pair, creating
// it when absent. The pair key is read and written in the same transaction, so
// two concurrent callers conflict and the retried one observes the winner.
// The boolean reports whether this call created it.
func (r *ConversationRepository) CreateDirect(requester, other domain.UserID, at time.Time) (domain.Conversation, bool, error) {
	id, err := r.ids.Next(seqConversation)
	if err != nil {
		return domain.Conversation{}, false, err
	}

	var conversation domain.Conversation
	var created bool
	err = update(r.db, func(txn *badger.Txn) error {
		created = false
		pairKey := directKey(requester, other)
		item, err := txn.Get(pairKey)
		switch {
		case err == nil:
			raw, err := item.ValueCopy(nil)
			if err != nil {
				return err
			}
			return getRecord(txn, conversationKey(domain.ConversationID(decodeUint64(raw))), &conversation)
		case !errors.Is(err, badger.ErrKeyNotFound):
			return err
		}

		conversation = domain.Conversation{
			ID:        domain.ConversationID(id),
			Kind:      domain.DirectConversation,
			CreatedBy: requester,
			CreatedAt: at,
		}
		if err := setRecord(txn, conversationKey(conversation.ID), conversation); err != nil {
			return err
		}
		if err := txn.Set(pairKey, encodeUint64(uint64(conversation.ID))); err != nil {
			return err
		}
		for _, user := range []domain.UserID{requester, other} {
			if err := setParticipant(txn, domain.Participant{ConversationID: conversation.ID, UserID: user, JoinedAt: at}); err != nil {
				return err
			}
		}
		created = true
		return nil
	})
	if err != nil {
		return domain.Conversation{}, false, err
	}
	return conversation, created, nil
}

// CreateGroup stores the group and one edge per member, creator included.
func (r *ConversationRepository) CreateGroup(name string, creator domain.UserID, members []domain.UserID, at time.Time) (domain.Conversation, error) {
	id, err := r.ids.Next(seqConversation)
	if err != nil {
		return domain.Conversation{}, err
	}
	conversation := domain.Conversation{
		ID:        domain.ConversationID(id),
		Kind:      domain.GroupConversation,
		Name:      name,
		CreatedBy: creator,
		CreatedAt: at,
	}
	err = update(r.db, func(txn *badger.Txn) error {
		if err := setRecord(txn, conversationKey(conversation.ID), conversation); err != nil {
			return err
		}
		seen := make(map[domain.UserID]struct{}, len(members)+1)
		for _, user := range append([]domain.UserID{creator}, members...) {
			if _, ok := seen[user]; ok {
				continue
			}
			seen[user] = struct{}{}
			if err := setParticipant(txn, domain.Participant{ConversationID: conversation.ID, UserID: user, JoinedAt: at}); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return domain.Conversation{}, err
	}
	return conversation, nil
}

func (r *ConversationRepository) GetConversation(id domain.ConversationID) (domain.Conversation, error) {
	var conversation domain.Conversation
	err := r.db.View(func(txn *badger.Txn) error {
		return getRecord(txn, conversationKey(id), &conversation)
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return domain.Conversation{}, errors.ErrConversationNotFound
	}
	return conversation, err
}

// Participants lists the edges of a conversation ordered by user id.
func (r *ConversationRepository) Participants(id domain.ConversationID) ([]domain.Participant, error) {
	var participants []domain.Participant
	err := r.db.View(func(txn *badger.Txn) error {
		prefix := memberChatPrefix(id)
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			var participant domain.Participant
			err := it.Item().Value(func(val []byte) error {
				return Unmarshal(val, &participant)
			})
			if err != nil {
				return err
			}
			participants = append(participants, participant)
		}
		return nil
	})
	return participants, err
}

func (r *ConversationRepository) IsParticipant(id domain.ConversationID, user domain.UserID) (bool, error) {
	var member bool
	err := r.db.View(func(txn *badger.Txn) error {
		var err error
		member, err = exists(txn, memberChatKey(id, user))
		return err
	})
	return member, err
}

// ConversationsOf reads the back-reference index of a user.
func (r *ConversationRepository) ConversationsOf(user domain.UserID) ([]domain.ConversationID, error) {
	var ids []domain.ConversationID
	err := r.db.View(func(txn *badger.Txn) error {
		options := badger.DefaultIteratorOptions
		options.PrefetchValues = false
		prefix := memberUserPrefix(user)
		it := txn.NewIterator(options)
		defer it.Close()
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			raw, err := it.Item().ValueCopy(nil)
			if err != nil {
				return err
			}
			ids = append(ids, domain.ConversationID(decodeUint64(raw)))
		}
		return nil
	})
	return ids, err
}

// AddParticipant inserts the edge or fails with ErrAlreadyMember. Reading the
// edge key inside the transaction serializes concurrent inserts of the same edge.
func (r *ConversationRepository) AddParticipant(id domain.ConversationID, user domain.UserID, at time.Time) error {
	return update(r.db, func(txn *badger.Txn) error {
		if ok, err := exists(txn, conversationKey(id)); err != nil {
			return err
		} else if !ok {
			return errors.ErrConversationNotFound
		}
		member, err := exists(txn, memberChatKey(id, user))
		if err != nil {
			return err
		}
		if member {
			return errors.ErrAlreadyMember
		}
		return setParticipant(txn, domain.Participant{ConversationID: id, UserID: user, JoinedAt: at})
	})
}

func (r *ConversationRepository) RemoveParticipant(id domain.ConversationID, user domain.UserID) error {
	return update(r.db, func(txn *badger.Txn) error {
		member, err := exists(txn, memberChatKey(id, user))
		if err != nil {
			return err
		}
		if !member {
			return errors.ErrParticipantNotFound
		}
		if err := txn.Delete(memberChatKey(id, user)); err != nil {
			return err
		}
		return txn.Delete(memberUserKey(user, id))
	})
}

func setParticipant(txn *badger.Txn, participant domain.Participant) error {
	if err := setRecord(txn, memberChatKey(participant.ConversationID, participant.UserID), participant); err != nil {
		return err
	}
	return txn.Set(
		memberUserKey(participant.UserID, participant.ConversationID),
		encodeUint64(uint64(participant.ConversationID)),
	)
}
