//go:generate go run go.uber.org/mock/mockgen -source=synchronizer.go -destination=../mocks/mock_membership_reader.go -package=mocks
package runtime

import (
	"chatto/domain"
	"chatto/errors"
	"context"
	"log/slog"
)

// MembershipReader is the part of the membership store the synchronizer needs.
type MembershipReader interface {
	ConversationsOf(user domain.UserID) ([]domain.ConversationID, error)
	IsParticipant(id domain.ConversationID, user domain.UserID) (bool, error)
}

// Synchronizer reconciles the rooms of a live connection with the membership
// store. Registry state is derived, the store is the truth.
type Synchronizer struct {
	registry   *Registry
	membership MembershipReader
	log        *slog.Logger
}

func NewSynchronizer(registry *Registry, membership MembershipReader, log *slog.Logger) *Synchronizer {
	return &Synchronizer{registry: registry, membership: membership, log: log}
}

// Resync subscribes the connection to every conversation its user belongs to
// and unsubscribes it from the others. Calling it twice without a membership
// change is a no-op.
func (s *Synchronizer) Resync(ctx context.Context, id domain.ConnectionID) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	conn, ok := s.registry.Get(id)
	if !ok {
		return errors.ErrUnknownConnection
	}
	conversations, err := s.membership.ConversationsOf(conn.User.ID)
	if err != nil {
		return errors.Server("resync", err)
	}
	joined, left, ok := s.registry.Reconcile(id, conversations)
	if !ok {
		return errors.ErrUnknownConnection
	}
	if len(joined) > 0 || len(left) > 0 {
		s.log.Debug("Connection resynced",
			"connection_id", id,
			"user_id", conn.User.ID,
			"joined", len(joined),
			"left", len(left),
		)
	}
	return nil
}

// Join subscribes the connection to one conversation after checking that its
// user participates in it.
func (s *Synchronizer) Join(ctx context.Context, id domain.ConnectionID, conversation domain.ConversationID) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	conn, ok := s.registry.Get(id)
	if !ok {
		return errors.ErrUnknownConnection
	}
	member, err := s.membership.IsParticipant(conversation, conn.User.ID)
	if err != nil {
		return errors.Server("join", err)
	}
	if !member {
		return errors.ErrNotParticipant
	}
	if !s.registry.Subscribe(id, domain.ConversationRoom(conversation)) {
		return errors.ErrUnknownConnection
	}
	return nil
}
