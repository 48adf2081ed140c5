package services

import (
	"chatto/contract"
	"chatto/domain"
	"chatto/domain/event"
	"chatto/errors"
	"chatto/moderation"
	"chatto/repositories"
	"cmp"
	"context"
	"log/slog"
	"math"
	"slices"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/samber/lo"
)

// ContentModerator reviews a message body before it is stored.
type ContentModerator interface {
	Review(content string) moderation.Verdict
}

type ChatConfig struct {
	DefaultPageSize  int
	MaxPageSize      int
	MaxContentLength int
	SearchLimit      int
	UserSearchLimit  int
}

type IChatService interface {
	CreateDirect(ctx context.Context, requester, other domain.UserID) (domain.ConversationView, error)
	CreateGroup(ctx context.Context, requester domain.UserID, name string, participants []domain.UserID) (domain.ConversationView, error)
	SendMessage(ctx context.Context, requester domain.PublicUser, conversation domain.ConversationID, content string) (domain.MessageView, error)
	AddMember(ctx context.Context, requester domain.UserID, conversation domain.ConversationID, user domain.UserID) (domain.ConversationView, error)
	RemoveMember(ctx context.Context, requester domain.UserID, conversation domain.ConversationID, user domain.UserID) (domain.ConversationView, error)
	ListForUser(ctx context.Context, user domain.UserID) ([]domain.ConversationView, error)
	GetChat(ctx context.Context, requester domain.UserID, conversation domain.ConversationID) (domain.ConversationView, error)
	GetMessages(ctx context.Context, requester domain.UserID, conversation domain.ConversationID, page domain.Page) ([]domain.MessageView, error)
	SearchMessages(ctx context.Context, requester domain.UserID, query string) ([]domain.MessageView, error)
	SearchUsers(ctx context.Context, requester domain.UserID, query string) ([]domain.PublicUser, error)
}

// ChatService owns conversations and their membership, persists messages and
// decides which live connections hear about each change.
type ChatService struct {
	log           *slog.Logger
	users         repositories.IUserRepository
	conversations repositories.IConversationRepository
	messages      repositories.IMessageRepository
	index         repositories.IMessageIndex
	indexer       contract.IMessageIndexer
	dispatcher    contract.IDispatcher
	moderator     ContentModerator
	config        ChatConfig
	now           func() time.Time
}

func NewChatService(
	log *slog.Logger,
	users repositories.IUserRepository,
	conversations repositories.IConversationRepository,
	messages repositories.IMessageRepository,
	index repositories.IMessageIndex,
	indexer contract.IMessageIndexer,
	dispatcher contract.IDispatcher,
	moderator ContentModerator,
	config ChatConfig,
) *ChatService {
	return &ChatService{
		log:           log,
		users:         users,
		conversations: conversations,
		messages:      messages,
		index:         index,
		indexer:       indexer,
		dispatcher:    dispatcher,
		moderator:     moderator,
		config:        config,
		now:           func() time.Time { return time.Now().UTC() },
	}
}

// CreateDirect returns the direct conversation of the pair, creating it when
// absent. Nobody is notified: the other user learns about it with the first message.
func (s *ChatService) CreateDirect(ctx context.Context, requester, other domain.UserID) (domain.ConversationView, error) {
	if requester == other {
		return domain.ConversationView{}, errors.ErrSelfConversation
	}
	if _, err := s.users.GetUser(other); err != nil {
		return domain.ConversationView{}, errors.Server("get user", err)
	}

	conversation, created, err := s.conversations.CreateDirect(requester, other, s.now())
	if err != nil {
		return domain.ConversationView{}, errors.Server("create direct conversation", err)
	}
	if created {
		s.log.Info("Direct conversation created", "conversation_id", conversation.ID, "requester", requester, "other", other)
	}

	snap, err := s.snapshot(conversation)
	if err != nil {
		return domain.ConversationView{}, err
	}
	return snap.viewFor(requester), nil
}

// CreateGroup stores a group of the requester and the given users. The
// requester's own id and duplicates are dropped from participants first.
func (s *ChatService) CreateGroup(ctx context.Context, requester domain.UserID, name string, participants []domain.UserID) (domain.ConversationView, error) {
	name = domain.NormalizeGroupName(name)
	if name == "" {
		return domain.ConversationView{}, errors.ErrEmptyGroupName
	}
	others := lo.Uniq(lo.Without(participants, requester))
	if len(others) == 0 {
		return domain.ConversationView{}, errors.ErrEmptyParticipants
	}
	if _, err := s.users.GetUsers(others); err != nil {
		return domain.ConversationView{}, errors.Server("get users", err)
	}

	conversation, err := s.conversations.CreateGroup(name, requester, others, s.now())
	if err != nil {
		return domain.ConversationView{}, errors.Server("create group", err)
	}
	s.log.Info("Group created", "conversation_id", conversation.ID, "creator", requester, "members", len(others)+1)

	snap, err := s.snapshot(conversation)
	if err != nil {
		return domain.ConversationView{}, err
	}
	return snap.viewFor(requester), nil
}

// SendMessage stores the message and fans it out. The message that brings the
// count to exactly one also makes the conversation visible to the other
// participants: new_conversation then join_room_instruction on their user
// room, before new_message goes to the conversation room.
func (s *ChatService) SendMessage(ctx context.Context, requester domain.PublicUser, id domain.ConversationID, content string) (domain.MessageView, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return domain.MessageView{}, errors.ErrEmptyContent
	}
	if s.config.MaxContentLength > 0 && utf8.RuneCountInString(content) > s.config.MaxContentLength {
		return domain.MessageView{}, errors.ErrContentTooLong
	}

	conversation, err := s.authorize(requester.ID, id)
	if err != nil {
		return domain.MessageView{}, err
	}

	verdict := s.moderator.Review(content)
	stored, count, err := s.messages.StoreMessage(domain.Message{
		ConversationID: conversation.ID,
		SenderID:       requester.ID,
		Content:        verdict.Content,
		Lang:           verdict.Lang,
	})
	if err != nil {
		return domain.MessageView{}, errors.Server("store message", err)
	}
	view := stored.View(requester.Email)
	s.indexer.Enqueue(stored)

	// Committed: delivery no longer depends on the sender staying connected.
	ctx = context.WithoutCancel(ctx)
	first := count == 1
	if first {
		if err := s.announce(ctx, conversation, view, requester.ID); err != nil {
			// The message is stored; clients catch up on their next resync.
			s.log.Error("Failed to announce conversation", "conversation_id", conversation.ID, "error", err)
		}
	}

	delivered := s.dispatcher.BroadcastToRoom(ctx, domain.ConversationRoom(conversation.ID), event.NewMessageEvent(view, first))
	s.log.Debug("Message sent",
		"conversation_id", conversation.ID,
		"message_id", stored.ID,
		"first", first,
		"delivered", delivered,
	)
	return view, nil
}

// announce runs the first-message handshake for every participant but the
// sender. The conversation is shown with first as its last message.
func (s *ChatService) announce(ctx context.Context, conversation domain.Conversation, first domain.MessageView, sender domain.UserID) error {
	snap, err := s.snapshot(conversation)
	if err != nil {
		return err
	}
	snap.last = &first
	for _, member := range snap.participants {
		if member.ID == sender {
			continue
		}
		s.dispatcher.BroadcastToUser(ctx, member.ID, event.NewConversationEvent(snap.viewFor(member.ID)))
		s.dispatcher.BroadcastToUser(ctx, member.ID, event.NewJoinRoomInstruction(conversation.ID))
	}
	return nil
}

func (s *ChatService) AddMember(ctx context.Context, requester domain.UserID, id domain.ConversationID, user domain.UserID) (domain.ConversationView, error) {
	conversation, err := s.authorizeGroup(requester, id)
	if err != nil {
		return domain.ConversationView{}, err
	}
	if _, err := s.users.GetUser(user); err != nil {
		return domain.ConversationView{}, errors.Server("get user", err)
	}
	if err := s.conversations.AddParticipant(id, user, s.now()); err != nil {
		return domain.ConversationView{}, errors.Server("add participant", err)
	}
	s.log.Info("Member added", "conversation_id", id, "user_id", user, "by", requester)
	ctx = context.WithoutCancel(ctx)

	snap, err := s.snapshot(conversation)
	if err != nil {
		return domain.ConversationView{}, err
	}
	for _, member := range snap.participants {
		s.dispatcher.BroadcastToUser(ctx, member.ID, event.NewConversationUpdatedEvent(snap.viewFor(member.ID)))
	}
	s.dispatcher.BroadcastToUser(ctx, user, event.NewConversationEvent(snap.viewFor(user)))
	s.dispatcher.BroadcastToUser(ctx, user, event.NewJoinRoomInstruction(id))
	return snap.viewFor(requester), nil
}

// RemoveMember deletes the edge. The removed user's sockets leave the room
// once removed_from_conversation has been written to them.
func (s *ChatService) RemoveMember(ctx context.Context, requester domain.UserID, id domain.ConversationID, user domain.UserID) (domain.ConversationView, error) {
	conversation, err := s.authorizeGroup(requester, id)
	if err != nil {
		return domain.ConversationView{}, err
	}
	if err := s.conversations.RemoveParticipant(id, user); err != nil {
		return domain.ConversationView{}, errors.Server("remove participant", err)
	}
	s.log.Info("Member removed", "conversation_id", id, "user_id", user, "by", requester)
	ctx = context.WithoutCancel(ctx)

	snap, err := s.snapshot(conversation)
	if err != nil {
		return domain.ConversationView{}, err
	}
	for _, member := range snap.participants {
		s.dispatcher.BroadcastToUser(ctx, member.ID, event.NewConversationUpdatedEvent(snap.viewFor(member.ID)))
	}
	s.dispatcher.BroadcastToUser(ctx, user, event.NewRemovedFromConversationEvent(id))
	return snap.viewFor(requester), nil
}

// ListForUser orders by last message time, newest first. Conversations
// without messages come last, newest created first.
func (s *ChatService) ListForUser(ctx context.Context, user domain.UserID) ([]domain.ConversationView, error) {
	ids, err := s.conversations.ConversationsOf(user)
	if err != nil {
		return nil, errors.Server("list conversations", err)
	}

	views := make([]domain.ConversationView, 0, len(ids))
	for _, id := range ids {
		conversation, err := s.conversations.GetConversation(id)
		if err != nil {
			return nil, errors.Server("get conversation", err)
		}
		snap, err := s.snapshot(conversation)
		if err != nil {
			return nil, err
		}
		views = append(views, snap.viewFor(user))
	}

	slices.SortStableFunc(views, compareActivity)
	return views, nil
}

func compareActivity(a, b domain.ConversationView) int {
	at, aok := a.LastActivity()
	bt, bok := b.LastActivity()
	switch {
	case aok && bok:
		if c := bt.Compare(at); c != 0 {
			return c
		}
	case aok:
		return -1
	case bok:
		return 1
	default:
		if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
			return c
		}
	}
	return cmp.Compare(b.ID, a.ID)
}

func (s *ChatService) GetChat(ctx context.Context, requester domain.UserID, id domain.ConversationID) (domain.ConversationView, error) {
	conversation, err := s.authorize(requester, id)
	if err != nil {
		return domain.ConversationView{}, err
	}
	snap, err := s.snapshot(conversation)
	if err != nil {
		return domain.ConversationView{}, err
	}
	return snap.viewFor(requester), nil
}

// GetMessages returns one page of history, oldest first. A zero page number
// or limit takes the default; the limit is capped.
func (s *ChatService) GetMessages(ctx context.Context, requester domain.UserID, id domain.ConversationID, page domain.Page) ([]domain.MessageView, error) {
	page, err := s.normalizePage(page)
	if err != nil {
		return nil, err
	}
	if _, err := s.authorize(requester, id); err != nil {
		return nil, err
	}

	messages, err := s.messages.GetMessages(id, page)
	if err != nil {
		return nil, errors.Server("get messages", err)
	}
	return s.withSenders(messages)
}

func (s *ChatService) normalizePage(page domain.Page) (domain.Page, error) {
	if page.Number < 0 || page.Limit < 0 {
		return domain.Page{}, errors.ErrInvalidPagination
	}
	if page.Number == 0 {
		page.Number = 1
	}
	if page.Limit == 0 {
		page.Limit = s.config.DefaultPageSize
	}
	if s.config.MaxPageSize > 0 && page.Limit > s.config.MaxPageSize {
		page.Limit = s.config.MaxPageSize
	}
	if page.Limit > 0 && page.Number-1 > math.MaxInt/page.Limit {
		return domain.Page{}, errors.ErrInvalidPagination
	}
	return page, nil
}

// SearchMessages looks in the conversations the requester belongs to now.
func (s *ChatService) SearchMessages(ctx context.Context, requester domain.UserID, query string) ([]domain.MessageView, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, errors.ErrEmptyQuery
	}
	ids, err := s.conversations.ConversationsOf(requester)
	if err != nil {
		return nil, errors.Server("list conversations", err)
	}
	if len(ids) == 0 {
		return []domain.MessageView{}, nil
	}

	messages, err := s.index.Search(ctx, query, ids, s.config.SearchLimit)
	if err != nil {
		return nil, errors.Server("search messages", err)
	}
	return s.withSenders(messages)
}

func (s *ChatService) SearchUsers(ctx context.Context, requester domain.UserID, query string) ([]domain.PublicUser, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, errors.ErrEmptyQuery
	}
	users, err := s.users.SearchUsers(query, requester, s.config.UserSearchLimit)
	if err != nil {
		return nil, errors.Server("search users", err)
	}
	return lo.Map(users, func(u domain.User, _ int) domain.PublicUser { return u.Public() }), nil
}

// authorize checks existence first, then membership.
func (s *ChatService) authorize(requester domain.UserID, id domain.ConversationID) (domain.Conversation, error) {
	conversation, err := s.conversations.GetConversation(id)
	if err != nil {
		return domain.Conversation{}, errors.Server("get conversation", err)
	}
	member, err := s.conversations.IsParticipant(id, requester)
	if err != nil {
		return domain.Conversation{}, errors.Server("check participant", err)
	}
	if !member {
		return domain.Conversation{}, errors.ErrNotParticipant
	}
	return conversation, nil
}

func (s *ChatService) authorizeGroup(requester domain.UserID, id domain.ConversationID) (domain.Conversation, error) {
	conversation, err := s.authorize(requester, id)
	if err != nil {
		return domain.Conversation{}, err
	}
	if !conversation.IsGroup() {
		return domain.Conversation{}, errors.ErrNotGroup
	}
	return conversation, nil
}

func (s *ChatService) withSenders(messages []domain.Message) ([]domain.MessageView, error) {
	senders := lo.Uniq(lo.Map(messages, func(m domain.Message, _ int) domain.UserID { return m.SenderID }))
	users, err := s.users.GetUsers(senders)
	if err != nil {
		return nil, errors.Server("get senders", err)
	}
	return lo.Map(messages, func(m domain.Message, _ int) domain.MessageView {
		return m.View(users[m.SenderID].Email)
	}), nil
}

// snapshot is a conversation with its resolved participants and last message,
// shared by every per-viewer view built from it.
type snapshot struct {
	conversation domain.Conversation
	participants []domain.PublicUser
	last         *domain.MessageView
}

func (s *ChatService) snapshot(conversation domain.Conversation) (snapshot, error) {
	edges, err := s.conversations.Participants(conversation.ID)
	if err != nil {
		return snapshot{}, errors.Server("get participants", err)
	}
	ids := lo.Map(edges, func(p domain.Participant, _ int) domain.UserID { return p.UserID })

	last, err := s.messages.LastMessage(conversation.ID)
	if err != nil {
		return snapshot{}, errors.Server("get last message", err)
	}
	if last != nil {
		// The author may have left since.
		ids = lo.Uniq(append(ids, last.SenderID))
	}

	users, err := s.users.GetUsers(ids)
	if err != nil {
		return snapshot{}, errors.Server("get participants", err)
	}

	snap := snapshot{
		conversation: conversation,
		participants: lo.Map(edges, func(p domain.Participant, _ int) domain.PublicUser { return users[p.UserID].Public() }),
	}
	if last != nil {
		view := last.View(users[last.SenderID].Email)
		snap.last = &view
	}
	return snap, nil
}

func (s snapshot) viewFor(viewer domain.UserID) domain.ConversationView {
	return domain.ConversationView{
		ID:           s.conversation.ID,
		Name:         s.conversation.Name,
		IsGroup:      s.conversation.IsGroup(),
		DisplayName:  domain.DisplayName(s.conversation, s.participants, viewer),
		CreatedAt:    s.conversation.CreatedAt,
		Participants: s.participants,
		LastMessage:  s.last,
	}
}
