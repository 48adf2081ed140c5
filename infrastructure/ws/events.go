package ws

import (
	"chatto/domain"
	"chatto/domain/event"
	"chatto/errors"
	"chatto/runtime"
	"context"
	"encoding/json"
	"time"
)

type inbound = event.Inbound

// handle processes one client event. Events of one connection are handled in
// the order they were read.
func (h *Handler) handle(ctx context.Context, conn *runtime.Connection, in inbound) error {
	switch in.Type {
	case event.JoinChats:
		return h.synchronizer.Resync(ctx, conn.ID)

	case event.JoinChat:
		ref, err := decodeRef(in.Data)
		if err != nil {
			return err
		}
		return h.synchronizer.Join(ctx, conn.ID, ref.ConversationID)

	case event.Typing:
		ref, err := decodeRef(in.Data)
		if err != nil {
			return err
		}
		if !h.registry.IsSubscribed(conn.ID, domain.ConversationRoom(ref.ConversationID)) {
			return errors.ErrNotParticipant
		}
		if h.typing.Touch(ref.ConversationID, conn.ID, conn.User, time.Now()) {
			h.broadcastTyping(ctx, event.NewTypingEvent(event.TypingStarted, ref.ConversationID, conn.User), conn.ID)
		}
		return nil

	case event.StopTyping:
		ref, err := decodeRef(in.Data)
		if err != nil {
			return err
		}
		if h.typing.Stop(ref.ConversationID, conn.ID) {
			h.broadcastTyping(ctx, stoppedTyping(ref.ConversationID, conn.User), conn.ID)
		}
		return nil

	case event.SendMessage:
		var payload event.SendMessagePayload
		if err := json.Unmarshal(in.Data, &payload); err != nil || payload.ConversationID <= 0 {
			return errors.ErrInvalidConversation
		}
		if h.typing.Stop(payload.ConversationID, conn.ID) {
			h.broadcastTyping(ctx, stoppedTyping(payload.ConversationID, conn.User), conn.ID)
		}
		_, err := h.sender.SendMessage(ctx, conn.User, payload.ConversationID, payload.Content)
		return err

	default:
		return errors.ErrUnknownEvent
	}
}

func decodeRef(data json.RawMessage) (event.ConversationRef, error) {
	var ref event.ConversationRef
	if err := json.Unmarshal(data, &ref); err != nil || ref.ConversationID <= 0 {
		return event.ConversationRef{}, errors.ErrInvalidConversation
	}
	return ref, nil
}

func stoppedTyping(id domain.ConversationID, user domain.PublicUser) event.Event {
	return event.NewTypingEvent(event.TypingStopped, id, user)
}

// broadcastTyping reaches the conversation room except the typist's own socket.
func (h *Handler) broadcastTyping(ctx context.Context, e event.Event, except domain.ConnectionID) {
	data := e.Data.(event.TypingPayload)
	h.dispatcher.BroadcastToRoomExcept(ctx, domain.ConversationRoom(data.ConversationID), e, except)
}

func errorEvent(err error) event.Event {
	return event.NewErrorEvent(errors.PublicMessage(err))
}
