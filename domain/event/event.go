// Package event defines the realtime envelope exchanged over live connections.
package event

import (
	"chatto/domain"
	"encoding/json"
)

type Kind string

// Server to client.
const (
	NewMessage              Kind = "new_message"
	NewConversation         Kind = "new_conversation"
	JoinRoomInstruction     Kind = "join_room_instruction"
	ConversationUpdated     Kind = "conversation_updated"
	RemovedFromConversation Kind = "removed_from_conversation"
	TypingStarted           Kind = "typing_started"
	TypingStopped           Kind = "typing_stopped"
	Error                   Kind = "error"
)

// Client to server.
const (
	JoinChats  Kind = "join_chats"
	JoinChat   Kind = "join_chat"
	Typing     Kind = "typing"
	StopTyping Kind = "stop_typing"
	// SendMessage posts over the socket what POST /chats/:id/messages posts over HTTP.
	SendMessage Kind = "send_message"
)

// Event is one outbound frame.
type Event struct {
	Type Kind `json:"type"`
	Data any  `json:"data,omitempty"`
}

// Inbound is one client frame. Data is decoded once Type is known.
type Inbound struct {
	Type Kind            `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

type MessagePayload struct {
	domain.MessageView
	IsFirstMessage bool `json:"is_first_message"`
}

type ConversationRef struct {
	ConversationID domain.ConversationID `json:"conversation_id"`
}

type TypingPayload struct {
	ConversationID domain.ConversationID `json:"conversation_id"`
	User           domain.PublicUser     `json:"user"`
}

type SendMessagePayload struct {
	ConversationID domain.ConversationID `json:"conversation_id"`
	Content        string                `json:"content"`
}

type ErrorPayload struct {
	Message string `json:"message"`
}

func NewMessageEvent(msg domain.MessageView, first bool) Event {
	return Event{Type: NewMessage, Data: MessagePayload{MessageView: msg, IsFirstMessage: first}}
}

func NewConversationEvent(view domain.ConversationView) Event {
	return Event{Type: NewConversation, Data: view}
}

// NewJoinRoomInstruction is a command for the client, not a domain event.
func NewJoinRoomInstruction(id domain.ConversationID) Event {
	return Event{Type: JoinRoomInstruction, Data: ConversationRef{ConversationID: id}}
}

func NewConversationUpdatedEvent(view domain.ConversationView) Event {
	return Event{Type: ConversationUpdated, Data: view}
}

func NewRemovedFromConversationEvent(id domain.ConversationID) Event {
	return Event{Type: RemovedFromConversation, Data: ConversationRef{ConversationID: id}}
}

func NewTypingEvent(kind Kind, id domain.ConversationID, user domain.PublicUser) Event {
	return Event{Type: kind, Data: TypingPayload{ConversationID: id, User: user}}
}

func NewErrorEvent(message string) Event {
	return Event{Type: Error, Data: ErrorPayload{Message: message}}
}
