package domain

import "time"

type MessageID int64

// Message is immutable once stored.
type Message struct {
	ID             MessageID      `cbor:"1,keyasint"`
	ConversationID ConversationID `cbor:"2,keyasint"`
	SenderID       UserID         `cbor:"3,keyasint"`
	Content        string         `cbor:"4,keyasint"`
	Lang           string         `cbor:"5,keyasint,omitempty"`
	CreatedAt      time.Time      `cbor:"6,keyasint"`
}

type MessageView struct {
	ID             MessageID      `json:"id"`
	ConversationID ConversationID `json:"chat_id"`
	SenderID       UserID         `json:"sender_id"`
	SenderEmail    string         `json:"sender_email"`
	Content        string         `json:"content"`
	Lang           string         `json:"lang,omitempty"`
	CreatedAt      time.Time      `json:"created_at"`
}

func (m Message) View(senderEmail string) MessageView {
	return MessageView{
		ID:             m.ID,
		ConversationID: m.ConversationID,
		SenderID:       m.SenderID,
		SenderEmail:    senderEmail,
		Content:        m.Content,
		Lang:           m.Lang,
		CreatedAt:      m.CreatedAt,
	}
}

// Page is a 1-based page of a conversation history.
type Page struct {
	Number int
	Limit  int
}

func (p Page) Offset() int {
	if p.Number < 1 {
		return 0
	}
	return (p.Number - 1) * p.Limit
}
