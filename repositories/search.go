//go:generate go run go.uber.org/mock/mockgen -source=search.go -destination=../mocks/mock_message_index.go -package=mocks
package repositories

import (
	"chatto/domain"
	"context"
	"log/slog"
	"strconv"
	"strings"
	"unicode"

	"github.com/blugelabs/bluge"
	"github.com/samber/lo"
)

const (
	fieldID           = "_id"
	fieldConversation = "chat_id"
	fieldSender       = "sender_id"
	fieldContent      = "content"
	fieldLang         = "lang"
	fieldAt           = "at"
)

type IMessageIndex interface {
	Index(messages ...domain.Message) error
	Search(ctx context.Context, query string, conversations []domain.ConversationID, limit int) ([]domain.Message, error)
}

// MessageIndex is the full text index of message content.
type MessageIndex struct {
	writer *bluge.Writer
	log    *slog.Logger
}

func NewMessageIndex(writer *bluge.Writer, log *slog.Logger) *MessageIndex {
	return &MessageIndex{writer: writer, log: log}
}

func (i *MessageIndex) Index(messages ...domain.Message) error {
	if len(messages) == 0 {
		return nil
	}
	batch := bluge.NewBatch()
	for _, m := range messages {
		doc := bluge.NewDocument(strconv.FormatInt(int64(m.ID), 10)).
			AddField(bluge.NewKeywordField(fieldConversation, strconv.FormatInt(int64(m.ConversationID), 10)).StoreValue()).
			AddField(bluge.NewKeywordField(fieldSender, strconv.FormatInt(int64(m.SenderID), 10)).StoreValue()).
			AddField(bluge.NewTextField(fieldContent, m.Content).StoreValue()).
			AddField(bluge.NewKeywordField(fieldLang, m.Lang).StoreValue()).
			AddField(bluge.NewDateTimeField(fieldAt, m.CreatedAt).StoreValue().Sortable())
		batch.Update(doc.ID(), doc)
	}
	return i.writer.Batch(batch)
}

// Search matches every query word as a case-insensitive substring of the
// content, restricted to the given conversations, newest first.
func (i *MessageIndex) Search(ctx context.Context, query string, conversations []domain.ConversationID, limit int) ([]domain.Message, error) {
	words := searchWords(query)
	if len(words) == 0 || len(conversations) == 0 {
		return nil, nil
	}

	scope := bluge.NewBooleanQuery().SetMinShould(1)
	for _, id := range lo.Uniq(conversations) {
		scope.AddShould(bluge.NewTermQuery(strconv.FormatInt(int64(id), 10)).SetField(fieldConversation))
	}
	q := bluge.NewBooleanQuery().AddMust(scope)
	for _, word := range words {
		q.AddMust(bluge.NewWildcardQuery("*" + word + "*").SetField(fieldContent))
	}

	reader, err := i.writer.Reader()
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := reader.Close(); err != nil {
			i.log.Warn("Failed to close index reader", "error", err)
		}
	}()

	request := bluge.NewTopNSearch(limit, q).SortBy([]string{"-" + fieldAt})
	matches, err := reader.Search(ctx, request)
	if err != nil {
		return nil, err
	}

	var messages []domain.Message
	match, err := matches.Next()
	for err == nil && match != nil {
		var m domain.Message
		var visitErr error
		err = match.VisitStoredFields(func(field string, value []byte) bool {
			visitErr = decodeStoredField(&m, field, value)
			return visitErr == nil
		})
		if err != nil {
			return nil, err
		}
		if visitErr != nil {
			return nil, visitErr
		}
		messages = append(messages, m)
		match, err = matches.Next()
	}
	if err != nil {
		return nil, err
	}
	return messages, nil
}

func decodeStoredField(m *domain.Message, field string, value []byte) error {
	switch field {
	case fieldID:
		id, err := strconv.ParseInt(string(value), 10, 64)
		m.ID = domain.MessageID(id)
		return err
	case fieldConversation:
		id, err := strconv.ParseInt(string(value), 10, 64)
		m.ConversationID = domain.ConversationID(id)
		return err
	case fieldSender:
		id, err := strconv.ParseInt(string(value), 10, 64)
		m.SenderID = domain.UserID(id)
		return err
	case fieldContent:
		m.Content = string(value)
	case fieldLang:
		m.Lang = string(value)
	case fieldAt:
		at, err := bluge.DecodeDateTime(value)
		m.CreatedAt = at.UTC()
		return err
	}
	return nil
}

// searchWords lowercases the query and splits it on anything that is not a
// letter or a digit, which also drops wildcard metacharacters.
func searchWords(query string) []string {
	return strings.FieldsFunc(strings.ToLower(query), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})
}
