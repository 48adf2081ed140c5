package errors

import (
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestHTTPStatus(t *testing.T) {
	cases := map[error]int{
		ErrEmailTaken:           http.StatusBadRequest,
		ErrInvalidCredentials:   http.StatusBadRequest,
		ErrInvalidToken:         http.StatusUnauthorized,
		ErrNotParticipant:       http.StatusForbidden,
		ErrConversationNotFound: http.StatusNotFound,
		ErrAlreadyMember:        http.StatusConflict,
		ErrTransactionConflicts: http.StatusInternalServerError,
		New("boom"):             http.StatusInternalServerError,
	}
	for err, status := range cases {
		require.Equal(t, status, HTTPStatus(err), err.Error())
	}
}

func TestServer(t *testing.T) {
	req := require.New(t)
	cause := New("disk full")

	// When an unexpected failure crosses a service boundary
	err := Server("store message", cause)

	// Then it reports as a server error and keeps its cause
	req.ErrorIs(err, ErrServer)
	req.ErrorIs(err, cause)
	req.Equal("server", Kind(err))
	req.Equal("internal server error", PublicMessage(err))

	t.Run("should keep taxonomy errors untouched", func(t *testing.T) {
		wrapped := fmt.Errorf("join: %w", ErrNotParticipant)
		require.Same(t, wrapped, Server("join", wrapped))
		require.Equal(t, "forbidden", Kind(wrapped))
	})

	t.Run("should pass nil through", func(t *testing.T) {
		require.NoError(t, Server("noop", nil))
	})
}

func TestPublicMessage(t *testing.T) {
	require.Equal(t, "validation error: message content is required", PublicMessage(ErrEmptyContent))
	require.Equal(t, "internal server error", PublicMessage(New("leaky detail")))
	require.Empty(t, PublicMessage(nil))
}
