package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Taxonomy kinds. Every error crossing a service boundary wraps exactly one of them.
var (
	ErrValidation      = fmt.Errorf("validation error")
	ErrUnauthenticated = fmt.Errorf("unauthenticated")
	ErrForbidden       = fmt.Errorf("forbidden")
	ErrNotFound        = fmt.Errorf("not found")
	ErrConflict        = fmt.Errorf("conflict")
	ErrServer          = fmt.Errorf("server error")
)

var (
	ErrWorkerPanic       = fmt.Errorf("worker panic")
	ErrEmptyWords        = fmt.Errorf("no words have been found")
	ErrConnectionClosed  = fmt.Errorf("connection closed")
	ErrOutboxFull        = fmt.Errorf("connection outbox full")
	ErrUnknownConnection = fmt.Errorf("unknown connection")

	ErrEmailTaken         = fmt.Errorf("%w: email already registered", ErrValidation)
	ErrInvalidCredentials = fmt.Errorf("%w: invalid credentials", ErrValidation)
	ErrInvalidPassword    = fmt.Errorf("%w: invalid password", ErrValidation)
	ErrInvalidEmail       = fmt.Errorf("%w: invalid email", ErrValidation)

	ErrMissingToken   = fmt.Errorf("%w: missing token", ErrUnauthenticated)
	ErrInvalidToken   = fmt.Errorf("%w: invalid token", ErrUnauthenticated)
	ErrSessionExpired = fmt.Errorf("%w: session expired or revoked", ErrUnauthenticated)

	ErrUserNotFound         = fmt.Errorf("%w: user not found", ErrNotFound)
	ErrConversationNotFound = fmt.Errorf("%w: conversation not found", ErrNotFound)
	ErrParticipantNotFound  = fmt.Errorf("%w: user is not a member", ErrNotFound)
	ErrSessionNotFound      = fmt.Errorf("%w: session not found", ErrNotFound)

	ErrNotParticipant = fmt.Errorf("%w: not a participant of this conversation", ErrForbidden)

	ErrEmptyGroupName       = fmt.Errorf("%w: group name is required", ErrValidation)
	ErrEmptyParticipants    = fmt.Errorf("%w: at least one other participant is required", ErrValidation)
	ErrNotGroup             = fmt.Errorf("%w: conversation is not a group", ErrValidation)
	ErrSelfConversation     = fmt.Errorf("%w: cannot start a direct conversation with yourself", ErrValidation)
	ErrEmptyContent         = fmt.Errorf("%w: message content is required", ErrValidation)
	ErrContentTooLong       = fmt.Errorf("%w: message content is too long", ErrValidation)
	ErrInvalidPagination    = fmt.Errorf("%w: invalid pagination", ErrValidation)
	ErrInvalidConversation  = fmt.Errorf("%w: invalid conversation id", ErrValidation)
	ErrUnknownEvent         = fmt.Errorf("%w: unknown event type", ErrValidation)
	ErrEmptyQuery           = fmt.Errorf("%w: query is required", ErrValidation)
	ErrInvalidBody          = fmt.Errorf("%w: invalid request body", ErrValidation)
	ErrInvalidUserID        = fmt.Errorf("%w: invalid user id", ErrValidation)
	ErrAlreadyMember        = fmt.Errorf("%w: user is already a member", ErrConflict)
	ErrTransactionConflicts = fmt.Errorf("%w: too many transaction conflicts", ErrServer)
	ErrTokenGeneration      = fmt.Errorf("%w: token generation failed", ErrServer)
)

func Is(err, target error) bool { return errors.Is(err, target) }

func As(err error, target any) bool { return errors.As(err, target) }

func New(text string) error { return errors.New(text) }

// Server wraps an unexpected failure so that it reports as ErrServer while keeping the cause.
func Server(op string, err error) error {
	if err == nil {
		return nil
	}
	if IsTaxonomy(err) {
		return err
	}
	return fmt.Errorf("%w: %s: %w", ErrServer, op, err)
}

// IsTaxonomy reports whether err already carries one of the kinds.
func IsTaxonomy(err error) bool {
	for _, kind := range kinds {
		if errors.Is(err, kind.err) {
			return true
		}
	}
	return false
}

var kinds = []struct {
	err    error
	name   string
	status int
}{
	{ErrValidation, "validation", http.StatusBadRequest},
	{ErrUnauthenticated, "unauthenticated", http.StatusUnauthorized},
	{ErrForbidden, "forbidden", http.StatusForbidden},
	{ErrNotFound, "not_found", http.StatusNotFound},
	{ErrConflict, "conflict", http.StatusConflict},
	{ErrServer, "server", http.StatusInternalServerError},
}

// Kind names the taxonomy kind of err, "server" when none matches.
func Kind(err error) string {
	for _, kind := range kinds {
		if errors.Is(err, kind.err) {
			return kind.name
		}
	}
	return "server"
}

// HTTPStatus maps err to its HTTP status code.
func HTTPStatus(err error) int {
	for _, kind := range kinds {
		if errors.Is(err, kind.err) {
			return kind.status
		}
	}
	return http.StatusInternalServerError
}

// PublicMessage is the text safe to return to a client. Server errors never leak their cause.
func PublicMessage(err error) string {
	if err == nil {
		return ""
	}
	if !IsTaxonomy(err) || errors.Is(err, ErrServer) {
		return "internal server error"
	}
	return err.Error()
}
