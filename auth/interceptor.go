package auth

import (
	"chatto/domain"
	"chatto/errors"
	"context"
	"strings"
)

type contextKey string

const (
	userKey    contextKey = "user"
	sessionKey contextKey = "session"
)

// Identity is what an authenticated request carries downstream.
type Identity struct {
	User      domain.PublicUser
	SessionID string
}

func WithIdentity(ctx context.Context, identity Identity) context.Context {
	ctx = context.WithValue(ctx, userKey, identity.User)
	return context.WithValue(ctx, sessionKey, identity.SessionID)
}

func IdentityFromContext(ctx context.Context) (Identity, bool) {
	user, ok := ctx.Value(userKey).(domain.PublicUser)
	if !ok {
		return Identity{}, false
	}
	sessionID, _ := ctx.Value(sessionKey).(string)
	return Identity{User: user, SessionID: sessionID}, true
}

// BearerToken extracts the token of an "Authorization: Bearer <token>" header.
func BearerToken(header string) (string, error) {
	scheme, token, found := strings.Cut(strings.TrimSpace(header), " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return "", errors.ErrMissingToken
	}
	token = strings.TrimSpace(token)
	if token == "" {
		return "", errors.ErrMissingToken
	}
	return token, nil
}
