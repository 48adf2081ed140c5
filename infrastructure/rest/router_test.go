package rest

import (
	"bytes"
	"chatto/auth"
	"chatto/domain"
	"chatto/mocks"
	"chatto/moderation"
	"chatto/observability"
	"chatto/repositories"
	"chatto/runtime"
	"chatto/services"
	"chatto/session"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/blugelabs/bluge"
	"github.com/dgraph-io/badger/v4"
	"github.com/gin-gonic/gin"
	"github.com/mama165/sdk-go/logs"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

type api struct {
	t      *testing.T
	router *gin.Engine
}

func newAPI(t *testing.T) *api {
	t.Helper()
	gin.SetMode(gin.TestMode)
	log := logs.GetLoggerFromLevel(slog.LevelDebug)

	db, err := badger.Open(badger.DefaultOptions(t.TempDir()).WithLoggingLevel(badger.ERROR))
	require.NoError(t, err)
	ids := repositories.NewIDGenerator(db)
	writer, err := bluge.OpenWriter(bluge.InMemoryOnlyConfig())
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = writer.Close()
		_ = ids.Release()
		_ = db.Close()
	})

	users := repositories.NewUserRepository(db, ids)
	index := repositories.NewMessageIndex(writer, log)
	indexer := mocks.NewMockIMessageIndexer(gomock.NewController(t))
	indexer.EXPECT().Enqueue(gomock.Any()).DoAndReturn(func(m domain.Message) bool {
		return index.Index(m) == nil
	}).AnyTimes()

	issuer, err := auth.NewTokenIssuer("a-test-secret-of-32-bytes-length")
	require.NoError(t, err)
	params := auth.PasswordParams{Memory: 1024, Iterations: 1, Parallelism: 1, SaltLength: 16, KeyLength: 32}

	monitor := observability.NewMonitoringManager(log)
	authService := services.NewAuthService(log, users, session.NewBadgerStore(db), issuer, params, time.Hour)
	chatService := services.NewChatService(
		log,
		users,
		repositories.NewConversationRepository(db, ids),
		repositories.NewMessageRepository(db, ids, log),
		index,
		indexer,
		runtime.NewDispatcher(runtime.NewRegistry(), monitor, log),
		moderation.Passthrough{},
		services.ChatConfig{DefaultPageSize: 50, MaxPageSize: 100, MaxContentLength: 200, SearchLimit: 50, UserSearchLimit: 10},
	)
	return &api{t: t, router: NewRouter(RouterDeps{Log: log, AuthService: authService, ChatService: chatService, Monitor: monitor})}
}

func (a *api) do(method, path, token string, body any) *httptest.ResponseRecorder {
	a.t.Helper()
	var payload bytes.Buffer
	if body != nil {
		require.NoError(a.t, json.NewEncoder(&payload).Encode(body))
	}
	r := httptest.NewRequest(method, path, &payload)
	r.Header.Set("Content-Type", "application/json")
	if token != "" {
		r.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	a.router.ServeHTTP(w, r)
	return w
}

// signUp registers name@example.com and returns its token and user.
func (a *api) signUp(name string) (string, domain.PublicUser) {
	a.t.Helper()
	credentials := map[string]string{"email": name + "@example.com", "password": "password-" + name}
	w := a.do(http.MethodPost, "/api/auth/register", "", credentials)
	require.Equal(a.t, http.StatusOK, w.Code, w.Body.String())

	w = a.do(http.MethodPost, "/api/auth/login", "", credentials)
	require.Equal(a.t, http.StatusOK, w.Code, w.Body.String())
	var resp loginResponse
	require.NoError(a.t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp.Token, resp.User
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), w.Body.String())
	return v
}

func TestRouter_Auth(t *testing.T) {
	a := newAPI(t)
	token, alice := a.signUp("alice")

	t.Run("should verify a live token", func(t *testing.T) {
		w := a.do(http.MethodGet, "/api/auth/verify", token, nil)
		require.Equal(t, http.StatusOK, w.Code)
		require.Equal(t, alice, decode[userResponse](t, w).User)
	})

	t.Run("should refuse a duplicate email", func(t *testing.T) {
		w := a.do(http.MethodPost, "/api/auth/register", "", map[string]string{"email": "ALICE@example.com", "password": "whatever-123"})
		require.Equal(t, http.StatusBadRequest, w.Code)
		require.False(t, decode[errorResponse](t, w).Success)
	})

	t.Run("should answer bad credentials without telling which part is wrong", func(t *testing.T) {
		unknown := a.do(http.MethodPost, "/api/auth/login", "", map[string]string{"email": "nobody@example.com", "password": "password-x"})
		wrong := a.do(http.MethodPost, "/api/auth/login", "", map[string]string{"email": "alice@example.com", "password": "password-x"})
		require.Equal(t, http.StatusBadRequest, unknown.Code)
		require.Equal(t, unknown.Body.String(), wrong.Body.String())
	})

	t.Run("should require a token on protected routes", func(t *testing.T) {
		require.Equal(t, http.StatusUnauthorized, a.do(http.MethodGet, "/api/chats", "", nil).Code)
		require.Equal(t, http.StatusUnauthorized, a.do(http.MethodGet, "/api/chats", "garbage", nil).Code)
	})

	t.Run("should revoke the session on logout", func(t *testing.T) {
		other, _ := a.signUp("alice2")
		require.Equal(t, http.StatusOK, a.do(http.MethodPost, "/api/auth/logout", other, nil).Code)
		require.Equal(t, http.StatusUnauthorized, a.do(http.MethodGet, "/api/auth/verify", other, nil).Code)
	})

	t.Run("should change the password", func(t *testing.T) {
		body := map[string]string{"current_password": "password-alice", "new_password": "password-renewed"}
		require.Equal(t, http.StatusOK, a.do(http.MethodPost, "/api/auth/password", token, body).Code)

		w := a.do(http.MethodPost, "/api/auth/login", "", map[string]string{"email": "alice@example.com", "password": "password-renewed"})
		require.Equal(t, http.StatusOK, w.Code)
	})
}

func TestRouter_Chats(t *testing.T) {
	req := require.New(t)
	a := newAPI(t)
	aliceToken, alice := a.signUp("alice")
	bobToken, bob := a.signUp("bob")
	carolToken, carol := a.signUp("carol")

	// Given a direct conversation between alice and bob
	w := a.do(http.MethodPost, "/api/chats/direct", aliceToken, map[string]any{"participantId": bob.ID})
	req.Equal(http.StatusOK, w.Code, w.Body.String())
	direct := decode[domain.ConversationView](t, w)
	req.Equal(bob.Email, direct.DisplayName)

	messagesPath := fmt.Sprintf("/api/chats/%d/messages", direct.ID)

	// When alice posts a message
	w = a.do(http.MethodPost, messagesPath, aliceToken, map[string]string{"content": "  hello bob  "})

	// Then it is stored trimmed and attributed to her
	req.Equal(http.StatusOK, w.Code, w.Body.String())
	sent := decode[domain.MessageView](t, w)
	req.Equal("hello bob", sent.Content)
	req.Equal(alice.Email, sent.SenderEmail)

	t.Run("should list the conversation for bob with its last message", func(t *testing.T) {
		w := a.do(http.MethodGet, "/api/chats", bobToken, nil)
		require.Equal(t, http.StatusOK, w.Code)
		views := decode[[]domain.ConversationView](t, w)
		require.Len(t, views, 1)
		require.Equal(t, alice.Email, views[0].DisplayName)
		require.NotNil(t, views[0].LastMessage)
		require.Equal(t, sent.ID, views[0].LastMessage.ID)
	})

	t.Run("should page the history", func(t *testing.T) {
		w := a.do(http.MethodGet, messagesPath+"?limit=1&page=1", bobToken, nil)
		require.Equal(t, http.StatusOK, w.Code)
		require.Len(t, decode[messagesResponse](t, w).Messages, 1)

		require.Equal(t, http.StatusBadRequest, a.do(http.MethodGet, messagesPath+"?limit=-1", bobToken, nil).Code)
	})

	t.Run("should forbid a non participant", func(t *testing.T) {
		require.Equal(t, http.StatusForbidden, a.do(http.MethodGet, messagesPath, carolToken, nil).Code)
		require.Equal(t, http.StatusForbidden, a.do(http.MethodPost, messagesPath, carolToken, map[string]string{"content": "hi"}).Code)
		require.Equal(t, http.StatusForbidden, a.do(http.MethodGet, fmt.Sprintf("/api/chats/%d", direct.ID), carolToken, nil).Code)
	})

	t.Run("should answer unknown conversations with 404", func(t *testing.T) {
		require.Equal(t, http.StatusNotFound, a.do(http.MethodGet, "/api/chats/9999/messages", aliceToken, nil).Code)
		require.Equal(t, http.StatusBadRequest, a.do(http.MethodGet, "/api/chats/abc", aliceToken, nil).Code)
	})

	t.Run("should reject empty content", func(t *testing.T) {
		require.Equal(t, http.StatusBadRequest, a.do(http.MethodPost, messagesPath, aliceToken, map[string]string{"content": "   "}).Code)
	})

	t.Run("should find the message by full text search", func(t *testing.T) {
		w := a.do(http.MethodGet, "/api/chats/search/messages?query=hello", bobToken, nil)
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		found := decode[[]domain.MessageView](t, w)
		require.Len(t, found, 1)
		require.Equal(t, sent.ID, found[0].ID)

		w = a.do(http.MethodGet, "/api/chats/search/messages?query=hello", carolToken, nil)
		require.Equal(t, http.StatusOK, w.Code)
		require.Empty(t, decode[[]domain.MessageView](t, w))
	})

	t.Run("should search users excluding the requester", func(t *testing.T) {
		w := a.do(http.MethodGet, "/api/chats/search/users?query=example", aliceToken, nil)
		require.Equal(t, http.StatusOK, w.Code)
		found := decode[[]domain.PublicUser](t, w)
		require.ElementsMatch(t, []domain.PublicUser{bob, carol}, found)
	})

	t.Run("should manage group members", func(t *testing.T) {
		w := a.do(http.MethodPost, "/api/chats/group", aliceToken, map[string]any{"name": "team", "participantIds": []domain.UserID{bob.ID}})
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		group := decode[domain.ConversationView](t, w)
		membersPath := fmt.Sprintf("/api/chats/group/%d/members", group.ID)

		w = a.do(http.MethodPost, membersPath, aliceToken, map[string]any{"userId": carol.ID})
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		require.Len(t, decode[domain.ConversationView](t, w).Participants, 3)

		require.Equal(t, http.StatusConflict, a.do(http.MethodPost, membersPath, aliceToken, map[string]any{"userId": carol.ID}).Code)
		require.Equal(t, http.StatusBadRequest, a.do(http.MethodPost, membersPath, aliceToken, map[string]any{}).Code)

		w = a.do(http.MethodDelete, fmt.Sprintf("%s/%d", membersPath, carol.ID), aliceToken, nil)
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		require.Len(t, decode[domain.ConversationView](t, w).Participants, 2)

		require.Equal(t, http.StatusForbidden, a.do(http.MethodGet, fmt.Sprintf("/api/chats/%d", group.ID), carolToken, nil).Code)
	})

	t.Run("should answer unknown routes with 404", func(t *testing.T) {
		require.Equal(t, http.StatusNotFound, a.do(http.MethodGet, "/api/nowhere", aliceToken, nil).Code)
	})

	t.Run("should expose the debug stats", func(t *testing.T) {
		require.Equal(t, http.StatusOK, a.do(http.MethodGet, "/debug/stats", "", nil).Code)
	})
}
