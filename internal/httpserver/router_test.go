package httpserver_test

import (
	"bytes"
	"database/sql"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"huddle/internal/config"
	"huddle/internal/directory"
	"huddle/internal/domain"
	"huddle/internal/httpserver"
	"huddle/internal/notify"
	"huddle/internal/security"
	"huddle/internal/store/sqlite"
	"huddle/internal/ws"
)

type testEnv struct {
	srv    *httptest.Server
	db     *sql.DB
	fanout *notify.Fanout
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	db, err := sqlite.Open(":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	require.NoError(t, sqlite.Migrate(db))

	stores := httpserver.Stores{
		Users:         sqlite.NewUserRepo(db),
		Conversations: sqlite.NewConversationRepo(db),
		Participants:  sqlite.NewParticipantRepo(db),
		Messages:      sqlite.NewMessageRepo(db),
		Notifications: sqlite.NewNotificationRepo(db),
	}

	cfg := &config.Config{
		CORSOrigins: []string{"http://localhost:3000"},
	}

	dir := directory.New(stores.Users, time.Minute)
	hub := ws.NewHub()
	fanout := notify.New(stores.Notifications, dir, hub, 1, 16)

	tokens := security.NewTokenService("test-secret", time.Hour)
	hasher := security.NewPasswordHasher(4)
	encryptor, err := security.NewEncryptor([]byte("test-key"))
	require.NoError(t, err)

	router := httpserver.NewRouter(cfg, stores, dir, fanout, hub, tokens, hasher, encryptor)
	srv := httptest.NewServer(router)

	t.Cleanup(func() {
		srv.Close()
		fanout.Close()
		_ = db.Close()
	})

	return &testEnv{srv: srv, db: db, fanout: fanout}
}

func (e *testEnv) do(t *testing.T, method, path, token string, body any) (*http.Response, map[string]json.RawMessage) {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, e.srv.URL+path, &buf)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	out := map[string]json.RawMessage{}
	_ = json.NewDecoder(resp.Body).Decode(&out)
	return resp, out
}

// register creates a user and returns their id and access token.
func (e *testEnv) register(t *testing.T, username, displayName string) (int64, string) {
	t.Helper()

	resp, body := e.do(t, http.MethodPost, "/api/auth/register", "", map[string]string{
		"username":     username,
		"display_name": displayName,
		"password":     "Password1!",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var id int64
	require.NoError(t, json.Unmarshal(body["id"], &id))

	resp, body = e.do(t, http.MethodPost, "/api/auth/login", "", map[string]string{
		"username": username,
		"password": "Password1!",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var token string
	require.NoError(t, json.Unmarshal(body["access_token"], &token))
	return id, token
}

func TestMessageFlow(t *testing.T) {
	env := newTestEnv(t)

	aliceID, aliceToken := env.register(t, "alice", "Alice")
	bobID, bobToken := env.register(t, "bob", "Bob")

	// Alice messages Bob by recipient id; the conversation is created on
	// the fly.
	resp, body := env.do(t, http.MethodPost, "/api/messages", aliceToken, map[string]any{
		"content":      "hello bob",
		"recipient_id": bobID,
		"client_ref":   "ref-1",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var convID string
	require.NoError(t, json.Unmarshal(body["conversation_id"], &convID))
	assert.Equal(t, domain.PairKey(aliceID, bobID), convID)

	var clientRef string
	require.NoError(t, json.Unmarshal(body["client_ref"], &clientRef))
	assert.Equal(t, "ref-1", clientRef)

	// Bob sees one conversation with one unread message.
	resp, body = env.do(t, http.MethodGet, "/api/conversations", bobToken, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var convs []struct {
		ID          string `json:"id"`
		UnreadCount int    `json:"unread_count"`
	}
	require.NoError(t, json.Unmarshal(body["conversations"], &convs))
	require.Len(t, convs, 1)
	assert.Equal(t, convID, convs[0].ID)
	assert.Equal(t, 1, convs[0].UnreadCount)

	// Bob reads the messages; content comes back decrypted.
	resp, body = env.do(t, http.MethodGet, "/api/messages?conversationId="+convID, bobToken, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var msgs []struct {
		Content  string `json:"content"`
		SenderID int64  `json:"sender_id"`
		Status   string `json:"status"`
	}
	require.NoError(t, json.Unmarshal(body["messages"], &msgs))
	require.Len(t, msgs, 1)
	assert.Equal(t, "hello bob", msgs[0].Content)
	assert.Equal(t, aliceID, msgs[0].SenderID)

	// Mark read and verify the unread count drops to zero.
	resp, _ = env.do(t, http.MethodPost, "/api/conversations/"+convID+"/read", bobToken, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, body = env.do(t, http.MethodGet, "/api/conversations", bobToken, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.NoError(t, json.Unmarshal(body["conversations"], &convs))
	assert.Equal(t, 0, convs[0].UnreadCount)

	// The fanout eventually lands a notification for Bob.
	require.Eventually(t, func() bool {
		_, body := env.do(t, http.MethodGet, "/api/notifications", bobToken, nil)
		var total int
		if err := json.Unmarshal(body["total"], &total); err != nil {
			return false
		}
		return total == 1
	}, 2*time.Second, 20*time.Millisecond)
}

func TestMessagingRequiresAuth(t *testing.T) {
	env := newTestEnv(t)

	resp, body := env.do(t, http.MethodGet, "/api/conversations", "", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	var code string
	require.NoError(t, json.Unmarshal(body["error"], &code))
	assert.Equal(t, string(domain.CodeUnauthenticated), code)
}

func TestNonParticipantCannotRead(t *testing.T) {
	env := newTestEnv(t)

	_, aliceToken := env.register(t, "alice", "Alice")
	bobID, _ := env.register(t, "bob", "Bob")
	_, eveToken := env.register(t, "eve", "Eve")

	resp, body := env.do(t, http.MethodPost, "/api/messages", aliceToken, map[string]any{
		"content":      "secret",
		"recipient_id": bobID,
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var convID string
	require.NoError(t, json.Unmarshal(body["conversation_id"], &convID))

	resp, body = env.do(t, http.MethodGet, "/api/messages?conversationId="+convID, eveToken, nil)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	var code string
	require.NoError(t, json.Unmarshal(body["error"], &code))
	assert.Equal(t, string(domain.CodeAccessDenied), code)
}

func TestUnregisteredRecipientRejected(t *testing.T) {
	env := newTestEnv(t)

	_, aliceToken := env.register(t, "alice", "Alice")
	// No display name: the account exists but onboarding never finished.
	ghostID, _ := env.register(t, "ghost", "")

	resp, body := env.do(t, http.MethodPost, "/api/messages", aliceToken, map[string]any{
		"content":      "hello?",
		"recipient_id": ghostID,
	})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	var code string
	require.NoError(t, json.Unmarshal(body["error"], &code))
	assert.Equal(t, string(domain.CodeRecipientNotRegistered), code)

	var recipientID int64
	require.NoError(t, json.Unmarshal(body["recipient_id"], &recipientID))
	assert.Equal(t, ghostID, recipientID)

	// No conversation was created by the failed attempt.
	resp, body = env.do(t, http.MethodGet, "/api/conversations", aliceToken, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var total int
	require.NoError(t, json.Unmarshal(body["total"], &total))
	assert.Equal(t, 0, total)
}

func TestSelfMessagingRejected(t *testing.T) {
	env := newTestEnv(t)

	aliceID, aliceToken := env.register(t, "alice", "Alice")

	resp, body := env.do(t, http.MethodPost, "/api/messages", aliceToken, map[string]any{
		"content":      "note to self",
		"recipient_id": aliceID,
	})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	var code string
	require.NoError(t, json.Unmarshal(body["error"], &code))
	assert.Equal(t, string(domain.CodeValidation), code)
}

func TestDualQueryModeResolvesConversation(t *testing.T) {
	env := newTestEnv(t)

	aliceID, aliceToken := env.register(t, "alice", "Alice")
	bobID, _ := env.register(t, "bob", "Bob")

	resp, body := env.do(t, http.MethodGet, fmt.Sprintf("/api/messages?userId=%d", bobID), aliceToken, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var convID string
	require.NoError(t, json.Unmarshal(body["conversation_id"], &convID))
	assert.Equal(t, domain.PairKey(aliceID, bobID), convID)

	// Asking again returns the same conversation.
	resp, body = env.do(t, http.MethodGet, fmt.Sprintf("/api/messages?userId=%d", bobID), aliceToken, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var again string
	require.NoError(t, json.Unmarshal(body["conversation_id"], &again))
	assert.Equal(t, convID, again)
}
