package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/fathima-sithara/chat-sync/internal/auth"
	"github.com/fathima-sithara/chat-sync/internal/config"
	"github.com/fathima-sithara/chat-sync/internal/identity"
	"github.com/fathima-sithara/chat-sync/internal/models"
	"github.com/fathima-sithara/chat-sync/internal/service"
	"github.com/fathima-sithara/chat-sync/internal/store"
)

const testSecret = "test-secret"

func newTestApp(t *testing.T) (*fiber.App, *store.MemoryStore) {
	t.Helper()
	cfg, err := config.Load("")
	require.NoError(t, err)
	log := zap.NewNop().Sugar()
	s := store.NewMemoryStore()

	resolver := identity.NewStaticResolver()
	resolver.Add(&models.Profile{ID: "alice", DisplayName: "Alice"})
	resolver.Add(&models.Profile{ID: "bob", DisplayName: "Bob"})

	dir := service.NewDirectory(s, log)
	app := NewServer(Deps{
		Cfg:       cfg,
		Log:       log,
		Validator: auth.NewValidator(testSecret),
		Directory: dir,
		Thread:    service.NewThread(s, nil, log),
		Presence:  service.NewPresence(s, log),
		Tracker:   service.NewTracker(s, nil, log),
		Agg:       service.NewAggregator(dir, resolver, log),
		Resolver:  resolver,
	})
	return app, s
}

func token(t *testing.T, sub string) string {
	t.Helper()
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"sub": sub}).SignedString([]byte(testSecret))
	require.NoError(t, err)
	return tok
}

func doJSON(t *testing.T, app *fiber.App, method, path, as string, body any) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if as != "" {
		req.Header.Set("Authorization", "Bearer "+token(t, as))
	}
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	return resp
}

func decode(t *testing.T, resp *http.Response, out any) {
	t.Helper()
	b, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(b, out))
}

func TestAuthRequired(t *testing.T) {
	app, _ := newTestApp(t)
	resp := doJSON(t, app, http.MethodPost, "/v1/conversations", "", fiber.Map{"other_id": "bob"})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestFindOrCreateEndpoint(t *testing.T) {
	app, _ := newTestApp(t)

	resp := doJSON(t, app, http.MethodPost, "/v1/conversations", "alice", fiber.Map{"other_id": "bob"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var conv models.Conversation
	decode(t, resp, &conv)
	assert.Equal(t, "alice_bob", conv.ID)

	// Same pair from the other side resolves to the same record.
	resp = doJSON(t, app, http.MethodPost, "/v1/conversations", "bob", fiber.Map{"other_id": "alice"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var again models.Conversation
	decode(t, resp, &again)
	assert.Equal(t, conv.ID, again.ID)
}

func TestSendAndReadFlow(t *testing.T) {
	app, s := newTestApp(t)

	resp := doJSON(t, app, http.MethodPost, "/v1/conversations", "alice", fiber.Map{"other_id": "bob"})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = doJSON(t, app, http.MethodPost, "/v1/conversations/alice_bob/messages", "alice", fiber.Map{"text": "hi"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var msg models.Message
	decode(t, resp, &msg)
	assert.Equal(t, "hi", msg.Text)
	assert.False(t, msg.Read)

	resp = doJSON(t, app, http.MethodPost, "/v1/conversations/alice_bob/read", "bob", nil)
	require.Equal(t, http.StatusNoContent, resp.StatusCode)

	conv, err := s.GetConversation(context.Background(), "alice_bob")
	require.NoError(t, err)
	assert.Equal(t, 0, conv.UnreadCounts["bob"])
}

func TestSendEmptyTextReturnsDraft(t *testing.T) {
	app, _ := newTestApp(t)
	doJSON(t, app, http.MethodPost, "/v1/conversations", "alice", fiber.Map{"other_id": "bob"})

	resp := doJSON(t, app, http.MethodPost, "/v1/conversations/alice_bob/messages", "alice", fiber.Map{"text": "  "})
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	var body map[string]any
	decode(t, resp, &body)
	assert.Equal(t, "  ", body["draft"], "the draft comes back so the input can be restored")
}

func TestSearchProfilesEndpoint(t *testing.T) {
	app, _ := newTestApp(t)
	resp := doJSON(t, app, http.MethodGet, "/v1/profiles?q=bo", "alice", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var body struct {
		Profiles []*models.Profile `json:"profiles"`
	}
	decode(t, resp, &body)
	require.Len(t, body.Profiles, 1)
	assert.Equal(t, "Bob", body.Profiles[0].DisplayName)
}
