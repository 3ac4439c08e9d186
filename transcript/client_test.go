package transcript

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/BaSui01/voiceflow/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient(Config{
		BaseURL:       srv.URL,
		InternalToken: "internal-secret",
		Timeout:       2 * time.Second,
	}, zap.NewNop())
}

func TestSaveMessagePayload(t *testing.T) {
	var got map[string]any
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/internal/messages/create", r.URL.Path)
		assert.Equal(t, "Bearer internal-secret", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusCreated)
	})

	require.NoError(t, c.SaveMessage(context.Background(), "cv_1", "hello there", SenderUser))

	assert.Equal(t, "cv_1", got["conversationId"])
	assert.Equal(t, "hello there", got["content"])
	assert.Equal(t, "user", got["senderType"])
	assert.Equal(t, "audio", got["messageType"])
	assert.Equal(t, "cv_1", got["threadId"])
	meta, ok := got["metadata"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "voice_call", meta["source"])
	assert.Equal(t, "audio", meta["transcript_type"])
}

func TestListMessages(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/api/internal/messages/list", r.URL.Path)
		assert.Equal(t, "cv_1", r.URL.Query().Get("conversationId"))
		assert.Equal(t, "1", r.URL.Query().Get("limit"))
		json.NewEncoder(w).Encode(map[string]any{
			"messages": []map[string]any{
				{"id": "m1", "conversationId": "cv_1", "content": "hi", "senderType": "user"},
			},
		})
	})

	msgs, err := c.ListMessages(context.Background(), "cv_1", 1)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, "hi", msgs[0].Content)
	assert.Equal(t, SenderUser, msgs[0].SenderType)
}

func TestUpdateConversation(t *testing.T) {
	var got map[string]any
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPatch, r.Method)
		assert.Equal(t, "/api/internal/conversations/cv_1", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
	})

	ended := time.Date(2026, 3, 1, 12, 30, 0, 0, time.UTC)
	err := c.UpdateConversation(context.Background(), "cv_1", ConversationUpdate{
		Status:    "completed",
		EndedAt:   ended,
		Metadata:  types.ConversationMetadata{"contact_email": "a@b.com"},
		ContactID: "ct_9",
	})
	require.NoError(t, err)

	assert.Equal(t, "completed", got["status"])
	assert.Equal(t, "2026-03-01T12:30:00Z", got["ended_at"])
	assert.Equal(t, "ct_9", got["contact_id"])
	meta, ok := got["metadata"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "a@b.com", meta["contact_email"])
}

func TestUpdateConversationEmptyPatchSkipped(t *testing.T) {
	called := false
	c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) { called = true })
	require.NoError(t, c.UpdateConversation(context.Background(), "cv_1", ConversationUpdate{}))
	assert.False(t, called)
}

func TestServerErrorMapsRetryable(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})
	err := c.SaveMessage(context.Background(), "cv_1", "x", SenderAgent)
	require.Error(t, err)
	assert.Equal(t, types.ErrUpstreamError, types.CodeOf(err))

	var te *types.Error
	require.ErrorAs(t, err, &te)
	assert.True(t, te.Retryable)
}

func TestUnauthorized(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	})
	err := c.SaveMessage(context.Background(), "cv_1", "x", SenderUser)
	assert.Equal(t, types.ErrUnauthorized, types.CodeOf(err))
}

func TestUnconfiguredClient(t *testing.T) {
	c := NewClient(Config{}, zap.NewNop())
	assert.False(t, c.Configured())
	err := c.SaveMessage(context.Background(), "cv_1", "x", SenderUser)
	assert.Equal(t, types.ErrInvalidRequest, types.CodeOf(err))
}
