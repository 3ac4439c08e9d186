package errtrack

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestDisabledWithoutDSN(t *testing.T) {
	r := New(Config{Environment: "production"}, zap.NewNop())
	assert.False(t, r.Enabled())

	// noop 上报不应 panic
	r.CaptureException(context.Background(), errors.New("x"), nil, nil)
}

func TestDisabledOutsideProduction(t *testing.T) {
	r := New(Config{DSN: "https://key@errors.example.com/42", Environment: "development"}, zap.NewNop())
	assert.False(t, r.Enabled())
}

func TestParseDSN(t *testing.T) {
	storeURL, key, err := parseDSN("https://abc123@errors.example.com/42")
	require.NoError(t, err)
	assert.Equal(t, "https://errors.example.com/api/42/store/", storeURL)
	assert.Equal(t, "abc123", key)

	_, _, err = parseDSN("https://errors.example.com/42")
	assert.Error(t, err)

	_, _, err = parseDSN("https://key@errors.example.com")
	assert.Error(t, err)
}

func TestCaptureExceptionSendsEvent(t *testing.T) {
	var got event
	var auth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth = r.Header.Get("X-Sentry-Auth")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	r := New(Config{
		DSN:         strings.Replace(srv.URL, "http://", "http://pubkey@", 1) + "/7",
		Environment: "production",
		Release:     "1.2.3",
	}, zap.NewNop())
	require.True(t, r.Enabled())

	r.CaptureException(context.Background(), errors.New("session error"), map[string]string{
		"agentId":        "a1",
		"conversationId": "c1",
		"roomName":       "conversation:c1",
	}, map[string]any{"errorType": "session_error"})

	assert.Equal(t, "session error", got.Message)
	assert.Equal(t, "a1", got.Tags["agentId"])
	assert.Equal(t, "1.2.3", got.Release)
	assert.Contains(t, auth, "sentry_key=pubkey")
}

func TestCaptureFiltersCancellation(t *testing.T) {
	hits := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
	}))
	defer srv.Close()

	r := New(Config{
		DSN:         strings.Replace(srv.URL, "http://", "http://k@", 1) + "/1",
		Environment: "production",
	}, zap.NewNop())

	r.CaptureException(context.Background(), context.Canceled, nil, nil)
	assert.Zero(t, hits)
}
