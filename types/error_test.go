package types

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorFormatting(t *testing.T) {
	e := NewError(ErrConfigNotFound, "agent abc not found")
	assert.Equal(t, "[CONFIG_NOT_FOUND] agent abc not found", e.Error())

	cause := errors.New("row not found")
	e = e.WithCause(cause)
	assert.Contains(t, e.Error(), "row not found")
	assert.Equal(t, cause, errors.Unwrap(e))
}

func TestErrorBuilders(t *testing.T) {
	e := NewError(ErrTransientIO, "kb timeout").
		WithHTTPStatus(504).
		WithRetryable(true)

	assert.Equal(t, 504, e.HTTPStatus)
	assert.True(t, e.Retryable)
}

func TestCodeOf(t *testing.T) {
	assert.Equal(t, ErrSecurityViolation, CodeOf(NewError(ErrSecurityViolation, "tenant mismatch")))
	assert.Equal(t, ErrInternalError, CodeOf(errors.New("plain")))
	assert.Equal(t, ErrInternalError, CodeOf(fmt.Errorf("wrapped: %w", errors.New("x"))))
}

func TestIsFatal(t *testing.T) {
	tests := []struct {
		code  ErrorCode
		fatal bool
	}{
		{ErrSecurityViolation, true},
		{ErrPipelineInit, true},
		{ErrConfigNotFound, false},
		{ErrTransientIO, false},
		{ErrExtraction, false},
		{ErrUpstreamTimeout, false},
	}
	for _, tt := range tests {
		t.Run(string(tt.code), func(t *testing.T) {
			assert.Equal(t, tt.fatal, IsFatal(NewError(tt.code, "x")))
		})
	}
	assert.False(t, IsFatal(errors.New("plain")))
}

func TestCallContextGates(t *testing.T) {
	c := &CallContext{AgentID: "a1", CompanyID: "c1", ConversationID: "conv1"}
	assert.True(t, c.KBEnabled())
	assert.True(t, c.PersistenceEnabled())

	// 兜底身份永远不能触达租户数据
	c = &CallContext{AgentID: FallbackAgentID, CompanyID: "c1"}
	assert.False(t, c.KBEnabled())
	assert.False(t, c.PersistenceEnabled())

	c = &CallContext{AgentID: "a1"}
	assert.False(t, c.KBEnabled())
}

func TestExtractedContactInfoHasContactInfo(t *testing.T) {
	empty := &ExtractedContactInfo{Confidence: 0.9}
	require.False(t, empty.HasContactInfo())

	assert.True(t, (&ExtractedContactInfo{Email: "a@b.c"}).HasContactInfo())
	assert.True(t, (&ExtractedContactInfo{Phone: "15551234567"}).HasContactInfo())
	assert.True(t, (&ExtractedContactInfo{CompanyName: "Acme"}).HasContactInfo())
}

func TestConversationMetadataClone(t *testing.T) {
	m := ConversationMetadata{"email": "a@b.c"}
	clone := m.Clone()
	clone["email"] = "x@y.z"
	assert.Equal(t, "a@b.c", m.StringField("email"))
	assert.Equal(t, "", m.StringField("missing"))
}
