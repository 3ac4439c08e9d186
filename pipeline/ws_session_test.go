package pipeline

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/BaSui01/voiceflow/types"
	"github.com/coder/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// fakeGateway accepts one websocket and runs script against it.
func fakeGateway(t *testing.T, script func(ctx context.Context, c *websocket.Conn)) string {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		defer c.CloseNow()
		script(r.Context(), c)
	}))
	t.Cleanup(srv.Close)
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func readFrame(ctx context.Context, t *testing.T, c *websocket.Conn) frame {
	t.Helper()
	_, data, err := c.Read(ctx)
	require.NoError(t, err)
	var f frame
	require.NoError(t, json.Unmarshal(data, &f))
	return f
}

func writeFrame(ctx context.Context, t *testing.T, c *websocket.Conn, f frame) {
	t.Helper()
	data, err := json.Marshal(f)
	require.NoError(t, err)
	require.NoError(t, c.Write(ctx, websocket.MessageText, data))
}

func TestWSSessionStartAndEvents(t *testing.T) {
	url := fakeGateway(t, func(ctx context.Context, c *websocket.Conn) {
		start := readFrame(ctx, t, c)
		assert.Equal(t, "start", start.Type)
		assert.Equal(t, "conversation:cv_1", start.Room)
		require.NotNil(t, start.Components)
		assert.Equal(t, DefaultSTTModel, start.Components.STT)

		writeFrame(ctx, t, c, frame{Type: "started"})
		writeFrame(ctx, t, c, frame{Type: "turn_completed", Transcript: "hello there"})
		writeFrame(ctx, t, c, frame{Type: "item_added", Item: &Item{Role: RoleUser, Text: "hello there"}})
		writeFrame(ctx, t, c, frame{Type: "closed", Reason: "room ended"})
	})

	s := NewWSSession(WSConfig{URL: url, RoomName: "conversation:cv_1"},
		NewComponents(ComponentConfig{}, ""), zap.NewNop())
	require.NoError(t, s.Start(context.Background()))
	defer s.Close()

	var got []Event
	for ev := range s.Events() {
		got = append(got, ev)
	}
	require.Len(t, got, 3)
	assert.Equal(t, EventTurnCompleted, got[0].Type)
	assert.Equal(t, "hello there", got[0].Transcript)
	assert.Equal(t, EventItemAdded, got[1].Type)
	assert.Equal(t, RoleUser, got[1].Item.Role)
	assert.Equal(t, EventClosed, got[2].Type)
	assert.Equal(t, "room ended", got[2].Reason)
}

func TestWSSessionTurnDetectorFallback(t *testing.T) {
	url := fakeGateway(t, func(ctx context.Context, c *websocket.Conn) {
		first := readFrame(ctx, t, c)
		assert.Equal(t, DefaultTurnDetector, first.Components.TurnDetector)
		writeFrame(ctx, t, c, frame{Type: "error", Component: "turn_detector", Error: "model load failed"})

		second := readFrame(ctx, t, c)
		assert.Empty(t, second.Components.TurnDetector, "retry drops the optional detector")
		writeFrame(ctx, t, c, frame{Type: "started"})
		writeFrame(ctx, t, c, frame{Type: "closed"})
	})

	s := NewWSSession(WSConfig{URL: url, RoomName: "r"},
		NewComponents(ComponentConfig{}, ""), zap.NewNop())
	require.NoError(t, s.Start(context.Background()))
	s.Close()
}

func TestWSSessionFatalStartError(t *testing.T) {
	url := fakeGateway(t, func(ctx context.Context, c *websocket.Conn) {
		readFrame(ctx, t, c)
		writeFrame(ctx, t, c, frame{Type: "error", Component: "stt", Error: "bad credentials"})
	})

	s := NewWSSession(WSConfig{URL: url, RoomName: "r"},
		NewComponents(ComponentConfig{}, ""), zap.NewNop())
	err := s.Start(context.Background())
	require.Error(t, err)
	assert.Equal(t, types.ErrPipelineInit, types.CodeOf(err))
	assert.True(t, types.IsFatal(err))
}

func TestWSSessionGenerateReplyAndInject(t *testing.T) {
	frames := make(chan frame, 4)
	url := fakeGateway(t, func(ctx context.Context, c *websocket.Conn) {
		readFrame(ctx, t, c)
		writeFrame(ctx, t, c, frame{Type: "started"})
		for i := 0; i < 2; i++ {
			frames <- readFrame(ctx, t, c)
		}
		writeFrame(ctx, t, c, frame{Type: "closed"})
	})

	s := NewWSSession(WSConfig{URL: url, RoomName: "r"},
		NewComponents(ComponentConfig{}, ""), zap.NewNop())
	require.NoError(t, s.Start(context.Background()))
	defer s.Close()

	require.NoError(t, s.GenerateReply(context.Background(), "Introduce yourself as Ava and warmly greet the user.", false))
	require.NoError(t, s.InjectContext(context.Background(), "Relevant: shipping takes 3 days."))

	greet := <-frames
	assert.Equal(t, "generate_reply", greet.Type)
	assert.Contains(t, greet.Instructions, "Introduce yourself as Ava")
	require.NotNil(t, greet.Interruptible)
	assert.False(t, *greet.Interruptible)

	inject := <-frames
	assert.Equal(t, "inject_context", inject.Type)
	assert.Contains(t, inject.Context, "shipping takes 3 days")
}

func TestWSSessionDialFailure(t *testing.T) {
	s := NewWSSession(WSConfig{URL: "ws://127.0.0.1:1", RoomName: "r", StartTimeout: time.Second},
		NewComponents(ComponentConfig{}, ""), zap.NewNop())
	err := s.Start(context.Background())
	require.Error(t, err)
	assert.Equal(t, types.ErrPipelineInit, types.CodeOf(err))
}

func TestWSSessionCloseIdempotent(t *testing.T) {
	url := fakeGateway(t, func(ctx context.Context, c *websocket.Conn) {
		readFrame(ctx, t, c)
		writeFrame(ctx, t, c, frame{Type: "started"})
		<-ctx.Done()
	})

	s := NewWSSession(WSConfig{URL: url, RoomName: "r"},
		NewComponents(ComponentConfig{}, ""), zap.NewNop())
	require.NoError(t, s.Start(context.Background()))
	require.NoError(t, s.Close())
	assert.NotPanics(t, func() { s.Close() })
}

func TestWSSessionInjectEmptyNoop(t *testing.T) {
	s := NewWSSession(WSConfig{URL: "ws://unused", RoomName: "r"},
		NewComponents(ComponentConfig{}, ""), zap.NewNop())
	// no connection: empty inject must still be a no-op
	assert.NoError(t, s.InjectContext(context.Background(), ""))
}
