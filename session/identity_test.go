package session

import (
	"context"
	"errors"
	"testing"

	"github.com/BaSui01/voiceflow/types"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

type fakeRoomLister struct {
	metadata string
	err      error
	calls    int
}

func (f *fakeRoomLister) RoomMetadata(context.Context, string) (string, error) {
	f.calls++
	return f.metadata, f.err
}

func TestResolveJobMetadataWins(t *testing.T) {
	call := ResolveCallContext(context.Background(), "conversation:cv_room",
		JobMetadataResolver(`{"agentId":"ag_job","conversationId":"cv_job","companyId":"co_1","userId":"u_1"}`, zap.NewNop()),
		RoomMetadataResolver(`{"agentId":"ag_room"}`, "conversation:cv_room", nil, zap.NewNop()),
		RoomNameResolver("conversation:cv_room"),
	)
	assert.Equal(t, "ag_job", call.AgentID)
	assert.Equal(t, "cv_job", call.ConversationID)
	assert.Equal(t, "co_1", call.CompanyID)
	assert.Equal(t, "u_1", call.UserID)
}

func TestResolvePerFieldFallback(t *testing.T) {
	// job metadata knows the agent, room metadata fills in the rest
	call := ResolveCallContext(context.Background(), "room_x",
		JobMetadataResolver(`{"agentId":"ag_1"}`, zap.NewNop()),
		RoomMetadataResolver(`{"conversationId":"cv_2","userId":"u_2"}`, "room_x", nil, zap.NewNop()),
		RoomNameResolver("room_x"),
	)
	assert.Equal(t, "ag_1", call.AgentID)
	assert.Equal(t, "cv_2", call.ConversationID)
	assert.Equal(t, "u_2", call.UserID)
}

func TestResolveRoomServiceLookup(t *testing.T) {
	rooms := &fakeRoomLister{metadata: `{"agentId":"ag_remote","conversationId":"cv_remote"}`}
	call := ResolveCallContext(context.Background(), "room_y",
		JobMetadataResolver("", zap.NewNop()),
		RoomMetadataResolver("", "room_y", rooms, zap.NewNop()),
		RoomNameResolver("room_y"),
	)
	assert.Equal(t, 1, rooms.calls)
	assert.Equal(t, "ag_remote", call.AgentID)
	assert.Equal(t, "cv_remote", call.ConversationID)
}

func TestResolveRoomNamePrefix(t *testing.T) {
	call := ResolveCallContext(context.Background(), "conversation:cv_77",
		JobMetadataResolver("", zap.NewNop()),
		RoomNameResolver("conversation:cv_77"),
	)
	assert.Equal(t, types.FallbackAgentID, call.AgentID)
	assert.Equal(t, "cv_77", call.ConversationID)
}

func TestResolveMalformedMetadataNeverAborts(t *testing.T) {
	rooms := &fakeRoomLister{err: errors.New("service down")}
	call := ResolveCallContext(context.Background(), "conversation:cv_9",
		JobMetadataResolver(`{not json`, zap.NewNop()),
		RoomMetadataResolver(`[42]`, "conversation:cv_9", rooms, zap.NewNop()),
		RoomNameResolver("conversation:cv_9"),
	)
	assert.Equal(t, types.FallbackAgentID, call.AgentID)
	assert.Equal(t, "cv_9", call.ConversationID, "name convention still contributes")
}

func TestResolveNothingUsable(t *testing.T) {
	call := ResolveCallContext(context.Background(), "adhoc_room",
		JobMetadataResolver("", zap.NewNop()),
		RoomNameResolver("adhoc_room"),
	)
	assert.Equal(t, types.FallbackAgentID, call.AgentID)
	assert.Empty(t, call.ConversationID)
	assert.False(t, call.KBEnabled())
	assert.False(t, call.PersistenceEnabled())
}
