// Package session runs one voice call end to end: identity resolution,
// persona load, pipeline lifecycle, per-turn knowledge injection, transcript
// persistence, contact extraction, and graceful teardown.
package session

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/BaSui01/voiceflow/types"
	"go.uber.org/zap"
)

// ===== 📦 通话身份解析 =====

// 房间名约定前缀，仅用于推导 conversation_id
const roomNamePrefix = "conversation:"

// identityFields is one resolver's partial contribution. Empty strings mean
// "this source doesn't know".
type identityFields struct {
	AgentID        string
	ConversationID string
	CompanyID      string
	UserID         string
}

// Resolver supplies identity fields from one source. Resolvers never fail
// the call: a source that cannot contribute returns the zero value.
type Resolver func(ctx context.Context) identityFields

// metadataPayload is the JSON shape carried in job and room metadata.
type metadataPayload struct {
	AgentID        string `json:"agentId"`
	ConversationID string `json:"conversationId"`
	CompanyID      string `json:"companyId"`
	UserID         string `json:"userId"`
}

// parseMetadata decodes a metadata JSON string. Malformed input is logged
// and treated as absent.
func parseMetadata(raw string, source string, logger *zap.Logger) identityFields {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return identityFields{}
	}
	var p metadataPayload
	if err := json.Unmarshal([]byte(raw), &p); err != nil {
		logger.Warn("malformed metadata, skipping source",
			zap.String("source", source), zap.Error(err))
		return identityFields{}
	}
	return identityFields{
		AgentID:        p.AgentID,
		ConversationID: p.ConversationID,
		CompanyID:      p.CompanyID,
		UserID:         p.UserID,
	}
}

// JobMetadataResolver reads the dispatch job's metadata string.
func JobMetadataResolver(jobMetadata string, logger *zap.Logger) Resolver {
	return func(context.Context) identityFields {
		return parseMetadata(jobMetadata, "job_metadata", logger)
	}
}

// roomLister is the slice of the room client identity resolution needs.
type roomLister interface {
	RoomMetadata(ctx context.Context, roomName string) (string, error)
}

// RoomMetadataResolver reads the room's metadata: the locally known value
// when present, otherwise one bounded lookup against the room service.
func RoomMetadataResolver(localMetadata, roomName string, rooms roomLister, logger *zap.Logger) Resolver {
	return func(ctx context.Context) identityFields {
		if strings.TrimSpace(localMetadata) != "" {
			return parseMetadata(localMetadata, "room_metadata", logger)
		}
		if rooms == nil || roomName == "" {
			return identityFields{}
		}
		meta, err := rooms.RoomMetadata(ctx, roomName)
		if err != nil {
			logger.Warn("room metadata lookup failed",
				zap.String("room", roomName), zap.Error(err))
			return identityFields{}
		}
		return parseMetadata(meta, "room_service", logger)
	}
}

// RoomNameResolver derives conversation_id from the "conversation:<id>" room
// naming convention. It contributes no other fields.
func RoomNameResolver(roomName string) Resolver {
	return func(context.Context) identityFields {
		if id, ok := strings.CutPrefix(roomName, roomNamePrefix); ok && id != "" {
			return identityFields{ConversationID: id}
		}
		return identityFields{}
	}
}

// ResolveCallContext runs the resolver chain in order; the first non-empty
// value wins per field. Resolution always succeeds: with no usable source
// the call proceeds under the fallback persona.
func ResolveCallContext(ctx context.Context, roomName string, resolvers ...Resolver) *types.CallContext {
	call := &types.CallContext{RoomName: roomName}
	for _, resolve := range resolvers {
		f := resolve(ctx)
		if call.AgentID == "" {
			call.AgentID = f.AgentID
		}
		if call.ConversationID == "" {
			call.ConversationID = f.ConversationID
		}
		if call.CompanyID == "" {
			call.CompanyID = f.CompanyID
		}
		if call.UserID == "" {
			call.UserID = f.UserID
		}
		if call.AgentID != "" && call.ConversationID != "" &&
			call.CompanyID != "" && call.UserID != "" {
			break
		}
	}
	if call.AgentID == "" {
		call.AgentID = types.FallbackAgentID
	}
	return call
}
