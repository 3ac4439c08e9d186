package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/BaSui01/voiceflow/internal/cache"
	"github.com/BaSui01/voiceflow/internal/metrics"
	"github.com/BaSui01/voiceflow/room"
	"github.com/BaSui01/voiceflow/types"
	"go.uber.org/zap"
)

// =============================================================================
// 📞 Agent 调度 Handler
// =============================================================================

// RoomManager is the slice of the room client dispatch needs.
type RoomManager interface {
	CreateRoom(ctx context.Context, roomName, metadata string) (*room.Room, error)
	UpdateRoomMetadata(ctx context.Context, roomName, metadata string) (*room.Room, error)
}

// DispatchRequest 调度请求
type DispatchRequest struct {
	ConversationID string `json:"conversationId"`
	AgentID        string `json:"agentId"`
	UserID         string `json:"userId"`
	RoomName       string `json:"roomName"`
	Token          string `json:"token"`
}

// DispatchResponse 调度响应
type DispatchResponse struct {
	AgentJobID string `json:"agentJobId"`
	RoomName   string `json:"roomName"`
	Status     string `json:"status"`
}

// roomMetadata is what the agent discovers when it joins.
type roomMetadata struct {
	AgentID        string `json:"agentId"`
	ConversationID string `json:"conversationId"`
	UserID         string `json:"userId"`
}

// SessionLauncher starts the agent side of a call once the room carries its
// identity metadata. metadata is the JSON the room was stamped with.
type SessionLauncher func(roomName, metadata string)

// DispatchHandler accepts dispatch requests, deduplicates by room, prepares
// the room as a background task, and answers immediately with a job id.
type DispatchHandler struct {
	rooms     RoomManager
	guard     *cache.Manager
	collector *metrics.Collector
	logger    *zap.Logger
	launcher  SessionLauncher

	// setupTimeout 后台房间准备的总预算
	setupTimeout time.Duration
}

// NewDispatchHandler 创建调度处理器
func NewDispatchHandler(rooms RoomManager, guard *cache.Manager, collector *metrics.Collector, logger *zap.Logger) *DispatchHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DispatchHandler{
		rooms:        rooms,
		guard:        guard,
		collector:    collector,
		logger:       logger.With(zap.String("component", "dispatch_handler")),
		setupTimeout: 10 * time.Second,
	}
}

// SetLauncher wires the session launcher invoked after room setup. Must be
// called before the handler starts serving.
func (h *DispatchHandler) SetLauncher(fn SessionLauncher) {
	h.launcher = fn
}

// Dispatch handles POST /api/agents/dispatch.
func (h *DispatchHandler) Dispatch(w http.ResponseWriter, r *http.Request) {
	var req DispatchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteErrorMessage(w, http.StatusBadRequest, types.ErrInvalidRequest,
			"invalid dispatch payload", h.logger)
		return
	}
	if req.ConversationID == "" || req.AgentID == "" {
		WriteErrorMessage(w, http.StatusBadRequest, types.ErrInvalidRequest,
			"conversationId and agentId are required", h.logger)
		return
	}
	roomName := req.RoomName
	if roomName == "" {
		roomName = "conversation:" + req.ConversationID
	}

	jobID := fmt.Sprintf("agent-%s-%s", req.AgentID, req.ConversationID)

	if h.guard != nil {
		acquired, err := h.guard.AcquireDispatch(r.Context(), roomName, jobID)
		if err != nil {
			h.logger.Warn("dispatch guard unavailable, proceeding without dedup", zap.Error(err))
		} else if !acquired {
			if h.collector != nil {
				h.collector.RecordDispatch("duplicate")
			}
			WriteSuccess(w, DispatchResponse{
				AgentJobID: jobID,
				RoomName:   roomName,
				Status:     "already_dispatched",
			})
			return
		}
	}

	// 房间准备不阻塞响应
	go h.setupRoom(roomName, req)

	if h.collector != nil {
		h.collector.RecordDispatch("accepted")
	}
	h.logger.Info("agent dispatched",
		zap.String("agent_job_id", jobID),
		zap.String("room", roomName),
		zap.String("agent_id", req.AgentID),
		zap.String("conversation_id", req.ConversationID))

	WriteSuccess(w, DispatchResponse{
		AgentJobID: jobID,
		RoomName:   roomName,
		Status:     "dispatched",
	})
}

// setupRoom creates the room carrying the identity metadata; when creation
// fails (room already live) it falls back to a metadata update.
func (h *DispatchHandler) setupRoom(roomName string, req DispatchRequest) {
	ctx, cancel := context.WithTimeout(context.Background(), h.setupTimeout)
	defer cancel()

	meta, err := json.Marshal(roomMetadata{
		AgentID:        req.AgentID,
		ConversationID: req.ConversationID,
		UserID:         req.UserID,
	})
	if err != nil {
		h.logger.Error("marshal room metadata", zap.Error(err))
		return
	}

	createCtx, createCancel := context.WithTimeout(ctx, 5*time.Second)
	_, err = h.rooms.CreateRoom(createCtx, roomName, string(meta))
	createCancel()
	if err != nil {
		h.logger.Debug("room create failed, updating metadata instead",
			zap.String("room", roomName), zap.Error(err))

		updateCtx, updateCancel := context.WithTimeout(ctx, 3*time.Second)
		_, err = h.rooms.UpdateRoomMetadata(updateCtx, roomName, string(meta))
		updateCancel()
		if err != nil {
			h.logger.Warn("room setup failed",
				zap.String("room", roomName), zap.Error(err))
		}
	}

	// 即便房间服务暂不可用也拉起会话，元数据随任务本身传递
	if h.launcher != nil {
		h.launcher(roomName, string(meta))
	}
}
