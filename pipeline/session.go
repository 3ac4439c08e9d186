// Package pipeline fronts the realtime media pipeline: the STT → LLM → TTS
// loop runs in the media gateway, and this package drives it over a typed
// event interface.
package pipeline

import (
	"context"
)

// ===== 📦 会话事件模型 =====

// EventType 流水线事件类型
type EventType string

const (
	// EventTurnCompleted fires when a user turn is finalized, carrying the
	// verbatim transcript of the turn.
	EventTurnCompleted EventType = "turn_completed"

	// EventItemAdded fires when a conversation item (user or assistant) is
	// committed to the pipeline's chat history.
	EventItemAdded EventType = "item_added"

	// EventStateChanged fires on agent state transitions (listening,
	// thinking, speaking).
	EventStateChanged EventType = "state_changed"

	// EventClosed fires exactly once when the pipeline shuts down, normally
	// or not. No events follow it.
	EventClosed EventType = "closed"
)

// ItemRole 会话条目归属方
type ItemRole string

const (
	RoleUser      ItemRole = "user"
	RoleAssistant ItemRole = "assistant"
)

// Item is one committed conversation entry.
type Item struct {
	Role ItemRole `json:"role"`
	Text string   `json:"text"`
}

// Event is the union of everything the pipeline reports. Which fields are
// set depends on Type.
type Event struct {
	Type EventType `json:"type"`

	// Transcript 用户回合的完整文本（turn_completed）
	Transcript string `json:"transcript,omitempty"`

	// Item 提交的会话条目（item_added）
	Item *Item `json:"item,omitempty"`

	// State 代理状态（state_changed）
	State string `json:"state,omitempty"`

	// Reason 关闭原因（closed）
	Reason string `json:"reason,omitempty"`
}

// Session is one live pipeline attachment to a room. Implementations must
// close the Events channel after emitting EventClosed.
type Session interface {
	// Start attaches to the room and begins the media loop.
	Start(ctx context.Context) error

	// Events returns the event stream. The channel is closed on teardown.
	Events() <-chan Event

	// GenerateReply asks the agent to speak. instructions steer the single
	// reply; interruptible=false lets it finish even if the user talks over
	// it (used for the opening greeting).
	GenerateReply(ctx context.Context, instructions string, interruptible bool) error

	// InjectContext adds turn-scoped context ahead of the next reply. It is
	// not persisted into the chat history.
	InjectContext(ctx context.Context, text string) error

	// Close tears the pipeline down. Safe to call more than once.
	Close() error
}
