package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/BaSui01/voiceflow/types"
	"github.com/coder/websocket"
	"go.uber.org/zap"
)

// ===== 📦 WebSocket 流水线会话 =====

// WSConfig 网关连接配置
type WSConfig struct {
	// URL 媒体网关的 WebSocket 地址（ws:// 或 wss://）
	URL string

	// Token 房间接入令牌
	Token string

	// RoomName 目标房间
	RoomName string

	// Instructions 会话级系统提示词，随 start 帧下发
	Instructions string

	// StartTimeout 启动握手上限，零值时 10s
	StartTimeout time.Duration
}

// frame is the JSON envelope both directions speak.
type frame struct {
	Type          string      `json:"type"`
	Room          string      `json:"room,omitempty"`
	Components    *Components `json:"components,omitempty"`
	Instructions  string      `json:"instructions,omitempty"`
	Interruptible *bool       `json:"allow_interruptions,omitempty"`
	Context       string      `json:"context,omitempty"`
	Transcript    string      `json:"transcript,omitempty"`
	Item          *Item       `json:"item,omitempty"`
	State         string      `json:"state,omitempty"`
	Reason        string      `json:"reason,omitempty"`
	Error         string      `json:"error,omitempty"`
	Component     string      `json:"component,omitempty"`
}

// WSSession drives the media gateway pipeline over one websocket. Writes are
// mutex-guarded; the read loop fans frames into the Events channel.
type WSSession struct {
	cfg        WSConfig
	components Components
	logger     *zap.Logger

	mu     sync.Mutex
	conn   *websocket.Conn
	events chan Event

	closeOnce sync.Once
	closed    chan struct{}
}

var _ Session = (*WSSession)(nil)

// NewWSSession 创建网关会话
func NewWSSession(cfg WSConfig, components Components, logger *zap.Logger) *WSSession {
	if cfg.StartTimeout == 0 {
		cfg.StartTimeout = 10 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &WSSession{
		cfg:        cfg,
		components: components,
		logger:     logger.With(zap.String("component", "ws_session")),
		events:     make(chan Event, 32),
		closed:     make(chan struct{}),
	}
}

// Start dials the gateway and performs the start handshake. A gateway
// rejection naming the turn detector is retried once without it; every other
// failure is fatal to the call.
func (s *WSSession) Start(ctx context.Context) error {
	dialCtx, cancel := context.WithTimeout(ctx, s.cfg.StartTimeout)
	defer cancel()

	header := map[string][]string{}
	if s.cfg.Token != "" {
		header["Authorization"] = []string{"Bearer " + s.cfg.Token}
	}
	conn, _, err := websocket.Dial(dialCtx, s.cfg.URL, &websocket.DialOptions{
		HTTPHeader: header,
	})
	if err != nil {
		return types.NewError(types.ErrPipelineInit, "gateway dial failed").WithCause(err)
	}
	s.mu.Lock()
	s.conn = conn
	s.mu.Unlock()

	if err := s.handshake(dialCtx); err != nil {
		_ = conn.Close(websocket.StatusInternalError, "start failed")
		return err
	}

	go s.readLoop(ctx)
	return nil
}

func (s *WSSession) handshake(ctx context.Context) error {
	start := frame{
		Type:         "start",
		Room:         s.cfg.RoomName,
		Components:   &s.components,
		Instructions: s.cfg.Instructions,
	}
	if err := s.write(ctx, start); err != nil {
		return types.NewError(types.ErrPipelineInit, "send start frame").WithCause(err)
	}

	resp, err := s.read(ctx)
	if err != nil {
		return types.NewError(types.ErrPipelineInit, "read start ack").WithCause(err)
	}

	// 回合检测器是可选组件：初始化失败退化为纯 VAD
	if resp.Type == "error" && strings.Contains(resp.Component, "turn_detector") {
		s.components = s.components.WithoutTurnDetector(s.logger)
		return s.handshake(ctx)
	}
	if resp.Type == "error" {
		return types.NewError(types.ErrPipelineInit,
			fmt.Sprintf("gateway rejected start: %s", resp.Error))
	}
	if resp.Type != "started" {
		return types.NewError(types.ErrPipelineInit,
			fmt.Sprintf("unexpected start ack %q", resp.Type))
	}
	return nil
}

// Events implements Session.
func (s *WSSession) Events() <-chan Event { return s.events }

// GenerateReply implements Session.
func (s *WSSession) GenerateReply(ctx context.Context, instructions string, interruptible bool) error {
	return s.write(ctx, frame{
		Type:          "generate_reply",
		Instructions:  instructions,
		Interruptible: &interruptible,
	})
}

// InjectContext implements Session.
func (s *WSSession) InjectContext(ctx context.Context, text string) error {
	if text == "" {
		return nil
	}
	return s.write(ctx, frame{Type: "inject_context", Context: text})
}

// Close implements Session. Idempotent.
func (s *WSSession) Close() error {
	var err error
	s.closeOnce.Do(func() {
		close(s.closed)
		s.mu.Lock()
		conn := s.conn
		s.mu.Unlock()
		if conn != nil {
			err = conn.Close(websocket.StatusNormalClosure, "session closed")
		}
	})
	return err
}

// readLoop pumps gateway frames into the events channel until the connection
// dies, then emits EventClosed and closes the channel.
func (s *WSSession) readLoop(ctx context.Context) {
	reason := "connection closed"
	defer func() {
		select {
		case s.events <- Event{Type: EventClosed, Reason: reason}:
		default:
		}
		close(s.events)
	}()

	for {
		f, err := s.read(ctx)
		if err != nil {
			select {
			case <-s.closed:
				reason = "closed by agent"
			default:
				s.logger.Debug("gateway read ended", zap.Error(err))
			}
			return
		}

		switch f.Type {
		case "turn_completed":
			s.emit(Event{Type: EventTurnCompleted, Transcript: f.Transcript})
		case "item_added":
			s.emit(Event{Type: EventItemAdded, Item: f.Item})
		case "state_changed":
			s.emit(Event{Type: EventStateChanged, State: f.State})
		case "closed":
			reason = f.Reason
			return
		default:
			s.logger.Debug("ignoring unknown gateway frame", zap.String("type", f.Type))
		}
	}
}

func (s *WSSession) emit(ev Event) {
	select {
	case s.events <- ev:
	case <-s.closed:
	}
}

func (s *WSSession) write(ctx context.Context, f frame) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn == nil {
		return fmt.Errorf("session not started")
	}
	data, err := json.Marshal(f)
	if err != nil {
		return fmt.Errorf("marshal frame: %w", err)
	}
	return s.conn.Write(ctx, websocket.MessageText, data)
}

func (s *WSSession) read(ctx context.Context) (*frame, error) {
	s.mu.Lock()
	conn := s.conn
	s.mu.Unlock()
	if conn == nil {
		return nil, fmt.Errorf("session not started")
	}
	_, data, err := conn.Read(ctx)
	if err != nil {
		return nil, err
	}
	var f frame
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("unmarshal frame: %w", err)
	}
	return &f, nil
}
