package room

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/BaSui01/voiceflow/internal/tlsutil"
	"github.com/BaSui01/voiceflow/types"
	"go.uber.org/zap"
)

// ===== 📦 房间管理客户端 =====

// Config 媒体服务配置
type Config struct {
	// URL 媒体服务 REST 地址
	URL string

	// APIKey / APISecret 令牌签发密钥对
	APIKey    string
	APISecret string

	// Timeout 单次请求上限，零值时 5s
	Timeout time.Duration
}

// Room is the subset of the media server's room record this service reads.
type Room struct {
	Name         string `json:"name"`
	SID          string `json:"sid,omitempty"`
	Metadata     string `json:"metadata,omitempty"`
	NumUsers     int    `json:"num_participants,omitempty"`
	CreatedAt    int64  `json:"creation_time,omitempty"`
	EmptyTimeout int    `json:"empty_timeout,omitempty"`
}

// Client is the media server REST client. Each call mints a fresh admin
// token; the server rejects expired ones so no caching is done.
type Client struct {
	cfg    Config
	minter *TokenMinter
	client *http.Client
	logger *zap.Logger
}

// NewClient 创建客户端
func NewClient(cfg Config, logger *zap.Logger) *Client {
	if cfg.Timeout == 0 {
		cfg.Timeout = 5 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		cfg:    cfg,
		minter: NewTokenMinter(cfg.APIKey, cfg.APISecret),
		client: tlsutil.SecureHTTPClient(cfg.Timeout),
		logger: logger.With(zap.String("component", "room_client")),
	}
}

// Minter exposes the token minter for join-token issuance.
func (c *Client) Minter() *TokenMinter { return c.minter }

// CreateRoom creates roomName with the given metadata string. Creating an
// existing room is not an error on the media server; it returns the room.
func (c *Client) CreateRoom(ctx context.Context, roomName, metadata string) (*Room, error) {
	var out Room
	err := c.do(ctx, "/twirp/livekit.RoomService/CreateRoom", map[string]any{
		"name":     roomName,
		"metadata": metadata,
	}, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// UpdateRoomMetadata replaces the metadata of an existing room.
func (c *Client) UpdateRoomMetadata(ctx context.Context, roomName, metadata string) (*Room, error) {
	var out Room
	err := c.do(ctx, "/twirp/livekit.RoomService/UpdateRoomMetadata", map[string]any{
		"room":     roomName,
		"metadata": metadata,
	}, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// ListRooms returns the rooms matching names, or all rooms when names is
// empty. Used by identity resolution to read room metadata the job did not
// carry.
func (c *Client) ListRooms(ctx context.Context, names []string) ([]Room, error) {
	body := map[string]any{}
	if len(names) > 0 {
		body["names"] = names
	}
	var out struct {
		Rooms []Room `json:"rooms"`
	}
	if err := c.do(ctx, "/twirp/livekit.RoomService/ListRooms", body, &out); err != nil {
		return nil, err
	}
	return out.Rooms, nil
}

// RoomMetadata returns the metadata string of roomName, or "" when the room
// is unknown.
func (c *Client) RoomMetadata(ctx context.Context, roomName string) (string, error) {
	rooms, err := c.ListRooms(ctx, []string{roomName})
	if err != nil {
		return "", err
	}
	for _, r := range rooms {
		if r.Name == roomName {
			return r.Metadata, nil
		}
	}
	return "", nil
}

func (c *Client) do(ctx context.Context, path string, body, out any) error {
	if c.cfg.URL == "" {
		return types.NewError(types.ErrInvalidRequest, "media server url not configured")
	}

	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	token, err := c.minter.MintAdminToken()
	if err != nil {
		return types.NewError(types.ErrInternalError, "mint admin token").WithCause(err)
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	url := strings.TrimRight(c.cfg.URL, "/") + path
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.client.Do(req)
	if err != nil {
		return types.NewError(types.ErrTransientIO, "room service request failed").
			WithCause(err).WithRetryable(true)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return types.NewError(types.ErrUpstreamError,
			fmt.Sprintf("room service returned %d", resp.StatusCode)).
			WithHTTPStatus(resp.StatusCode).WithRetryable(resp.StatusCode >= 500)
	}
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return types.NewError(types.ErrUpstreamError, "decode room response").WithCause(err)
		}
	}
	return nil
}
