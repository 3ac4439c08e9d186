// Package room talks to the media server: REST room management and HMAC
// access-token minting for participants joining a room.
package room

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// ===== 📦 接入令牌 =====

// VideoGrant mirrors the media server's per-room permission claim.
type VideoGrant struct {
	Room       string `json:"room,omitempty"`
	RoomJoin   bool   `json:"roomJoin,omitempty"`
	RoomCreate bool   `json:"roomCreate,omitempty"`
	RoomAdmin  bool   `json:"roomAdmin,omitempty"`
	CanPublish bool   `json:"canPublish,omitempty"`
	CanSub     bool   `json:"canSubscribe,omitempty"`
}

type accessClaims struct {
	jwt.RegisteredClaims
	Video    VideoGrant `json:"video"`
	Metadata string     `json:"metadata,omitempty"`
}

// TokenMinter signs access tokens with the media server's API key pair.
type TokenMinter struct {
	apiKey    string
	apiSecret string

	// TTL 令牌有效期，零值时 10 分钟
	TTL time.Duration
}

// NewTokenMinter 创建签发器
func NewTokenMinter(apiKey, apiSecret string) *TokenMinter {
	return &TokenMinter{apiKey: apiKey, apiSecret: apiSecret, TTL: 10 * time.Minute}
}

// MintJoinToken returns a signed join token for identity in roomName.
// metadata rides along as an opaque participant claim.
func (m *TokenMinter) MintJoinToken(roomName, identity, metadata string) (string, error) {
	now := time.Now()
	claims := accessClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    m.apiKey,
			Subject:   identity,
			ID:        uuid.NewString(),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(m.TTL)),
		},
		Video: VideoGrant{
			Room:       roomName,
			RoomJoin:   true,
			CanPublish: true,
			CanSub:     true,
		},
		Metadata: metadata,
	}
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return tok.SignedString([]byte(m.apiSecret))
}

// MintAdminToken returns a signed token allowed to create and administer
// rooms, used for server-to-server REST calls.
func (m *TokenMinter) MintAdminToken() (string, error) {
	now := time.Now()
	claims := accessClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    m.apiKey,
			Subject:   m.apiKey,
			ID:        uuid.NewString(),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(m.TTL)),
		},
		Video: VideoGrant{RoomCreate: true, RoomAdmin: true},
	}
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return tok.SignedString([]byte(m.apiSecret))
}
