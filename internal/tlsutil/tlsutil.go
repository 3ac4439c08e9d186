// Package tlsutil 统一出站连接的 TLS 基线。语音链路上的每个 HTTP 客户端
// （会话网关、对话服务、知识库、LLM、告警上报）都从这里取加固配置，
// 避免各处手写 http.Client 漂移出不同的安全姿态。
package tlsutil

import (
	"crypto/tls"
	"net"
	"net/http"
	"time"
)

// 连接参数。所有出站客户端共用，单独调整请改这里而不是调用点。
const (
	dialTimeout      = 30 * time.Second
	dialKeepAlive    = 30 * time.Second
	handshakeTimeout = 10 * time.Second
	idleConnTimeout  = 90 * time.Second
	maxIdleConns     = 100
)

// DefaultTLSConfig returns the shared client TLS config: TLS 1.2 as the
// floor, AEAD suites only. TLS 1.3 negotiates its own suite set and is
// unaffected by the list.
func DefaultTLSConfig() *tls.Config {
	return &tls.Config{
		MinVersion: tls.VersionTLS12,
		CipherSuites: []uint16{
			tls.TLS_ECDHE_ECDSA_WITH_AES_256_GCM_SHA384,
			tls.TLS_ECDHE_RSA_WITH_AES_256_GCM_SHA384,
			tls.TLS_ECDHE_ECDSA_WITH_AES_128_GCM_SHA256,
			tls.TLS_ECDHE_RSA_WITH_AES_128_GCM_SHA256,
			tls.TLS_ECDHE_ECDSA_WITH_CHACHA20_POLY1305,
			tls.TLS_ECDHE_RSA_WITH_CHACHA20_POLY1305,
		},
	}
}

// SecureHTTPClient 构造带加固 TLS 的 HTTP 客户端，替代裸的
// &http.Client{Timeout: timeout}。每次调用返回独立的 Transport，
// 调用方可按服务各自持有连接池。
func SecureHTTPClient(timeout time.Duration) *http.Client {
	return &http.Client{
		Timeout: timeout,
		Transport: &http.Transport{
			TLSClientConfig: DefaultTLSConfig(),
			DialContext: (&net.Dialer{
				Timeout:   dialTimeout,
				KeepAlive: dialKeepAlive,
			}).DialContext,
			ForceAttemptHTTP2:     true,
			MaxIdleConns:          maxIdleConns,
			IdleConnTimeout:       idleConnTimeout,
			TLSHandshakeTimeout:   handshakeTimeout,
			ExpectContinueTimeout: 1 * time.Second,
		},
	}
}
