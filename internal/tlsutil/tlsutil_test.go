package tlsutil

import (
	"crypto/tls"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultTLSConfig(t *testing.T) {
	cfg := DefaultTLSConfig()
	require.NotNil(t, cfg)
	assert.Equal(t, uint16(tls.VersionTLS12), cfg.MinVersion)
	assert.NotEmpty(t, cfg.CipherSuites)

	// 禁止 CBC 套件
	for _, cs := range cfg.CipherSuites {
		assert.NotEqual(t, tls.TLS_RSA_WITH_AES_128_CBC_SHA, cs)
	}
}

func TestSecureHTTPClient(t *testing.T) {
	c := SecureHTTPClient(3 * time.Second)
	require.NotNil(t, c)
	assert.Equal(t, 3*time.Second, c.Timeout)
	assert.NotNil(t, c.Transport)
}
