package ldap

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() zerolog.Logger {
	return zerolog.Nop()
}

func TestDefaultConfigIsSecure(t *testing.T) {
	cfg := DefaultConfig()

	assert.True(t, cfg.UseTLS)
	assert.False(t, cfg.SkipTLS)
	require.NotNil(t, cfg.TLSConfig)
	assert.False(t, cfg.TLSConfig.InsecureSkipVerify)

	assert.Equal(t, 10, cfg.MaxConnections)
	assert.Equal(t, 30*time.Second, cfg.Timeout)
	assert.Equal(t, 5*time.Minute, cfg.MaxIdleTime)
	assert.Equal(t, 3, cfg.MaxRetries)
	assert.Greater(t, cfg.BackoffFactor, 1.0)
}

func TestValidatePoolConfig(t *testing.T) {
	valid := func() *ConnectionConfig { return DefaultConfig() }

	tests := []struct {
		name    string
		mutate  func(*ConnectionConfig)
		wantErr string
	}{
		{
			name:   "valid",
			mutate: func(*ConnectionConfig) {},
		},
		{
			name:    "zero max connections",
			mutate:  func(c *ConnectionConfig) { c.MaxConnections = 0 },
			wantErr: "max connections",
		},
		{
			name:    "too many connections",
			mutate:  func(c *ConnectionConfig) { c.MaxConnections = maxPoolSize + 1 },
			wantErr: "max connections",
		},
		{
			name:    "zero timeout",
			mutate:  func(c *ConnectionConfig) { c.Timeout = 0 },
			wantErr: "timeout",
		},
		{
			name:    "zero idle time",
			mutate:  func(c *ConnectionConfig) { c.MaxIdleTime = 0 },
			wantErr: "idle time",
		},
		{
			name:    "negative retries",
			mutate:  func(c *ConnectionConfig) { c.MaxRetries = -1 },
			wantErr: "retries",
		},
		{
			name:    "backoff factor too small",
			mutate:  func(c *ConnectionConfig) { c.BackoffFactor = 1.0 },
			wantErr: "backoff factor",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			err := validatePoolConfig(cfg)
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			assert.ErrorContains(t, err, tt.wantErr)
		})
	}
}

func TestResolveServers(t *testing.T) {
	t.Run("explicit urls", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.URLs = []string{"ldaps://dc1.contoso.com", "ldap://dc2.contoso.com:389"}

		servers, err := resolveServers(context.Background(), cfg)
		require.NoError(t, err)
		require.Len(t, servers, 2)
		assert.Equal(t, "dc1.contoso.com", servers[0].Host)
		assert.True(t, servers[0].UseTLS)
		assert.Equal(t, "dc2.contoso.com", servers[1].Host)
	})

	t.Run("invalid url", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.URLs = []string{"https://dc1.contoso.com"}

		_, err := resolveServers(context.Background(), cfg)
		assert.Error(t, err)
	})

	t.Run("nothing configured", func(t *testing.T) {
		_, err := resolveServers(context.Background(), DefaultConfig())
		assert.ErrorContains(t, err, "either a domain or LDAP URLs")
	})
}

func TestNewPoolLifecycle(t *testing.T) {
	cfg := DefaultConfig()
	cfg.URLs = []string{"ldaps://dc1.contoso.com"}

	pool, err := NewPool(context.Background(), cfg, testLogger())
	require.NoError(t, err)

	stats := pool.Stats()
	assert.Zero(t, stats.Idle)
	assert.Zero(t, stats.Created)

	require.NoError(t, pool.Close())
	require.NoError(t, pool.Close())

	_, err = pool.Get(context.Background())
	assert.ErrorContains(t, err, "pool is closed")
}

func TestNewPoolRejectsBadConfig(t *testing.T) {
	cfg := DefaultConfig()
	cfg.URLs = []string{"ldaps://dc1.contoso.com"}
	cfg.MaxConnections = -1

	_, err := NewPool(context.Background(), cfg, testLogger())
	assert.Error(t, err)
}
