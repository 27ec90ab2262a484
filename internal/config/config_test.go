package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, []string{"http://localhost:3000"}, cfg.AllowedOrigins)
	assert.Equal(t, "notification.events", cfg.NATS.Topic)
	assert.Equal(t, "notification.events.poison", cfg.NATS.PoisonTopic)
	assert.Equal(t, 5, cfg.Consumer.MaxRetries)
	assert.Equal(t, 15*time.Second, cfg.WS.PingInterval)
	assert.Equal(t, 45*time.Second, cfg.WS.PongTimeout)
	assert.True(t, cfg.IsDevelopment())
}

func TestLoad_Overrides(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("APP_ENV", "production")
	t.Setenv("ALLOWED_ORIGINS", "https://a.example, https://b.example,")
	t.Setenv("WS_PING_INTERVAL", "5s")
	t.Setenv("WS_PONG_TIMEOUT", "20s")
	t.Setenv("CONSUMER_MAX_RETRIES", "2")

	cfg, err := Load()
	require.NoError(t, err)

	assert.False(t, cfg.IsDevelopment())
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.AllowedOrigins)
	assert.Equal(t, 5*time.Second, cfg.WS.PingInterval)
	assert.Equal(t, 20*time.Second, cfg.WS.PongTimeout)
	assert.Equal(t, 2, cfg.Consumer.MaxRetries)
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		key, value string
	}{
		{"WS_PING_INTERVAL", "soon"},
		{"NATS_ACK_WAIT", "-1s"},
		{"CONSUMER_MAX_RETRIES", "many"},
		{"NATS_MAX_DELIVER", "-3"},
		{"WS_PONG_TIMEOUT", "1s"},
	}

	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			t.Chdir(t.TempDir())
			t.Setenv(tt.key, tt.value)

			_, err := Load()
			assert.Error(t, err)
		})
	}
}
