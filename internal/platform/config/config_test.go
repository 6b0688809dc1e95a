package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "0123456789abcdef0123456789abcdef"

// loadWith sets the three required variables, applies overrides on top and loads.
// An override of "" clears the variable.
func loadWith(t *testing.T, overrides map[string]string) (*Config, error) {
	t.Helper()
	vars := map[string]string{
		"DATABASE_URL": "postgres://localhost/forumcast",
		"REDIS_URL":    "redis://localhost:6379",
		"JWT_SECRET":   testSecret,
	}
	for k, v := range overrides {
		vars[k] = v
	}
	for k, v := range vars {
		t.Setenv(k, v)
	}
	return Load()
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := loadWith(t, nil)
	require.NoError(t, err)

	assert.Equal(t, Config{
		AppEnv:                  "development",
		AppURL:                  "http://localhost:8080",
		Port:                    "8080",
		DatabaseURL:             "postgres://localhost/forumcast",
		RedisURL:                "redis://localhost:6379",
		JWTSecret:               testSecret,
		LogLevel:                "info",
		LogFormat:               "text",
		DBMaxConns:              20,
		DBMinConns:              2,
		MaxWebSocketConnections: 10000,
		MaxConnectionsPerIP:     20,
		ConnectionQueueSize:     16,
		WSMessagesPerSecond:     5,
		WSMessageBurst:          10,
		ExclusiveRooms:          true,
		EventsChannel:           "forumcast:events",
		APIRateLimit:            10,
		APIRateBurst:            20,
	}, *cfg)
	assert.True(t, cfg.IsDevelopment())
	assert.False(t, cfg.IsProduction())
}

func TestLoad_Overrides(t *testing.T) {
	cfg, err := loadWith(t, map[string]string{
		"APP_ENV":               "production",
		"PORT":                  "9090",
		"EXCLUSIVE_ROOMS":       "false",
		"CONNECTION_QUEUE_SIZE": "64",
		"DB_MAX_CONNS":          "4",
		"DB_MIN_CONNS":          "0",
		"EVENTS_CHANNEL":        "staging:events",
	})
	require.NoError(t, err)

	assert.True(t, cfg.IsProduction())
	assert.Equal(t, "9090", cfg.Port)
	assert.False(t, cfg.ExclusiveRooms)
	assert.Equal(t, 64, cfg.ConnectionQueueSize)
	assert.Equal(t, int32(4), cfg.DBMaxConns)
	assert.Zero(t, cfg.DBMinConns)
	assert.Equal(t, "staging:events", cfg.EventsChannel)
}

func TestLoad_Rejects(t *testing.T) {
	tests := map[string]struct {
		env     map[string]string
		wantErr string
	}{
		"no database":      {map[string]string{"DATABASE_URL": ""}, "DATABASE_URL is required"},
		"no redis":         {map[string]string{"REDIS_URL": ""}, "REDIS_URL is required"},
		"no secret":        {map[string]string{"JWT_SECRET": ""}, "JWT_SECRET is required"},
		"short secret":     {map[string]string{"JWT_SECRET": "too-short"}, "at least 32 characters"},
		"no ws slots":      {map[string]string{"MAX_WEBSOCKET_CONNECTIONS": "0"}, "MAX_WEBSOCKET_CONNECTIONS"},
		"no per-ip slots":  {map[string]string{"MAX_CONNECTIONS_PER_IP": "0"}, "MAX_CONNECTIONS_PER_IP"},
		"no queue":         {map[string]string{"CONNECTION_QUEUE_SIZE": "-1"}, "CONNECTION_QUEUE_SIZE"},
		"no ws burst":      {map[string]string{"WS_MESSAGE_BURST": "0"}, "WS_MESSAGE_BURST"},
		"no api burst":     {map[string]string{"API_RATE_BURST": "0"}, "API_RATE_BURST"},
		"no db conns":      {map[string]string{"DB_MAX_CONNS": "0"}, "DB_MAX_CONNS"},
		"min above max":    {map[string]string{"DB_MAX_CONNS": "4", "DB_MIN_CONNS": "5"}, "DB_MIN_CONNS"},
		"no channel":       {map[string]string{"EVENTS_CHANNEL": ""}, "EVENTS_CHANNEL"},
		"not a number":     {map[string]string{"PORT": "8080", "DB_MAX_CONNS": "many"}, "failed to load environment variables"},
		"prod ssl disable": {map[string]string{"APP_ENV": "production", "DATABASE_URL": "postgres://u:p@db:5432/f?sslmode=disable"}, "sslmode=disable which is not allowed in production"},
		"prod ssl allow":   {map[string]string{"APP_ENV": "production", "DATABASE_URL": "postgres://u:p@db:5432/f?sslmode=allow"}, "sslmode=allow which is not allowed in production"},
		"prod ssl casing":  {map[string]string{"APP_ENV": "production", "DATABASE_URL": "postgres://u:p@db:5432/f?sslmode=DISABLE"}, "sslmode=disable"},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			cfg, err := loadWith(t, tt.env)

			require.Error(t, err)
			assert.Nil(t, cfg)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestLoad_SSLModes(t *testing.T) {
	tests := map[string]struct {
		appEnv string
		url    string
	}{
		"prod require":     {"production", "postgres://u:p@db:5432/f?sslmode=require"},
		"prod verify-full": {"production", "postgres://u:p@db:5432/f?sslmode=verify-full"},
		"prod unset":       {"production", "postgres://u:p@db:5432/f"},
		"dev disable":      {"development", "postgres://u:p@localhost:5432/f?sslmode=disable"},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := loadWith(t, map[string]string{"APP_ENV": tt.appEnv, "DATABASE_URL": tt.url})
			assert.NoError(t, err)
		})
	}
}
