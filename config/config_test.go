package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoadConfigDefaults(t *testing.T) {
	for _, key := range []string{"APP_PORT", "MESSAGE_STORE", "FANOUT_MODE", "IDEMPOTENCY_TTL", "MESSAGE_RATE_LIMIT"} {
		t.Setenv(key, "")
		os.Unsetenv(key)
	}
	cfg := LoadConfig()
	assert.Equal(t, "8080", cfg.AppPort)
	assert.Equal(t, StoreMongo, cfg.MessageStore)
	assert.Equal(t, FanoutLocal, cfg.FanoutMode)
	assert.Equal(t, 10*time.Second, cfg.SendTimeout)
	assert.Equal(t, time.Duration(0), cfg.IdempotencyTTL)
	assert.Equal(t, 60, cfg.MessageRateLimit)
}

func TestLoadConfigFromEnv(t *testing.T) {
	t.Setenv("APP_PORT", "9090")
	t.Setenv("MESSAGE_STORE", StoreMemory)
	t.Setenv("SOCIAL_STORE", StoreMySQL)
	t.Setenv("FANOUT_MODE", FanoutRedis)
	t.Setenv("IDEMPOTENCY_TTL", "2m")
	t.Setenv("SEND_TIMEOUT", "bogus")
	t.Setenv("WS_SEND_BUFFER", "32")

	cfg := LoadConfig()
	assert.Equal(t, "9090", cfg.AppPort)
	assert.Equal(t, StoreMemory, cfg.MessageStore)
	assert.Equal(t, StoreMySQL, cfg.SocialStore)
	assert.Equal(t, 2*time.Minute, cfg.IdempotencyTTL)
	assert.Equal(t, 10*time.Second, cfg.SendTimeout, "unparsable durations fall back")
	assert.Equal(t, 32, cfg.WSSendBuffer)
	assert.True(t, cfg.UsesRedis())
}

func TestPostgresDSN(t *testing.T) {
	cfg := &Config{DBHost: "db", DBUser: "u", DBPassword: "p", DBName: "n", DBPort: "5433"}
	assert.Equal(t, "host=db user=u password=p dbname=n port=5433 sslmode=disable TimeZone=UTC", cfg.PostgresDSN())
}
