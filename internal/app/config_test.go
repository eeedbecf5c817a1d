package app

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoadConfigDefaults(t *testing.T) {
	t.Setenv("APP_ENV", "")
	t.Setenv("WS_QUEUE_SIZE", "")
	t.Setenv("PERSIST_TIMEOUT", "")

	cfg := LoadConfig()
	assert.Equal(t, "dev", cfg.Env)
	assert.Equal(t, ":8080", cfg.HTTPAddr)
	assert.Equal(t, 256, cfg.WSQueueSize)
	assert.Equal(t, 5*time.Second, cfg.PersistTimeout)
	assert.Equal(t, []string{"http://localhost:3000"}, cfg.CORSAllow)
}

func TestLoadConfigOverrides(t *testing.T) {
	t.Setenv("APP_ENV", "prod")
	t.Setenv("WS_QUEUE_SIZE", "8")
	t.Setenv("PERSIST_TIMEOUT", "250ms")
	t.Setenv("CORS_ALLOW", " https://a.example , ,https://b.example")
	t.Setenv("REDIS_DB", "not-a-number")

	cfg := LoadConfig()
	assert.Equal(t, "prod", cfg.Env)
	assert.Equal(t, 8, cfg.WSQueueSize)
	assert.Equal(t, 250*time.Millisecond, cfg.PersistTimeout)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.CORSAllow)
	assert.Equal(t, 0, cfg.RedisDB)
}

func TestLogAttrsOmitSecrets(t *testing.T) {
	cfg := Config{JWTSecret: "shh", PGURL: "postgres://u:pw@h/db"}
	for _, a := range cfg.LogAttrs() {
		assert.NotEqual(t, "shh", a)
		assert.NotEqual(t, "postgres://u:pw@h/db", a)
	}
}
