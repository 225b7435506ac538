package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_MissingDefaultFile(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoad_MissingExplicitFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestLoad_OverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fsmlink.yaml")
	doc := `
listen: 127.0.0.1:9000
admin: 127.0.0.1:9001
log:
  level: debug
definitions:
  source: redis
redis:
  addr: redis:6379
  mirror: true
engine:
  script_timeout: 250ms
transport:
  max_connections: 8
`
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:9000", cfg.Listen)
	assert.Equal(t, "127.0.0.1:9001", cfg.Admin)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "text", cfg.Log.Format)
	assert.Equal(t, "redis", cfg.Definitions.Source)
	assert.Equal(t, "redis:6379", cfg.Redis.Addr)
	assert.Equal(t, "fsmlink:trace", cfg.Redis.TraceChannel)
	assert.True(t, cfg.Redis.Mirror)
	assert.Equal(t, 250*time.Millisecond, cfg.Engine.ScriptTimeout)
	assert.Equal(t, 64, cfg.Engine.QueueSize)
	assert.Equal(t, 8, cfg.Transport.MaxConnections)
}

func TestValidate(t *testing.T) {
	cfg := Default()
	cfg.Definitions.Source = "s3"
	assert.Error(t, cfg.Validate())

	cfg = Default()
	cfg.Log.Format = "xml"
	assert.Error(t, cfg.Validate())

	assert.NoError(t, Default().Validate())
}
