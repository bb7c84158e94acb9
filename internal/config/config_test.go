package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	pkgconfig "github.com/weiawesome/emergency-chat-relay/pkg/config"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv(pkgconfig.EnvConfigFile, filepath.Join(t.TempDir(), "missing.yaml"))

	cfg, err := Load()
	require.Error(t, err, "an explicit config file that does not exist is an error")
	assert.Nil(t, cfg)
}

func TestLoadFromFileAndEnv(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "relay.yaml")
	require.NoError(t, os.WriteFile(file, []byte(`
server:
  port: 7000
websocket:
  pong_wait: 15s
relay:
  store_timeout: 250ms
store:
  cassandra:
    hosts: "a:9042, b:9042,"
`), 0o600))

	t.Setenv(pkgconfig.EnvConfigFile, file)
	t.Setenv("STORE_DRIVER", "mongo")
	t.Setenv("GRPC_PORT", "50099")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 7000, cfg.Server.Port)
	assert.Equal(t, 50099, cfg.GRPC.Port)
	assert.Equal(t, "mongo", cfg.Store.Driver)
	assert.Equal(t, 15*time.Second, cfg.WebSocket.PongWait)
	assert.Equal(t, 30*time.Second, cfg.WebSocket.PingInterval)
	assert.Equal(t, 250*time.Millisecond, cfg.Relay.StoreTimeout)
	assert.Equal(t, []string{"a:9042", "b:9042"}, cfg.Store.Cassandra.HostList())
	assert.Equal(t, "snowflake", cfg.ID.Type)
	assert.Equal(t, "chat_messages", cfg.Store.Mongo.Collection)
	assert.Equal(t, "none", cfg.Events.Driver)
}
