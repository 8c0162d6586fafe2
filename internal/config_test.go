package internal

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadServerConfigWritesDefaultsOnFirstRun(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	path := filepath.Join(t.TempDir(), "tftp_server.toml")

	cfg, err := LoadServerConfig(path)
	require.NoError(t, err)
	assert.Equal(t, DefaultServerConfig(), cfg)

	if _, err := os.Stat(path); err != nil {
		t.Fatalf("expected default config at %s: %v", path, err)
	}

	again, err := LoadServerConfig(path)
	require.NoError(t, err)
	assert.Equal(t, cfg, again)
}

func TestLoadServerConfigFromFileAndEnv(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	path := filepath.Join(t.TempDir(), "server.toml")
	content := `
listen_host = "127.0.0.1"
port = 6969
root_dir = "/srv/tftp"
allow_write = false
timeout_ms = 250
max_retries = 2
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	t.Setenv("GROVER_TFTP_MAX_RETRIES", "9")

	cfg, err := LoadServerConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:6969", cfg.ListenAddr())
	assert.Equal(t, "/srv/tftp", cfg.RootDir)
	assert.False(t, cfg.AllowWrite)
	assert.Equal(t, 250, cfg.TimeoutMs)
	assert.Equal(t, 9, cfg.MaxRetries)
	assert.Equal(t, 16, cfg.InboxDepth, "unset keys keep their defaults")
}

func TestLoadServerConfigRejectsBadFile(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	path := filepath.Join(t.TempDir(), "broken.toml")
	require.NoError(t, os.WriteFile(path, []byte("port = = 3"), 0o644))

	if _, err := LoadServerConfig(path); err == nil {
		t.Fatal("expected parse error for malformed toml")
	}
}

func TestServerConfigValidate(t *testing.T) {
	cfg := DefaultServerConfig()
	require.NoError(t, cfg.Validate())

	cfg.Port = 70000
	assert.Error(t, cfg.Validate())

	cfg = DefaultServerConfig()
	cfg.TimeoutMs = 0
	assert.Error(t, cfg.Validate())

	cfg = DefaultServerConfig()
	cfg.ControlCertFile = "/tmp/cert.pem"
	assert.Error(t, cfg.Validate())
}

func TestLoadClientConfigDefaults(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	path := filepath.Join(t.TempDir(), "client.toml")

	cfg, err := LoadClientConfig(path)
	require.NoError(t, err)
	assert.Equal(t, DefaultClientConfig(), cfg)
	assert.Equal(t, int64(2000), cfg.Timeout().Milliseconds())
}

func TestConfigureLogger(t *testing.T) {
	t.Cleanup(func() {
		SetLogLevel(LevelInfo)
		SetLogWriter(os.Stderr)
	})
	var buf bytes.Buffer
	SetLogWriter(&buf)

	require.NoError(t, ConfigureLogger("WARN"))
	Info("hidden line", nil)
	Warn("visible line", Fields{FieldPeer: "127.0.0.1:9"})

	out := buf.String()
	assert.False(t, strings.Contains(out, "hidden line"), "info must be filtered at warn level")
	assert.Contains(t, out, "visible line")
	assert.Contains(t, out, "127.0.0.1:9")

	if err := ConfigureLogger("loud"); err == nil {
		t.Fatal("expected error for unknown level")
	}
	if err := ConfigureLogFormat("xml"); err == nil {
		t.Fatal("expected error for unknown format")
	}
}
