package server

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/jgoldverg/grover-tftp/internal"
	"github.com/jgoldverg/grover-tftp/pkg/tftpclient"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

func testConfig(t *testing.T) *internal.ServerConfig {
	cfg := internal.DefaultServerConfig()
	cfg.ListenHost = "127.0.0.1"
	cfg.Port = 0
	cfg.RootDir = t.TempDir()
	cfg.TimeoutMs = 500
	cfg.MetricsAddr = "127.0.0.1:0"
	cfg.ControlAddr = "127.0.0.1:0"
	return cfg
}

func startDaemon(t *testing.T, cfg *internal.ServerConfig) (*Daemon, context.CancelFunc, <-chan error) {
	t.Helper()
	d := NewDaemon(cfg)
	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() { errc <- d.Run(ctx) }()

	select {
	case <-d.Ready():
	case err := <-errc:
		cancel()
		t.Fatalf("daemon exited before ready: %v", err)
	case <-time.After(5 * time.Second):
		cancel()
		t.Fatal("daemon did not become ready")
	}
	return d, cancel, errc
}

func TestDaemonServesTransfersAndSideListeners(t *testing.T) {
	cfg := testConfig(t)
	require.NoError(t, os.WriteFile(filepath.Join(cfg.RootDir, "pxe.cfg"), []byte("default linux\n"), 0o644))
	d, cancel, errc := startDaemon(t, cfg)

	client := &tftpclient.Client{Addr: d.TFTPAddr().String(), Timeout: time.Second, MaxRetries: 2}
	var got bytes.Buffer
	_, err := client.Get(context.Background(), "pxe.cfg", &got)
	require.NoError(t, err)
	assert.Equal(t, "default linux\n", got.String())

	_, err = client.Put(context.Background(), "logs/boot.log", bytes.NewReader([]byte("ok")))
	require.NoError(t, err)
	written, err := os.ReadFile(filepath.Join(cfg.RootDir, "logs", "boot.log"))
	require.NoError(t, err)
	assert.Equal(t, "ok", string(written))

	conn, err := grpc.NewClient(d.ControlAddr().String(), grpc.WithTransportCredentials(insecure.NewCredentials()))
	require.NoError(t, err)
	defer conn.Close()
	ctx, stop := context.WithTimeout(context.Background(), 2*time.Second)
	defer stop()
	resp, err := healthpb.NewHealthClient(conn).Check(ctx, &healthpb.HealthCheckRequest{Service: "tftp"})
	require.NoError(t, err)
	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, resp.GetStatus())

	metricsResp, err := http.Get("http://" + d.MetricsAddr().String() + "/metrics")
	require.NoError(t, err)
	body, err := io.ReadAll(metricsResp.Body)
	metricsResp.Body.Close()
	require.NoError(t, err)
	assert.Contains(t, string(body), `grover_tftp_transfers_started_total{direction="read"} 1`)
	assert.Contains(t, string(body), `grover_tftp_transfers_started_total{direction="write"} 1`)

	cancel()
	select {
	case err := <-errc:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("daemon did not stop")
	}
}

func TestDaemonRejectsInvalidConfig(t *testing.T) {
	cfg := testConfig(t)
	cfg.TimeoutMs = 0
	err := NewDaemon(cfg).Run(context.Background())
	if err == nil {
		t.Fatal("expected invalid config error")
	}
}

func TestDaemonRequiresExistingRoot(t *testing.T) {
	cfg := testConfig(t)
	cfg.RootDir = filepath.Join(cfg.RootDir, "missing")
	if err := NewDaemon(cfg).Run(context.Background()); err == nil {
		t.Fatal("expected error for missing root directory")
	}
}
