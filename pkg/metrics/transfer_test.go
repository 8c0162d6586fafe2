package metrics

import (
	"context"
	"io"
	"net/http"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestServerCollectorCounts(t *testing.T) {
	c := NewServerCollector("")

	c.TransferStarted(DirectionRead)
	c.TransferStarted(DirectionWrite)
	assert.Equal(t, 2.0, testutil.ToFloat64(c.active))

	c.ObserveSend(512)
	c.ObserveSend(0)
	c.ObserveDiskWrite(300)
	c.ObserveRetransmit()
	c.TransferFinished(DirectionRead, OutcomeCompleted)

	assert.Equal(t, 1.0, testutil.ToFloat64(c.active))
	assert.Equal(t, 2.0, testutil.ToFloat64(c.packetsSent))
	assert.Equal(t, 512.0, testutil.ToFloat64(c.bytesSent))
	assert.Equal(t, 300.0, testutil.ToFloat64(c.bytesReceived))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.retransmissions))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.finished.WithLabelValues(DirectionRead, OutcomeCompleted)))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.started.WithLabelValues(DirectionWrite)))
}

func TestNilCollectorIsNoop(t *testing.T) {
	var c *ServerCollector
	c.TransferStarted(DirectionRead)
	c.ObserveSend(10)
	c.ObserveUnknownTID()
	if c.Registry() != nil {
		t.Fatal("nil collector must not expose a registry")
	}
}

func TestExporterServesMetrics(t *testing.T) {
	c := NewServerCollector("grover")
	c.ObserveDecodeFailure()

	exp := NewExporter(c.Registry())
	require.NoError(t, exp.Start("127.0.0.1:0"))
	t.Cleanup(func() {
		// Equivalent of t.Context() (Go 1.24+), which is cancelled before cleanups run.
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		_ = exp.Shutdown(ctx)
	})

	resp, err := http.Get("http://" + exp.Addr().String() + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "grover_tftp_decode_failures_total 1")
	assert.Contains(t, string(body), "grover_tftp_active_sessions 0")
}
