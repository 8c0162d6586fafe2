package control

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"
)

func TestHealthTracksServingState(t *testing.T) {
	cs, err := NewControlServer(Options{Addr: "127.0.0.1:0"})
	require.NoError(t, err)
	require.NoError(t, cs.Start())
	t.Cleanup(func() { cs.Stop(context.Background()) })

	conn, err := grpc.NewClient(cs.Addr().String(), grpc.WithTransportCredentials(insecure.NewCredentials()))
	require.NoError(t, err)
	defer conn.Close()
	client := healthpb.NewHealthClient(conn)

	check := func(service string) (healthpb.HealthCheckResponse_ServingStatus, error) {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		resp, err := client.Check(ctx, &healthpb.HealthCheckRequest{Service: service})
		if err != nil {
			return 0, err
		}
		return resp.GetStatus(), nil
	}

	got, err := check(ServiceName)
	require.NoError(t, err)
	assert.Equal(t, healthpb.HealthCheckResponse_NOT_SERVING, got)

	cs.SetServing(true)
	got, err = check(ServiceName)
	require.NoError(t, err)
	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, got)

	_, err = check("nope")
	assert.Equal(t, codes.NotFound, status.Code(err))
}

func TestNewControlServerRejectsMissingCertificates(t *testing.T) {
	_, err := NewControlServer(Options{
		Addr:     "127.0.0.1:0",
		CertFile: "/nonexistent/cert.pem",
		KeyFile:  "/nonexistent/key.pem",
	})
	if err == nil {
		t.Fatal("expected error for missing certificate files")
	}
}
