// Package control runs the gRPC side listener operators probe for
// liveness. It carries the standard health service and server reflection.
package control

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/jgoldverg/grover-tftp/internal"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
)

// ServiceName is the health service name reporting the TFTP dispatcher.
const ServiceName = "tftp"

const shutdownTimeout = 5 * time.Second

type Options struct {
	Addr     string
	CertFile string
	KeyFile  string
}

type ControlServer struct {
	opts       Options
	grpcServer *grpc.Server
	health     *health.Server
	listener   net.Listener
}

func NewControlServer(opts Options) (*ControlServer, error) {
	var serverOpts []grpc.ServerOption
	if opts.CertFile != "" || opts.KeyFile != "" {
		creds, err := credentials.NewServerTLSFromFile(opts.CertFile, opts.KeyFile)
		if err != nil {
			internal.Error("failed to load control listener certificates", internal.Fields{
				internal.FieldKey("cert_file"): opts.CertFile,
				internal.FieldKey("key_file"):  opts.KeyFile,
				internal.FieldError:            err.Error(),
			})
			return nil, fmt.Errorf("load control tls credentials: %w", err)
		}
		serverOpts = append(serverOpts, grpc.Creds(creds))
	}

	server := grpc.NewServer(serverOpts...)
	hs := health.NewServer()
	hs.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_NOT_SERVING)
	healthpb.RegisterHealthServer(server, hs)
	reflection.Register(server)

	return &ControlServer{
		opts:       opts,
		grpcServer: server,
		health:     hs,
	}, nil
}

// Start binds the listener and serves in the background.
func (c *ControlServer) Start() error {
	listener, err := net.Listen("tcp", c.opts.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen: %v", err)
	}
	c.listener = listener

	go func() {
		internal.Info("starting control listener", internal.Fields{
			internal.FieldAddr:       listener.Addr().String(),
			internal.FieldKey("tls"): c.opts.CertFile != "",
		})
		if err := c.grpcServer.Serve(listener); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			internal.Error("grpc server exited with error", internal.Fields{
				internal.FieldError: err.Error(),
			})
		}
	}()
	return nil
}

func (c *ControlServer) Addr() net.Addr {
	if c.listener == nil {
		return nil
	}
	return c.listener.Addr()
}

// SetServing flips the health status reported for ServiceName.
func (c *ControlServer) SetServing(serving bool) {
	status := healthpb.HealthCheckResponse_NOT_SERVING
	if serving {
		status = healthpb.HealthCheckResponse_SERVING
	}
	c.health.SetServingStatus(ServiceName, status)
}

// Stop marks every service NOT_SERVING and drains in-flight calls,
// forcing the stop once ctx or the shutdown timeout expires.
func (c *ControlServer) Stop(ctx context.Context) {
	c.health.Shutdown()

	shutdownCtx, cancel := context.WithTimeout(ctx, shutdownTimeout)
	defer cancel()

	stopped := make(chan struct{})
	go func() {
		c.grpcServer.GracefulStop()
		close(stopped)
	}()

	select {
	case <-stopped:
	case <-shutdownCtx.Done():
		internal.Error("graceful shutdown timed out - forcing exit", nil)
		c.grpcServer.Stop()
	}
}
