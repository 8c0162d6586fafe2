package metrics

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/jgoldverg/grover-tftp/internal"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Exporter serves a registry at /metrics.
type Exporter struct {
	srv      *http.Server
	listener net.Listener
}

func NewExporter(reg *prometheus.Registry) *Exporter {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	return &Exporter{
		srv: &http.Server{
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		},
	}
}

// Start binds addr and serves in the background.
func (e *Exporter) Start(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	e.listener = ln
	go func() {
		internal.Info("metrics exporter listening", internal.Fields{
			internal.FieldAddr: ln.Addr().String(),
		})
		if err := e.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			internal.Error("metrics exporter exited with error", internal.Fields{
				internal.FieldError: err.Error(),
			})
		}
	}()
	return nil
}

// Addr is the bound address, or nil before Start.
func (e *Exporter) Addr() net.Addr {
	if e.listener == nil {
		return nil
	}
	return e.listener.Addr()
}

func (e *Exporter) Shutdown(ctx context.Context) error {
	return e.srv.Shutdown(ctx)
}
