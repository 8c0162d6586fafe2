// Package server assembles a running TFTP daemon from a ServerConfig: the
// file root, the shared UDP socket, the metrics exporter and the control
// listener.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/jgoldverg/grover-tftp/backend/localfs"
	"github.com/jgoldverg/grover-tftp/internal"
	"github.com/jgoldverg/grover-tftp/pkg/control"
	"github.com/jgoldverg/grover-tftp/pkg/metrics"
	"github.com/jgoldverg/grover-tftp/pkg/tftpserver"
)

const (
	metricsNamespace = "grover"
	shutdownTimeout  = 5 * time.Second
)

type Daemon struct {
	config *internal.ServerConfig

	mu          sync.Mutex
	ready       chan struct{}
	tftpAddr    net.Addr
	controlAddr net.Addr
	metricsAddr net.Addr
}

func NewDaemon(cfg *internal.ServerConfig) *Daemon {
	return &Daemon{
		config: cfg,
		ready:  make(chan struct{}),
	}
}

// Ready is closed once every listener is bound and the dispatcher is
// about to accept requests.
func (d *Daemon) Ready() <-chan struct{} {
	return d.ready
}

// TFTPAddr is the bound UDP address, valid after Ready.
func (d *Daemon) TFTPAddr() net.Addr {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.tftpAddr
}

func (d *Daemon) ControlAddr() net.Addr {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.controlAddr
}

func (d *Daemon) MetricsAddr() net.Addr {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.metricsAddr
}

// Run serves until ctx is cancelled, then stops every listener.
func (d *Daemon) Run(ctx context.Context) error {
	cfg := d.config
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid server config: %w", err)
	}

	root, err := localfs.NewRoot(cfg.RootDir)
	if err != nil {
		return err
	}
	if files, err := root.List(); err != nil {
		internal.Warn("failed to list root directory", internal.Fields{
			internal.FieldKey("root_dir"): root.Dir(),
			internal.FieldError:           err.Error(),
		})
	} else {
		internal.Info("serving files from root", internal.Fields{
			internal.FieldKey("root_dir"):    root.Dir(),
			internal.FieldKey("file_count"):  len(files),
			internal.FieldKey("allow_write"): cfg.AllowWrite,
		})
	}

	collector := metrics.NewServerCollector(metricsNamespace)

	if cfg.MetricsAddr != "" {
		exporter := metrics.NewExporter(collector.Registry())
		if err := exporter.Start(cfg.MetricsAddr); err != nil {
			return fmt.Errorf("start metrics exporter: %w", err)
		}
		d.setAddr(&d.metricsAddr, exporter.Addr())
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			if err := exporter.Shutdown(shutdownCtx); err != nil {
				internal.Warn("metrics exporter shutdown failed", internal.Fields{
					internal.FieldError: err.Error(),
				})
			}
		}()
	}

	var ctrl *control.ControlServer
	if cfg.ControlAddr != "" {
		ctrl, err = control.NewControlServer(control.Options{
			Addr:     cfg.ControlAddr,
			CertFile: cfg.ControlCertFile,
			KeyFile:  cfg.ControlKeyFile,
		})
		if err != nil {
			return err
		}
		if err := ctrl.Start(); err != nil {
			return err
		}
		d.setAddr(&d.controlAddr, ctrl.Addr())
		defer ctrl.Stop(context.Background())
	}

	conn, err := tftpserver.Listen(ctx, cfg.ListenAddr(), tftpserver.ListenOptions{
		ReadBufferSize:  cfg.ReadBufferSize,
		WriteBufferSize: cfg.WriteBufferSize,
	})
	if err != nil {
		return err
	}
	srv := tftpserver.New(conn, root, tftpserver.Options{
		Timeout:    cfg.Timeout(),
		MaxRetries: cfg.MaxRetries,
		InboxDepth: cfg.InboxDepth,
		AllowWrite: cfg.AllowWrite,
		Metrics:    collector,
	})
	d.setAddr(&d.tftpAddr, srv.Addr())

	if ctrl != nil {
		ctrl.SetServing(true)
	}
	close(d.ready)

	err = srv.Serve(ctx)
	if ctrl != nil {
		ctrl.SetServing(false)
	}
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	internal.Info("tftp daemon shutdown complete", nil)
	return nil
}

func (d *Daemon) setAddr(dst *net.Addr, addr net.Addr) {
	d.mu.Lock()
	*dst = addr
	d.mu.Unlock()
}
