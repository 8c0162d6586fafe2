package tftpserver

import (
	"context"
	"net"
	"syscall"

	"github.com/jgoldverg/grover-tftp/internal"
	"golang.org/x/sys/unix"
)

type ListenOptions struct {
	ReadBufferSize  int
	WriteBufferSize int
}

// Listen binds the shared UDP socket every transfer is served from.
func Listen(ctx context.Context, addr string, opts ListenOptions) (*net.UDPConn, error) {
	lc := net.ListenConfig{
		Control: func(_, _ string, c syscall.RawConn) error {
			return c.Control(func(fd uintptr) {
				_ = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_REUSEADDR, 1)
			})
		},
	}
	pc, err := lc.ListenPacket(ctx, "udp", addr)
	if err != nil {
		internal.Error("error creating udp listener", internal.Fields{
			internal.FieldAddr:  addr,
			internal.FieldError: err.Error(),
		})
		return nil, err
	}
	conn := pc.(*net.UDPConn)
	if opts.ReadBufferSize > 0 {
		_ = conn.SetReadBuffer(opts.ReadBufferSize)
	}
	if opts.WriteBufferSize > 0 {
		_ = conn.SetWriteBuffer(opts.WriteBufferSize)
	}

	port := 0
	if ua, ok := conn.LocalAddr().(*net.UDPAddr); ok {
		port = ua.Port
	}
	internal.Info("udp listener bound", internal.Fields{
		internal.FieldAddr: conn.LocalAddr().String(),
		internal.FieldPort: port,
	})
	return conn, nil
}
