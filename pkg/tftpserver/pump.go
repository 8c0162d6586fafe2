package tftpserver

import (
	"context"
	"errors"
	"net"
	"time"
)

type datagram struct {
	src net.Addr
	buf []byte
}

// pump is the only reader of the shared socket. It hands every datagram to
// the dispatcher and reports the first fatal read error on errc.
func (s *Server) pump(ctx context.Context, out chan<- datagram, errc chan<- error) {
	defer close(s.pumpDone)
	for {
		if ctx.Err() != nil {
			return
		}
		_ = s.conn.SetReadDeadline(time.Now().Add(pollInterval))

		buf := make([]byte, recvBufferSize)
		n, src, err := s.conn.ReadFrom(buf)
		if err != nil {
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				continue
			}
			if ctx.Err() != nil {
				return
			}
			errc <- err
			return
		}

		select {
		case out <- datagram{src: src, buf: buf[:n]}:
		case <-ctx.Done():
			return
		}
	}
}
