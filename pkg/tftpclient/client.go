// Package tftpclient is a minimal RFC 1350 client used by the CLI and the
// server's end-to-end tests.
package tftpclient

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"time"

	"github.com/jgoldverg/grover-tftp/internal"
	"github.com/jgoldverg/grover-tftp/pkg/tftpwire"
)

const (
	DefaultTimeout    = 2 * time.Second
	DefaultMaxRetries = 5
)

var ErrTimeout = errors.New("tftp: timed out waiting for server")

type Client struct {
	// Addr is the server's host:port; requests go here.
	Addr       string
	Timeout    time.Duration
	MaxRetries int
	Mode       tftpwire.Mode
}

// Get downloads remote into w and returns the number of bytes written.
// A server-side failure is returned as a *tftpwire.ErrorPacket.
func (c *Client) Get(ctx context.Context, remote string, w io.Writer) (int64, error) {
	cv, err := c.dial(ctx)
	if err != nil {
		return 0, err
	}
	defer cv.close()

	if err := cv.send(&tftpwire.RequestPacket{Op: tftpwire.OpRead, Filename: remote, Mode: c.mode()}); err != nil {
		return 0, err
	}

	expected := uint16(1)
	var total int64
	for {
		p, err := cv.recv(ctx)
		if err != nil {
			return total, err
		}
		switch p := p.(type) {
		case *tftpwire.DataPacket:
			if p.Block != expected {
				continue
			}
			cv.progress()
			if len(p.Payload) > 0 {
				n, err := w.Write(p.Payload)
				total += int64(n)
				if err != nil {
					cv.abort(tftpwire.ErrCodeDiskFull, err.Error())
					return total, fmt.Errorf("write local data: %w", err)
				}
			}
			if err := cv.send(&tftpwire.AckPacket{Block: expected}); err != nil {
				return total, err
			}
			if p.IsFinal() {
				return total, nil
			}
			expected++
		case *tftpwire.ErrorPacket:
			return total, p
		}
	}
}

// Put uploads r as remote and returns the number of bytes sent.
func (c *Client) Put(ctx context.Context, remote string, r io.Reader) (int64, error) {
	cv, err := c.dial(ctx)
	if err != nil {
		return 0, err
	}
	defer cv.close()

	if err := cv.send(&tftpwire.RequestPacket{Op: tftpwire.OpWrite, Filename: remote, Mode: c.mode()}); err != nil {
		return 0, err
	}
	if err := cv.awaitAck(ctx, 0); err != nil {
		return 0, err
	}

	buf := make([]byte, tftpwire.BlockSize)
	block := uint16(1)
	var total int64
	for {
		n, err := io.ReadFull(r, buf)
		if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrUnexpectedEOF) {
			cv.abort(tftpwire.ErrCodeUndefined, err.Error())
			return total, fmt.Errorf("read local data: %w", err)
		}
		if err := cv.send(&tftpwire.DataPacket{Block: block, Payload: buf[:n]}); err != nil {
			return total, err
		}
		if err := cv.awaitAck(ctx, block); err != nil {
			return total, err
		}
		total += int64(n)
		if n < tftpwire.BlockSize {
			return total, nil
		}
		block++
	}
}

func (c *Client) mode() tftpwire.Mode {
	if c.Mode == "" {
		return tftpwire.ModeOctet
	}
	return c.Mode
}

func (c *Client) dial(ctx context.Context) (*conversation, error) {
	server, err := net.ResolveUDPAddr("udp", c.Addr)
	if err != nil {
		return nil, fmt.Errorf("resolve server %q: %w", c.Addr, err)
	}
	network := "udp"
	if server.IP.To4() != nil {
		network = "udp4"
	}
	var lc net.ListenConfig
	pc, err := lc.ListenPacket(ctx, network, ":0")
	if err != nil {
		return nil, err
	}
	timeout := c.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	retries := c.MaxRetries
	if retries < 0 {
		retries = DefaultMaxRetries
	}
	cv := &conversation{
		conn:       pc,
		server:     server,
		timeout:    timeout,
		maxRetries: retries,
		buf:        make([]byte, 1024),
	}
	cv.stop = context.AfterFunc(ctx, func() {
		_ = pc.SetReadDeadline(time.Now())
	})
	return cv, nil
}

// conversation is one transfer's socket plus the server TID it locked on.
type conversation struct {
	conn       net.PacketConn
	server     net.Addr
	peer       net.Addr
	timeout    time.Duration
	maxRetries int
	stop       func() bool

	buf      []byte
	last     []byte
	deadline time.Time
	retries  int
}

func (cv *conversation) close() {
	cv.stop()
	_ = cv.conn.Close()
}

func (cv *conversation) target() net.Addr {
	if cv.peer != nil {
		return cv.peer
	}
	return cv.server
}

func (cv *conversation) send(p tftpwire.Packet) error {
	cv.last = tftpwire.Marshal(p)
	cv.deadline = time.Now().Add(cv.timeout)
	_, err := cv.conn.WriteTo(cv.last, cv.target())
	return err
}

func (cv *conversation) progress() {
	cv.retries = 0
}

func (cv *conversation) abort(code tftpwire.ErrorCode, msg string) {
	_, _ = cv.conn.WriteTo(tftpwire.Marshal(&tftpwire.ErrorPacket{Code: code, Message: msg}), cv.target())
}

// recv returns the next decodable frame from the locked server TID,
// resending the last frame whenever the deadline passes.
func (cv *conversation) recv(ctx context.Context) (tftpwire.Packet, error) {
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		_ = cv.conn.SetReadDeadline(cv.deadline)
		n, src, err := cv.conn.ReadFrom(cv.buf)
		if err != nil {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			var ne net.Error
			if !errors.As(err, &ne) || !ne.Timeout() {
				return nil, err
			}
			if cv.retries >= cv.maxRetries {
				return nil, ErrTimeout
			}
			cv.retries++
			internal.Debug("client retransmitting", internal.Fields{
				internal.FieldPeer:    cv.target().String(),
				internal.FieldRetries: cv.retries,
			})
			cv.deadline = time.Now().Add(cv.timeout)
			if _, err := cv.conn.WriteTo(cv.last, cv.target()); err != nil {
				return nil, err
			}
			continue
		}

		if cv.peer == nil {
			cv.peer = src
		} else if src.String() != cv.peer.String() {
			_, _ = cv.conn.WriteTo(tftpwire.Marshal(&tftpwire.ErrorPacket{
				Code:    tftpwire.ErrCodeUnknownTransferID,
				Message: "unknown transfer id",
			}), src)
			continue
		}

		p, err := tftpwire.Decode(cv.buf[:n])
		if err != nil {
			internal.Debug("client dropping undecodable frame", internal.Fields{
				internal.FieldPeer:  src.String(),
				internal.FieldError: err.Error(),
			})
			continue
		}
		return p, nil
	}
}

func (cv *conversation) awaitAck(ctx context.Context, block uint16) error {
	for {
		p, err := cv.recv(ctx)
		if err != nil {
			return err
		}
		switch p := p.(type) {
		case *tftpwire.AckPacket:
			if p.Block == block {
				cv.progress()
				return nil
			}
		case *tftpwire.ErrorPacket:
			return p
		}
	}
}
