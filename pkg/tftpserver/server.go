// Package tftpserver serves RFC 1350 read and write requests from a single
// shared UDP socket. One dispatcher loop owns the socket's receive side and
// the session registry; each transfer runs in its own goroutine and is fed
// the frames its peer sends.
package tftpserver

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/jgoldverg/grover-tftp/backend/filesystem"
	"github.com/jgoldverg/grover-tftp/internal"
	"github.com/jgoldverg/grover-tftp/pkg/metrics"
	"github.com/jgoldverg/grover-tftp/pkg/tftpwire"
)

type Options struct {
	// Timeout bounds every wait for the peer's next frame.
	Timeout time.Duration
	// MaxRetries is how many times the last frame is resent without
	// progress before the transfer is abandoned. Zero disables resends.
	MaxRetries int
	// InboxDepth is the per-session frame buffer.
	InboxDepth int
	AllowWrite bool
	Metrics    *metrics.ServerCollector
}

func (o Options) withDefaults() Options {
	if o.Timeout <= 0 {
		o.Timeout = DefaultTimeout
	}
	if o.MaxRetries < 0 {
		o.MaxRetries = DefaultMaxRetries
	}
	if o.InboxDepth <= 0 {
		o.InboxDepth = DefaultInboxDepth
	}
	return o
}

type Server struct {
	conn  net.PacketConn
	store filesystem.FileStore
	opts  Options

	// sessions is touched only by the dispatcher goroutine.
	sessions map[string]*session
	done     chan string
	workers  sync.WaitGroup
	active   atomic.Int64

	mu       sync.Mutex
	cancel   context.CancelFunc
	serving  bool
	pumpDone chan struct{}
}

// New returns a server that owns conn; Serve closes it on return.
func New(conn net.PacketConn, store filesystem.FileStore, opts Options) *Server {
	return &Server{
		conn:     conn,
		store:    store,
		opts:     opts.withDefaults(),
		sessions: make(map[string]*session),
		done:     make(chan string),
		pumpDone: make(chan struct{}),
	}
}

func (s *Server) Addr() net.Addr {
	return s.conn.LocalAddr()
}

// ActiveSessions is the number of registered transfers.
func (s *Server) ActiveSessions() int {
	return int(s.active.Load())
}

// Serve runs the dispatcher until ctx is cancelled, Close is called, or the
// socket fails. It waits for every transfer to finish before returning.
func (s *Server) Serve(ctx context.Context) error {
	s.mu.Lock()
	if s.serving {
		s.mu.Unlock()
		return errors.New("tftp server already serving")
	}
	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.serving = true
	s.mu.Unlock()
	defer cancel()

	packets := make(chan datagram, s.opts.InboxDepth)
	pumpErr := make(chan error, 1)
	go s.pump(ctx, packets, pumpErr)

	internal.Info("tftp server accepting requests", internal.Fields{
		internal.FieldAddr: s.conn.LocalAddr().String(),
	})

	var serveErr error
loop:
	for {
		select {
		case <-ctx.Done():
			break loop
		case err := <-pumpErr:
			serveErr = fmt.Errorf("read from socket: %w", err)
			break loop
		case dg := <-packets:
			s.dispatch(ctx, dg)
		case key := <-s.done:
			s.remove(key)
		}
	}

	cancel()
	s.drain()
	<-s.pumpDone
	if err := s.conn.Close(); err != nil && serveErr == nil {
		serveErr = err
	}
	internal.Info("tftp server stopped", internal.Fields{
		internal.FieldAddr: s.conn.LocalAddr().String(),
	})
	return serveErr
}

// Close stops a running Serve. It is safe to call more than once.
func (s *Server) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		s.cancel()
	}
	return nil
}

// drain waits for every worker, still honoring their completion signals.
func (s *Server) drain() {
	finished := make(chan struct{})
	go func() {
		s.workers.Wait()
		close(finished)
	}()
	for {
		select {
		case key := <-s.done:
			s.remove(key)
		case <-finished:
			return
		}
	}
}

func (s *Server) dispatch(ctx context.Context, dg datagram) {
	s.opts.Metrics.ObservePacketReceive()
	peer := dg.src.String()

	pkt, err := tftpwire.Decode(dg.buf)
	if err != nil {
		s.opts.Metrics.ObserveDecodeFailure()
		internal.Debug("dropping undecodable datagram", internal.Fields{
			internal.FieldPeer:  peer,
			internal.FieldBytes: len(dg.buf),
			internal.FieldError: err.Error(),
		})
		s.reply(dg.src, &tftpwire.ErrorPacket{Code: tftpwire.ErrCodeIllegalOperation, Message: err.Error()})
		return
	}

	if req, ok := pkt.(*tftpwire.RequestPacket); ok {
		if _, exists := s.sessions[peer]; exists {
			s.opts.Metrics.ObserveDuplicateRequest()
			internal.Debug("ignoring request from peer with active transfer", internal.Fields{
				internal.FieldPeer: peer,
				internal.FieldFile: req.Filename,
			})
			return
		}
		s.start(ctx, dg.src, req)
		return
	}

	sess, ok := s.sessions[peer]
	if !ok {
		s.opts.Metrics.ObserveUnknownTID()
		internal.Debug("frame from unknown transfer id", internal.Fields{
			internal.FieldPeer:   peer,
			internal.FieldOpcode: pkt.Opcode().String(),
		})
		s.reply(dg.src, &tftpwire.ErrorPacket{Code: tftpwire.ErrCodeUnknownTransferID, Message: msgUnknownTID})
		return
	}

	select {
	case sess.inbox <- pkt:
	default:
		s.opts.Metrics.ObserveDroppedFrame()
		internal.Debug("session inbox full, dropping frame", internal.Fields{
			internal.FieldSessionID: sess.id.String(),
			internal.FieldPeer:      peer,
			internal.FieldOpcode:    pkt.Opcode().String(),
		})
	}
}

func (s *Server) start(ctx context.Context, peer net.Addr, req *tftpwire.RequestPacket) {
	var run func(context.Context, *transfer) transferResult
	var direction string
	switch req.Op {
	case tftpwire.OpRead:
		direction = metrics.DirectionRead
		run = s.runRead
	case tftpwire.OpWrite:
		direction = metrics.DirectionWrite
		run = s.runWrite
	default:
		panic(fmt.Sprintf("tftpserver: request with opcode %s passed decoding", req.Op))
	}

	sess := &session{
		id:        uuid.New(),
		key:       peer.String(),
		peer:      peer,
		filename:  req.Filename,
		mode:      req.Mode,
		direction: direction,
		inbox:     make(chan tftpwire.Packet, s.opts.InboxDepth),
	}
	s.sessions[sess.key] = sess
	s.active.Add(1)
	s.opts.Metrics.TransferStarted(direction)

	internal.Info("transfer started", internal.Fields{
		internal.FieldSessionID: sess.id.String(),
		internal.FieldPeer:      sess.key,
		internal.FieldFile:      sess.filename,
		internal.FieldDirection: direction,
		internal.FieldMode:      string(sess.mode),
	})

	s.workers.Add(1)
	go s.runSession(ctx, sess, run)
}

func (s *Server) runSession(ctx context.Context, sess *session, run func(context.Context, *transfer) transferResult) {
	defer s.workers.Done()
	defer func() { s.done <- sess.key }()

	t := newTransfer(s.conn, sess, s.opts)
	res := run(ctx, t)
	s.opts.Metrics.TransferFinished(sess.direction, res.outcome)

	fields := internal.Fields{
		internal.FieldSessionID: sess.id.String(),
		internal.FieldPeer:      sess.key,
		internal.FieldFile:      sess.filename,
		internal.FieldDirection: sess.direction,
		internal.FieldOutcome:   res.outcome,
		internal.FieldBytes:     res.bytes,
	}
	if res.err != nil {
		fields[internal.FieldError] = res.err.Error()
	}
	switch res.outcome {
	case metrics.OutcomeCompleted:
		internal.Info("transfer completed", fields)
	case metrics.OutcomeAborted:
		internal.Warn("transfer aborted", fields)
	default:
		internal.Error("transfer failed", fields)
	}
}

func (s *Server) remove(key string) {
	if _, ok := s.sessions[key]; !ok {
		return
	}
	delete(s.sessions, key)
	s.active.Add(-1)
}

// reply sends a one-off frame from the dispatcher.
func (s *Server) reply(to net.Addr, p tftpwire.Packet) {
	if _, err := s.conn.WriteTo(tftpwire.Marshal(p), to); err != nil {
		internal.Warn("failed to send reply", internal.Fields{
			internal.FieldPeer:   to.String(),
			internal.FieldOpcode: p.Opcode().String(),
			internal.FieldError:  err.Error(),
		})
		return
	}
	s.opts.Metrics.ObserveSend(0)
}
