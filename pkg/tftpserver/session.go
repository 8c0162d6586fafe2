package tftpserver

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/google/uuid"
	"github.com/jgoldverg/grover-tftp/internal"
	"github.com/jgoldverg/grover-tftp/pkg/metrics"
	"github.com/jgoldverg/grover-tftp/pkg/tftpwire"
)

// session is the dispatcher's registry entry for one peer address.
type session struct {
	id        uuid.UUID
	key       string
	peer      net.Addr
	filename  string
	mode      tftpwire.Mode
	direction string
	inbox     chan tftpwire.Packet
}

type transferResult struct {
	outcome string
	bytes   int64
	err     error
}

func completed(n int64) transferResult {
	return transferResult{outcome: metrics.OutcomeCompleted, bytes: n}
}

func aborted(n int64, err error) transferResult {
	return transferResult{outcome: metrics.OutcomeAborted, bytes: n, err: err}
}

func failed(n int64, err error) transferResult {
	return transferResult{outcome: metrics.OutcomeFailed, bytes: n, err: err}
}

// transfer is the worker-side view of a session: it sends on the shared
// socket and waits on the session inbox with a retransmission timer.
type transfer struct {
	conn       net.PacketConn
	sess       *session
	timeout    time.Duration
	maxRetries int
	metrics    *metrics.ServerCollector

	last        []byte
	lastPayload int
	deadline    time.Time
	retries     int
}

func newTransfer(conn net.PacketConn, sess *session, opts Options) *transfer {
	return &transfer{
		conn:       conn,
		sess:       sess,
		timeout:    opts.Timeout,
		maxRetries: opts.MaxRetries,
		metrics:    opts.Metrics,
	}
}

// send writes p to the peer and makes it the frame resent on timeout.
func (t *transfer) send(p tftpwire.Packet) error {
	t.last = tftpwire.Marshal(p)
	t.lastPayload = 0
	if d, ok := p.(*tftpwire.DataPacket); ok {
		t.lastPayload = len(d.Payload)
	}
	t.deadline = time.Now().Add(t.timeout)
	return t.write()
}

func (t *transfer) write() error {
	if _, err := t.conn.WriteTo(t.last, t.sess.peer); err != nil {
		return err
	}
	t.metrics.ObserveSend(t.lastPayload)
	return nil
}

// progress marks the expected frame as received.
func (t *transfer) progress() {
	t.retries = 0
}

// next returns the peer's next frame. Waiting past the deadline resends the
// last frame; once maxRetries resends pass without progress it gives up
// with errTransferTimedOut. Frames the caller ignores do not move the
// deadline.
func (t *transfer) next(ctx context.Context) (tftpwire.Packet, error) {
	timer := time.NewTimer(time.Until(t.deadline))
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case p := <-t.sess.inbox:
			return p, nil
		case <-timer.C:
			if t.retries >= t.maxRetries {
				return nil, errTransferTimedOut
			}
			t.retries++
			t.metrics.ObserveRetransmit()
			internal.Debug("retransmitting last frame", internal.Fields{
				internal.FieldSessionID: t.sess.id.String(),
				internal.FieldPeer:      t.sess.key,
				internal.FieldRetries:   t.retries,
			})
			if err := t.write(); err != nil {
				return nil, err
			}
			t.deadline = time.Now().Add(t.timeout)
			timer.Reset(t.timeout)
		}
	}
}

// fail sends a terminal ERROR to the peer. Send errors are logged only;
// the transfer is ending either way.
func (t *transfer) fail(code tftpwire.ErrorCode, msg string) {
	p := &tftpwire.ErrorPacket{Code: code, Message: msg}
	if _, err := t.conn.WriteTo(tftpwire.Marshal(p), t.sess.peer); err != nil {
		internal.Warn("failed to send error frame", internal.Fields{
			internal.FieldSessionID: t.sess.id.String(),
			internal.FieldPeer:      t.sess.key,
			internal.FieldError:     err.Error(),
		})
		return
	}
	t.metrics.ObserveSend(0)
}

// waitFailed maps an error from next into the transfer result, telling the
// peer when the server is the side giving up.
func (t *transfer) waitFailed(n int64, err error) transferResult {
	switch {
	case errors.Is(err, errTransferTimedOut):
		t.fail(tftpwire.ErrCodeUndefined, msgTimedOut)
		return transferResult{outcome: metrics.OutcomeTimedOut, bytes: n, err: err}
	case ctxDone(err):
		return aborted(n, err)
	default:
		return failed(n, err)
	}
}

func peerError(p *tftpwire.ErrorPacket) error {
	return fmt.Errorf("%w: %w", errPeerAborted, p)
}
