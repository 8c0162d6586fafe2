package tftpserver

import (
	"context"
	"errors"
	"io"

	"github.com/jgoldverg/grover-tftp/internal"
	"github.com/jgoldverg/grover-tftp/pkg/tftpwire"
)

// runRead serves an RRQ: send block N, wait for Ack N, repeat until the
// short block has been acknowledged.
func (s *Server) runRead(ctx context.Context, t *transfer) transferResult {
	r, err := s.store.OpenRead(t.sess.filename)
	if err != nil {
		ep := openReadError(err)
		t.fail(ep.Code, ep.Message)
		return failed(0, err)
	}
	defer r.Close()

	buf := make([]byte, tftpwire.BlockSize)
	block := uint16(1)
	var sent int64
	for {
		n, err := io.ReadFull(r, buf)
		if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrUnexpectedEOF) {
			ep := ioError(err)
			t.fail(ep.Code, ep.Message)
			return failed(sent, err)
		}

		if err := t.send(&tftpwire.DataPacket{Block: block, Payload: buf[:n]}); err != nil {
			return failed(sent, err)
		}

		if res, ok := s.awaitAck(ctx, t, block, sent); !ok {
			return res
		}
		t.progress()
		sent += int64(n)

		if n < tftpwire.BlockSize {
			return completed(sent)
		}
		block++
	}
}

// awaitAck waits for the Ack of block, ignoring anything else the peer
// sends. ok is false when the transfer must stop with res.
func (s *Server) awaitAck(ctx context.Context, t *transfer, block uint16, sent int64) (res transferResult, ok bool) {
	for {
		p, err := t.next(ctx)
		if err != nil {
			return t.waitFailed(sent, err), false
		}
		switch p := p.(type) {
		case *tftpwire.AckPacket:
			if p.Block == block {
				return transferResult{}, true
			}
			internal.Debug("ignoring stale ack", internal.Fields{
				internal.FieldSessionID: t.sess.id.String(),
				internal.FieldBlock:     p.Block,
			})
		case *tftpwire.ErrorPacket:
			return aborted(sent, peerError(p)), false
		}
	}
}
