package tftpserver

import (
	"context"
	"io"

	"github.com/jgoldverg/grover-tftp/internal"
	"github.com/jgoldverg/grover-tftp/pkg/tftpwire"
)

// runWrite serves a WRQ: Ack 0, then write each in-order block and ack it
// until a short block arrives.
func (s *Server) runWrite(ctx context.Context, t *transfer) transferResult {
	if !s.opts.AllowWrite {
		t.fail(tftpwire.ErrCodeAccessViolation, msgWriteDenied)
		return failed(0, errWriteDenied)
	}
	w, err := s.store.Create(t.sess.filename)
	if err != nil {
		ep := createError(err)
		t.fail(ep.Code, ep.Message)
		return failed(0, err)
	}
	closed := false
	defer func() {
		if !closed {
			_ = w.Close()
		}
	}()

	if err := t.send(&tftpwire.AckPacket{Block: 0}); err != nil {
		return failed(0, err)
	}

	expected := uint16(1)
	var written int64
	for {
		p, err := t.next(ctx)
		if err != nil {
			return t.waitFailed(written, err)
		}
		switch p := p.(type) {
		case *tftpwire.DataPacket:
			if p.Block != expected {
				internal.Debug("ignoring out of order block", internal.Fields{
					internal.FieldSessionID: t.sess.id.String(),
					internal.FieldBlock:     p.Block,
				})
				continue
			}
			t.progress()
			if err := writeBlock(w, p.Payload); err != nil {
				ep := ioError(err)
				t.fail(ep.Code, ep.Message)
				return failed(written, err)
			}
			written += int64(len(p.Payload))
			s.opts.Metrics.ObserveDiskWrite(len(p.Payload))

			if p.IsFinal() {
				closed = true
				if err := w.Close(); err != nil {
					ep := ioError(err)
					t.fail(ep.Code, ep.Message)
					return failed(written, err)
				}
			}
			if err := t.send(&tftpwire.AckPacket{Block: expected}); err != nil {
				return failed(written, err)
			}
			if p.IsFinal() {
				return completed(written)
			}
			expected++
		case *tftpwire.ErrorPacket:
			return aborted(written, peerError(p))
		}
	}
}

func writeBlock(w io.Writer, payload []byte) error {
	if len(payload) == 0 {
		return nil
	}
	n, err := w.Write(payload)
	if err != nil {
		return err
	}
	if n != len(payload) {
		return io.ErrShortWrite
	}
	return nil
}
