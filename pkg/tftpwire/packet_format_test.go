package tftpwire

import (
	"bytes"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRoundTripAllPacketTypes(t *testing.T) {
	full := bytes.Repeat([]byte{0xab}, BlockSize)
	cases := []struct {
		name string
		pkt  Packet
	}{
		{"rrq", &RequestPacket{Op: OpRead, Filename: "hello.txt", Mode: ModeOctet}},
		{"wrq", &RequestPacket{Op: OpWrite, Filename: "dir/up.bin", Mode: ModeNetASCII}},
		{"wrq mail", &RequestPacket{Op: OpWrite, Filename: "root", Mode: ModeMail}},
		{"data empty", &DataPacket{Block: 7, Payload: nil}},
		{"data short", &DataPacket{Block: 2, Payload: []byte("tail")}},
		{"data full", &DataPacket{Block: 65535, Payload: full}},
		{"ack zero", &AckPacket{Block: 0}},
		{"ack", &AckPacket{Block: 513}},
		{"error", &ErrorPacket{Code: ErrCodeFileNotFound, Message: "no such file"}},
		{"error empty message", &ErrorPacket{Code: ErrCodeUnknownTransferID}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			wire := Marshal(tc.pkt)
			require.Len(t, wire, tc.pkt.EncodedLen())

			got, err := Decode(wire)
			require.NoError(t, err)
			assert.Equal(t, tc.pkt, got)
		})
	}
}

func TestErrorCodeIsLittleEndian(t *testing.T) {
	wire := Marshal(&ErrorPacket{Code: ErrCodeUnknownTransferID})
	want := []byte{0x00, 0x05, 0x05, 0x00, 0x00}
	if !bytes.Equal(wire, want) {
		t.Fatalf("error packet bytes: got % x want % x", wire, want)
	}

	var p ErrorPacket
	if _, err := p.Decode([]byte{0x00, 0x05, 0x01, 0x00, 'x', 0x00}); err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if p.Code != ErrCodeFileNotFound || p.Message != "x" {
		t.Fatalf("unexpected error packet: %+v", p)
	}
}

func TestRequestExactBytes(t *testing.T) {
	expected := []byte{
		0x00, 0x01,
		'f', 'i', 'l', 'e',
		0x00,
		'n', 'e', 't', 'a', 's', 'c', 'i', 'i',
		0x00,
	}
	got := Marshal(&RequestPacket{Op: OpRead, Filename: "file", Mode: ModeNetASCII})
	if !bytes.Equal(got, expected) {
		t.Fatalf("rrq bytes: got % x want % x", got, expected)
	}
}

func TestDataEncodeWritesOnlyPayload(t *testing.T) {
	block := make([]byte, BlockSize)
	copy(block, "fresh")
	for i := 5; i < len(block); i++ {
		block[i] = 0xee // stale bytes from a previous read
	}
	p := DataPacket{Block: 3, Payload: block[:5]}
	wire := Marshal(&p)
	if len(wire) != DataHeaderLen+5 {
		t.Fatalf("expected %d bytes on the wire, got %d", DataHeaderLen+5, len(wire))
	}
	if !bytes.Equal(wire, []byte{0x00, 0x03, 0x00, 0x03, 'f', 'r', 'e', 's', 'h'}) {
		t.Fatalf("unexpected data bytes % x", wire)
	}
}

func TestDecodeRequestModeCaseInsensitive(t *testing.T) {
	wire := []byte{0x00, 0x02, 'm', 'a', 'i', 'n', '.', 'r', 's', 0x00, 'O', 'c', 'T', 'e', 'T', 0x00}
	got, err := Decode(wire)
	require.NoError(t, err)
	req, ok := got.(*RequestPacket)
	require.True(t, ok, "expected *RequestPacket, got %T", got)
	assert.Equal(t, OpWrite, req.Op)
	assert.Equal(t, "main.rs", req.Filename)
	assert.Equal(t, ModeOctet, req.Mode)
}

func TestDecodeRequestIgnoresTrailingBytes(t *testing.T) {
	wire := []byte{0x00, 0x01, 'a', 0x00, 'o', 'c', 't', 'e', 't', 0x00, 0x00}
	got, err := Decode(wire)
	require.NoError(t, err)
	assert.Equal(t, &RequestPacket{Op: OpRead, Filename: "a", Mode: ModeOctet}, got)
}

func TestDecodeFailures(t *testing.T) {
	cases := []struct {
		name string
		src  []byte
		want error
	}{
		{"empty", nil, ErrMalformedField},
		{"one byte", []byte{0x00}, ErrMalformedField},
		{"opcode zero", []byte{0x00, 0x00, 0x00, 0x01}, ErrInvalidOpcode},
		{"opcode six", []byte{0x00, 0x06, 0x00, 0x01}, ErrInvalidOpcode},
		{"filename unterminated", []byte{0x00, 0x01, 'a', 'b'}, ErrMalformedField},
		{"mode unterminated", []byte{0x00, 0x01, 'a', 0x00, 'o', 'c'}, ErrMalformedField},
		{"empty filename", []byte{0x00, 0x01, 0x00, 'o', 'c', 't', 'e', 't', 0x00}, ErrMalformedField},
		{"unknown mode", []byte{0x00, 0x01, 'a', 0x00, 'b', 'i', 'n', 0x00}, ErrMalformedField},
		{"short data", []byte{0x00, 0x03, 0x00}, ErrMalformedField},
		{"short ack", []byte{0x00, 0x04, 0x01}, ErrMalformedField},
		{"short error", []byte{0x00, 0x05, 0x01}, ErrMalformedField},
		{"oversized data", append([]byte{0x00, 0x03, 0x00, 0x01}, make([]byte, BlockSize+1)...), ErrMalformedField},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Decode(tc.src)
			if !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
		})
	}
}

func TestDecodeErrorWithoutTerminator(t *testing.T) {
	got, err := Decode([]byte{0x00, 0x05, 0x00, 0x00, 'b', 'y', 'e'})
	require.NoError(t, err)
	assert.Equal(t, &ErrorPacket{Code: ErrCodeUndefined, Message: "bye"}, got)
}

func TestDataIsFinal(t *testing.T) {
	if (&DataPacket{Payload: make([]byte, BlockSize)}).IsFinal() {
		t.Fatal("full block must not be final")
	}
	if !(&DataPacket{Payload: make([]byte, 88)}).IsFinal() {
		t.Fatal("short block must be final")
	}
	if !(&DataPacket{}).IsFinal() {
		t.Fatal("zero-length block must be final")
	}
}

func TestEncodeBufferTooSmall(t *testing.T) {
	p := AckPacket{Block: 1}
	if _, err := p.Encode(make([]byte, AckLen-1)); !errors.Is(err, ErrBufferTooSmall) {
		t.Fatalf("expected ErrBufferTooSmall, got %v", err)
	}
	r := RequestPacket{Op: OpData, Filename: "x", Mode: ModeOctet}
	if _, err := r.Encode(make([]byte, 64)); !errors.Is(err, ErrInvalidOpcode) {
		t.Fatalf("expected ErrInvalidOpcode for non-request opcode, got %v", err)
	}
}

func TestPeekOpcode(t *testing.T) {
	op, err := PeekOpcode([]byte{0x00, 0x04, 0x00, 0x00})
	require.NoError(t, err)
	assert.Equal(t, OpAck, op)
	assert.Equal(t, "ACK", op.String())
}

func TestErrorPacketImplementsError(t *testing.T) {
	var err error = &ErrorPacket{Code: ErrCodeDiskFull}
	assert.Contains(t, err.Error(), "disk full")
	var pe *ErrorPacket
	require.True(t, errors.As(err, &pe))
	assert.Equal(t, ErrCodeDiskFull, pe.Code)
}
