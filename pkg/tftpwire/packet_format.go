// Package tftpwire encodes and decodes the five RFC 1350 packet types.
//
// All integers are big-endian except the ERROR packet's code field, which
// is little-endian on the wire for compatibility with the clients this
// server was deployed against.
package tftpwire

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
)

const (
	// BlockSize is the fixed RFC 1350 data block size. A DATA packet
	// carrying fewer bytes ends the transfer.
	BlockSize = 512

	OpcodeLen      = 2
	DataHeaderLen  = 4
	AckLen         = 4
	ErrorHeaderLen = 4

	MaxDataPacketLen = DataHeaderLen + BlockSize
)

var (
	ErrInvalidOpcode  = errors.New("invalid opcode")
	ErrMalformedField = errors.New("malformed field")
	ErrBufferTooSmall = errors.New("buffer too small")
)

// Packet is one decoded TFTP frame.
type Packet interface {
	Opcode() Opcode
	// EncodedLen is the exact number of bytes Encode writes.
	EncodedLen() int
	Encode(dst []byte) (int, error)
}

// RequestPacket is an RRQ or WRQ.
type RequestPacket struct {
	Op       Opcode
	Filename string
	Mode     Mode
}

// DataPacket carries one block. len(Payload) is the block length; a
// Payload shorter than BlockSize marks the final block.
type DataPacket struct {
	Block   uint16
	Payload []byte
}

type AckPacket struct {
	Block uint16
}

// ErrorPacket is both a wire frame and a Go error, so a peer's ERROR can be
// returned as-is from client code.
type ErrorPacket struct {
	Code    ErrorCode
	Message string
}

func (p *RequestPacket) Opcode() Opcode { return p.Op }
func (p *DataPacket) Opcode() Opcode    { return OpData }
func (p *AckPacket) Opcode() Opcode     { return OpAck }
func (p *ErrorPacket) Opcode() Opcode   { return OpError }

func (p *RequestPacket) EncodedLen() int {
	return OpcodeLen + len(p.Filename) + 1 + len(p.Mode) + 1
}
func (p *DataPacket) EncodedLen() int  { return DataHeaderLen + len(p.Payload) }
func (p *AckPacket) EncodedLen() int   { return AckLen }
func (p *ErrorPacket) EncodedLen() int { return ErrorHeaderLen + len(p.Message) + 1 }

// IsFinal reports whether this is the short block that ends a transfer.
func (p *DataPacket) IsFinal() bool { return len(p.Payload) < BlockSize }

func (p *ErrorPacket) Error() string {
	if p.Message == "" {
		return fmt.Sprintf("tftp error %d: %s", uint16(p.Code), p.Code)
	}
	return fmt.Sprintf("tftp error %d: %s", uint16(p.Code), p.Message)
}

func (p *RequestPacket) Encode(dst []byte) (int, error) {
	if p.Op != OpRead && p.Op != OpWrite {
		return 0, fmt.Errorf("%w: request opcode %s", ErrInvalidOpcode, p.Op)
	}
	need := p.EncodedLen()
	if len(dst) < need {
		return 0, fmt.Errorf("%w: need %d, got %d", ErrBufferTooSmall, need, len(dst))
	}
	binary.BigEndian.PutUint16(dst[0:2], uint16(p.Op))
	off := OpcodeLen
	off += copy(dst[off:], p.Filename)
	dst[off] = 0
	off++
	off += copy(dst[off:], p.Mode)
	dst[off] = 0
	off++
	return off, nil
}

func (p *RequestPacket) Decode(src []byte) (int, error) {
	op, err := PeekOpcode(src)
	if err != nil {
		return 0, err
	}
	if op != OpRead && op != OpWrite {
		return 0, fmt.Errorf("%w: %s is not a request", ErrInvalidOpcode, op)
	}
	off := OpcodeLen
	filename, n, err := readCString(src[off:], "filename")
	if err != nil {
		return 0, err
	}
	if filename == "" {
		return 0, fmt.Errorf("%w: empty filename", ErrMalformedField)
	}
	off += n
	rawMode, n, err := readCString(src[off:], "mode")
	if err != nil {
		return 0, err
	}
	off += n
	mode, err := ParseMode(rawMode)
	if err != nil {
		return 0, err
	}
	p.Op = op
	p.Filename = filename
	p.Mode = mode
	// Bytes after the mode terminator (RFC 2347 options) are ignored.
	return off, nil
}

func (p *DataPacket) Encode(dst []byte) (int, error) {
	if len(p.Payload) > BlockSize {
		return 0, fmt.Errorf("%w: payload of %d bytes exceeds block size", ErrMalformedField, len(p.Payload))
	}
	need := p.EncodedLen()
	if len(dst) < need {
		return 0, fmt.Errorf("%w: need %d, got %d", ErrBufferTooSmall, need, len(dst))
	}
	binary.BigEndian.PutUint16(dst[0:2], uint16(OpData))
	binary.BigEndian.PutUint16(dst[2:4], p.Block)
	copy(dst[DataHeaderLen:], p.Payload)
	return need, nil
}

// Decode aliases Payload into src; callers that reuse src must copy.
func (p *DataPacket) Decode(src []byte) (int, error) {
	if err := expectOpcode(src, OpData); err != nil {
		return 0, err
	}
	if len(src) < DataHeaderLen {
		return 0, fmt.Errorf("%w: data packet of %d bytes has no block number", ErrMalformedField, len(src))
	}
	payloadLen := len(src) - DataHeaderLen
	if payloadLen > BlockSize {
		return 0, fmt.Errorf("%w: payload of %d bytes exceeds block size", ErrMalformedField, payloadLen)
	}
	p.Block = binary.BigEndian.Uint16(src[2:4])
	if payloadLen == 0 {
		p.Payload = nil
	} else {
		p.Payload = src[DataHeaderLen:]
	}
	return len(src), nil
}

func (p *AckPacket) Encode(dst []byte) (int, error) {
	if len(dst) < AckLen {
		return 0, fmt.Errorf("%w: need %d, got %d", ErrBufferTooSmall, AckLen, len(dst))
	}
	binary.BigEndian.PutUint16(dst[0:2], uint16(OpAck))
	binary.BigEndian.PutUint16(dst[2:4], p.Block)
	return AckLen, nil
}

func (p *AckPacket) Decode(src []byte) (int, error) {
	if err := expectOpcode(src, OpAck); err != nil {
		return 0, err
	}
	if len(src) < AckLen {
		return 0, fmt.Errorf("%w: ack packet of %d bytes has no block number", ErrMalformedField, len(src))
	}
	p.Block = binary.BigEndian.Uint16(src[2:4])
	return AckLen, nil
}

func (p *ErrorPacket) Encode(dst []byte) (int, error) {
	need := p.EncodedLen()
	if len(dst) < need {
		return 0, fmt.Errorf("%w: need %d, got %d", ErrBufferTooSmall, need, len(dst))
	}
	binary.BigEndian.PutUint16(dst[0:2], uint16(OpError))
	binary.LittleEndian.PutUint16(dst[2:4], uint16(p.Code))
	off := ErrorHeaderLen
	off += copy(dst[off:], p.Message)
	dst[off] = 0
	return off + 1, nil
}

// Decode accepts a message with no terminator and takes the remaining
// bytes; the message is advisory and some peers omit the trailing zero.
func (p *ErrorPacket) Decode(src []byte) (int, error) {
	if err := expectOpcode(src, OpError); err != nil {
		return 0, err
	}
	if len(src) < ErrorHeaderLen {
		return 0, fmt.Errorf("%w: error packet of %d bytes has no code", ErrMalformedField, len(src))
	}
	p.Code = ErrorCode(binary.LittleEndian.Uint16(src[2:4]))
	rest := src[ErrorHeaderLen:]
	if i := bytes.IndexByte(rest, 0); i >= 0 {
		p.Message = string(rest[:i])
		return ErrorHeaderLen + i + 1, nil
	}
	p.Message = string(rest)
	return len(src), nil
}

// PeekOpcode returns the opcode of src without decoding the rest.
func PeekOpcode(src []byte) (Opcode, error) {
	if len(src) < OpcodeLen {
		return 0, fmt.Errorf("%w: packet of %d bytes has no opcode", ErrMalformedField, len(src))
	}
	op := Opcode(binary.BigEndian.Uint16(src[0:2]))
	if !op.Valid() {
		return 0, fmt.Errorf("%w: %d", ErrInvalidOpcode, uint16(op))
	}
	return op, nil
}

// Decode parses one datagram into its packet type.
func Decode(src []byte) (Packet, error) {
	op, err := PeekOpcode(src)
	if err != nil {
		return nil, err
	}
	switch op {
	case OpRead, OpWrite:
		var p RequestPacket
		if _, err := p.Decode(src); err != nil {
			return nil, err
		}
		return &p, nil
	case OpData:
		var p DataPacket
		if _, err := p.Decode(src); err != nil {
			return nil, err
		}
		return &p, nil
	case OpAck:
		var p AckPacket
		if _, err := p.Decode(src); err != nil {
			return nil, err
		}
		return &p, nil
	default:
		var p ErrorPacket
		if _, err := p.Decode(src); err != nil {
			return nil, err
		}
		return &p, nil
	}
}

// Marshal allocates and encodes p. It panics on a request whose opcode is
// not RRQ/WRQ or a data packet larger than BlockSize.
func Marshal(p Packet) []byte {
	buf := make([]byte, p.EncodedLen())
	n, err := p.Encode(buf)
	if err != nil {
		panic(fmt.Sprintf("tftpwire: marshal %s: %v", p.Opcode(), err))
	}
	return buf[:n]
}

func expectOpcode(src []byte, want Opcode) error {
	op, err := PeekOpcode(src)
	if err != nil {
		return err
	}
	if op != want {
		return fmt.Errorf("%w: got %s, want %s", ErrInvalidOpcode, op, want)
	}
	return nil
}

// readCString returns the text before the first zero byte of src and the
// number of bytes consumed including the terminator.
func readCString(src []byte, field string) (string, int, error) {
	i := bytes.IndexByte(src, 0)
	if i < 0 {
		return "", 0, fmt.Errorf("%w: %s has no terminating zero byte", ErrMalformedField, field)
	}
	return string(src[:i]), i + 1, nil
}
