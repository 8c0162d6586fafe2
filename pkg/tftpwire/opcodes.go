package tftpwire

import (
	"fmt"
	"strings"
)

// Opcode is the leading big-endian u16 of every TFTP packet.
type Opcode uint16

const (
	OpRead  Opcode = 1
	OpWrite Opcode = 2
	OpData  Opcode = 3
	OpAck   Opcode = 4
	OpError Opcode = 5
)

func (o Opcode) String() string {
	switch o {
	case OpRead:
		return "RRQ"
	case OpWrite:
		return "WRQ"
	case OpData:
		return "DATA"
	case OpAck:
		return "ACK"
	case OpError:
		return "ERROR"
	default:
		return fmt.Sprintf("opcode(%d)", uint16(o))
	}
}

// Valid reports whether o is one of the five RFC 1350 opcodes.
func (o Opcode) Valid() bool {
	return o >= OpRead && o <= OpError
}

// Mode is the transfer mode named in a request. Content translation for
// netascii is not performed; the mode only round-trips.
type Mode string

const (
	ModeNetASCII Mode = "netascii"
	ModeOctet    Mode = "octet"
	ModeMail     Mode = "mail"
)

// ParseMode matches s case-insensitively against the three RFC 1350 modes.
func ParseMode(s string) (Mode, error) {
	switch m := Mode(strings.ToLower(s)); m {
	case ModeNetASCII, ModeOctet, ModeMail:
		return m, nil
	default:
		return "", fmt.Errorf("%w: unsupported mode %q", ErrMalformedField, s)
	}
}

// ErrorCode is the code carried by an ERROR packet.
type ErrorCode uint16

const (
	ErrCodeUndefined         ErrorCode = 0
	ErrCodeFileNotFound      ErrorCode = 1
	ErrCodeAccessViolation   ErrorCode = 2
	ErrCodeDiskFull          ErrorCode = 3
	ErrCodeIllegalOperation  ErrorCode = 4
	ErrCodeUnknownTransferID ErrorCode = 5
	ErrCodeFileExists        ErrorCode = 6
	ErrCodeNoSuchUser        ErrorCode = 7
)

var errorCodeNames = map[ErrorCode]string{
	ErrCodeUndefined:         "not defined",
	ErrCodeFileNotFound:      "file not found",
	ErrCodeAccessViolation:   "access violation",
	ErrCodeDiskFull:          "disk full or allocation exceeded",
	ErrCodeIllegalOperation:  "illegal TFTP operation",
	ErrCodeUnknownTransferID: "unknown transfer ID",
	ErrCodeFileExists:        "file already exists",
	ErrCodeNoSuchUser:        "no such user",
}

func (c ErrorCode) String() string {
	if name, ok := errorCodeNames[c]; ok {
		return name
	}
	return fmt.Sprintf("error code %d", uint16(c))
}
