package tftpserver

import (
	"errors"
	"time"
)

const (
	DefaultTimeout    = 5 * time.Second
	DefaultMaxRetries = 5
	DefaultInboxDepth = 16

	// recvBufferSize is larger than any valid frame so oversized datagrams
	// reach the decoder and are rejected there instead of being truncated.
	recvBufferSize = 1024

	// pollInterval bounds how long the pump blocks in a single read.
	pollInterval = 500 * time.Millisecond

	msgCreateFailed = "There was an error creating/accessing the file"
	msgTimedOut     = "transfer timed out"
	msgWriteDenied  = "write requests are disabled"
	msgUnknownTID   = "unknown transfer id"
)

var (
	errTransferTimedOut = errors.New(msgTimedOut)
	errPeerAborted      = errors.New("peer aborted transfer")
	errWriteDenied      = errors.New(msgWriteDenied)
)
