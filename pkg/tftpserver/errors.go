package tftpserver

import (
	"context"
	"errors"
	"syscall"

	"github.com/jgoldverg/grover-tftp/backend/filesystem"
	"github.com/jgoldverg/grover-tftp/pkg/tftpwire"
)

// openReadError is the frame sent when a requested file cannot be opened.
func openReadError(err error) *tftpwire.ErrorPacket {
	if filesystem.IsPolicyError(err) {
		return &tftpwire.ErrorPacket{Code: tftpwire.ErrCodeAccessViolation, Message: err.Error()}
	}
	return &tftpwire.ErrorPacket{Code: tftpwire.ErrCodeFileNotFound, Message: err.Error()}
}

func createError(err error) *tftpwire.ErrorPacket {
	if filesystem.IsPolicyError(err) {
		return &tftpwire.ErrorPacket{Code: tftpwire.ErrCodeAccessViolation, Message: err.Error()}
	}
	return &tftpwire.ErrorPacket{Code: tftpwire.ErrCodeUndefined, Message: msgCreateFailed}
}

// ioError maps a local read or write failure mid-transfer.
func ioError(err error) *tftpwire.ErrorPacket {
	if errors.Is(err, syscall.ENOSPC) {
		return &tftpwire.ErrorPacket{Code: tftpwire.ErrCodeDiskFull, Message: err.Error()}
	}
	return &tftpwire.ErrorPacket{Code: tftpwire.ErrCodeUndefined, Message: err.Error()}
}

func ctxDone(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
