package chat

import (
	"errors"
	"fmt"
)

var (
	ErrNotConnected     = errors.New("not connected")
	ErrAlreadyConnected = errors.New("connection already attempted")
	ErrSendQueueFull    = errors.New("send queue full")
	ErrUploadInFlight   = errors.New("please wait until the file finishes uploading")
	ErrEmptyMessage     = errors.New("nothing to send")
)

// TransportError is a connect or stream failure. It is fatal for the
// session: nothing retries it.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// UploadError is a failed file submission. The pending send is dropped and
// the session stays usable.
type UploadError struct {
	FileName string
	Err      error
}

func (e *UploadError) Error() string {
	return fmt.Sprintf("upload %s failed: %v", e.FileName, e.Err)
}

func (e *UploadError) Unwrap() error { return e.Err }
