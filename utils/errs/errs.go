package errs

import "errors"

var (
	ErrAcceptSocket = errors.New("accept a new connection error")
	ErrConnClosed   = errors.New("connection is already closed")
)
