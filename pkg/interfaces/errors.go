package interfaces

import "errors"

// Store errors shared by every backend.
var (
	ErrStoreClosed  = errors.New("store is closed")
	ErrWriteTimeout = errors.New("write operation timeout")
)
