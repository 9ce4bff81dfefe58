package faststore

import "errors"

// Sentinel kinds for fast-store errors.
var (
	ErrClosed       = errors.New("fast store closed")
	ErrInvalidLimit = errors.New("invalid top-n limit")
)
