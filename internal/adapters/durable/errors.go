package durable

import "errors"

// Sentinel kinds for durable-store errors.
var (
	ErrTagNotFound = errors.New("tag not found")
	ErrClosed      = errors.New("durable store closed")
)
