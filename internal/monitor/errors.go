package monitor

import "errors"

// Sentinel errors surfaced through the query interface. The HTTP layer maps
// them to status codes.
var (
	ErrNotFound          = errors.New("topic not found")
	ErrConflict          = errors.New("topic already exists")
	ErrInvalidResolution = errors.New("unknown resolution")
	ErrInvalidTopic      = errors.New("invalid topic")
)
