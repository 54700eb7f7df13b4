package domain

import "errors"

// Sentinel errors used across layers.
var (
	ErrNotFound        = errors.New("not found")
	ErrNoReadableText  = errors.New("no readable text")
	ErrRestrictedPage  = errors.New("restricted page")
	ErrEmptyDocument   = errors.New("document has no sentences")
	ErrTimeout         = errors.New("timed out waiting for response")
	ErrNotReady        = errors.New("peer not ready")
	ErrUnknownCommand  = errors.New("unknown command")
	ErrHostUnavailable = errors.New("playback host unavailable")
)
