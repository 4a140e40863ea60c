package rate

import "errors"

var (
	// ErrBackendUnavailable indicates the shared counting backend is unreachable.
	ErrBackendUnavailable = errors.New("rate backend unavailable")
)
