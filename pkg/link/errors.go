package link

import "errors"

// ErrInvalidArgument is returned for a Command that cannot be encoded as a
// valid frame regardless of session or arena state (oversized payload,
// unknown Mode).
var ErrInvalidArgument = errors.New("link: invalid command")

// ErrShuttingDown is returned by Send once Shutdown has been called.
var ErrShuttingDown = errors.New("link: core is shutting down")
