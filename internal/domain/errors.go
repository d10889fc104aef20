package domain

import "errors"

// ErrSequenceGap is returned when a delta does not immediately follow the
// current book version. It is recoverable: the caller must request a fresh
// snapshot before applying further deltas.
var ErrSequenceGap = errors.New("orderbook sequence gap")

// ErrConfigInvalid marks a fatal configuration problem at startup.
var ErrConfigInvalid = errors.New("invalid configuration")
