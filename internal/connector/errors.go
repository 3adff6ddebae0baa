package connector

import "errors"

// ErrPoolAcquisition is wrapped into errors returned when a caller times out
// or is rejected while waiting for a connection. It is surfaced to the caller
// and never retried internally; callers may retry with backoff.
var ErrPoolAcquisition = errors.New("connection pool acquisition failed")
