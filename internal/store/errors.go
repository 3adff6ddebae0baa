package store

import "errors"

// ErrNotFound is returned when a requested resource does not exist in the store.
var ErrNotFound = errors.New("not found")

// ErrConnectionLimit is returned when a tenant already holds the maximum
// number of stored connections.
var ErrConnectionLimit = errors.New("connection limit reached")
