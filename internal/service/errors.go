package service

import "errors"

// ErrNoLinkedItem distinguishes "nothing to sync" from upstream failures so
// callers can answer with not-found semantics instead of a retryable error.
var ErrNoLinkedItem = errors.New("no linked items for account")
