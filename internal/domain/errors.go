package domain

import "errors"

var (
	ErrNotFound        = errors.New("not found")
	ErrInvalidInput    = errors.New("invalid input")
	ErrInternal        = errors.New("internal")
	ErrEmbedding       = errors.New("embedding failed")
	ErrIndexCorruption = errors.New("index corruption")
	ErrSearchNotReady  = errors.New("search index not ready")
)
