package vectorstore

import "errors"

// Sentinel errors for consistent error handling.
var (
	ErrCollectionNotFound = errors.New("collection not found")
	ErrLengthMismatch     = errors.New("ids, documents, and metadatas must have equal length")
	ErrStoreClosed        = errors.New("store is closed")
)
