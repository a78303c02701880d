package types

import "errors"

// Sentinel errors classifying every failure the pipeline can surface.
// Callers match with errors.Is; producers wrap with fmt.Errorf("%w: ...").
var (
	// ErrParse means the uploaded specification is not valid JSON.
	// Nothing is persisted when this is returned.
	ErrParse = errors.New("malformed specification")

	// ErrPersistence means the relational store rejected an operation.
	ErrPersistence = errors.New("store operation failed")

	// ErrConfiguration means a required remote capability is not
	// configured for the requested operation.
	ErrConfiguration = errors.New("capability not configured")

	// ErrRemote means an embedding or completion call failed.
	ErrRemote = errors.New("remote capability call failed")

	// ErrNotFound means the referenced record does not exist.
	ErrNotFound = errors.New("not found")

	// ErrSynthesis means answer synthesis failed after retrieval
	// succeeded.
	ErrSynthesis = errors.New("answer synthesis failed")
)
