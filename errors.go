package codeframe

import "errors"

var (
	// ErrNoDatabase is returned by New when no database was configured.
	ErrNoDatabase = errors.New("codeframe: no database configured")

	// ErrNoEmbeddingProvider is returned by New when neither an embedding
	// endpoint nor an embedder was configured.
	ErrNoEmbeddingProvider = errors.New("codeframe: no embedding provider configured")

	// ErrNoLabelingProvider is returned by New when neither a labeling
	// endpoint nor a labeler was configured.
	ErrNoLabelingProvider = errors.New("codeframe: no labeling provider configured")

	// ErrClientClosed indicates the client has been closed.
	ErrClientClosed = errors.New("codeframe: client is closed")
)
