package agent

import "errors"

var (
	// ErrNoQuery means the request carried no question text.
	ErrNoQuery = errors.New("query text cannot be empty")

	// ErrAllToolsUnavailable means every retrieval strategy was tried and
	// every invocation failed, leaving nothing to ground an answer on.
	ErrAllToolsUnavailable = errors.New("all retrieval tools unavailable")

	// ErrSynthesisFailed means answer generation failed even after retry.
	// It is the only fatal synthesis outcome.
	ErrSynthesisFailed = errors.New("answer synthesis failed")
)
