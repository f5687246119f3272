package core

import "errors"

var (
	// ErrInvalidConfig wraps every configuration validation failure.
	ErrInvalidConfig = errors.New("invalid consortium config")

	// ErrSynthesisUnavailable means the arbiter call itself failed.
	ErrSynthesisUnavailable = errors.New("synthesis unavailable")

	// Arbiter parse failures. They never escape ParseArbiterResponse.
	ErrNoArbiterSections = errors.New("no recognizable sections in arbiter response")
	ErrNoResponseID      = errors.New("could not find a valid <response_id> tag")
	ErrUnknownResponseID = errors.New("response id not found in current round")
	ErrNoRanking         = errors.New("could not find a <ranking> tag")
	ErrEmptyRanking      = errors.New("found <ranking> tag, but no valid <rank> tags inside")

	// ErrConsortiumNotFound is returned when no saved consortium has the requested name.
	ErrConsortiumNotFound = errors.New("consortium not found")

	// ErrRunNotFound is returned for unknown or expired asynchronous runs.
	ErrRunNotFound = errors.New("run not found")

	// ErrMissingTemplateKey is returned when a template references an unknown placeholder.
	ErrMissingTemplateKey = errors.New("missing template key")
)
