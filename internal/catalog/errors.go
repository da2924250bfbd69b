package catalog

import "errors"

// Error classes used to route failures through the orchestrator.
var (
	// ErrUpstream marks transient catalog API failures (network, 429, 5xx).
	ErrUpstream = errors.New("catalog upstream error")
	// ErrUnauthorized marks credential failures (HTTP 401).
	ErrUnauthorized = errors.New("catalog credentials rejected")
	// ErrMalformedResponse marks payloads that fail schema validation.
	ErrMalformedResponse = errors.New("malformed catalog response")
	// ErrStoreWrite marks entity writes that may not have been applied.
	ErrStoreWrite = errors.New("entity store write failed")
)

// IsTransient reports whether err is an upstream failure that may clear on retry.
func IsTransient(err error) bool {
	return errors.Is(err, ErrUpstream) || errors.Is(err, ErrMalformedResponse)
}
