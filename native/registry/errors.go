package registry

import "errors"

// Error classes for the registry module. Every failure wraps exactly one of
// these so callers can classify with errors.Is while the verbatim reason
// string travels with the error.
var (
	// ErrValidation marks empty or malformed required fields.
	ErrValidation = errors.New("registry: validation")
	// ErrUnauthorized marks callers lacking the required role or failing
	// the auth-commitment check.
	ErrUnauthorized = errors.New("registry: unauthorized")
	// ErrPolicy marks business-rule violations such as duplicate
	// product/edition pairs or invalid custody transitions.
	ErrPolicy = errors.New("registry: policy")
	// ErrAssetNotFound is returned for lookups of unknown asset ids.
	ErrAssetNotFound = errors.New("registry: token does not exist")
)
