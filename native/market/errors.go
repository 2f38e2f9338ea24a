package market

import "errors"

// Error classes for the marketplace module, mirroring the registry
// taxonomy: validation, authorization, and business policy. Reason strings
// are surfaced verbatim to callers.
var (
	ErrValidation   = errors.New("market: validation")
	ErrUnauthorized = errors.New("market: unauthorized")
	ErrPolicy       = errors.New("market: policy")
)
