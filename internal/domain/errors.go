package domain

import "errors"

var (
	ErrNotFound            = errors.New("not found")
	ErrUnsupportedNetwork  = errors.New("unsupported network")
	ErrUnsupportedPair     = errors.New("pair not supported by any pool")
	ErrUnknownPool         = errors.New("unknown pool")
	ErrDuplicatePool       = errors.New("duplicate pool")
	ErrConflictingToken    = errors.New("conflicting token definition")
	ErrMalformedSettlement = errors.New("malformed settlement")
	ErrMissingPrice        = errors.New("token missing from clearing prices")
	ErrPriceScaleExhausted = errors.New("price scaled below precision floor")
	ErrPriceUnavailable    = errors.New("token price unavailable")
	ErrLockHeld            = errors.New("lock already held")
)
