package domain

import "errors"

var (
	ErrInvalidID            = errors.New("invalid id")
	ErrInvalidName          = errors.New("invalid name")
	ErrInvalidTitle         = errors.New("invalid title")
	ErrInvalidDate          = errors.New("invalid date")
	ErrInvalidLayerKey      = errors.New("invalid layer key")
	ErrDuplicateLayerKey    = errors.New("duplicate layer key")
	ErrDuplicateItemID      = errors.New("duplicate scheduled item id")
	ErrInvalidSequence      = errors.New("invalid sequence index")
	ErrInvalidChainBehavior = errors.New("invalid chain behavior")
	ErrInvalidLayerKind     = errors.New("invalid layer kind")
	ErrInvalidTemplateMode  = errors.New("invalid template mode")
	ErrInvalidTotalDays     = errors.New("invalid total days")
	ErrInvalidDuration      = errors.New("invalid duration days")
	ErrLayerNotFound        = errors.New("layer not found")
)
