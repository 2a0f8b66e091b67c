package policy

import "codeberg.org/mutker/fanctl/internal/errors"

const (
	ErrInvalidThreshold = errors.ErrInvalidThreshold
	ErrInvalidDuty      = errors.ErrInvalidDuty
)

var errFactory = errors.New()
