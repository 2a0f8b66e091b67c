package controller

import "codeberg.org/mutker/fanctl/internal/errors"

const (
	ErrStartup           = errors.ErrStartup
	ErrShutdownActuation = errors.ErrShutdownActuation
)

var errFactory = errors.New()
