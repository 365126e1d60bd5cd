package domain

import "errors"

var (
	ErrValidation         = errors.New("validation error")
	ErrNotFound           = errors.New("not found")
	ErrUnsupportedChannel = errors.New("unsupported notification type")
)
