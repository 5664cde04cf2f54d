package entity

import "errors"

var (
	ErrNotFound        = errors.New("not found")
	ErrVersionConflict = errors.New("record was modified concurrently")
	ErrInvalidState    = errors.New("operation not allowed in current payment state")
	ErrInvalidAmount   = errors.New("invalid amount")
)
