package domain

import "errors"

var (
	ErrWorldOutOfRange = errors.New("world id out of range")
	ErrDurationTooLong = errors.New("seconds remaining exceeds maximum")
	ErrUnknownChannel  = errors.New("unknown channel")
)
