package model

import "errors"

var (
	// ErrOutOfRange is returned when a cursor is positioned or moved outside
	// the trading range. The traversal that hit it must stop.
	ErrOutOfRange = errors.New("outside trading range")

	// ErrInvalidArgument covers malformed directions, dates, intervals and
	// mismatched series identities.
	ErrInvalidArgument = errors.New("invalid argument")
)
