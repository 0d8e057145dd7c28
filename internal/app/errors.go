package app

import "errors"

var (
	// ErrEmptyMessage indicates a blank user message.
	ErrEmptyMessage = errors.New("message is required")
	// ErrMessageTooLong indicates the message exceeds the accepted length.
	ErrMessageTooLong = errors.New("message too long")
	// ErrThemeTooLong indicates the image theme exceeds the accepted length.
	ErrThemeTooLong = errors.New("theme too long")
	// ErrTurnSuperseded indicates the conversation was cleared while the
	// turn was in flight; the late result must be discarded.
	ErrTurnSuperseded = errors.New("turn superseded by clear")
)
