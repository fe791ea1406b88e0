package domain

import "errors"

var (
	ErrReviewNotFound    = errors.New("review not found")
	ErrReviewTerminal    = errors.New("review already resolved")
	ErrReviewNotSent     = errors.New("review prompt not delivered yet")
	ErrInvalidTransition = errors.New("invalid review transition")
)
