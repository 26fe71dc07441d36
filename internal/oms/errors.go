package oms

import (
	"errors"
	"fmt"

	"candlebot/internal/models"
)

var (
	ErrUnknownOrder  = errors.New("unknown order id")
	ErrOrderTerminal = errors.New("order already in a terminal state")
)

// RejectError reports a validation failure on submission. Rejection is a
// normal return, not a fault: the book is left untouched.
type RejectError struct {
	Reason models.RejectReason
}

func (e *RejectError) Error() string {
	return fmt.Sprintf("order rejected: %s", e.Reason)
}
