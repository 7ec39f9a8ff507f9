package models

import "errors"

var ErrNotFound = errors.New("requested resource not found")
var ErrConflict = errors.New("resource conflict, more than one record matches")
var ErrInvalidInput = errors.New("invalid input")

// ErrNoPendingOrder is returned when a machine has no paid order waiting to be dispensed.
// It is the steady state for a polling device, not a failure.
var ErrNoPendingOrder = errors.New("no pending order for machine")

// ErrClaimLost indicates that the conditional dispense update matched zero rows
// because another caller claimed the order first.
var ErrClaimLost = errors.New("order already claimed")
