package entity

import "errors"

var (
	// Reconciliation outcomes
	ErrAuthentication     = errors.New("webhook authentication failed")
	ErrCorrelationMiss    = errors.New("no booking matches event")
	ErrTransitionConflict = errors.New("booking status changed concurrently")
	ErrPersistence        = errors.New("persistence failure")
	ErrSideEffect         = errors.New("side effect failed")

	// Booking errors
	ErrBookingNotFound      = errors.New("booking not found")
	ErrReferenceConflict    = errors.New("payment reference conflicts with bound reference")
	ErrInvalidBookingStatus = errors.New("invalid booking status")
	ErrEventNotFound        = errors.New("event not found")

	// Ledger errors
	ErrEventAlreadyProcessed = errors.New("provider event already processed")

	// Payload errors
	ErrInvalidPayload = errors.New("invalid event payload")

	// Notification errors
	ErrNotificationNotFound = errors.New("failed notification not found")
	ErrRecipientMissing     = errors.New("notification recipient missing")

	// General errors
	ErrInvalidInput = errors.New("invalid input")
	ErrUnauthorized = errors.New("unauthorized access")
)
