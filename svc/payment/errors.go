package payment

import "errors"

var (
	ErrNotFound              = errors.New("payment transaction not found")
	ErrGatewayFailure        = errors.New("payment gateway request failed")
	ErrUnknownGateway        = errors.New("unknown payment gateway")
	ErrNotificationsDisabled = errors.New("gateway does not send notifications")
	ErrVerificationFailed    = errors.New("payment notification verification failed")
	ErrInvalidStatus         = errors.New("invalid payment status")
	ErrInvalidTransition     = errors.New("invalid payment transition")
	ErrManualUpdateDisabled  = errors.New("manual payment updates are disabled")

	// ErrAlreadyFinalized marks an update for a transaction that already
	// left pending. Manager resolves it to a no-op.
	ErrAlreadyFinalized = errors.New("payment transaction already finalized")

	ErrDuplicateExternalID = errors.New("payment transaction already exists for gateway reference")
)
