package billing

import (
	"errors"

	"github.com/storify-asia/storify/handler"
	"github.com/storify-asia/storify/svc/auth"
	"github.com/storify-asia/storify/svc/payment"
	"github.com/storify-asia/storify/svc/subscription"
)

var errGatewayUnavailable = handler.NewHTTPError(handler.ErrBadGateway.Code, "gateway_unavailable").
	WithMessage("Payment gateway is unavailable, please try again")

func mapError(err error) error {
	switch {
	case errors.Is(err, payment.ErrNotFound):
		return handler.ErrNotFound.WithMessage("Transaction not found")
	case errors.Is(err, subscription.ErrPlanNotFound):
		return handler.ErrNotFound.WithMessage("Plan not found")
	case errors.Is(err, subscription.ErrPlanInactive), errors.Is(err, subscription.ErrInvalidPlan):
		return handler.ErrBadRequest.WithMessage("Plan is not available")
	case errors.Is(err, payment.ErrUnknownGateway):
		return handler.ErrBadRequest.WithMessage("Unknown payment gateway")
	case errors.Is(err, payment.ErrInvalidStatus):
		return handler.ErrBadRequest.WithMessage("Invalid payment status")
	case errors.Is(err, payment.ErrManualUpdateDisabled):
		return handler.ErrForbidden.WithMessage("Manual payment updates are disabled")
	case errors.Is(err, payment.ErrInvalidTransition):
		return handler.ErrConflict.WithMessage("Transaction can no longer change")
	case errors.Is(err, payment.ErrGatewayFailure):
		return errGatewayUnavailable
	case errors.Is(err, auth.ErrUserNotFound):
		return handler.ErrUnauthorized
	}
	return err
}
