package subscription

import "errors"

var (
	ErrNotFound     = errors.New("subscription not found")
	ErrPlanNotFound = errors.New("subscription plan not found")
	ErrPlanInactive = errors.New("subscription plan is not active")
	ErrInvalidPlan  = errors.New("invalid subscription plan")
)
