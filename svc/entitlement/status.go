// Package entitlement decides whether a caller may start listening to a book
// and records which books each caller has consumed.
//
// Guests and signed-in users without a subscription get a lifetime quota of
// distinct books. Replaying a book already counted is always free.
package entitlement

import (
	"time"

	"github.com/storify-asia/storify/svc/identity"
	"github.com/storify-asia/storify/svc/subscription"
)

type Reason string

const (
	ReasonNoLimit    Reason = "no_limit"
	ReasonFreeLimit  Reason = "free_limit"
	ReasonGuestLimit Reason = "guest_limit"
)

// Status is the listening decision returned to clients.
type Status struct {
	CanListen          bool       `json:"canListen"`
	ListenCount        int        `json:"listenCount"`
	Limit              *int       `json:"limit"`
	HasSubscription    bool       `json:"hasSubscription"`
	SubscriptionEndsAt *time.Time `json:"subscriptionEndsAt"`
	Reason             Reason     `json:"reason"`
}

type Limits struct {
	Free  int
	Guest int
}

// Input is everything a decision depends on.
type Input struct {
	Identity     identity.Identity
	Subscription *subscription.Subscription
	ListenCount  int
}

// Evaluate maps an Input to a Status. It performs no I/O.
func Evaluate(in Input, limits Limits, now time.Time) Status {
	switch {
	case in.Identity.IsAuthenticated() && in.Subscription.IsActiveAt(now):
		end := in.Subscription.EndDate
		return Status{
			CanListen:          true,
			ListenCount:        in.ListenCount,
			HasSubscription:    true,
			SubscriptionEndsAt: &end,
			Reason:             ReasonNoLimit,
		}
	case in.Identity.IsAuthenticated():
		return limited(in.ListenCount, limits.Free, ReasonFreeLimit)
	case in.Identity.IsAnonymous():
		return limited(in.ListenCount, limits.Guest, ReasonGuestLimit)
	default:
		return limited(0, limits.Guest, ReasonGuestLimit)
	}
}

func limited(count, limit int, reason Reason) Status {
	return Status{
		CanListen:   count < limit,
		ListenCount: count,
		Limit:       &limit,
		Reason:      reason,
	}
}
