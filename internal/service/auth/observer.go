package auth

import (
	"errors"
	"time"

	"github.com/nkiryanov/agonauth/internal/apperrors"
)

type Flow string

const (
	FlowRegister Flow = "register"
	FlowLogin    Flow = "login"
	FlowRefresh  Flow = "refresh"
	FlowLogout   Flow = "logout"
)

type Outcome string

const (
	// Flow finished as requested
	OutcomeSuccess Outcome = "success"

	// Caller did something wrong: bad credentials, duplicate email, stale token
	OutcomeRejected Outcome = "rejected"

	// Storage or other infrastructure failed
	OutcomeError Outcome = "error"
)

// Hook to watch auth flows. Must be safe for concurrent use
type FlowObserver interface {
	FlowCompleted(flow Flow, outcome Outcome, elapsed time.Duration)
}

type noOpObserver struct{}

func (noOpObserver) FlowCompleted(Flow, Outcome, time.Duration) {}

var rejections = []error{
	apperrors.ErrFieldsRequired,
	apperrors.ErrUserAlreadyExists,
	apperrors.ErrInvalidCredentials,
	apperrors.ErrRefreshTokenInvalid,
	apperrors.ErrRefreshTokenExpired,
	apperrors.ErrRefreshTokenNotCurrent,
}

func outcomeOf(err error) Outcome {
	if err == nil {
		return OutcomeSuccess
	}
	for _, target := range rejections {
		if errors.Is(err, target) {
			return OutcomeRejected
		}
	}
	return OutcomeError
}
