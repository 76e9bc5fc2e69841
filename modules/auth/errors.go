package auth

import "errors"

var (
	// ErrNoToken means no token is available to attach to a retry.
	ErrNoToken = errors.New("no auth token available")
	// ErrRetryExhausted means the response chain exceeded the retry ceiling.
	ErrRetryExhausted = errors.New("retry limit exhausted")
	// ErrSameTokenRejected means the backend already rejected the current token.
	ErrSameTokenRejected = errors.New("token rejected by backend")
	// ErrNonAuthError means the failure is not an authentication problem.
	ErrNonAuthError = errors.New("non-authentication error")
	// ErrInvalidChallenge means the challenge carries no response or request.
	ErrInvalidChallenge = errors.New("challenge without response or request")

	ErrRefreshTimeout     = errors.New("token refresh timed out")
	ErrTokenDecodeInvalid = errors.New("token is not a decodable JWT")
)
