package common

import (
	"context"
	"fmt"

	"golang.org/x/oauth2"
)

// AuthClient defines the ability to refresh an OAuth2 token synchronously.
type AuthClient interface {
	// RefreshToken attempts to refresh using the given refresh token string.
	// Returns a new *oauth2.Token on success, or an error if refresh fails.
	RefreshToken(ctx context.Context, refreshToken string) (*oauth2.Token, error)
}

// TokenProvider hands out fresh credentials asynchronously.
//
// PerformActionWithFreshTokens starts a refresh and returns immediately; done
// is invoked exactly once, from any goroutine, when the refresh finishes.
// Implementations may perform network I/O before calling done.
type TokenProvider interface {
	PerformActionWithFreshTokens(ctx context.Context, done func(RefreshOutcome))
}

// RefreshOutcome is the result of one refresh. Err is nil on success, in
// which case AccessToken and IDToken carry the issued credentials.
type RefreshOutcome struct {
	AccessToken string
	IDToken     string
	Err         *RefreshError
}

// Succeeded reports whether the refresh produced tokens.
func (o RefreshOutcome) Succeeded() bool {
	return o.Err == nil
}

// RefreshSuccess builds a successful outcome.
func RefreshSuccess(accessToken, idToken string) RefreshOutcome {
	return RefreshOutcome{AccessToken: accessToken, IDToken: idToken}
}

// RefreshFailure builds a failed outcome.
func RefreshFailure(invalidRefreshToken bool, description string) RefreshOutcome {
	return RefreshOutcome{Err: &RefreshError{InvalidRefreshToken: invalidRefreshToken, Description: description}}
}

// InvalidRefreshTokenDescription is the error description identity providers
// report when the refresh token itself is no longer accepted.
const InvalidRefreshTokenDescription = "Invalid refresh_token"

// RefreshError reports a failed token refresh. InvalidRefreshToken means the
// user has to log in again; any other failure may be transient.
type RefreshError struct {
	InvalidRefreshToken bool
	Description         string
	// Cause is the underlying error, if any (transport failure, timeout).
	Cause error
}

func (e *RefreshError) Unwrap() error {
	return e.Cause
}

func (e *RefreshError) Error() string {
	if e.InvalidRefreshToken {
		return fmt.Sprintf("token refresh failed: refresh token invalid: %s", e.Description)
	}
	return fmt.Sprintf("token refresh failed: %s", e.Description)
}
