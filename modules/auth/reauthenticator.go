package auth

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"

	"github.com/guarzo/mystuff/common"
)

const (
	DefaultMaxRetry       = 5
	DefaultRefreshTimeout = 30 * time.Second

	// AccessTokenProvider is the identity provider whose access token is sent
	// to the backend. Every other provider gets its id token sent instead.
	AccessTokenProvider = "TELEKOM"

	authorizationHeader = "Authorization"
	bearerPrefix        = "Bearer "
)

// Challenge is a rejected response together with the responses that preceded
// it while retrying the same logical request, most recent first.
type Challenge struct {
	Response *http.Response
	Prior    []*http.Response
}

// RetryCount counts the response and all its predecessors.
func (c Challenge) RetryCount() int {
	return len(c.Prior) + 1
}

// Decision is the answer to a Challenge: a request to send next, or nil to
// give up and surface the last response.
type Decision struct {
	Request *http.Request
	Reason  error
}

// Reissue reports whether the request should be retried.
func (d Decision) Reissue() bool {
	return d.Request != nil
}

// Authenticator decides how to answer a 401 challenge.
type Authenticator interface {
	Authenticate(ctx context.Context, ch Challenge) Decision
}

// AuthenticatorFunc adapts a function to Authenticator.
type AuthenticatorFunc func(ctx context.Context, ch Challenge) Decision

func (f AuthenticatorFunc) Authenticate(ctx context.Context, ch Challenge) Decision {
	return f(ctx, ch)
}

// Reauthenticator refreshes credentials on a 401 and reissues the rejected
// request with the fresh bearer token. Safe for concurrent use.
type Reauthenticator struct {
	provider         common.TokenProvider
	sink             common.EventSink
	slot             *TokenSlot
	identityProvider string
	maxRetry         int
	refreshTimeout   time.Duration
	group            *singleflight.Group
	logger           zerolog.Logger
}

var _ Authenticator = (*Reauthenticator)(nil)

// Option configures a Reauthenticator.
type Option func(*Reauthenticator)

// WithIdentityProvider selects which issued token is stored (see AccessTokenProvider).
func WithIdentityProvider(id string) Option {
	return func(r *Reauthenticator) { r.identityProvider = id }
}

// WithMaxRetry sets the retry ceiling applied when no token is available.
func WithMaxRetry(n int) Option {
	return func(r *Reauthenticator) {
		if n > 0 {
			r.maxRetry = n
		}
	}
}

// WithRefreshTimeout bounds the wait for the token provider.
func WithRefreshTimeout(d time.Duration) Option {
	return func(r *Reauthenticator) {
		if d > 0 {
			r.refreshTimeout = d
		}
	}
}

// WithCoalescedRefresh lets concurrent challenges share one in-flight refresh.
func WithCoalescedRefresh() Option {
	return func(r *Reauthenticator) { r.group = &singleflight.Group{} }
}

func WithLogger(l zerolog.Logger) Option {
	return func(r *Reauthenticator) { r.logger = l }
}

// NewReauthenticator wires a token provider and an event sink to a token
// slot. A nil slot gets a fresh empty one; a nil sink drops events.
func NewReauthenticator(provider common.TokenProvider, sink common.EventSink, slot *TokenSlot, opts ...Option) *Reauthenticator {
	if slot == nil {
		slot = NewTokenSlot("")
	}
	if sink == nil {
		sink = common.EventSinkFunc(func(string) {})
	}
	r := &Reauthenticator{
		provider:       provider,
		sink:           sink,
		slot:           slot,
		maxRetry:       DefaultMaxRetry,
		refreshTimeout: DefaultRefreshTimeout,
		logger:         log.Logger,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Slot returns the token slot shared by this reauthenticator.
func (r *Reauthenticator) Slot() *TokenSlot {
	return r.slot
}

// Authenticate refreshes the token and decides whether the rejected request
// is worth sending again.
func (r *Reauthenticator) Authenticate(ctx context.Context, ch Challenge) Decision {
	if ch.Response == nil || ch.Response.Request == nil {
		return Decision{Reason: ErrInvalidChallenge}
	}

	retry := ch.RetryCount()
	logger := r.logger.With().Int("retry", retry).Logger()
	resp := ch.Response

	refreshErr := r.applyRefresh(logger, r.refresh(ctx))

	token, ok := r.slot.Get()
	if !ok {
		logger.Error().
			Int("status", resp.StatusCode).
			Str("url", requestURL(resp.Request)).
			Msg("bearer authentication failed, no auth token available")
		if retry > r.maxRetry {
			return giveUp(ErrRetryExhausted, refreshErr)
		}
		return giveUp(ErrNoToken, refreshErr)
	}

	// the backend already rejected this exact token
	used := resp.Request.Header.Get(authorizationHeader)
	if resp.StatusCode == http.StatusUnauthorized && used != "" && used == bearerPrefix+token {
		logger.Error().
			Str("url", requestURL(resp.Request)).
			Msg("bearer authentication failed, token is not accepted by backend")
		return giveUp(ErrSameTokenRejected, refreshErr)
	}

	if resp.StatusCode == http.StatusBadRequest || resp.StatusCode > http.StatusUnauthorized {
		logger.Error().
			Int("status", resp.StatusCode).
			Str("url", requestURL(resp.Request)).
			Msg("rest call failed, status is not 401")
		return giveUp(ErrNonAuthError, refreshErr)
	}

	next := resp.Request.Clone(ctx)
	next.Header.Set(authorizationHeader, bearerPrefix+token)
	logger.Debug().Str("url", requestURL(next)).Msg("reissuing request with fresh token")
	return Decision{Request: next}
}

// applyRefresh stores a successful refresh and reports a failed one.
func (r *Reauthenticator) applyRefresh(logger zerolog.Logger, outcome common.RefreshOutcome) *common.RefreshError {
	if !outcome.Succeeded() {
		if outcome.Err.InvalidRefreshToken {
			r.sink.NotifyReauthRequired(outcome.Err.Description)
		} else {
			logger.Error().Err(outcome.Err).Msg("authorization failed")
		}
		return outcome.Err
	}

	token := r.selectToken(outcome)
	if token == "" {
		logger.Error().Str("identity_provider", r.identityProvider).Msg("refresh returned no usable token")
		return nil
	}
	r.slot.Set(token)

	exp, err := tokenExpiry(token)
	switch {
	case err != nil:
		logger.Error().Err(err).Msg("invalid JWT of token")
	case exp.IsZero():
		logger.Debug().Msg("token has no expiration time")
	default:
		logger.Debug().Time("expires_at", exp).Msg("token expiration time")
	}
	return nil
}

func (r *Reauthenticator) selectToken(outcome common.RefreshOutcome) string {
	if strings.EqualFold(r.identityProvider, AccessTokenProvider) {
		return outcome.AccessToken
	}
	return outcome.IDToken
}

func giveUp(reason error, refreshErr *common.RefreshError) Decision {
	if refreshErr != nil {
		reason = errors.Join(reason, refreshErr)
	}
	return Decision{Reason: reason}
}

func requestURL(req *http.Request) string {
	if req == nil || req.URL == nil {
		return ""
	}
	return req.URL.Redacted()
}
