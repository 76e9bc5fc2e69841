// Package auth reauthenticates HTTP requests rejected with 401 Unauthorized.
//
// # Overview
//
// A Reauthenticator is consulted whenever the backend answers a request with
// 401. It asks a common.TokenProvider for fresh credentials, stores the
// selected token in a shared TokenSlot and either returns a copy of the failed
// request carrying "Authorization: Bearer <token>" or gives up, in which case
// the caller surfaces the last response unchanged.
//
// Transport plugs a Reauthenticator into net/http: it is an http.RoundTripper
// that keeps the chain of rejected responses for one logical request and
// resends the reissued request until the Reauthenticator gives up.
//
// # Refresh bridging
//
// Token providers are asynchronous and callback based. Each Authenticate call
// waits for its own refresh on a one-shot channel, bounded by a timeout and by
// the request context. A timeout is treated as a failed refresh.
//
// # Error Handling
//
// Nothing escapes Authenticate. Give-up reasons are reported in
// Decision.Reason and can be matched with errors.Is against ErrNoToken,
// ErrRetryExhausted, ErrSameTokenRejected, ErrNonAuthError and
// ErrInvalidChallenge. When a refresh failure contributed, the reason also
// wraps the *common.RefreshError.
package auth
