package auth

import (
	"bytes"
	"io"
	"net/http"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// DefaultMaxFollowUps caps the reissued requests for one logical request.
const DefaultMaxFollowUps = 20

// maxDrainBytes bounds how much of a rejected body is read before closing it
// so the connection can be reused.
const maxDrainBytes = 64 << 10

// Transport is an http.RoundTripper that answers 401 responses through an
// Authenticator, resending the reissued request until it gives up.
type Transport struct {
	base          http.RoundTripper
	authenticator Authenticator
	maxFollowUps  int
	slot          *TokenSlot
	logger        zerolog.Logger
}

// NewTransport wraps base (http.DefaultTransport when nil).
func NewTransport(base http.RoundTripper, authenticator Authenticator) *Transport {
	if base == nil {
		base = http.DefaultTransport
	}
	return &Transport{
		base:          base,
		authenticator: authenticator,
		maxFollowUps:  DefaultMaxFollowUps,
		logger:        log.Logger,
	}
}

// WithMaxFollowUps overrides DefaultMaxFollowUps.
func (t *Transport) WithMaxFollowUps(n int) *Transport {
	if n > 0 {
		t.maxFollowUps = n
	}
	return t
}

// WithTokenSlot attaches the slot's token to requests that carry no
// Authorization header, sparing a 401 round trip once a token is known.
func (t *Transport) WithTokenSlot(slot *TokenSlot) *Transport {
	t.slot = slot
	return t
}

func (t *Transport) WithLogger(l zerolog.Logger) *Transport {
	t.logger = l
	return t
}

// RoundTrip sends req and handles 401 challenges. On give-up, or when the
// follow-up limit is reached, the last response is returned unchanged.
func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	current, err := replayable(req)
	if err != nil {
		return nil, err
	}
	current = t.attachToken(current)

	var prior []*http.Response
	for {
		resp, err := t.base.RoundTrip(current)
		if err != nil {
			return nil, err
		}
		if resp.Request == nil {
			resp.Request = current
		}
		if resp.StatusCode != http.StatusUnauthorized || t.authenticator == nil {
			return resp, nil
		}
		if len(prior) >= t.maxFollowUps {
			t.logger.Warn().Int("follow_ups", len(prior)).Msg("too many follow-up requests")
			return resp, nil
		}
		if req.Context().Err() != nil {
			return resp, nil
		}

		decision := t.authenticator.Authenticate(req.Context(), Challenge{Response: resp, Prior: prior})
		if !decision.Reissue() {
			t.logger.Debug().Err(decision.Reason).Msg("giving up on challenge")
			return resp, nil
		}

		next, err := rewind(decision.Request)
		if err != nil {
			t.logger.Error().Err(err).Msg("cannot replay request body")
			return resp, nil
		}

		drain(resp)
		prior = append([]*http.Response{resp}, prior...)
		current = next
	}
}

func (t *Transport) attachToken(req *http.Request) *http.Request {
	if t.slot == nil || req.Header.Get(authorizationHeader) != "" {
		return req
	}
	token, ok := t.slot.Get()
	if !ok {
		return req
	}
	clone := req.Clone(req.Context())
	clone.Header.Set(authorizationHeader, bearerPrefix+token)
	return clone
}

// replayable makes sure req's body can be sent more than once.
func replayable(req *http.Request) (*http.Request, error) {
	if req.Body == nil || req.Body == http.NoBody || req.GetBody != nil {
		return req, nil
	}
	data, err := io.ReadAll(req.Body)
	_ = req.Body.Close()
	if err != nil {
		return nil, err
	}
	clone := req.Clone(req.Context())
	clone.Body = io.NopCloser(bytes.NewReader(data))
	clone.GetBody = func() (io.ReadCloser, error) {
		return io.NopCloser(bytes.NewReader(data)), nil
	}
	return clone, nil
}

// rewind gives a reissued request a fresh copy of its body.
func rewind(req *http.Request) (*http.Request, error) {
	if req.Body == nil || req.Body == http.NoBody || req.GetBody == nil {
		return req, nil
	}
	body, err := req.GetBody()
	if err != nil {
		return nil, err
	}
	req.Body = body
	return req, nil
}

func drain(resp *http.Response) {
	if resp.Body == nil {
		return
	}
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxDrainBytes))
	_ = resp.Body.Close()
}
