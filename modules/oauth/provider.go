package oauth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/oauth2"

	"github.com/guarzo/mystuff/common"
)

const invalidGrant = "invalid_grant"

// ErrNoRefreshToken is returned when no refresh token has been stored yet.
var ErrNoRefreshToken = errors.New("no refresh token available")

// Settings describe the identity provider's token endpoint.
type Settings struct {
	TokenURL     string
	ClientID     string
	ClientSecret string
	Scopes       []string
	RefreshToken string
	// HTTPClient is used for token requests; nil means http.DefaultClient.
	HTTPClient *http.Client
}

// Provider refreshes tokens against an OAuth2 token endpoint. It keeps the
// latest refresh token, following rotation by the identity provider.
type Provider struct {
	config     *oauth2.Config
	httpClient *http.Client
	logger     zerolog.Logger

	mu           sync.Mutex
	refreshToken string
}

var (
	_ common.TokenProvider = (*Provider)(nil)
	_ common.AuthClient    = (*Provider)(nil)
)

// NewProvider constructs a Provider from s.
func NewProvider(s Settings) *Provider {
	return &Provider{
		config: &oauth2.Config{
			ClientID:     s.ClientID,
			ClientSecret: s.ClientSecret,
			Scopes:       s.Scopes,
			Endpoint: oauth2.Endpoint{
				TokenURL:  s.TokenURL,
				AuthStyle: oauth2.AuthStyleInParams,
			},
		},
		httpClient:   s.HTTPClient,
		logger:       log.Logger.With().Str("component", "oauth").Logger(),
		refreshToken: s.RefreshToken,
	}
}

// SetRefreshToken stores the refresh token obtained at login.
func (p *Provider) SetRefreshToken(token string) {
	p.mu.Lock()
	p.refreshToken = token
	p.mu.Unlock()
}

func (p *Provider) currentRefreshToken() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.refreshToken
}

// RefreshToken exchanges refreshToken for a new token set.
func (p *Provider) RefreshToken(ctx context.Context, refreshToken string) (*oauth2.Token, error) {
	if refreshToken == "" {
		return nil, ErrNoRefreshToken
	}
	if p.httpClient != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, p.httpClient)
	}
	// an empty access token is never valid, so the source always refreshes
	tok, err := p.config.TokenSource(ctx, &oauth2.Token{RefreshToken: refreshToken}).Token()
	if err != nil {
		return nil, fmt.Errorf("refresh token exchange failed: %w", err)
	}
	return tok, nil
}

// PerformActionWithFreshTokens refreshes on its own goroutine and reports
// the outcome to done exactly once.
func (p *Provider) PerformActionWithFreshTokens(ctx context.Context, done func(common.RefreshOutcome)) {
	go func() {
		done(p.refresh(ctx))
	}()
}

func (p *Provider) refresh(ctx context.Context) common.RefreshOutcome {
	rt := p.currentRefreshToken()
	if rt == "" {
		return common.RefreshOutcome{Err: &common.RefreshError{
			InvalidRefreshToken: true,
			Description:         ErrNoRefreshToken.Error(),
			Cause:               ErrNoRefreshToken,
		}}
	}

	tok, err := p.RefreshToken(ctx, rt)
	if err != nil {
		return common.RefreshOutcome{Err: classify(err)}
	}

	if tok.RefreshToken != "" && tok.RefreshToken != rt {
		p.mu.Lock()
		// keep a newer rotation from a concurrent refresh
		if p.refreshToken == rt {
			p.refreshToken = tok.RefreshToken
		}
		p.mu.Unlock()
		p.logger.Debug().Msg("refresh token rotated")
	}

	idToken, _ := tok.Extra("id_token").(string)
	return common.RefreshSuccess(tok.AccessToken, idToken)
}

// classify maps token endpoint errors onto RefreshError.
func classify(err error) *common.RefreshError {
	var re *oauth2.RetrieveError
	if !errors.As(err, &re) {
		return &common.RefreshError{Description: err.Error(), Cause: err}
	}

	description := re.ErrorDescription
	if description == "" {
		description = re.ErrorCode
	}
	if description == "" {
		description = err.Error()
	}
	invalid := re.ErrorCode == invalidGrant || re.ErrorDescription == common.InvalidRefreshTokenDescription
	return &common.RefreshError{
		InvalidRefreshToken: invalid,
		Description:         description,
		Cause:               err,
	}
}
