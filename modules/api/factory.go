package api

import (
	"errors"
	"net"
	"net/http"
	"net/url"
	"strconv"

	"github.com/rs/zerolog"

	"github.com/guarzo/mystuff/common"
	"github.com/guarzo/mystuff/common/config"
	"github.com/guarzo/mystuff/common/logging"
	"github.com/guarzo/mystuff/modules/auth"
)

// ErrNoTokenProvider is returned when a Factory is built without a TokenProvider.
var ErrNoTokenProvider = errors.New("token provider is required")

// Factory assembles the HTTP stack for one backend and hands out API clients.
// All clients of a factory share one token slot.
type Factory struct {
	baseURL    string
	hostName   string
	httpClient common.HttpClient
	reauth     *auth.Reauthenticator
	cache      common.CacheRepository
}

// FactoryOption customizes NewFactory.
type FactoryOption func(*factoryOptions)

type factoryOptions struct {
	base   http.RoundTripper
	logger zerolog.Logger
	token  string
}

// WithBaseTransport replaces http.DefaultTransport at the bottom of the stack.
func WithBaseTransport(rt http.RoundTripper) FactoryOption {
	return func(o *factoryOptions) { o.base = rt }
}

// WithFactoryLogger overrides the "api" component logger.
func WithFactoryLogger(l zerolog.Logger) FactoryOption {
	return func(o *factoryOptions) { o.logger = l }
}

// WithInitialToken seeds the token slot, e.g. with the token obtained at login.
func WithInitialToken(token string) FactoryOption {
	return func(o *factoryOptions) { o.token = token }
}

// NewFactory builds the transport stack
//
//	User-Agent -> auth.Transport -> logging -> base
//
// so that every attempt, reissued ones included, is logged. cache may be nil.
func NewFactory(cfg config.Config, provider common.TokenProvider, sink common.EventSink, cache common.CacheRepository, opts ...FactoryOption) (*Factory, error) {
	if provider == nil {
		return nil, ErrNoTokenProvider
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	o := factoryOptions{base: http.DefaultTransport, logger: logging.Component("api")}
	for _, opt := range opts {
		opt(&o)
	}

	reauthOpts := []auth.Option{
		auth.WithIdentityProvider(cfg.Auth.IdentityProvider),
		auth.WithMaxRetry(cfg.Auth.MaxRetry),
		auth.WithRefreshTimeout(cfg.Auth.RefreshTimeout),
		auth.WithLogger(o.logger.With().Str("component", "auth").Logger()),
	}
	if cfg.Auth.CoalesceRefresh {
		reauthOpts = append(reauthOpts, auth.WithCoalescedRefresh())
	}
	reauth := auth.NewReauthenticator(provider, sink, auth.NewTokenSlot(o.token), reauthOpts...)

	transport := auth.NewTransport(newLoggingTransport(o.base, o.logger), reauth).
		WithTokenSlot(reauth.Slot()).
		WithLogger(o.logger)
	httpClient := common.NewHttpClient(cfg.Backend.UserAgent, &http.Client{Transport: transport}, cfg.Backend.Timeout)

	return &Factory{
		baseURL:    BaseURL(cfg.Backend),
		hostName:   cfg.Backend.Host,
		httpClient: httpClient,
		reauth:     reauth,
		cache:      cache,
	}, nil
}

// BaseURL renders protocol://host:port.
func BaseURL(b config.BackendConfig) string {
	u := url.URL{
		Scheme: b.Protocol,
		Host:   net.JoinHostPort(b.Host, strconv.Itoa(b.Port)),
	}
	return u.String()
}

func (f *Factory) BaseURL() string {
	return f.baseURL
}

func (f *Factory) HostName() string {
	return f.hostName
}

// HTTPClient exposes the assembled client for callers that need raw access.
func (f *Factory) HTTPClient() common.HttpClient {
	return f.httpClient
}

// TokenSlot is the bearer token shared by every client of this factory.
func (f *Factory) TokenSlot() *auth.TokenSlot {
	return f.reauth.Slot()
}

// NewClient returns a Client bound to the factory's base URL.
func (f *Factory) NewClient() Client {
	return NewClient(f.baseURL, f.httpClient, f.cache)
}

// Close releases idle connections.
func (f *Factory) Close() {
	f.httpClient.CloseIdleConnections()
}
