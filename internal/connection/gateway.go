package connection

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/bnema/planqk-cli/internal/adapters/auth"
	"github.com/bnema/planqk-cli/internal/domain"
	"github.com/bnema/planqk-cli/internal/mailbox"
	"github.com/bnema/planqk-cli/internal/ports"
	"github.com/rs/zerolog"
)

const (
	GatewayAPIRoot = "quantum"

	EnvAPI            = "PLANQK_API"
	EnvConsumerKey    = "PLANQK_CONSUMER_KEY"
	EnvConsumerSecret = "PLANQK_CONSUMER_SECRET"

	// gatewayRefreshRatio is the share of the token lifetime after which it is reacquired.
	gatewayRefreshRatio = 0.8
)

type GatewayOptions struct {
	BaseURL        string
	ConsumerKey    string
	ConsumerSecret string
	// LookupEnv resolves omitted values; defaults to os.LookupEnv.
	LookupEnv  func(key string) (string, bool)
	HTTPClient *http.Client
	Clock      ports.Clock
	Logger     zerolog.Logger
}

// GatewayConnection is a session through the third-party API gateway using
// OAuth2 client credentials.
type GatewayConnection struct {
	baseURL   string
	api       auth.GatewayAPI
	key       string
	secret    string
	tokens    *mailbox.Mailbox[domain.Credential]
	refresher *Refresher
	closeOnce sync.Once
}

var _ ports.Connection = (*GatewayConnection)(nil)

func OpenGateway(ctx context.Context, opts GatewayOptions) (*GatewayConnection, error) {
	lookup := opts.LookupEnv
	if lookup == nil {
		lookup = os.LookupEnv
	}

	baseURL, err := resolveSetting(opts.BaseURL, EnvAPI, lookup)
	if err != nil {
		return nil, err
	}
	key, err := resolveSetting(opts.ConsumerKey, EnvConsumerKey, lookup)
	if err != nil {
		return nil, err
	}
	secret, err := resolveSetting(opts.ConsumerSecret, EnvConsumerSecret, lookup)
	if err != nil {
		return nil, err
	}

	api := auth.GatewayAPI{BaseURL: baseURL, HTTPClient: opts.HTTPClient}
	credential, err := api.Token(ctx, key, secret)
	if err != nil {
		return nil, err
	}

	c := &GatewayConnection{
		baseURL: strings.TrimRight(baseURL, "/"),
		api:     api,
		key:     key,
		secret:  secret,
		tokens:  mailbox.Seeded(credential),
	}
	c.refresher = StartRefresher(c.tokens, c.renew, nil, GatewayInterval, opts.Clock, opts.Logger.With().Str("component", "gateway-refresher").Logger())

	return c, nil
}

// GatewayInterval waits 80% of the credential's reported lifetime.
func GatewayInterval(current domain.Credential) time.Duration {
	if current.ExpiresIn <= 0 {
		return DefaultRefreshInterval
	}
	return time.Duration(float64(current.ExpiresIn) * gatewayRefreshRatio * float64(time.Second))
}

func (c *GatewayConnection) renew(ctx context.Context, _ domain.Credential) (domain.Credential, error) {
	return c.api.Token(ctx, c.key, c.secret)
}

func (c *GatewayConnection) AuthHeader() (string, string, error) {
	return authHeader(c.tokens)
}

func (c *GatewayConnection) ResourceURI(parts ...string) string {
	return joinURI(c.baseURL, GatewayAPIRoot, parts...)
}

func (c *GatewayConnection) Close() {
	c.closeOnce.Do(c.refresher.Stop)
}

func (c *GatewayConnection) Refresher() *Refresher {
	return c.refresher
}

func resolveSetting(explicit string, envKey string, lookup func(string) (string, bool)) (string, error) {
	if value := strings.TrimSpace(explicit); value != "" {
		return value, nil
	}
	if value, ok := lookup(envKey); ok && strings.TrimSpace(value) != "" {
		return strings.TrimSpace(value), nil
	}
	return "", fmt.Errorf("%w: %s is not set", domain.ErrConfiguration, envKey)
}
