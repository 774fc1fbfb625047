// Package connection owns authenticated sessions to the remote service.
//
// A connection seeds a credential mailbox, then hands it to a Refresher that
// keeps the credential fresh in the background. Callers only ever read the
// mailbox through AuthHeader.
package connection

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"net/url"
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
	DefaultBaseURL         = "https://platform.planqk.de"
	NativeAPIRoot          = "qc-catalog"
	DefaultRefreshInterval = 900 * time.Second
)

type Options struct {
	BaseURL         string
	HTTPClient      *http.Client
	RequestTimeout  time.Duration
	RefreshInterval time.Duration
	Clock           ports.Clock
	Logger          zerolog.Logger
}

func (o Options) withDefaults() Options {
	if strings.TrimSpace(o.BaseURL) == "" {
		o.BaseURL = DefaultBaseURL
	}
	if o.RefreshInterval <= 0 {
		o.RefreshInterval = DefaultRefreshInterval
	}
	if o.Clock == nil {
		o.Clock = ports.SystemClock{}
	}
	return o
}

type LoginOptions struct {
	ListenAddr string
	// Assets overrides the embedded login page.
	Assets fs.FS
	// OpenBrowser defaults to auth.OpenBrowser.
	OpenBrowser func(url string) error
}

// Connection is a session against the native service.
type Connection struct {
	baseURL   string
	api       auth.NativeAPI
	tokens    *mailbox.Mailbox[domain.Credential]
	limits    *mailbox.Mailbox[domain.UsageLimits]
	refresher *Refresher
	logger    zerolog.Logger
	closeOnce sync.Once
}

var _ ports.Connection = (*Connection)(nil)

// OpenInteractive runs a one-shot loopback login server, points the browser at
// it and blocks until the user signs in successfully or ctx is done.
func OpenInteractive(ctx context.Context, opts Options, login LoginOptions) (*Connection, error) {
	opts = opts.withDefaults()
	api := nativeAPI(opts)

	server, err := auth.StartLoginServer(login.ListenAddr, login.Assets, api.SignIn, opts.Logger)
	if err != nil {
		return nil, fmt.Errorf("start login server: %w", err)
	}

	loginURL := server.URL()
	opts.Logger.Info().Str("url", loginURL).Msg("sign in through your browser")

	openBrowser := login.OpenBrowser
	if openBrowser == nil {
		openBrowser = auth.OpenBrowser
	}
	if err := openBrowser(loginURL); err != nil {
		opts.Logger.Warn().Err(err).Str("url", loginURL).Msg("could not launch a browser, open the URL manually")
	}

	credential, err := server.Wait(ctx)
	if err != nil {
		return nil, fmt.Errorf("wait for interactive login: %w", err)
	}

	return open(ctx, opts, api, credential)
}

// OpenWithRefreshToken validates a stored refresh token by refreshing it once.
func OpenWithRefreshToken(ctx context.Context, opts Options, refreshToken string) (*Connection, error) {
	opts = opts.withDefaults()
	api := nativeAPI(opts)

	credential, err := api.Refresh(ctx, refreshToken)
	if err != nil {
		return nil, err
	}

	return open(ctx, opts, api, credential)
}

// OpenWithPassword signs in with direct credentials. Prefer OpenInteractive.
func OpenWithPassword(ctx context.Context, opts Options, email string, password string) (*Connection, error) {
	opts = opts.withDefaults()
	api := nativeAPI(opts)

	credential, err := api.SignIn(ctx, email, password)
	if err != nil {
		return nil, err
	}

	return open(ctx, opts, api, credential)
}

// OpenFromTokenFile restores a session saved with SaveTokenFile. The file's
// url replaces opts.BaseURL. A malformed file fails before any network call.
func OpenFromTokenFile(ctx context.Context, opts Options, store ports.TokenStore, path string) (*Connection, error) {
	file, err := store.Load(ctx, path)
	if err != nil {
		return nil, err
	}

	opts.BaseURL = file.URL
	return OpenWithRefreshToken(ctx, opts, file.Token)
}

func open(ctx context.Context, opts Options, api auth.NativeAPI, credential domain.Credential) (*Connection, error) {
	limits, err := api.FetchUsageLimits(ctx, credential.AccessToken)
	if err != nil {
		if errors.Is(err, domain.ErrAuthentication) {
			return nil, err
		}
		opts.Logger.Warn().Err(err).Msg("usage limits unavailable")
		limits = domain.UsageLimits{}
	}

	c := &Connection{
		baseURL: strings.TrimRight(opts.BaseURL, "/"),
		api:     api,
		tokens:  mailbox.Seeded(credential),
		limits:  mailbox.Seeded(limits),
		logger:  opts.Logger,
	}

	interval := opts.RefreshInterval
	c.refresher = StartRefresher(c.tokens, c.renew, c.refreshLimits, func(domain.Credential) time.Duration {
		return interval
	}, opts.Clock, opts.Logger.With().Str("component", "refresher").Logger())

	return c, nil
}

func nativeAPI(opts Options) auth.NativeAPI {
	return auth.NativeAPI{
		Root:           joinURI(opts.BaseURL, NativeAPIRoot),
		HTTPClient:     opts.HTTPClient,
		RequestTimeout: opts.RequestTimeout,
	}
}

func (c *Connection) renew(ctx context.Context, current domain.Credential) (domain.Credential, error) {
	return c.api.Refresh(ctx, current.RefreshToken)
}

// refreshLimits runs once the renewed credential is already visible to readers.
func (c *Connection) refreshLimits(ctx context.Context, next domain.Credential) {
	limits, err := c.api.FetchUsageLimits(ctx, next.AccessToken)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		c.logger.Warn().Err(err).Msg("usage limits refresh failed, keeping previous values")
		return
	}
	c.limits.TakeForUpdate()
	c.limits.Publish(limits)
}

func (c *Connection) AuthHeader() (string, string, error) {
	return authHeader(c.tokens)
}

func (c *Connection) ResourceURI(parts ...string) string {
	return joinURI(c.baseURL, NativeAPIRoot, parts...)
}

func (c *Connection) BaseURL() string {
	return c.baseURL
}

func (c *Connection) Limits() domain.UsageLimits {
	return c.limits.Peek()
}

// SaveTokenFile persists the base URL and the current refresh token.
func (c *Connection) SaveTokenFile(ctx context.Context, store ports.TokenStore, path string) error {
	credential := c.tokens.Peek()
	if credential.IsEmpty() || credential.RefreshToken == "" {
		return fmt.Errorf("%w: no refresh token to save", domain.ErrAuthentication)
	}

	return store.Save(ctx, path, ports.TokenFile{URL: c.baseURL, Token: credential.RefreshToken})
}

// Close stops the refresher without waiting for it. Safe to call repeatedly.
func (c *Connection) Close() {
	c.closeOnce.Do(c.refresher.Stop)
}

func (c *Connection) Refresher() *Refresher {
	return c.refresher
}

func authHeader(tokens *mailbox.Mailbox[domain.Credential]) (string, string, error) {
	credential := tokens.Peek()
	if credential.IsEmpty() {
		return "", "", fmt.Errorf("%w: connection is no longer authenticated; reconnect", domain.ErrAuthentication)
	}
	return "Authorization", credential.BearerValue(), nil
}

func joinURI(base string, root string, parts ...string) string {
	segments := []string{strings.TrimRight(strings.TrimSpace(base), "/")}
	if trimmed := strings.Trim(root, "/"); trimmed != "" {
		segments = append(segments, trimmed)
	}
	for _, part := range parts {
		trimmed := strings.Trim(part, "/")
		if trimmed == "" {
			continue
		}
		segments = append(segments, url.PathEscape(trimmed))
	}
	return strings.Join(segments, "/")
}
