package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/bnema/planqk-cli/internal/domain"
	"github.com/tidwall/gjson"
)

const maxResponseBytes = 1 << 20

// NativeAPI talks to the sign-in, refresh and limits endpoints of the native service.
type NativeAPI struct {
	// Root is the API root every endpoint path is resolved against.
	Root           string
	HTTPClient     *http.Client
	RequestTimeout time.Duration
}

type signInRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

type tokenResponse struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
}

func (a NativeAPI) SignIn(ctx context.Context, email string, password string) (domain.Credential, error) {
	if strings.TrimSpace(email) == "" {
		return domain.Credential{}, fmt.Errorf("%w: email is required", domain.ErrInvalidArgument)
	}
	if password == "" {
		return domain.Credential{}, fmt.Errorf("%w: password is required", domain.ErrInvalidArgument)
	}

	return a.postTokens(ctx, "sign-in", "sign in", signInRequest{Email: email, Password: password})
}

// Refresh exchanges a refresh token for a new credential. A response without a
// rotated refresh token keeps the one that was sent.
func (a NativeAPI) Refresh(ctx context.Context, refreshToken string) (domain.Credential, error) {
	if strings.TrimSpace(refreshToken) == "" {
		return domain.Credential{}, fmt.Errorf("%w: refresh token is required", domain.ErrInvalidArgument)
	}

	credential, err := a.postTokens(ctx, "access-token", "refresh access token", refreshRequest{RefreshToken: refreshToken})
	if err != nil {
		return domain.Credential{}, err
	}
	if credential.RefreshToken == "" {
		credential.RefreshToken = refreshToken
	}
	return credential, nil
}

func (a NativeAPI) FetchUsageLimits(ctx context.Context, accessToken string) (domain.UsageLimits, error) {
	endpoint, err := buildAPIURL(a.Root, "users/limits")
	if err != nil {
		return domain.UsageLimits{}, err
	}

	requestCtx, cancel := a.requestContext(ctx)
	defer cancel()
	req, err := http.NewRequestWithContext(requestCtx, http.MethodGet, endpoint, nil)
	if err != nil {
		return domain.UsageLimits{}, fmt.Errorf("create usage limits request: %w", err)
	}
	req.Header.Set("Authorization", domain.Credential{AccessToken: accessToken}.BearerValue())
	req.Header.Set("Accept", "application/json")

	body, err := a.do(req, "fetch usage limits")
	if err != nil {
		return domain.UsageLimits{}, err
	}

	doc := domain.Document(body)
	limits := domain.UsageLimits{
		ExecutionCount: doc.Get("executionCount").Int(),
		ExecutionTime:  time.Duration(doc.Get("executionTime").Int()) * time.Second,
		MaxTimeout:     time.Duration(firstInt(doc, "maxTimeout", "timeout")) * time.Second,
	}
	return limits, nil
}

func (a NativeAPI) postTokens(ctx context.Context, path string, errContext string, payload any) (domain.Credential, error) {
	endpoint, err := buildAPIURL(a.Root, path)
	if err != nil {
		return domain.Credential{}, err
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return domain.Credential{}, fmt.Errorf("encode %s request: %w", errContext, err)
	}

	requestCtx, cancel := a.requestContext(ctx)
	defer cancel()
	req, err := http.NewRequestWithContext(requestCtx, http.MethodPost, endpoint, bytes.NewReader(data))
	if err != nil {
		return domain.Credential{}, fmt.Errorf("create %s request: %w", errContext, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	body, err := a.do(req, errContext)
	if err != nil {
		var remoteErr *domain.RemoteError
		if errors.As(err, &remoteErr) && remoteErr.StatusCode < http.StatusInternalServerError {
			return domain.Credential{}, fmt.Errorf("%w: %w", domain.ErrAuthentication, err)
		}
		return domain.Credential{}, err
	}

	var tokens tokenResponse
	if err := json.Unmarshal(body, &tokens); err != nil {
		return domain.Credential{}, fmt.Errorf("decode %s response: %w", errContext, err)
	}
	if tokens.AccessToken == "" {
		return domain.Credential{}, fmt.Errorf("%w: %s response missing access token", domain.ErrAuthentication, errContext)
	}

	return domain.Credential{
		Kind:         domain.KindNative,
		AccessToken:  tokens.AccessToken,
		RefreshToken: tokens.RefreshToken,
	}, nil
}

func (a NativeAPI) do(req *http.Request, errContext string) ([]byte, error) {
	resp, err := a.httpClient().Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", errContext, err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("%s: read response: %w", errContext, err)
	}

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return nil, domain.NewRemoteError(errContext, resp.StatusCode, body)
	}

	return body, nil
}

func (a NativeAPI) httpClient() *http.Client {
	if a.HTTPClient != nil {
		return a.HTTPClient
	}
	return http.DefaultClient
}

func (a NativeAPI) requestContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if _, hasDeadline := ctx.Deadline(); hasDeadline || a.RequestTimeout <= 0 {
		return ctx, func() {}
	}

	return context.WithTimeout(ctx, a.RequestTimeout)
}

func firstInt(doc domain.Document, paths ...string) int64 {
	for _, path := range paths {
		if value := doc.Get(path); value.Exists() && value.Type == gjson.Number {
			return value.Int()
		}
	}
	return 0
}

func buildAPIURL(root string, path string) (string, error) {
	if root == "" {
		return "", fmt.Errorf("%w: api root url is required", domain.ErrConfiguration)
	}
	if path == "" {
		return "", errors.New("api path is required")
	}

	parsed, err := url.Parse(root)
	if err != nil {
		return "", fmt.Errorf("parse api root url: %w", err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return "", fmt.Errorf("%w: api root url must use http or https", domain.ErrConfiguration)
	}
	if parsed.Host == "" {
		return "", fmt.Errorf("%w: api root url host is required", domain.ErrConfiguration)
	}
	if !strings.HasSuffix(parsed.Path, "/") {
		parsed.Path += "/"
	}

	endpoint, err := parsed.Parse(path)
	if err != nil {
		return "", fmt.Errorf("parse api path: %w", err)
	}
	return endpoint.String(), nil
}
