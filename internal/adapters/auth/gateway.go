package auth

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/bnema/planqk-cli/internal/domain"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

// GatewayAPI acquires OAuth2 client-credentials tokens from the API gateway.
type GatewayAPI struct {
	BaseURL    string
	HTTPClient *http.Client
}

// Token requests a fresh access token. Gateway tokens carry no refresh token
// and are reacquired wholesale.
func (a GatewayAPI) Token(ctx context.Context, consumerKey string, consumerSecret string) (domain.Credential, error) {
	if consumerKey == "" || consumerSecret == "" {
		return domain.Credential{}, fmt.Errorf("%w: consumer key and secret are required", domain.ErrConfiguration)
	}

	endpoint, err := buildAPIURL(a.BaseURL, "token")
	if err != nil {
		return domain.Credential{}, err
	}

	cfg := clientcredentials.Config{
		ClientID:     consumerKey,
		ClientSecret: consumerSecret,
		TokenURL:     endpoint,
		AuthStyle:    oauth2.AuthStyleInHeader,
	}
	if a.HTTPClient != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, a.HTTPClient)
	}

	token, err := cfg.Token(ctx)
	if err != nil {
		var retrieveErr *oauth2.RetrieveError
		if errors.As(err, &retrieveErr) && retrieveErr.Response != nil {
			remoteErr := domain.NewRemoteError("request gateway token", retrieveErr.Response.StatusCode, retrieveErr.Body)
			return domain.Credential{}, fmt.Errorf("%w: %w", domain.ErrAuthentication, remoteErr)
		}
		return domain.Credential{}, fmt.Errorf("request gateway token: %w", err)
	}

	return domain.Credential{
		Kind:        domain.KindGateway,
		AccessToken: token.AccessToken,
		ExpiresIn:   expiresIn(token, time.Now()),
	}, nil
}

func expiresIn(token *oauth2.Token, now time.Time) int64 {
	switch raw := token.Extra("expires_in").(type) {
	case float64:
		return int64(raw)
	case string:
		if seconds, err := strconv.ParseInt(raw, 10, 64); err == nil {
			return seconds
		}
	}

	if token.Expiry.IsZero() {
		return 0
	}
	return int64(math.Round(token.Expiry.Sub(now).Seconds()))
}
