package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/bnema/planqk-cli/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
)

func TestGatewayTokenUsesBasicAuthClientCredentials(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/token", r.URL.Path)

		user, pass, ok := r.BasicAuth()
		require.True(t, ok)
		assert.Equal(t, "key", user)
		assert.Equal(t, "secret", pass)

		require.NoError(t, r.ParseForm())
		assert.Equal(t, "client_credentials", r.Form.Get("grant_type"))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"gw-token","token_type":"Bearer","expires_in":3600}`))
	}))
	defer server.Close()

	credential, err := GatewayAPI{BaseURL: server.URL}.Token(context.Background(), "key", "secret")
	require.NoError(t, err)
	assert.Equal(t, domain.KindGateway, credential.Kind)
	assert.Equal(t, "gw-token", credential.AccessToken)
	assert.Empty(t, credential.RefreshToken)
	assert.Equal(t, int64(3600), credential.ExpiresIn)
}

func TestGatewayTokenRejected(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"message":"invalid client"}`))
	}))
	defer server.Close()

	_, err := GatewayAPI{BaseURL: server.URL}.Token(context.Background(), "key", "bad")
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrAuthentication)
	assert.Contains(t, err.Error(), "request gateway token: invalid client")
}

func TestGatewayTokenRequiresCredentials(t *testing.T) {
	t.Parallel()

	_, err := GatewayAPI{BaseURL: "https://gateway.example.com"}.Token(context.Background(), "", "")
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrConfiguration)
}

func TestExpiresInFallsBackToExpiry(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 10, 18, 12, 0, 0, 0, time.UTC)
	token := &oauth2.Token{AccessToken: "at", Expiry: now.Add(90 * time.Second)}

	assert.Equal(t, int64(90), expiresIn(token, now))
	assert.Equal(t, int64(0), expiresIn(&oauth2.Token{AccessToken: "at"}, now))
}
