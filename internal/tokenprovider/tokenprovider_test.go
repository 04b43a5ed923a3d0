package tokenprovider_test

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/json"
	"encoding/pem"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"

	"github.com/cboudereau/gcs-rsync/internal/entry"
	"github.com/cboudereau/gcs-rsync/internal/tokenprovider"
)

func writeCredentials(t *testing.T, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "credentials.json")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	return path
}

func TestFromFileRejectsMissingFile(t *testing.T) {
	_, err := tokenprovider.FromFile(context.Background(), filepath.Join(t.TempDir(), "nope.json"))
	require.Error(t, err)
	require.True(t, errors.Is(err, entry.ErrConfig))
}

func TestFromFileRejectsInvalidJSON(t *testing.T) {
	path := writeCredentials(t, "not json")

	_, err := tokenprovider.FromFile(context.Background(), path)
	require.Error(t, err)
	require.True(t, errors.Is(err, entry.ErrConfig))
}

func TestFromFileRejectsUnrecognizedType(t *testing.T) {
	path := writeCredentials(t, `{"type":"mystery"}`)

	_, err := tokenprovider.FromFile(context.Background(), path)
	require.Error(t, err)
	require.True(t, errors.Is(err, entry.ErrConfig))
}

func TestFromFileRejectsIncompleteAuthorizedUser(t *testing.T) {
	path := writeCredentials(t, `{"type":"authorized_user","client_id":"x"}`)

	_, err := tokenprovider.FromFile(context.Background(), path)
	require.Error(t, err)
}

func TestFromFileRejectsIncompleteServiceAccount(t *testing.T) {
	path := writeCredentials(t, `{"type":"service_account","client_email":"x@example.com"}`)

	_, err := tokenprovider.FromFile(context.Background(), path)
	require.Error(t, err)
}

func TestAuthorizedUserSourceExchangesRefreshToken(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		require.Equal(t, "refresh_token", r.Form.Get("grant_type"))
		require.Equal(t, "refresh-me", r.Form.Get("refresh_token"))

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"access_token": "exchanged-token",
			"token_type":   "Bearer",
			"expires_in":   3600,
		})
	}))
	defer server.Close()

	path := writeCredentials(t, `{
		"type": "authorized_user",
		"client_id": "id",
		"client_secret": "secret",
		"refresh_token": "refresh-me"
	}`)

	ctx := context.WithValue(context.Background(), oauth2.HTTPClient, withTokenEndpoint(server))

	src, err := tokenprovider.FromFile(ctx, path)
	require.NoError(t, err)

	tok, err := src.Token(ctx)
	require.NoError(t, err)
	require.Equal(t, "exchanged-token", tok)
}

func TestServiceAccountSourceExchangesJWTAssertion(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	keyPEM := pem.EncodeToMemory(&pem.Block{
		Type:  "RSA PRIVATE KEY",
		Bytes: x509.MarshalPKCS1PrivateKey(key),
	})

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		require.Equal(t, "urn:ietf:params:oauth:grant-type:jwt-bearer", r.Form.Get("grant_type"))
		require.NotEmpty(t, r.Form.Get("assertion"))

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"access_token": "service-account-token",
			"token_type":   "Bearer",
			"expires_in":   3600,
		})
	}))
	defer server.Close()

	raw := map[string]string{
		"type":         "service_account",
		"client_email": "robot@example-project.iam.gserviceaccount.com",
		"private_key":  string(keyPEM),
		"token_uri":    server.URL,
	}
	data, err := json.Marshal(raw)
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "sa.json")
	require.NoError(t, os.WriteFile(path, data, 0o600))

	ctx := context.WithValue(context.Background(), oauth2.HTTPClient, server.Client())

	src, err := tokenprovider.FromFile(ctx, path)
	require.NoError(t, err)

	tok, err := src.Token(ctx)
	require.NoError(t, err)
	require.Equal(t, "service-account-token", tok)
}

// withTokenEndpoint returns an *http.Client that redirects every request to
// server regardless of the URL the caller dialed, since the authorized_user
// flow's token endpoint is the package's hardcoded Google URL rather than
// something overridable via credentials JSON.
func withTokenEndpoint(server *httptest.Server) *http.Client {
	serverURL, err := url.Parse(server.URL)
	if err != nil {
		panic(err)
	}

	return &http.Client{
		Transport: rewriteTransport{base: http.DefaultTransport, target: serverURL},
	}
}

type rewriteTransport struct {
	base   http.RoundTripper
	target *url.URL
}

func (t rewriteTransport) RoundTrip(r *http.Request) (*http.Response, error) {
	r.URL.Scheme = t.target.Scheme
	r.URL.Host = t.target.Host

	return t.base.RoundTrip(r)
}
