// Package tokenprovider implements the token-provider contract the run
// depends on: given a GOOGLE_APPLICATION_CREDENTIALS JSON file (in either
// authorized-user or service-account format), yield bearer tokens for the
// Object Client, refreshing as needed. Token acquisition itself —
// interactive consent, device-code flows, application-default discovery
// beyond reading this one file — is out of scope; only this contract is.
package tokenprovider

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/jwt"

	"github.com/cboudereau/gcs-rsync/internal/entry"
)

// EnvCredentials names the environment variable holding the credentials
// JSON file path.
const EnvCredentials = "GOOGLE_APPLICATION_CREDENTIALS"

// DefaultScope is the OAuth2 scope requested for GCS access.
const DefaultScope = "https://www.googleapis.com/auth/devstorage.read_write"

// tokenEndpoint is Google's OAuth2 token exchange endpoint.
const tokenEndpoint = "https://oauth2.googleapis.com/token"

// staleMargin is how long before its expiry an authorized-user access token
// is treated as stale and refreshed.
const staleMargin = 30 * time.Second

// credentialType distinguishes the two supported JSON credential shapes.
type credentialType string

const (
	typeAuthorizedUser credentialType = "authorized_user"
	typeServiceAccount credentialType = "service_account"
)

// rawCredentials is the union of fields across both credential JSON formats;
// Type discriminates which fields are populated.
type rawCredentials struct {
	Type string `json:"type"`

	// authorized_user fields
	ClientID     string `json:"client_id"`
	ClientSecret string `json:"client_secret"`
	RefreshToken string `json:"refresh_token"`

	// service_account fields
	ClientEmail string `json:"client_email"`
	PrivateKey  string `json:"private_key"`
	TokenURI    string `json:"token_uri"`
}

// Source adapts an oauth2.TokenSource to objectclient.TokenSource.
type Source struct {
	ts oauth2.TokenSource
}

// Token returns a valid bearer token, refreshing via the underlying
// oauth2.TokenSource if the cached one has expired. oauth2.ReuseTokenSource
// serializes concurrent refreshes internally — the single-flight guarantee
// the shared token provider requires.
func (s *Source) Token(ctx context.Context) (string, error) {
	tok, err := s.ts.Token()
	if err != nil {
		return "", fmt.Errorf("%w: %w", entry.ErrAuth, err)
	}

	return tok.AccessToken, nil
}

// FromEnv loads credentials from the path named by GOOGLE_APPLICATION_CREDENTIALS.
func FromEnv(ctx context.Context) (*Source, error) {
	path := os.Getenv(EnvCredentials)
	if path == "" {
		return nil, fmt.Errorf("%w: %s is not set", entry.ErrConfig, EnvCredentials)
	}

	return FromFile(ctx, path)
}

// FromFile loads and auto-detects an authorized-user or service-account
// credentials JSON file, returning a Source ready to mint tokens.
func FromFile(ctx context.Context, path string) (*Source, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: reading credentials file: %w", entry.ErrConfig, err)
	}

	var raw rawCredentials
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("%w: parsing credentials JSON: %w", entry.ErrConfig, err)
	}

	switch credentialType(raw.Type) {
	case typeAuthorizedUser:
		return authorizedUserSource(ctx, &raw)
	case typeServiceAccount:
		return serviceAccountSource(ctx, &raw)
	default:
		return nil, fmt.Errorf("%w: unrecognized credential type %q", entry.ErrConfig, raw.Type)
	}
}

// authorizedUserSource implements the refresh-token flow: POST to
// https://oauth2.googleapis.com/token with grant_type=refresh_token.
func authorizedUserSource(ctx context.Context, raw *rawCredentials) (*Source, error) {
	if raw.ClientID == "" || raw.ClientSecret == "" || raw.RefreshToken == "" {
		return nil, fmt.Errorf("%w: authorized_user credentials missing required fields", entry.ErrConfig)
	}

	cfg := &oauth2.Config{
		ClientID:     raw.ClientID,
		ClientSecret: raw.ClientSecret,
		Endpoint:     oauth2.Endpoint{TokenURL: tokenEndpoint},
	}

	seed := &oauth2.Token{RefreshToken: raw.RefreshToken}
	ts := oauth2.ReuseTokenSourceWithExpiry(nil, cfg.TokenSource(ctx, seed), staleMargin)

	return &Source{ts: ts}, nil
}

// serviceAccountSource implements the JWT bearer-assertion flow: an RS256
// JWT with claims {iss=client_email, scope, aud=token_uri, iat, exp=iat+3600}
// exchanged at token_uri.
func serviceAccountSource(ctx context.Context, raw *rawCredentials) (*Source, error) {
	if raw.ClientEmail == "" || raw.PrivateKey == "" {
		return nil, fmt.Errorf("%w: service_account credentials missing required fields", entry.ErrConfig)
	}

	tokenURI := raw.TokenURI
	if tokenURI == "" {
		tokenURI = tokenEndpoint
	}

	cfg := &jwt.Config{
		Email:      raw.ClientEmail,
		PrivateKey: []byte(raw.PrivateKey),
		TokenURL:   tokenURI,
		Scopes:     []string{DefaultScope},
	}

	ts := oauth2.ReuseTokenSource(nil, cfg.TokenSource(ctx))

	return &Source{ts: ts}, nil
}
