// Package credentials holds the secrets the Trestle node needs and the providers that
// source them from the host.
package credentials

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
)

const (
	// TrestleAPIName is the credential name the Trestle node requests from its provider.
	TrestleAPIName = "trestleApi"

	// APIKeyHeader is the header the API key is injected into.
	APIKeyHeader = "x-api-key"

	// APIKeyEnvVar is read by EnvProvider.
	APIKeyEnvVar = "TRESTLE_API_KEY"
)

// ErrMissingAPIKey is returned when a credential has no API key.
var ErrMissingAPIKey = errors.New("trestle api key is required")

// TrestleAPI is the Trestle API credential.
type TrestleAPI struct {
	APIKey string `json:"apiKey"`
}

// Validate checks that an API key is present. The key format is not checked.
func (c *TrestleAPI) Validate() error {
	if c == nil || c.APIKey == "" {
		return ErrMissingAPIKey
	}
	return nil
}

// Authenticate injects the API key header.
func (c *TrestleAPI) Authenticate(header http.Header) {
	header.Set(APIKeyHeader, c.APIKey)
}

// String masks the key so credentials can be logged safely.
func (c *TrestleAPI) String() string {
	if c == nil || c.APIKey == "" {
		return "TrestleAPI{apiKey: <empty>}"
	}
	return "TrestleAPI{apiKey: ****}"
}

// Provider sources credentials by name from the host's secret store.
type Provider interface {
	GetCredentials(ctx context.Context, name string) (*TrestleAPI, error)
}

// Static is a Provider that always returns the same key.
type Static struct {
	APIKey string
}

// GetCredentials returns the static credential.
func (s Static) GetCredentials(_ context.Context, name string) (*TrestleAPI, error) {
	if name != TrestleAPIName {
		return nil, fmt.Errorf("unknown credential %q", name)
	}
	cred := &TrestleAPI{APIKey: s.APIKey}
	if err := cred.Validate(); err != nil {
		return nil, err
	}
	return cred, nil
}

// EnvProvider reads the API key from the environment on every call.
type EnvProvider struct {
	// Var overrides APIKeyEnvVar when set.
	Var string
}

// GetCredentials returns the credential built from the environment.
func (p EnvProvider) GetCredentials(ctx context.Context, name string) (*TrestleAPI, error) {
	key := p.Var
	if key == "" {
		key = APIKeyEnvVar
	}
	cred, err := Static{APIKey: os.Getenv(key)}.GetCredentials(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("failed to load credentials from %s: %w", key, err)
	}
	return cred, nil
}
