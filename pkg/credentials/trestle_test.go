package credentials

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTrestleAPIAuthenticate(t *testing.T) {
	cred := &TrestleAPI{APIKey: "secret-key"}
	require.NoError(t, cred.Validate())

	header := http.Header{}
	cred.Authenticate(header)
	assert.Equal(t, "secret-key", header.Get("x-api-key"))
	assert.NotContains(t, cred.String(), "secret-key")
}

func TestTrestleAPIValidate(t *testing.T) {
	assert.ErrorIs(t, (&TrestleAPI{}).Validate(), ErrMissingAPIKey)

	var nilCred *TrestleAPI
	assert.ErrorIs(t, nilCred.Validate(), ErrMissingAPIKey)
}

func TestStaticProvider(t *testing.T) {
	ctx := context.Background()

	cred, err := Static{APIKey: "k"}.GetCredentials(ctx, TrestleAPIName)
	require.NoError(t, err)
	assert.Equal(t, "k", cred.APIKey)

	_, err = Static{APIKey: "k"}.GetCredentials(ctx, "otherApi")
	assert.Error(t, err)

	_, err = Static{}.GetCredentials(ctx, TrestleAPIName)
	assert.ErrorIs(t, err, ErrMissingAPIKey)
}

func TestEnvProvider(t *testing.T) {
	t.Setenv("TEST_TRESTLE_KEY", "from-env")

	cred, err := EnvProvider{Var: "TEST_TRESTLE_KEY"}.GetCredentials(context.Background(), TrestleAPIName)
	require.NoError(t, err)
	assert.Equal(t, "from-env", cred.APIKey)

	t.Setenv(APIKeyEnvVar, "")
	_, err = EnvProvider{}.GetCredentials(context.Background(), TrestleAPIName)
	assert.ErrorIs(t, err, ErrMissingAPIKey)
	assert.Contains(t, err.Error(), APIKeyEnvVar)
}
