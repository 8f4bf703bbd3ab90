package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/wehubfusion/trestle/pkg/concurrency"
	"github.com/wehubfusion/trestle/pkg/message"
)

func newTrestleServer(t *testing.T) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("x-api-key") != "cli-key" {
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"message":"unauthorized"}`))
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]interface{}{"phone_number": r.URL.Query().Get("phone")})
	}))
	t.Cleanup(server.Close)
	t.Setenv("TRESTLE_BASE_URL", server.URL)
	t.Setenv("TRESTLE_API_KEY", "cli-key")
	return server
}

func execute(t *testing.T, stdin string, args ...string) (*message.BatchResponse, error) {
	t.Helper()
	envFile := filepath.Join(t.TempDir(), "missing.env")

	cmd := RootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(append([]string{"--env-file", envFile, "--log-level", "error"}, args...))

	err := cmd.Execute()
	if out.Len() == 0 {
		return nil, err
	}
	resp, decodeErr := message.ResponseFromBytes(out.Bytes())
	require.NoError(t, decodeErr)
	return resp, err
}

func TestRunPrintsResults(t *testing.T) {
	newTrestleServer(t)

	resp, err := execute(t, "", "run",
		"--config", `{"phoneSource":"field","phoneField":"mobile"}`,
		"--items", `[{"mobile":"+14155550001"},{"mobile":"+14155550002"}]`,
		"--workers", "2")
	require.NoError(t, err)
	require.Len(t, resp.Results, 2)
	assert.Equal(t, map[string]interface{}{"phone_number": "+14155550002"}, resp.Results[1].Payload)
	assert.Equal(t, 1, resp.Results[1].PairedItem)
}

func TestRunReadsItemsFromStdinAndFile(t *testing.T) {
	newTrestleServer(t)
	configPath := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(configPath, []byte(`{"phoneSource":"field","phoneField":"mobile"}`), 0o600))

	resp, err := execute(t, `[{"mobile":"+14155550009"}]`, "run", "--config", "@"+configPath, "--items", "-")
	require.NoError(t, err)
	require.Len(t, resp.Results, 1)
	assert.True(t, resp.Results[0].Success)
}

func TestRunAbortReturnsError(t *testing.T) {
	newTrestleServer(t)

	resp, err := execute(t, "", "run",
		"--config", `{"phoneSource":"field","phoneField":"mobile"}`,
		"--items", `[{"mobile":"+14155550001"},{}]`)
	assert.ErrorIs(t, err, errBatchAborted)
	require.NotNil(t, resp)
	require.NotNil(t, resp.ItemIndex)
	assert.Equal(t, 1, *resp.ItemIndex)
}

func TestRunContinueOnFailWithItemParams(t *testing.T) {
	newTrestleServer(t)

	resp, err := execute(t, "", "run",
		"--config", `{"phone":"+14155550000"}`,
		"--items", `[{},{}]`,
		"--item-params", `[{},{"phone":""}]`,
		"--continue-on-fail")
	require.NoError(t, err)
	require.Len(t, resp.Results, 2)
	assert.True(t, resp.Results[0].Success)
	assert.Equal(t, "Phone number is required", resp.Results[1].ErrorMessage)
}

func TestRunMissingAPIKeyAborts(t *testing.T) {
	newTrestleServer(t)
	t.Setenv("TRESTLE_API_KEY", "")

	resp, err := execute(t, "", "run", "--config", `{"phone":"+14155550000"}`, "--continue-on-fail")
	assert.ErrorIs(t, err, errBatchAborted)
	require.NotNil(t, resp)
	assert.Nil(t, resp.ItemIndex)
	assert.Contains(t, resp.Error, "TRESTLE_API_KEY")
}

func TestRunRejectsBadItems(t *testing.T) {
	resp, err := execute(t, "", "run", "--items", `{"not":"an array"}`)
	assert.Nil(t, resp)
	assert.ErrorContains(t, err, "--items")
}

func TestRunInvalidLogLevel(t *testing.T) {
	cmd := RootCmd()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetArgs([]string{"--env-file", filepath.Join(t.TempDir(), "x.env"), "--log-level", "loud", "run"})
	assert.ErrorContains(t, cmd.Execute(), "invalid log level")
}

func TestLimiterFields(t *testing.T) {
	limiter := concurrency.NewLimiter(3)
	require.NoError(t, limiter.Do(context.Background(), func() error { return nil }))

	core, logs := observer.New(zap.DebugLevel)
	zap.New(core).Debug("Limiter stats", limiterFields(limiter)...)

	entries := logs.FilterMessage("Limiter stats").All()
	require.Len(t, entries, 1)
	fields := entries[0].ContextMap()
	assert.Equal(t, int64(3), fields["capacity"])
	assert.Equal(t, int64(1), fields["acquired"])
	assert.Equal(t, int64(1), fields["peak_concurrent"])
	assert.Contains(t, fields, "avg_wait")
}
