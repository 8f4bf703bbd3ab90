package trestleapi

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	sdkerrors "github.com/wehubfusion/trestle/pkg/errors"
)

func TestDecodePayloadStringAndStructuredMatch(t *testing.T) {
	body := `{"id":"Phone.123","is_valid":true,"line_type":"Mobile","carrier":{"name":"T-Mobile"},"warnings":[]}`

	var structured map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(body), &structured))

	fromString, err := DecodePayload(body)
	require.NoError(t, err)
	fromStructured, err := DecodePayload(structured)
	require.NoError(t, err)
	fromBytes, err := DecodePayload([]byte(body))
	require.NoError(t, err)

	assert.Equal(t, fromStructured, fromString)
	assert.Equal(t, fromStructured, fromBytes)
}

func TestDecodePayloadInvalidJSON(t *testing.T) {
	_, err := DecodePayload("<html>bad gateway</html>")
	require.Error(t, err)
	assert.True(t, sdkerrors.IsResponseParse(err))
}

func TestDecodePayloadEmptyBody(t *testing.T) {
	payload, err := DecodePayload("  ")
	require.NoError(t, err)
	assert.Equal(t, map[string]interface{}{}, payload)
}
