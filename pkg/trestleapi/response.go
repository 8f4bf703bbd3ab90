package trestleapi

import (
	"bytes"
	"encoding/json"

	sdkerrors "github.com/wehubfusion/trestle/pkg/errors"
)

// DecodePayload normalizes a transport response into a structured payload.
// JSON text (string, []byte or json.RawMessage) is parsed; any other value is
// assumed to be structured already and returned unchanged. An empty body decodes
// to an empty object.
func DecodePayload(raw interface{}) (interface{}, error) {
	var data []byte
	switch v := raw.(type) {
	case string:
		data = []byte(v)
	case []byte:
		data = v
	case json.RawMessage:
		data = v
	default:
		return raw, nil
	}

	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return map[string]interface{}{}, nil
	}

	var payload interface{}
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, sdkerrors.NewResponseParseError(err)
	}
	return payload, nil
}
