package trestle_test

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/wehubfusion/trestle/pkg/credentials"
	"github.com/wehubfusion/trestle/pkg/embedded/processors/trestle"
	"github.com/wehubfusion/trestle/pkg/embedded/runtime"
	sdkerrors "github.com/wehubfusion/trestle/pkg/errors"
	"github.com/wehubfusion/trestle/pkg/trestleapi"
)

const testAPIKey = "test-key"

type capturedRequest struct {
	Method string
	Path   string
	Query  map[string][]string
	Raw    string
	Header http.Header
	Body   map[string]interface{}
}

// fakeTrestle is an httptest server that records every request and answers
// with a JSON echo of the phone it was asked about.
type fakeTrestle struct {
	server   *httptest.Server
	mu       sync.Mutex
	requests []capturedRequest
	hits     atomic.Int32
	handler  func(w http.ResponseWriter, r *http.Request, body map[string]interface{})
}

func newFakeTrestle(t *testing.T) *fakeTrestle {
	t.Helper()
	f := &fakeTrestle{}
	f.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f.hits.Add(1)
		var body map[string]interface{}
		if data, _ := io.ReadAll(r.Body); len(data) > 0 {
			_ = json.Unmarshal(data, &body)
		}
		f.mu.Lock()
		f.requests = append(f.requests, capturedRequest{
			Method: r.Method,
			Path:   r.URL.Path,
			Query:  r.URL.Query(),
			Raw:    r.URL.RawQuery,
			Header: r.Header.Clone(),
			Body:   body,
		})
		f.mu.Unlock()

		if f.handler != nil {
			f.handler(w, r, body)
			return
		}
		phone := r.URL.Query().Get("phone")
		if body != nil {
			phone, _ = body["phone"].(string)
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]interface{}{"phone_number": phone, "is_valid": true})
	}))
	t.Cleanup(f.server.Close)
	return f
}

func (f *fakeTrestle) captured() []capturedRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]capturedRequest(nil), f.requests...)
}

func newNode(t *testing.T, f *fakeTrestle, config map[string]interface{}, opts ...trestle.Option) *trestle.Node {
	t.Helper()
	raw, err := json.Marshal(config)
	require.NoError(t, err)

	base := []trestle.Option{
		trestle.WithCredentials(credentials.Static{APIKey: testAPIKey}),
	}
	if f != nil {
		base = append(base, trestle.WithEndpoints(trestleapi.DefaultEndpoints().WithBaseURL(f.server.URL)))
	}
	node, err := trestle.New(runtime.EmbeddedNodeConfig{
		NodeId:     "trestle-1",
		Label:      "Trestle",
		PluginType: trestle.PluginType,
		NodeConfig: runtime.NodeConfig{NodeId: "trestle-1", Config: raw},
	}, append(base, opts...)...)
	require.NoError(t, err)
	return node
}

func TestPhoneValidationLiteralPhone(t *testing.T) {
	f := newFakeTrestle(t)
	node := newNode(t, f, map[string]interface{}{
		"resource":  "phoneValidation",
		"operation": "validate",
		"phone":     "+14155552671",
	})

	results, err := node.Execute(context.Background(), runtime.NewStaticContext([]runtime.Item{{}}, nil, false))
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.True(t, results[0].Success)
	assert.Equal(t, map[string]interface{}{"phone_number": "+14155552671", "is_valid": true}, results[0].Payload)

	reqs := f.captured()
	require.Len(t, reqs, 1)
	assert.Equal(t, http.MethodGet, reqs[0].Method)
	assert.Equal(t, "/3.0/phone_intel", reqs[0].Path)
	assert.Equal(t, "+14155552671", reqs[0].Query["phone"][0])
	assert.Contains(t, reqs[0].Raw, "phone=%2B14155552671")
	assert.NotContains(t, reqs[0].Query, "phone.country_hint")
	assert.NotContains(t, reqs[0].Query, "addons")
	assert.Equal(t, testAPIKey, reqs[0].Header.Get("x-api-key"))
}

func TestPhoneValidationCountryHintAndLitigator(t *testing.T) {
	f := newFakeTrestle(t)
	node := newNode(t, f, map[string]interface{}{
		"phone":                 "4155552671",
		"countryHint":           "US",
		"includeLitigatorCheck": true,
	})

	_, err := node.Execute(context.Background(), runtime.NewStaticContext([]runtime.Item{{}}, nil, false))
	require.NoError(t, err)

	reqs := f.captured()
	require.Len(t, reqs, 1)
	assert.Equal(t, []string{"US"}, reqs[0].Query["phone.country_hint"])
	assert.Equal(t, []string{"litigator_check"}, reqs[0].Query["addons"])
}

func TestPhoneValidationFromField(t *testing.T) {
	f := newFakeTrestle(t)
	node := newNode(t, f, map[string]interface{}{
		"phoneSource": "field",
		"phoneField":  "contact.mobile",
	})

	items := []runtime.Item{
		{"contact": map[string]interface{}{"mobile": " +14155550001 "}},
		{"contact": map[string]interface{}{"mobile": float64(14155550002)}},
	}
	results, err := node.Execute(context.Background(), runtime.NewStaticContext(items, nil, false))
	require.NoError(t, err)
	require.Len(t, results, 2)

	reqs := f.captured()
	require.Len(t, reqs, 2)
	assert.Equal(t, "+14155550001", reqs[0].Query["phone"][0])
	assert.Equal(t, "14155550002", reqs[1].Query["phone"][0])
}

func TestMissingPhoneFieldAbortsBatch(t *testing.T) {
	f := newFakeTrestle(t)
	node := newNode(t, f, map[string]interface{}{
		"phoneSource": "field",
		"phoneField":  "mobile",
	})

	items := []runtime.Item{
		{"mobile": "+14155550001"},
		{"phone": "+14155550002"},
		{"mobile": "+14155550003"},
	}
	results, err := node.Execute(context.Background(), runtime.NewStaticContext(items, nil, false))

	assert.Nil(t, results)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Phone number not found in field 'mobile'")
	assert.Equal(t, 1, runtime.ItemIndexOf(err))
	assert.True(t, sdkerrors.IsConfiguration(err))
	assert.Equal(t, int32(1), f.hits.Load(), "no row after the failing one may be dispatched")
}

func TestEmptyLiteralPhone(t *testing.T) {
	node := newNode(t, newFakeTrestle(t), map[string]interface{}{})

	results, err := node.Execute(context.Background(), runtime.NewStaticContext([]runtime.Item{{}}, nil, true))
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.False(t, results[0].Success)
	assert.Equal(t, "Phone number is required", results[0].ErrorMessage)
}

func TestContinueOnFailKeepsLengthAndPairing(t *testing.T) {
	f := newFakeTrestle(t)
	f.handler = func(w http.ResponseWriter, r *http.Request, _ map[string]interface{}) {
		switch r.URL.Query().Get("phone") {
		case "500":
			w.WriteHeader(http.StatusInternalServerError)
			_, _ = w.Write([]byte(`{"error":"boom"}`))
		case "garbage":
			_, _ = w.Write([]byte("not json"))
		default:
			_, _ = w.Write([]byte(`{"ok":true}`))
		}
	}
	node := newNode(t, f, map[string]interface{}{"phoneSource": "field"})

	items := []runtime.Item{
		{"phone": "+1"},
		{"phone": "500"},
		{},
		{"phone": "garbage"},
		{"phone": "+2"},
	}
	results, err := node.Execute(context.Background(), runtime.NewStaticContext(items, nil, true))
	require.NoError(t, err)
	require.Len(t, results, len(items))

	for i, r := range results {
		assert.Equal(t, i, r.PairedItem)
	}
	assert.True(t, results[0].Success)
	assert.False(t, results[1].Success)
	assert.Contains(t, results[1].ErrorMessage, "request failed with status 500")
	assert.True(t, sdkerrors.IsTransport(results[1].Err))
	assert.Equal(t, "Phone number not found in field 'phone'", results[2].ErrorMessage)
	assert.True(t, sdkerrors.IsResponseParse(results[3].Err))
	assert.True(t, results[4].Success)
}

func TestRealContactPostBody(t *testing.T) {
	f := newFakeTrestle(t)
	node := newNode(t, f, map[string]interface{}{
		"resource":                   "realContact",
		"operation":                  "verify",
		"inputMode":                  "manual",
		"name":                       "Jane Doe",
		"phone":                      "+14155552671",
		"email":                      "",
		"city":                       "Seattle",
		"postalCode":                 "98101",
		"includeEmailDeliverability": true,
		"includeLitigatorCheck":      true,
	})

	results, err := node.Execute(context.Background(), runtime.NewStaticContext([]runtime.Item{{}}, nil, false))
	require.NoError(t, err)
	require.Len(t, results, 1)

	reqs := f.captured()
	require.Len(t, reqs, 1)
	req := reqs[0]
	assert.Equal(t, http.MethodPost, req.Method)
	assert.Equal(t, "/1.1/real_contact", req.Path)
	assert.Equal(t, "application/json", req.Header.Get("Content-Type"))
	assert.Equal(t, testAPIKey, req.Header.Get("x-api-key"))
	assert.Equal(t, map[string]interface{}{
		"name":        "Jane Doe",
		"phone":       "+14155552671",
		"city":        "Seattle",
		"postal_code": "98101",
		"addons":      "email_checks_deliverability,litigator_check",
	}, req.Body)
	assert.NotContains(t, req.Body, "email")
}

func TestRealContactFieldsMode(t *testing.T) {
	f := newFakeTrestle(t)
	node := newNode(t, f, map[string]interface{}{
		"resource":   "realContact",
		"inputMode":  "fields",
		"nameField":  "full_name",
		"phoneField": "mobile",
	})

	items := []runtime.Item{
		{"full_name": "Jane Doe", "mobile": "+14155552671", "email": "jane@example.com", "ip_address": "203.0.113.7"},
		{"full_name": "No Phone"},
	}
	results, err := node.Execute(context.Background(), runtime.NewStaticContext(items, nil, true))
	require.NoError(t, err)
	require.Len(t, results, 2)

	assert.True(t, results[0].Success)
	assert.False(t, results[1].Success)
	assert.Equal(t, "Required fields not found: name in 'full_name' or phone in 'mobile'", results[1].ErrorMessage)

	reqs := f.captured()
	require.Len(t, reqs, 1)
	assert.Equal(t, "jane@example.com", reqs[0].Body["email"])
	assert.Equal(t, "203.0.113.7", reqs[0].Body["ip"])
	assert.NotContains(t, reqs[0].Body, "addons")
}

func TestRealContactManualMissingName(t *testing.T) {
	node := newNode(t, newFakeTrestle(t), map[string]interface{}{
		"resource": "realContact",
		"phone":    "+14155552671",
	})

	results, err := node.Execute(context.Background(), runtime.NewStaticContext([]runtime.Item{{}}, nil, true))
	require.NoError(t, err)
	assert.Equal(t, "Required fields not found: name or phone", results[0].ErrorMessage)
}

func TestPerItemParameterOverrides(t *testing.T) {
	f := newFakeTrestle(t)
	node := newNode(t, f, map[string]interface{}{"phone": "+10000000000"})

	ec := runtime.NewStaticContext([]runtime.Item{{}, {}, {}}, nil, true)
	ec.SetItemParameter(1, "phone", "+11111111111")
	ec.SetItemParameter(2, "operation", "verify")

	results, err := node.Execute(context.Background(), ec)
	require.NoError(t, err)
	require.Len(t, results, 3)

	reqs := f.captured()
	require.Len(t, reqs, 2)
	assert.Equal(t, "+10000000000", reqs[0].Query["phone"][0])
	assert.Equal(t, "+11111111111", reqs[1].Query["phone"][0])
	assert.False(t, results[2].Success)
	assert.Equal(t, "The operation 'verify' is not supported for resource 'phoneValidation'", results[2].ErrorMessage)
}

func TestCredentialFailureAbortsEvenWithContinueOnFail(t *testing.T) {
	f := newFakeTrestle(t)
	node := newNode(t, f, map[string]interface{}{"phone": "+1"},
		trestle.WithCredentials(credentials.Static{}))

	results, err := node.Execute(context.Background(), runtime.NewStaticContext([]runtime.Item{{}}, nil, true))
	assert.Nil(t, results)
	assert.ErrorIs(t, err, credentials.ErrMissingAPIKey)
	assert.Equal(t, int32(0), f.hits.Load())
}

func TestEmptyBatch(t *testing.T) {
	node := newNode(t, nil, map[string]interface{}{}, trestle.WithCredentials(credentials.Static{}))
	results, err := node.Execute(context.Background(), runtime.NewStaticContext(nil, nil, false))
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestParallelWorkersPreserveOrder(t *testing.T) {
	f := newFakeTrestle(t)
	node := newNode(t, f, map[string]interface{}{"phoneSource": "field", "workers": 4})

	items := make([]runtime.Item, 12)
	for i := range items {
		items[i] = runtime.Item{"phone": fmt.Sprintf("+1415555%04d", i)}
	}
	results, err := node.Execute(context.Background(), runtime.NewStaticContext(items, nil, false))
	require.NoError(t, err)
	require.Len(t, results, 12)
	for i, r := range results {
		assert.Equal(t, i, r.PairedItem)
		payload := r.Payload.(map[string]interface{})
		assert.Equal(t, fmt.Sprintf("+1415555%04d", i), payload["phone_number"])
	}
}

// staticTransport returns the same value for every request.
type staticTransport struct{ value interface{} }

func (s staticTransport) Do(context.Context, *trestleapi.Request) (interface{}, error) {
	return s.value, nil
}

func TestStringAndStructuredResponsesMatch(t *testing.T) {
	structured := map[string]interface{}{
		"id":       "Phone.123",
		"is_valid": true,
		"carrier":  map[string]interface{}{"name": "Example"},
		"warnings": []interface{}{"x"},
	}
	encoded, err := json.Marshal(structured)
	require.NoError(t, err)

	run := func(value interface{}) []runtime.ItemResult {
		node := newNode(t, nil, map[string]interface{}{"phone": "+1"}, trestle.WithTransport(staticTransport{value: value}))
		results, err := node.Execute(context.Background(), runtime.NewStaticContext([]runtime.Item{{}}, nil, false))
		require.NoError(t, err)
		return results
	}

	assert.Equal(t, run(structured), run(string(encoded)))
}

func TestProcessSingleItem(t *testing.T) {
	f := newFakeTrestle(t)
	node := newNode(t, f, map[string]interface{}{"phoneSource": "field"})

	out := node.Process(runtime.ProcessInput{
		Ctx:  context.Background(),
		Data: map[string]interface{}{"phone": "+14155552671"},
	})
	require.NoError(t, out.Error)
	assert.Equal(t, "+14155552671", out.Data["phone_number"])

	out = node.Process(runtime.ProcessInput{Data: map[string]interface{}{}})
	require.Error(t, out.Error)
	assert.Contains(t, out.Error.Error(), "Phone number not found in field 'phone'")

	out = node.Process(runtime.ProcessInput{
		RawConfig: json.RawMessage(`{"resource":"realContact","name":"Jane","phone":"+1"}`),
	})
	require.NoError(t, out.Error)
	assert.Equal(t, "+1", out.Data["phone_number"])
}

func TestProcessWrapsNonObjectPayload(t *testing.T) {
	node := newNode(t, nil, map[string]interface{}{"phone": "+1"}, trestle.WithTransport(staticTransport{value: `[1,2]`}))
	out := node.Process(runtime.ProcessInput{Data: map[string]interface{}{}})
	require.NoError(t, out.Error)
	assert.Equal(t, []interface{}{float64(1), float64(2)}, out.Data["result"])
}

func TestNewRejectsWrongPluginType(t *testing.T) {
	_, err := trestle.New(runtime.EmbeddedNodeConfig{PluginType: "plugin-other"})
	assert.ErrorContains(t, err, "invalid plugin type")
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	_, err := trestle.New(runtime.EmbeddedNodeConfig{
		NodeId:     "n1",
		PluginType: trestle.PluginType,
		NodeConfig: runtime.NodeConfig{Config: json.RawMessage(`{"phoneSource":"header"}`)},
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, runtime.ErrInvalidConfig)
	assert.True(t, runtime.IsPermanentError(err))
}

func TestExecuteRecordsSpansUnderNodeTracer(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	previous := otel.GetTracerProvider()
	otel.SetTracerProvider(sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder)))
	t.Cleanup(func() { otel.SetTracerProvider(previous) })

	f := newFakeTrestle(t)
	node := newNode(t, f, map[string]interface{}{"phone": "+14155552671"})

	_, err := node.Execute(context.Background(), runtime.NewStaticContext([]runtime.Item{{}, {}}, nil, false))
	require.NoError(t, err)

	names := map[string]int{}
	for _, span := range recorder.Ended() {
		assert.Equal(t, trestle.TracerName, span.InstrumentationScope().Name)
		names[span.Name()]++
	}
	assert.Equal(t, map[string]int{"runtime.Batch": 1, "runtime.Item": 2}, names)
}
