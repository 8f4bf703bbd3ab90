package trestleapi

import (
	"encoding/json"
	"net/http"
	"net/url"
	"strings"

	"github.com/wehubfusion/trestle/pkg/credentials"
)

// Add-on identifiers accepted by the Trestle API.
const (
	AddonLitigatorCheck      = "litigator_check"
	AddonEmailDeliverability = "email_checks_deliverability"
)

// Request is a fully built outbound request. It is created per item and not
// modified once dispatched.
type Request struct {
	Method string
	URL    string
	Query  url.Values
	Body   map[string]interface{}
	Header http.Header
}

// FullURL returns URL with the encoded query string appended.
func (r *Request) FullURL() string {
	if len(r.Query) == 0 {
		return r.URL
	}
	return r.URL + "?" + r.Query.Encode()
}

// BodyJSON returns the encoded JSON body, or nil for requests without one.
func (r *Request) BodyJSON() ([]byte, error) {
	if r.Body == nil {
		return nil, nil
	}
	return json.Marshal(r.Body)
}

// PhoneValidationParams are the resolved inputs of a phone validation.
type PhoneValidationParams struct {
	Phone                 string
	CountryHint           string
	IncludeLitigatorCheck bool
}

// RealContactParams are the resolved inputs of a real contact verification.
type RealContactParams struct {
	Name       string
	Phone      string
	Email      string
	IPAddress  string
	Address    string
	City       string
	State      string
	PostalCode string

	IncludeEmailDeliverability bool
	IncludeLitigatorCheck      bool
}

// Addons returns the requested add-ons in declaration order.
func (p RealContactParams) Addons() []string {
	var addons []string
	if p.IncludeEmailDeliverability {
		addons = append(addons, AddonEmailDeliverability)
	}
	if p.IncludeLitigatorCheck {
		addons = append(addons, AddonLitigatorCheck)
	}
	return addons
}

// NewPhoneValidationRequest builds the GET phone_intel request.
func NewPhoneValidationRequest(e Endpoints, p PhoneValidationParams, cred *credentials.TrestleAPI) *Request {
	query := url.Values{}
	query.Set("phone", p.Phone)
	if p.CountryHint != "" {
		query.Set("phone.country_hint", p.CountryHint)
	}
	if p.IncludeLitigatorCheck {
		query.Set("addons", AddonLitigatorCheck)
	}

	header := http.Header{}
	header.Set("Accept", "application/json")
	cred.Authenticate(header)

	return &Request{
		Method: http.MethodGet,
		URL:    e.PhoneIntelURL(),
		Query:  query,
		Header: header,
	}
}

// NewRealContactRequest builds the POST real_contact request. Optional fields that
// resolved to an empty string are left out of the body.
func NewRealContactRequest(e Endpoints, p RealContactParams, cred *credentials.TrestleAPI) *Request {
	body := map[string]interface{}{
		"name":  p.Name,
		"phone": p.Phone,
	}
	optional := []struct {
		key   string
		value string
	}{
		{"email", p.Email},
		{"ip", p.IPAddress},
		{"address", p.Address},
		{"city", p.City},
		{"state", p.State},
		{"postal_code", p.PostalCode},
	}
	for _, f := range optional {
		if f.value != "" {
			body[f.key] = f.value
		}
	}
	if addons := p.Addons(); len(addons) > 0 {
		body["addons"] = strings.Join(addons, ",")
	}

	header := http.Header{}
	header.Set("Accept", "application/json")
	header.Set("Content-Type", "application/json")
	cred.Authenticate(header)

	return &Request{
		Method: http.MethodPost,
		URL:    e.RealContactURL(),
		Query:  url.Values{},
		Body:   body,
		Header: header,
	}
}
