// Package trestleapi builds and dispatches requests against the Trestle REST API.
package trestleapi

import (
	"os"
	"strings"
)

const (
	// DefaultBaseURL is the production Trestle API host.
	DefaultBaseURL = "https://api.trestleiq.com"

	// PhoneIntelPath is the Phone Validation endpoint.
	PhoneIntelPath = "/3.0/phone_intel"

	// RealContactPath is the Real Contact endpoint.
	RealContactPath = "/1.1/real_contact"

	// BaseURLEnvVar overrides the base URL in EndpointsFromEnv.
	BaseURLEnvVar = "TRESTLE_BASE_URL"
)

// Endpoints holds the base URL and endpoint paths requests are built against.
type Endpoints struct {
	BaseURL         string
	PhoneIntelPath  string
	RealContactPath string
}

// DefaultEndpoints returns the production endpoints.
func DefaultEndpoints() Endpoints {
	return Endpoints{
		BaseURL:         DefaultBaseURL,
		PhoneIntelPath:  PhoneIntelPath,
		RealContactPath: RealContactPath,
	}
}

// EndpointsFromEnv returns the default endpoints with the base URL taken from
// TRESTLE_BASE_URL when set.
func EndpointsFromEnv() Endpoints {
	e := DefaultEndpoints()
	if base := os.Getenv(BaseURLEnvVar); base != "" {
		e.BaseURL = base
	}
	return e
}

// WithBaseURL returns a copy of e pointing at baseURL.
func (e Endpoints) WithBaseURL(baseURL string) Endpoints {
	e.BaseURL = baseURL
	return e
}

func (e Endpoints) resolve(path string) string {
	base := e.BaseURL
	if base == "" {
		base = DefaultBaseURL
	}
	return strings.TrimRight(base, "/") + "/" + strings.TrimLeft(path, "/")
}

// PhoneIntelURL returns the absolute Phone Validation URL.
func (e Endpoints) PhoneIntelURL() string {
	path := e.PhoneIntelPath
	if path == "" {
		path = PhoneIntelPath
	}
	return e.resolve(path)
}

// RealContactURL returns the absolute Real Contact URL.
func (e Endpoints) RealContactURL() string {
	path := e.RealContactPath
	if path == "" {
		path = RealContactPath
	}
	return e.resolve(path)
}
