package trestle

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

// Resources and operations.
const (
	ResourcePhoneValidation = "phoneValidation"
	ResourceRealContact     = "realContact"

	OperationValidate = "validate"
	OperationVerify   = "verify"
)

// Phone sources for phone validation.
const (
	PhoneSourceValue = "value"
	PhoneSourceField = "field"
)

// Input modes for real contact verification.
const (
	InputModeManual = "manual"
	InputModeFields = "fields"
)

// Config holds the node configuration. Every value is a default; the host may
// resolve a different value per item through GetNodeParameter.
type Config struct {
	Resource  string `json:"resource" validate:"oneof=phoneValidation realContact"`
	Operation string `json:"operation" validate:"oneof=validate verify"`

	// Phone validation
	PhoneSource           string `json:"phoneSource" validate:"oneof=value field"`
	Phone                 string `json:"phone"`
	PhoneField            string `json:"phoneField" validate:"required"`
	CountryHint           string `json:"countryHint"`
	IncludeLitigatorCheck bool   `json:"includeLitigatorCheck"`

	// Real contact
	InputMode  string `json:"inputMode" validate:"oneof=manual fields"`
	Name       string `json:"name"`
	Email      string `json:"email"`
	IPAddress  string `json:"ipAddress"`
	Address    string `json:"address"`
	City       string `json:"city"`
	State      string `json:"state"`
	PostalCode string `json:"postalCode"`

	NameField       string `json:"nameField" validate:"required"`
	EmailField      string `json:"emailField" validate:"required"`
	IPAddressField  string `json:"ipAddressField" validate:"required"`
	AddressField    string `json:"addressField" validate:"required"`
	CityField       string `json:"cityField" validate:"required"`
	StateField      string `json:"stateField" validate:"required"`
	PostalCodeField string `json:"postalCodeField" validate:"required"`

	IncludeEmailDeliverability bool `json:"includeEmailDeliverability"`

	// Workers > 1 dispatches items on a bounded worker pool.
	Workers int `json:"workers" validate:"gte=0,lte=64"`
}

var validate = validator.New()

// ParseConfig decodes raw, applies defaults and validates the result.
// An empty raw config yields the defaults.
func ParseConfig(nodeID string, raw json.RawMessage) (Config, error) {
	var cfg Config
	if len(raw) > 0 && string(raw) != "null" {
		if err := json.Unmarshal(raw, &cfg); err != nil {
			return Config{}, NewConfigError(nodeID, "configuration", fmt.Sprintf("failed to parse configuration: %v", err), err)
		}
	}
	cfg.ApplyDefaults()
	if err := cfg.Validate(nodeID); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// ApplyDefaults fills every unset option.
func (c *Config) ApplyDefaults() {
	if c.Resource == "" {
		c.Resource = ResourcePhoneValidation
	}
	if c.Operation == "" {
		c.Operation = defaultOperation(c.Resource)
	}
	if c.PhoneSource == "" {
		c.PhoneSource = PhoneSourceValue
	}
	if c.InputMode == "" {
		c.InputMode = InputModeManual
	}
	setDefault(&c.PhoneField, "phone")
	setDefault(&c.NameField, "name")
	setDefault(&c.EmailField, "email")
	setDefault(&c.IPAddressField, "ip_address")
	setDefault(&c.AddressField, "address")
	setDefault(&c.CityField, "city")
	setDefault(&c.StateField, "state")
	setDefault(&c.PostalCodeField, "postal_code")
}

// Validate checks the configuration.
func (c *Config) Validate(nodeID string) error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			return NewConfigError(nodeID, jsonFieldName(fe.Field()), fmt.Sprintf("failed '%s' validation (value %v)", fe.Tag(), fe.Value()), err)
		}
		return NewConfigError(nodeID, "configuration", err.Error(), err)
	}
	if defaultOperation(c.Resource) != c.Operation {
		return NewConfigError(nodeID, "operation", fmt.Sprintf("operation '%s' is not supported for resource '%s'", c.Operation, c.Resource), nil)
	}
	return nil
}

// Params returns the configuration as host parameter defaults keyed by JSON name.
func (c Config) Params() map[string]interface{} {
	data, _ := json.Marshal(c)
	params := map[string]interface{}{}
	_ = json.Unmarshal(data, &params)
	return params
}

func defaultOperation(resource string) string {
	switch resource {
	case ResourcePhoneValidation:
		return OperationValidate
	case ResourceRealContact:
		return OperationVerify
	default:
		return ""
	}
}

func setDefault(field *string, value string) {
	if strings.TrimSpace(*field) == "" {
		*field = value
	}
}

// jsonFieldName lowercases the first letter of a Go field name.
func jsonFieldName(field string) string {
	if field == "" {
		return field
	}
	if field == "IPAddress" || field == "IPAddressField" {
		return "ip" + field[2:]
	}
	return strings.ToLower(field[:1]) + field[1:]
}
