package trestle

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/text/unicode/norm"

	"github.com/wehubfusion/trestle/pkg/embedded/pathutil"
	"github.com/wehubfusion/trestle/pkg/embedded/runtime"
	sdkerrors "github.com/wehubfusion/trestle/pkg/errors"
	"github.com/wehubfusion/trestle/pkg/trestleapi"
)

// itemParams resolves the parameters of one item. Node configuration values are
// the fallbacks handed to the host.
type itemParams struct {
	ec    runtime.ExecuteContext
	cfg   Config
	index int
	item  runtime.Item
}

func (p itemParams) str(name, fallback string) string {
	return stringify(p.ec.GetNodeParameter(name, p.index, fallback))
}

func (p itemParams) flag(name string, fallback bool) bool {
	switch v := p.ec.GetNodeParameter(name, p.index, fallback).(type) {
	case bool:
		return v
	case string:
		b, err := strconv.ParseBool(strings.TrimSpace(v))
		return err == nil && b
	default:
		return fallback
	}
}

// field reads the input field fieldName of the current item.
func (p itemParams) field(fieldName string) string {
	v, ok := pathutil.Lookup(p.item, fieldName)
	if !ok {
		return ""
	}
	return stringify(v)
}

func (p itemParams) phoneValidation() (trestleapi.PhoneValidationParams, error) {
	var phone string
	switch source := p.str("phoneSource", p.cfg.PhoneSource); source {
	case PhoneSourceField:
		fieldName := p.str("phoneField", p.cfg.PhoneField)
		phone = p.field(fieldName)
		if phone == "" {
			return trestleapi.PhoneValidationParams{}, sdkerrors.NewConfigurationError("Phone number not found in field '%s'", fieldName)
		}
	case PhoneSourceValue:
		phone = p.str("phone", p.cfg.Phone)
		if phone == "" {
			return trestleapi.PhoneValidationParams{}, sdkerrors.NewConfigurationError("Phone number is required")
		}
	default:
		return trestleapi.PhoneValidationParams{}, sdkerrors.NewConfigurationError("Unsupported phone source '%s'", source)
	}

	return trestleapi.PhoneValidationParams{
		Phone:                 phone,
		CountryHint:           p.str("countryHint", p.cfg.CountryHint),
		IncludeLitigatorCheck: p.flag("includeLitigatorCheck", p.cfg.IncludeLitigatorCheck),
	}, nil
}

func (p itemParams) realContact() (trestleapi.RealContactParams, error) {
	params := trestleapi.RealContactParams{
		IncludeEmailDeliverability: p.flag("includeEmailDeliverability", p.cfg.IncludeEmailDeliverability),
		IncludeLitigatorCheck:      p.flag("includeLitigatorCheck", p.cfg.IncludeLitigatorCheck),
	}

	switch mode := p.str("inputMode", p.cfg.InputMode); mode {
	case InputModeFields:
		nameField := p.str("nameField", p.cfg.NameField)
		phoneField := p.str("phoneField", p.cfg.PhoneField)
		params.Name = p.field(nameField)
		params.Phone = p.field(phoneField)
		params.Email = p.field(p.str("emailField", p.cfg.EmailField))
		params.IPAddress = p.field(p.str("ipAddressField", p.cfg.IPAddressField))
		params.Address = p.field(p.str("addressField", p.cfg.AddressField))
		params.City = p.field(p.str("cityField", p.cfg.CityField))
		params.State = p.field(p.str("stateField", p.cfg.StateField))
		params.PostalCode = p.field(p.str("postalCodeField", p.cfg.PostalCodeField))
		if params.Name == "" || params.Phone == "" {
			return trestleapi.RealContactParams{}, sdkerrors.NewConfigurationError(
				"Required fields not found: name in '%s' or phone in '%s'", nameField, phoneField)
		}
	case InputModeManual:
		params.Name = p.str("name", p.cfg.Name)
		params.Phone = p.str("phone", p.cfg.Phone)
		params.Email = p.str("email", p.cfg.Email)
		params.IPAddress = p.str("ipAddress", p.cfg.IPAddress)
		params.Address = p.str("address", p.cfg.Address)
		params.City = p.str("city", p.cfg.City)
		params.State = p.str("state", p.cfg.State)
		params.PostalCode = p.str("postalCode", p.cfg.PostalCode)
		if params.Name == "" || params.Phone == "" {
			return trestleapi.RealContactParams{}, sdkerrors.NewConfigurationError("Required fields not found: name or phone")
		}
	default:
		return trestleapi.RealContactParams{}, sdkerrors.NewConfigurationError("Unsupported input mode '%s'", mode)
	}

	return params, nil
}

// stringify renders a resolved value as the trimmed, NFC-normalized text sent
// to the API. nil renders as the empty string.
func stringify(v interface{}) string {
	var s string
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		s = val
	case float64:
		s = strconv.FormatFloat(val, 'f', -1, 64)
	case float32:
		s = strconv.FormatFloat(float64(val), 'f', -1, 32)
	case int:
		s = strconv.Itoa(val)
	case int64:
		s = strconv.FormatInt(val, 10)
	case json.Number:
		s = val.String()
	case bool:
		s = strconv.FormatBool(val)
	case map[string]interface{}, []interface{}:
		data, err := json.Marshal(val)
		if err != nil {
			return ""
		}
		s = string(data)
	default:
		s = fmt.Sprint(val)
	}
	return norm.NFC.String(strings.TrimSpace(s))
}
