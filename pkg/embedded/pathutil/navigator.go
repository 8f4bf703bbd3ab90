// Package pathutil resolves input field names against JSON-like items.
package pathutil

import (
	"encoding/json"
	"strings"

	"github.com/tidwall/gjson"
)

// Lookup returns the value of path in item.
//
// A top-level key that matches path exactly always wins, so field names that
// contain dots keep working. Otherwise path is navigated into nested objects and
// arrays; both dot ("contact.phone") and slash ("/contact/phone") notation are
// accepted, as is any other gjson syntax ("phones.0").
func Lookup(item map[string]interface{}, path string) (interface{}, bool) {
	if item == nil || path == "" {
		return nil, false
	}
	if v, ok := item[path]; ok {
		return v, true
	}

	// A plain name that missed the top-level lookup cannot match deeper.
	if !strings.ContainsAny(path, "./#|") {
		return nil, false
	}
	gjsonPath := toGjsonPath(path)
	if gjsonPath == "" {
		return nil, false
	}

	data, err := json.Marshal(item)
	if err != nil {
		return nil, false
	}
	return LookupBytes(data, gjsonPath)
}

// LookupBytes navigates a gjson path in raw JSON.
func LookupBytes(data []byte, path string) (interface{}, bool) {
	if len(data) == 0 {
		return nil, false
	}
	result := gjson.GetBytes(data, toGjsonPath(path))
	if !result.Exists() {
		return nil, false
	}
	return result.Value(), true
}

// toGjsonPath converts slash notation to dot notation for gjson compatibility.
func toGjsonPath(path string) string {
	if !strings.Contains(path, "/") {
		return path
	}
	return strings.ReplaceAll(strings.Trim(path, "/"), "/", ".")
}
