package pathutil

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLookup(t *testing.T) {
	item := map[string]interface{}{
		"phone":       "+14155552671",
		"contact.raw": "dotted key",
		"contact": map[string]interface{}{
			"phone": "+14155550000",
			"address": map[string]interface{}{
				"city": "Seattle",
			},
		},
		"phones": []interface{}{"+1111", "+2222"},
		"age":    float64(30),
	}

	tests := []struct {
		name     string
		path     string
		expected interface{}
		exists   bool
	}{
		{name: "top-level key", path: "phone", expected: "+14155552671", exists: true},
		{name: "dotted key wins over navigation", path: "contact.raw", expected: "dotted key", exists: true},
		{name: "nested dot notation", path: "contact.phone", expected: "+14155550000", exists: true},
		{name: "nested slash notation", path: "/contact/address/city", expected: "Seattle", exists: true},
		{name: "array index", path: "phones.1", expected: "+2222", exists: true},
		{name: "number", path: "age", expected: float64(30), exists: true},
		{name: "missing key", path: "mobile", exists: false},
		{name: "missing nested", path: "contact.email", exists: false},
		{name: "empty path", path: "", exists: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			value, exists := Lookup(item, tt.path)

			assert.Equal(t, tt.exists, exists)
			if exists {
				assert.Equal(t, tt.expected, value)
			}
		})
	}
}

func TestLookupNilItem(t *testing.T) {
	_, exists := Lookup(nil, "phone")
	assert.False(t, exists)
}

func TestLookupBytes(t *testing.T) {
	value, exists := LookupBytes([]byte(`{"a":{"b":[1,2,3]}}`), "/a/b")
	assert.True(t, exists)
	assert.Equal(t, []interface{}{float64(1), float64(2), float64(3)}, value)

	_, exists = LookupBytes(nil, "a")
	assert.False(t, exists)
}
