package validation

import (
	"slices"
	"testing"

	"github.com/goccy/go-json"

	"github.com/freekieb7/ingress/test"
)

func TestValidateMap(t *testing.T) {
	rules := map[string][]string{
		"driver": {"required", "in:postgres,mysql"},
		"port":   {"integer", "min:1", "max:65535"},
		"name":   {"required", "min:3"},
		"debug":  {"boolean"},
	}

	violations := ValidateMap(map[string]any{
		"driver": "postgres",
		"port":   5432,
		"name":   "app",
		"debug":  "true",
	}, rules)
	test.AssertTrue(t, violations.IsEmpty(), violations.Error())

	violations = ValidateMap(map[string]any{
		"driver": "oracle",
		"port":   0,
		"name":   "ab",
		"debug":  "maybe",
		"extra":  1,
	}, rules)

	test.AssertEqual(t, 5, len(violations.Errors))
	test.AssertEqual(t, "driver must be one of postgres,mysql", violations.Errors["driver"][0].Error())
	test.AssertEqual(t, "port must be at least 1", violations.Errors["port"][0].Error())
	test.AssertEqual(t, "name must be at least 3", violations.Errors["name"][0].Error())
	test.AssertEqual(t, "debug must be a boolean", violations.Errors["debug"][0].Error())
	test.AssertEqual(t, 1, len(violations.Errors["extra"]))
}

func TestValidateMap_MissingAttribute(t *testing.T) {
	violations := ValidateMap(map[string]any{}, map[string][]string{
		"host":  {"required"},
		"port":  {"integer", "min:1"},
		"roles": {"required"},
	})

	test.AssertEqual(t, []string{"host", "roles"}, sortedKeys(violations))
}

func TestValidateMap_InvalidRule(t *testing.T) {
	violations := ValidateMap(map[string]any{"a": "x", "b": 1}, map[string][]string{
		"a": {"unknown"},
		"b": {"min:abc"},
	})

	test.AssertEqual(t, "invalid validation rule :: unknown", violations.Errors["a"][0].Error())
	test.AssertEqual(t, "invalid validation rule :: min:abc", violations.Errors["b"][0].Error())
}

func TestViolations_Error(t *testing.T) {
	violations := ValidateMap(map[string]any{"b": "", "a": ""}, map[string][]string{
		"a": {"required"},
		"b": {"required"},
	})

	test.AssertEqual(t, "a is required; b is required", violations.Error())
}

func TestViolations_MarshalJSON(t *testing.T) {
	violations := ValidateMap(map[string]any{"a": ""}, map[string][]string{
		"a": {"required"},
	})

	data, err := json.Marshal(violations)
	test.AssertNoError(t, err)
	test.AssertEqual(t, `{"errors":{"a":["a is required"]}}`, string(data))
}

func TestSizeRules(t *testing.T) {
	testCases := []struct {
		value    any
		rule     string
		expected bool
	}{
		{"abcd", "min:4", true},
		{"abc", "min:4", false},
		{[]string{"a", "b"}, "max:2", true},
		{[]any{1, 2, 3}, "max:2", false},
		{int64(30), "min:1", true},
		{uint8(3), "max:2", false},
		{3.5, "min:1", false},
	}

	for _, tc := range testCases {
		err := validate(tc.rule, "value", tc.value)
		if (err == nil) != tc.expected {
			t.Errorf("validate(%q, %#v) = %v, want valid %v", tc.rule, tc.value, err, tc.expected)
		}
	}
}

func sortedKeys(violations Violations) []string {
	var keys []string
	for key := range violations.Errors {
		keys = append(keys, key)
	}
	slices.Sort(keys)
	return keys
}
