package validation

import (
	"fmt"
	"slices"
	"strconv"
	"strings"

	"github.com/goccy/go-json"
)

type Violations struct {
	Errors map[string][]error
}

func (violations Violations) MarshalJSON() ([]byte, error) {
	errors := make(map[string][]string)
	for fieldName, fieldErrors := range violations.Errors {
		errors[fieldName] = make([]string, len(fieldErrors))
		for index, fieldError := range fieldErrors {
			errors[fieldName][index] = fieldError.Error()
		}
	}

	return json.Marshal(map[string]map[string][]string{
		"errors": errors,
	})
}

// Error lists the violations ordered by field name.
func (violations Violations) Error() string {
	names := make([]string, 0, len(violations.Errors))
	for name := range violations.Errors {
		names = append(names, name)
	}
	slices.Sort(names)

	var b strings.Builder
	for _, name := range names {
		for _, err := range violations.Errors[name] {
			if b.Len() > 0 {
				b.WriteString("; ")
			}
			b.WriteString(err.Error())
		}
	}
	return b.String()
}

func (violations Violations) IsEmpty() bool {
	return len(violations.Errors) == 0
}

// ValidateMap applies rules to data. Attributes without rules are violations
// themselves, attributes with rules but missing from data are validated as
// nil.
func ValidateMap(data map[string]any, rules map[string][]string) Violations {
	var violations Violations
	violations.Errors = make(map[string][]error)

	for attributeName := range data {
		if _, attributeRulesExists := rules[attributeName]; !attributeRulesExists {
			violations.Errors[attributeName] = append(violations.Errors[attributeName], fmt.Errorf("validation: no rules found :: %s", attributeName))
		}
	}

	for attributeName, attributeRules := range rules {
		attributeValue := data[attributeName]

		var errorCollection []error
		for _, attributeRule := range attributeRules {
			if err := validate(attributeRule, attributeName, attributeValue); err != nil {
				errorCollection = append(errorCollection, err)
			}
		}

		if len(errorCollection) != 0 {
			violations.Errors[attributeName] = append(violations.Errors[attributeName], errorCollection...)
		}
	}

	return violations
}

func validate(rule string, name string, value any) error {
	rule, argument, _ := strings.Cut(rule, ":")

	switch rule {
	case "required":
		{
			err := fmt.Errorf("%s is required", name)

			switch v := value.(type) {
			case nil:
				{
					return err
				}
			case string:
				{
					if v == "" {
						return err
					}
				}
			case []any:
				{
					if len(v) == 0 {
						return err
					}
				}
			case []string:
				{
					if len(v) == 0 {
						return err
					}
				}
			}
		}
	case "integer":
		{
			if value != nil && !ValidateInteger(toString(value)) {
				return fmt.Errorf("%s must be an integer", name)
			}
		}
	case "boolean":
		{
			if value != nil && !ValidateBoolean(toString(value)) {
				return fmt.Errorf("%s must be a boolean", name)
			}
		}
	case "min", "max":
		{
			size, err := strconv.Atoi(argument)
			if err != nil {
				return fmt.Errorf("invalid validation rule :: %s:%s", rule, argument)
			}
			if value == nil {
				return nil
			}

			measured, ok := measure(value)
			if !ok {
				return fmt.Errorf("%s cannot be measured", name)
			}
			if rule == "min" && !ValidateGreaterThenOrEqual(measured, size) {
				return fmt.Errorf("%s must be at least %d", name, size)
			}
			if rule == "max" && !ValidateLesserThenOrEqual(measured, size) {
				return fmt.Errorf("%s must be at most %d", name, size)
			}
		}
	case "in":
		{
			if value == nil {
				return nil
			}
			if !slices.Contains(strings.Split(argument, ","), toString(value)) {
				return fmt.Errorf("%s must be one of %s", name, argument)
			}
		}
	default:
		{
			return fmt.Errorf("invalid validation rule :: %s", rule)
		}
	}

	return nil
}

func toString(value any) string {
	if s, ok := value.(string); ok {
		return s
	}
	return fmt.Sprint(value)
}

// measure returns the number a size rule compares: the value of numbers and
// the length of strings and lists.
func measure(value any) (string, bool) {
	switch v := value.(type) {
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		return fmt.Sprint(v), true
	case string:
		return strconv.Itoa(len(v)), true
	case []any:
		return strconv.Itoa(len(v)), true
	case []string:
		return strconv.Itoa(len(v)), true
	}
	return "", false
}

// Numberic operations
func ValidateInteger(value string) bool {
	_, err := strconv.Atoi(value)
	return err == nil
}

func ValidateGreaterThenOrEqual(value string, size int) bool {
	valueAsInt, err := strconv.Atoi(value)
	if err != nil {
		return false
	}

	return valueAsInt >= size
}

func ValidateLesserThenOrEqual(value string, size int) bool {
	valueAsInt, err := strconv.Atoi(value)
	if err != nil {
		return false
	}

	return valueAsInt <= size
}

// Boolean operations
func ValidateBoolean(value string) bool {
	return ValidateTrue(value) || ValidateFalse(value)
}

func ValidateTrue(value string) bool {
	return value == "1" || value == "true"
}

func ValidateFalse(value string) bool {
	return value == "0" || value == "false"
}
