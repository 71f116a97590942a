package wire

import (
	"fmt"

	"github.com/xeipuuv/gojsonschema"
)

// ClassifyValidationError maps a gojsonschema.ResultError onto the closed
// set of ValidationErrorCode values (SPEC_FULL.md §5's ported elicit
// codes), deriving Expected/Actual from the error's own Details()/Value()
// instead of collapsing every failure to type_mismatch (spec.md §8 S3).
func ClassifyValidationError(e gojsonschema.ResultError) (code ValidationErrorCode, expected string) {
	details := e.Details()
	switch e.Type() {
	case "required":
		code = ValidationMissingField
		if v, ok := details["property"]; ok {
			expected = fmt.Sprint(v)
		}
	case "invalid_type":
		code = ValidationTypeMismatch
		if v, ok := details["expected"]; ok {
			expected = fmt.Sprint(v)
		}
	case "number_gte", "number_gt":
		code = ValidationOutOfRange
		if v, ok := details["min"]; ok {
			expected = fmt.Sprintf(">= %v", v)
		}
	case "number_lte", "number_lt":
		code = ValidationOutOfRange
		if v, ok := details["max"]; ok {
			expected = fmt.Sprintf("<= %v", v)
		}
	case "string_gte":
		code = ValidationTooShort
		if v, ok := details["min"]; ok {
			expected = fmt.Sprintf(">= %v", v)
		}
	case "string_lte":
		code = ValidationTooLong
		if v, ok := details["max"]; ok {
			expected = fmt.Sprintf("<= %v", v)
		}
	case "array_min_items":
		code = ValidationTooFewItems
		if v, ok := details["min"]; ok {
			expected = fmt.Sprint(v)
		}
	case "array_max_items":
		code = ValidationTooManyItems
		if v, ok := details["max"]; ok {
			expected = fmt.Sprint(v)
		}
	case "pattern", "does_not_match_pattern":
		code = ValidationPatternMismatch
		if v, ok := details["pattern"]; ok {
			expected = fmt.Sprint(v)
		}
	case "format":
		code = ValidationInvalidFormat
		if v, ok := details["format"]; ok {
			expected = fmt.Sprint(v)
		}
	case "enum", "number_one_of", "const":
		code = ValidationNotAllowed
		if v, ok := details["allowed"]; ok {
			expected = fmt.Sprint(v)
		}
	case "additional_property_not_allowed":
		code = ValidationNotAllowed
		if v, ok := details["property"]; ok {
			expected = fmt.Sprint(v)
		}
	default:
		code = ValidationCustom
	}
	return code, expected
}

// elicitFromResult builds an ElicitError for the first validation failure
// in result, classifying its code and populating expected/actual from the
// underlying gojsonschema error rather than hardcoding type_mismatch.
func elicitFromResult(first gojsonschema.ResultError) *Error {
	code, expected := ClassifyValidationError(first)
	var actual interface{}
	if v := first.Value(); v != nil {
		actual = v
	}
	return NewElicitError(code, first.Field(), first.Description(), expected, actual)
}

// NewElicitErrorFromSchemaErrors builds an ElicitError from the first of a
// gojsonschema validation run's errors (registry/middleware dispatch-time
// validation both call this instead of hand-rolling type_mismatch).
func NewElicitErrorFromSchemaErrors(errs []gojsonschema.ResultError) *Error {
	if len(errs) == 0 {
		return NewElicitError(ValidationCustom, "", "validation failed", "", nil)
	}
	return elicitFromResult(errs[0])
}
