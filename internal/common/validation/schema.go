package validation

import (
	"encoding/json"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"sync"

	"github.com/xeipuuv/gojsonschema"
)

// JSONSchema describes an object-shaped input such as a tool's parameters.
type JSONSchema struct {
	Type                 string              `json:"type"`
	Properties           map[string]Property `json:"properties"`
	Required             []string            `json:"required,omitempty"`
	AdditionalProperties bool                `json:"additionalProperties"`
}

type Property struct {
	Type        string              `json:"type,omitempty"`
	Description string              `json:"description,omitempty"`
	Default     interface{}         `json:"default,omitempty"`
	Minimum     *float64            `json:"minimum,omitempty"`
	Maximum     *float64            `json:"maximum,omitempty"`
	Enum        []string            `json:"enum,omitempty"`
	Pattern     *string             `json:"pattern,omitempty"`
	MinLength   *int                `json:"minLength,omitempty"`
	MaxLength   *int                `json:"maxLength,omitempty"`
	Items       *Property           `json:"items,omitempty"`
	Properties  map[string]Property `json:"properties,omitempty"`
	Required    []string            `json:"required,omitempty"`
}

type ValidationResult struct {
	Valid  bool              `json:"valid"`
	Errors []ValidationError `json:"errors,omitempty"`
}

type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

var errorCodes = map[string]string{
	"required":                        "REQUIRED_FIELD_MISSING",
	"invalid_type":                    "INVALID_TYPE",
	"additional_property_not_allowed": "EXTRA_FIELD",
	"enum":                            "INVALID_ENUM_VALUE",
	"number_gte":                      "MINIMUM_VIOLATION",
	"number_lte":                      "MAXIMUM_VIOLATION",
	"string_gte":                      "MIN_LENGTH_VIOLATION",
	"string_lte":                      "MAX_LENGTH_VIOLATION",
	"pattern":                         "PATTERN_MISMATCH",
}

const rootContext = "(root)"

var compiled sync.Map // schema JSON -> *gojsonschema.Schema

func compile(schema JSONSchema) (*gojsonschema.Schema, error) {
	if schema.Type == "" {
		schema.Type = "object"
	}
	key := schema.String()
	if cached, ok := compiled.Load(key); ok {
		return cached.(*gojsonschema.Schema), nil
	}
	s, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(key))
	if err != nil {
		return nil, err
	}
	compiled.Store(key, s)
	return s, nil
}

// ValidateInput validates input against schema. A null value counts as absent.
// Errors are sorted by field for stable messages.
func ValidateInput(input map[string]interface{}, schema JSONSchema) *ValidationResult {
	compiledSchema, err := compile(schema)
	if err != nil {
		return &ValidationResult{Errors: []ValidationError{{Field: "(schema)", Message: err.Error(), Code: "INVALID_SCHEMA"}}}
	}

	doc := make(map[string]interface{}, len(input))
	for k, v := range input {
		if v != nil {
			doc[k] = v
		}
	}
	result, err := compiledSchema.Validate(gojsonschema.NewGoLoader(doc))
	if err != nil {
		return &ValidationResult{Errors: []ValidationError{{Field: "(root)", Message: err.Error(), Code: "INVALID_INPUT"}}}
	}

	errs := make([]ValidationError, 0, len(result.Errors()))
	for _, re := range result.Errors() {
		errs = append(errs, ValidationError{
			Field:   fieldOf(re),
			Message: re.Description(),
			Code:    codeOf(re.Type()),
		})
	}
	sort.SliceStable(errs, func(i, j int) bool { return errs[i].Field < errs[j].Field })
	return &ValidationResult{Valid: len(errs) == 0, Errors: errs}
}

// fieldOf renders the error location as a dotted path, naming the offending
// property for required and additional-property errors.
func fieldOf(re gojsonschema.ResultError) string {
	path := strings.TrimPrefix(re.Context().String(), rootContext)
	path = strings.TrimPrefix(path, ".")
	switch re.Type() {
	case "required", "additional_property_not_allowed":
		if prop, ok := re.Details()["property"].(string); ok {
			if path == "" {
				return prop
			}
			return path + "." + prop
		}
	}
	if path == "" {
		return rootContext
	}
	return path
}

func codeOf(errType string) string {
	if code, ok := errorCodes[errType]; ok {
		return code
	}
	return strings.ToUpper(errType)
}

// GetErrorMessages returns "field: message" strings.
func (vr *ValidationResult) GetErrorMessages() []string {
	messages := make([]string, len(vr.Errors))
	for i, err := range vr.Errors {
		messages[i] = fmt.Sprintf("%s: %s", err.Field, err.Message)
	}
	return messages
}

// GetErrorsForField returns errors for a field and its nested children.
func (vr *ValidationResult) GetErrorsForField(field string) []ValidationError {
	var fieldErrors []ValidationError
	for _, err := range vr.Errors {
		if err.Field == field || strings.HasPrefix(err.Field, field+".") || strings.HasPrefix(err.Field, field+"[") {
			fieldErrors = append(fieldErrors, err)
		}
	}
	return fieldErrors
}

// String renders the schema as compact JSON for prompts and docs.
func (s JSONSchema) String() string {
	raw, err := json.Marshal(s)
	if err != nil {
		return "{}"
	}
	return string(raw)
}

// ValidateEmail validates email format
func ValidateEmail(email string) bool {
	return emailPattern.MatchString(email)
}

var emailPattern = regexp.MustCompile(`^[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}$`)

func IntPtr(i int) *int {
	return &i
}

func FloatPtr(f float64) *float64 {
	return &f
}
