package skill

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v6"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/unbrowse/unbrowse/internal/fault"
	"github.com/unbrowse/unbrowse/pkg/types"
)

// printer renders schema violations as English sentences.
var printer = message.NewPrinter(language.English)

// BuildBodySchema turns a field→type-tag map into a JSON Schema
// document. Observed fields constrain types only: requests may carry
// unknown fields, and no observed field is required.
func BuildBodySchema(fields map[string]string) map[string]any {
	properties := make(map[string]any, len(fields))
	for name, tag := range fields {
		switch tag {
		case "string", "number", "boolean", "object", "array":
			properties[name] = map[string]any{"type": tag}
		default:
			// null and mixed tags carry no constraint
			properties[name] = map[string]any{}
		}
	}
	return map[string]any{
		"type":       "object",
		"properties": properties,
	}
}

// BodyValidator checks request bodies against an endpoint's inferred
// schema.
type BodyValidator struct {
	schema *jsonschema.Schema
}

// NewBodyValidator compiles the inferred field map into a validator.
// Returns nil when the endpoint never carried a body.
func NewBodyValidator(fields map[string]string) (*BodyValidator, error) {
	if len(fields) == 0 {
		return nil, nil
	}
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("body.json", BuildBodySchema(fields)); err != nil {
		return nil, fault.Wrap(fault.CodeInternal, "add body schema", err)
	}
	compiled, err := compiler.Compile("body.json")
	if err != nil {
		return nil, fault.Wrap(fault.CodeInternal, "compile body schema", err)
	}
	return &BodyValidator{schema: compiled}, nil
}

// Validate returns one message per violation, empty when the value
// conforms.
func (v *BodyValidator) Validate(value any) []string {
	if v == nil || v.schema == nil {
		return nil
	}
	err := v.schema.Validate(value)
	if err == nil {
		return nil
	}
	var validationErr *jsonschema.ValidationError
	if errors.As(err, &validationErr) {
		msgs := map[string]bool{}
		collectLeafErrors(validationErr, msgs)
		out := make([]string, 0, len(msgs))
		for msg := range msgs {
			out = append(out, msg)
		}
		sort.Strings(out)
		return out
	}
	return []string{err.Error()}
}

func collectLeafErrors(err *jsonschema.ValidationError, out map[string]bool) {
	if err.ErrorKind != nil && len(err.Causes) == 0 {
		msg := err.ErrorKind.LocalizedString(printer)
		if path := strings.Join(err.InstanceLocation, "/"); path != "" {
			msg = path + ": " + msg
		}
		out[msg] = true
	}
	for _, cause := range err.Causes {
		collectLeafErrors(cause, out)
	}
}

// ValidateParams checks call parameters against an endpoint: every
// required path and query parameter must be present, and body fields
// must match the inferred schema. Violations surface as one input
// fault.
func ValidateParams(ep *types.SkillEndpoint, params map[string]any, body any) error {
	var problems []string
	for _, p := range ep.PathParams {
		if p.Required && paramMissing(params, p.Name) {
			problems = append(problems, fmt.Sprintf("missing path parameter %q", p.Name))
		}
	}
	for _, p := range ep.QueryParams {
		if p.Required && paramMissing(params, p.Name) {
			problems = append(problems, fmt.Sprintf("missing query parameter %q", p.Name))
		}
	}
	if body != nil {
		validator, err := NewBodyValidator(ep.RequestBodySchema)
		if err != nil {
			return err
		}
		for _, msg := range validator.Validate(body) {
			problems = append(problems, "body "+msg)
		}
	}
	if len(problems) > 0 {
		return fault.Newf(fault.CodeInput, "invalid parameters for %s: %s", ep.EndpointID, strings.Join(problems, "; "))
	}
	return nil
}

func paramMissing(params map[string]any, name string) bool {
	v, ok := params[name]
	if !ok || v == nil {
		return true
	}
	if s, isString := v.(string); isString && s == "" {
		return true
	}
	return false
}
