package project

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/itchyny/gojq"

	"github.com/unbrowse/unbrowse/internal/fault"
)

// applyJQ runs a jq program over v. One output comes back bare,
// several come back as an array, none (or only nulls) as nil.
func applyJQ(v any, expression string) (any, error) {
	code, err := compileJQ(expression)
	if err != nil {
		return nil, err
	}
	input, err := normalizeJSON(v)
	if err != nil {
		return nil, err
	}
	var values []any
	iter := code.Run(input)
	for {
		out, ok := iter.Next()
		if !ok {
			break
		}
		if jqErr, isErr := out.(error); isErr {
			return nil, fault.Newf(fault.CodeInput, "jq: %s", describeJQError(jqErr))
		}
		if out == nil {
			continue
		}
		values = append(values, out)
	}
	switch len(values) {
	case 0:
		return nil, nil
	case 1:
		return values[0], nil
	default:
		return values, nil
	}
}

// ValidateJQ checks that an expression parses and compiles without
// running it.
func ValidateJQ(expression string) error {
	_, err := compileJQ(expression)
	return err
}

func compileJQ(expression string) (*gojq.Code, error) {
	query, err := gojq.Parse(expression)
	if err != nil {
		var parseErr *gojq.ParseError
		if errors.As(err, &parseErr) {
			return nil, fault.Wrap(fault.CodeInput, fmt.Sprintf("invalid jq expression at offset %d", parseErr.Offset), err)
		}
		return nil, fault.Wrap(fault.CodeInput, "invalid jq expression", err)
	}
	code, err := gojq.Compile(query)
	if err != nil {
		return nil, fault.Wrap(fault.CodeInput, "compile jq expression", err)
	}
	return code, nil
}

// normalizeJSON round-trips v through encoding/json: gojq only accepts
// the unmarshal value family (map[string]any, []any, float64, string,
// bool, nil).
func normalizeJSON(v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fault.Wrap(fault.CodeInput, "projection input is not json", err)
	}
	var out any
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fault.Wrap(fault.CodeInternal, "reparse projection input", err)
	}
	return out, nil
}

// describeJQError adds a hint for the runtime failures users actually
// hit. gojq reports these as plain errors, so the match is on text.
func describeJQError(err error) string {
	var halt *gojq.HaltError
	if errors.As(err, &halt) {
		if halt.Value() == nil {
			return "query halted"
		}
		return fmt.Sprintf("query halted with: %v", halt.Value())
	}
	msg := err.Error()
	switch {
	case strings.Contains(msg, "cannot iterate over: null"):
		return msg + " (the path may not exist in this result)"
	case strings.Contains(msg, "cannot index") && strings.Contains(msg, "with"):
		return msg + " (field not found or wrong type)"
	case strings.Contains(msg, "object") && strings.Contains(msg, "cannot be iterated"):
		return msg + " (expected array but got object, try removing '[]')"
	case strings.Contains(msg, "array") && strings.Contains(msg, "cannot be indexed"):
		return msg + " (expected object but got array, try adding '[]')"
	}
	return msg
}
