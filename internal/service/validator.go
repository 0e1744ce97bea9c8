package service

import (
	"fmt"
	"math"
	"reflect"
	"sort"
	"strings"

	"github.com/Strob0t/AgentForge/internal/domain/step"
	"github.com/Strob0t/AgentForge/internal/domain/tool"
)

// Validator checks proposed tool calls against registered schemas.
type Validator struct {
	registry *ToolRegistry
}

// NewValidator creates a Validator backed by registry.
func NewValidator(registry *ToolRegistry) *Validator {
	return &Validator{registry: registry}
}

// Validate returns nil for an approved call, otherwise a *tool.ValidationError
// listing every problem found.
func (v *Validator) Validate(call step.ToolCall) error {
	verr := &tool.ValidationError{ToolCallID: call.ID, ToolName: call.ToolName}

	t, ok := v.registry.Lookup(call.ToolName)
	if !ok {
		verr.Issues = append(verr.Issues, tool.Issue{Problem: fmt.Sprintf("unknown tool %q", call.ToolName)})
		return verr
	}

	schema := t.InputSchema
	for _, name := range schema.Required {
		if val, ok := call.Args[name]; !ok || val == nil {
			verr.Issues = append(verr.Issues, tool.Issue{Argument: name, Problem: "required argument is missing"})
		}
	}

	keys := make([]string, 0, len(call.Args))
	for k := range call.Args {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, key := range keys {
		val := call.Args[key]
		prop, ok := schema.Properties[key].(map[string]any)
		if !ok || val == nil {
			continue // extra arguments are allowed
		}
		if problem := checkType(prop["type"], val); problem != "" {
			verr.Issues = append(verr.Issues, tool.Issue{Argument: key, Problem: problem})
			continue
		}
		if problem := checkEnum(prop["enum"], val); problem != "" {
			verr.Issues = append(verr.Issues, tool.Issue{Argument: key, Problem: problem})
		}
	}

	if len(verr.Issues) > 0 {
		return verr
	}
	return nil
}

// checkType accepts a single JSON schema type or a list of alternatives.
func checkType(spec, val any) string {
	var types []string
	switch s := spec.(type) {
	case string:
		types = []string{s}
	case []string:
		types = s
	case []any:
		for _, x := range s {
			if str, ok := x.(string); ok {
				types = append(types, str)
			}
		}
	}
	if len(types) == 0 {
		return ""
	}
	for _, typ := range types {
		if matchesType(strings.ToLower(typ), val) {
			return ""
		}
	}
	return fmt.Sprintf("expected %s, got %s", strings.Join(types, " or "), jsonKind(val))
}

func matchesType(typ string, val any) bool {
	rv := reflect.ValueOf(val)
	switch typ {
	case "string":
		return rv.Kind() == reflect.String
	case "boolean":
		return rv.Kind() == reflect.Bool
	case "number":
		return isNumber(rv)
	case "integer":
		if !isNumber(rv) {
			return false
		}
		if rv.CanFloat() {
			f := rv.Float()
			return f == math.Trunc(f) && !math.IsInf(f, 0)
		}
		return true
	case "array":
		return rv.Kind() == reflect.Slice || rv.Kind() == reflect.Array
	case "object":
		return rv.Kind() == reflect.Map && rv.Type().Key().Kind() == reflect.String
	case "null":
		return val == nil
	}
	return true // unknown schema types are not enforced
}

func isNumber(rv reflect.Value) bool {
	return rv.CanInt() || rv.CanUint() || rv.CanFloat()
}

func jsonKind(val any) string {
	rv := reflect.ValueOf(val)
	switch {
	case rv.Kind() == reflect.String:
		return "string"
	case rv.Kind() == reflect.Bool:
		return "boolean"
	case isNumber(rv):
		return "number"
	case rv.Kind() == reflect.Slice || rv.Kind() == reflect.Array:
		return "array"
	case rv.Kind() == reflect.Map:
		return "object"
	}
	return fmt.Sprintf("%T", val)
}

func checkEnum(spec, val any) string {
	var allowed []string
	switch e := spec.(type) {
	case []string:
		allowed = e
	case []any:
		for _, x := range e {
			allowed = append(allowed, fmt.Sprint(x))
		}
	default:
		return ""
	}
	if len(allowed) == 0 {
		return ""
	}
	got := fmt.Sprint(val)
	for _, a := range allowed {
		if a == got {
			return ""
		}
	}
	return fmt.Sprintf("value %q is not one of [%s]", got, strings.Join(allowed, ", "))
}
