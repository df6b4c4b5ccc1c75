package services

import (
	"encoding/json"
	"fmt"
	"math"
	"reflect"
	"sort"

	"github.com/custodia-labs/toolbridge/internal/core/domain"
)

// validateArgs checks args against params without any I/O.
// Arguments that are not declared pass through untouched.
func validateArgs(toolName string, params []domain.ParamSpec, args map[string]any) error {
	var fields []domain.FieldError

	for _, p := range params {
		v, present := args[p.Name]
		if !present {
			if p.Required {
				fields = append(fields, domain.FieldError{Field: p.Name, Message: "is required"})
			}
			continue
		}
		if v == nil {
			if !p.Nullable && p.Kind != domain.KindAny {
				if p.Required {
					fields = append(fields, domain.FieldError{Field: p.Name, Message: "is required"})
				} else {
					fields = append(fields, domain.FieldError{Field: p.Name, Message: "must not be null"})
				}
			}
			continue
		}
		if !matchesKind(p.Kind, v) {
			fields = append(fields, domain.FieldError{
				Field:   p.Name,
				Message: fmt.Sprintf("must be %s, got %s", articleFor(p.Kind), describeValue(v)),
			})
		}
	}

	if len(fields) == 0 {
		return nil
	}
	sort.Slice(fields, func(i, j int) bool { return fields[i].Field < fields[j].Field })
	return &domain.ValidationError{Tool: toolName, Fields: fields}
}

func matchesKind(kind domain.ParamKind, v any) bool {
	switch kind {
	case domain.KindString:
		_, ok := v.(string)
		return ok
	case domain.KindBoolean:
		_, ok := v.(bool)
		return ok
	case domain.KindNumber:
		_, ok := toFloat(v)
		return ok
	case domain.KindInteger:
		f, ok := toFloat(v)
		return ok && !math.IsInf(f, 0) && f == math.Trunc(f)
	case domain.KindArray:
		if _, ok := v.([]any); ok {
			return true
		}
		k := reflect.TypeOf(v).Kind()
		return k == reflect.Slice || k == reflect.Array
	case domain.KindObject:
		if _, ok := v.(map[string]any); ok {
			return true
		}
		t := reflect.TypeOf(v)
		return t.Kind() == reflect.Map && t.Key().Kind() == reflect.String
	default:
		return true
	}
}

// toFloat accepts the numeric forms produced by encoding/json and by Go callers.
func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, !math.IsNaN(n)
	case float32:
		return float64(n), !math.IsNaN(float64(n))
	case int:
		return float64(n), true
	case int8:
		return float64(n), true
	case int16:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint8:
		return float64(n), true
	case uint16:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}

func articleFor(kind domain.ParamKind) string {
	switch kind {
	case domain.KindInteger, domain.KindArray, domain.KindObject:
		return "an " + string(kind)
	default:
		return "a " + string(kind)
	}
}

func describeValue(v any) string {
	switch v.(type) {
	case string:
		return "string"
	case bool:
		return "boolean"
	case []any:
		return "array"
	case map[string]any:
		return "object"
	}
	if _, ok := toFloat(v); ok {
		return "number"
	}
	return reflect.TypeOf(v).String()
}
