package domain

import (
	"encoding/json"
	"sort"
)

// ToolDescriptor is a provider-advertised tool as returned by tools/list.
// Descriptors are never cached: the provider may change them between sessions.
type ToolDescriptor struct {
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	InputSchema map[string]any `json:"inputSchema,omitempty"`
}

// ParamKind is the runtime type tag of a tool parameter.
type ParamKind string

const (
	KindString  ParamKind = "string"
	KindNumber  ParamKind = "number"
	KindInteger ParamKind = "integer"
	KindBoolean ParamKind = "boolean"
	KindArray   ParamKind = "array"
	KindObject  ParamKind = "object"
	// KindAny accepts any value. Used for absent or unrecognized type tags.
	KindAny     ParamKind = "any"
)

// ParseParamKind maps a schema type name to a ParamKind.
// Unknown names map to KindAny.
func ParseParamKind(s string) ParamKind {
	switch ParamKind(s) {
	case KindString, KindNumber, KindInteger, KindBoolean, KindArray, KindObject:
		return ParamKind(s)
	default:
		return KindAny
	}
}

// ParamSpec describes one declared tool parameter.
type ParamSpec struct {
	Name        string    `json:"name"`
	Kind        ParamKind `json:"kind"`
	Required    bool      `json:"required"`
	Nullable    bool      `json:"nullable,omitempty"`
	Description string    `json:"description,omitempty"`
}

// Params extracts parameter specs from the descriptor's input schema.
//
// Two layouts are accepted: JSON Schema ({"type":"object","properties":{...},
// "required":[...]}) and a flat map of property name to {type, description,
// required}. A property is required if it is listed in the top-level
// required array or carries "required": true. Specs are sorted by name.
func (d *ToolDescriptor) Params() []ParamSpec {
	if len(d.InputSchema) == 0 {
		return nil
	}

	props, ok := d.InputSchema["properties"].(map[string]any)
	if !ok {
		props = make(map[string]any, len(d.InputSchema))
		for name, raw := range d.InputSchema {
			if _, isObj := raw.(map[string]any); isObj {
				props[name] = raw
			}
		}
	}

	requiredSet := make(map[string]bool)
	if list, ok := d.InputSchema["required"].([]any); ok {
		for _, item := range list {
			if name, ok := item.(string); ok {
				requiredSet[name] = true
			}
		}
	}

	specs := make([]ParamSpec, 0, len(props))
	for name, raw := range props {
		prop, _ := raw.(map[string]any)
		spec := ParamSpec{Name: name, Kind: KindAny, Required: requiredSet[name]}
		if prop != nil {
			spec.Kind, spec.Nullable = parseTypeTag(prop["type"])
			if desc, ok := prop["description"].(string); ok {
				spec.Description = desc
			}
			if req, ok := prop["required"].(bool); ok && req {
				spec.Required = true
			}
		}
		specs = append(specs, spec)
	}

	sort.Slice(specs, func(i, j int) bool { return specs[i].Name < specs[j].Name })
	return specs
}

// parseTypeTag handles both "type": "string" and "type": ["string", "null"].
func parseTypeTag(v any) (ParamKind, bool) {
	switch t := v.(type) {
	case string:
		return ParseParamKind(t), false
	case []any:
		kind := KindAny
		nullable := false
		for _, item := range t {
			name, _ := item.(string)
			if name == "null" {
				nullable = true
				continue
			}
			if kind == KindAny {
				kind = ParseParamKind(name)
			}
		}
		return kind, nullable
	default:
		return KindAny, false
	}
}

// InvokeErrorKind classifies a failed invocation for the orchestration layer.
type InvokeErrorKind string

const (
	InvokeErrorInvalidArguments       InvokeErrorKind = "invalid_arguments"
	InvokeErrorAuthenticationRequired InvokeErrorKind = "authentication_required"
	InvokeErrorTimeout                InvokeErrorKind = "timeout"
	InvokeErrorRPC                    InvokeErrorKind = "rpc_error"
	InvokeErrorHTTP                   InvokeErrorKind = "http_error"
	InvokeErrorCancelled              InvokeErrorKind = "cancelled"
	InvokeErrorConfiguration          InvokeErrorKind = "configuration_missing"
	InvokeErrorUnknownTool            InvokeErrorKind = "unknown_tool"
	InvokeErrorTransport              InvokeErrorKind = "transport_error"
)

// InvokeError describes why an invocation failed.
// Code carries the JSON-RPC error code or the HTTP status when relevant.
type InvokeError struct {
	Kind    InvokeErrorKind `json:"kind"`
	Message string          `json:"message"`
	Code    int             `json:"code,omitempty"`
}

func (e *InvokeError) Error() string {
	return string(e.Kind) + ": " + e.Message
}

// InvokeResult is the uniform outcome of a tool invocation.
// Exactly one of Result and Error is set.
type InvokeResult struct {
	Success bool            `json:"success"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *InvokeError    `json:"error,omitempty"`
}
