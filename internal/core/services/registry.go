package services

import (
	"context"
	"strconv"
	"strings"

	"github.com/custodia-labs/toolbridge/internal/core/domain"
	"github.com/custodia-labs/toolbridge/internal/core/ports/driving"
)

// Ensure Registry implements ToolRegistry and Tool implements Invocable
var (
	_ driving.ToolRegistry = (*Registry)(nil)
	_ driving.Invocable    = (*Tool)(nil)
)

// SanitizeToolName replaces every character outside [A-Za-z0-9_] with '_'.
func SanitizeToolName(name string) string {
	if name == "" {
		return "_"
	}
	var b strings.Builder
	b.Grow(len(name))
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	return b.String()
}

// toolCaller performs a validated invocation for one user.
type toolCaller interface {
	call(ctx context.Context, userID, endpoint, name string, args map[string]any) domain.InvokeResult
}

// Registry is the set of tools from one discovery cycle.
// It is never reused across cycles.
type Registry struct {
	tools  []*Tool
	byKey  map[string]*Tool
	byName map[string]*Tool
}

// NewRegistry compiles descriptors into invocable tools bound to a user and endpoint.
// Keys that collide after sanitization get _2, _3, ... suffixes in discovery order.
func NewRegistry(userID, endpoint string, descriptors []domain.ToolDescriptor, caller toolCaller) *Registry {
	r := &Registry{
		tools:  make([]*Tool, 0, len(descriptors)),
		byKey:  make(map[string]*Tool, len(descriptors)),
		byName: make(map[string]*Tool, len(descriptors)),
	}

	for _, d := range descriptors {
		key := uniqueKey(SanitizeToolName(d.Name), r.byKey)
		t := &Tool{
			key:        key,
			descriptor: d,
			params:     d.Params(),
			userID:     userID,
			endpoint:   endpoint,
			caller:     caller,
		}
		r.tools = append(r.tools, t)
		r.byKey[key] = t
		if _, dup := r.byName[d.Name]; !dup {
			r.byName[d.Name] = t
		}
	}
	return r
}

func uniqueKey(base string, taken map[string]*Tool) string {
	if _, ok := taken[base]; !ok {
		return base
	}
	for i := 2; ; i++ {
		candidate := base + "_" + strconv.Itoa(i)
		if _, ok := taken[candidate]; !ok {
			return candidate
		}
	}
}

// Tools returns the tools in discovery order.
func (r *Registry) Tools() []driving.Invocable {
	out := make([]driving.Invocable, len(r.tools))
	for i, t := range r.tools {
		out[i] = t
	}
	return out
}

// Lookup finds a tool by sanitized key, then by original name.
func (r *Registry) Lookup(name string) (driving.Invocable, bool) {
	if t, ok := r.byKey[name]; ok {
		return t, true
	}
	if t, ok := r.byName[name]; ok {
		return t, true
	}
	return nil, false
}

// Tool is one provider tool compiled into a callable capability.
type Tool struct {
	key        string
	descriptor domain.ToolDescriptor
	params     []domain.ParamSpec
	userID     string
	endpoint   string
	caller     toolCaller
}

func (t *Tool) Key() string                { return t.key }
func (t *Tool) Name() string               { return t.descriptor.Name }
func (t *Tool) Description() string        { return t.descriptor.Description }
func (t *Tool) Params() []domain.ParamSpec { return t.params }

// Validate checks args against the tool's parameters.
func (t *Tool) Validate(args map[string]any) error {
	return validateArgs(t.descriptor.Name, t.params, args)
}

// Invoke validates args locally and only then calls the provider.
func (t *Tool) Invoke(ctx context.Context, args map[string]any) domain.InvokeResult {
	if err := t.Validate(args); err != nil {
		return failure(err)
	}
	if args == nil {
		args = map[string]any{}
	}
	return t.caller.call(ctx, t.userID, t.endpoint, t.descriptor.Name, args)
}
