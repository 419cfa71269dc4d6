package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/mark3labs/mcp-go/mcp"

	"github.com/giantswarm/mcp-hive/internal/server"
)

var (
	// ErrDuplicateTool is returned when a tool name is registered twice.
	ErrDuplicateTool = errors.New("tool already registered")

	// ErrRegistrySealed is returned when registering after Seal.
	ErrRegistrySealed = errors.New("tool registry is sealed")

	// ErrInvalidDescriptor is returned for descriptors without a name or
	// handler.
	ErrInvalidDescriptor = errors.New("invalid tool descriptor")
)

// Handler runs one tool call. Returning a *ToolError picks the envelope
// kind; any other error is classified by the dispatcher.
type Handler func(ctx context.Context, call *Call, sc *server.ServerContext) (*mcp.CallToolResult, error)

// Descriptor describes one tool. Descriptors are immutable once the
// registry is sealed.
type Descriptor struct {
	Tool    mcp.Tool
	Handler Handler

	// Mutating tools are refused in non-destructive mode unless dry-run is
	// enabled. Operation names the action in the refusal message.
	Mutating  bool
	Operation string

	// Streaming tools may send progress notifications before their result.
	Streaming bool
}

// Name returns the tool name.
func (d Descriptor) Name() string {
	return d.Tool.Name
}

// UnknownToolError is returned when a call names a tool that is not
// registered.
type UnknownToolError struct {
	Name string
}

func (e *UnknownToolError) Error() string {
	return fmt.Sprintf("unknown tool %q", e.Name)
}

// ValidationError is returned when arguments do not match a tool's input
// schema.
type ValidationError struct {
	Tool   string
	Reason string
	Err    error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid arguments for %s: %s", e.Tool, e.Reason)
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

type registered struct {
	desc   Descriptor
	schema *jsonschema.Resolved
}

// Registry holds the tools a server exposes, in registration order.
type Registry struct {
	mu     sync.RWMutex
	order  []string
	tools  map[string]*registered
	sealed bool
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]*registered)}
}

// Register adds a tool. The input schema is compiled here so that a broken
// schema fails at startup rather than on the first call.
func (r *Registry) Register(desc Descriptor) error {
	name := desc.Name()
	if name == "" {
		return fmt.Errorf("%w: empty name", ErrInvalidDescriptor)
	}
	if desc.Handler == nil {
		return fmt.Errorf("%w: %s has no handler", ErrInvalidDescriptor, name)
	}

	schema, err := compileSchema(desc.Tool)
	if err != nil {
		return fmt.Errorf("%w: %s: %w", ErrInvalidDescriptor, name, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.sealed {
		return fmt.Errorf("%w: cannot register %s", ErrRegistrySealed, name)
	}
	if _, ok := r.tools[name]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateTool, name)
	}
	r.tools[name] = &registered{desc: desc, schema: schema}
	r.order = append(r.order, name)
	return nil
}

// Seal prevents further registrations.
func (r *Registry) Seal() {
	r.mu.Lock()
	r.sealed = true
	r.mu.Unlock()
}

// Sealed reports whether Seal was called.
func (r *Registry) Sealed() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.sealed
}

// Len returns the number of registered tools.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.order)
}

// Describe returns every descriptor in registration order.
func (r *Registry) Describe() []Descriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Descriptor, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.tools[name].desc)
	}
	return out
}

// Resolve returns the descriptor registered under name.
func (r *Registry) Resolve(name string) (Descriptor, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	reg, ok := r.tools[name]
	if !ok {
		return Descriptor{}, &UnknownToolError{Name: name}
	}
	return reg.desc, nil
}

// Validate checks args against the input schema of the named tool. Nil
// args validate as an empty object.
func (r *Registry) Validate(name string, args map[string]any) error {
	r.mu.RLock()
	reg, ok := r.tools[name]
	r.mu.RUnlock()
	if !ok {
		return &UnknownToolError{Name: name}
	}
	if reg.schema == nil {
		return nil
	}
	if args == nil {
		args = map[string]any{}
	}
	if err := reg.schema.Validate(args); err != nil {
		return &ValidationError{Tool: name, Reason: err.Error(), Err: err}
	}
	return nil
}

func compileSchema(tool mcp.Tool) (*jsonschema.Resolved, error) {
	var raw []byte
	if len(tool.RawInputSchema) > 0 {
		raw = tool.RawInputSchema
	} else {
		data, err := json.Marshal(tool.InputSchema)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal input schema: %w", err)
		}
		raw = data
	}

	var schema jsonschema.Schema
	if err := json.Unmarshal(raw, &schema); err != nil {
		return nil, fmt.Errorf("failed to parse input schema: %w", err)
	}
	resolved, err := schema.Resolve(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to compile input schema: %w", err)
	}
	return resolved, nil
}
