package dispatchy

import (
	"slices"
	"sync"
)

// Tool pairs a name with the adapter that executes it. Tools are created at
// registration time and read-only during execution.
type Tool struct {
	Name        string
	Description string
	// Schema is the JSON Schema of the tool's arguments (for export to LLM
	// providers). May be nil for tools built directly from adapters.
	Schema map[string]any
	// Adapter executes the tool and owns the declared parameter order.
	Adapter Adapter
}

// Resolver maps a call name to its Tool. The executor treats it as an
// external collaborator; Registry is the bundled implementation.
type Resolver interface {
	Resolve(name string) (Tool, bool)
}

// ResolverFunc adapts a plain function to the Resolver interface.
type ResolverFunc func(name string) (Tool, bool)

func (f ResolverFunc) Resolve(name string) (Tool, bool) { return f(name) }

// Registry is a minimal name -> Tool map implementing Resolver.
// Safe for concurrent use with Execute and other Register calls.
type Registry struct {
	mu    sync.Mutex
	tools map[string]Tool
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]Tool)}
}

// Register adds a tool. If a tool with the same name already exists, it is replaced.
func (r *Registry) Register(t Tool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tools[t.Name] = t
}

// Resolve returns the tool with the given name, or (Tool{}, false) if not found.
func (r *Registry) Resolve(name string) (Tool, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.tools[name]
	return t, ok
}

// Tools returns all registered tools sorted by name for deterministic order
// (e.g. for exporting definitions to LLM providers).
func (r *Registry) Tools() []Tool {
	r.mu.Lock()
	defer r.mu.Unlock()
	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	slices.Sort(names)
	out := make([]Tool, 0, len(names))
	for _, name := range names {
		out = append(out, r.tools[name])
	}
	return out
}

var _ Resolver = (*Registry)(nil)
