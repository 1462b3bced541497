package tools

import (
	"context"
	"fmt"
	"strings"
	"sync"
)

type ParamType string

const (
	ParamString ParamType = "string"
	ParamNumber ParamType = "number"
)

type Param struct {
	Name        string
	Type        ParamType
	Description string
	Required    bool
}

// Declaration is the function signature advertised to the model.
type Declaration struct {
	Name        string
	Description string
	Params      []Param
}

type Handler func(ctx context.Context, args Args) (string, error)

type Capability struct {
	Declaration
	// Validate runs before Handler. Optional.
	Validate func(args Args) error
	Handler  Handler
}

// Registry maps tool names to capabilities in registration order.
type Registry struct {
	mu    sync.RWMutex
	caps  map[string]Capability
	order []string
}

func NewRegistry() *Registry {
	return &Registry{caps: make(map[string]Capability)}
}

func (r *Registry) Register(c Capability) error {
	name := strings.TrimSpace(c.Name)
	if name == "" {
		return fmt.Errorf("tool name is required")
	}
	if c.Handler == nil {
		return fmt.Errorf("tool %s: handler is required", name)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.caps[name]; exists {
		return fmt.Errorf("tool %s already registered", name)
	}
	c.Name = name
	r.caps[name] = c
	r.order = append(r.order, name)
	return nil
}

func (r *Registry) Lookup(name string) (Capability, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.caps[name]
	return c, ok
}

func (r *Registry) Declarations() []Declaration {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Declaration, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.caps[name].Declaration)
	}
	return out
}

// requireArgs returns a ValidationError for the first missing required param.
func requireArgs(d Declaration, args Args) error {
	for _, p := range d.Params {
		if !p.Required {
			continue
		}
		missing := args.String(p.Name) == ""
		if p.Type == ParamNumber {
			_, ok := args[p.Name]
			missing = !ok
		}
		if missing {
			return &ValidationError{
				Tool:    d.Name,
				Field:   p.Name,
				Message: fmt.Sprintf("Missing required argument '%s'. Ask the user for it before calling %s.", p.Name, d.Name),
			}
		}
	}
	return nil
}
