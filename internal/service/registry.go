package service

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/Strob0t/AgentForge/internal/domain"
)

// ToolRegistry maps tool names to argument schemas. It is populated at
// startup, sealed, and then shared read-only by every task.
type ToolRegistry struct {
	mu     sync.RWMutex
	tools  map[string]mcp.Tool
	order  []string
	sealed bool
}

// NewToolRegistry creates an empty registry.
func NewToolRegistry() *ToolRegistry {
	return &ToolRegistry{tools: make(map[string]mcp.Tool)}
}

// Register adds tools. Tools built from a raw JSON schema are decoded so the
// validator sees their properties.
func (r *ToolRegistry) Register(tools ...mcp.Tool) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.sealed {
		return errors.New("tool registry is sealed")
	}
	for i := range tools {
		t := tools[i]
		if t.Name == "" {
			return fmt.Errorf("tool name: %w", domain.ErrValidation)
		}
		if _, dup := r.tools[t.Name]; dup {
			return fmt.Errorf("tool %q: %w", t.Name, domain.ErrConflict)
		}
		if len(t.RawInputSchema) > 0 && len(t.InputSchema.Properties) == 0 {
			if err := json.Unmarshal(t.RawInputSchema, &t.InputSchema); err != nil {
				return fmt.Errorf("tool %q schema: %w", t.Name, err)
			}
		}
		r.tools[t.Name] = t
		r.order = append(r.order, t.Name)
	}
	return nil
}

// Seal makes the registry read-only.
func (r *ToolRegistry) Seal() {
	r.mu.Lock()
	r.sealed = true
	r.mu.Unlock()
}

// Lookup returns the tool registered under name.
func (r *ToolRegistry) Lookup(name string) (mcp.Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tools[name]
	return t, ok
}

// List returns all tools in registration order.
func (r *ToolRegistry) List() []mcp.Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]mcp.Tool, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.tools[name])
	}
	return out
}
