package engine

import (
	"fmt"
)

// Manager keeps the registered engines and picks one per run.
type Manager struct {
	engines       map[string]Engine
	order         []string
	defaultEngine string
}

// NewManager returns a registry that prefers defaultEngine when no explicit
// choice is made.
func NewManager(defaultEngine string) *Manager {
	return &Manager{
		engines:       make(map[string]Engine),
		defaultEngine: defaultEngine,
	}
}

// Register adds an engine. Re-registering a name replaces the engine but
// keeps its original position.
func (m *Manager) Register(e Engine) {
	if e == nil {
		return
	}
	if _, exists := m.engines[e.Name()]; !exists {
		m.order = append(m.order, e.Name())
	}
	m.engines[e.Name()] = e
}

// Engines returns the registered engines in registration order.
func (m *Manager) Engines() []Engine {
	out := make([]Engine, 0, len(m.order))
	for _, name := range m.order {
		out = append(out, m.engines[name])
	}
	return out
}

// Select resolves which engine a run should use. An explicit name must
// resolve and be available; otherwise the configured default is preferred,
// falling back to the first available engine.
func (m *Manager) Select(name string) (Engine, error) {
	if name != "" {
		e, ok := m.engines[name]
		if !ok {
			return nil, fmt.Errorf("unknown engine %q", name)
		}
		if !e.IsAvailable() {
			return nil, fmt.Errorf("engine %q is not available", name)
		}
		return e, nil
	}
	if m.defaultEngine != "" {
		if e, ok := m.engines[m.defaultEngine]; ok && e.IsAvailable() {
			return e, nil
		}
	}
	for _, n := range m.order {
		if e := m.engines[n]; e.IsAvailable() {
			return e, nil
		}
	}
	return nil, fmt.Errorf("no coregistration engine available")
}
