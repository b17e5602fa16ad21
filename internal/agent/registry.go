package agent

import "fmt"

// Registry is a lookup from artifact-type tag to the Agent that
// interprets values of that type. It is write-only during process
// startup: Register is expected to be called a handful of times from
// init-time wiring code, never from request-handling paths. Treat a
// *Registry as a configuration object passed by reference, not a
// mutable singleton — callers that need a registry thread it through
// explicitly rather than reaching for a package-level instance.
type Registry struct {
	agents map[Type]Agent
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{agents: make(map[Type]Agent)}
}

// Register adds an agent under its own Type(). It panics on a
// duplicate registration — that is a startup-time programming error,
// not a runtime condition callers should handle.
func (r *Registry) Register(a Agent) {
	t := a.Type()
	if _, exists := r.agents[t]; exists {
		panic(fmt.Sprintf("agent: duplicate registration for type %q", t))
	}
	r.agents[t] = a
}

// Lookup returns the agent for a type tag and whether it was found.
// Lookup is constant-time and safe for concurrent use once
// registration has finished.
func (r *Registry) Lookup(t Type) (Agent, bool) {
	a, ok := r.agents[t]
	return a, ok
}

// MustLookup is a convenience for callers that have already verified
// (or can only tolerate) a registered type — it panics otherwise,
// which should never happen for persisted data since every artifact
// carries its own type tag and the registry is populated before any
// artifact is loaded.
func (r *Registry) MustLookup(t Type) Agent {
	a, ok := r.agents[t]
	if !ok {
		panic(fmt.Sprintf("agent: no agent registered for type %q", t))
	}
	return a
}
