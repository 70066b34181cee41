package module

// Ports exposes the orchestrator trigger port for cross-module wiring
func (m *Module) Ports() any { return m.ports }
