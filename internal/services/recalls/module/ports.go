package module

// Ports exposes the recalls service for cross-module wiring (the ingest
// module consumes the write path)
func (m *Module) Ports() any { return m.ports }
