// Package services provides the in-process service layer used by pewpi
// clients: an opaque bearer token store, a mock multi-method session
// coordinator, a priority-ordered event bus, and a declarative finite
// state machine registry.
//
// Every component is an explicitly constructed value with injected
// dependencies; there is no package-level state. Components implement the
// Component interface so a Loader can initialize them in dependency order
// and aggregate their status snapshots.
//
// All state is held in memory. Credential checks are shape-based
// placeholders (length and prefix rules), not real verification, and the
// optional session mirror is a single best-effort key/value slot.
package services
