// Package harness provides the host-side process context for telemetry:
// process role, lifecycle event bus, run metadata store, and the demo
// load scheduler that drives request events.
package harness

import "fmt"

type roleKind int

const (
	rolePrimary roleKind = iota
	roleAgent
)

// Role identifies a process as the coordinating primary or one of the
// cooperating agents. It is decided once at process start and threaded
// through every component.
type Role struct {
	kind  roleKind
	index int
}

// Primary returns the role of the coordinating process.
func Primary() Role {
	return Role{kind: rolePrimary}
}

// Agent returns the role of the worker process with the given index.
func Agent(index int) Role {
	return Role{kind: roleAgent, index: index}
}

// IsPrimary reports whether this is the coordinating process.
func (r Role) IsPrimary() bool {
	return r.kind == rolePrimary
}

// IsAgent reports whether this is a worker process.
func (r Role) IsAgent() bool {
	return r.kind == roleAgent
}

// Index returns the agent index. It is 0 for the primary.
func (r Role) Index() int {
	return r.index
}

// String returns "primary" or "agent-<index>".
func (r Role) String() string {
	if r.kind == rolePrimary {
		return "primary"
	}
	return fmt.Sprintf("agent-%d", r.index)
}
