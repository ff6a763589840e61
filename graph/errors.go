package graph

import (
	"errors"
	"fmt"
)

var (
	// ErrAlreadyAttached is returned when node is attached to a patch or
	// a process while it's already attached to one.
	ErrAlreadyAttached = errors.New("already attached")
	// ErrNotAttached is returned when node is detached while it's not
	// attached.
	ErrNotAttached = errors.New("not attached")
	// ErrDuplicateComponent is returned when component with the same name
	// is already registered.
	ErrDuplicateComponent = errors.New("duplicate component")
	// ErrUnknownComponent is returned when component lookup fails.
	ErrUnknownComponent = errors.New("unknown component")
	// ErrUnknownNode is returned when node lookup fails.
	ErrUnknownNode = errors.New("unknown node")
	// ErrPortType is returned when ports of different types are connected.
	ErrPortType = errors.New("port type mismatch")
	// ErrCrossPatch is returned when ports of nodes from different patches
	// are connected.
	ErrCrossPatch = errors.New("ports belong to different patches")
	// ErrParamType is returned when param value has wrong type.
	ErrParamType = errors.New("param type mismatch")
)

// attachError wraps attachment errors with node id and the operation.
func attachError(n *Node, op string, err error) error {
	return fmt.Errorf("node %d (%s) %s: %w", n.id, n.kind, op, err)
}

// componentError wraps lookup and registration errors.
func componentError(n *Node, c string, name string, err error) error {
	return fmt.Errorf("node %d (%s) %s %q: %w", n.id, n.kind, c, name, err)
}
