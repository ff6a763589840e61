/*
Package node provides the built-in node kinds and the registry used to
create nodes by their kind.

Every kind is a graph.Impl with a constructor that registers its ports and
controls. Kinds only matter to the registry and to the patch table, nodes
of different kinds are processed the same way.
*/
package node

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/psychosynth/psynth"
	"github.com/psychosynth/psynth/graph"
	"github.com/psychosynth/psynth/signal"
)

// Kinds of built-in nodes.
const (
	KindOscillator   = "oscillator"
	KindLFO          = "lfo"
	KindNoise        = "noise"
	KindMixer        = "mixer"
	KindControlMixer = "control_mixer"
	KindFilter       = "filter"
	KindSampler      = "sampler"
	KindOutput       = "output"
)

var (
	// ErrUnknownKind is returned when node kind is not registered.
	ErrUnknownKind = errors.New("unknown node kind")
	// ErrDuplicateKind is returned when node kind is already registered.
	ErrDuplicateKind = errors.New("duplicate node kind")
)

// Constructor creates a new detached node.
type Constructor func(ctx *psynth.Context, f signal.Format) (*graph.Node, error)

// Registry maps node kinds to their constructors. It's safe for
// concurrent use.
type Registry struct {
	mu           sync.RWMutex
	constructors map[string]Constructor
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		constructors: make(map[string]Constructor),
	}
}

// Standard returns a registry with all built-in kinds.
func Standard() *Registry {
	r := NewRegistry()
	builtin := map[string]Constructor{
		KindOscillator: func(ctx *psynth.Context, f signal.Format) (*graph.Node, error) {
			return NewOscillator(f), nil
		},
		KindLFO: func(ctx *psynth.Context, f signal.Format) (*graph.Node, error) {
			return NewLFO(f), nil
		},
		KindNoise: func(ctx *psynth.Context, f signal.Format) (*graph.Node, error) {
			return NewNoise(f), nil
		},
		KindMixer: func(ctx *psynth.Context, f signal.Format) (*graph.Node, error) {
			return NewMixer(f, MixerInputs), nil
		},
		KindControlMixer: func(ctx *psynth.Context, f signal.Format) (*graph.Node, error) {
			return NewControlMixer(f, MixerInputs), nil
		},
		KindFilter: func(ctx *psynth.Context, f signal.Format) (*graph.Node, error) {
			return NewFilter(f), nil
		},
		KindSampler: func(ctx *psynth.Context, f signal.Format) (*graph.Node, error) {
			n, _ := NewSampler(ctx, f)
			return n, nil
		},
		KindOutput: func(ctx *psynth.Context, f signal.Format) (*graph.Node, error) {
			n, _ := NewOutput(ctx, f, DefaultRingFrames)
			return n, nil
		},
	}
	for kind, c := range builtin {
		// kinds are unique in the map.
		_ = r.Register(kind, c)
	}
	return r
}

// Register adds the constructor of the kind.
func (r *Registry) Register(kind string, c Constructor) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.constructors[kind]; ok {
		return fmt.Errorf("register %q: %w", kind, ErrDuplicateKind)
	}
	r.constructors[kind] = c
	return nil
}

// Create returns a new node of provided kind.
func (r *Registry) Create(kind string, ctx *psynth.Context, f signal.Format) (*graph.Node, error) {
	r.mu.RLock()
	c, ok := r.constructors[kind]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("create %q: %w", kind, ErrUnknownKind)
	}
	n, err := c(ctx, f)
	if err != nil {
		return nil, fmt.Errorf("create %q: %w", kind, err)
	}
	return n, nil
}

// Kinds returns registered kinds in lexical order.
func (r *Registry) Kinds() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	kinds := make([]string, 0, len(r.constructors))
	for kind := range r.constructors {
		kinds = append(kinds, kind)
	}
	sort.Strings(kinds)
	return kinds
}
