package graph

import (
	"fmt"
	"math"
	"sync/atomic"
)

// ParamType is the type tag of a param value.
type ParamType int

const (
	// Int param holds int value.
	Int ParamType = iota
	// Float param holds float64 value.
	Float
	// String param holds string value.
	String
	// Bool param holds bool value.
	Bool
	// Vector param holds Vec2 value.
	Vector
)

// ParamPosition is the id of the position param every node has.
const ParamPosition = 0

// PositionName is the name of the position param.
const PositionName = "position"

func (t ParamType) String() string {
	switch t {
	case Int:
		return "int"
	case Float:
		return "float"
	case String:
		return "string"
	case Bool:
		return "bool"
	case Vector:
		return "vector"
	}
	return fmt.Sprintf("param type %d", int(t))
}

// Vec2 is a 2D vector, used for node positions.
type Vec2 struct {
	X, Y float64
}

// SquaredDistance returns the squared euclidean distance between vectors.
func (v Vec2) SquaredDistance(o Vec2) float64 {
	dx, dy := v.X-o.X, v.Y-o.Y
	return dx*dx + dy*dy
}

// SquaredLength returns the squared distance to the origin.
func (v Vec2) SquaredLength() float64 {
	return v.X*v.X + v.Y*v.Y
}

type (
	// Param is an input control of a node. It keeps two values: the one
	// set by user and the snapshot visible to the real-time domain. Set
	// updates the user value immediately and the snapshot after the next
	// flip of the real-time domain.
	Param struct {
		id       int
		name     string
		typ      ParamType
		node     *Node
		user     any
		rt       any
		onChange func(*Param)
	}

	// State is an output control of a node. It mirrors node-internal
	// float value outward and can be read from any goroutine.
	State struct {
		name  string
		node  *Node
		index int
		bits  atomic.Uint64
	}
)

// NewParam creates a new param with initial value. It panics if initial
// value doesn't match the type.
func NewParam(name string, typ ParamType, initial any) *Param {
	v, err := coerce(typ, initial)
	if err != nil {
		panic(fmt.Sprintf("param %q: %v", name, err))
	}
	return &Param{
		name: name,
		typ:  typ,
		user: v,
		rt:   v,
	}
}

// coerce checks the value against the type. Numeric values are converted
// where it's lossless enough to be convenient.
func coerce(typ ParamType, v any) (any, error) {
	switch typ {
	case Int:
		if i, ok := v.(int); ok {
			return i, nil
		}
	case Float:
		switch f := v.(type) {
		case float64:
			return f, nil
		case float32:
			return float64(f), nil
		case int:
			return float64(f), nil
		}
	case String:
		if s, ok := v.(string); ok {
			return s, nil
		}
	case Bool:
		if b, ok := v.(bool); ok {
			return b, nil
		}
	case Vector:
		if vec, ok := v.(Vec2); ok {
			return vec, nil
		}
	}
	return nil, fmt.Errorf("%T for %v param: %w", v, typ, ErrParamType)
}

// ID returns the stable id of the param.
func (p *Param) ID() int { return p.id }

// Name returns the name of the param.
func (p *Param) Name() string { return p.name }

// Type returns the type tag of the param.
func (p *Param) Type() ParamType { return p.typ }

// Node returns the node param belongs to.
func (p *Param) Node() *Node { return p.node }

// OnChange sets the callback, executed in the real-time domain every time
// the snapshot is updated.
func (p *Param) OnChange(fn func(*Param)) *Param {
	p.onChange = fn
	return p
}

// Set updates the user value and schedules the snapshot update.
func (p *Param) Set(v any) error {
	v, err := coerce(p.typ, v)
	if err != nil {
		return fmt.Errorf("set %q: %w", p.name, err)
	}
	p.user = v
	update := func() {
		p.rt = v
		if p.onChange != nil {
			p.onChange(p)
		}
	}
	if p.node == nil {
		update()
		return nil
	}
	p.node.apply(update)
	return nil
}

// Get returns the user value.
func (p *Param) Get() any { return p.user }

// Float returns the user value as float64.
func (p *Param) Float() float64 {
	f, _ := p.user.(float64)
	return f
}

// Int returns the user value as int.
func (p *Param) Int() int {
	i, _ := p.user.(int)
	return i
}

// Text returns the user value as string.
func (p *Param) Text() string {
	s, _ := p.user.(string)
	return s
}

// Bool returns the user value as bool.
func (p *Param) Bool() bool {
	b, _ := p.user.(bool)
	return b
}

// Vec2 returns the user value as Vec2.
func (p *Param) Vec2() Vec2 {
	v, _ := p.user.(Vec2)
	return v
}

// RTFloat returns the real-time snapshot as float64.
func (p *Param) RTFloat() float64 {
	f, _ := p.rt.(float64)
	return f
}

// RTInt returns the real-time snapshot as int.
func (p *Param) RTInt() int {
	i, _ := p.rt.(int)
	return i
}

// RTText returns the real-time snapshot as string.
func (p *Param) RTText() string {
	s, _ := p.rt.(string)
	return s
}

// RTBool returns the real-time snapshot as bool.
func (p *Param) RTBool() bool {
	b, _ := p.rt.(bool)
	return b
}

// NewState creates a new output control.
func NewState(name string) *State {
	return &State{name: name}
}

// Name returns the name of the state.
func (s *State) Name() string { return s.name }

// Index returns the position of the state on its node.
func (s *State) Index() int { return s.index }

// Set publishes a new value. Typically called from the real-time domain.
func (s *State) Set(v float64) {
	s.bits.Store(math.Float64bits(v))
}

// Get returns the last published value.
func (s *State) Get() float64 {
	return math.Float64frombits(s.bits.Load())
}
