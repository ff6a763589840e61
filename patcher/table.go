package patcher

import (
	"errors"
	"fmt"
	"sort"

	"github.com/psychosynth/psynth/graph"
)

// AnyInput means that any free input of the socket type can be used.
const AnyInput = -1

// ErrAsymmetric is returned when compatibility of a kind pair is declared
// only in one direction.
var ErrAsymmetric = errors.New("asymmetric compatibility table")

type (
	// Rule tells which ports are connected when producer feeds consumer.
	Rule struct {
		Socket graph.PortType
		Out    int
		In     int
	}

	// Table is a static compatibility table of node kinds. Every pair of
	// kinds is either compatible with a rule or explicitly incompatible.
	Table struct {
		entries map[pair]entry
	}

	pair struct {
		producer string
		consumer string
	}

	entry struct {
		rule       Rule
		compatible bool
	}
)

// NewTable returns an empty table.
func NewTable() *Table {
	return &Table{
		entries: make(map[pair]entry),
	}
}

// Set declares that producer can feed consumer.
func (t *Table) Set(producer, consumer string, r Rule) *Table {
	t.entries[pair{producer, consumer}] = entry{rule: r, compatible: true}
	return t
}

// Forbid declares that producer cannot feed consumer.
func (t *Table) Forbid(producer, consumer string) *Table {
	t.entries[pair{producer, consumer}] = entry{}
	return t
}

// Lookup returns the rule for the pair. False is returned if the pair is
// incompatible or not declared.
func (t *Table) Lookup(producer, consumer string) (Rule, bool) {
	e := t.entries[pair{producer, consumer}]
	return e.rule, e.compatible
}

// Kinds returns all kinds mentioned in the table in lexical order.
func (t *Table) Kinds() []string {
	set := map[string]struct{}{}
	for p := range t.entries {
		set[p.producer] = struct{}{}
		set[p.consumer] = struct{}{}
	}
	kinds := make([]string, 0, len(set))
	for k := range set {
		kinds = append(kinds, k)
	}
	sort.Strings(kinds)
	return kinds
}

// Validate checks that every declared pair is declared in both
// directions.
func (t *Table) Validate() error {
	var missing []string
	for p := range t.entries {
		if _, ok := t.entries[pair{p.consumer, p.producer}]; !ok {
			missing = append(missing, fmt.Sprintf("%s->%s", p.consumer, p.producer))
		}
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return fmt.Errorf("missing %v: %w", missing, ErrAsymmetric)
	}
	return nil
}
