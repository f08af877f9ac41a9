// Package descriptor builds the language-neutral type descriptions that both
// the stack machine (machine) and any schema-to-prompt formatter consume. A
// Descriptor describes the expected shape of a value: its kind, element
// types, field table (for records), and the reflect.Type it originated from,
// so that a materialization hook can be located.
//
// Host-language type hints are Go's own reflect.Type values. Describe walks
// a reflect.Type the same way the teacher's codegen/mcp/mcp_schema.go walks a
// Goa attribute-expression tree: a type switch that recurses into element,
// key/value, or field types, guarded against cycles by a visited set.
package descriptor

import (
	"fmt"
	"reflect"
	"strings"

	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// Kind enumerates the shapes a Descriptor can take.
type Kind int

const (
	// String is a primitive UTF-8 text value.
	String Kind = iota
	// Int is a primitive signed integer value.
	Int
	// Float is a primitive floating point value.
	Float
	// Bool is a primitive boolean value.
	Bool
	// Any accepts an unconstrained value (used for unparameterized
	// containers and interface{} element types).
	Any
	// List is an ordered, repeatable sequence.
	List
	// Set is an unordered, deduplicated collection.
	Set
	// Tuple is a fixed-arity (or homogeneous-variadic) positional sequence.
	Tuple
	// Dict is a key-value map.
	Dict
	// Class is a named record with a field table.
	Class
	// Union is a discriminated choice between two or more alternatives.
	Union
	// Optional wraps exactly one inner type, resolving to null when absent.
	Optional
)

// String renders the Kind for diagnostics.
func (k Kind) String() string {
	switch k {
	case String:
		return "string"
	case Int:
		return "int"
	case Float:
		return "float"
	case Bool:
		return "bool"
	case Any:
		return "any"
	case List:
		return "list"
	case Set:
		return "set"
	case Tuple:
		return "tuple"
	case Dict:
		return "dict"
	case Class:
		return "class"
	case Union:
		return "union"
	case Optional:
		return "optional"
	default:
		return "unknown"
	}
}

// Descriptor is the structural type representation consumed by the scanner
// (to determine the root wanted tag name(s)) and the stack machine (to
// interpret events).
//
// Invariants: Tuple.Args is non-empty; Union.Args has at least two entries,
// all Class or primitive; Optional.Args has exactly one entry; Class.Name is
// a valid identifier.
type Descriptor struct {
	// Kind is the structural shape of the described value.
	Kind Kind
	// Name is the display/tag name. For Class it is the struct name; for
	// Union it is the alias name if one was supplied to Union(), else
	// empty; for other kinds it is usually empty.
	Name string
	// Args are the child descriptors: element type for List/Set, [key,
	// value] for Dict, positional types for Tuple (with Ellipsis marking a
	// homogeneous variadic tuple), alternatives for Union, the single inner
	// type for Optional.
	Args []*Descriptor
	// Fields holds the ordered field table for Class descriptors, keyed by
	// wire name (the gasp struct tag value, or the Go field name). Nil for
	// non-Class kinds.
	Fields *orderedmap.OrderedMap[string, *Descriptor]
	// Origin is the reflect.Type this descriptor was built from. Used only
	// for materialization (locating a registered MaterializationHook) and
	// diagnostics; never consulted for parsing decisions.
	Origin reflect.Type
}

// Ellipsis is the sentinel descriptor appended as the second Args entry of a
// homogeneous variadic Tuple, per the homogeneous-tuple rule: every item
// uses Args[0]'s type and the positional index is unbounded.
var Ellipsis = &Descriptor{Kind: Any, Name: "..."}

// Null is the sentinel alternative type used to mark the "none" branch of an
// optional-shaped union. Register it as one of exactly two alternatives
// passed to Union to get automatic collapsing to Kind Optional.
type Null struct{}

// IsPrimitive reports whether the descriptor is one of String, Int, Float,
// or Bool.
func (d *Descriptor) IsPrimitive() bool {
	switch d.Kind {
	case String, Int, Float, Bool:
		return true
	default:
		return false
	}
}

// ElementType returns the descriptor's single "contained" type: the item
// type for List/Set, the inner type for Optional, or the value type for
// Dict. Returns nil for kinds without a single contained type (Tuple, Class,
// Union, and primitives).
func (d *Descriptor) ElementType() *Descriptor {
	switch d.Kind {
	case List, Set, Optional:
		if len(d.Args) > 0 {
			return d.Args[0]
		}
	case Dict:
		if len(d.Args) > 1 {
			return d.Args[1]
		}
	}
	return nil
}

// KeyType returns the key type of a Dict descriptor, or nil otherwise.
func (d *Descriptor) KeyType() *Descriptor {
	if d.Kind == Dict && len(d.Args) > 0 {
		return d.Args[0]
	}
	return nil
}

// IsHomogeneousTuple reports whether a Tuple descriptor represents a
// homogeneous variadic tuple (Args == [T, Ellipsis]).
func (d *Descriptor) IsHomogeneousTuple() bool {
	return d.Kind == Tuple && len(d.Args) == 2 && d.Args[1] == Ellipsis
}

// LookupField returns the field descriptor for name on a Class descriptor.
// The second return value reports whether the field exists.
func (d *Descriptor) LookupField(name string) (*Descriptor, bool) {
	if d.Kind != Class || d.Fields == nil {
		return nil, false
	}
	return d.Fields.Get(name)
}

// LookupAlternative returns the Union/Optional alternative whose Name
// matches name (for Class alternatives) or whose Kind matches a primitive
// name ("string", "int", "float", "bool"). Used by the stack machine's
// union dispatch rule.
func (d *Descriptor) LookupAlternative(name string) (*Descriptor, bool) {
	if d.Kind != Union && d.Kind != Optional {
		return nil, false
	}
	for _, alt := range d.Args {
		if alt.Kind == Class && alt.Name == name {
			return alt, true
		}
		if alt.IsPrimitive() && alt.Kind.String() == name {
			return alt, true
		}
	}
	return nil, false
}

func validIdentifier(s string) bool {
	if s == "" {
		return false
	}
	for i, r := range s {
		isLetter := (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || r == '_'
		isDigit := r >= '0' && r <= '9'
		if i == 0 && !isLetter {
			return false
		}
		if i > 0 && !isLetter && !isDigit {
			return false
		}
	}
	return true
}

func fieldWireName(f reflect.StructField) (string, bool) {
	tag, ok := f.Tag.Lookup("gasp")
	if ok {
		name, _, _ := strings.Cut(tag, ",")
		if name == "-" {
			return "", false
		}
		if name != "" {
			return name, true
		}
	}
	if !f.IsExported() {
		return "", false
	}
	return f.Name, true
}

// compile-time check that Kind implements fmt.Stringer.
var _ = fmt.Stringer(Kind(0))
