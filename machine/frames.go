package machine

import (
	"strings"

	orderedmap "github.com/wk8/go-ordered-map/v2"
	"goa.design/gasp/descriptor"
)

// frame is implemented by every stack-frame variant. The marker method
// keeps the set closed to this package; accessors let the machine dispatch
// on frame identity without a type switch everywhere.
type frame interface {
	isFrame()
	openName() string
	fieldTarget() string
}

// baseFrame carries the fields every variant needs: the governing
// descriptor, the tag name that opened this frame (used for close
// matching), and — when this frame is the value of an object field — the
// field name to assign into on close (which may differ from openName, e.g.
// a union alternative's tag name assigned into its wrapping field).
type baseFrame struct {
	desc  *descriptor.Descriptor
	name  string
	field string
}

func (b baseFrame) isFrame()            {}
func (b baseFrame) openName() string    { return b.name }
func (b baseFrame) fieldTarget() string { return b.field }

// textFrame accumulates raw characters for a primitive (or Any) value until
// Close triggers parsing into the declared kind.
type textFrame struct {
	baseFrame
	text strings.Builder
}

// listFrame and setFrame hold an ordered sequence of already-closed item
// values. setFrame additionally deduplicates by structural-equality key.
type listFrame struct {
	baseFrame
	items []any
}

type setFrame struct {
	baseFrame
	items []any
	seen  map[string]struct{}
}

// tupleFrame holds positional item values; positional typing is resolved by
// the machine from the descriptor's Args at push time.
type tupleFrame struct {
	baseFrame
	items []any
}

// dictFrame holds committed (key, value) entries plus the in-progress key
// captured from the most recently opened item's key attribute.
type dictFrame struct {
	baseFrame
	entries    *orderedmap.OrderedMap[string, any]
	currentKey string
	hasKey     bool
}

// objectFrame holds the field map under construction, which fields have
// been explicitly assigned (vs. defaulted), and a raw-text accumulator used
// only by the legacy JSON recovery path when no tag-directed field ever
// gets assigned.
type objectFrame struct {
	baseFrame
	fields   *orderedmap.OrderedMap[string, any]
	assigned map[string]bool
	rawText  strings.Builder
}

// unionFrame is a placeholder pushed when a union-typed object field is
// opened by its field tag without an immediate type="" attribute; the next
// Open event resolves the alternative and replaces this frame in place.
type unionFrame struct {
	baseFrame
}

// skipFrame represents a foreign or schema-mismatched tag: its content,
// including any nested tags, is ignored until its own matching close.
type skipFrame struct {
	baseFrame
}

func newObjectFrame(d *descriptor.Descriptor, name, field string) *objectFrame {
	return &objectFrame{
		baseFrame: baseFrame{desc: d, name: name, field: field},
		fields:    orderedmap.New[string, any](),
		assigned:  make(map[string]bool),
	}
}

func newDictFrame(d *descriptor.Descriptor, name, field string) *dictFrame {
	return &dictFrame{
		baseFrame: baseFrame{desc: d, name: name, field: field},
		entries:   orderedmap.New[string, any](),
	}
}

func newSetFrame(d *descriptor.Descriptor, name, field string) *setFrame {
	return &setFrame{
		baseFrame: baseFrame{desc: d, name: name, field: field},
		seen:      make(map[string]struct{}),
	}
}
