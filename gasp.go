// Package gasp is the host-language API (spec.md §6): construct a Parser
// from a root Go type, feed it byte chunks as they arrive from an LLM, and
// read back a progressively-materializing value tree.
package gasp

import (
	"reflect"

	orderedmap "github.com/wk8/go-ordered-map/v2"
	"goa.design/gasp/descriptor"
	"goa.design/gasp/gasperr"
	"goa.design/gasp/gasplog"
	"goa.design/gasp/machine"
	"goa.design/gasp/scanner"
)

// MaterializationHook converts a closing or in-progress Object frame's
// ordered field map into a domain object, mirroring spec.md §6's
// __partial__(cls, field_map). Returning false leaves the field map as-is.
type MaterializationHook = machine.MaterializationHook

// Set and HomogeneousTuple re-export the descriptor package's container
// wrapper types under the root package, since callers shape their own Go
// types against them but otherwise work entirely through gasp.
type Set[T any] = descriptor.Set[T]
type HomogeneousTuple[T any] = descriptor.HomogeneousTuple[T]

// TupleMarker re-exports descriptor.TupleMarker for embedding in
// heterogeneous tuple structs.
type TupleMarker = descriptor.TupleMarker

// Null re-exports descriptor.Null, the sentinel alternative type for
// optional-shaped unions registered via Union.
type Null = descriptor.Null

// Union registers a discriminated union over iface (a nil pointer to an
// interface type) with the given alternatives. See descriptor.Union.
func Union(name string, iface any, alternatives ...any) (*descriptor.Descriptor, error) {
	return descriptor.Union(name, iface, alternatives...)
}

// Option configures a Parser at construction.
type Option func(*config)

type config struct {
	ignoredTags []string
	textBudget  int
	logger      gasplog.Logger
	hook        MaterializationHook
}

// WithIgnoredTags replaces the default ignored-tag set (think, thinking,
// system, thought) with names.
func WithIgnoredTags(names ...string) Option {
	return func(c *config) { c.ignoredTags = names }
}

// WithTextBudget overrides the default 64 MiB accumulated-text cap.
func WithTextBudget(n int) Option {
	return func(c *config) { c.textBudget = n }
}

// WithLogger overrides the default no-op logger. Pass gasplog.NewClueLogger()
// to route diagnostics through goa.design/clue/log.
func WithLogger(l gasplog.Logger) Option {
	return func(c *config) { c.logger = l }
}

// WithMaterializationHook registers a hook invoked whenever an Object frame
// is materialized, at both partial and final snapshots.
func WithMaterializationHook(h MaterializationHook) Option {
	return func(c *config) { c.hook = h }
}

// Parser is a single-use, single-writer streaming parser for one root type.
// It carries no mutex by design: spec.md §5 states external synchronization
// is the caller's responsibility for any handle crossing threads, and an
// internal mutex would contradict that model (see DESIGN.md).
type Parser struct {
	m       *machine.Machine
	failed  bool
	failErr error
	scan    *scanner.Scanner
}

// New constructs a Parser for root, a reflect.Type obtained from a Go value
// (typically via reflect.TypeOf((*T)(nil)).Elem() or reflect.TypeOf(T{})).
func New(root reflect.Type, opts ...Option) (*Parser, error) {
	d, err := descriptor.Describe(root)
	if err != nil {
		return nil, err
	}
	return newParser(d, opts...)
}

// NewAny lets a caller hand the parser a small set of candidate root types
// keyed by their expected outermost tag name, useful when the LLM output's
// root tag is not known in advance. It builds an ad hoc union over the
// given roots (not registered in any descriptor registry) and constructs
// the Parser from it the same way New does; the scanner's wanted-region rule already
// supports matching "the root type's expected name OR any alternative of a
// root union" (spec.md §4.2), so no scanner changes are needed.
func NewAny(roots map[string]reflect.Type, opts ...Option) (*Parser, error) {
	if len(roots) < 2 {
		return nil, gasperr.New(gasperr.UnsupportedType, "NewAny requires at least two candidate root types")
	}
	args := make([]*descriptor.Descriptor, 0, len(roots))
	for name, t := range roots {
		d, err := descriptor.Describe(t)
		if err != nil {
			return nil, err
		}
		// Candidate roots need not implement a common interface (that's the
		// whole reason NewAny exists), so the union is built directly
		// rather than through descriptor.Union's implements-check path;
		// tagged with the caller's expected wire name, which may differ
		// from the Go type's own name.
		alt := *d
		alt.Name = name
		args = append(args, &alt)
	}
	union := &descriptor.Descriptor{Kind: descriptor.Union, Name: "AnyRoot", Args: args}
	return newParser(union, opts...)
}

func newParser(d *descriptor.Descriptor, opts ...Option) (*Parser, error) {
	c := &config{textBudget: 0, logger: gasplog.NoopLogger{}}
	for _, opt := range opts {
		opt(c)
	}

	scanOpts := []scanner.Option{scanner.WithLogger(c.logger)}
	if len(c.ignoredTags) > 0 {
		scanOpts = append(scanOpts, scanner.WithIgnoredTags(c.ignoredTags...))
	}

	machOpts := []machine.Option{machine.WithLogger(c.logger)}
	if c.textBudget > 0 {
		machOpts = append(machOpts, machine.WithTextBudget(c.textBudget))
	}
	if c.hook != nil {
		machOpts = append(machOpts, machine.WithMaterializationHook(c.hook))
	}

	return &Parser{
		m:    machine.New(d, machOpts...),
		scan: scanner.New(wantedNames(d), scanOpts...),
	}, nil
}

// wantedNames computes the tag name(s) the scanner should search for as the
// outermost wanted-region open: the descriptor's own name, or every
// alternative's name when the root is a Union.
func wantedNames(d *descriptor.Descriptor) []string {
	if d.Kind == descriptor.Union {
		names := make([]string, 0, len(d.Args))
		for _, alt := range d.Args {
			if alt.Name != "" {
				names = append(names, alt.Name)
			}
		}
		return names
	}
	return []string{d.Name}
}

// Feed pushes a chunk of bytes and returns the current root partial (nil if
// the root tag has not yet been opened).
func (p *Parser) Feed(chunk []byte) (any, error) {
	if p.failed {
		return nil, p.failErr
	}
	events := p.scan.Consume(chunk)
	if err := p.m.Feed(events); err != nil {
		p.failed = true
		p.failErr = err
		return nil, err
	}
	return p.m.Snapshot(), nil
}

// IsComplete reports whether the root tag's matching close has been
// consumed.
func (p *Parser) IsComplete() bool { return p.m.IsComplete() }

// GetPartial returns the current partial without re-running the scanner.
func (p *Parser) GetPartial() any { return p.m.Snapshot() }

// Validate returns the final value. It returns an error if the root was
// never opened (a fatal condition per spec.md §7: "event stream for a
// never-opened root").
func (p *Parser) Validate() (any, error) {
	if p.failed {
		return nil, p.failErr
	}
	if !p.m.IsComplete() {
		return nil, gasperr.New(gasperr.SchemaMismatch, "root value is not yet complete")
	}
	return p.m.Snapshot(), nil
}

// Errors returns every non-fatal error recorded while feeding this parser,
// scanner-level recovery events (malformed tokens, stray closes) followed by
// stack-machine-level schema mismatches, each in observation order.
func (p *Parser) Errors() []gasperr.Recorded {
	return append(p.scan.Errors(), p.m.Errors()...)
}

// FieldMap is a convenience alias for the raw map returned absent a
// materialization hook, exported so callers can type-assert GetPartial's
// result without importing go-ordered-map themselves.
type FieldMap = orderedmap.OrderedMap[string, any]
