package descriptor

import (
	"reflect"

	"github.com/google/uuid"
	orderedmap "github.com/wk8/go-ordered-map/v2"
	"goa.design/gasp/gasperr"
)

// maxDepth is the descriptor-construction recursion safety cap named in the
// design notes ("the source does not specify depth limits beyond a safety
// cap — implementations should pick one and document it"). It bounds
// descriptor construction only, not runtime parsing depth.
const maxDepth = 64

// Registry memoizes reflect.Type -> *Descriptor so mutually recursive
// record types resolve lazily: a placeholder descriptor is inserted before
// recursing into field types, and a second encounter of the same
// reflect.Type returns that placeholder, which is filled in once
// construction completes. Registries are safe to reuse across multiple
// Describe calls but are not safe for concurrent construction; build all
// descriptors for a program up front on a single goroutine, then share the
// resulting immutable Descriptors freely (spec.md §5).
type Registry struct {
	byType map[reflect.Type]*Descriptor
	unions map[reflect.Type]*Descriptor
	id     uuid.UUID
}

// NewRegistry constructs an empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		byType: make(map[reflect.Type]*Descriptor),
		unions: make(map[reflect.Type]*Descriptor),
		id:     uuid.New(),
	}
}

// defaultRegistry is used by the package-level Describe/Union convenience
// functions. Most callers never need more than one registry; tests that
// want isolation construct their own via NewRegistry.
var defaultRegistry = NewRegistry()

// Describe resolves t into a Descriptor using the default, package-level
// registry. See Registry.Describe.
func Describe(t reflect.Type) (*Descriptor, error) {
	return defaultRegistry.Describe(t)
}

// Union registers a discriminated union over an interface type using the
// default, package-level registry. See Registry.Union.
func Union(name string, iface any, alternatives ...any) (*Descriptor, error) {
	return defaultRegistry.Union(name, iface, alternatives...)
}

// Describe resolves t (a reflect.Type obtained e.g. via reflect.TypeOf or
// reflect.TypeFor) into a Descriptor, applying the plain-container and
// optional-pointer resolution rules. Union interface types must already be
// registered via Union before Describe encounters them as a field type or
// root type; Describe returns UnsupportedType for an unregistered interface.
func (r *Registry) Describe(t reflect.Type) (*Descriptor, error) {
	return r.describe(t, 0)
}

func (r *Registry) describe(t reflect.Type, depth int) (*Descriptor, error) {
	if depth > maxDepth {
		return nil, gasperr.Newf(gasperr.CyclicType, "recursion depth exceeded 64 while describing %s", t)
	}
	if d, ok := r.byType[t]; ok {
		return d, nil
	}

	switch t.Kind() {
	case reflect.String:
		return &Descriptor{Kind: String, Origin: t}, nil
	case reflect.Bool:
		return &Descriptor{Kind: Bool, Origin: t}, nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return &Descriptor{Kind: Int, Origin: t}, nil
	case reflect.Float32, reflect.Float64:
		return &Descriptor{Kind: Float, Origin: t}, nil
	case reflect.Interface:
		if t.NumMethod() == 0 {
			return &Descriptor{Kind: Any, Origin: t}, nil
		}
		if d, ok := r.unions[t]; ok {
			return d, nil
		}
		return nil, gasperr.Newf(gasperr.UnsupportedType, "interface type %s has no registered union alternatives", t)
	case reflect.Ptr:
		placeholder := &Descriptor{Kind: Optional, Origin: t}
		r.byType[t] = placeholder
		inner, err := r.describe(t.Elem(), depth+1)
		if err != nil {
			delete(r.byType, t)
			return nil, err
		}
		placeholder.Args = []*Descriptor{inner}
		return placeholder, nil
	case reflect.Slice:
		return r.describeSlice(t, depth)
	case reflect.Array:
		return r.describeArray(t, depth)
	case reflect.Map:
		return r.describeMap(t, depth)
	case reflect.Struct:
		return r.describeStruct(t, depth)
	default:
		return nil, gasperr.Newf(gasperr.UnsupportedType, "%s is not an expressible gasp type (kind %s)", t, t.Kind())
	}
}

var (
	setMarkerType    = reflect.TypeOf((*setMarker)(nil)).Elem()
	tupleMarkerType  = reflect.TypeOf((*tupleMarker)(nil)).Elem()
	variadicElemType = reflect.TypeOf((*homogeneousTupleMarker)(nil)).Elem()
)

type setMarker interface{ gaspSetMarker() }

type tupleMarker interface{ gaspTupleMarker() }

type homogeneousTupleMarker interface{ gaspHomogeneousTupleMarker() }

func (r *Registry) describeSlice(t reflect.Type, depth int) (*Descriptor, error) {
	elem, err := r.describe(t.Elem(), depth+1)
	if err != nil {
		return nil, err
	}
	switch {
	case reflect.PointerTo(t).Implements(variadicElemType) || t.Implements(variadicElemType):
		return &Descriptor{Kind: Tuple, Args: []*Descriptor{elem, Ellipsis}, Origin: t}, nil
	case reflect.PointerTo(t).Implements(setMarkerType) || t.Implements(setMarkerType):
		return &Descriptor{Kind: Set, Args: []*Descriptor{elem}, Origin: t}, nil
	default:
		return &Descriptor{Kind: List, Args: []*Descriptor{elem}, Origin: t}, nil
	}
}

// describeArray treats a fixed-size Go array as a homogeneous fixed-arity
// Tuple: one Args entry per array position, all sharing the element type.
func (r *Registry) describeArray(t reflect.Type, depth int) (*Descriptor, error) {
	elem, err := r.describe(t.Elem(), depth+1)
	if err != nil {
		return nil, err
	}
	if t.Len() == 0 {
		return nil, gasperr.Newf(gasperr.UnsupportedType, "tuple type %s must have non-zero arity", t)
	}
	args := make([]*Descriptor, t.Len())
	for i := range args {
		args[i] = elem
	}
	return &Descriptor{Kind: Tuple, Args: args, Origin: t}, nil
}

func (r *Registry) describeMap(t reflect.Type, depth int) (*Descriptor, error) {
	key, err := r.describe(t.Key(), depth+1)
	if err != nil {
		return nil, err
	}
	val, err := r.describe(t.Elem(), depth+1)
	if err != nil {
		return nil, err
	}
	return &Descriptor{Kind: Dict, Args: []*Descriptor{key, val}, Origin: t}, nil
}

func (r *Registry) describeStruct(t reflect.Type, depth int) (*Descriptor, error) {
	if reflect.PointerTo(t).Implements(tupleMarkerType) || t.Implements(tupleMarkerType) {
		return r.describeTupleStruct(t, depth)
	}

	d := &Descriptor{Kind: Class, Name: t.Name(), Origin: t, Fields: orderedmap.New[string, *Descriptor]()}
	if !validIdentifier(d.Name) {
		return nil, gasperr.Newf(gasperr.UnsupportedType, "struct name %q is not a valid identifier", d.Name)
	}
	r.byType[t] = d

	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		if f.Anonymous && isMarkerEmbed(f.Type) {
			continue
		}
		name, ok := fieldWireName(f)
		if !ok {
			continue
		}
		fd, err := r.describe(f.Type, depth+1)
		if err != nil {
			delete(r.byType, t)
			return nil, err
		}
		d.Fields.Set(name, fd)
	}
	return d, nil
}

func isMarkerEmbed(t reflect.Type) bool {
	return t == reflect.TypeOf(TupleMarker{})
}

// TupleMarker is embedded (by value, unexported-field-free) in a struct to
// mark it as a heterogeneous Tuple descriptor: its exported fields, in
// declaration order, become the tuple's positional Args.
//
//	type Triple struct {
//	    gasp.TupleMarker
//	    Name string
//	    Age  int
//	    OK   bool
//	}
type TupleMarker struct{}

func (TupleMarker) gaspTupleMarker() {}

func (r *Registry) describeTupleStruct(t reflect.Type, depth int) (*Descriptor, error) {
	var args []*Descriptor
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		if f.Anonymous && isMarkerEmbed(f.Type) {
			continue
		}
		if !f.IsExported() {
			continue
		}
		fd, err := r.describe(f.Type, depth+1)
		if err != nil {
			return nil, err
		}
		args = append(args, fd)
	}
	if len(args) == 0 {
		return nil, gasperr.Newf(gasperr.UnsupportedType, "tuple struct %s declares no positional fields", t)
	}
	return &Descriptor{Kind: Tuple, Args: args, Origin: t}, nil
}

// Union registers a discriminated union over iface (a nil pointer to an
// interface type, e.g. (*MyUnion)(nil)) with the given alternatives (each a
// zero value or pointer of a concrete type implementing iface; Null{} is
// accepted without implementing iface). name becomes
// the descriptor's alias name; subsequent Describe calls against the
// interface's reflect.Type return this descriptor.
//
// When alternatives has exactly two entries and one of them is Null{}, the
// registered descriptor collapses to Kind Optional per the optional-shaped
// union rule, retaining name as its display name.
func (r *Registry) Union(name string, iface any, alternatives ...any) (*Descriptor, error) {
	ifaceType := reflect.TypeOf(iface)
	if ifaceType == nil || ifaceType.Kind() != reflect.Ptr || ifaceType.Elem().Kind() != reflect.Interface {
		return nil, gasperr.New(gasperr.UnsupportedType, "Union requires a nil pointer to an interface type, e.g. (*MyUnion)(nil)")
	}
	ifaceType = ifaceType.Elem()
	if len(alternatives) < 2 {
		return nil, gasperr.New(gasperr.UnsupportedType, "Union requires at least two alternatives")
	}

	var (
		args       []*Descriptor
		nullCount  int
		otherCount int
		other      *Descriptor
	)
	for _, alt := range alternatives {
		at := reflect.TypeOf(alt)
		if at == nil {
			return nil, gasperr.New(gasperr.UnsupportedType, "Union alternative must not be a nil interface value")
		}
		if at.Kind() == reflect.Ptr {
			at = at.Elem()
		}
		isNull := at == reflect.TypeOf(Null{})
		if !isNull && !reflect.PointerTo(at).Implements(ifaceType) && !at.Implements(ifaceType) {
			return nil, gasperr.Newf(gasperr.UnsupportedType, "%s does not implement %s", at, ifaceType)
		}
		ad, err := r.describe(at, 0)
		if err != nil {
			return nil, err
		}
		if !ad.IsPrimitive() && ad.Kind != Class {
			return nil, gasperr.Newf(gasperr.UnsupportedType, "union alternative %s must be class-like or primitive", at)
		}
		if isNull {
			nullCount++
		} else {
			otherCount++
			other = ad
		}
		args = append(args, ad)
	}

	var d *Descriptor
	if len(alternatives) == 2 && nullCount == 1 && otherCount == 1 {
		d = &Descriptor{Kind: Optional, Name: name, Args: []*Descriptor{other}, Origin: ifaceType}
	} else {
		d = &Descriptor{Kind: Union, Name: name, Args: args, Origin: ifaceType}
	}
	r.unions[ifaceType] = d
	r.byType[ifaceType] = d
	return d, nil
}
