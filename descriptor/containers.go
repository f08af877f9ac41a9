package descriptor

// Set wraps a slice to mark it as an unordered, deduplicated collection
// (Kind Set) instead of the default ordered List. Deduplication itself is
// the stack machine's job (structural-equality dedup on Close, per
// spec.md §4.3); Set here only carries the shape through reflection.
//
//	type Person struct {
//	    Tags descriptor.Set[string]
//	}
type Set[T any] []T

func (Set[T]) gaspSetMarker() {}

// HomogeneousTuple wraps a slice to mark it as a homogeneous variadic Tuple
// (Kind Tuple, Args == [Describe(T), Ellipsis]) per the homogeneous-tuple
// rule: every item uses T and the positional index is unbounded.
//
//	type Row struct {
//	    Cells descriptor.HomogeneousTuple[int]
//	}
type HomogeneousTuple[T any] []T

func (HomogeneousTuple[T]) gaspHomogeneousTupleMarker() {}
