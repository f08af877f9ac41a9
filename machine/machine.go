// Package machine implements the type-directed stack machine (spec §4.3):
// given scanner events and a root descriptor, it maintains a stack of
// frames representing in-progress values and produces a partial
// materialization on demand. It never blocks and recovers locally from
// schema mismatches and malformed primitives; only resource exhaustion is
// fatal.
package machine

import (
	"strconv"
	"strings"

	"github.com/buger/jsonparser"
	orderedmap "github.com/wk8/go-ordered-map/v2"
	"goa.design/gasp/descriptor"
	"goa.design/gasp/gasperr"
	"goa.design/gasp/gasplog"
	"goa.design/gasp/scanner"
)

// defaultTextBudget is the accumulated-text cap from spec.md §4.3 and §5.
const defaultTextBudget = 64 * 1024 * 1024

// MaterializationHook mirrors spec.md §6's __partial__(cls, field_map): given
// the descriptor of a closing (or still-open, for partials) Object frame
// and its in-progress ordered field map, it may return a domain object to
// use in place of the raw map. Returning false leaves the field map as-is.
type MaterializationHook func(d *descriptor.Descriptor, fields *orderedmap.OrderedMap[string, any]) (any, bool)

// Option configures a Machine at construction.
type Option func(*Machine)

// WithTextBudget overrides the default 64 MiB accumulated-text cap.
func WithTextBudget(n int) Option { return func(m *Machine) { m.textBudget = n } }

// WithLogger overrides the default no-op logger.
func WithLogger(l gasplog.Logger) Option { return func(m *Machine) { m.log = l } }

// WithMaterializationHook registers a hook invoked whenever an Object frame
// governed by d is materialized, at both partial and final snapshots.
func WithMaterializationHook(h MaterializationHook) Option {
	return func(m *Machine) { m.mat = h }
}

// Machine is the stack machine for a single parse. It is not safe for
// concurrent use; a Parser owns exactly one Machine (spec.md §5).
type Machine struct {
	rootDesc *descriptor.Descriptor
	stack    []frame

	errs     gasperr.Recorder
	complete bool
	failed   bool
	fatalErr error

	textBudget int
	textUsed   int

	log gasplog.Logger
	mat MaterializationHook

	rootValue any
}

// New constructs a Machine governed by root, ready to receive events for a
// single parse.
func New(root *descriptor.Descriptor, opts ...Option) *Machine {
	m := &Machine{
		rootDesc:   root,
		textBudget: defaultTextBudget,
		log:        gasplog.NoopLogger{},
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Feed processes events in order. It returns a non-nil error only for a
// fatal condition (resource exhaustion); every other failure is recorded
// and parsing continues.
func (m *Machine) Feed(events []scanner.Event) error {
	for _, ev := range events {
		if m.failed {
			return m.fatalErr
		}
		switch ev.Kind {
		case scanner.Open:
			m.handleOpen(ev.Name, ev.Attrs)
		case scanner.Close:
			m.handleClose(ev.Name)
		case scanner.Text:
			if err := m.handleText(ev.Data); err != nil {
				return err
			}
		}
	}
	return nil
}

// IsComplete reports whether the root frame's matching Close has been
// consumed.
func (m *Machine) IsComplete() bool { return m.complete }

// Errors returns every non-fatal error recorded so far.
func (m *Machine) Errors() []gasperr.Recorded { return m.errs.Errors() }

// record appends a non-fatal recovery error to the recorder and warns
// through the configured logger, the same "accumulate, then surface via the
// structured logging seam" shape as runtime/agent/telemetry call sites in
// the teacher that pair a recorded event with a Warn log line.
func (m *Machine) record(err *gasperr.Error, path string) {
	m.errs.Record(err, path)
	if err != nil {
		m.log.Warn(err.Message, "kind", err.Kind.String(), "path", path)
	}
}

// Snapshot returns the current best-effort materialization of the root
// value, walking the frame stack from the root frame upward. It never
// mutates state.
func (m *Machine) Snapshot() any {
	if len(m.stack) == 0 {
		return m.rootValue
	}
	return m.buildPartial(0)
}

func (m *Machine) buildPartial(i int) any {
	f := m.stack[i]
	hasChild := i+1 < len(m.stack)
	var childPreview any
	if hasChild {
		childPreview = m.buildPartial(i + 1)
	}

	switch tf := f.(type) {
	case *textFrame:
		return tf.text.String()
	case *listFrame:
		items := append([]any{}, tf.items...)
		if hasChild {
			items = append(items, childPreview)
		}
		return items
	case *setFrame:
		items := append([]any{}, tf.items...)
		if hasChild {
			items = append(items, childPreview)
		}
		return items
	case *tupleFrame:
		items := append([]any{}, tf.items...)
		if hasChild {
			items = append(items, childPreview)
		}
		return items
	case *dictFrame:
		preview := orderedmap.New[string, any]()
		for pair := tf.entries.Oldest(); pair != nil; pair = pair.Next() {
			preview.Set(pair.Key, pair.Value)
		}
		if hasChild && tf.hasKey {
			preview.Set(tf.currentKey, childPreview)
		}
		return preview
	case *objectFrame:
		preview := orderedmap.New[string, any]()
		for pair := tf.fields.Oldest(); pair != nil; pair = pair.Next() {
			preview.Set(pair.Key, pair.Value)
		}
		if hasChild {
			if fn := m.stack[i+1].fieldTarget(); fn != "" {
				preview.Set(fn, childPreview)
			}
		}
		return m.materialize(tf.desc, preview)
	case *unionFrame:
		return childPreview
	default: // skipFrame
		return nil
	}
}

func (m *Machine) materialize(d *descriptor.Descriptor, fields *orderedmap.OrderedMap[string, any]) any {
	if m.mat != nil {
		if v, ok := m.mat(d, fields); ok {
			return v
		}
	}
	return fields
}

// ---- Open ----

func (m *Machine) handleOpen(name string, attrs map[string]string) {
	if len(m.stack) == 0 {
		f, err := m.newRootFrame(name, attrs)
		if err != nil {
			m.record(err, name)
			return
		}
		m.stack = append(m.stack, f)
		return
	}

	top := m.stack[len(m.stack)-1]
	switch tf := top.(type) {
	case *listFrame:
		m.openSequenceItem(tf.desc, tf.desc.ElementType(), false, name, attrs)
	case *setFrame:
		m.openSequenceItem(tf.desc, tf.desc.ElementType(), false, name, attrs)
	case *tupleFrame:
		m.openTupleItem(tf, name, attrs)
	case *dictFrame:
		m.openDictItem(tf, name, attrs)
	case *objectFrame:
		m.openObjectChild(tf, name, attrs)
	case *unionFrame:
		m.resolveUnion(tf, name, attrs)
	case *skipFrame:
		// Foreign content: every nested tag is ignored without growing the
		// stack; only the skip frame's own matching close ends it.
	case *textFrame:
		m.record(gasperr.Newf(gasperr.SchemaMismatch, "unexpected nested tag %q inside primitive field", name), name)
		m.push(&skipFrame{baseFrame{name: name}})
	}
}

func (m *Machine) newRootFrame(name string, attrs map[string]string) (frame, *gasperr.Error) {
	d := m.rootDesc
	if d.Kind == descriptor.Union {
		if alt, ok := resolveAlternative(d, name, attrs); ok {
			return m.newFrame(alt, name, ""), nil
		}
		return nil, gasperr.Newf(gasperr.SchemaMismatch, "root union %s has no alternative %q", d.Name, name)
	}
	return m.newFrame(d, name, ""), nil
}

func resolveAlternative(union *descriptor.Descriptor, tagName string, attrs map[string]string) (*descriptor.Descriptor, bool) {
	if t, ok := attrs["type"]; ok {
		if alt, ok := union.LookupAlternative(t); ok {
			return alt, true
		}
	}
	return union.LookupAlternative(tagName)
}

// openSequenceItem pushes a child frame for List/Set items. isTuple is
// unused here (tuples have their own positional path) but kept for
// signature symmetry with openTupleItem.
func (m *Machine) openSequenceItem(container, elem *descriptor.Descriptor, isTuple bool, name string, attrs map[string]string) {
	if elem == nil {
		m.record(gasperr.Newf(gasperr.SchemaMismatch, "%s has no element type for item %q", container.Kind, name), name)
		m.push(&skipFrame{baseFrame{name: name}})
		return
	}
	chosen := elem
	if elem.Kind == descriptor.Union {
		if alt, ok := resolveAlternative(elem, name, attrs); ok {
			chosen = alt
		}
	}
	m.push(m.newFrame(chosen, name, ""))
}

func (m *Machine) openTupleItem(tf *tupleFrame, name string, attrs map[string]string) {
	if tf.desc.IsHomogeneousTuple() {
		m.openSequenceItem(tf.desc, tf.desc.Args[0], true, name, attrs)
		return
	}
	idx := len(tf.items)
	if idx >= len(tf.desc.Args) {
		m.record(gasperr.Newf(gasperr.SchemaMismatch, "tuple %s has no position %d", tf.desc.Name, idx), name)
		m.push(&skipFrame{baseFrame{name: name}})
		return
	}
	m.openSequenceItem(tf.desc, tf.desc.Args[idx], true, name, attrs)
}

func (m *Machine) openDictItem(tf *dictFrame, name string, attrs map[string]string) {
	key, ok := attrs["key"]
	if !ok || key == "" {
		m.record(gasperr.New(gasperr.SchemaMismatch, "dict item missing required key attribute"), name)
		m.push(&skipFrame{baseFrame{name: name}})
		return
	}
	tf.currentKey = key
	tf.hasKey = true
	m.openSequenceItem(tf.desc, tf.desc.ElementType(), false, name, attrs)
}

func (m *Machine) openObjectChild(o *objectFrame, name string, attrs map[string]string) {
	if fd, ok := o.desc.LookupField(name); ok {
		m.push(m.pushFieldFrame(fd, name, name, attrs))
		return
	}
	// Shorthand: the alternative's own class name appears directly as a
	// child, skipping the wrapping field tag, for any not-yet-assigned
	// union-typed field.
	if o.desc.Fields != nil {
		for pair := o.desc.Fields.Oldest(); pair != nil; pair = pair.Next() {
			if o.assigned[pair.Key] {
				continue
			}
			if pair.Value.Kind != descriptor.Union {
				continue
			}
			if alt, ok := pair.Value.LookupAlternative(name); ok {
				m.push(m.newFrame(alt, name, pair.Key))
				return
			}
		}
	}
	m.record(gasperr.Newf(gasperr.SchemaMismatch, "unknown field %q on %s", name, o.desc.Name), name)
	m.push(&skipFrame{baseFrame{name: name}})
}

// pushFieldFrame resolves an object field's declared type into the frame
// that should be pushed for an Open tagged tagName. Optional fields unwrap
// to their inner type immediately; Union fields resolve via an explicit
// type attribute, a tag-name match, or fall back to a placeholder unionFrame
// awaiting the next Open.
func (m *Machine) pushFieldFrame(fieldDesc *descriptor.Descriptor, fieldName, tagName string, attrs map[string]string) frame {
	d := fieldDesc
	if d.Kind == descriptor.Optional {
		d = d.ElementType()
	}
	if d.Kind == descriptor.Union {
		if alt, ok := resolveAlternative(d, tagName, attrs); ok {
			return m.newFrame(alt, tagName, fieldName)
		}
		return &unionFrame{baseFrame{desc: d, name: tagName, field: fieldName}}
	}
	return m.newFrame(d, tagName, fieldName)
}

func (m *Machine) resolveUnion(u *unionFrame, tagName string, attrs map[string]string) {
	alt, ok := resolveAlternative(u.desc, tagName, attrs)
	if !ok {
		m.record(gasperr.Newf(gasperr.SchemaMismatch, "union %s has no alternative %q", u.desc.Name, tagName), tagName)
		m.stack[len(m.stack)-1] = &skipFrame{baseFrame{name: tagName, field: u.field}}
		return
	}
	m.stack[len(m.stack)-1] = m.newFrame(alt, tagName, u.field)
}

func (m *Machine) newFrame(d *descriptor.Descriptor, tagName, fieldName string) frame {
	switch d.Kind {
	case descriptor.String, descriptor.Int, descriptor.Float, descriptor.Bool, descriptor.Any:
		return &textFrame{baseFrame: baseFrame{desc: d, name: tagName, field: fieldName}}
	case descriptor.List:
		return &listFrame{baseFrame: baseFrame{desc: d, name: tagName, field: fieldName}}
	case descriptor.Set:
		return newSetFrame(d, tagName, fieldName)
	case descriptor.Tuple:
		return &tupleFrame{baseFrame: baseFrame{desc: d, name: tagName, field: fieldName}}
	case descriptor.Dict:
		return newDictFrame(d, tagName, fieldName)
	case descriptor.Class:
		return newObjectFrame(d, tagName, fieldName)
	case descriptor.Union:
		return &unionFrame{baseFrame{desc: d, name: tagName, field: fieldName}}
	case descriptor.Optional:
		return m.newFrame(d.ElementType(), tagName, fieldName)
	default:
		return &skipFrame{baseFrame{desc: d, name: tagName, field: fieldName}}
	}
}

func (m *Machine) push(f frame) { m.stack = append(m.stack, f) }

// ---- Text ----

func (m *Machine) handleText(data string) error {
	m.textUsed += len(data)
	if m.textUsed > m.textBudget {
		m.failed = true
		m.fatalErr = gasperr.New(gasperr.ResourceExhausted, "accumulated text exceeded configured budget")
		return m.fatalErr
	}
	if len(m.stack) == 0 {
		return nil
	}
	switch tf := m.stack[len(m.stack)-1].(type) {
	case *textFrame:
		tf.text.WriteString(data)
	case *objectFrame:
		tf.rawText.WriteString(data)
	}
	return nil
}

// ---- Close ----

func (m *Machine) handleClose(name string) {
	if m.failed || len(m.stack) == 0 {
		return
	}
	idx := -1
	for i := len(m.stack) - 1; i >= 0; i-- {
		if m.stack[i].openName() == name {
			idx = i
			break
		}
	}
	if idx < 0 {
		return // unmatched close: discarded silently, per spec.md §4.3.3
	}
	for len(m.stack) > idx {
		f := m.stack[len(m.stack)-1]
		m.stack = m.stack[:len(m.stack)-1]
		m.finalizeAndAttach(f)
	}
	if len(m.stack) == 0 {
		m.complete = true
	}
}

func (m *Machine) finalizeAndAttach(f frame) {
	val := m.finalizeValue(f)
	if len(m.stack) == 0 {
		m.rootValue = val
		return
	}
	switch p := m.stack[len(m.stack)-1].(type) {
	case *listFrame:
		p.items = append(p.items, val)
	case *setFrame:
		key := structuralKey(val)
		if _, dup := p.seen[key]; !dup {
			p.seen[key] = struct{}{}
			p.items = append(p.items, val)
		}
	case *tupleFrame:
		p.items = append(p.items, val)
	case *dictFrame:
		if p.hasKey {
			p.entries.Set(p.currentKey, val)
			p.hasKey = false
			p.currentKey = ""
		} else {
			m.record(gasperr.New(gasperr.SchemaMismatch, "dict entry closed without a key"), f.openName())
		}
	case *objectFrame:
		if fn := f.fieldTarget(); fn != "" {
			p.fields.Set(fn, val)
			p.assigned[fn] = true
		}
	default:
		// unionFrame never reaches here (always replaced before close);
		// skipFrame as parent discards everything beneath it.
	}
}

func (m *Machine) finalizeValue(f frame) any {
	switch tf := f.(type) {
	case *textFrame:
		return m.parsePrimitive(tf.desc, tf.text.String(), f.openName())
	case *listFrame:
		return tf.items
	case *setFrame:
		return tf.items
	case *tupleFrame:
		return tf.items
	case *dictFrame:
		return tf.entries
	case *objectFrame:
		m.fillOptionalDefaults(tf)
		m.recoverFromJSON(tf)
		return m.materialize(tf.desc, tf.fields)
	default:
		return nil
	}
}

func (m *Machine) fillOptionalDefaults(o *objectFrame) {
	if o.desc.Fields == nil {
		return
	}
	for pair := o.desc.Fields.Oldest(); pair != nil; pair = pair.Next() {
		if o.assigned[pair.Key] {
			continue
		}
		if pair.Value.Kind == descriptor.Optional {
			o.fields.Set(pair.Key, nil)
		}
	}
}

// recoverFromJSON implements the legacy recovery path (spec.md §6): when an
// object never received a single tag-directed field assignment but
// accumulated text that looks like a JSON object, attempt one pass of
// jsonparser.ObjectEach, assigning values whose keys match declared field
// names. It never overrides a tag-directed assignment.
func (m *Machine) recoverFromJSON(o *objectFrame) {
	if len(o.assigned) > 0 || o.desc.Fields == nil {
		return
	}
	raw := strings.TrimSpace(o.rawText.String())
	if !strings.HasPrefix(raw, "{") || !strings.HasSuffix(raw, "}") {
		return
	}
	err := jsonparser.ObjectEach([]byte(raw), func(key, value []byte, _ jsonparser.ValueType, _ int) error {
		fd, ok := o.desc.LookupField(string(key))
		if !ok {
			return nil
		}
		pd := fd
		if pd.Kind == descriptor.Optional {
			pd = pd.ElementType()
		}
		o.fields.Set(string(key), m.parsePrimitive(pd, string(value), string(key)))
		o.assigned[string(key)] = true
		return nil
	})
	if err != nil {
		m.record(gasperr.Wrap(gasperr.SchemaMismatch, "legacy JSON recovery failed", err), o.desc.Name)
	}
}

func (m *Machine) parsePrimitive(d *descriptor.Descriptor, raw, ctx string) any {
	switch d.Kind {
	case descriptor.Int:
		s := strings.TrimSpace(raw)
		if v, err := strconv.ParseInt(s, 10, 64); err == nil {
			return v
		}
		if v, err := strconv.ParseInt(s, 0, 64); err == nil {
			return v
		}
		m.record(gasperr.Newf(gasperr.PrimitiveParseFailure, "cannot parse %q as int", raw), ctx)
		return int64(0)
	case descriptor.Float:
		s := strings.TrimSpace(raw)
		if v, err := strconv.ParseFloat(s, 64); err == nil {
			return v
		}
		m.record(gasperr.Newf(gasperr.PrimitiveParseFailure, "cannot parse %q as float", raw), ctx)
		return float64(0)
	case descriptor.Bool:
		switch strings.ToLower(strings.TrimSpace(raw)) {
		case "true", "1", "yes":
			return true
		case "false", "0", "no":
			return false
		}
		m.record(gasperr.Newf(gasperr.PrimitiveParseFailure, "cannot parse %q as bool", raw), ctx)
		return false
	default: // String, Any
		return strings.TrimSpace(decodeTextEntities(raw))
	}
}

// structuralKey produces a deduplication key for Set items by structural
// equality. It relies on fmt's %#v-like stability across the value shapes
// Snapshot produces (primitives, []any, *orderedmap.OrderedMap[string,any]);
// full recursive equality isn't needed for a dedup key, only stability.
func structuralKey(v any) string {
	var b strings.Builder
	writeStructuralKey(&b, v)
	return b.String()
}

func writeStructuralKey(b *strings.Builder, v any) {
	switch tv := v.(type) {
	case nil:
		b.WriteString("<nil>")
	case []any:
		b.WriteByte('[')
		for _, item := range tv {
			writeStructuralKey(b, item)
			b.WriteByte(',')
		}
		b.WriteByte(']')
	case *orderedmap.OrderedMap[string, any]:
		b.WriteByte('{')
		for pair := tv.Oldest(); pair != nil; pair = pair.Next() {
			b.WriteString(pair.Key)
			b.WriteByte(':')
			writeStructuralKey(b, pair.Value)
			b.WriteByte(',')
		}
		b.WriteByte('}')
	default:
		b.WriteString(strconv.Quote(toComparableString(tv)))
	}
}

func toComparableString(v any) string {
	switch tv := v.(type) {
	case string:
		return tv
	case int64:
		return strconv.FormatInt(tv, 10)
	case float64:
		return strconv.FormatFloat(tv, 'g', -1, 64)
	case bool:
		return strconv.FormatBool(tv)
	default:
		return ""
	}
}
