package machine_test

import (
	"reflect"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	orderedmap "github.com/wk8/go-ordered-map/v2"
	"goa.design/gasp/descriptor"
	"goa.design/gasp/machine"
	"goa.design/gasp/scanner"
)

// run feeds input through a fresh scanner/machine pair built from the given
// wanted root names and descriptor, returning the final materialized value.
func run(t *testing.T, d *descriptor.Descriptor, wantedNames []string, input string) (any, *machine.Machine) {
	t.Helper()
	s := scanner.New(wantedNames)
	m := machine.New(d)
	events := s.Consume([]byte(input))
	require.NoError(t, m.Feed(events))
	return m.Snapshot(), m
}

func fieldsOf(v any) *orderedmap.OrderedMap[string, any] {
	om, _ := v.(*orderedmap.OrderedMap[string, any])
	return om
}

type Person struct {
	Name    string
	Age     int
	Hobbies []string
}

func TestMachine_S1Person(t *testing.T) {
	reg := descriptor.NewRegistry()
	d, err := reg.Describe(reflect.TypeOf(Person{}))
	require.NoError(t, err)

	input := `<Person><name>Alice</name><age>30</age><hobbies><item>coding</item><item>hiking</item></hobbies></Person>`
	// Person's fields are lower-cased in the wire example; tag names match
	// Go field names exactly in our binding (no case-folding), so use the
	// Go-exported field names on the wire instead.
	input = `<Person><Name>Alice</Name><Age>30</Age><Hobbies><item>coding</item><item>hiking</item></Hobbies></Person>`

	val, m := run(t, d, []string{"Person"}, input)
	require.True(t, m.IsComplete())
	fields := fieldsOf(val)
	require.NotNil(t, fields)

	name, _ := fields.Get("Name")
	age, _ := fields.Get("Age")
	hobbies, _ := fields.Get("Hobbies")

	assert.Equal(t, "Alice", name)
	assert.Equal(t, int64(30), age)
	assert.Equal(t, []any{"coding", "hiking"}, hobbies)
}

type Success struct {
	Data string
}

type ErrorResult struct {
	Message string
}

type ResponseType interface{ isResponseType() }

func (Success) isResponseType()     {}
func (ErrorResult) isResponseType() {}

func TestMachine_S2UnionDispatch(t *testing.T) {
	reg := descriptor.NewRegistry()
	ud, err := reg.Union("ResponseType", (*ResponseType)(nil), Success{}, ErrorResult{})
	require.NoError(t, err)

	okVal, m1 := run(t, ud, []string{"Success", "ErrorResult"}, `<Success><Data>ok</Data></Success>`)
	require.True(t, m1.IsComplete())
	okFields := fieldsOf(okVal)
	data, _ := okFields.Get("Data")
	assert.Equal(t, "ok", data)

	errVal, m2 := run(t, ud, []string{"Success", "ErrorResult"}, `<ErrorResult><Message>nope</Message></ErrorResult>`)
	require.True(t, m2.IsComplete())
	errFields := fieldsOf(errVal)
	msg, _ := errFields.Get("Message")
	assert.Equal(t, "nope", msg)
}

type Config struct {
	Settings map[string]string
}

func TestMachine_S3Dict(t *testing.T) {
	reg := descriptor.NewRegistry()
	d, err := reg.Describe(reflect.TypeOf(Config{}))
	require.NoError(t, err)

	input := `<Config><Settings><item key="theme">dark</item><item key="font">14</item></Settings></Config>`
	val, m := run(t, d, []string{"Config"}, input)
	require.True(t, m.IsComplete())

	fields := fieldsOf(val)
	settings, _ := fields.Get("Settings")
	entries, ok := settings.(*orderedmap.OrderedMap[string, any])
	require.True(t, ok)

	theme, _ := entries.Get("theme")
	font, _ := entries.Get("font")
	assert.Equal(t, "dark", theme)
	assert.Equal(t, "14", font)
}

func TestMachine_S4StreamingSplit(t *testing.T) {
	reg := descriptor.NewRegistry()
	d, err := reg.Describe(reflect.TypeOf(Person{}))
	require.NoError(t, err)

	s := scanner.New([]string{"Person"})
	m := machine.New(d)

	chunks := []string{`<Person><Name>Ali`, `ce</Name><Age>3`, `0</Age></Person>`}
	var last any
	for _, c := range chunks {
		events := s.Consume([]byte(c))
		require.NoError(t, m.Feed(events))
		last = m.Snapshot()
	}
	require.True(t, m.IsComplete())
	fields := fieldsOf(last)
	name, _ := fields.Get("Name")
	age, _ := fields.Get("Age")
	assert.Equal(t, "Alice", name)
	assert.Equal(t, int64(30), age)
}

func TestMachine_S5IgnoredTags(t *testing.T) {
	reg := descriptor.NewRegistry()
	d, err := reg.Describe(reflect.TypeOf(Person{}))
	require.NoError(t, err)

	input := `<think>planning...</think><Person><Name>Bob</Name></Person>`
	val, m := run(t, d, []string{"Person"}, input)
	require.True(t, m.IsComplete())
	fields := fieldsOf(val)
	name, _ := fields.Get("Name")
	assert.Equal(t, "Bob", name)
}

func TestMachine_S6HomogeneousTuple(t *testing.T) {
	reg := descriptor.NewRegistry()
	hd, err := reg.Describe(reflect.TypeOf(descriptor.HomogeneousTuple[int]{}))
	require.NoError(t, err)
	require.True(t, hd.IsHomogeneousTuple())

	input := `<t><item>1</item><item>2</item><item>3</item></t>`
	val, m := run(t, hd, []string{"t"}, input)
	require.True(t, m.IsComplete())
	assert.Equal(t, []any{int64(1), int64(2), int64(3)}, val)
}

func TestMachine_EmptyRecordSelfClosingAndExplicit(t *testing.T) {
	reg := descriptor.NewRegistry()
	d, err := reg.Describe(reflect.TypeOf(Person{}))
	require.NoError(t, err)

	selfClosed, m1 := run(t, d, []string{"Person"}, `<Person/>`)
	require.True(t, m1.IsComplete())
	explicit, m2 := run(t, d, []string{"Person"}, `<Person></Person>`)
	require.True(t, m2.IsComplete())

	assert.NotNil(t, fieldsOf(selfClosed))
	assert.NotNil(t, fieldsOf(explicit))
}

type WithTags struct {
	Tags descriptor.Set[string]
}

func TestMachine_SetDeduplicatesByStructuralEquality(t *testing.T) {
	reg := descriptor.NewRegistry()
	d, err := reg.Describe(reflect.TypeOf(WithTags{}))
	require.NoError(t, err)

	input := `<WithTags><Tags><item>a</item><item>b</item><item>a</item></Tags></WithTags>`
	val, m := run(t, d, []string{"WithTags"}, input)
	require.True(t, m.IsComplete())
	fields := fieldsOf(val)
	tags, _ := fields.Get("Tags")
	assert.Equal(t, []any{"a", "b"}, tags)
}

type DictItem struct {
	Settings map[string]string
}

func TestMachine_DictEntryMissingKeyIsDroppedAndRecorded(t *testing.T) {
	reg := descriptor.NewRegistry()
	d, err := reg.Describe(reflect.TypeOf(DictItem{}))
	require.NoError(t, err)

	input := `<DictItem><Settings><item>orphan</item><item key="k">v</item></Settings></DictItem>`
	val, m := run(t, d, []string{"DictItem"}, input)
	require.True(t, m.IsComplete())
	fields := fieldsOf(val)
	settings, _ := fields.Get("Settings")
	entries := settings.(*orderedmap.OrderedMap[string, any])
	assert.Equal(t, 1, entries.Len())
	assert.NotEmpty(t, m.Errors())
}

func TestMachine_PrimitiveParseFailureRecordsErrorAndZeroes(t *testing.T) {
	reg := descriptor.NewRegistry()
	d, err := reg.Describe(reflect.TypeOf(Person{}))
	require.NoError(t, err)

	val, m := run(t, d, []string{"Person"}, `<Person><Name>Eve</Name><Age>not-a-number</Age></Person>`)
	require.True(t, m.IsComplete())
	fields := fieldsOf(val)
	age, _ := fields.Get("Age")
	assert.Equal(t, int64(0), age)
	assert.NotEmpty(t, m.Errors())
}

type recordingLogger struct {
	warnings int
}

func (l *recordingLogger) Debug(string, ...any) {}
func (l *recordingLogger) Warn(string, ...any)  { l.warnings++ }

func TestMachine_RecoveryEventsWarnThroughConfiguredLogger(t *testing.T) {
	reg := descriptor.NewRegistry()
	d, err := reg.Describe(reflect.TypeOf(Person{}))
	require.NoError(t, err)

	logger := &recordingLogger{}
	m := machine.New(d, machine.WithLogger(logger))
	s := scanner.New([]string{"Person"})
	events := s.Consume([]byte(`<Person><Name>Eve</Name><Age>not-a-number</Age></Person>`))
	require.NoError(t, m.Feed(events))

	require.Len(t, m.Errors(), 1)
	assert.Equal(t, 1, logger.warnings)
}
