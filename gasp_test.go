package gasp_test

import (
	"reflect"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	orderedmap "github.com/wk8/go-ordered-map/v2"
	"goa.design/gasp"
)

type Person struct {
	Name    string
	Age     int
	Hobbies []string
}

func fieldsOf(t *testing.T, v any) *orderedmap.OrderedMap[string, any] {
	t.Helper()
	om, ok := v.(*orderedmap.OrderedMap[string, any])
	require.True(t, ok, "expected an ordered field map, got %T", v)
	return om
}

func TestParser_FeedIsCompleteValidate(t *testing.T) {
	p, err := gasp.New(reflect.TypeOf(Person{}))
	require.NoError(t, err)

	require.False(t, p.IsComplete())
	_, err = p.Feed([]byte(`<Person><Name>Alice</Name><Age>30</Age></Person>`))
	require.NoError(t, err)
	require.True(t, p.IsComplete())

	final, err := p.Validate()
	require.NoError(t, err)
	fields := fieldsOf(t, final)
	name, _ := fields.Get("Name")
	age, _ := fields.Get("Age")
	assert.Equal(t, "Alice", name)
	assert.Equal(t, int64(30), age)
}

func TestParser_ValidateBeforeCompleteErrors(t *testing.T) {
	p, err := gasp.New(reflect.TypeOf(Person{}))
	require.NoError(t, err)
	_, err = p.Feed([]byte(`<Person><Name>Alice</Name>`))
	require.NoError(t, err)

	_, err = p.Validate()
	assert.Error(t, err)
}

func TestParser_GetPartialMatchesLastFeedResult(t *testing.T) {
	p, err := gasp.New(reflect.TypeOf(Person{}))
	require.NoError(t, err)

	partial, err := p.Feed([]byte(`<Person><Name>Ada`))
	require.NoError(t, err)
	assert.Equal(t, partial, p.GetPartial())
}

func TestParser_SplitInvariance(t *testing.T) {
	input := `<Person><Name>Grace Hopper</Name><Age>85</Age><Hobbies><item>compilers</item><item>cobol</item></Hobbies></Person>`

	whole, err := gasp.New(reflect.TypeOf(Person{}))
	require.NoError(t, err)
	_, err = whole.Feed([]byte(input))
	require.NoError(t, err)
	wantFinal, err := whole.Validate()
	require.NoError(t, err)

	for split := 1; split < len(input); split += 7 {
		p, err := gasp.New(reflect.TypeOf(Person{}))
		require.NoError(t, err)
		_, err = p.Feed([]byte(input[:split]))
		require.NoError(t, err)
		_, err = p.Feed([]byte(input[split:]))
		require.NoError(t, err)

		got, err := p.Validate()
		require.NoErrorf(t, err, "split at byte %d", split)
		assert.Equalf(t, wantFinal, got, "split at byte %d produced a different final value", split)
	}
}

func TestParser_PrefixMonotonicity(t *testing.T) {
	p, err := gasp.New(reflect.TypeOf(Person{}))
	require.NoError(t, err)

	chunks := []string{
		`<Person><Name>Ali`,
		`ce</Name><Age>3`,
		`0</Age><Hobbies><item>coding</item></Hobbies></Person>`,
	}

	var prevFields map[string]bool
	for _, c := range chunks {
		partial, err := p.Feed([]byte(c))
		require.NoError(t, err)
		fields := fieldsOf(t, partial)

		current := make(map[string]bool)
		for pair := fields.Oldest(); pair != nil; pair = pair.Next() {
			current[pair.Key] = true
		}
		for k := range prevFields {
			assert.Truef(t, current[k], "field %q disappeared from partial between feeds", k)
		}
		prevFields = current
	}
}

func TestParser_IgnoredTagTransparency(t *testing.T) {
	p1, err := gasp.New(reflect.TypeOf(Person{}))
	require.NoError(t, err)
	_, err = p1.Feed([]byte(`noise <think>irrelevant musing</think> <Person><Name>Bob</Name></Person> trailer`))
	require.NoError(t, err)
	withThink, err := p1.Validate()
	require.NoError(t, err)

	p2, err := gasp.New(reflect.TypeOf(Person{}))
	require.NoError(t, err)
	_, err = p2.Feed([]byte(`noise  <Person><Name>Bob</Name></Person> trailer`))
	require.NoError(t, err)
	without, err := p2.Validate()
	require.NoError(t, err)

	assert.Equal(t, without, withThink)
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

func TestParser_NewAnyMultiRoot(t *testing.T) {
	p, err := gasp.NewAny(map[string]reflect.Type{
		"Success":     reflect.TypeOf(Success{}),
		"ErrorResult": reflect.TypeOf(ErrorResult{}),
	})
	require.NoError(t, err)

	_, err = p.Feed([]byte(`<Success><Data>ok</Data></Success>`))
	require.NoError(t, err)
	require.True(t, p.IsComplete())

	final, err := p.Validate()
	require.NoError(t, err)
	fields := fieldsOf(t, final)
	data, _ := fields.Get("Data")
	assert.Equal(t, "ok", data)
}
