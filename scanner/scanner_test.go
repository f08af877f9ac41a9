package scanner_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"goa.design/gasp/gasperr"
	"goa.design/gasp/scanner"
)

func drain(t *testing.T, s *scanner.Scanner, chunks ...string) []scanner.Event {
	t.Helper()
	var events []scanner.Event
	for _, c := range chunks {
		events = append(events, s.Consume([]byte(c))...)
	}
	return events
}

func TestScanner_BasicOpenTextClose(t *testing.T) {
	s := scanner.New([]string{"Person"})
	events := drain(t, s, `preamble <Person><Name>Ada</Name></Person> trailer`)

	require.Len(t, events, 5)
	assert.Equal(t, scanner.Open, events[0].Kind)
	assert.Equal(t, "Person", events[0].Name)
	assert.Equal(t, scanner.Open, events[1].Kind)
	assert.Equal(t, "Name", events[1].Name)
	assert.Equal(t, scanner.Text, events[2].Kind)
	assert.Equal(t, "Ada", events[2].Data)
	assert.Equal(t, scanner.Close, events[3].Kind)
	assert.Equal(t, "Name", events[3].Name)
	assert.Equal(t, scanner.Close, events[4].Kind)
	assert.Equal(t, "Person", events[4].Name)
}

func TestScanner_TextOutsideWantedRegionDiscarded(t *testing.T) {
	s := scanner.New([]string{"Person"})
	events := drain(t, s, `noise before <Person></Person> noise after`)
	require.Len(t, events, 2)
	assert.Equal(t, scanner.Open, events[0].Kind)
	assert.Equal(t, scanner.Close, events[1].Kind)
}

func TestScanner_SelfClosingTagSynthesizesClose(t *testing.T) {
	s := scanner.New([]string{"Person"})
	events := drain(t, s, `<Person/>`)
	require.Len(t, events, 2)
	assert.Equal(t, scanner.Open, events[0].Kind)
	assert.Equal(t, "Person", events[0].Name)
	assert.Equal(t, scanner.Close, events[1].Kind)
	assert.Equal(t, "Person", events[1].Name)
}

func TestScanner_SelfClosingNestedField(t *testing.T) {
	s := scanner.New([]string{"Person"})
	events := drain(t, s, `<Person><Nickname/></Person>`)
	require.Len(t, events, 4)
	assert.Equal(t, "Person", events[0].Name)
	assert.Equal(t, "Nickname", events[1].Name)
	assert.Equal(t, scanner.Close, events[2].Kind)
	assert.Equal(t, "Nickname", events[2].Name)
	assert.Equal(t, "Person", events[3].Name)
}

func TestScanner_AttributesDecodeEntities(t *testing.T) {
	s := scanner.New([]string{"Person"})
	events := drain(t, s, `<Person note="a &amp; b &lt;ok&gt;"></Person>`)
	require.Len(t, events, 2)
	require.NotNil(t, events[0].Attrs)
	assert.Equal(t, `a & b <ok>`, events[0].Attrs["note"])
}

func TestScanner_IgnoredTagOutsideWantedRegionFullyElided(t *testing.T) {
	s := scanner.New([]string{"Person"})
	events := drain(t, s, `<think>planning with <Person>fake</Person> inside</think><Person>real</Person>`)
	require.Len(t, events, 3)
	assert.Equal(t, "Person", events[0].Name)
	assert.Equal(t, "real", events[1].Data)
	assert.Equal(t, scanner.Close, events[2].Kind)
}

func TestScanner_IgnoredTagInsideWantedRegionPassedThroughAsText(t *testing.T) {
	s := scanner.New([]string{"Person"})
	events := drain(t, s, `<Person><Name>Ada<think>nested <b>stuff</b></think> Lovelace</Name></Person>`)

	require.Equal(t, scanner.Open, events[0].Kind)
	require.Equal(t, scanner.Open, events[1].Kind)

	var text string
	for _, e := range events[2 : len(events)-2] {
		require.Equal(t, scanner.Text, e.Kind)
		text += e.Data
	}
	assert.Equal(t, "Ada"+"nested <b>stuff</b>"+" Lovelace", text)

	assert.Equal(t, scanner.Close, events[len(events)-2].Kind)
	assert.Equal(t, "Name", events[len(events)-2].Name)
	assert.Equal(t, scanner.Close, events[len(events)-1].Kind)
	assert.Equal(t, "Person", events[len(events)-1].Name)
}

func TestScanner_MismatchedCloseRecoversToAncestor(t *testing.T) {
	s := scanner.New([]string{"Person"})
	events := drain(t, s, `<Person><A><B></A></Person>`)
	// </A> closes both A and (silently, without a forwarded event) drops the
	// unmatched B level; the forwarded stream still lets the stack machine
	// apply its own tolerant popping.
	var names []string
	for _, e := range events {
		if e.Kind == scanner.Close {
			names = append(names, e.Name)
		}
	}
	assert.Contains(t, names, "A")
	assert.Contains(t, names, "Person")
}

func TestScanner_StrayCloseOutsideWantedDiscarded(t *testing.T) {
	s := scanner.New([]string{"Person"})
	events := drain(t, s, `</Nope><Person></Person>`)
	require.Len(t, events, 2)
	assert.Equal(t, scanner.Open, events[0].Kind)

	recorded := s.Errors()
	require.Len(t, recorded, 1)
	assert.Equal(t, gasperr.ScannerRecovery, recorded[0].Err.Kind)
}

// coalesceText merges adjacent Text events. The scanner emits the text a
// chunk carries as soon as it arrives, so a split inside a text run yields
// two Text events where the unsplit input yields one.
func coalesceText(events []scanner.Event) []scanner.Event {
	var out []scanner.Event
	for _, e := range events {
		if e.Kind == scanner.Text && len(out) > 0 && out[len(out)-1].Kind == scanner.Text {
			out[len(out)-1].Data += e.Data
			continue
		}
		out = append(out, e)
	}
	return out
}

func TestScanner_ResumableAcrossArbitraryChunkSplits(t *testing.T) {
	input := `before <Person><Name>Grace Hopper</Name><Age>85</Age></Person> after`
	for split := 1; split < len(input); split++ {
		s := scanner.New([]string{"Person"})
		a := drain(t, s, input[:split], input[split:])

		s2 := scanner.New([]string{"Person"})
		b := drain(t, s2, input)

		require.Equalf(t, coalesceText(b), coalesceText(a), "split at byte %d produced a different event sequence", split)
	}
}

func TestScanner_BareLtWithoutTerminatorRecoversAsText(t *testing.T) {
	s := scanner.New([]string{"Person"})
	long := make([]byte, 0, 300)
	long = append(long, '<')
	for len(long) < 300 {
		long = append(long, 'x')
	}
	events := drain(t, s, `<Person>`, string(long))
	require.NotEmpty(t, events)
	assert.Equal(t, scanner.Open, events[0].Kind)
	found := false
	for _, e := range events {
		if e.Kind == scanner.Text && e.Data == "<" {
			found = true
		}
	}
	assert.True(t, found, "expected a bare '<' to recover as text after lookahead limit")
}

func TestScanner_MalformedAttributeAbortsOnlyThatAttribute(t *testing.T) {
	s := scanner.New([]string{"Person"})
	events := drain(t, s, `<Person good="yes" bad=unterminated></Person>`)
	require.Len(t, events, 2)
	assert.Equal(t, "yes", events[0].Attrs["good"])
	_, hasBad := events[0].Attrs["bad"]
	assert.False(t, hasBad)

	recorded := s.Errors()
	require.Len(t, recorded, 1)
	assert.Equal(t, gasperr.ScannerRecovery, recorded[0].Err.Kind)
}

type recordingLogger struct {
	warnings int
}

func (l *recordingLogger) Debug(string, ...any) {}
func (l *recordingLogger) Warn(string, ...any)  { l.warnings++ }

func TestScanner_RecoveryEventsWarnThroughConfiguredLogger(t *testing.T) {
	logger := &recordingLogger{}
	s := scanner.New([]string{"Person"}, scanner.WithLogger(logger))
	drain(t, s, `</Nope><Person></Person>`)

	assert.Equal(t, 1, logger.warnings)
	assert.Len(t, s.Errors(), 1)
}
