// Package scanner transforms a byte stream into a lazy sequence of tag
// events meaningful to the stack machine, hiding lexical concerns: token
// recognition, entity decoding, ignored-tag elision, and resumability across
// chunk boundaries split at unpredictable byte offsets.
package scanner

import (
	"strings"

	"goa.design/gasp/gasperr"
	"goa.design/gasp/gasplog"
)

// EventKind discriminates the three event shapes the scanner emits.
type EventKind int

const (
	// Open reports a matched opening tag, <Name attr="v">, including the
	// self-closing form <Name/> (which is immediately followed by a
	// synthetic Close for the same name).
	Open EventKind = iota
	// Close reports a matched closing tag, </Name>.
	Close
	// Text reports a run of text content inside a wanted region, or the
	// literal pass-through content of an ignored tag's body.
	Text
)

// Event is one scanner-produced token. Attrs and Data are only meaningful
// for the corresponding Kind; the stack machine reads them unconditionally
// since the zero values (nil map, empty string) are harmless.
type Event struct {
	Kind  EventKind
	Name  string
	Attrs map[string]string
	Data  string
}

// DefaultIgnoredTags is the default ignored-tag set from spec.md §6.
var DefaultIgnoredTags = []string{"think", "thinking", "system", "thought"}

type mode int

const (
	outsideWanted mode = iota
	insideWanted
)

// maxBareLtLookahead bounds how far the scanner looks ahead for a tag
// terminator before giving up and emitting an isolated '<' as text
// (spec.md §4.2: "an isolated < not forming a valid tag within 256 bytes is
// emitted as text").
const maxBareLtLookahead = 256

// Scanner consumes raw byte chunks and produces tag events. It never
// blocks: Consume returns only the events derivable from the buffer it
// currently holds, retaining any trailing incomplete token for the next
// call. A Scanner is not safe for concurrent use.
type Scanner struct {
	buf     []byte
	pending []Event // synthetic events (self-closing tags' Close) queued ahead of buffer re-scan

	regions []string // stack of open tag names while insideWanted, used to match closes and detect wanted-region exit
	ignored map[string]struct{}
	wanted  map[string]struct{}
	mode    mode

	// ignoredStack tracks nested elided ignored-tag opens so content (and
	// any tag-shaped tokens inside it) is suppressed, or passed through as
	// literal text when insideWanted, until the elision fully unwinds.
	ignoredStack []string

	errs gasperr.Recorder
	log  gasplog.Logger
}

// Option configures a Scanner at construction.
type Option func(*Scanner)

// WithIgnoredTags replaces the default ignored-tag set.
func WithIgnoredTags(names ...string) Option {
	return func(s *Scanner) { s.ignored = toSet(names) }
}

// WithLogger overrides the default no-op logger used for recovered lexical
// errors (malformed tokens, stray closes, aborted attributes).
func WithLogger(l gasplog.Logger) Option {
	return func(s *Scanner) { s.log = l }
}

// New constructs a Scanner that searches for an Open matching any of
// wantedNames as the outermost tag of the region it surfaces events for
// (the root type's expected name, or any alternative of a root union).
func New(wantedNames []string, opts ...Option) *Scanner {
	s := &Scanner{
		ignored: toSet(DefaultIgnoredTags),
		wanted:  toSet(wantedNames),
		mode:    outsideWanted,
		log:     gasplog.NoopLogger{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Errors returns every ScannerRecovery event recorded so far: malformed
// tokens, stray or mismatched closes, and aborted attributes.
func (s *Scanner) Errors() []gasperr.Recorded { return s.errs.Errors() }

// record appends a ScannerRecovery event and warns through the configured
// logger, mirroring machine.Machine.record's accumulate-then-warn shape.
func (s *Scanner) record(msg, path string) {
	err := gasperr.New(gasperr.ScannerRecovery, msg)
	s.errs.Record(err, path)
	s.log.Warn(msg, "kind", gasperr.ScannerRecovery.String(), "path", path)
}

func toSet(names []string) map[string]struct{} {
	m := make(map[string]struct{}, len(names))
	for _, n := range names {
		m[n] = struct{}{}
	}
	return m
}

// Consume appends chunk to the internal buffer and returns every event
// derivable from the buffer's current contents, retaining any trailing
// incomplete token for the next call. Consume never blocks.
func (s *Scanner) Consume(chunk []byte) []Event {
	s.buf = append(s.buf, chunk...)
	var events []Event
	for {
		if len(s.pending) > 0 {
			events = append(events, s.pending[0])
			s.pending = s.pending[1:]
			continue
		}
		ev, n, ok := s.step()
		if !ok {
			break
		}
		s.buf = s.buf[n:]
		if ev != nil {
			events = append(events, *ev)
		}
	}
	return events
}

func (s *Scanner) step() (*Event, int, bool) {
	if len(s.buf) == 0 {
		return nil, 0, false
	}
	if s.buf[0] == '<' {
		return s.stepTag()
	}
	return s.stepText()
}

// stepText consumes a run of non-'<' bytes. Outside a wanted region the
// text is discarded (per the wanted-region rule); inside one it is emitted
// verbatim (entity decoding is deferred to the consumer, per spec.md §4.2).
func (s *Scanner) stepText() (*Event, int, bool) {
	i := strings.IndexByte(string(s.buf), '<')
	n := i
	if i < 0 {
		n = len(s.buf)
	}
	if n == 0 {
		return nil, 0, false
	}
	data := string(s.buf[:n])
	if s.mode != insideWanted {
		return nil, n, true
	}
	return &Event{Kind: Text, Data: data}, n, true
}

// stepTag attempts to recognize a complete <...> token starting at buf[0].
// It returns ok=false if the buffer might still grow into a valid token.
func (s *Scanner) stepTag() (*Event, int, bool) {
	end := strings.IndexByte(string(s.buf), '>')
	if end < 0 {
		if len(s.buf) >= maxBareLtLookahead {
			s.record("isolated '<' did not form a valid tag within lookahead window", "<scan>")
			if s.mode == insideWanted && len(s.ignoredStack) == 0 {
				return &Event{Kind: Text, Data: "<"}, 1, true
			}
			return nil, 1, true
		}
		return nil, 0, false
	}
	raw := string(s.buf[1:end])
	total := end + 1

	closing := strings.HasPrefix(raw, "/")
	selfClosing := !closing && strings.HasSuffix(raw, "/")
	body := raw
	switch {
	case closing:
		body = body[1:]
	case selfClosing:
		body = body[:len(body)-1]
	}
	name, attrs, validName, attrsTruncated := parseTagBody(body)
	if validName && attrsTruncated {
		s.record("malformed attribute aborted attribute scanning", name)
	}

	// Elision: while inside an ignored-tag region, only a tag matching the
	// ignored-tag set affects the elision stack; everything else is either
	// suppressed (outside a wanted region) or passed through as literal
	// text (inside one), per the ignored-tag rule.
	if len(s.ignoredStack) > 0 {
		if validName && s.isIgnored(name) {
			if closing {
				if top := s.ignoredStack[len(s.ignoredStack)-1]; top == name {
					s.ignoredStack = s.ignoredStack[:len(s.ignoredStack)-1]
				}
				return nil, total, true
			}
			if !selfClosing {
				s.ignoredStack = append(s.ignoredStack, name)
			}
			return nil, total, true
		}
		if s.mode == insideWanted {
			return &Event{Kind: Text, Data: string(s.buf[:total])}, total, true
		}
		return nil, total, true
	}

	if !validName {
		// Malformed tag body despite a closing '>': recover by treating the
		// whole token as text (inside a wanted region) or discarding it.
		s.record("malformed tag body recovered as text", string(s.buf[:total]))
		if s.mode == insideWanted {
			return &Event{Kind: Text, Data: string(s.buf[:total])}, total, true
		}
		return nil, total, true
	}

	if closing {
		return s.handleClose(name), total, true
	}
	return s.handleOpen(name, attrs, selfClosing), total, true
}

func (s *Scanner) isIgnored(name string) bool {
	_, ok := s.ignored[name]
	return ok
}

func (s *Scanner) isWanted(name string) bool {
	_, ok := s.wanted[name]
	return ok
}

func (s *Scanner) handleOpen(name string, attrs map[string]string, selfClosing bool) *Event {
	if s.isIgnored(name) {
		if !selfClosing {
			s.ignoredStack = append(s.ignoredStack, name)
		}
		return nil
	}

	switch s.mode {
	case outsideWanted:
		if !s.isWanted(name) {
			return nil // foreign tag outside any wanted region: ignored
		}
		s.mode = insideWanted
		s.regions = append(s.regions, name)
		if selfClosing {
			s.regions = s.regions[:len(s.regions)-1]
			s.mode = outsideWanted
			s.pending = append(s.pending, Event{Kind: Close, Name: name})
		}
		return &Event{Kind: Open, Name: name, Attrs: attrs}
	case insideWanted:
		s.regions = append(s.regions, name)
		if selfClosing {
			s.regions = s.regions[:len(s.regions)-1]
			if len(s.regions) == 0 {
				s.mode = outsideWanted
			}
			s.pending = append(s.pending, Event{Kind: Close, Name: name})
		}
		return &Event{Kind: Open, Name: name, Attrs: attrs}
	default:
		return nil
	}
}

func (s *Scanner) handleClose(name string) *Event {
	if s.mode != insideWanted || len(s.regions) == 0 {
		s.record("stray close with nothing open", name)
		return nil // stray close with nothing open: recorded, no event emitted
	}
	idx := -1
	for i := len(s.regions) - 1; i >= 0; i-- {
		if s.regions[i] == name {
			idx = i
			break
		}
	}
	if idx < 0 {
		s.record("unmatched close anywhere in scope", name)
		return nil // unmatched close anywhere in scope: recorded, no event emitted
	}
	s.regions = s.regions[:idx]
	if len(s.regions) == 0 {
		s.mode = outsideWanted
	}
	return &Event{Kind: Close, Name: name}
}
