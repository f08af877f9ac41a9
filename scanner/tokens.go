package scanner

import "strings"

// entities is the small, fixed XML entity table the scanner decodes inside
// attribute values (spec.md §4.2). Text content is left raw; the consumer
// decodes it at object-scope finalization.
var entities = map[string]string{
	"&lt;":   "<",
	"&gt;":   ">",
	"&amp;":  "&",
	"&quot;": `"`,
	"&apos;": "'",
}

func decodeEntities(s string) string {
	if !strings.ContainsRune(s, '&') {
		return s
	}
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); {
		if s[i] == '&' {
			if end := strings.IndexByte(s[i:], ';'); end >= 0 && end <= 8 {
				if rep, ok := entities[s[i:i+end+1]]; ok {
					b.WriteString(rep)
					i += end + 1
					continue
				}
			}
		}
		b.WriteByte(s[i])
		i++
	}
	return b.String()
}

func isNameStart(b byte) bool {
	return b == '_' || (b >= 'A' && b <= 'Z') || (b >= 'a' && b <= 'z')
}

func isNameByte(b byte) bool {
	return isNameStart(b) || (b >= '0' && b <= '9')
}

// parseTagBody parses the interior of a tag (with any leading '/' or
// trailing '/' already stripped by the caller) into a name and an attribute
// map. valid is false if body does not begin with a well-formed tag name,
// in which case the whole token is recovered as text by the caller.
//
// Malformed attributes abort only the current attribute, not the tag: a
// key without a quoted value, or an unterminated quote, stops attribute
// scanning at that point but the already-parsed name and attributes stand.
// truncated reports whether scanning stopped early for one of those reasons
// (as opposed to running cleanly off the end of body), so the caller can
// record a ScannerRecovery event.
func parseTagBody(body string) (name string, attrs map[string]string, valid, truncated bool) {
	body = strings.TrimSpace(body)
	i := 0
	if i >= len(body) || !isNameStart(body[i]) {
		return "", nil, false, false
	}
	start := i
	for i < len(body) && isNameByte(body[i]) {
		i++
	}
	name = body[start:i]

	for {
		for i < len(body) && (body[i] == ' ' || body[i] == '\t' || body[i] == '\n' || body[i] == '\r') {
			i++
		}
		if i >= len(body) {
			break
		}
		if !isNameStart(body[i]) {
			truncated = true
			break // malformed attribute start: stop scanning, keep name/attrs so far
		}
		keyStart := i
		for i < len(body) && isNameByte(body[i]) {
			i++
		}
		key := body[keyStart:i]

		for i < len(body) && (body[i] == ' ' || body[i] == '\t') {
			i++
		}
		if i >= len(body) || body[i] != '=' {
			truncated = true
			break // bare attribute with no value: abort attribute scanning
		}
		i++
		for i < len(body) && (body[i] == ' ' || body[i] == '\t') {
			i++
		}
		if i >= len(body) || (body[i] != '"' && body[i] != '\'') {
			truncated = true
			break
		}
		quote := body[i]
		i++
		valStart := i
		for i < len(body) && body[i] != quote {
			i++
		}
		if i >= len(body) {
			truncated = true
			break // unterminated quote: abort attribute scanning
		}
		val := decodeEntities(body[valStart:i])
		i++ // consume closing quote
		if attrs == nil {
			attrs = make(map[string]string)
		}
		attrs[key] = val
	}

	return name, attrs, true, truncated
}
