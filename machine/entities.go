package machine

import "strings"

// textEntities decodes the same five XML entities the scanner decodes in
// attribute values, applied here to primitive text content on request of
// the consumer (the stack machine), per spec.md §4.2: "entity-decoded on
// request by the consumer, not by the scanner."
var textEntities = map[string]string{
	"&lt;":   "<",
	"&gt;":   ">",
	"&amp;":  "&",
	"&quot;": `"`,
	"&apos;": "'",
}

func decodeTextEntities(s string) string {
	if !strings.ContainsRune(s, '&') {
		return s
	}
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); {
		if s[i] == '&' {
			if end := strings.IndexByte(s[i:], ';'); end >= 0 && end <= 8 {
				if rep, ok := textEntities[s[i:i+end+1]]; ok {
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
