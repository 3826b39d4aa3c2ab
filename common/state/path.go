package state

import "strings"

// parsePath splits a path string into segments.
//
// Supported grammar: dotted segments ("a.b.c"), bracket segments with
// optional quoting (`a[0]`, `a["b.c"]`, `a['d']`), and an optional leading
// "$" or "$." which addresses the document root. An empty path or "$" alone
// yields no segments.
func parsePath(path string) []string {
	path = strings.TrimSpace(path)
	if path == "" || path == "$" {
		return nil
	}
	path = strings.TrimPrefix(path, "$.")
	path = strings.TrimPrefix(path, "$")

	var segments []string
	var buf strings.Builder

	flush := func() {
		if buf.Len() > 0 {
			segments = append(segments, buf.String())
			buf.Reset()
		}
	}

	for i := 0; i < len(path); i++ {
		c := path[i]
		switch c {
		case '.':
			flush()
		case '[':
			flush()
			end := strings.IndexByte(path[i:], ']')
			if end < 0 {
				// Unterminated bracket, keep the rest verbatim
				buf.WriteString(path[i:])
				i = len(path)
				continue
			}
			inner := path[i+1 : i+end]
			inner = strings.Trim(inner, `"'`)
			if inner != "" {
				segments = append(segments, inner)
			}
			i += end
		default:
			buf.WriteByte(c)
		}
	}
	flush()

	return segments
}

// isIndex reports whether a segment is all digits and therefore addresses a
// sequence element.
func isIndex(seg string) (int, bool) {
	if seg == "" {
		return 0, false
	}
	n := 0
	for i := 0; i < len(seg); i++ {
		if seg[i] < '0' || seg[i] > '9' {
			return 0, false
		}
		n = n*10 + int(seg[i]-'0')
	}
	return n, true
}
