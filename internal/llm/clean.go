package llm

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Step is one pure text transform of the recovery pipeline.
type Step struct {
	Name  string
	Apply func(string) string
}

// Pipeline is the ordered recovery pass run on text that does not already
// decode as JSON.
var Pipeline = []Step{
	{"strip_fences", StripFences},
	{"extract_span", ExtractSpan},
	{"sanitize", Sanitize},
	{"collapse_newlines", CollapseNewlines},
	{"escape_stray_quotes", EscapeStrayQuotes},
	{"remove_trailing_commas", RemoveTrailingCommas},
	{"quote_bare_keys", QuoteBareKeys},
	{"normalize_whitespace", NormalizeWhitespace},
}

// Clean runs the pipeline. Text that already decodes is returned trimmed
// and otherwise untouched.
func Clean(text string) string {
	trimmed := strings.TrimSpace(text)
	if _, err := decode(trimmed); err == nil {
		return trimmed
	}
	return runPipeline(text)
}

func runPipeline(text string) string {
	for _, step := range Pipeline {
		text = step.Apply(text)
	}
	return text
}

// StripFences returns the body of the first Markdown code fence, or text
// unchanged when there is none. A fence must start a line.
func StripFences(text string) string {
	start := fenceIndex(text)
	if start < 0 {
		return text
	}

	body := text[start+3:]
	// drop the info string, e.g. ```json
	if nl := strings.IndexByte(body, '\n'); nl >= 0 {
		body = body[nl+1:]
	} else {
		body = strings.TrimLeftFunc(body, unicode.IsLetter)
	}

	if end := strings.Index(body, "```"); end >= 0 {
		body = body[:end]
	}
	return strings.TrimSpace(body)
}

func fenceIndex(s string) int {
	for i := 0; i+3 <= len(s); i++ {
		if strings.HasPrefix(s[i:], "```") && onlySpaceBefore(s, i) {
			return i
		}
	}
	return -1
}

func onlySpaceBefore(s string, i int) bool {
	for j := i - 1; j >= 0; j-- {
		switch s[j] {
		case ' ', '\t':
			continue
		case '\n':
			return true
		default:
			return false
		}
	}
	return true
}

// ExtractSpan returns the first balanced {...} or [...] span. Without a
// balanced close it returns everything from the opener to the last matching
// closer. Text with no opener is returned unchanged.
func ExtractSpan(text string) string {
	start := strings.IndexAny(text, "{[")
	if start < 0 {
		return text
	}

	var (
		depth    int
		inString bool
		escaped  bool
	)
	for i := start; i < len(text); i++ {
		c := text[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{', '[':
			depth++
		case '}', ']':
			depth--
			if depth == 0 {
				return text[start : i+1]
			}
		}
	}

	closer := byte('}')
	if text[start] == '[' {
		closer = ']'
	}
	if end := strings.LastIndexByte(text, closer); end > start {
		return text[start : end+1]
	}
	return text[start:]
}

var invisible = runes.Predicate(func(r rune) bool {
	switch r {
	case '\uFEFF', '\u200B', '\u200C', '\u200D', '\u2060':
		return true
	case '\n', '\r', '\t':
		return false
	}
	return unicode.IsControl(r)
})

// rawControl matches C0 controls, which JSON forbids unescaped in strings.
var rawControl = runes.Predicate(func(r rune) bool {
	return r < 0x20 && r != '\n' && r != '\r' && r != '\t'
})

// Sanitize replaces invalid UTF-8 everywhere. Outside string literals it
// drops control and zero-width characters and applies NFC normalization;
// inside them only raw C0 controls are dropped, so string values keep
// their characters.
func Sanitize(text string) string {
	valid, _, err := transform.String(runes.ReplaceIllFormed(), text)
	if err != nil {
		valid = text
	}

	var sb strings.Builder
	sb.Grow(len(valid))

	var inString, escaped bool
	segStart := 0
	flush := func(end int, literal bool) {
		if end <= segStart {
			return
		}
		seg := valid[segStart:end]
		var t transform.Transformer = transform.Chain(runes.Remove(invisible), norm.NFC)
		if literal {
			t = runes.Remove(rawControl)
		}
		if out, _, err := transform.String(t, seg); err == nil {
			seg = out
		}
		sb.WriteString(seg)
		segStart = end
	}

	for i := 0; i < len(valid); i++ {
		c := valid[i]
		if !inString {
			if c == '"' {
				flush(i, false)
				inString = true
			}
			continue
		}
		switch {
		case escaped:
			escaped = false
		case c == '\\':
			escaped = true
		case c == '"':
			flush(i+1, true)
			inString = false
		}
	}
	flush(len(valid), inString)
	return sb.String()
}

// CollapseNewlines replaces raw line breaks and tabs inside string values
// with a single space.
func CollapseNewlines(text string) string {
	var sb strings.Builder
	sb.Grow(len(text))

	var inString, escaped, lastSpace bool
	for i := 0; i < len(text); i++ {
		c := text[i]
		if !inString {
			if c == '"' {
				inString = true
			}
			sb.WriteByte(c)
			continue
		}

		switch {
		case escaped:
			escaped = false
		case c == '\\':
			escaped = true
		case c == '"':
			inString = false
		case c == '\n' || c == '\r' || c == '\t':
			if !lastSpace {
				sb.WriteByte(' ')
				lastSpace = true
			}
			continue
		}
		lastSpace = false
		sb.WriteByte(c)
	}
	return sb.String()
}

// EscapeStrayQuotes escapes quotes inside string values that do not end
// the string. A quote ends a string when the next non-blank character is a
// structural one or the input ends.
func EscapeStrayQuotes(text string) string {
	var sb strings.Builder
	sb.Grow(len(text) + 8)

	var inString, escaped bool
	for i := 0; i < len(text); i++ {
		c := text[i]
		if !inString {
			if c == '"' {
				inString = true
			}
			sb.WriteByte(c)
			continue
		}

		switch {
		case escaped:
			escaped = false
		case c == '\\':
			escaped = true
		case c == '"':
			if closesString(text, i+1) {
				inString = false
			} else {
				sb.WriteByte('\\')
			}
		}
		sb.WriteByte(c)
	}
	return sb.String()
}

func closesString(text string, from int) bool {
	for j := from; j < len(text); j++ {
		switch text[j] {
		case ' ', '\t', '\n', '\r':
			continue
		case ',', '}', ']', ':':
			return true
		default:
			return false
		}
	}
	return true
}

// RemoveTrailingCommas drops a comma that directly precedes a closing
// bracket, ignoring whitespace between them.
func RemoveTrailingCommas(text string) string {
	var sb strings.Builder
	sb.Grow(len(text))

	var inString, escaped bool
	for i := 0; i < len(text); i++ {
		c := text[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			sb.WriteByte(c)
			continue
		}

		if c == '"' {
			inString = true
		}
		if c == ',' && nextIsCloser(text, i+1) {
			continue
		}
		sb.WriteByte(c)
	}
	return sb.String()
}

func nextIsCloser(text string, from int) bool {
	for j := from; j < len(text); j++ {
		switch text[j] {
		case ' ', '\t', '\n', '\r':
			continue
		case '}', ']':
			return true
		default:
			return false
		}
	}
	return false
}

// QuoteBareKeys wraps unquoted identifier keys in double quotes.
func QuoteBareKeys(text string) string {
	var sb strings.Builder
	sb.Grow(len(text) + 8)

	var inString, escaped bool
	expectKey := false
	for i := 0; i < len(text); i++ {
		c := text[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			sb.WriteByte(c)
			continue
		}

		switch {
		case c == '"':
			inString = true
			expectKey = false
		case c == '{' || c == ',':
			expectKey = true
		case c == ' ' || c == '\t' || c == '\n' || c == '\r':
		case expectKey && isIdentStart(c):
			j := i
			for j < len(text) && isIdentPart(text[j]) {
				j++
			}
			if colonFollows(text, j) {
				sb.WriteByte('"')
				sb.WriteString(text[i:j])
				sb.WriteByte('"')
				i = j - 1
				expectKey = false
				continue
			}
			expectKey = false
		default:
			expectKey = false
		}
		sb.WriteByte(c)
	}
	return sb.String()
}

func isIdentStart(c byte) bool {
	return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func isIdentPart(c byte) bool {
	return isIdentStart(c) || c == '-' || (c >= '0' && c <= '9')
}

func colonFollows(text string, from int) bool {
	for j := from; j < len(text); j++ {
		switch text[j] {
		case ' ', '\t':
			continue
		case ':':
			return true
		default:
			return false
		}
	}
	return false
}

// NormalizeWhitespace collapses whitespace runs outside strings to a
// single space and trims the ends.
func NormalizeWhitespace(text string) string {
	var sb strings.Builder
	sb.Grow(len(text))

	var inString, escaped, pending bool
	for i := 0; i < len(text); i++ {
		c := text[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			sb.WriteByte(c)
			continue
		}

		if c == ' ' || c == '\t' || c == '\n' || c == '\r' {
			pending = true
			continue
		}
		if pending && sb.Len() > 0 {
			sb.WriteByte(' ')
		}
		pending = false
		if c == '"' {
			inString = true
		}
		sb.WriteByte(c)
	}
	return sb.String()
}
