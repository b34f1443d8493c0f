package css

import (
	"strconv"
	"strings"
	"unicode/utf8"
)

func isHexDigit(c byte) bool {
	return '0' <= c && c <= '9' || 'a' <= c && c <= 'f' || 'A' <= c && c <= 'F'
}

func isNameStart(r rune) bool {
	return 'a' <= r && r <= 'z' || 'A' <= r && r <= 'Z' || r == '_' || r >= utf8.RuneSelf
}

func isNameChar(r rune) bool {
	return isNameStart(r) || '0' <= r && r <= '9' || r == '-'
}

// unescape decodes CSS escape sequences in s.
func unescape(s string) string {
	if strings.IndexByte(s, '\\') < 0 {
		return s
	}
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c != '\\' {
			b.WriteByte(c)
			continue
		}
		i++
		if i >= len(s) {
			// trailing backslash at end of input produces U+FFFD
			b.WriteRune(utf8.RuneError)
			break
		}
		switch {
		case s[i] == '\n':
			// escaped newline inside strings is a line continuation
		case s[i] == '\r':
			if i+1 < len(s) && s[i+1] == '\n' {
				i++
			}
		case isHexDigit(s[i]):
			j := i
			for j < len(s) && j-i < 6 && isHexDigit(s[j]) {
				j++
			}
			cp, _ := strconv.ParseUint(s[i:j], 16, 32)
			r := rune(cp)
			if r == 0 || r > utf8.MaxRune || (0xD800 <= r && r <= 0xDFFF) {
				r = utf8.RuneError
			}
			b.WriteRune(r)
			if j < len(s) && (s[j] == ' ' || s[j] == '\t' || s[j] == '\n') {
				j++
			} else if j+1 < len(s) && s[j] == '\r' && s[j+1] == '\n' {
				j += 2
			}
			i = j - 1
		default:
			_, size := utf8.DecodeRuneInString(s[i:])
			b.WriteString(s[i : i+size])
			i += size - 1
		}
	}
	return b.String()
}

// decodeString strips quotes from a string token and decodes escapes. It
// tolerates missing closing quote.
func decodeString(raw string) (string, byte) {
	if raw == "" {
		return "", 0
	}
	q := raw[0]
	if q != '"' && q != '\'' {
		return unescape(raw), 0
	}
	body := raw[1:]
	if n := len(body); n > 0 && body[n-1] == q {
		// closing quote counts only when preceded by even number of backslashes
		slashes := 0
		for i := n - 2; i >= 0 && body[i] == '\\'; i-- {
			slashes++
		}
		if slashes%2 == 0 {
			body = body[:n-1]
		}
	}
	return unescape(body), q
}

// decodeURL decodes url(...) token data.
func decodeURL(raw string) (value string, quote byte, empty bool) {
	inner := raw
	if len(inner) >= 4 && strings.EqualFold(inner[:4], "url(") {
		inner = inner[4:]
	}
	inner = strings.TrimSuffix(inner, ")")
	inner = strings.Trim(inner, " \t\n\r\f")
	if inner == "" {
		return "", 0, true
	}
	if inner[0] == '"' || inner[0] == '\'' {
		v, q := decodeString(inner)
		return v, q, false
	}
	return unescape(inner), 0, false
}

// EscapeIdent serializes s as a CSS identifier, escaping characters which
// cannot appear in identifiers.
func EscapeIdent(s string) string {
	if s == "" {
		return s
	}
	plain := true
	for i, r := range s {
		if !isNameChar(r) || (i == 0 && r >= '0' && r <= '9') {
			plain = false
			break
		}
	}
	if plain && !(len(s) > 1 && s[0] == '-' && s[1] >= '0' && s[1] <= '9') && s != "-" {
		return s
	}

	var b strings.Builder
	for i, r := range s {
		switch {
		case r == 0:
			b.WriteRune(utf8.RuneError)
		case r < 0x20 || r == 0x7f:
			b.WriteString(`\` + strconv.FormatInt(int64(r), 16) + " ")
		case '0' <= r && r <= '9' && (i == 0 || (i == 1 && s[0] == '-')):
			b.WriteString(`\3` + string(r) + " ")
		case r == '-' && i == 0 && len(s) == 1:
			b.WriteString(`\-`)
		case isNameChar(r):
			b.WriteRune(r)
		default:
			b.WriteByte('\\')
			b.WriteRune(r)
		}
	}
	return b.String()
}

// QuoteString serializes s as CSS string. Double quotes are preferred unless
// the content has double quotes and no single quotes.
func QuoteString(s string) string {
	q := byte('"')
	if strings.IndexByte(s, '"') >= 0 && strings.IndexByte(s, '\'') < 0 {
		q = '\''
	}
	var b strings.Builder
	b.Grow(len(s) + 2)
	b.WriteByte(q)
	for _, r := range s {
		switch {
		case r == rune(q) || r == '\\':
			b.WriteByte('\\')
			b.WriteRune(r)
		case r == '\n':
			b.WriteString(`\a `)
		case r < 0x20 || r == 0x7f:
			b.WriteString(`\` + strconv.FormatInt(int64(r), 16) + " ")
		default:
			b.WriteRune(r)
		}
	}
	b.WriteByte(q)
	return b.String()
}

// escapeURL serializes s as unquoted url() content.
func escapeURL(s string) string {
	if !strings.ContainsAny(s, "()\"' \t\n\\") {
		return s
	}
	var b strings.Builder
	for _, r := range s {
		switch r {
		case '(', ')', '"', '\'', ' ', '\t', '\\':
			b.WriteByte('\\')
			b.WriteRune(r)
		case '\n':
			b.WriteString(`\a `)
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}
