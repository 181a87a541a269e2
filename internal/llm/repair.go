package llm

import (
	"encoding/json"
	"fmt"
	"strings"
)

// This file is a tolerance layer for reasoning-service output, not a
// general JSON parser. Completions routinely come back truncated
// mid-string or mid-array, fenced in markdown, with unquoted keys,
// trailing commas, or single-quoted values. Repair applies a best-effort
// cleanup so a second decode attempt can succeed; anything it cannot
// salvage stays a decode error for the caller's fallback path.

// DecodeObject decodes a JSON object out of a raw completion. It first
// tries the fence-stripped text as-is, then a repaired form.
func DecodeObject(raw string, v any) error {
	text := StripFences(raw)
	if err := json.Unmarshal([]byte(text), v); err == nil {
		return nil
	}
	repaired, err := Repair(raw)
	if err != nil {
		return err
	}
	if err := json.Unmarshal([]byte(repaired), v); err != nil {
		return fmt.Errorf("decode repaired json: %w", err)
	}
	return nil
}

// Repair extracts the first JSON object from raw and returns a
// best-effort well-formed version of it.
func Repair(raw string) (string, error) {
	s := StripFences(raw)
	start := strings.IndexByte(s, '{')
	if start < 0 {
		return "", fmt.Errorf("no json object in response")
	}
	s = s[start:]
	s = normalizeSingleQuotes(s)
	s = quoteBareKeys(s)
	s = closeOpenTokens(s)
	s = stripTrailingCommas(s)
	return s, nil
}

// closeOpenTokens scans with explicit string/escape state and a bracket
// stack, closing an unterminated string, dropping a dangling comma,
// completing a dangling key with null, and appending the closers for
// every still-open brace and bracket.
func closeOpenTokens(s string) string {
	var stack []byte
	inStr := false
	esc := false
	for i := 0; i < len(s); i++ {
		c := s[i]
		if inStr {
			switch {
			case esc:
				esc = false
			case c == '\\':
				esc = true
			case c == '"':
				inStr = false
			}
			continue
		}
		switch c {
		case '"':
			inStr = true
		case '{', '[':
			stack = append(stack, c)
		case '}', ']':
			if len(stack) > 0 {
				stack = stack[:len(stack)-1]
			}
		}
	}

	out := s
	if esc {
		// A cut right after a backslash leaves a dangling escape.
		out = out[:len(out)-1]
	}
	if inStr {
		out += `"`
	}
	out = strings.TrimRight(out, " \t\r\n")
	if strings.HasSuffix(out, ":") {
		out += " null"
	}
	out = strings.TrimSuffix(out, ",")

	for i := len(stack) - 1; i >= 0; i-- {
		if stack[i] == '{' {
			out += "}"
		} else {
			out += "]"
		}
	}
	return out
}

// stripTrailingCommas removes commas that directly precede a closing
// brace or bracket, outside of strings.
func stripTrailingCommas(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	inStr := false
	esc := false
	for i := 0; i < len(s); i++ {
		c := s[i]
		if inStr {
			b.WriteByte(c)
			switch {
			case esc:
				esc = false
			case c == '\\':
				esc = true
			case c == '"':
				inStr = false
			}
			continue
		}
		if c == '"' {
			inStr = true
			b.WriteByte(c)
			continue
		}
		if c == ',' {
			j := i + 1
			for j < len(s) && isJSONSpace(s[j]) {
				j++
			}
			if j < len(s) && (s[j] == '}' || s[j] == ']') {
				continue // drop the comma
			}
		}
		b.WriteByte(c)
	}
	return b.String()
}

// quoteBareKeys wraps unquoted object keys in double quotes. A bare key
// is an identifier that follows '{' or ',' and is followed by ':'.
func quoteBareKeys(s string) string {
	var b strings.Builder
	b.Grow(len(s) + 8)
	inStr := false
	esc := false
	expectKey := false
	for i := 0; i < len(s); i++ {
		c := s[i]
		if inStr {
			b.WriteByte(c)
			switch {
			case esc:
				esc = false
			case c == '\\':
				esc = true
			case c == '"':
				inStr = false
			}
			continue
		}
		switch {
		case c == '"':
			inStr = true
			expectKey = false
			b.WriteByte(c)
		case c == '{' || c == ',':
			expectKey = true
			b.WriteByte(c)
		case isJSONSpace(c):
			b.WriteByte(c)
		case expectKey && isIdentByte(c):
			j := i
			for j < len(s) && isIdentByte(s[j]) {
				j++
			}
			k := j
			for k < len(s) && isJSONSpace(s[k]) {
				k++
			}
			if k < len(s) && s[k] == ':' {
				b.WriteByte('"')
				b.WriteString(s[i:j])
				b.WriteByte('"')
			} else {
				b.WriteString(s[i:j])
			}
			i = j - 1
			expectKey = false
		default:
			expectKey = false
			b.WriteByte(c)
		}
	}
	return b.String()
}

// normalizeSingleQuotes rewrites single-quoted strings as double-quoted
// ones, escaping any embedded double quotes.
func normalizeSingleQuotes(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	inDouble := false
	inSingle := false
	esc := false
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case inDouble:
			b.WriteByte(c)
			switch {
			case esc:
				esc = false
			case c == '\\':
				esc = true
			case c == '"':
				inDouble = false
			}
		case inSingle:
			switch {
			case esc:
				esc = false
				b.WriteByte(c)
			case c == '\\':
				esc = true
				b.WriteByte(c)
			case c == '\'':
				inSingle = false
				b.WriteByte('"')
			case c == '"':
				b.WriteString(`\"`)
			default:
				b.WriteByte(c)
			}
		case c == '"':
			inDouble = true
			b.WriteByte(c)
		case c == '\'':
			inSingle = true
			b.WriteByte('"')
		default:
			b.WriteByte(c)
		}
	}
	return b.String()
}

func isJSONSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\r'
}

func isIdentByte(c byte) bool {
	return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9')
}
