package structured

import (
	"encoding/json"
	"errors"
	"strings"
)

// ErrUnrepairable is returned when no amount of trimming and balancing
// produces valid JSON
var ErrUnrepairable = errors.New("JSON could not be repaired")

const maxRepairPasses = 20

// Repair makes a best-effort attempt to turn truncated or sloppy JSON into
// valid JSON. It closes unterminated strings, strips trailing commas and
// dangling keys, completes or drops incomplete trailing literals, and balances
// unclosed braces and brackets. If the result still fails to parse, it drops
// the dangling trailing element and tries again, up to maxRepairPasses.
//
// Repair is a pure function: same input, same output, no side effects.
func Repair(input string) (string, error) {
	s := strings.TrimSpace(input)
	if s == "" {
		return "", ErrUnrepairable
	}

	for i := 0; i < maxRepairPasses; i++ {
		candidate := balance(s)
		if json.Valid([]byte(candidate)) {
			return candidate, nil
		}

		// Drop the dangling trailing element and retry
		trimmed := dropTrailingElement(s)
		if trimmed == s {
			return "", ErrUnrepairable
		}
		s = trimmed
	}

	return "", ErrUnrepairable
}

// balance closes an unterminated trailing string, removes trailing commas and
// dangling keys, trims incomplete literals, and appends the closers for every
// container still open
func balance(s string) string {
	inString, stack := scan(s)

	if inString {
		s += `"`
		inString = false
	}

	s = strings.TrimRight(s, " \t\r\n")
	s = trimIncompleteLiteral(s)
	s = trimTrailingComma(s)
	s = trimDanglingKey(s)
	s = trimTrailingComma(s)

	// Containers may have changed if trimming removed an opener; rescan
	_, stack = scan(s)

	var b strings.Builder
	b.WriteString(s)
	for i := len(stack) - 1; i >= 0; i-- {
		if stack[i] == '{' {
			b.WriteByte('}')
		} else {
			b.WriteByte(']')
		}
	}
	return b.String()
}

// scan walks the text tracking string state and the stack of open containers
func scan(s string) (inString bool, stack []byte) {
	escaped := false
	for i := 0; i < len(s); i++ {
		c := s[i]
		if inString {
			if escaped {
				escaped = false
			} else if c == '\\' {
				escaped = true
			} else if c == '"' {
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{', '[':
			stack = append(stack, c)
		case '}':
			if len(stack) > 0 && stack[len(stack)-1] == '{' {
				stack = stack[:len(stack)-1]
			}
		case ']':
			if len(stack) > 0 && stack[len(stack)-1] == '[' {
				stack = stack[:len(stack)-1]
			}
		}
	}
	return inString, stack
}

// trimTrailingComma removes a comma left dangling before end of input
func trimTrailingComma(s string) string {
	t := strings.TrimRight(s, " \t\r\n")
	if strings.HasSuffix(t, ",") {
		return strings.TrimRight(t[:len(t)-1], " \t\r\n")
	}
	return t
}

// trimDanglingKey removes a trailing `"key":` (and the comma before it) that
// was cut off before its value arrived
func trimDanglingKey(s string) string {
	t := strings.TrimRight(s, " \t\r\n")
	if !strings.HasSuffix(t, ":") {
		return t
	}
	t = strings.TrimRight(t[:len(t)-1], " \t\r\n")
	if !strings.HasSuffix(t, `"`) {
		return t
	}

	// Walk back over the key string, honoring escapes
	end := len(t) - 1
	for i := end - 1; i >= 0; i-- {
		if t[i] == '"' && (i == 0 || t[i-1] != '\\') {
			t = strings.TrimRight(t[:i], " \t\r\n")
			break
		}
	}
	return trimTrailingComma(t)
}

// trimIncompleteLiteral fixes trailing tokens cut off mid-literal: partial
// true/false/null barewords are dropped entirely, numbers lose their dangling
// exponent or decimal point
func trimIncompleteLiteral(s string) string {
	t := strings.TrimRight(s, " \t\r\n")
	if t == "" {
		return t
	}

	last := t[len(t)-1]

	// Partial bareword (tru, fals, nul)
	if isAlpha(last) {
		start := len(t)
		for start > 0 && isAlpha(t[start-1]) {
			start--
		}
		word := t[start:]
		switch word {
		case "true", "false", "null":
			return t
		}
		return trimDanglingKey(strings.TrimRight(t[:start], " \t\r\n"))
	}

	// Number cut off mid-token: "0.", "1e", "-"
	for len(t) > 0 {
		c := t[len(t)-1]
		if c == '.' || c == '-' || c == '+' || c == 'e' || c == 'E' {
			t = t[:len(t)-1]
			continue
		}
		break
	}
	return t
}

// dropTrailingElement cuts the input back to the last comma or container
// opener, discarding whatever incomplete element follows it
func dropTrailingElement(s string) string {
	inString := false
	escaped := false
	cut := -1
	for i := 0; i < len(s); i++ {
		c := s[i]
		if inString {
			if escaped {
				escaped = false
			} else if c == '\\' {
				escaped = true
			} else if c == '"' {
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case ',', '{', '[':
			cut = i
		}
	}
	if cut <= 0 {
		return s
	}
	if s[cut] == ',' {
		return s[:cut]
	}
	return s[:cut+1]
}

func isAlpha(c byte) bool {
	return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}
