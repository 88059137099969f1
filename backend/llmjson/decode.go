// Package llmjson decodes JSON objects out of free-form language model
// output, tolerating surrounding prose, code fences and LaTeX backslashes.
package llmjson

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

var ErrUndecodable = errors.New("llmjson: output contains no decodable JSON object")

// Decode unmarshals the JSON object in text into v. LaTeX backslashes are
// repaired first, since "\frac" or "\beta" would otherwise decode silently as
// control characters. It tries the whole text, then the outermost {...} span.
func Decode(text string, v any) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return ErrUndecodable
	}

	if err := json.Unmarshal([]byte(repairEscapes(text)), v); err == nil {
		return nil
	}

	candidate, ok := outermostObject(text)
	if !ok {
		return ErrUndecodable
	}
	if err := json.Unmarshal([]byte(repairEscapes(candidate)), v); err != nil {
		return fmt.Errorf("%w: %v", ErrUndecodable, err)
	}
	return nil
}

func outermostObject(text string) (string, bool) {
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end <= start {
		return "", false
	}
	return text[start : end+1], true
}

// repairEscapes doubles backslashes inside string literals that start a LaTeX
// command or no JSON escape at all, so "\sqrt" and "\frac" both become
// "\\sqrt" and "\\frac". Genuine escapes such as "\n" before a plain word are
// left alone.
func repairEscapes(s string) string {
	var b strings.Builder
	b.Grow(len(s) + 16)

	inString := false
	for i := 0; i < len(s); i++ {
		c := s[i]
		if !inString {
			if c == '"' {
				inString = true
			}
			b.WriteByte(c)
			continue
		}

		switch c {
		case '"':
			inString = false
			b.WriteByte(c)
		case '\\':
			if i+1 < len(s) && validEscape(s, i+1) {
				b.WriteByte(c)
				b.WriteByte(s[i+1])
				i++
				continue
			}
			b.WriteString(`\\`)
		default:
			b.WriteByte(c)
		}
	}
	return b.String()
}

// latexN lists commands starting with n, the one letter where a newline
// followed by a word is common in model output.
var latexN = map[string]bool{
	"nabla": true, "natural": true, "ncong": true, "ne": true, "nearrow": true,
	"neg": true, "neq": true, "newline": true, "nexists": true, "ngeq": true,
	"ngtr": true, "ni": true, "nleq": true, "nless": true, "nmid": true,
	"not": true, "notin": true, "nparallel": true, "nsim": true, "nsubseteq": true,
	"nsupseteq": true, "nu": true, "nwarrow": true,
}

func isLetter(c byte) bool {
	return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

// word returns the run of ASCII letters starting at i.
func word(s string, i int) string {
	j := i
	for j < len(s) && isLetter(s[j]) {
		j++
	}
	return s[i:j]
}

// validEscape reports whether the backslash before s[i] is a JSON escape to
// keep rather than the start of a LaTeX command.
func validEscape(s string, i int) bool {
	switch s[i] {
	case '"', '\\', '/':
		return true
	case 'b', 'f', 'r', 't':
		return i+1 >= len(s) || !isLetter(s[i+1])
	case 'n':
		return !latexN[word(s, i)]
	case 'u':
		if i+4 >= len(s) {
			return false
		}
		for _, h := range s[i+1 : i+5] {
			if !strings.ContainsRune("0123456789abcdefABCDEF", h) {
				return false
			}
		}
		return true
	default:
		return false
	}
}
