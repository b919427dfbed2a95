package synthesis

import (
	"bytes"
	"encoding/json"
	"errors"
	"regexp"
	"strings"
)

var (
	fenceRe         = regexp.MustCompile("(?s)^\\s*```[a-zA-Z]*\\s*\n?(.*?)\\s*```\\s*$")
	trailingCommaRe = regexp.MustCompile(`,\s*([}\]])`)
	newlineRe       = regexp.MustCompile(`\r?\n`)
)

var errNoObject = errors.New("no JSON object found in response")

// decodeObject returns raw when it holds a single JSON object. Failing that
// it tries the repaired text, and then the first balanced object in it.
func decodeObject(raw []byte) (json.RawMessage, error) {
	if obj, err := asObject(raw); err == nil {
		return obj, nil
	}

	repaired := repairJSON(string(raw))
	if obj, err := asObject([]byte(repaired)); err == nil {
		return obj, nil
	}

	candidate, ok := firstObject(repaired)
	if !ok {
		return nil, errNoObject
	}
	return asObject([]byte(candidate))
}

func asObject(b []byte) (json.RawMessage, error) {
	b = bytes.TrimSpace(b)
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(b, &obj); err != nil {
		return nil, err
	}
	if obj == nil {
		return nil, errNoObject
	}
	return json.RawMessage(b), nil
}

// repairJSON strips a markdown fence, drops trailing commas and collapses
// line breaks.
func repairJSON(s string) string {
	s = strings.TrimSpace(s)
	if m := fenceRe.FindStringSubmatch(s); m != nil {
		s = m[1]
	}
	s = trailingCommaRe.ReplaceAllString(s, "$1")
	s = newlineRe.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}

// firstObject returns the first balanced {...} in s. Braces inside strings
// are ignored.
func firstObject(s string) (string, bool) {
	start := strings.IndexByte(s, '{')
	if start < 0 {
		return "", false
	}
	depth := 0
	inString, escaped := false, false
	for i := start; i < len(s); i++ {
		c := s[i]
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
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return s[start : i+1], true
			}
		}
	}
	return "", false
}
