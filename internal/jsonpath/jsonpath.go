// Package jsonpath pulls the transcript out of arbitrary speech API
// responses using paths like "results[0].alternatives[0].transcript".
package jsonpath

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/tidwall/gjson"
)

// ExtractTextFromResponse extracts text from JSON response using provided path,
// falling back to a top-level "text" field and then to the first non-empty
// top-level string.
func ExtractTextFromResponse(body []byte, textPath string) string {
	if !gjson.ValidBytes(body) {
		return ""
	}
	if textPath != "" {
		if v, ok := Lookup(body, textPath); ok {
			return v
		}
	}
	root := gjson.ParseBytes(body)
	if !root.IsObject() {
		return ""
	}
	if v := root.Get("text"); v.Exists() {
		if s, ok := scalar(v); ok {
			return s
		}
	}
	var out string
	root.ForEach(func(_, val gjson.Result) bool {
		if val.Type == gjson.String && val.Str != "" {
			out = val.Str
			return false
		}
		return true
	})
	return out
}

// Lookup resolves path against body and returns a scalar value as a string.
func Lookup(body []byte, path string) (string, bool) {
	gp, err := ToGJSON(path)
	if err != nil {
		return "", false
	}
	return scalar(gjson.GetBytes(body, gp))
}

func scalar(v gjson.Result) (string, bool) {
	switch v.Type {
	case gjson.String:
		return v.Str, true
	case gjson.Number:
		if v.Num == float64(int64(v.Num)) {
			return strconv.FormatInt(int64(v.Num), 10), true
		}
		return strconv.FormatFloat(v.Num, 'f', -1, 64), true
	case gjson.True, gjson.False:
		return strconv.FormatBool(v.Bool()), true
	}
	return "", false
}

// ToGJSON converts "data.items[1].value" into gjson syntax "data.items.1.value".
// Keys containing gjson metacharacters are escaped.
func ToGJSON(path string) (string, error) {
	if path == "" {
		return "", fmt.Errorf("empty path")
	}
	var parts []string
	for _, tok := range strings.Split(path, ".") {
		key, idxs, err := ParseKeyAndIndexes(tok)
		if err != nil {
			return "", err
		}
		if key != "" {
			parts = append(parts, escape(key))
		}
		for _, i := range idxs {
			parts = append(parts, strconv.Itoa(i))
		}
	}
	return strings.Join(parts, "."), nil
}

func escape(key string) string {
	var b strings.Builder
	for _, r := range key {
		switch r {
		case '*', '?', '|', '#', '@', '\\', '!', '=', '<', '>', '%':
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}

// ParseKeyAndIndexes parses a token like "foo[0][1]" or "[0]" or "bar" into base key and indexes.
func ParseKeyAndIndexes(token string) (string, []int, error) {
	if token == "" {
		return "", nil, fmt.Errorf("empty token")
	}
	br := strings.Index(token, "[")
	if br == -1 {
		return token, nil, nil
	}
	key := token[:br]
	rest := token[br:]
	var idxs []int
	for len(rest) > 0 {
		if !strings.HasPrefix(rest, "[") {
			return "", nil, fmt.Errorf("invalid index syntax in %s", token)
		}
		closePos := strings.Index(rest, "]")
		if closePos == -1 {
			return "", nil, fmt.Errorf("missing closing ] in %s", token)
		}
		n, err := strconv.Atoi(rest[1:closePos])
		if err != nil || n < 0 {
			return "", nil, fmt.Errorf("invalid index %q in %s", rest[1:closePos], token)
		}
		idxs = append(idxs, n)
		rest = rest[closePos+1:]
	}
	return key, idxs, nil
}
