package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Profile is a provider profile mapping as returned by the provider API.
type Profile map[string]any

// Lookup walks nested maps along path.
func (p Profile) Lookup(path ...string) (any, bool) {
	var cur any = map[string]any(p)
	for _, key := range path {
		var m map[string]any
		switch v := cur.(type) {
		case map[string]any:
			m = v
		case Profile:
			m = v
		default:
			return nil, false
		}
		next, ok := m[key]
		if !ok || next == nil {
			return nil, false
		}
		cur = next
	}
	return cur, true
}

// String returns the value at path as a string, or "" when missing or not scalar.
func (p Profile) String(path ...string) string {
	v, ok := p.Lookup(path...)
	if !ok {
		return ""
	}
	return scalarString(v)
}

// Bool returns the value at path as a boolean.
func (p Profile) Bool(path ...string) bool {
	v, ok := p.Lookup(path...)
	if !ok {
		return false
	}
	switch b := v.(type) {
	case bool:
		return b
	case string:
		parsed, _ := strconv.ParseBool(b)
		return parsed
	default:
		return false
	}
}

// SubjectID returns the subject identifier stored under field.
func (p Profile) SubjectID(field string) (string, bool) {
	s := strings.TrimSpace(p.String(field))
	return s, s != ""
}

func scalarString(v any) string {
	switch s := v.(type) {
	case string:
		return s
	case json.Number:
		return s.String()
	case float64:
		return strconv.FormatFloat(s, 'f', -1, 64)
	case int:
		return strconv.Itoa(s)
	case int64:
		return strconv.FormatInt(s, 10)
	case bool:
		return strconv.FormatBool(s)
	case fmt.Stringer:
		return s.String()
	default:
		return ""
	}
}

// DecodeProfile decodes a JSON object keeping numbers exact.
func DecodeProfile(data []byte) (Profile, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var p Profile
	if err := dec.Decode(&p); err != nil {
		return nil, err
	}
	return p, nil
}
