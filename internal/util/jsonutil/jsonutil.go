package jsonutil

import (
	"bytes"
	"encoding/json"
	"errors"
)

var ErrNoObject = errors.New("jsonutil: no JSON object found")

var fence = []byte("```")

// DecodeObject reads a model payload that should be a single JSON object.
// It accepts the object itself, the object encoded once more as a JSON
// string, and the object wrapped in a markdown fence or surrounding prose.
func DecodeObject(raw []byte) (map[string]any, error) {
	var v any
	if err := json.Unmarshal(raw, &v); err == nil {
		switch x := v.(type) {
		case map[string]any:
			return x, nil
		case string:
			return DecodeObject([]byte(x))
		}
	}
	obj, err := ExtractObject(raw)
	if err != nil {
		return nil, err
	}
	var m map[string]any
	if err := json.Unmarshal(obj, &m); err != nil {
		return nil, err
	}
	return m, nil
}

// ExtractObject returns the outermost {...} block of raw.
func ExtractObject(raw []byte) ([]byte, error) {
	s := bytes.TrimSpace(raw)
	if bytes.HasPrefix(s, fence) {
		s = bytes.TrimPrefix(s[len(fence):], []byte("json"))
		s = bytes.TrimSuffix(bytes.TrimSpace(s), fence)
	}
	start := bytes.IndexByte(s, '{')
	end := bytes.LastIndexByte(s, '}')
	if start < 0 || end < start {
		return nil, ErrNoObject
	}
	return s[start : end+1], nil
}

// MarshalNoEscape encodes v without HTML escaping so prompts keep <, > and &.
func MarshalNoEscape(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}
