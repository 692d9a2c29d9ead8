package schema

import (
	"bytes"
	"encoding/json"
	"math"
	"strings"
)

// Parse decodes raw JSON text into an object and validates it.
// Markdown code fences around the JSON are tolerated since some models add
// them even when a strict format is requested.
func (s *Schema) Parse(raw string) (map[string]interface{}, error) {
	text := stripFence(raw)
	dec := json.NewDecoder(bytes.NewReader([]byte(text)))
	dec.UseNumber()

	var data map[string]interface{}
	if err := dec.Decode(&data); err != nil {
		verr := &ValidationError{Schema: s.name(), Raw: raw}
		verr.add("", "invalid JSON: %v", err)
		return nil, verr
	}
	if data == nil {
		verr := &ValidationError{Schema: s.name(), Raw: raw}
		verr.add("", "expected a JSON object")
		return nil, verr
	}
	if err := s.Validate(data); err != nil {
		err.(*ValidationError).Raw = raw
		return nil, err
	}
	return data, nil
}

// Decode validates raw JSON and unmarshals it into out.
func (s *Schema) Decode(raw string, out interface{}) error {
	if _, err := s.Parse(raw); err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal([]byte(stripFence(raw)), out); err != nil {
		verr := &ValidationError{Schema: s.name(), Raw: raw}
		verr.add("", "decode: %v", err)
		return verr
	}
	return nil
}

// Validate checks an already-decoded object. All issues are collected.
func (s *Schema) Validate(data map[string]interface{}) error {
	if s == nil {
		return nil
	}
	verr := &ValidationError{Schema: s.name()}

	for _, f := range s.Fields {
		v, ok := data[f.Name]
		if !ok {
			if f.Required {
				verr.add(f.Name, "required")
			}
			continue
		}
		if v == nil && !f.Required {
			continue
		}
		if !matches(v, f.Type) {
			verr.add(f.Name, "expected %s, got %s", f.Type, kindOf(v))
			continue
		}
		if f.Type == Array && f.Items != "" {
			for _, item := range v.([]interface{}) {
				if !matches(item, f.Items) {
					verr.add(f.Name, "expected items of type %s, got %s", f.Items, kindOf(item))
					break
				}
			}
		}
		if len(f.Enum) > 0 {
			if str, _ := v.(string); !contains(f.Enum, str) {
				verr.add(f.Name, "value %q not in %v", str, f.Enum)
			}
		}
	}

	if s.Strict {
		for key := range data {
			if _, ok := s.Field(key); !ok {
				verr.add(key, "not declared")
			}
		}
	}

	if len(verr.Issues) > 0 {
		return verr
	}
	return nil
}

func (s *Schema) name() string {
	if s == nil {
		return ""
	}
	return s.Name
}

func matches(v interface{}, t Type) bool {
	switch t {
	case String:
		_, ok := v.(string)
		return ok
	case Number:
		switch n := v.(type) {
		case float64, float32, int, int64:
			return true
		case json.Number:
			_, err := n.Float64()
			return err == nil
		}
	case Integer:
		switch n := v.(type) {
		case int, int64:
			return true
		case float64:
			return math.Trunc(n) == n
		case json.Number:
			_, err := n.Int64()
			return err == nil
		}
	case Boolean:
		_, ok := v.(bool)
		return ok
	case Array:
		_, ok := v.([]interface{})
		return ok
	case Object:
		_, ok := v.(map[string]interface{})
		return ok
	case "":
		return true
	}
	return false
}

func kindOf(v interface{}) string {
	switch v.(type) {
	case nil:
		return "null"
	case string:
		return "string"
	case bool:
		return "boolean"
	case json.Number, float64, float32, int, int64:
		return "number"
	case []interface{}:
		return "array"
	case map[string]interface{}:
		return "object"
	}
	return "unknown"
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func stripFence(raw string) string {
	text := strings.TrimSpace(raw)
	if !strings.HasPrefix(text, "```") {
		return text
	}
	text = strings.TrimPrefix(text, "```")
	if nl := strings.IndexByte(text, '\n'); nl != -1 {
		text = text[nl+1:]
	}
	text = strings.TrimSuffix(strings.TrimSpace(text), "```")
	return strings.TrimSpace(text)
}
