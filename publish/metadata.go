package publish

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Layouts used for time values in front matter.
const (
	TimeLayout = "2006-01-02 15:04:05"
	DateLayout = "2006-01-02"
)

// Field is one front-matter entry. Value is a string, a []string, a
// time.Time, another scalar (bool, number) or nil.
type Field struct {
	Key   string
	Value any
}

// Metadata is an ordered front-matter mapping. Keys render in slice order.
type Metadata []Field

// Get returns the value stored under key.
func (m Metadata) Get(key string) (any, bool) {
	for _, f := range m {
		if f.Key == key {
			return f.Value, true
		}
	}
	return nil, false
}

// String returns the value under key when it is a string.
func (m Metadata) String(key string) string {
	v, _ := m.Get(key)
	s, _ := v.(string)
	return s
}

// Set replaces the value under key or appends a new field.
func (m *Metadata) Set(key string, value any) {
	for i := range *m {
		if (*m)[i].Key == key {
			(*m)[i].Value = value
			return
		}
	}
	*m = append(*m, Field{Key: key, Value: value})
}

// Title returns the "title" string, trimmed.
func (m Metadata) Title() string {
	return strings.TrimSpace(m.String("title"))
}

// UnmarshalJSON decodes a JSON object keeping key order. Strings that look
// like "2006-01-02 15:04:05", "2006-01-02" or RFC 3339 become time.Time;
// arrays become []string.
func (m *Metadata) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if tok == nil {
		*m = nil
		return nil
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return fmt.Errorf("metadata must be a JSON object")
	}

	out := Metadata{}
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		key, ok := tok.(string)
		if !ok {
			return fmt.Errorf("metadata key %v is not a string", tok)
		}
		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return fmt.Errorf("metadata %q: %w", key, err)
		}
		value, err := decodeJSONValue(raw)
		if err != nil {
			return fmt.Errorf("metadata %q: %w", key, err)
		}
		out.Set(key, value)
	}
	if _, err := dec.Token(); err != nil {
		return err
	}
	*m = out
	return nil
}

func decodeJSONValue(raw json.RawMessage) (any, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	switch x := v.(type) {
	case nil:
		return nil, nil
	case string:
		if t, ok := ParseTime(x); ok {
			return t, nil
		}
		return x, nil
	case []any:
		items := make([]string, 0, len(x))
		for _, item := range x {
			if item == nil {
				continue
			}
			items = append(items, fmt.Sprint(item))
		}
		return items, nil
	case json.Number:
		return x.String(), nil
	case bool:
		return x, nil
	default:
		return nil, fmt.Errorf("nested objects are not supported")
	}
}

// ParseTime accepts the front-matter layouts and RFC 3339.
func ParseTime(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	for _, layout := range []string{TimeLayout, DateLayout, time.RFC3339} {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// MarshalJSON encodes the fields as an ordered JSON object.
func (m Metadata) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, f := range m {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(f.Key)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')

		value := f.Value
		if t, ok := value.(time.Time); ok {
			value = formatTime(t)
		}
		raw, err := json.Marshal(value)
		if err != nil {
			return nil, err
		}
		buf.Write(raw)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// formatTime renders UTC values in the front-matter layouts. Any other
// location keeps its offset through RFC 3339.
func formatTime(t time.Time) string {
	if t.Location() != time.UTC {
		return t.Format(time.RFC3339)
	}
	if t.Hour() == 0 && t.Minute() == 0 && t.Second() == 0 && t.Nanosecond() == 0 {
		return t.Format(DateLayout)
	}
	return t.Format(TimeLayout)
}
