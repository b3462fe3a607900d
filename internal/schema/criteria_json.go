package schema

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// MarshalJSON writes the criteria as a JSON object in key order.
func (c Criteria) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range c.Keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		kb, err := json.Marshal(k)
		if err != nil {
			return nil, err
		}
		vb, err := json.Marshal(c.Rubrics[k])
		if err != nil {
			return nil, err
		}
		buf.Write(kb)
		buf.WriteByte(':')
		buf.Write(vb)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON reads a JSON object of string values, keeping the order the
// keys appear in. null yields empty criteria.
func (c *Criteria) UnmarshalJSON(b []byte) error {
	*c = Criteria{}
	if bytes.Equal(bytes.TrimSpace(b), []byte("null")) {
		return nil
	}
	dec := json.NewDecoder(bytes.NewReader(b))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return fmt.Errorf("schema: criteria must be a JSON object")
	}
	for dec.More() {
		kt, err := dec.Token()
		if err != nil {
			return err
		}
		key, _ := kt.(string)
		var rubric string
		if err := dec.Decode(&rubric); err != nil {
			return fmt.Errorf("schema: criteria %q: %w", key, err)
		}
		c.Set(key, rubric)
	}
	_, err = dec.Token()
	return err
}
