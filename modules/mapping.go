package modules

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/elliotchance/orderedmap/v3"
)

// ClassKind classifies a renamed identifier.
type ClassKind string

const (
	// KindLocal identifiers were scoped, Name holds generated name.
	KindLocal ClassKind = "Local"
	// KindGlobal identifiers were exempted from scoping.
	KindGlobal ClassKind = "Global"
	// KindImport identifiers are re-exported from module in From.
	KindImport ClassKind = "Import"
)

// ClassName is one classification of an original identifier.
type ClassName struct {
	Kind ClassKind `json:"type"`
	Name string    `json:"name"`
	From string    `json:"from,omitempty"`
}

func Local(name string) ClassName {
	return ClassName{Kind: KindLocal, Name: name}
}

func Global(name string) ClassName {
	return ClassName{Kind: KindGlobal, Name: name}
}

func Import(name, from string) ClassName {
	return ClassName{Kind: KindImport, Name: name, From: from}
}

// Mapping maps original identifiers to their classifications. Keys and
// entries keep first-occurrence order.
type Mapping struct {
	entries *orderedmap.OrderedMap[string, []ClassName]
}

func NewMapping() *Mapping {
	return &Mapping{entries: orderedmap.NewOrderedMap[string, []ClassName]()}
}

// Add appends classification for original unless identical one is present.
func (m *Mapping) Add(original string, c ClassName) {
	list, _ := m.entries.Get(original)
	for _, existing := range list {
		if existing == c {
			return
		}
	}
	m.entries.Set(original, append(list, c))
}

// Get returns classifications of original identifier.
func (m *Mapping) Get(original string) []ClassName {
	list, _ := m.entries.Get(original)
	return list
}

func (m *Mapping) Len() int {
	return m.entries.Len()
}

// Keys returns original identifiers in first-occurrence order.
func (m *Mapping) Keys() []string {
	keys := make([]string, 0, m.entries.Len())
	for k := range m.entries.AllFromFront() {
		keys = append(keys, k)
	}
	return keys
}

// MarshalJSON writes mapping as JSON object preserving key order.
func (m *Mapping) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	i := 0
	for k, v := range m.entries.AllFromFront() {
		if i > 0 {
			buf.WriteByte(',')
		}
		i++
		key, err := json.Marshal(k)
		if err != nil {
			return nil, err
		}
		value, err := json.Marshal(v)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(value)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON reads mapping keeping key order of the document.
func (m *Mapping) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return fmt.Errorf("mapping must be JSON object, got %v", tok)
	}

	m.entries = orderedmap.NewOrderedMap[string, []ClassName]()
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		key, ok := tok.(string)
		if !ok {
			return fmt.Errorf("unexpected mapping key %v", tok)
		}
		var list []ClassName
		if err := dec.Decode(&list); err != nil {
			return fmt.Errorf("unable to decode mapping for %q: %w", key, err)
		}
		m.entries.Set(key, list)
	}
	_, err = dec.Token()
	return err
}
