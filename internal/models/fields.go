package models

import (
	"bytes"
	"encoding/json"
)

// Fields is an insertion-ordered mapping of field name to Value.
type Fields struct {
	keys []string
	vals map[string]Value
}

// NewFields creates an empty field set.
func NewFields() *Fields {
	return &Fields{vals: make(map[string]Value)}
}

// Len returns the number of fields.
func (f *Fields) Len() int {
	if f == nil {
		return 0
	}
	return len(f.keys)
}

// Keys returns field names in insertion order.
func (f *Fields) Keys() []string {
	if f == nil {
		return nil
	}
	out := make([]string, len(f.keys))
	copy(out, f.keys)
	return out
}

// Get returns the value stored under key.
func (f *Fields) Get(key string) (Value, bool) {
	if f == nil {
		return Value{}, false
	}
	v, ok := f.vals[key]
	return v, ok
}

// Has reports whether key is present, null or not.
func (f *Fields) Has(key string) bool {
	_, ok := f.Get(key)
	return ok
}

// Set stores v under key. An existing key keeps its position.
func (f *Fields) Set(key string, v Value) {
	if _, ok := f.vals[key]; !ok {
		f.keys = append(f.keys, key)
	}
	f.vals[key] = v
}

// SetString is shorthand for Set(key, String(s)).
func (f *Fields) SetString(key, s string) { f.Set(key, String(s)) }

// Delete removes key if present.
func (f *Fields) Delete(key string) {
	if _, ok := f.vals[key]; !ok {
		return
	}
	delete(f.vals, key)
	for i, k := range f.keys {
		if k == key {
			f.keys = append(f.keys[:i], f.keys[i+1:]...)
			break
		}
	}
}

// Merge copies every field of other into f; other wins on collision.
func (f *Fields) Merge(other *Fields) {
	if other == nil {
		return
	}
	for _, k := range other.keys {
		f.Set(k, other.vals[k])
	}
}

// Clone returns a shallow copy with its own key order.
func (f *Fields) Clone() *Fields {
	out := NewFields()
	if f == nil {
		return out
	}
	out.keys = append(out.keys, f.keys...)
	for k, v := range f.vals {
		out.vals[k] = v
	}
	return out
}

// Equal reports whether both sets hold equal values for the same keys.
func (f *Fields) Equal(o *Fields) bool {
	if f.Len() != o.Len() {
		return false
	}
	for _, k := range f.Keys() {
		ov, ok := o.Get(k)
		if !ok {
			return false
		}
		if v, _ := f.Get(k); !v.Equal(ov) {
			return false
		}
	}
	return true
}

// ToMap flattens the set into a plain map.
func (f *Fields) ToMap() map[string]interface{} {
	out := make(map[string]interface{}, f.Len())
	if f == nil {
		return out
	}
	for _, k := range f.keys {
		out[k] = f.vals[k].Interface()
	}
	return out
}

// MarshalJSON writes the fields as an object in insertion order.
func (f *Fields) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	if f != nil {
		for i, k := range f.keys {
			if i > 0 {
				buf.WriteByte(',')
			}
			kb, err := json.Marshal(k)
			if err != nil {
				return nil, err
			}
			buf.Write(kb)
			buf.WriteByte(':')
			vb, err := json.Marshal(f.vals[k])
			if err != nil {
				return nil, err
			}
			buf.Write(vb)
		}
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}
