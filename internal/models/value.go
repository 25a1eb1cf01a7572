package models

import (
	"encoding/json"
	"math"
	"strconv"
	"time"
)

// Kind tags the variant held by a Value.
type Kind uint8

const (
	KindNull Kind = iota
	KindString
	KindNumber
	KindTime
	KindMap
	KindList
)

func (k Kind) String() string {
	switch k {
	case KindString:
		return "string"
	case KindNumber:
		return "number"
	case KindTime:
		return "time"
	case KindMap:
		return "map"
	case KindList:
		return "list"
	default:
		return "null"
	}
}

// Value is a single source field value. The zero Value is null.
type Value struct {
	kind Kind
	str  string
	num  float64
	ts   time.Time
	m    *Fields
	list []Value
}

// Null returns the explicit null value.
func Null() Value { return Value{} }

// String wraps a string.
func String(s string) Value { return Value{kind: KindString, str: s} }

// Number wraps a float. NaN and infinities collapse to null.
func Number(f float64) Value {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return Null()
	}
	return Value{kind: KindNumber, num: f}
}

// Time wraps a parsed date.
func Time(t time.Time) Value { return Value{kind: KindTime, ts: t} }

// Map wraps a nested field set. A nil map is null.
func Map(f *Fields) Value {
	if f == nil {
		return Null()
	}
	return Value{kind: KindMap, m: f}
}

// List wraps a sequence of values.
func List(items ...Value) Value {
	return Value{kind: KindList, list: items}
}

// StringList is shorthand for a list of string values.
func StringList(items []string) Value {
	vals := make([]Value, len(items))
	for i, s := range items {
		vals[i] = String(s)
	}
	return List(vals...)
}

func (v Value) Kind() Kind   { return v.kind }
func (v Value) IsNull() bool { return v.kind == KindNull }

// Str returns the string payload when v holds a string.
func (v Value) Str() (string, bool) { return v.str, v.kind == KindString }

// Num returns the numeric payload when v holds a number.
func (v Value) Num() (float64, bool) { return v.num, v.kind == KindNumber }

// TimeValue returns the time payload when v holds a parsed date.
func (v Value) TimeValue() (time.Time, bool) { return v.ts, v.kind == KindTime }

// MapValue returns the nested fields when v holds a map.
func (v Value) MapValue() (*Fields, bool) { return v.m, v.kind == KindMap }

// ListValue returns the items when v holds a list.
func (v Value) ListValue() ([]Value, bool) { return v.list, v.kind == KindList }

// Text renders scalar values as text. Numbers use the shortest exact form,
// so 40.5 renders as "40.5" and 12 as "12". Null, maps and lists are "".
func (v Value) Text() string {
	switch v.kind {
	case KindString:
		return v.str
	case KindNumber:
		return strconv.FormatFloat(v.num, 'f', -1, 64)
	case KindTime:
		return v.ts.Format(time.RFC3339)
	default:
		return ""
	}
}

// Equal reports deep equality.
func (v Value) Equal(o Value) bool {
	if v.kind != o.kind {
		return false
	}
	switch v.kind {
	case KindNull:
		return true
	case KindString:
		return v.str == o.str
	case KindNumber:
		return v.num == o.num
	case KindTime:
		return v.ts.Equal(o.ts)
	case KindMap:
		return v.m.Equal(o.m)
	case KindList:
		if len(v.list) != len(o.list) {
			return false
		}
		for i := range v.list {
			if !v.list[i].Equal(o.list[i]) {
				return false
			}
		}
		return true
	}
	return false
}

// Interface converts the value into plain Go values for encoders that do not
// know about Value (msgpack, bson).
func (v Value) Interface() interface{} {
	switch v.kind {
	case KindString:
		return v.str
	case KindNumber:
		return v.num
	case KindTime:
		return v.ts
	case KindMap:
		return v.m.ToMap()
	case KindList:
		out := make([]interface{}, len(v.list))
		for i, item := range v.list {
			out[i] = item.Interface()
		}
		return out
	default:
		return nil
	}
}

// MarshalJSON implements json.Marshaler.
func (v Value) MarshalJSON() ([]byte, error) {
	switch v.kind {
	case KindMap:
		return v.m.MarshalJSON()
	case KindList:
		return json.Marshal(v.list)
	default:
		return json.Marshal(v.Interface())
	}
}

// FromInterface converts decoded JSON-like data into a Value.
func FromInterface(x interface{}) Value {
	switch t := x.(type) {
	case nil:
		return Null()
	case string:
		return String(t)
	case float64:
		return Number(t)
	case float32:
		return Number(float64(t))
	case int:
		return Number(float64(t))
	case int32:
		return Number(float64(t))
	case int64:
		return Number(float64(t))
	case bool:
		return String(strconv.FormatBool(t))
	case time.Time:
		return Time(t)
	case Value:
		return t
	case *Fields:
		return Map(t)
	case map[string]interface{}:
		f := NewFields()
		for k, item := range t {
			f.Set(k, FromInterface(item))
		}
		return Map(f)
	case []interface{}:
		items := make([]Value, len(t))
		for i, item := range t {
			items[i] = FromInterface(item)
		}
		return List(items...)
	case []string:
		return StringList(t)
	default:
		return Null()
	}
}
