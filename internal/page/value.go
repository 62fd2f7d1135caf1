package page

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"
)

// Kind identifies the variant held by a Value
type Kind uint8

const (
	KindUndefined Kind = iota
	KindNull
	KindString
	KindNumber
	KindBool
	KindMap
	KindList
)

// String returns the string representation of the kind
func (k Kind) String() string {
	switch k {
	case KindUndefined:
		return "undefined"
	case KindNull:
		return "null"
	case KindString:
		return "string"
	case KindNumber:
		return "number"
	case KindBool:
		return "bool"
	case KindMap:
		return "map"
	case KindList:
		return "list"
	default:
		return "unknown"
	}
}

// Value is a JSON-like dynamic value used for component props and styles.
// The zero Value is undefined, which is distinct from an explicit null.
type Value struct {
	kind Kind
	str  string
	num  float64
	b    bool
	m    Map
	list []Value
}

// Map is a string-keyed collection of values
type Map map[string]Value

// Undefined returns the undefined value
func Undefined() Value { return Value{} }

// Null returns an explicit null value
func Null() Value { return Value{kind: KindNull} }

// String creates a string value
func String(s string) Value { return Value{kind: KindString, str: s} }

// Number creates a numeric value
func Number(n float64) Value { return Value{kind: KindNumber, num: n} }

// Bool creates a boolean value
func Bool(b bool) Value { return Value{kind: KindBool, b: b} }

// MapOf wraps a map as a value
func MapOf(m Map) Value {
	if m == nil {
		m = Map{}
	}
	return Value{kind: KindMap, m: m}
}

// List creates a list value
func List(items ...Value) Value {
	if items == nil {
		items = []Value{}
	}
	return Value{kind: KindList, list: items}
}

// Kind returns the variant of the value
func (v Value) Kind() Kind { return v.kind }

// IsUndefined reports whether the value is undefined
func (v Value) IsUndefined() bool { return v.kind == KindUndefined }

// IsNull reports whether the value is an explicit null
func (v Value) IsNull() bool { return v.kind == KindNull }

// IsNil reports whether the value is null or undefined
func (v Value) IsNil() bool { return v.kind == KindUndefined || v.kind == KindNull }

func (v Value) AsString() (string, bool) { return v.str, v.kind == KindString }
func (v Value) AsNumber() (float64, bool) { return v.num, v.kind == KindNumber }
func (v Value) AsBool() (bool, bool)      { return v.b, v.kind == KindBool }
func (v Value) AsMap() (Map, bool)        { return v.m, v.kind == KindMap }
func (v Value) AsList() ([]Value, bool)   { return v.list, v.kind == KindList }

// StringOr returns the string held by v, or def when v is not a string
func (v Value) StringOr(def string) string {
	if v.kind == KindString {
		return v.str
	}
	return def
}

// Truthy follows the usual dynamic-language truthiness rules
func (v Value) Truthy() bool {
	switch v.kind {
	case KindString:
		return v.str != ""
	case KindNumber:
		return v.num != 0
	case KindBool:
		return v.b
	case KindMap, KindList:
		return true
	default:
		return false
	}
}

// Text returns the display form of the value used for string interpolation.
// Null and undefined render as the empty string.
func (v Value) Text() string {
	switch v.kind {
	case KindString:
		return v.str
	case KindNumber:
		return strconv.FormatFloat(v.num, 'f', -1, 64)
	case KindBool:
		return strconv.FormatBool(v.b)
	case KindList:
		parts := make([]string, len(v.list))
		for i, item := range v.list {
			parts[i] = item.Text()
		}
		return strings.Join(parts, ",")
	case KindMap:
		data, err := json.Marshal(v.m)
		if err != nil {
			return ""
		}
		return string(data)
	default:
		return ""
	}
}

// Clone returns a deep copy of the value
func (v Value) Clone() Value {
	switch v.kind {
	case KindMap:
		return MapOf(v.m.Clone())
	case KindList:
		items := make([]Value, len(v.list))
		for i, item := range v.list {
			items[i] = item.Clone()
		}
		return List(items...)
	default:
		return v
	}
}

// Equal reports deep equality of two values
func (v Value) Equal(other Value) bool {
	if v.kind != other.kind {
		return false
	}
	switch v.kind {
	case KindString:
		return v.str == other.str
	case KindNumber:
		return v.num == other.num
	case KindBool:
		return v.b == other.b
	case KindMap:
		return v.m.Equal(other.m)
	case KindList:
		if len(v.list) != len(other.list) {
			return false
		}
		for i := range v.list {
			if !v.list[i].Equal(other.list[i]) {
				return false
			}
		}
		return true
	default:
		return true
	}
}

// Any converts the value into plain Go values (map[string]any, []any, string,
// float64, bool or nil).
func (v Value) Any() any {
	switch v.kind {
	case KindString:
		return v.str
	case KindNumber:
		return v.num
	case KindBool:
		return v.b
	case KindMap:
		return v.m.Any()
	case KindList:
		out := make([]any, len(v.list))
		for i, item := range v.list {
			out[i] = item.Any()
		}
		return out
	default:
		return nil
	}
}

// FromAny converts plain Go values, including values scanned from a database
// row, into a Value.
func FromAny(x any) Value {
	switch t := x.(type) {
	case nil:
		return Null()
	case Value:
		return t
	case Map:
		return MapOf(t)
	case string:
		return String(t)
	case []byte:
		return String(string(t))
	case bool:
		return Bool(t)
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
	case uint32:
		return Number(float64(t))
	case uint64:
		return Number(float64(t))
	case json.Number:
		f, err := t.Float64()
		if err != nil {
			return String(t.String())
		}
		return Number(f)
	case time.Time:
		return String(t.UTC().Format(time.RFC3339Nano))
	case map[string]any:
		m := make(Map, len(t))
		for k, item := range t {
			m[k] = FromAny(item)
		}
		return MapOf(m)
	case []any:
		items := make([]Value, len(t))
		for i, item := range t {
			items[i] = FromAny(item)
		}
		return List(items...)
	case []string:
		items := make([]Value, len(t))
		for i, item := range t {
			items[i] = String(item)
		}
		return List(items...)
	case fmt.Stringer:
		return String(t.String())
	default:
		return String(fmt.Sprint(t))
	}
}

// MarshalJSON encodes the value; undefined encodes as null
func (v Value) MarshalJSON() ([]byte, error) {
	switch v.kind {
	case KindMap:
		return json.Marshal(v.m)
	case KindList:
		return json.Marshal(v.list)
	default:
		return json.Marshal(v.Any())
	}
}

// UnmarshalJSON decodes any JSON document into the value
func (v *Value) UnmarshalJSON(data []byte) error {
	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*v = FromAny(raw)
	return nil
}

// Get returns the value stored under key, or undefined
func (m Map) Get(key string) Value {
	if m == nil {
		return Value{}
	}
	return m[key]
}

// Clone returns a deep copy of the map
func (m Map) Clone() Map {
	if m == nil {
		return nil
	}
	out := make(Map, len(m))
	for k, v := range m {
		out[k] = v.Clone()
	}
	return out
}

// Merge returns a new map holding m overlaid by patch (shallow)
func (m Map) Merge(patch Map) Map {
	out := make(Map, len(m)+len(patch))
	for k, v := range m {
		out[k] = v
	}
	for k, v := range patch {
		out[k] = v
	}
	return out
}

// Equal reports deep equality of two maps
func (m Map) Equal(other Map) bool {
	if len(m) != len(other) {
		return false
	}
	for k, v := range m {
		ov, ok := other[k]
		if !ok || !v.Equal(ov) {
			return false
		}
	}
	return true
}

// Keys returns the keys of the map in sorted order
func (m Map) Keys() []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Any converts the map into a map[string]any, dropping undefined entries
func (m Map) Any() map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		if v.IsUndefined() {
			continue
		}
		out[k] = v.Any()
	}
	return out
}

// MarshalJSON encodes the map, omitting undefined entries
func (m Map) MarshalJSON() ([]byte, error) {
	if m == nil {
		return []byte("{}"), nil
	}
	out := make(map[string]Value, len(m))
	for k, v := range m {
		if v.IsUndefined() {
			continue
		}
		out[k] = v
	}
	return json.Marshal(out)
}
