package searchindex

import (
	"fmt"
	"sort"
)

// Kind identifies the type held by a Value.
type Kind int

const (
	KindNull Kind = iota
	KindBool
	KindInt
	KindString
	KindArray
	KindObject
)

func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindBool:
		return "bool"
	case KindInt:
		return "int"
	case KindString:
		return "string"
	case KindArray:
		return "array"
	case KindObject:
		return "object"
	default:
		return "unknown"
	}
}

// Value is a parsed JavaScript literal. Fields the index model does not know
// about are kept as Values so they survive a decode/encode cycle.
type Value struct {
	Kind   Kind
	Bool   bool
	Int    int64
	Str    string
	Array  []Value
	Object map[string]Value
}

func (v Value) asString(field string) (string, error) {
	if v.Kind != KindString {
		return "", fieldError(field, "expected string, got %s", v.Kind)
	}
	return v.Str, nil
}

func (v Value) asInt(field string) (int, error) {
	if v.Kind != KindInt {
		return 0, fieldError(field, "expected integer, got %s", v.Kind)
	}
	return int(v.Int), nil
}

func (v Value) asStrings(field string) ([]string, error) {
	if v.Kind != KindArray {
		return nil, fieldError(field, "expected array, got %s", v.Kind)
	}
	out := make([]string, 0, len(v.Array))
	for i, item := range v.Array {
		s, err := item.asString(fmt.Sprintf("%s[%d]", field, i))
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, nil
}

func (v Value) asObject(field string) (map[string]Value, error) {
	if v.Kind != KindObject {
		return nil, fieldError(field, "expected object, got %s", v.Kind)
	}
	return v.Object, nil
}

// sortedKeys returns the keys of m in byte order.
func sortedKeys[T any](m map[string]T) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
