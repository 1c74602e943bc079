// Package serialize implements the SerializedValue algebra that crosses
// context boundaries: messages on the bus, shared-data entries, and
// shared-buffer table views. Every script value that wants to leave its
// owning VM must pass through Value; functions, coroutines and opaque
// host objects never do.
package serialize

import (
	"fmt"
	"sort"

	"github.com/lixenwraith/tasrun/errs"
)

// Kind discriminates the sum type.
type Kind uint8

const (
	KindNil Kind = iota
	KindBool
	KindNumber
	KindString
	KindArray
	KindTable
	KindSharedBuffer
)

// BufferHandle identifies a shared buffer without this package depending
// on the buffer package (which depends on this one for its table view).
type BufferHandle uint64

// Value is the restricted algebra allowed to cross context boundaries.
// Only one of the typed fields is meaningful, selected by Kind.
type Value struct {
	Kind   Kind
	Bool   bool
	Number float64
	Str    string
	Array  []Value
	Table  map[string]Value
	Buffer BufferHandle
}

func Nil() Value                 { return Value{Kind: KindNil} }
func Boolean(b bool) Value       { return Value{Kind: KindBool, Bool: b} }
func Num(n float64) Value        { return Value{Kind: KindNumber, Number: n} }
func Str(s string) Value         { return Value{Kind: KindString, Str: s} }
func Arr(vs []Value) Value       { return Value{Kind: KindArray, Array: vs} }
func Tbl(m map[string]Value) Value { return Value{Kind: KindTable, Table: m} }
func BufRef(h BufferHandle) Value  { return Value{Kind: KindSharedBuffer, Buffer: h} }

func (v Value) IsNil() bool { return v.Kind == KindNil }

// Equal performs a deep structural comparison, used by round-trip tests.
func Equal(a, b Value) bool {
	if a.Kind != b.Kind {
		return false
	}
	switch a.Kind {
	case KindNil:
		return true
	case KindBool:
		return a.Bool == b.Bool
	case KindNumber:
		return a.Number == b.Number
	case KindString:
		return a.Str == b.Str
	case KindSharedBuffer:
		return a.Buffer == b.Buffer
	case KindArray:
		if len(a.Array) != len(b.Array) {
			return false
		}
		for i := range a.Array {
			if !Equal(a.Array[i], b.Array[i]) {
				return false
			}
		}
		return true
	case KindTable:
		if len(a.Table) != len(b.Table) {
			return false
		}
		for k, av := range a.Table {
			bv, ok := b.Table[k]
			if !ok || !Equal(av, bv) {
				return false
			}
		}
		return true
	}
	return false
}

// DeepCopy returns an independent copy so that crossing a boundary never
// lets two contexts alias the same backing map/slice (see spec.md §9
// "Dynamic values across contexts").
func DeepCopy(v Value) Value {
	switch v.Kind {
	case KindArray:
		out := make([]Value, len(v.Array))
		for i, e := range v.Array {
			out[i] = DeepCopy(e)
		}
		return Value{Kind: KindArray, Array: out}
	case KindTable:
		out := make(map[string]Value, len(v.Table))
		for k, e := range v.Table {
			out[k] = DeepCopy(e)
		}
		return Value{Kind: KindTable, Table: out}
	default:
		return v
	}
}

// ErrRejected is returned when a Go value cannot be represented in the
// SerializedValue algebra: functions, channels, mixed-key maps, or
// negative/non-integer array indices.
var ErrRejected = fmt.Errorf("value not representable as SerializedValue")

// FromAny converts a generic Go value (as produced by a JSON decode, e.g.)
// into a Value. Maps decode to KindTable and []any decodes to KindArray;
// int, int32 and int64 become numbers. Mixed int/string keyed maps are impossible to express
// from a Go map[string]any, so that rejection only matters for the Lua
// conversion path in the script package.
func FromAny(v any) (Value, error) {
	switch t := v.(type) {
	case nil:
		return Nil(), nil
	case bool:
		return Boolean(t), nil
	case float64:
		return Num(t), nil
	case int:
		return Num(float64(t)), nil
	case int32:
		return Num(float64(t)), nil
	case int64:
		return Num(float64(t)), nil
	case string:
		return Str(t), nil
	case []any:
		out := make([]Value, len(t))
		for i, e := range t {
			cv, err := FromAny(e)
			if err != nil {
				return Value{}, err
			}
			out[i] = cv
		}
		return Arr(out), nil
	case map[string]any:
		out := make(map[string]Value, len(t))
		for k, e := range t {
			cv, err := FromAny(e)
			if err != nil {
				return Value{}, err
			}
			out[k] = cv
		}
		return Tbl(out), nil
	default:
		return Value{}, errs.Wrap(errs.SerializationRejected, "FromAny", fmt.Errorf("%w: %T", ErrRejected, v))
	}
}

// ToAny converts a Value back into a generic Go value suitable for JSON
// encoding. SharedBufferRef has no JSON representation and is rejected;
// from_table/to_table never carries buffer refs through JSON (spec.md
// §4.2 scopes JSON conversion to tables of plain data).
func ToAny(v Value) (any, error) {
	switch v.Kind {
	case KindNil:
		return nil, nil
	case KindBool:
		return v.Bool, nil
	case KindNumber:
		return v.Number, nil
	case KindString:
		return v.Str, nil
	case KindArray:
		out := make([]any, len(v.Array))
		for i, e := range v.Array {
			cv, err := ToAny(e)
			if err != nil {
				return nil, err
			}
			out[i] = cv
		}
		return out, nil
	case KindTable:
		out := make(map[string]any, len(v.Table))
		for k, e := range v.Table {
			cv, err := ToAny(e)
			if err != nil {
				return nil, err
			}
			out[k] = cv
		}
		return out, nil
	case KindSharedBuffer:
		return nil, errs.New(errs.SerializationRejected, "ToAny", "shared buffer refs have no JSON representation")
	default:
		return nil, errs.New(errs.SerializationRejected, "ToAny", "unknown kind")
	}
}

// SortedTableKeys returns a Table's keys in sorted order, for callers that
// need deterministic iteration.
func SortedTableKeys(v Value) []string {
	keys := make([]string, 0, len(v.Table))
	for k := range v.Table {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
