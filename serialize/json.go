package serialize

import (
	"github.com/goccy/go-json"

	"github.com/lixenwraith/tasrun/errs"
)

// ToJSON encodes a Table or Array Value as JSON, for the shared buffer's
// from_table view (spec.md §4.2).
func ToJSON(v Value) ([]byte, error) {
	any_, err := ToAny(v)
	if err != nil {
		return nil, err
	}
	b, err := json.Marshal(any_)
	if err != nil {
		return nil, errs.Wrap(errs.SerializationRejected, "ToJSON", err)
	}
	return b, nil
}

// FromJSON decodes a JSON document into a Value. Objects become KindTable,
// arrays become KindArray — the array/sequential-integer-key distinction
// required when reading a Lua table back (spec.md §4.2 "arrays are
// detected as tables with sequential integer keys starting at 1") is
// re-established by ToLua when it converts the resulting Value into a Lua
// table, not here.
func FromJSON(data []byte) (Value, error) {
	var decoded any
	if err := json.Unmarshal(data, &decoded); err != nil {
		return Value{}, errs.Wrap(errs.SerializationRejected, "FromJSON", err)
	}
	return fromAnyJSON(decoded)
}

// fromAnyJSON is like FromAny but additionally treats []any produced by
// the JSON decoder (which always yields float64 for numbers) consistently.
func fromAnyJSON(v any) (Value, error) {
	switch t := v.(type) {
	case []any:
		out := make([]Value, len(t))
		for i, e := range t {
			cv, err := fromAnyJSON(e)
			if err != nil {
				return Value{}, err
			}
			out[i] = cv
		}
		return Arr(out), nil
	case map[string]any:
		out := make(map[string]Value, len(t))
		for k, e := range t {
			cv, err := fromAnyJSON(e)
			if err != nil {
				return Value{}, err
			}
			out[k] = cv
		}
		return Tbl(out), nil
	default:
		return FromAny(v)
	}
}
