package serialize

import (
	lua "github.com/yuin/gopher-lua"

	"github.com/lixenwraith/tasrun/errs"
)

// FromLua converts a Lua value into a Value, rejecting functions,
// userdata, coroutines and threads per spec.md §3 SerializedValue and §9
// "Dynamic values across contexts". Tables are classified as arrays when
// every key is a positive integer forming a contiguous run starting at 1
// (spec.md §4.2); any other key shape not purely string-keyed is a
// mixed-key rejection.
func FromLua(v lua.LValue) (Value, error) {
	switch t := v.(type) {
	case *lua.LNilType:
		return Nil(), nil
	case lua.LBool:
		return Boolean(bool(t)), nil
	case lua.LNumber:
		return Num(float64(t)), nil
	case lua.LString:
		return Str(string(t)), nil
	case *lua.LTable:
		return fromLuaTable(t)
	default:
		return Value{}, errs.New(errs.SerializationRejected, "FromLua", "functions, threads and userdata cannot cross a context boundary")
	}
}

func fromLuaTable(t *lua.LTable) (Value, error) {
	n := t.Len()
	isArray := n > 0
	hasStringKey := false
	hasOtherKey := false
	hasNumberKey := false

	t.ForEach(func(k, _ lua.LValue) {
		switch kt := k.(type) {
		case lua.LNumber:
			hasNumberKey = true
			idx := float64(kt)
			if idx != float64(int64(idx)) || idx < 1 || idx > float64(n) {
				isArray = false
			}
		case lua.LString:
			hasStringKey = true
		default:
			hasOtherKey = true
		}
	})

	if hasOtherKey {
		return Value{}, errs.New(errs.SerializationRejected, "FromLua", "table keys must be strings or non-negative integers")
	}
	if isArray && !hasStringKey {
		out := make([]Value, n)
		for i := 1; i <= n; i++ {
			cv, err := FromLua(t.RawGetInt(i))
			if err != nil {
				return Value{}, err
			}
			out[i-1] = cv
		}
		return Arr(out), nil
	}
	if hasStringKey && n == 0 {
		out := make(map[string]Value)
		var outerErr error
		t.ForEach(func(k, v lua.LValue) {
			if outerErr != nil {
				return
			}
			ks, ok := k.(lua.LString)
			if !ok {
				outerErr = errs.New(errs.SerializationRejected, "FromLua", "mixed integer/string table keys are rejected")
				return
			}
			cv, err := FromLua(v)
			if err != nil {
				outerErr = err
				return
			}
			out[string(ks)] = cv
		})
		if outerErr != nil {
			return Value{}, outerErr
		}
		return Tbl(out), nil
	}
	if n == 0 && !hasNumberKey {
		// Empty table: treat as an empty array, matching Lua's "{}" idiom.
		return Arr(nil), nil
	}
	return Value{}, errs.New(errs.SerializationRejected, "FromLua", "mixed integer/string table keys are rejected")
}

// ToLua converts a Value back into a Lua value owned by L.
func ToLua(L *lua.LState, v Value) lua.LValue {
	switch v.Kind {
	case KindNil:
		return lua.LNil
	case KindBool:
		return lua.LBool(v.Bool)
	case KindNumber:
		return lua.LNumber(v.Number)
	case KindString:
		return lua.LString(v.Str)
	case KindArray:
		t := L.CreateTable(len(v.Array), 0)
		for i, e := range v.Array {
			t.RawSetInt(i+1, ToLua(L, e))
		}
		return t
	case KindTable:
		t := L.CreateTable(0, len(v.Table))
		for k, e := range v.Table {
			t.RawSetString(k, ToLua(L, e))
		}
		return t
	case KindSharedBuffer:
		t := L.CreateTable(0, 1)
		t.RawSetString("__shared_buffer_handle", lua.LNumber(v.Buffer))
		return t
	default:
		return lua.LNil
	}
}
