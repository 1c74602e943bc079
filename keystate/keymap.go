package keystate

import "strings"

// KeyCode identifies a key slot in the host's key_state array (spec.md §3).
type KeyCode int

// Named keys recognized by the key-spec grammar (spec.md §4.3). Codes are
// arbitrary but stable indices into the runtime's own key_state buffer;
// unlike the teacher's terminal-driven KeyTable this system never talks to
// a real terminal, so the table only needs to be internally consistent.
var namedKeys = map[string]KeyCode{
	"space": 0, "enter": 1, "escape": 2, "tab": 3, "backspace": 4,
	"up": 5, "down": 6, "left": 7, "right": 8,
	"shift": 9, "lshift": 9, "rshift": 10,
	"ctrl": 11, "lctrl": 11, "rctrl": 12,
	"alt": 13, "lalt": 13, "ralt": 14,
	"a": 15, "b": 16, "c": 17, "d": 18, "e": 19, "f": 20, "g": 21,
	"h": 22, "i": 23, "j": 24, "k": 25, "l": 26, "m": 27, "n": 28,
	"o": 29, "p": 30, "q": 31, "r": 32, "s": 33, "t": 34, "u": 35,
	"v": 36, "w": 37, "x": 38, "y": 39, "z": 40,
	"0": 41, "1": 42, "2": 43, "3": 44, "4": 45, "5": 46, "6": 47,
	"7": 48, "8": 49, "9": 50,
}

// MaxKeyCode is the number of slots in the runtime's key_state buffer
// (codes 0-255); the named keys above use only a few of them.
const MaxKeyCode = 256

// ParseKeySpec tokenizes a key-spec string on whitespace, commas, and
// semicolons, drops empty tokens, matches case-insensitively, skips
// unknown names, and collapses duplicates while preserving first-seen
// order (spec.md §4.3 key-spec grammar).
func ParseKeySpec(spec string) []KeyCode {
	fields := strings.FieldsFunc(spec, func(r rune) bool {
		return r == ' ' || r == '\t' || r == '\n' || r == ',' || r == ';'
	})
	seen := make(map[KeyCode]bool, len(fields))
	var out []KeyCode
	for _, f := range fields {
		code, ok := namedKeys[strings.ToLower(f)]
		if !ok {
			continue
		}
		if seen[code] {
			continue
		}
		seen[code] = true
		out = append(out, code)
	}
	return out
}
