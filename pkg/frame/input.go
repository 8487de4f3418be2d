package frame

import (
	"fmt"
	"slices"
	"strconv"
	"strings"
)

// Key identifies a keyboard key. Values follow the GLFW key code table.
type Key uint32

const (
	KeyUnknown    Key = 0
	KeySpace      Key = 32
	KeyApostrophe Key = 39
	KeyComma      Key = 44
	KeyMinus      Key = 45
	KeyPeriod     Key = 46
	KeySlash      Key = 47
	Key0          Key = 48
	Key9          Key = 57
	KeyA          Key = 65
	KeyD          Key = 68
	KeyL          Key = 76
	KeyP          Key = 80
	KeyQ          Key = 81
	KeyR          Key = 82
	KeyS          Key = 83
	KeyW          Key = 87
	KeyZ          Key = 90
	KeyEscape     Key = 256
	KeyEnter      Key = 257
	KeyTab        Key = 258
	KeyBackspace  Key = 259
	KeyRight      Key = 262
	KeyLeft       Key = 263
	KeyDown       Key = 264
	KeyUp         Key = 265
)

var keyNames = map[Key]string{
	KeySpace:      "Space",
	KeyApostrophe: "Apostrophe",
	KeyComma:      "Comma",
	KeyMinus:      "Minus",
	KeyPeriod:     "Period",
	KeySlash:      "Slash",
	KeyEscape:     "Escape",
	KeyEnter:      "Enter",
	KeyTab:        "Tab",
	KeyBackspace:  "Backspace",
	KeyRight:      "Right",
	KeyLeft:       "Left",
	KeyDown:       "Down",
	KeyUp:         "Up",
}

// String returns the key name, or its numeric code when unnamed.
func (k Key) String() string {
	if name, ok := keyNames[k]; ok {
		return name
	}
	switch {
	case k >= KeyA && k <= KeyZ:
		return string(rune('A' + (k - KeyA)))
	case k >= Key0 && k <= Key9:
		return string(rune('0' + (k - Key0)))
	}
	return "Key(" + strconv.FormatUint(uint64(k), 10) + ")"
}

// ParseKey resolves a key name (case-insensitive) or a numeric key code.
func ParseKey(s string) (Key, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return KeyUnknown, fmt.Errorf("frame: empty key name")
	}
	if n, err := strconv.ParseUint(s, 10, 32); err == nil && len(s) > 1 {
		return Key(n), nil
	}
	if len(s) == 1 {
		c := strings.ToUpper(s)[0]
		switch {
		case c >= 'A' && c <= 'Z':
			return KeyA + Key(c-'A'), nil
		case c >= '0' && c <= '9':
			return Key0 + Key(c-'0'), nil
		}
	}
	for k, name := range keyNames {
		if strings.EqualFold(name, s) {
			return k, nil
		}
	}
	return KeyUnknown, fmt.Errorf("frame: unknown key %q", s)
}

// InputSet is the ordered set of keys held during one frame. It is sorted
// by key code and free of duplicates; treat it as immutable.
type InputSet []Key

// NewInputSet builds a normalized set from keys in any order.
func NewInputSet(keys ...Key) InputSet {
	if len(keys) == 0 {
		return InputSet{}
	}
	s := slices.Clone(keys)
	slices.Sort(s)
	return InputSet(slices.Compact(s))
}

// Contains reports whether k is held.
func (s InputSet) Contains(k Key) bool {
	_, found := slices.BinarySearch(s, k)
	return found
}

// Equal reports whether both sets hold the same keys.
func (s InputSet) Equal(o InputSet) bool {
	return slices.Equal(s, o)
}

func (s InputSet) String() string {
	names := make([]string, len(s))
	for i, k := range s {
		names[i] = k.String()
	}
	return "{" + strings.Join(names, ", ") + "}"
}

// ParseInputSet parses a comma separated key list such as "right,space".
// An empty string yields the empty set.
func ParseInputSet(s string) (InputSet, error) {
	s = strings.TrimSpace(s)
	if s == "" || s == "{}" {
		return InputSet{}, nil
	}
	s = strings.TrimSuffix(strings.TrimPrefix(s, "{"), "}")
	var keys []Key
	for _, part := range strings.Split(s, ",") {
		k, err := ParseKey(part)
		if err != nil {
			return nil, err
		}
		keys = append(keys, k)
	}
	return NewInputSet(keys...), nil
}

// ParseInputScript parses a per-frame input script. Frames are separated by
// ';' and each frame is a comma separated key list, so "right;right;;space"
// describes four frames with the third one empty.
func ParseInputScript(s string) ([]InputSet, error) {
	if strings.TrimSpace(s) == "" {
		return nil, nil
	}
	parts := strings.Split(s, ";")
	frames := make([]InputSet, 0, len(parts))
	for i, part := range parts {
		in, err := ParseInputSet(part)
		if err != nil {
			return nil, fmt.Errorf("frame %d: %w", i, err)
		}
		frames = append(frames, in)
	}
	return frames, nil
}
