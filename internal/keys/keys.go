// Package keys turns raw keyboard events into canonical key names and tracks
// which keys are currently held.
package keys

import (
	"fmt"
	"strconv"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"
)

// Kind tags the representation a RawKey carries.
type Kind int

const (
	KindNamed Kind = iota
	KindChar
	KindCode
)

// RawKey is a key as reported by an input source: a named key, a printable
// character, or a platform code with no better description.
type RawKey struct {
	Kind Kind
	Name string
	Char rune
	Code int
}

// Named returns a named key such as "ctrl_l" or "grave".
func Named(name string) RawKey { return RawKey{Kind: KindNamed, Name: name} }

// Char returns a character key.
func Char(r rune) RawKey { return RawKey{Kind: KindChar, Char: r} }

// Code returns a key known only by its platform code.
func Code(c int) RawKey { return RawKey{Kind: KindCode, Code: c} }

func (k RawKey) String() string {
	switch k.Kind {
	case KindNamed:
		return "Key." + k.Name
	case KindChar:
		return fmt.Sprintf("%q", k.Char)
	default:
		return fmt.Sprintf("<%d>", k.Code)
	}
}

// Event is one key transition.
type Event struct {
	Key  RawKey
	Down bool
	Time time.Time
}

// Canonical names that other packages refer to directly.
const (
	CtrlL = "ctrl_l"
	AltL  = "alt_l"
	AltGr = "alt_gr"
)

var namedAliases = map[string]string{
	"ctrl":      CtrlL,
	"control":   CtrlL,
	"ctrl_l":    CtrlL,
	"lctrl":     CtrlL,
	"ctrl_r":    "ctrl_r",
	"rctrl":     "ctrl_r",
	"alt":       AltL,
	"menu":      AltL,
	"alt_l":     AltL,
	"lalt":      AltL,
	"alt_r":     "alt_r",
	"ralt":      "alt_r",
	"altgr":     AltGr,
	"alt_gr":    AltGr,
	"shift":     "shift_l",
	"shift_l":   "shift_l",
	"lshift":    "shift_l",
	"shift_r":   "shift_r",
	"rshift":    "shift_r",
	"win":       "cmd",
	"cmd":       "cmd",
	"cmd_l":     "cmd",
	"cmd_r":     "cmd_r",
	"super":     "cmd",
	"meta":      "cmd",
	"escape":    "esc",
	"esc":       "esc",
	"return":    "enter",
	"enter":     "enter",
	"grave":     "grave",
	"backtick":  "grave",
	"backquote": "grave",
	"`":         "grave",
	"space":     "space",
	"spacebar":  "space",
	"del":       "delete",
	"pgup":      "page_up",
	"pageup":    "page_up",
	"pgdn":      "page_down",
	"pagedown":  "page_down",
}

// Numeric keypad virtual codes report no character on some layouts.
var codeFallback = map[int]string{
	96: "0", 97: "1", 98: "2", 99: "3", 100: "4",
	101: "5", 102: "6", 103: "7", 104: "8", 105: "9",
}

// Normalize returns the canonical lowercase name of k. It never fails;
// unknown keys degrade to a lowercase string form.
func Normalize(k RawKey) string {
	switch k.Kind {
	case KindChar:
		if k.Char == '`' {
			return "grave"
		}
		if k.Char == 0 || !utf8.ValidRune(k.Char) {
			return "<0>"
		}
		return string(unicode.ToLower(k.Char))
	case KindCode:
		if name, ok := codeFallback[k.Code]; ok {
			return name
		}
		return "<" + strconv.Itoa(k.Code) + ">"
	default:
		return normalizeName(k.Name)
	}
}

func normalizeName(name string) string {
	n := strings.ToLower(strings.TrimSpace(name))
	n = strings.TrimPrefix(n, "key.")
	if alias, ok := namedAliases[n]; ok {
		return alias
	}
	if utf8.RuneCountInString(n) == 1 {
		r, _ := utf8.DecodeRuneInString(n)
		return Normalize(Char(r))
	}
	return n
}

// ParseToken interprets a configuration token such as "ctrl_l", "a" or "<96>".
func ParseToken(tok string) RawKey {
	t := strings.TrimSpace(tok)
	if utf8.RuneCountInString(t) == 1 {
		r, _ := utf8.DecodeRuneInString(t)
		return Char(r)
	}
	if strings.HasPrefix(t, "<") && strings.HasSuffix(t, ">") {
		if n, err := strconv.Atoi(t[1 : len(t)-1]); err == nil {
			return Code(n)
		}
	}
	return Named(t)
}

// NormalizeToken is Normalize(ParseToken(tok)).
func NormalizeToken(tok string) string {
	return Normalize(ParseToken(tok))
}
