package hotkey

import (
	"strconv"

	"dictate/internal/keys"
)

const (
	vkNumpad0 = 0x60
	vkNumpad9 = 0x69
	vkF1      = 0x70
	vkF24     = 0x87
)

var namedVK = map[uint32]string{
	0x08: "backspace",
	0x09: "tab",
	0x0D: "enter",
	0x10: "shift",
	0x11: "ctrl",
	0x12: "alt",
	0x13: "pause",
	0x14: "caps_lock",
	0x1B: "esc",
	0x20: "space",
	0x21: "page_up",
	0x22: "page_down",
	0x23: "end",
	0x24: "home",
	0x25: "left",
	0x26: "up",
	0x27: "right",
	0x28: "down",
	0x2C: "print_screen",
	0x2D: "insert",
	0x2E: "delete",
	0x5B: "cmd",
	0x5C: "cmd_r",
	0x5D: "menu_key",
	0x90: "num_lock",
	0x91: "scroll_lock",
	0xA0: "shift_l",
	0xA1: "shift_r",
	0xA2: "ctrl_l",
	0xA3: "ctrl_r",
	0xA4: "alt_l",
	0xA5: "alt_gr",
}

var oemVK = map[uint32]rune{
	0xBA: ';',
	0xBB: '=',
	0xBC: ',',
	0xBD: '-',
	0xBE: '.',
	0xBF: '/',
	0xC0: '`',
	0xDB: '[',
	0xDC: '\\',
	0xDD: ']',
	0xDE: '\'',
}

// VKToKey maps a Windows virtual-key code to a RawKey. Letters and top-row
// digits become characters; numpad digits stay codes so the normalizer's
// fallback table applies.
func VKToKey(vk uint32) keys.RawKey {
	switch {
	case vk >= 'A' && vk <= 'Z':
		return keys.Char(rune(vk - 'A' + 'a'))
	case vk >= '0' && vk <= '9':
		return keys.Char(rune(vk))
	case vk >= vkNumpad0 && vk <= vkNumpad9:
		return keys.Code(int(vk))
	case vk >= vkF1 && vk <= vkF24:
		return keys.Named("f" + strconv.Itoa(int(vk-vkF1)+1))
	}
	if name, ok := namedVK[vk]; ok {
		return keys.Named(name)
	}
	if r, ok := oemVK[vk]; ok {
		return keys.Char(r)
	}
	return keys.Code(int(vk))
}
