package evdev

import "wedge/internal/scan"

// Linux input event codes used by the translator (linux/input-event-codes.h).
const (
	evKey = 0x01

	keyEsc        = 1
	keyBackspace  = 14
	keyTab        = 15
	keyEnter      = 28
	keyLeftShift  = 42
	keyRightShift = 54
	keyKPEnter    = 96
)

type keyChars struct {
	plain   byte
	shifted byte
}

// usLayout maps scan codes to characters for a US keyboard, which is what
// nearly every HID scanner emulates out of the box.
var usLayout = map[uint16]keyChars{
	2: {'1', '!'}, 3: {'2', '@'}, 4: {'3', '#'}, 5: {'4', '$'}, 6: {'5', '%'},
	7: {'6', '^'}, 8: {'7', '&'}, 9: {'8', '*'}, 10: {'9', '('}, 11: {'0', ')'},
	12: {'-', '_'}, 13: {'=', '+'},
	16: {'q', 'Q'}, 17: {'w', 'W'}, 18: {'e', 'E'}, 19: {'r', 'R'}, 20: {'t', 'T'},
	21: {'y', 'Y'}, 22: {'u', 'U'}, 23: {'i', 'I'}, 24: {'o', 'O'}, 25: {'p', 'P'},
	26: {'[', '{'}, 27: {']', '}'},
	30: {'a', 'A'}, 31: {'s', 'S'}, 32: {'d', 'D'}, 33: {'f', 'F'}, 34: {'g', 'G'},
	35: {'h', 'H'}, 36: {'j', 'J'}, 37: {'k', 'K'}, 38: {'l', 'L'},
	39: {';', ':'}, 40: {'\'', '"'}, 41: {'`', '~'}, 43: {'\\', '|'},
	44: {'z', 'Z'}, 45: {'x', 'X'}, 46: {'c', 'C'}, 47: {'v', 'V'}, 48: {'b', 'B'},
	49: {'n', 'N'}, 50: {'m', 'M'},
	51: {',', '<'}, 52: {'.', '>'}, 53: {'/', '?'}, 57: {' ', ' '},
	// Keypad.
	71: {'7', '7'}, 72: {'8', '8'}, 73: {'9', '9'}, 74: {'-', '-'},
	75: {'4', '4'}, 76: {'5', '5'}, 77: {'6', '6'}, 78: {'+', '+'},
	79: {'1', '1'}, 80: {'2', '2'}, 81: {'3', '3'}, 82: {'0', '0'}, 83: {'.', '.'},
}

var namedKeys = map[uint16]string{
	keyEsc:        scan.KeyEscape,
	keyBackspace:  scan.KeyBackspace,
	keyTab:        scan.KeyTab,
	keyEnter:      scan.KeyEnter,
	keyKPEnter:    scan.KeyEnter,
	keyLeftShift:  scan.KeyShift,
	keyRightShift: scan.KeyShift,
}

// translate returns the DOM-style key name for a key code.
func translate(code uint16, shift bool) (string, bool) {
	if name, ok := namedKeys[code]; ok {
		return name, true
	}
	chars, ok := usLayout[code]
	if !ok {
		return "", false
	}
	if shift {
		return string(chars.shifted), true
	}
	return string(chars.plain), true
}

func isShift(code uint16) bool {
	return code == keyLeftShift || code == keyRightShift
}
