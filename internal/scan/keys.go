package scan

import "time"

// Named keys, using the DOM KeyboardEvent.key vocabulary.
const (
	KeyEnter     = "Enter"
	KeyShift     = "Shift"
	KeyTab       = "Tab"
	KeyBackspace = "Backspace"
	KeyEscape    = "Escape"
)

// KeyEvent is a single keydown delivered to the classifier.
type KeyEvent struct {
	// Key is either one printable character or a named key such as "Enter".
	Key string
	// Time is when the key was pressed. The zero value means "now".
	Time time.Time
	// InTextInput is set when the keystroke targets an ordinary text field.
	// Such events are ignored so form typing never feeds the scan buffer.
	InTextInput bool
}

// KeySource delivers key events to subscribers. Subscribe returns the function
// that removes the subscription; calling it more than once is safe.
type KeySource interface {
	Subscribe(fn func(KeyEvent)) (unsubscribe func())
}

// IsTerminator reports whether key ends a scan.
func IsTerminator(key string) bool {
	return key == KeyEnter
}

// IsCodeChar reports whether key is a single character from the accepted code
// alphabet: ASCII letters, digits, hyphen and underscore.
func IsCodeChar(key string) bool {
	if len(key) != 1 {
		return false
	}
	c := key[0]
	switch {
	case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9':
		return true
	case c == '-' || c == '_':
		return true
	default:
		return false
	}
}
