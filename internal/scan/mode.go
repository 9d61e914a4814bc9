package scan

import (
	"fmt"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Mode is the business context attached to a scan. It labels events and never
// influences classification.
type Mode int

const (
	ModeLookup Mode = iota
	ModeInventory
	ModePicking
	ModeReceiving
)

var modeNames = [...]string{
	ModeLookup:    "lookup",
	ModeInventory: "inventory",
	ModePicking:   "picking",
	ModeReceiving: "receiving",
}

var modeDescriptions = [...]string{
	ModeLookup:    "Scan a product, order or location code to look it up",
	ModeInventory: "Scan items to count stock on hand",
	ModePicking:   "Scan items as they are picked for an order",
	ModeReceiving: "Scan items arriving from a supplier delivery",
}

// Modes returns every mode in display order.
func Modes() []Mode {
	return []Mode{ModeLookup, ModeInventory, ModePicking, ModeReceiving}
}

// Valid reports whether m is one of the declared modes.
func (m Mode) Valid() bool {
	return m >= ModeLookup && m <= ModeReceiving
}

func (m Mode) String() string {
	if !m.Valid() {
		return fmt.Sprintf("mode(%d)", int(m))
	}
	return modeNames[m]
}

// Label returns the human-facing title of the mode.
func (m Mode) Label() string {
	if !m.Valid() {
		return m.String()
	}
	return cases.Title(language.English).String(modeNames[m])
}

// Description returns the help text shown next to the mode selector.
func (m Mode) Description() string {
	if !m.Valid() {
		return ""
	}
	return modeDescriptions[m]
}

// ParseMode converts the text form of a mode. Matching is case-insensitive.
func ParseMode(value string) (Mode, error) {
	normalized := strings.ToLower(strings.TrimSpace(value))
	for i, name := range modeNames {
		if name == normalized {
			return Mode(i), nil
		}
	}
	return ModeLookup, fmt.Errorf("%w %q", ErrUnknownMode, value)
}

func (m Mode) MarshalText() ([]byte, error) {
	if !m.Valid() {
		return nil, fmt.Errorf("invalid scan mode %d", int(m))
	}
	return []byte(modeNames[m]), nil
}

func (m *Mode) UnmarshalText(text []byte) error {
	parsed, err := ParseMode(string(text))
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}
