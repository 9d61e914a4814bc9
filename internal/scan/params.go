package scan

import (
	"errors"
	"time"
)

// Default classification thresholds. They are heuristics inherited from field
// use with USB HID scanners and should be recalibrated per scanner model.
const (
	DefaultMinLength         = 5
	DefaultInterKeyThreshold = 20 * time.Millisecond
	DefaultQuietPeriod       = 300 * time.Millisecond
	DefaultIdleTimeout       = 100 * time.Millisecond
)

// Params selects classification behaviour.
//
// With RequireOpenSurface unset every keystroke is classified leniently: the
// buffer is flushed into the observed code after IdleTimeout of inactivity and
// Enter emits whatever has been collected. With RequireOpenSurface set, the
// lenient rules apply only while a surface is open; otherwise a sequence is
// accepted at Enter only when every inter-key gap was below InterKeyThreshold
// and at least MinLength characters were buffered. Gaps longer than
// QuietPeriod discard the buffer before the new key is considered.
type Params struct {
	RequireOpenSurface bool
	MinLength          int
	InterKeyThreshold  time.Duration
	QuietPeriod        time.Duration
	IdleTimeout        time.Duration
}

// DefaultParams returns the global-listener defaults.
func DefaultParams() Params {
	return Params{
		RequireOpenSurface: true,
		MinLength:          DefaultMinLength,
		InterKeyThreshold:  DefaultInterKeyThreshold,
		QuietPeriod:        DefaultQuietPeriod,
		IdleTimeout:        DefaultIdleTimeout,
	}
}

// Validate reports the first unusable threshold.
func (p Params) Validate() error {
	if p.MinLength <= 0 {
		return errors.New("min length must be positive")
	}
	if p.InterKeyThreshold <= 0 {
		return errors.New("inter-key threshold must be positive")
	}
	if p.QuietPeriod <= 0 {
		return errors.New("quiet period must be positive")
	}
	if p.QuietPeriod < p.InterKeyThreshold {
		return errors.New("quiet period must not be shorter than the inter-key threshold")
	}
	if p.IdleTimeout <= 0 {
		return errors.New("idle timeout must be positive")
	}
	return nil
}
