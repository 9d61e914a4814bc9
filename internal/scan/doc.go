// Package scan classifies keystroke streams into barcode scans and dispatches
// completed scans to the host.
//
// A Classifier consumes KeyEvent values from any KeySource (evdev devices,
// websocket sessions, tests) and decides, from inter-key timing alone, whether
// a burst of characters came from a keyboard-emulating scanner or from a person
// typing. Completed scans become immutable Event values that are prepended to a
// bounded History, handed to the caller's Handler, and recorded through a
// fire-and-forget Auditor.
//
// Classification is parameterized by Params rather than by separate code
// paths: with RequireOpenSurface set, keystrokes arriving while no Surface is
// open must pass the strict rapid-burst and minimum-length checks; once a
// Surface is open the lenient inactivity-timer rules apply. Timers come from an
// injected Clock so tests can drive the state machine without wall-clock
// sleeps.
//
// The camera path lives on Surface: decoded strings bypass timing analysis and
// are submitted like manual input, and the underlying stream is released
// exactly once whenever the surface closes.
package scan
