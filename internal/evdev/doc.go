// Package evdev reads keyboard-emulating barcode scanners straight from the
// Linux input subsystem.
//
// List discovers /dev/input/event* nodes and their sysfs names, Match selects
// scanners by name or vendor:product id, and Open returns a Device that
// implements scan.KeySource. Devices can be grabbed with EVIOCGRAB so scanned
// keystrokes stop reaching the desktop session.
package evdev
