package evdev

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
)

const (
	defaultDevDir = "/dev/input"
	defaultSysDir = "/sys/class/input"
)

// Info describes an input event node.
type Info struct {
	Path    string `json:"path"`
	Name    string `json:"name"`
	Phys    string `json:"phys,omitempty"`
	Vendor  string `json:"vendor,omitempty"`
	Product string `json:"product,omitempty"`
}

// ID returns the vendor:product pair in lsusb notation.
func (i Info) ID() string {
	if i.Vendor == "" && i.Product == "" {
		return ""
	}
	return i.Vendor + ":" + i.Product
}

// List enumerates the event devices on this host.
func List() ([]Info, error) {
	return listDevices(defaultDevDir, defaultSysDir)
}

// Describe returns the Info for a single event node.
func Describe(path string) Info {
	return describe(defaultSysDir, path)
}

func listDevices(devDir, sysDir string) ([]Info, error) {
	matches, err := filepath.Glob(filepath.Join(devDir, "event*"))
	if err != nil {
		return nil, fmt.Errorf("glob input devices: %w", err)
	}
	sort.Slice(matches, func(i, j int) bool {
		return eventIndex(matches[i]) < eventIndex(matches[j])
	})

	infos := make([]Info, 0, len(matches))
	for _, path := range matches {
		infos = append(infos, describe(sysDir, path))
	}
	return infos, nil
}

func describe(sysDir, path string) Info {
	base := filepath.Join(sysDir, filepath.Base(path), "device")
	return Info{
		Path:    path,
		Name:    readAttr(filepath.Join(base, "name")),
		Phys:    readAttr(filepath.Join(base, "phys")),
		Vendor:  strings.ToLower(readAttr(filepath.Join(base, "id", "vendor"))),
		Product: strings.ToLower(readAttr(filepath.Join(base, "id", "product"))),
	}
}

func readAttr(path string) string {
	data, err := os.ReadFile(path)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(data))
}

func eventIndex(path string) int {
	n, err := strconv.Atoi(strings.TrimPrefix(filepath.Base(path), "event"))
	if err != nil {
		return 1 << 30
	}
	return n
}

// Match reports whether info satisfies any pattern. A pattern of the form
// "vvvv:pppp" compares the USB id; anything else is a case-insensitive
// substring of the device name.
func Match(info Info, patterns []string) bool {
	name := strings.ToLower(info.Name)
	id := info.ID()
	for _, pattern := range patterns {
		pattern = strings.ToLower(strings.TrimSpace(pattern))
		if pattern == "" {
			continue
		}
		if isUSBID(pattern) {
			if id == pattern {
				return true
			}
			continue
		}
		if strings.Contains(name, pattern) {
			return true
		}
	}
	return false
}

func isUSBID(pattern string) bool {
	vendor, product, ok := strings.Cut(pattern, ":")
	return ok && isHex4(vendor) && isHex4(product)
}

func isHex4(s string) bool {
	if len(s) != 4 {
		return false
	}
	_, err := strconv.ParseUint(s, 16, 16)
	return err == nil
}

// ErrNotEventDevice is returned when a path is not an evdev node.
var ErrNotEventDevice = errors.New("not an input event device")

// IsEventPath reports whether path names an evdev node.
func IsEventPath(path string) bool {
	return strings.HasPrefix(filepath.Base(path), "event")
}
