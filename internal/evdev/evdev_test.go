package evdev

import (
	"bytes"
	"context"
	"encoding/binary"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"wedge/internal/scan"
)

func encodeEvent(sec, usec int64, typ, code uint16, value int32) []byte {
	buf := make([]byte, eventSize)
	binary.LittleEndian.PutUint64(buf[0:8], uint64(sec))
	binary.LittleEndian.PutUint64(buf[8:16], uint64(usec))
	binary.LittleEndian.PutUint16(buf[16:18], typ)
	binary.LittleEndian.PutUint16(buf[18:20], code)
	binary.LittleEndian.PutUint32(buf[20:24], uint32(value))
	return buf
}

// press appends key down, a SYN report and key up.
func press(stream *bytes.Buffer, usec int64, code uint16) {
	stream.Write(encodeEvent(1700000000, usec, evKey, code, 1))
	stream.Write(encodeEvent(1700000000, usec, 0, 0, 0))
	stream.Write(encodeEvent(1700000000, usec+500, evKey, code, 0))
}

func TestDecodeEvent(t *testing.T) {
	ev := decodeEvent(encodeEvent(1700000000, 250000, evKey, keyEnter, 1))
	if ev.Type != evKey || ev.Code != keyEnter || ev.Value != 1 {
		t.Fatalf("unexpected event %+v", ev)
	}
	want := time.Unix(1700000000, 250000*1000)
	if !ev.time().Equal(want) {
		t.Fatalf("time = %v, want %v", ev.time(), want)
	}
}

func TestTranslate(t *testing.T) {
	tests := []struct {
		code  uint16
		shift bool
		want  string
		ok    bool
	}{
		{code: 30, want: "a", ok: true},
		{code: 30, shift: true, want: "A", ok: true},
		{code: 2, want: "1", ok: true},
		{code: 12, shift: true, want: "_", ok: true},
		{code: 82, want: "0", ok: true},
		{code: keyEnter, want: scan.KeyEnter, ok: true},
		{code: keyKPEnter, want: scan.KeyEnter, ok: true},
		{code: keyLeftShift, want: scan.KeyShift, ok: true},
		{code: 240, ok: false},
	}
	for _, tc := range tests {
		got, ok := translate(tc.code, tc.shift)
		if ok != tc.ok || got != tc.want {
			t.Fatalf("translate(%d, %v) = %q, %v; want %q, %v", tc.code, tc.shift, got, ok, tc.want, tc.ok)
		}
	}
}

func TestDeviceDecodesScannerBurst(t *testing.T) {
	var stream bytes.Buffer
	usec := int64(0)
	next := func() int64 { usec += 4000; return usec }

	// "Ab-1" followed by Enter, with shift held for the capital.
	stream.Write(encodeEvent(1700000000, next(), evKey, keyLeftShift, 1))
	press(&stream, next(), 30)
	stream.Write(encodeEvent(1700000000, next(), evKey, keyLeftShift, 0))
	press(&stream, next(), 48)
	press(&stream, next(), 12)
	stream.Write(encodeEvent(1700000000, next(), evKey, 2, 2)) // autorepeat is ignored
	press(&stream, next(), 2)
	press(&stream, next(), keyEnter)

	d := newDevice(Info{Path: "/dev/input/event9"}, io.NopCloser(&stream), nil)
	var keys []string
	var stamps []time.Time
	unsubscribe := d.Subscribe(func(ev scan.KeyEvent) {
		keys = append(keys, ev.Key)
		stamps = append(stamps, ev.Time)
	})
	defer unsubscribe()

	if err := d.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}

	want := []string{scan.KeyShift, "A", "b", "-", "1", scan.KeyEnter}
	if strings.Join(keys, " ") != strings.Join(want, " ") {
		t.Fatalf("keys = %v, want %v", keys, want)
	}
	for i := 1; i < len(stamps); i++ {
		if !stamps[i].After(stamps[i-1]) {
			t.Fatalf("kernel timestamps should be preserved and increasing: %v", stamps)
		}
	}
}

func TestDeviceFeedsClassifier(t *testing.T) {
	var stream bytes.Buffer
	usec := int64(0)
	for _, code := range []uint16{31, 22, 37, 12, 3, 4, 5, keyEnter} {
		usec += 3000
		press(&stream, usec, code)
	}

	d := newDevice(Info{Path: "/dev/input/event3"}, io.NopCloser(&stream), nil)
	var got []string
	c, err := scan.NewClassifier(scan.DefaultParams(), scan.ModeInventory, func(code string, _ scan.Mode) {
		got = append(got, code)
	})
	if err != nil {
		t.Fatalf("NewClassifier: %v", err)
	}
	defer c.Close()
	if _, err := c.Attach(d); err != nil {
		t.Fatalf("Attach: %v", err)
	}

	if err := d.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(got) != 1 || got[0] != "suk-234" {
		t.Fatalf("dispatched %v", got)
	}
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	var stream bytes.Buffer
	press(&stream, 1000, 30)
	d := newDevice(Info{Path: "/dev/input/event1"}, io.NopCloser(&stream), nil)
	calls := 0
	unsubscribe := d.Subscribe(func(scan.KeyEvent) { calls++ })
	unsubscribe()
	unsubscribe()
	if err := d.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if calls != 0 {
		t.Fatalf("calls = %d, want 0", calls)
	}
}

type blockingReader struct {
	closed chan struct{}
}

func (r *blockingReader) Read([]byte) (int, error) {
	<-r.closed
	return 0, os.ErrClosed
}

func (r *blockingReader) Close() error {
	close(r.closed)
	return nil
}

func TestRunReturnsWhenContextCancelled(t *testing.T) {
	d := newDevice(Info{Path: "/dev/input/event2"}, &blockingReader{closed: make(chan struct{})}, nil)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- d.Run(ctx) }()
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run returned %v after cancel", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
	if err := d.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
}

func writeSysfs(t *testing.T, sysDir, event, name, vendor, product string) {
	t.Helper()
	base := filepath.Join(sysDir, event, "device")
	if err := os.MkdirAll(filepath.Join(base, "id"), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	files := map[string]string{
		filepath.Join(base, "name"):          name + "\n",
		filepath.Join(base, "id", "vendor"):  vendor + "\n",
		filepath.Join(base, "id", "product"): product + "\n",
	}
	for path, content := range files {
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			t.Fatalf("write %s: %v", path, err)
		}
	}
}

func TestListDevicesReadsSysfs(t *testing.T) {
	root := t.TempDir()
	devDir := filepath.Join(root, "dev")
	sysDir := filepath.Join(root, "sys")
	if err := os.MkdirAll(devDir, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	for _, name := range []string{"event10", "event2", "mouse0"} {
		if err := os.WriteFile(filepath.Join(devDir, name), nil, 0o644); err != nil {
			t.Fatalf("write node: %v", err)
		}
	}
	writeSysfs(t, sysDir, "event2", "AT Translated Set 2 keyboard", "0001", "0001")
	writeSysfs(t, sysDir, "event10", "Honeywell Barcode Scanner", "0C2E", "0B61")

	infos, err := listDevices(devDir, sysDir)
	if err != nil {
		t.Fatalf("listDevices: %v", err)
	}
	if len(infos) != 2 {
		t.Fatalf("expected 2 event devices, got %+v", infos)
	}
	if filepath.Base(infos[0].Path) != "event2" || filepath.Base(infos[1].Path) != "event10" {
		t.Fatalf("devices not ordered numerically: %+v", infos)
	}
	scanner := infos[1]
	if scanner.Name != "Honeywell Barcode Scanner" || scanner.ID() != "0c2e:0b61" {
		t.Fatalf("unexpected scanner info %+v", scanner)
	}
}

func TestMatch(t *testing.T) {
	info := Info{Name: "Honeywell Barcode Scanner", Vendor: "0c2e", Product: "0b61"}
	tests := []struct {
		patterns []string
		want     bool
	}{
		{[]string{"barcode"}, true},
		{[]string{"HONEYWELL"}, true},
		{[]string{"0c2e:0b61"}, true},
		{[]string{"0C2E:0B61"}, true},
		{[]string{"05e0:1200"}, false},
		{[]string{"keyboard", ""}, false},
		{nil, false},
	}
	for _, tc := range tests {
		if got := Match(info, tc.patterns); got != tc.want {
			t.Fatalf("Match(%v) = %v, want %v", tc.patterns, got, tc.want)
		}
	}
}

func TestOpenRejectsNonEventPath(t *testing.T) {
	if _, err := Open(filepath.Join(t.TempDir(), "mouse0"), false, nil); err == nil {
		t.Fatal("expected error for non-event path")
	}
}
