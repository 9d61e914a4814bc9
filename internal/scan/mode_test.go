package scan_test

import (
	"encoding/json"
	"testing"

	"wedge/internal/scan"
)

func TestParseMode(t *testing.T) {
	tests := []struct {
		in      string
		want    scan.Mode
		wantErr bool
	}{
		{in: "lookup", want: scan.ModeLookup},
		{in: " Inventory ", want: scan.ModeInventory},
		{in: "PICKING", want: scan.ModePicking},
		{in: "receiving", want: scan.ModeReceiving},
		{in: "shipping", wantErr: true},
		{in: "", wantErr: true},
	}
	for _, tc := range tests {
		got, err := scan.ParseMode(tc.in)
		if tc.wantErr {
			if err == nil {
				t.Fatalf("ParseMode(%q) expected error", tc.in)
			}
			continue
		}
		if err != nil {
			t.Fatalf("ParseMode(%q): %v", tc.in, err)
		}
		if got != tc.want {
			t.Fatalf("ParseMode(%q) = %s, want %s", tc.in, got, tc.want)
		}
	}
}

func TestModeLabels(t *testing.T) {
	if len(scan.Modes()) != 4 {
		t.Fatalf("expected four modes, got %d", len(scan.Modes()))
	}
	for _, m := range scan.Modes() {
		if m.Label() == "" || m.Description() == "" {
			t.Fatalf("mode %s missing label or description", m)
		}
	}
	if scan.ModeReceiving.Label() != "Receiving" {
		t.Fatalf("label = %q", scan.ModeReceiving.Label())
	}
	if scan.Mode(9).Valid() {
		t.Fatal("out of range mode reported valid")
	}
}

func TestModeJSON(t *testing.T) {
	ev := scan.Event{Code: "X1", Mode: scan.ModePicking}
	data, err := json.Marshal(ev)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var decoded scan.Event
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if decoded.Mode != scan.ModePicking {
		t.Fatalf("mode = %s", decoded.Mode)
	}
	if _, err := json.Marshal(scan.Event{Mode: scan.Mode(7)}); err == nil {
		t.Fatal("expected error marshalling invalid mode")
	}
}
