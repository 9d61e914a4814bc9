package main

import (
	"bytes"
	"strings"
	"testing"
)

func TestRenderStatusLine(t *testing.T) {
	tests := []struct {
		name    string
		kind    statusKind
		message string
		want    string
	}{
		{name: "ok with message", kind: statusOK, message: "Running", want: "  Daemon:            [OK] Running"},
		{name: "warn without message", kind: statusWarn, want: "  Daemon:            [WARN]"},
		{name: "unknown kind", kind: statusKind(42), message: "x", want: "  Daemon:            [INFO] x"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := renderStatusLine("Daemon", tt.kind, tt.message, false); got != tt.want {
				t.Fatalf("got %q, want %q", got, tt.want)
			}
		})
	}

	colored := renderStatusLine("Daemon", statusError, "down", true)
	if !strings.Contains(colored, "\x1b[") || !strings.Contains(colored, "[ERROR] down") {
		t.Fatalf("colored line = %q", colored)
	}
}

func TestPrintSectionAndColorize(t *testing.T) {
	var buf bytes.Buffer
	printSection(&buf, " Scanner ", false)
	if buf.String() != "== Scanner ==\n-------------\n" {
		t.Fatalf("section = %q", buf.String())
	}
	if shouldColorize(&buf) {
		t.Fatal("a buffer is never a terminal")
	}
}
