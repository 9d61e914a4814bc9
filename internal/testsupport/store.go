package testsupport

import (
	"testing"

	"wedge/internal/audit"
	"wedge/internal/config"
)

// MustOpenJournal opens the audit journal configured for cfg and registers
// cleanup with the provided testing.TB.
func MustOpenJournal(t testing.TB, cfg *config.Config) *audit.Journal {
	t.Helper()

	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("ensure directories: %v", err)
	}
	journal, err := audit.OpenJournal(cfg.JournalPath())
	if err != nil {
		t.Fatalf("audit.OpenJournal: %v", err)
	}
	t.Cleanup(func() {
		_ = journal.Close()
	})
	return journal
}
