package main

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/zyetaone/z-interact-sub000/internal/db"
	"github.com/zyetaone/z-interact-sub000/internal/ledger"
	"github.com/zyetaone/z-interact-sub000/internal/models"
)

// writeTestConfig drops a minimal sqlite config into a temp dir and returns
// its path.
func writeTestConfig(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	content := fmt.Sprintf(`event:
  name: "Test Event"
  tables:
    - id: "1"
      persona: "visionary"
    - id: "2"
      persona: "builder"
db:
  driver: sqlite
  path: %q
`, filepath.Join(dir, "test.db"))

	path := filepath.Join(dir, "z-interact.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestMigrateCmd(t *testing.T) {
	configPath := writeTestConfig(t)

	cmd := newRootCmd()
	buf := new(bytes.Buffer)
	cmd.SetOut(buf)
	cmd.SetArgs([]string{"migrate", "--config", configPath})

	if err := cmd.Execute(); err != nil {
		t.Fatalf("migrate failed: %v", err)
	}
	if !strings.Contains(buf.String(), "Migrated") {
		t.Errorf("expected migration summary, got: %s", buf.String())
	}
}

func TestMigrateCmd_MissingConfig(t *testing.T) {
	cmd := newRootCmd()
	cmd.SetOut(new(bytes.Buffer))
	cmd.SetErr(new(bytes.Buffer))
	cmd.SetArgs([]string{"migrate", "--config", filepath.Join(t.TempDir(), "nope.yaml")})

	if err := cmd.Execute(); err == nil {
		t.Error("expected error for missing config file")
	}
}

func TestStatusCmd(t *testing.T) {
	configPath := writeTestConfig(t)

	// Migrate first, then seed one locked table.
	migrate := newRootCmd()
	migrate.SetOut(new(bytes.Buffer))
	migrate.SetArgs([]string{"migrate", "--config", configPath})
	if err := migrate.Execute(); err != nil {
		t.Fatalf("migrate failed: %v", err)
	}

	_, gormDB, err := connectFromConfig(configPath)
	if err != nil {
		t.Fatal(err)
	}
	store := ledger.New(gormDB)
	table := "1"
	if err := store.Insert(&models.Image{ID: "a", TableID: &table, Status: models.StatusLocked}); err != nil {
		t.Fatal(err)
	}

	cmd := newRootCmd()
	buf := new(bytes.Buffer)
	cmd.SetOut(buf)
	cmd.SetArgs([]string{"status", "--config", configPath})

	if err := cmd.Execute(); err != nil {
		t.Fatalf("status failed: %v", err)
	}
	out := buf.String()
	if !strings.Contains(out, "Test Event") {
		t.Errorf("expected event name, got: %s", out)
	}
	if !strings.Contains(out, "locked") {
		t.Errorf("expected locked state, got: %s", out)
	}
	if !strings.Contains(out, "1/2 tables locked") {
		t.Errorf("expected lock tally, got: %s", out)
	}
}

func TestClearCmd_WithYes(t *testing.T) {
	configPath := writeTestConfig(t)

	migrate := newRootCmd()
	migrate.SetOut(new(bytes.Buffer))
	migrate.SetArgs([]string{"migrate", "--config", configPath})
	if err := migrate.Execute(); err != nil {
		t.Fatalf("migrate failed: %v", err)
	}

	_, gormDB, err := connectFromConfig(configPath)
	if err != nil {
		t.Fatal(err)
	}
	store := ledger.New(gormDB)
	table := "1"
	if err := store.Insert(&models.Image{ID: "a", TableID: &table, Status: models.StatusCompleted}); err != nil {
		t.Fatal(err)
	}

	cmd := newRootCmd()
	buf := new(bytes.Buffer)
	cmd.SetOut(buf)
	cmd.SetArgs([]string{"clear", "--config", configPath, "--yes"})

	if err := cmd.Execute(); err != nil {
		t.Fatalf("clear failed: %v", err)
	}
	if !strings.Contains(buf.String(), "Deleted 1 record(s)") {
		t.Errorf("expected deletion summary, got: %s", buf.String())
	}

	remaining, err := store.SelectAll("")
	if err != nil {
		t.Fatal(err)
	}
	if len(remaining) != 0 {
		t.Errorf("remaining = %+v, want empty", remaining)
	}
}

func TestClearCmd_PromptReadsInjectedStream(t *testing.T) {
	configPath := writeTestConfig(t)

	migrate := newRootCmd()
	migrate.SetOut(new(bytes.Buffer))
	migrate.SetArgs([]string{"migrate", "--config", configPath})
	if err := migrate.Execute(); err != nil {
		t.Fatalf("migrate failed: %v", err)
	}

	_, gormDB, err := connectFromConfig(configPath)
	if err != nil {
		t.Fatal(err)
	}
	store := ledger.New(gormDB)
	table := "1"
	if err := store.Insert(&models.Image{ID: "a", TableID: &table, Status: models.StatusCompleted}); err != nil {
		t.Fatal(err)
	}

	// An injected reader is the interactivity; the prompt must consult it,
	// not the process stdin.
	cmd := newRootCmd()
	buf := new(bytes.Buffer)
	cmd.SetOut(buf)
	cmd.SetIn(strings.NewReader("y\n"))
	cmd.SetArgs([]string{"clear", "--config", configPath})

	if err := cmd.Execute(); err != nil {
		t.Fatalf("clear failed: %v", err)
	}
	if !strings.Contains(buf.String(), "Deleted 1 record(s)") {
		t.Errorf("expected deletion summary, got: %s", buf.String())
	}
}

func TestClearCmd_InjectedStreamCanAbort(t *testing.T) {
	configPath := writeTestConfig(t)

	migrate := newRootCmd()
	migrate.SetOut(new(bytes.Buffer))
	migrate.SetArgs([]string{"migrate", "--config", configPath})
	if err := migrate.Execute(); err != nil {
		t.Fatalf("migrate failed: %v", err)
	}

	_, gormDB, err := connectFromConfig(configPath)
	if err != nil {
		t.Fatal(err)
	}
	store := ledger.New(gormDB)
	table := "1"
	if err := store.Insert(&models.Image{ID: "a", TableID: &table, Status: models.StatusCompleted}); err != nil {
		t.Fatal(err)
	}

	cmd := newRootCmd()
	buf := new(bytes.Buffer)
	cmd.SetOut(buf)
	cmd.SetIn(strings.NewReader("n\n"))
	cmd.SetArgs([]string{"clear", "--config", configPath})

	if err := cmd.Execute(); err != nil {
		t.Fatalf("clear failed: %v", err)
	}
	if !strings.Contains(buf.String(), "Aborted.") {
		t.Errorf("expected abort notice, got: %s", buf.String())
	}

	remaining, err := store.SelectAll("")
	if err != nil {
		t.Fatal(err)
	}
	if len(remaining) != 1 {
		t.Errorf("remaining = %+v, want the record untouched", remaining)
	}
}

func TestClearCmd_RefusesNonInteractive(t *testing.T) {
	configPath := writeTestConfig(t)

	cmd := newRootCmd()
	cmd.SetOut(new(bytes.Buffer))
	cmd.SetErr(new(bytes.Buffer))
	cmd.SetArgs([]string{"clear", "--config", configPath})

	err := cmd.Execute()
	if err == nil || !strings.Contains(err.Error(), "--yes") {
		t.Errorf("error = %v, want non-interactive refusal", err)
	}
}

func TestClearCmd_Flags(t *testing.T) {
	cmd := newClearCmd()
	for _, flag := range []string{"config", "table", "yes"} {
		if cmd.Flags().Lookup(flag) == nil {
			t.Errorf("expected --%s flag", flag)
		}
	}
}

func TestServeCmd_Flags(t *testing.T) {
	cmd := newServeCmd()
	if cmd.Use != "serve" {
		t.Errorf("Use = %q, want %q", cmd.Use, "serve")
	}
	if cmd.Flags().Lookup("config") == nil {
		t.Error("expected --config flag")
	}
}

func TestFeedConfigFromConfig(t *testing.T) {
	configPath := writeTestConfig(t)
	cfg, _, err := connectFromConfig(configPath)
	if err != nil {
		t.Fatal(err)
	}

	fc := feedConfig(cfg)
	if fc.PollInterval.Milliseconds() != 1000 {
		t.Errorf("poll interval = %v, want 1s", fc.PollInterval)
	}
	if fc.Lifetime.Seconds() != 300 {
		t.Errorf("lifetime = %v, want 5m", fc.Lifetime)
	}
	if len(fc.ExpectedTables) != 2 || fc.ExpectedTables[0] != "1" {
		t.Errorf("expected tables = %v", fc.ExpectedTables)
	}
}

func TestAllModels(t *testing.T) {
	if got := len(db.AllModels()); got != 1 {
		t.Errorf("AllModels len = %d, want 1", got)
	}
}
