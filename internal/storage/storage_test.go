package storage

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"shaker/internal/report"
	"shaker/internal/slogutil"
)

func setupTestDB(t *testing.T) (*DB, string) {
	t.Helper()
	tmpDir := t.TempDir()

	db, err := Open(tmpDir, slogutil.NewDiscardLogger())
	if err != nil {
		t.Fatalf("Failed to open database: %v", err)
	}
	t.Cleanup(func() {
		if err := db.Close(); err != nil {
			t.Errorf("Failed to close database: %v", err)
		}
	})
	return db, tmpDir
}

func sampleReport(id string, at time.Time) *report.Report {
	return &report.Report{
		PassID:      id,
		GeneratedAt: at,
		Entries:     []string{"/app/index.js"},
		Summary:     report.Summary{ModulesIn: 3, ModulesOut: 2, PartsKept: 4, PartsDropped: 1, SourceBytes: 120, DurationMs: 7},
		Modules: []report.ModuleReport{
			{Path: "/app/index.js", Full: true, LiveBindings: []string{"*"}, Bytes: 80, Hash: "aa"},
			{Path: "/app/math.js", LiveBindings: []string{"add"}, Bytes: 40},
		},
		Diagnostics: []report.DiagnosticReport{
			{Code: "UNRESOLVED_OPTIONAL_IMPORT", Module: "/app/index.js", Specifier: "gone", Message: "optional import kept as a stub"},
		},
	}
}

func TestDatabaseInitialization(t *testing.T) {
	db, tmpDir := setupTestDB(t)

	dbPath := filepath.Join(tmpDir, ".shaker", "shaker.db")
	if _, err := os.Stat(dbPath); os.IsNotExist(err) {
		t.Fatalf("Database file was not created at %s", dbPath)
	}
	if db.Path() != dbPath {
		t.Errorf("Path() = %s, want %s", db.Path(), dbPath)
	}

	version, err := db.getSchemaVersion()
	if err != nil {
		t.Fatalf("Failed to get schema version: %v", err)
	}
	if version != currentSchemaVersion {
		t.Errorf("Expected schema version %d, got %d", currentSchemaVersion, version)
	}
}

func TestDatabaseReopen(t *testing.T) {
	tmpDir := t.TempDir()

	db, err := Open(tmpDir, nil)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	if err := NewRunRepository(db).Save(sampleReport("p1", time.Now().UTC().Truncate(time.Second)), "graph.json"); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	db.Close()

	db, err = Open(tmpDir, nil)
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	defer db.Close()

	runs, err := NewRunRepository(db).List(0)
	if err != nil || len(runs) != 1 {
		t.Errorf("List after reopen = %d runs, %v", len(runs), err)
	}
}

func TestMigrateFromV1(t *testing.T) {
	db, _ := setupTestDB(t)

	if _, err := db.conn.Exec("DROP TABLE run_diagnostics"); err != nil {
		t.Fatal(err)
	}
	if _, err := db.conn.Exec("UPDATE schema_version SET version = 1"); err != nil {
		t.Fatal(err)
	}

	if err := db.runMigrations(); err != nil {
		t.Fatalf("runMigrations failed: %v", err)
	}
	if v, _ := db.getSchemaVersion(); v != currentSchemaVersion {
		t.Errorf("version after migration = %d, want %d", v, currentSchemaVersion)
	}
	if _, err := db.conn.Exec("SELECT count(*) FROM run_diagnostics"); err != nil {
		t.Errorf("run_diagnostics missing after migration: %v", err)
	}
}

func TestRunRepository_SaveAndGet(t *testing.T) {
	db, _ := setupTestDB(t)
	repo := NewRunRepository(db)
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	if err := repo.Save(sampleReport("p1", at), "graph.json"); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	run, err := repo.Get("p1")
	if err != nil || run == nil {
		t.Fatalf("Get failed: %v", err)
	}
	if !run.CreatedAt.Equal(at) || run.Input != "graph.json" || run.PartsDropped != 1 {
		t.Errorf("run = %+v", run)
	}
	if !reflect.DeepEqual(run.Entries, []string{"/app/index.js"}) {
		t.Errorf("Entries = %v", run.Entries)
	}

	modules, err := repo.Modules("p1")
	if err != nil {
		t.Fatalf("Modules failed: %v", err)
	}
	if len(modules) != 2 || !modules[0].Full || modules[0].Hash != "aa" || modules[1].Hash != "" {
		t.Errorf("modules = %+v", modules)
	}
	if !reflect.DeepEqual(modules[1].LiveBindings, []string{"add"}) {
		t.Errorf("LiveBindings = %v", modules[1].LiveBindings)
	}

	diags, err := repo.Diagnostics("p1")
	if err != nil || len(diags) != 1 || diags[0].Specifier != "gone" {
		t.Errorf("diagnostics = %+v, %v", diags, err)
	}

	rep, err := repo.Report("p1")
	if err != nil || rep == nil || rep.Summary.SourceBytes != 120 {
		t.Errorf("Report = %+v, %v", rep, err)
	}

	missing, err := repo.Get("nope")
	if err != nil || missing != nil {
		t.Errorf("Get(nope) = %v, %v; want nil, nil", missing, err)
	}
}

func TestRunRepository_DuplicateRollsBack(t *testing.T) {
	db, _ := setupTestDB(t)
	repo := NewRunRepository(db)

	rep := sampleReport("p1", time.Now().UTC().Truncate(time.Second))
	if err := repo.Save(rep, "a"); err != nil {
		t.Fatal(err)
	}
	if err := repo.Save(rep, "b"); err == nil {
		t.Fatal("saving the same pass twice should fail")
	}

	run, _ := repo.Get("p1")
	if run.Input != "a" {
		t.Errorf("Input = %s, want a", run.Input)
	}
}

func TestRunRepository_ListAndPrune(t *testing.T) {
	db, _ := setupTestDB(t)
	repo := NewRunRepository(db)
	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	for i, id := range []string{"p1", "p2", "p3"} {
		if err := repo.Save(sampleReport(id, base.Add(time.Duration(i)*time.Hour)), "graph.json"); err != nil {
			t.Fatal(err)
		}
	}

	runs, err := repo.List(2)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(runs) != 2 || runs[0].PassID != "p3" || runs[1].PassID != "p2" {
		t.Errorf("List(2) = %v", runs)
	}

	history, err := repo.ModuleHistory("/app/math.js")
	if err != nil || len(history) != 3 || history[0].PassID != "p3" {
		t.Errorf("ModuleHistory = %v, %v", history, err)
	}

	removed, err := repo.Prune(1)
	if err != nil || removed != 2 {
		t.Errorf("Prune(1) = %d, %v; want 2", removed, err)
	}
	modules, _ := repo.Modules("p1")
	if len(modules) != 0 {
		t.Error("pruned run modules should be removed")
	}
}
