package history

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/davolpi-it/export-cron/internal/domain"
)

func record(query string, status domain.ExecutionStatus) domain.ExecutionRecord {
	return domain.ExecutionRecord{
		Query:      query,
		Connection: "dwh",
		Timestamp:  time.Date(2025, 10, 12, 8, 0, 0, 0, time.UTC),
		Status:     status,
	}
}

func TestRecorderLoad_MissingFile(t *testing.T) {
	r := NewRecorder(t.TempDir())
	if err := r.Load(); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got := r.Records(); len(got) != 0 {
		t.Errorf("records = %d, want 0", len(got))
	}
}

func TestRecorderLoad_EmptyFile(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, historyFile), nil, 0o644); err != nil {
		t.Fatal(err)
	}
	r := NewRecorder(dir)
	if err := r.Load(); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got := r.Records(); len(got) != 0 {
		t.Errorf("records = %d, want 0", len(got))
	}
}

func TestRecorderLoad_CorruptFileQuarantined(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, historyFile), []byte("{not json"), 0o644); err != nil {
		t.Fatal(err)
	}

	r := NewRecorder(dir)
	r.clock = func() time.Time { return time.Date(2025, 10, 12, 8, 0, 0, 0, time.UTC) }
	if err := r.Load(); err != nil {
		t.Fatalf("corrupt document must not fail Load: %v", err)
	}
	if got := r.Records(); len(got) != 0 {
		t.Errorf("records = %d, want 0 after quarantine", len(got))
	}

	backup := filepath.Join(dir, "scheduler_history_corrupt_20251012080000.json")
	data, err := os.ReadFile(backup)
	if err != nil {
		t.Fatalf("quarantine backup not written: %v", err)
	}
	if string(data) != "{not json" {
		t.Errorf("backup content = %q", data)
	}
}

func TestRecorderAppend_Persists(t *testing.T) {
	dir := t.TempDir()
	r := NewRecorder(dir)
	r.Append(record("A.sql", domain.ExecutionStatusSuccess))
	r.Append(record("B.sql", domain.ExecutionStatusFail))

	fresh := NewRecorder(dir)
	if err := fresh.Load(); err != nil {
		t.Fatal(err)
	}
	got := fresh.Records()
	if len(got) != 2 {
		t.Fatalf("reloaded %d records, want 2", len(got))
	}
	if got[0].Query != "A.sql" || got[1].Query != "B.sql" {
		t.Errorf("order = %s, %s", got[0].Query, got[1].Query)
	}
	if got[1].Status != domain.ExecutionStatusFail {
		t.Errorf("status = %s", got[1].Status)
	}
}

func TestRecorderAppend_NoTempFileLeftBehind(t *testing.T) {
	dir := t.TempDir()
	r := NewRecorder(dir)
	r.Append(record("A.sql", domain.ExecutionStatusSuccess))

	entries, err := os.ReadDir(filepath.Join(dir, tmpDir))
	if err != nil {
		t.Fatal(err)
	}
	for _, e := range entries {
		if strings.HasSuffix(e.Name(), ".tmp") {
			t.Errorf("temp file left behind: %s", e.Name())
		}
	}
}

func TestRecorderUpdate_TargetsOwnRecord(t *testing.T) {
	dir := t.TempDir()
	r := NewRecorder(dir)
	handleA := r.Append(record("A.sql", domain.ExecutionStatusSuccess))
	handleB := r.Append(record("B.sql", domain.ExecutionStatusSuccess))

	// A's update lands on A even though B was appended after it.
	r.Update(handleA, func(rec *domain.ExecutionRecord) {
		rec.Status = domain.ExecutionStatusFail
		rec.Error = "delivery failed"
	})

	got := r.Records()
	if got[handleB].Status != domain.ExecutionStatusSuccess || got[handleB].Error != "" {
		t.Errorf("update leaked onto another record: %+v", got[handleB])
	}
	if got[handleA].Status != domain.ExecutionStatusFail || got[handleA].Error != "delivery failed" {
		t.Errorf("updated record = %+v", got[handleA])
	}

	fresh := NewRecorder(dir)
	if err := fresh.Load(); err != nil {
		t.Fatal(err)
	}
	if reloaded := fresh.Records(); reloaded[handleA].Error != "delivery failed" {
		t.Error("Update mutation not persisted")
	}
}

func TestRecorderUpdate_OutOfRangeHandle(t *testing.T) {
	r := NewRecorder(t.TempDir())
	r.Append(record("A.sql", domain.ExecutionStatusSuccess))
	for _, handle := range []int{-1, 1, 99} {
		r.Update(handle, func(rec *domain.ExecutionRecord) {
			t.Errorf("fn called for handle %d", handle)
		})
	}
}

func TestRecorderRecords_ReturnsCopy(t *testing.T) {
	dir := t.TempDir()
	r := NewRecorder(dir)
	r.Append(record("A.sql", domain.ExecutionStatusSuccess))

	got := r.Records()
	got[0].Query = "mutated"
	if r.Records()[0].Query != "A.sql" {
		t.Error("Records exposed internal slice")
	}
}

func TestRecorderSave_EmptyHistoryWritesArray(t *testing.T) {
	dir := t.TempDir()
	r := NewRecorder(dir)
	r.Append(record("A.sql", domain.ExecutionStatusSuccess))

	// Force a save of an empty slice through the document writer.
	if err := writeDocument(dir, historyFile+".tmp", filepath.Join(dir, historyFile), []domain.ExecutionRecord(nil)); err != nil {
		t.Fatal(err)
	}
	data, err := os.ReadFile(filepath.Join(dir, historyFile))
	if err != nil {
		t.Fatal(err)
	}
	var records []domain.ExecutionRecord
	if err := json.Unmarshal(data, &records); err != nil {
		t.Fatalf("empty document not valid JSON array: %q", data)
	}
}
