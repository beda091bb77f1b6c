// Package history owns the two durable JSON documents under the export
// root: the execution history and the publish-metrics log. Every write
// persists the whole document through a temp file in _tmp followed by an
// atomic rename, so a partially written document is never observable.
package history

import (
	"encoding/json"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/davolpi-it/export-cron/internal/domain"
)

const (
	historyFile = "scheduler_history.json"
	tmpDir      = "_tmp"
)

// Recorder is the exclusive owner of the execution history document.
type Recorder struct {
	mu        sync.Mutex
	exportDir string
	records   []domain.ExecutionRecord
	clock     func() time.Time
}

func NewRecorder(exportDir string) *Recorder {
	return &Recorder{exportDir: exportDir, clock: time.Now}
}

// Load reads the history document. An empty or missing file yields an
// empty history; a corrupt one is quarantined to a timestamped backup
// and the history restarts empty rather than crashing.
func (r *Recorder) Load() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	path := filepath.Join(r.exportDir, historyFile)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			r.records = nil
			return nil
		}
		return fmt.Errorf("read history: %w", err)
	}
	if len(data) == 0 {
		r.records = nil
		return nil
	}

	var records []domain.ExecutionRecord
	if err := json.Unmarshal(data, &records); err != nil {
		backup := filepath.Join(r.exportDir,
			fmt.Sprintf("scheduler_history_corrupt_%s.json", r.clock().UTC().Format("20060102150405")))
		if cpErr := copyFile(path, backup); cpErr != nil {
			log.Printf("history: corrupt document, backup failed: %v (parse error: %v)", cpErr, err)
		} else {
			log.Printf("history: corrupt document quarantined to %s: %v", backup, err)
		}
		r.records = nil
		return nil
	}

	r.records = records
	return nil
}

// Append adds one record, persists the document, and returns the
// record's handle. Records are never removed in-process, so the handle
// stays valid for the life of the recorder.
func (r *Recorder) Append(rec domain.ExecutionRecord) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records = append(r.records, rec)
	r.save()
	return len(r.records) - 1
}

// Update mutates the record appended under handle through fn and
// persists the document. Each fire updates its own record, so
// concurrent fires cannot write their delivery outcome onto another
// fire's record.
func (r *Recorder) Update(handle int, fn func(*domain.ExecutionRecord)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if handle < 0 || handle >= len(r.records) {
		return
	}
	fn(&r.records[handle])
	r.save()
}

// Records returns a copy of the in-memory history, most recent last.
func (r *Recorder) Records() []domain.ExecutionRecord {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]domain.ExecutionRecord, len(r.records))
	copy(out, r.records)
	return out
}

func (r *Recorder) save() {
	path := filepath.Join(r.exportDir, historyFile)
	if err := writeDocument(r.exportDir, historyFile+".tmp", path, r.records); err != nil {
		log.Printf("history: cannot save document: %v", err)
	}
}

// writeDocument marshals v and replaces dst atomically via a temp file
// inside <dir>/_tmp. The rename stays on one volume so it is atomic.
func writeDocument(dir, tmpName, dst string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal: %w", err)
	}
	if data == nil || string(data) == "null" {
		data = []byte("[]")
	}

	tmp := filepath.Join(dir, tmpDir)
	if err := os.MkdirAll(tmp, 0o755); err != nil {
		return fmt.Errorf("create tmp dir: %w", err)
	}
	tmpPath := filepath.Join(tmp, tmpName)
	if err := os.WriteFile(tmpPath, data, 0o644); err != nil {
		return fmt.Errorf("write temp: %w", err)
	}
	if err := os.Rename(tmpPath, dst); err != nil {
		return fmt.Errorf("replace document: %w", err)
	}
	return nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer out.Close()
	_, err = io.Copy(out, in)
	return err
}
