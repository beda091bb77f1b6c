package history

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/davolpi-it/export-cron/internal/domain"
)

const metricsFile = "kafka_metrics.json"

// MetricsStore persists one MetricEntry per messaging operation for the
// operational dashboards. It lives in its own document so its retention
// can be managed independently of the execution history.
type MetricsStore struct {
	mu        sync.Mutex
	exportDir string
	clock     func() time.Time
}

func NewMetricsStore(exportDir string) *MetricsStore {
	return &MetricsStore{exportDir: exportDir, clock: time.Now}
}

// Record appends one entry. Errors are returned but callers treat the
// store as best-effort telemetry and only log them.
func (s *MetricsStore) Record(entry domain.MetricEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries := s.load()
	entries = append(entries, entry)
	return writeDocument(s.exportDir, metricsFile+".tmp",
		filepath.Join(s.exportDir, metricsFile), entries)
}

// Entries returns the persisted metrics, oldest first.
func (s *MetricsStore) Entries() []domain.MetricEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.load()
}

// Cleanup removes entries older than retentionDays and reports how many
// were purged.
func (s *MetricsStore) Cleanup(retentionDays int) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries := s.load()
	cutoff := s.clock().AddDate(0, 0, -retentionDays)

	kept := entries[:0]
	for _, e := range entries {
		if !e.Timestamp.Before(cutoff) {
			kept = append(kept, e)
		}
	}
	removed := len(entries) - len(kept)
	if removed == 0 {
		return 0, nil
	}
	if err := writeDocument(s.exportDir, metricsFile+".tmp",
		filepath.Join(s.exportDir, metricsFile), kept); err != nil {
		return 0, fmt.Errorf("persist cleanup: %w", err)
	}
	return removed, nil
}

func (s *MetricsStore) load() []domain.MetricEntry {
	data, err := os.ReadFile(filepath.Join(s.exportDir, metricsFile))
	if err != nil || len(data) == 0 {
		return nil
	}
	var entries []domain.MetricEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		log.Printf("metrics: unreadable document, restarting empty: %v", err)
		return nil
	}
	return entries
}
