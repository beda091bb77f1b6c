package history

import (
	"testing"
	"time"

	"github.com/davolpi-it/export-cron/internal/domain"
)

func metricAt(ts time.Time, topic string) domain.MetricEntry {
	return domain.MetricEntry{
		Timestamp:    ts,
		Topic:        topic,
		MessagesSent: 10,
		Operation:    "batch",
	}
}

func TestMetricsStoreRecord(t *testing.T) {
	dir := t.TempDir()
	s := NewMetricsStore(dir)

	now := time.Date(2025, 10, 12, 8, 0, 0, 0, time.UTC)
	if err := s.Record(metricAt(now, "exports.a")); err != nil {
		t.Fatalf("Record: %v", err)
	}
	if err := s.Record(metricAt(now.Add(time.Hour), "exports.b")); err != nil {
		t.Fatalf("Record: %v", err)
	}

	// A fresh store over the same directory must see both entries.
	entries := NewMetricsStore(dir).Entries()
	if len(entries) != 2 {
		t.Fatalf("entries = %d, want 2", len(entries))
	}
	if entries[0].Topic != "exports.a" || entries[1].Topic != "exports.b" {
		t.Errorf("order = %s, %s", entries[0].Topic, entries[1].Topic)
	}
}

func TestMetricsStoreEntries_Empty(t *testing.T) {
	s := NewMetricsStore(t.TempDir())
	if got := s.Entries(); len(got) != 0 {
		t.Errorf("entries = %d, want 0", len(got))
	}
}

func TestMetricsStoreCleanup(t *testing.T) {
	dir := t.TempDir()
	s := NewMetricsStore(dir)
	now := time.Date(2025, 10, 12, 8, 0, 0, 0, time.UTC)
	s.clock = func() time.Time { return now }

	if err := s.Record(metricAt(now.AddDate(0, 0, -120), "old")); err != nil {
		t.Fatal(err)
	}
	if err := s.Record(metricAt(now.AddDate(0, 0, -91), "old")); err != nil {
		t.Fatal(err)
	}
	if err := s.Record(metricAt(now.AddDate(0, 0, -10), "recent")); err != nil {
		t.Fatal(err)
	}

	removed, err := s.Cleanup(90)
	if err != nil {
		t.Fatalf("Cleanup: %v", err)
	}
	if removed != 2 {
		t.Errorf("removed = %d, want 2", removed)
	}

	entries := s.Entries()
	if len(entries) != 1 || entries[0].Topic != "recent" {
		t.Errorf("kept = %+v", entries)
	}
}

func TestMetricsStoreCleanup_NothingToRemove(t *testing.T) {
	dir := t.TempDir()
	s := NewMetricsStore(dir)
	now := time.Date(2025, 10, 12, 8, 0, 0, 0, time.UTC)
	s.clock = func() time.Time { return now }

	if err := s.Record(metricAt(now, "fresh")); err != nil {
		t.Fatal(err)
	}
	removed, err := s.Cleanup(90)
	if err != nil {
		t.Fatalf("Cleanup: %v", err)
	}
	if removed != 0 {
		t.Errorf("removed = %d, want 0", removed)
	}
	if got := s.Entries(); len(got) != 1 {
		t.Errorf("entries = %d, want 1", len(got))
	}
}
