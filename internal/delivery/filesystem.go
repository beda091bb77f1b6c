// Package delivery implements the three delivery channels: filesystem
// artifacts, email with attachment, and message-bus publication.
package delivery

import (
	"compress/gzip"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/davolpi-it/export-cron/internal/domain"
)

const (
	tmpDir       = "_tmp"
	moveAttempts = 3
	moveBackoff  = 2 * time.Second
)

// fatalError marks a delivery failure that must not be retried: the
// record is marked fail and the fire is dropped.
type fatalError struct{ err error }

func (e *fatalError) Error() string { return e.err.Error() }
func (e *fatalError) Unwrap() error { return e.err }

// Fatal marks a delivery error as non-retryable.
func Fatal(err error) error { return &fatalError{err: err} }

// IsFatal reports whether err is a delivery failure that must not reach
// the retry scheduler.
func IsFatal(err error) bool {
	var fe *fatalError
	return errors.As(err, &fe)
}

// SpreadsheetWriter serializes a query result to a spreadsheet file.
type SpreadsheetWriter interface {
	Write(path string, columns []string, rows []map[string]any) error
}

// Filesystem materializes export artifacts. The final path never holds a
// partial file: rows are written into a _tmp sibling first and promoted
// with a rename.
type Filesystem struct {
	writer       SpreadsheetWriter
	writeTimeout time.Duration

	// sleep is swapped in tests to skip the move backoff.
	sleep func(time.Duration)
}

func NewFilesystem(writer SpreadsheetWriter, writeTimeout time.Duration) *Filesystem {
	return &Filesystem{writer: writer, writeTimeout: writeTimeout, sleep: time.Sleep}
}

// Deliver writes the artifact into outputDir and returns the final path,
// which is the compressed path when the job asks for compression. A
// timeout writing the rows is retryable; a failure removing a previous
// artifact or promoting the temp file is not.
func (f *Filesystem) Deliver(job domain.JobDefinition, outputDir, filename string, columns []string, rows []map[string]any) (string, error) {
	if !strings.HasSuffix(filename, ".xlsx") {
		filename += ".xlsx"
	}
	finalPath := filepath.Join(outputDir, filename)

	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return "", Fatal(fmt.Errorf("create output dir: %w", err))
	}
	if _, err := os.Stat(finalPath); err == nil {
		if err := os.Remove(finalPath); err != nil {
			return "", Fatal(fmt.Errorf("remove existing artifact: %w", err))
		}
	}

	tmpPath := filepath.Join(outputDir, tmpDir, filename+".tmp.xlsx")
	if err := os.MkdirAll(filepath.Dir(tmpPath), 0o755); err != nil {
		return "", Fatal(fmt.Errorf("create temp dir: %w", err))
	}

	if err := f.writeWithTimeout(tmpPath, columns, rows); err != nil {
		return "", err
	}

	if err := f.move(tmpPath, finalPath); err != nil {
		return "", Fatal(err)
	}

	if job.Output.Compress {
		if gzPath, err := compressArtifact(finalPath); err != nil {
			log.Printf("delivery: compress %s: %v", finalPath, err)
		} else {
			finalPath = gzPath
		}
	}
	return finalPath, nil
}

// writeWithTimeout runs the spreadsheet writer in its own goroutine and
// waits up to the configured timeout. On timeout the goroutine is
// abandoned; whatever it leaves behind stays in _tmp.
func (f *Filesystem) writeWithTimeout(path string, columns []string, rows []map[string]any) error {
	done := make(chan error, 1)
	go func() {
		done <- f.writer.Write(path, columns, rows)
	}()

	timer := time.NewTimer(f.writeTimeout)
	defer timer.Stop()

	select {
	case err := <-done:
		if err != nil {
			return fmt.Errorf("write artifact: %w", err)
		}
		return nil
	case <-timer.C:
		return fmt.Errorf("Timeout scrittura (%ds)", int(f.writeTimeout.Seconds()))
	}
}

func (f *Filesystem) move(tmpPath, finalPath string) error {
	var lastErr error
	for attempt := 1; attempt <= moveAttempts; attempt++ {
		if lastErr = os.Rename(tmpPath, finalPath); lastErr == nil {
			return nil
		}
		log.Printf("delivery: move attempt=%d of %d failed: %v", attempt, moveAttempts, lastErr)
		if attempt < moveAttempts {
			f.sleep(moveBackoff * time.Duration(attempt))
		}
	}
	return fmt.Errorf("move artifact after %d attempts: %w", moveAttempts, lastErr)
}

// compressArtifact gzips path into <base>.xls.gz and removes the
// original on success.
func compressArtifact(path string) (string, error) {
	gzPath := strings.TrimSuffix(path, ".xlsx") + ".xls.gz"

	src, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer src.Close()

	dst, err := os.Create(gzPath)
	if err != nil {
		return "", err
	}
	zw := gzip.NewWriter(dst)
	if _, err := io.Copy(zw, src); err != nil {
		zw.Close()
		dst.Close()
		os.Remove(gzPath)
		return "", err
	}
	if err := zw.Close(); err != nil {
		dst.Close()
		os.Remove(gzPath)
		return "", err
	}
	if err := dst.Close(); err != nil {
		os.Remove(gzPath)
		return "", err
	}

	src.Close()
	if err := os.Remove(path); err != nil {
		log.Printf("delivery: remove uncompressed %s: %v", path, err)
	}
	return gzPath, nil
}
