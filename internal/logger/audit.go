// internal/logger/audit.go
package logger

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"
)

// ExitAuditRecord is one exit decision as written to the audit CSV.
type ExitAuditRecord struct {
	Timestamp             time.Time
	PositionID            string
	Token                 string
	Reason                string
	Urgency               string
	TargetPrice           *float64
	PartialExitPercentage *float64
}

// ExitAuditWriter appends exit decisions to a CSV file with buffered writes
// and a periodic flush, safe for concurrent use.
type ExitAuditWriter struct {
	mu       sync.Mutex
	writer   *csv.Writer
	file     *os.File
	ticker   *time.Ticker
	done     chan struct{}
	logger   *zap.Logger
	filePath string

	writtenRecords uint64
	flushCount     uint64
}

// NewExitAuditWriter opens (or creates) the audit CSV at filePath, writing
// the header when the file is empty.
func NewExitAuditWriter(filePath string, flushInterval time.Duration, logger *zap.Logger) (*ExitAuditWriter, error) {
	dir := filepath.Dir(filePath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}

	file, err := os.OpenFile(filePath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}

	stat, err := file.Stat()
	if err != nil {
		file.Close()
		return nil, fmt.Errorf("failed to stat file: %w", err)
	}

	w := &ExitAuditWriter{
		writer:   csv.NewWriter(file),
		file:     file,
		ticker:   time.NewTicker(flushInterval),
		done:     make(chan struct{}),
		logger:   logger,
		filePath: filePath,
	}

	if stat.Size() == 0 {
		header := []string{"timestamp", "position_id", "token", "reason", "urgency", "target_price", "partial_exit_pct"}
		if err := w.writer.Write(header); err != nil {
			file.Close()
			return nil, fmt.Errorf("failed to write header: %w", err)
		}
		w.writer.Flush()
	}

	go w.periodicFlush()

	return w, nil
}

// WriteExit appends one exit decision.
func (w *ExitAuditWriter) WriteExit(rec ExitAuditRecord) error {
	if rec.Timestamp.IsZero() {
		rec.Timestamp = time.Now().UTC()
	}

	row := []string{
		rec.Timestamp.Format(time.RFC3339Nano),
		rec.PositionID,
		rec.Token,
		rec.Reason,
		rec.Urgency,
		formatOptional(rec.TargetPrice),
		formatOptional(rec.PartialExitPercentage),
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if err := w.writer.Write(row); err != nil {
		return fmt.Errorf("failed to write record: %w", err)
	}
	w.writtenRecords++
	return nil
}

// Flush forces buffered records to disk.
func (w *ExitAuditWriter) Flush() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.writer.Flush()
	if err := w.writer.Error(); err != nil {
		return fmt.Errorf("CSV writer error: %w", err)
	}
	if err := w.file.Sync(); err != nil {
		return fmt.Errorf("failed to sync file: %w", err)
	}
	w.flushCount++
	return nil
}

func (w *ExitAuditWriter) periodicFlush() {
	for {
		select {
		case <-w.ticker.C:
			if err := w.Flush(); err != nil {
				w.logger.Error("Periodic audit flush failed",
					zap.String("file", w.filePath),
					zap.Error(err))
			}
		case <-w.done:
			return
		}
	}
}

// Close stops the flush loop and closes the file.
func (w *ExitAuditWriter) Close() error {
	close(w.done)
	w.ticker.Stop()

	w.mu.Lock()
	defer w.mu.Unlock()

	w.writer.Flush()
	if err := w.writer.Error(); err != nil {
		return fmt.Errorf("CSV writer error on close: %w", err)
	}
	if err := w.file.Close(); err != nil {
		return fmt.Errorf("failed to close file: %w", err)
	}

	w.logger.Info("Exit audit writer closed",
		zap.String("file", w.filePath),
		zap.Uint64("writtenRecords", w.writtenRecords))
	return nil
}

// GetStats returns writer statistics.
func (w *ExitAuditWriter) GetStats() (records, flushes uint64) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.writtenRecords, w.flushCount
}

func formatOptional(v *float64) string {
	if v == nil {
		return ""
	}
	return strconv.FormatFloat(*v, 'f', -1, 64)
}
