package core

// session.go holds the per-run state accumulator.
//
// Every import run gets a fresh Session; counters, log entries and the
// cancellation flag live nowhere else. All mutation goes through Session
// methods under its own lock, so a second concurrent run can never
// interleave with this one's state.

import (
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// Session is the mutable state of one import run.
type Session struct {
	ID       string
	OwnerID  uuid.UUID
	FileName string

	cancelled atomic.Bool

	mu       sync.Mutex
	phase    ImportPhase
	stats    ImportStats
	entries  []LogEntry
	failed   []FailedRow
	onChange func(ImportProgress)
}

// NewSession creates a session in the idle phase.
func NewSession(id string, ownerID uuid.UUID, fileName string) *Session {
	return &Session{
		ID:       id,
		OwnerID:  ownerID,
		FileName: fileName,
		phase:    PhaseIdle,
	}
}

// OnChange registers a callback invoked with a progress snapshot whenever
// the session advances. Must be set before the pipeline starts.
func (s *Session) OnChange(fn func(ImportProgress)) {
	s.mu.Lock()
	s.onChange = fn
	s.mu.Unlock()
}

// Cancel requests a cooperative stop. The pipeline checks the flag at row
// and batch boundaries; in-flight batch inserts are not aborted.
func (s *Session) Cancel() { s.cancelled.Store(true) }

// Cancelled reports whether a stop was requested.
func (s *Session) Cancelled() bool { return s.cancelled.Load() }

// Phase returns the current lifecycle phase.
func (s *Session) Phase() ImportPhase {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.phase
}

// Stats returns a copy of the current counters.
func (s *Session) Stats() ImportStats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stats
}

// Progress returns a snapshot for subscribers.
func (s *Session) Progress() ImportProgress {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.progressLocked()
}

func (s *Session) progressLocked() ImportProgress {
	return ImportProgress{
		ImportID: s.ID,
		FileName: s.FileName,
		Phase:    s.phase,
		Stats:    s.stats,
	}
}

// Entries returns a copy of the append-only log.
func (s *Session) Entries() []LogEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]LogEntry, len(s.entries))
	copy(out, s.entries)
	return out
}

// FailedRows returns a copy of the rows that did not import.
func (s *Session) FailedRows() []FailedRow {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]FailedRow, len(s.failed))
	copy(out, s.failed)
	return out
}

// setPhase advances the lifecycle and notifies subscribers.
func (s *Session) setPhase(p ImportPhase) {
	s.mu.Lock()
	s.phase = p
	s.notifyLocked()
	s.mu.Unlock()
}

// setTotal records the row count discovered after parsing.
func (s *Session) setTotal(n int) {
	s.mu.Lock()
	s.stats.Total = n
	s.notifyLocked()
	s.mu.Unlock()
}

// log appends an entry to the session log.
func (s *Session) log(level LogLevel, message, detail, productName string, row int) {
	s.mu.Lock()
	s.entries = append(s.entries, LogEntry{
		ID:          uuid.New().String(),
		Timestamp:   time.Now(),
		Level:       level,
		Message:     message,
		Detail:      detail,
		ProductName: productName,
		RowNumber:   row,
	})
	s.mu.Unlock()
}

// addWarnings logs row warnings and bumps the warning counter.
func (s *Session) addWarnings(warnings []string, productName string, row int) {
	s.mu.Lock()
	for _, w := range warnings {
		s.entries = append(s.entries, LogEntry{
			ID:          uuid.New().String(),
			Timestamp:   time.Now(),
			Level:       LevelWarning,
			Message:     w,
			ProductName: productName,
			RowNumber:   row,
		})
	}
	s.stats.Warnings += len(warnings)
	s.mu.Unlock()
}

// rejectRow records a row that failed validation: the row is skipped,
// counted as processed with an error, and kept for failed-row export.
func (s *Session) rejectRow(row ParsedRow, errs []string, productName string) {
	s.mu.Lock()
	for _, e := range errs {
		s.entries = append(s.entries, LogEntry{
			ID:          uuid.New().String(),
			Timestamp:   time.Now(),
			Level:       LevelError,
			Message:     e,
			ProductName: productName,
			RowNumber:   row.Line,
		})
	}
	s.failed = append(s.failed, FailedRow{
		Line:   row.Line,
		Reason: strings.Join(errs, "; "),
		Data:   row.Raw,
	})
	s.stats.Errors++
	s.stats.Processed++
	s.stats.Skipped++
	s.mu.Unlock()
}

// batchSucceeded records one persisted batch: one success entry per record.
func (s *Session) batchSucceeded(records []Record) {
	s.mu.Lock()
	for _, rec := range records {
		s.entries = append(s.entries, LogEntry{
			ID:          uuid.New().String(),
			Timestamp:   time.Now(),
			Level:       LevelSuccess,
			Message:     "product imported",
			ProductName: rec.Name(),
			RowNumber:   rec.Line,
		})
	}
	s.stats.Success += len(records)
	s.stats.Processed += len(records)
	s.notifyLocked()
	s.mu.Unlock()
}

// batchFailed records a batch whose insert failed: every record in the
// batch is treated as errored, in line with the all-or-nothing policy.
func (s *Session) batchFailed(records []Record, reason string, rawByLine map[int][]string) {
	s.mu.Lock()
	for _, rec := range records {
		s.entries = append(s.entries, LogEntry{
			ID:          uuid.New().String(),
			Timestamp:   time.Now(),
			Level:       LevelError,
			Message:     "batch insert failed",
			Detail:      reason,
			ProductName: rec.Name(),
			RowNumber:   rec.Line,
		})
		s.failed = append(s.failed, FailedRow{
			Line:   rec.Line,
			Reason: reason,
			Data:   rawByLine[rec.Line],
		})
	}
	s.stats.Errors += len(records)
	s.stats.Processed += len(records)
	s.notifyLocked()
	s.mu.Unlock()
}

// notify pushes a progress snapshot to the registered callback.
func (s *Session) notify() {
	s.mu.Lock()
	s.notifyLocked()
	s.mu.Unlock()
}

func (s *Session) notifyLocked() {
	if s.onChange != nil {
		s.onChange(s.progressLocked())
	}
}
