package core

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Target field names with special coercion rules. Any other target is
// stored as trimmed text.
const (
	FieldName        = "name"
	FieldPrice       = "price"
	FieldCostPrice   = "cost_price"
	FieldStock       = "stock"
	FieldWeight      = "weight"
	FieldImages      = "images"
	FieldTags        = "tags"
	FieldDescription = "description"
	FieldSKU         = "sku"
	FieldCategory    = "category"
	FieldBrand       = "brand"
)

// requiredFields must be mapped and non-empty for a row to import.
var requiredFields = []string{FieldName, FieldPrice}

// FieldMapping links a CSV source column to an internal product field.
// Mappings are supplied by the caller (typically from a mapping UI);
// entries with an empty Target are ignored by the pipeline.
type FieldMapping struct {
	Source     string  `json:"source"`
	Target     string  `json:"target"`
	Confidence float64 `json:"confidence"`
	Manual     bool    `json:"manual"`
}

// ParsedRow is one data row of a parsed file: raw string cells keyed by
// header name, plus the 1-based line number in the source file.
type ParsedRow struct {
	Line  int
	Cells map[string]string
	Raw   []string
}

// ParsedFile is the output of Parse.
type ParsedFile struct {
	Headers   []string
	Rows      []ParsedRow
	Delimiter rune
}

// RowIssues is the outcome of validating a single row.
// A row is valid if and only if it has no errors; warnings never block.
type RowIssues struct {
	Errors   []string
	Warnings []string
}

// Valid reports whether the row may proceed to transform and import.
func (r RowIssues) Valid() bool { return len(r.Errors) == 0 }

// Record is a transformed row ready for persistence: coerced values keyed
// by target field name, tagged with the originating source line.
type Record struct {
	Line   int
	Fields map[string]any
}

// Name returns the record's product name, if set.
func (r Record) Name() string {
	if v, ok := r.Fields[FieldName].(string); ok {
		return v
	}
	return ""
}

// ImportPhase is the lifecycle stage of an import session.
type ImportPhase string

const (
	PhaseIdle       ImportPhase = "idle"
	PhaseReading    ImportPhase = "reading"
	PhaseValidating ImportPhase = "validating"
	PhaseImporting  ImportPhase = "importing"
	PhaseCompleted  ImportPhase = "completed"
	PhaseCancelled  ImportPhase = "cancelled"
	PhaseFailed     ImportPhase = "failed"
)

// Terminal reports whether the phase is an end state.
func (p ImportPhase) Terminal() bool {
	return p == PhaseCompleted || p == PhaseCancelled || p == PhaseFailed
}

// ImportStats holds the running counters for one import session.
// At completion, Processed = Success + Errors.
type ImportStats struct {
	Total     int `json:"total"`
	Processed int `json:"processed"`
	Success   int `json:"success"`
	Errors    int `json:"errors"`
	Warnings  int `json:"warnings"`
	Skipped   int `json:"skipped"`
}

// LogLevel is the severity of a session log entry.
type LogLevel string

const (
	LevelInfo    LogLevel = "info"
	LevelSuccess LogLevel = "success"
	LevelWarning LogLevel = "warning"
	LevelError   LogLevel = "error"
)

// LogEntry is one entry in a session's append-only log.
// Entries are never mutated after creation.
type LogEntry struct {
	ID          string    `json:"id"`
	Timestamp   time.Time `json:"timestamp"`
	Level       LogLevel  `json:"level"`
	Message     string    `json:"message"`
	Detail      string    `json:"detail,omitempty"`
	ProductName string    `json:"productName,omitempty"`
	RowNumber   int       `json:"rowNumber,omitempty"`
}

// FailedRow records a row that did not import, with its raw cells for export.
type FailedRow struct {
	Line   int      `json:"line"`
	Reason string   `json:"reason"`
	Data   []string `json:"data,omitempty"`
}

// ImportProgress is a snapshot of a running session, sent to subscribers.
type ImportProgress struct {
	ImportID string      `json:"importId"`
	FileName string      `json:"fileName"`
	Phase    ImportPhase `json:"phase"`
	Stats    ImportStats `json:"stats"`
}

// Percent returns row progress as 0-100.
func (p ImportProgress) Percent() int {
	if p.Stats.Total <= 0 {
		return 0
	}
	return (p.Stats.Processed * 100) / p.Stats.Total
}

// ImportResult is the terminal outcome of an import session.
type ImportResult struct {
	ImportID   string        `json:"importId"`
	OwnerID    uuid.UUID     `json:"ownerId"`
	FileName   string        `json:"fileName"`
	Phase      ImportPhase   `json:"phase"`
	Stats      ImportStats   `json:"stats"`
	Entries    []LogEntry    `json:"entries"`
	FailedRows []FailedRow   `json:"failedRows,omitempty"`
	Duration   time.Duration `json:"duration"`
	Error      string        `json:"error,omitempty"` // non-empty only when Phase is PhaseFailed
}

// RunSummary is the persisted record of a finished import session.
type RunSummary struct {
	ImportID string
	OwnerID  uuid.UUID
	FileName string
	Stats    ImportStats
	Status   ImportPhase
	Duration time.Duration
}

// RecordSink persists one batch of transformed records. A returned error
// fails the entire batch; no partial-batch granularity is assumed.
type RecordSink interface {
	InsertBatch(ctx context.Context, ownerID uuid.UUID, importID string, records []Record) error
}

// RunRecorder persists finished runs and their failed rows for history.
type RunRecorder interface {
	RecordRun(ctx context.Context, run RunSummary) error
	RecordFailedRows(ctx context.Context, importID string, rows []FailedRow) error
}
