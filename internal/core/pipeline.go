package core

// pipeline.go drives one import run end to end:
//
//	content -> Parse -> per-row validate -> transform -> batched submit
//
// Row and batch failures are accumulated, never fatal; the session still
// reaches the completed phase. Only an empty file or an unexpected panic
// moves the session to failed. Cancellation is polled before each row and
// each batch and stops cleanly with partial counters intact.

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// rowCheckInterval is how often (in rows) validation notifies subscribers.
const rowCheckInterval = 100

// Pipeline runs import sessions against a record sink.
type Pipeline struct {
	Sink      RecordSink
	BatchSize int
	Pause     time.Duration
}

// Run executes the full import for one session and returns its result.
func (p *Pipeline) Run(ctx context.Context, sess *Session, content string, mappings []FieldMapping) (result *ImportResult) {
	start := time.Now()

	defer func() {
		if r := recover(); r != nil {
			msg := fmt.Sprintf("internal error: %v", r)
			sess.log(LevelError, "import failed", msg, "", 0)
			sess.setPhase(PhaseFailed)
			result = p.result(sess, start, msg)
		}
	}()

	sess.setPhase(PhaseReading)
	parsed, err := Parse(content)
	if err != nil {
		sess.log(LevelError, "could not read file", err.Error(), "", 0)
		sess.setPhase(PhaseFailed)
		return p.result(sess, start, err.Error())
	}

	sess.setTotal(len(parsed.Rows))
	sess.log(LevelInfo, fmt.Sprintf("parsed %d rows (%d columns, delimiter %q)",
		len(parsed.Rows), len(parsed.Headers), parsed.Delimiter), "", "", 0)

	sess.setPhase(PhaseValidating)

	pending := make([]Record, 0, len(parsed.Rows))
	rawByLine := make(map[int][]string, len(parsed.Rows))

	for i, row := range parsed.Rows {
		if sess.Cancelled() || ctx.Err() != nil {
			return p.cancelled(sess, start)
		}

		name := rowProductName(row, mappings)
		issues := ValidateRow(row, mappings)

		if !issues.Valid() {
			sess.rejectRow(row, issues.Errors, name)
			continue
		}
		// Warnings only count for rows that go on to import.
		if len(issues.Warnings) > 0 {
			sess.addWarnings(issues.Warnings, name, row.Line)
		}

		rec := TransformRow(row, mappings)
		pending = append(pending, rec)
		rawByLine[row.Line] = row.Raw

		if i%rowCheckInterval == 0 {
			sess.notify()
		}
	}

	sess.setPhase(PhaseImporting)

	submitter := &BatchSubmitter{
		Sink:      p.Sink,
		BatchSize: p.BatchSize,
		Pause:     p.Pause,
	}
	submitter.Submit(ctx, sess, pending, rawByLine)

	if sess.Cancelled() || ctx.Err() != nil {
		return p.cancelled(sess, start)
	}

	stats := sess.Stats()
	sess.log(LevelInfo, fmt.Sprintf("import finished: %d imported, %d failed, %d warnings",
		stats.Success, stats.Errors, stats.Warnings), "", "", 0)
	sess.setPhase(PhaseCompleted)

	return p.result(sess, start, "")
}

// cancelled finalizes a run stopped by the user. Already-submitted batches
// are not rolled back; counters reflect work completed so far.
func (p *Pipeline) cancelled(sess *Session, start time.Time) *ImportResult {
	sess.log(LevelWarning, "import cancelled by user", "", "", 0)
	sess.setPhase(PhaseCancelled)
	return p.result(sess, start, "")
}

func (p *Pipeline) result(sess *Session, start time.Time, errMsg string) *ImportResult {
	return &ImportResult{
		ImportID:   sess.ID,
		OwnerID:    sess.OwnerID,
		FileName:   sess.FileName,
		Phase:      sess.Phase(),
		Stats:      sess.Stats(),
		Entries:    sess.Entries(),
		FailedRows: sess.FailedRows(),
		Duration:   time.Since(start),
		Error:      errMsg,
	}
}

// rowProductName resolves the row's name cell for log entries, before the
// row has been validated or transformed.
func rowProductName(row ParsedRow, mappings []FieldMapping) string {
	m, ok := mappingFor(mappings, FieldName)
	if !ok {
		return ""
	}
	return strings.TrimSpace(row.Cells[m.Source])
}
