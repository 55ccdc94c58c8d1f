package web

import (
	"encoding/csv"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/castlebay/importsvc/internal/logging"
)

// handleHistory returns the caller's import runs, newest first.
func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		writeError(w, http.StatusServiceUnavailable, "history is not available")
		return
	}

	owner, err := ownerFromRequest(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 && n <= 500 {
			limit = n
		}
	}

	entries, err := s.store.History(r.Context(), owner, limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, map[string]any{"runs": entries})
}

// handleExportFailedRows exports a run's rejected rows as CSV so the
// user can fix and re-import them.
func (s *Server) handleExportFailedRows(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		writeError(w, http.StatusServiceUnavailable, "failed row export is not available")
		return
	}

	importID := chi.URLParam(r, "importID")
	if importID == "" {
		writeError(w, http.StatusBadRequest, "missing import ID")
		return
	}

	failedRows, err := s.store.FailedRows(r.Context(), importID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if len(failedRows) == 0 {
		writeError(w, http.StatusNotFound, "no failed rows for this import")
		return
	}

	filename := fmt.Sprintf("failed_rows_%s.csv", time.Now().Format("20060102_150405"))
	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, filename))

	csvWriter := csv.NewWriter(w)
	csvWriter.Write([]string{"_line", "_error"})

	for _, row := range failedRows {
		record := append([]string{
			strconv.Itoa(row.Line),
			row.Reason,
		}, row.Data...)
		csvWriter.Write(record)
	}

	// Headers are already sent, so a write failure can only truncate
	// the download. Write errors surface here after the flush.
	csvWriter.Flush()
	if err := csvWriter.Error(); err != nil {
		logging.FromContext(r.Context()).Warn("failed row export truncated",
			"import_id", importID,
			"error", err,
		)
	}
}

// handleRollbackImport deletes every product a run inserted.
func (s *Server) handleRollbackImport(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		writeError(w, http.StatusServiceUnavailable, "rollback is not available")
		return
	}

	owner, err := ownerFromRequest(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	importID := chi.URLParam(r, "importID")
	if importID == "" {
		writeError(w, http.StatusBadRequest, "missing import ID")
		return
	}

	result, err := s.store.RollbackImport(r.Context(), owner, importID)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	logging.FromContext(r.Context()).Info("import rolled back",
		"import_id", importID,
		"owner_id", owner,
		"rows_deleted", result.RowsDeleted,
	)

	writeJSON(w, result)
}
