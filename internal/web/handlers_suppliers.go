package web

import (
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/castlebay/importsvc/internal/core"
	"github.com/castlebay/importsvc/internal/logging"
	"github.com/castlebay/importsvc/internal/suppliers"
)

// maxSupplierPayload bounds a single pushed product payload.
const maxSupplierPayload = 1 << 20

// handleSupplierPush accepts a single product pushed by an external
// source (CJ API, browser extension), normalizes it and stores it
// directly without the CSV pipeline.
func (s *Server) handleSupplierPush(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		writeError(w, http.StatusServiceUnavailable, "supplier ingestion is not available")
		return
	}

	owner, err := ownerFromRequest(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	source := suppliers.Source(chi.URLParam(r, "source"))

	payload, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxSupplierPayload))
	if err != nil {
		writeError(w, http.StatusBadRequest, "payload too large or unreadable")
		return
	}

	record, err := suppliers.Normalize(source, payload)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	// Pushed products get their own single-record import ID so they can
	// be rolled back like file imports.
	importID := uuid.New().String()
	if err := s.store.InsertBatch(r.Context(), owner, importID, []core.Record{record}); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	log := logging.WithFields(r.Context(),
		"source", string(source),
		"owner_id", owner,
		"import_id", importID,
	)

	// The run row is what the rollback endpoint looks up, so a push
	// without one could never be undone. A recording failure leaves the
	// product stored and is only logged.
	run := core.RunSummary{
		ImportID: importID,
		OwnerID:  owner,
		FileName: "supplier:" + string(source),
		Stats:    core.ImportStats{Total: 1, Processed: 1, Success: 1},
		Status:   core.PhaseCompleted,
	}
	if err := s.store.RecordRun(r.Context(), run); err != nil {
		log.Warn("failed to record supplier push run", "error", err)
	}

	name, _ := record.Fields[core.FieldName].(string)
	log.Info("supplier product stored", "product", name)

	writeJSON(w, map[string]string{
		"import_id": importID,
		"product":   name,
		"status":    "stored",
	})
}
