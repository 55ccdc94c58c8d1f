package web

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/castlebay/importsvc/internal/core"
	"github.com/castlebay/importsvc/internal/logging"
)

// ownerFromRequest reads the tenant identity from the X-Owner-ID header.
func ownerFromRequest(r *http.Request) (uuid.UUID, error) {
	raw := r.Header.Get("X-Owner-ID")
	if raw == "" {
		return uuid.Nil, fmt.Errorf("missing X-Owner-ID header")
	}
	owner, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, fmt.Errorf("invalid X-Owner-ID header")
	}
	return owner, nil
}

// handleStartImport accepts a multipart CSV upload and starts an
// asynchronous import. The "mappings" form field carries the field
// mapping as JSON; when absent, mappings are suggested from the file's
// headers.
func (s *Server) handleStartImport(w http.ResponseWriter, r *http.Request) {
	owner, err := ownerFromRequest(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	maxSize := s.cfg.Import.MaxFileSize
	r.Body = http.MaxBytesReader(w, r.Body, maxSize)

	if err := r.ParseMultipartForm(maxSize); err != nil {
		writeError(w, http.StatusBadRequest, "file too large or invalid form")
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "no file provided")
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to read file")
		return
	}
	content := string(data)

	var mappings []core.FieldMapping
	if mappingJSON := r.FormValue("mappings"); mappingJSON != "" {
		if err := json.Unmarshal([]byte(mappingJSON), &mappings); err != nil {
			writeError(w, http.StatusBadRequest, "invalid mappings format")
			return
		}
	} else {
		parsed, err := core.Parse(content)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		mappings = core.SuggestMappings(parsed.Headers)
	}

	importID, err := s.service.StartImport(r.Context(), owner, header.Filename, content, mappings)
	if err == core.ErrTooManyImports {
		writeError(w, http.StatusTooManyRequests, err.Error())
		return
	}
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	logging.FromContext(r.Context()).Info("import started",
		"import_id", importID,
		"owner_id", owner,
		"file_name", header.Filename,
		"file_size", len(data),
	)

	writeJSON(w, map[string]string{"import_id": importID})
}

// handleImportProgress streams import progress via Server-Sent Events.
// Clients can resume after reconnecting via the lastEventId query
// parameter; the event ID is the progress percentage.
func (s *Server) handleImportProgress(w http.ResponseWriter, r *http.Request) {
	importID := chi.URLParam(r, "importID")
	if importID == "" {
		writeError(w, http.StatusBadRequest, "missing import ID")
		return
	}

	lastEventIDStr := r.URL.Query().Get("lastEventId")
	var lastEventID int
	if lastEventIDStr != "" {
		lastEventID, _ = strconv.Atoi(lastEventIDStr)
	}

	progressCh, err := s.service.SubscribeProgress(importID)
	if err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	for {
		select {
		case progress, ok := <-progressCh:
			if !ok {
				fmt.Fprintf(w, "event: complete\ndata: {}\n\n")
				flusher.Flush()
				return
			}

			// On resume, drop events the client already saw. Terminal
			// phases always go through even at an unchanged percentage.
			currentPercent := progress.Percent()
			if lastEventIDStr != "" && currentPercent <= lastEventID && !progress.Phase.Terminal() {
				continue
			}

			data, _ := json.Marshal(progress)
			fmt.Fprintf(w, "id: %d\nevent: progress\ndata: %s\n\n", currentPercent, data)
			flusher.Flush()

		case <-r.Context().Done():
			return
		}
	}
}

// handleImportResult returns the final result of an import, blocking
// until the run completes.
func (s *Server) handleImportResult(w http.ResponseWriter, r *http.Request) {
	importID := chi.URLParam(r, "importID")
	if importID == "" {
		writeError(w, http.StatusBadRequest, "missing import ID")
		return
	}

	result, err := s.service.Result(importID)
	if err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}

	writeJSON(w, result)
}

// handleImportLog returns the log entries accumulated so far.
func (s *Server) handleImportLog(w http.ResponseWriter, r *http.Request) {
	importID := chi.URLParam(r, "importID")
	if importID == "" {
		writeError(w, http.StatusBadRequest, "missing import ID")
		return
	}

	entries, err := s.service.Log(importID)
	if err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}

	writeJSON(w, map[string]any{"entries": entries})
}

// handleCancelImport requests a cooperative stop of an import.
func (s *Server) handleCancelImport(w http.ResponseWriter, r *http.Request) {
	importID := chi.URLParam(r, "importID")
	if importID == "" {
		writeError(w, http.StatusBadRequest, "missing import ID")
		return
	}

	if err := s.service.CancelImport(importID); err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}

	writeJSON(w, map[string]string{"status": "cancelling"})
}

// handleSuggestMappings proposes field mappings for a set of CSV
// headers, for the client's mapping step.
func (s *Server) handleSuggestMappings(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Headers []string `json:"headers"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if len(req.Headers) == 0 {
		writeError(w, http.StatusBadRequest, "no headers provided")
		return
	}

	writeJSON(w, map[string]any{"mappings": core.SuggestMappings(req.Headers)})
}

// handleLimiterStatus reports concurrent import slots.
func (s *Server) handleLimiterStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.service.LimiterStatus())
}

// handleHealth is the liveness endpoint.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]string{"status": "ok"})
}
