package web

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/castlebay/importsvc/internal/config"
	"github.com/castlebay/importsvc/internal/core"
	"github.com/castlebay/importsvc/internal/store"
)

const handlerTestCSV = "Product,Price,Stock\nWidget,12.50,100\nGadget,4.00,5\nGizmo,3.20,8\nDoohickey,9.99,2\n"

// fakeStorage stands in for the pgx-backed store in handler tests.
type fakeStorage struct {
	mu         sync.Mutex
	batches    [][]core.Record
	runs       []core.RunSummary
	failedRows map[string][]core.FailedRow

	insertErr error
	runErr    error

	// onInsert runs inside InsertBatch before it returns, so tests can
	// gate batch completion.
	onInsert func()
}

func (f *fakeStorage) InsertBatch(ctx context.Context, ownerID uuid.UUID, importID string, records []core.Record) error {
	f.mu.Lock()
	f.batches = append(f.batches, records)
	f.mu.Unlock()
	if f.onInsert != nil {
		f.onInsert()
	}
	return f.insertErr
}

func (f *fakeStorage) RecordRun(ctx context.Context, run core.RunSummary) error {
	if f.runErr != nil {
		return f.runErr
	}
	f.mu.Lock()
	f.runs = append(f.runs, run)
	f.mu.Unlock()
	return nil
}

func (f *fakeStorage) RecordFailedRows(ctx context.Context, importID string, rows []core.FailedRow) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failedRows == nil {
		f.failedRows = make(map[string][]core.FailedRow)
	}
	f.failedRows[importID] = rows
	return nil
}

func (f *fakeStorage) History(ctx context.Context, ownerID uuid.UUID, limit int) ([]store.RunEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	entries := make([]store.RunEntry, 0, len(f.runs))
	for _, run := range f.runs {
		if run.OwnerID != ownerID {
			continue
		}
		entries = append(entries, store.RunEntry{
			ImportID: run.ImportID,
			FileName: run.FileName,
			Stats:    run.Stats,
			Status:   string(run.Status),
		})
	}
	return entries, nil
}

func (f *fakeStorage) FailedRows(ctx context.Context, importID string) ([]core.FailedRow, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.failedRows[importID], nil
}

func (f *fakeStorage) RollbackImport(ctx context.Context, ownerID uuid.UUID, importID string) (store.RollbackResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, run := range f.runs {
		if run.ImportID == importID && run.OwnerID == ownerID {
			return store.RollbackResult{ImportID: importID, RowsDeleted: int64(run.Stats.Success)}, nil
		}
	}
	return store.RollbackResult{}, fmt.Errorf("import not found: %s", importID)
}

func (f *fakeStorage) recordedRuns() []core.RunSummary {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]core.RunSummary(nil), f.runs...)
}

func (f *fakeStorage) batchCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.batches)
}

func testConfig() *config.Config {
	cfg := &config.Config{}
	cfg.Server.RequestTimeout = 5 * time.Second
	cfg.Import.MaxFileSize = 1 << 20
	return cfg
}

func newTestServer(cfg *config.Config, st *fakeStorage) *Server {
	service := core.NewService(st, st, core.ServiceOptions{
		BatchSize:       2,
		BatchPause:      time.Millisecond,
		ResultRetention: time.Minute,
	})
	return NewServer(cfg, service, st)
}

func testMappings() []core.FieldMapping {
	return []core.FieldMapping{
		{Source: "Product", Target: core.FieldName, Confidence: 1.0},
		{Source: "Price", Target: core.FieldPrice, Confidence: 1.0},
		{Source: "Stock", Target: core.FieldStock, Confidence: 1.0},
	}
}

// runImport starts an import directly on the server's service and waits
// for it to finish.
func runImport(t *testing.T, s *Server, owner uuid.UUID) string {
	t.Helper()
	importID, err := s.service.StartImport(context.Background(), owner, "test.csv", handlerTestCSV, testMappings())
	if err != nil {
		t.Fatalf("StartImport: %v", err)
	}
	if _, err := s.service.Result(importID); err != nil {
		t.Fatalf("Result: %v", err)
	}
	return importID
}

func TestHandleImportProgress_StreamsFinishedImport(t *testing.T) {
	st := &fakeStorage{}
	s := newTestServer(testConfig(), st)
	importID := runImport(t, s, uuid.New())

	req := httptest.NewRequest("GET", "/api/import/"+importID+"/progress", nil)
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)

	if ct := rec.Header().Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("Content-Type = %q, want text/event-stream", ct)
	}

	body := rec.Body.String()
	if !strings.Contains(body, "id: 100\nevent: progress\n") {
		t.Errorf("body missing final progress frame:\n%s", body)
	}
	if !strings.Contains(body, `"phase":"completed"`) {
		t.Errorf("body missing completed phase:\n%s", body)
	}
	if !strings.HasSuffix(body, "event: complete\ndata: {}\n\n") {
		t.Errorf("stream does not end with complete event:\n%s", body)
	}
}

func TestHandleImportProgress_ResumeSkipsSeenEvents(t *testing.T) {
	release := make(chan struct{})
	var once sync.Once
	started := make(chan struct{})
	st := &fakeStorage{onInsert: func() {
		once.Do(func() { close(started) })
		<-release
	}}
	s := newTestServer(testConfig(), st)

	importID, err := s.service.StartImport(context.Background(), uuid.New(), "test.csv", handlerTestCSV, testMappings())
	if err != nil {
		t.Fatalf("StartImport: %v", err)
	}
	<-started

	// Subscribe mid-run as a client that already saw 50%.
	req := httptest.NewRequest("GET", "/api/import/"+importID+"/progress?lastEventId=50", nil)
	rec := httptest.NewRecorder()
	done := make(chan struct{})
	go func() {
		defer close(done)
		s.Router().ServeHTTP(rec, req)
	}()

	close(release)
	if _, err := s.service.Result(importID); err != nil {
		t.Fatalf("Result: %v", err)
	}
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("progress stream did not close")
	}

	body := rec.Body.String()
	for _, seen := range []string{"id: 0\n", "id: 25\n", "id: 50\n"} {
		if strings.Contains(body, seen) {
			t.Errorf("resumed stream repeated already-seen event %q:\n%s", strings.TrimSpace(seen), body)
		}
	}
	if !strings.Contains(body, "id: 100\nevent: progress\n") {
		t.Errorf("resumed stream missing post-resume progress:\n%s", body)
	}
	if !strings.Contains(body, "event: complete\n") {
		t.Errorf("resumed stream missing complete event:\n%s", body)
	}
}

func TestHandleImportProgress_ResumeStillDeliversTerminalPhase(t *testing.T) {
	st := &fakeStorage{}
	s := newTestServer(testConfig(), st)
	importID := runImport(t, s, uuid.New())

	// A client that saw 100% mid-import still gets the terminal phase.
	req := httptest.NewRequest("GET", "/api/import/"+importID+"/progress?lastEventId=100", nil)
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)

	body := rec.Body.String()
	if !strings.Contains(body, `"phase":"completed"`) {
		t.Errorf("resume at 100%% dropped the terminal phase update:\n%s", body)
	}
	if !strings.Contains(body, "event: complete\n") {
		t.Errorf("resume at 100%% missing complete event:\n%s", body)
	}
}

func TestHandleImportProgress_UnknownImport(t *testing.T) {
	st := &fakeStorage{}
	s := newTestServer(testConfig(), st)

	req := httptest.NewRequest("GET", "/api/import/nope/progress", nil)
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusNotFound)
	}
}

func TestHandleSupplierPush_RecordsRun(t *testing.T) {
	st := &fakeStorage{}
	s := newTestServer(testConfig(), st)
	owner := uuid.New()

	payload := `{"pid":"cj-1","productNameEn":"Desk Lamp","productSku":"LAMP-1","sellPrice":"14.90"}`
	req := httptest.NewRequest("POST", "/api/suppliers/cj/products", strings.NewReader(payload))
	req.Header.Set("X-Owner-ID", owner.String())
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}

	var resp struct {
		ImportID string `json:"import_id"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}

	runs := st.recordedRuns()
	if len(runs) != 1 {
		t.Fatalf("recorded runs = %d, want 1", len(runs))
	}
	run := runs[0]
	if run.ImportID != resp.ImportID {
		t.Errorf("run import ID = %q, want %q", run.ImportID, resp.ImportID)
	}
	if run.OwnerID != owner {
		t.Errorf("run owner = %v, want %v", run.OwnerID, owner)
	}
	if run.FileName != "supplier:cj" {
		t.Errorf("run file name = %q, want supplier:cj", run.FileName)
	}
	if run.Stats.Total != 1 || run.Stats.Success != 1 {
		t.Errorf("run stats = %+v, want total 1 success 1", run.Stats)
	}
	if run.Status != core.PhaseCompleted {
		t.Errorf("run status = %q, want %q", run.Status, core.PhaseCompleted)
	}

	// The recorded run is what makes the push undoable.
	rollbackReq := httptest.NewRequest("POST", "/api/import/"+resp.ImportID+"/rollback", nil)
	rollbackReq.Header.Set("X-Owner-ID", owner.String())
	rollbackRec := httptest.NewRecorder()
	s.Router().ServeHTTP(rollbackRec, rollbackReq)
	if rollbackRec.Code != http.StatusOK {
		t.Fatalf("rollback status = %d, body = %s", rollbackRec.Code, rollbackRec.Body.String())
	}
}

func TestHandleSupplierPush_RecordRunFailureStillStores(t *testing.T) {
	st := &fakeStorage{runErr: fmt.Errorf("history table unavailable")}
	s := newTestServer(testConfig(), st)

	payload := `{"title":"Mug","price":6.50,"sku":"MUG-1","stock":3}`
	req := httptest.NewRequest("POST", "/api/suppliers/extension/products", strings.NewReader(payload))
	req.Header.Set("X-Owner-ID", uuid.New().String())
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	if st.batchCount() != 1 {
		t.Fatalf("batches = %d, want 1", st.batchCount())
	}
}

func TestImportRateLimit(t *testing.T) {
	cfg := testConfig()
	cfg.Rate.Enabled = true
	cfg.Rate.RequestsPerMinute = 100
	cfg.Rate.ImportLimit = 1
	st := &fakeStorage{}
	s := newTestServer(cfg, st)

	post := func(path string) int {
		req := httptest.NewRequest("POST", path, nil)
		rec := httptest.NewRecorder()
		s.Router().ServeHTTP(rec, req)
		return rec.Code
	}

	// The first import request consumes the only token. The handler
	// rejects it for the missing owner header, but the token is spent.
	if code := post("/api/import"); code != http.StatusBadRequest {
		t.Fatalf("first request status = %d, want %d", code, http.StatusBadRequest)
	}
	if code := post("/api/import"); code != http.StatusTooManyRequests {
		t.Errorf("second request status = %d, want %d", code, http.StatusTooManyRequests)
	}

	// Supplier pushes share the import budget.
	if code := post("/api/suppliers/cj/products"); code != http.StatusTooManyRequests {
		t.Errorf("supplier push status = %d, want %d", code, http.StatusTooManyRequests)
	}

	// The rest of the API only sees the general limit.
	req := httptest.NewRequest("GET", "/api/limiter", nil)
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Errorf("limiter status = %d, want %d", rec.Code, http.StatusOK)
	}
}

func TestHandleExportFailedRows(t *testing.T) {
	st := &fakeStorage{failedRows: map[string][]core.FailedRow{
		"imp-1": {
			{Line: 3, Reason: "price is required", Data: []string{"Widget", "", "5"}},
			{Line: 7, Reason: "name is required", Data: []string{"", "2.50", "1"}},
		},
	}}
	s := newTestServer(testConfig(), st)

	req := httptest.NewRequest("GET", "/api/import/imp-1/failed-rows", nil)
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	if ct := rec.Header().Get("Content-Type"); ct != "text/csv" {
		t.Errorf("Content-Type = %q, want text/csv", ct)
	}

	lines := strings.Split(strings.TrimSpace(rec.Body.String()), "\n")
	if len(lines) != 3 {
		t.Fatalf("csv lines = %d, want 3:\n%s", len(lines), rec.Body.String())
	}
	if lines[0] != "_line,_error" {
		t.Errorf("header line = %q, want _line,_error", lines[0])
	}
	if lines[1] != "3,price is required,Widget,,5" {
		t.Errorf("first row = %q", lines[1])
	}
}

func TestHandleExportFailedRows_NoRows(t *testing.T) {
	st := &fakeStorage{}
	s := newTestServer(testConfig(), st)

	req := httptest.NewRequest("GET", "/api/import/imp-9/failed-rows", nil)
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusNotFound)
	}
}
