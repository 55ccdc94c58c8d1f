package core

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
)

type fakeRecorder struct {
	mu        sync.Mutex
	runs      []RunSummary
	failed    map[string][]FailedRow
	runErr    error
	failedErr error
}

func (r *fakeRecorder) RecordRun(ctx context.Context, run RunSummary) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.runErr != nil {
		return r.runErr
	}
	r.runs = append(r.runs, run)
	return nil
}

func (r *fakeRecorder) RecordFailedRows(ctx context.Context, importID string, rows []FailedRow) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failedErr != nil {
		return r.failedErr
	}
	if r.failed == nil {
		r.failed = make(map[string][]FailedRow)
	}
	r.failed[importID] = append(r.failed[importID], rows...)
	return nil
}

const serviceTestCSV = "Product,Price,Stock\n" +
	"Widget,12.50,100\n" +
	"Gadget,abc,5\n" +
	"Gizmo,3.20,8\n"

func newTestService(sink RecordSink, runs RunRecorder) *Service {
	return NewService(sink, runs, ServiceOptions{
		BatchSize:       2,
		ResultRetention: time.Minute,
	})
}

func TestService_StartImportCompletes(t *testing.T) {
	sink := &fakeSink{}
	recorder := &fakeRecorder{}
	svc := newTestService(sink, recorder)

	owner := uuid.New()
	id, err := svc.StartImport(context.Background(), owner, "products.csv", serviceTestCSV, testMappings)
	if err != nil {
		t.Fatalf("StartImport failed: %v", err)
	}
	if id == "" {
		t.Fatal("StartImport returned empty ID")
	}

	result, err := svc.Result(id)
	if err != nil {
		t.Fatalf("Result failed: %v", err)
	}

	if result.Phase != PhaseCompleted {
		t.Errorf("phase = %s, want %s", result.Phase, PhaseCompleted)
	}
	if result.OwnerID != owner {
		t.Errorf("owner = %s, want %s", result.OwnerID, owner)
	}
	if result.Stats.Total != 3 {
		t.Errorf("total = %d, want 3", result.Stats.Total)
	}
	if result.Stats.Success != 2 {
		t.Errorf("success = %d, want 2", result.Stats.Success)
	}
	if result.Stats.Errors != 1 {
		t.Errorf("errors = %d, want 1", result.Stats.Errors)
	}

	recorder.mu.Lock()
	defer recorder.mu.Unlock()
	if len(recorder.runs) != 1 {
		t.Fatalf("recorded runs = %d, want 1", len(recorder.runs))
	}
	if recorder.runs[0].ImportID != id {
		t.Errorf("recorded import ID = %s, want %s", recorder.runs[0].ImportID, id)
	}
	if got := len(recorder.failed[id]); got != 1 {
		t.Errorf("recorded failed rows = %d, want 1", got)
	}
}

func TestService_StartImportRejectsNilOwner(t *testing.T) {
	svc := newTestService(&fakeSink{}, nil)

	_, err := svc.StartImport(context.Background(), uuid.Nil, "x.csv", serviceTestCSV, testMappings)
	if err == nil {
		t.Fatal("expected error for nil owner")
	}
}

func TestService_NilRecorderSkipsPersistence(t *testing.T) {
	svc := newTestService(&fakeSink{}, nil)

	id, err := svc.StartImport(context.Background(), uuid.New(), "x.csv", serviceTestCSV, testMappings)
	if err != nil {
		t.Fatalf("StartImport failed: %v", err)
	}

	result, err := svc.Result(id)
	if err != nil {
		t.Fatalf("Result failed: %v", err)
	}
	if result.Phase != PhaseCompleted {
		t.Errorf("phase = %s, want %s", result.Phase, PhaseCompleted)
	}
}

func TestService_PersistenceErrorDoesNotFailImport(t *testing.T) {
	recorder := &fakeRecorder{runErr: errors.New("db down")}
	svc := newTestService(&fakeSink{}, recorder)

	id, _ := svc.StartImport(context.Background(), uuid.New(), "x.csv", serviceTestCSV, testMappings)
	result, err := svc.Result(id)
	if err != nil {
		t.Fatalf("Result failed: %v", err)
	}
	if result.Phase != PhaseCompleted {
		t.Errorf("phase = %s, want %s", result.Phase, PhaseCompleted)
	}
}

func TestService_SubscribeProgress(t *testing.T) {
	svc := newTestService(&fakeSink{}, nil)

	id, err := svc.StartImport(context.Background(), uuid.New(), "x.csv", serviceTestCSV, testMappings)
	if err != nil {
		t.Fatalf("StartImport failed: %v", err)
	}

	ch, err := svc.SubscribeProgress(id)
	if err != nil {
		t.Fatalf("SubscribeProgress failed: %v", err)
	}

	var last ImportProgress
	got := 0
	deadline := time.After(5 * time.Second)
	for {
		select {
		case p, ok := <-ch:
			if !ok {
				if got == 0 {
					t.Fatal("channel closed without any snapshot")
				}
				if last.Phase != PhaseCompleted && last.Phase != "" {
					// The channel may close before the final snapshot lands;
					// the result is the authoritative terminal state.
					result, _ := svc.Result(id)
					if result.Phase != PhaseCompleted {
						t.Errorf("final phase = %s, want %s", result.Phase, PhaseCompleted)
					}
				}
				return
			}
			last = p
			got++
		case <-deadline:
			t.Fatal("progress channel never closed")
		}
	}
}

func TestService_CancelImport(t *testing.T) {
	// Large file with a pause so cancellation lands mid-import.
	var b strings.Builder
	b.WriteString("Product,Price,Stock\n")
	for i := 0; i < 200; i++ {
		b.WriteString("Widget,1.00,1\n")
	}

	started := make(chan struct{})
	var once sync.Once
	sink := &fakeSink{onBatch: func(n int) {
		once.Do(func() { close(started) })
		time.Sleep(20 * time.Millisecond)
	}}

	svc := NewService(sink, nil, ServiceOptions{
		BatchSize:       10,
		BatchPause:      10 * time.Millisecond,
		ResultRetention: time.Minute,
	})

	id, err := svc.StartImport(context.Background(), uuid.New(), "x.csv", b.String(), testMappings)
	if err != nil {
		t.Fatalf("StartImport failed: %v", err)
	}

	<-started
	if err := svc.CancelImport(id); err != nil {
		t.Fatalf("CancelImport failed: %v", err)
	}

	result, err := svc.Result(id)
	if err != nil {
		t.Fatalf("Result failed: %v", err)
	}
	if result.Phase != PhaseCancelled {
		t.Errorf("phase = %s, want %s", result.Phase, PhaseCancelled)
	}
	if result.Stats.Success >= result.Stats.Total {
		t.Errorf("cancelled import finished all rows: success=%d total=%d",
			result.Stats.Success, result.Stats.Total)
	}
}

func TestService_UnknownImportID(t *testing.T) {
	svc := newTestService(&fakeSink{}, nil)

	if _, err := svc.Result("missing"); err == nil {
		t.Error("Result: expected error for unknown ID")
	}
	if _, err := svc.Progress("missing"); err == nil {
		t.Error("Progress: expected error for unknown ID")
	}
	if _, err := svc.SubscribeProgress("missing"); err == nil {
		t.Error("SubscribeProgress: expected error for unknown ID")
	}
	if err := svc.CancelImport("missing"); err == nil {
		t.Error("CancelImport: expected error for unknown ID")
	}
}

func TestService_LimiterReleasedAfterRun(t *testing.T) {
	svc := newTestService(&fakeSink{}, nil)

	id, err := svc.StartImport(context.Background(), uuid.New(), "x.csv", serviceTestCSV, testMappings)
	if err != nil {
		t.Fatalf("StartImport failed: %v", err)
	}
	if _, err := svc.Result(id); err != nil {
		t.Fatalf("Result failed: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := svc.WaitForImports(ctx); err != nil {
		t.Errorf("WaitForImports failed: %v", err)
	}

	if got := svc.LimiterStatus().Active; got != 0 {
		t.Errorf("active imports after completion = %d, want 0", got)
	}
}
