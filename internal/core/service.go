package core

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// DefaultImportTimeout is the maximum duration for one import run.
const DefaultImportTimeout = 10 * time.Minute

// DefaultResultRetention is how long finished sessions stay queryable.
const DefaultResultRetention = 5 * time.Minute

// ServiceOptions configures pipeline and lifecycle behavior.
type ServiceOptions struct {
	BatchSize       int
	BatchPause      time.Duration
	ImportTimeout   time.Duration
	MaxConcurrent   int
	MaxWait         time.Duration
	ResultRetention time.Duration
}

// Service owns import session lifecycle: it starts runs asynchronously,
// fans out progress to subscribers, supports cancellation, and retains
// results for a short window after completion.
type Service struct {
	sink    RecordSink
	runs    RunRecorder // nil disables history persistence
	limiter *ImportLimiter
	opts    ServiceOptions

	mu      sync.RWMutex
	imports map[string]*activeImport
}

type activeImport struct {
	Session *Session
	Cancel  context.CancelFunc
	Result  *ImportResult
	Done    chan struct{}

	listenerMu sync.Mutex
	listeners  []chan ImportProgress
	closed     bool
}

// NewService creates a Service over the given sink. runs may be nil when
// history persistence is not wanted (tests, dry runs).
func NewService(sink RecordSink, runs RunRecorder, opts ServiceOptions) *Service {
	if opts.BatchSize <= 0 {
		opts.BatchSize = DefaultBatchSize
	}
	if opts.ImportTimeout <= 0 {
		opts.ImportTimeout = DefaultImportTimeout
	}
	if opts.ResultRetention <= 0 {
		opts.ResultRetention = DefaultResultRetention
	}

	return &Service{
		sink:    sink,
		runs:    runs,
		limiter: NewImportLimiter(opts.MaxConcurrent, opts.MaxWait),
		opts:    opts,
		imports: make(map[string]*activeImport),
	}
}

// StartImport begins an asynchronous import and returns its ID immediately.
// Use SubscribeProgress for updates and Result to wait for completion.
//
// Returns ErrTooManyImports if the concurrent import limit is reached and
// no slot becomes available within the wait timeout.
func (s *Service) StartImport(ctx context.Context, ownerID uuid.UUID, fileName, content string, mappings []FieldMapping) (string, error) {
	if ownerID == uuid.Nil {
		return "", fmt.Errorf("missing owner identity")
	}

	if err := s.limiter.Acquire(ctx); err != nil {
		return "", err
	}

	importID := uuid.New().String()
	runCtx, cancel := context.WithTimeout(context.Background(), s.opts.ImportTimeout)

	sess := NewSession(importID, ownerID, fileName)
	ai := &activeImport{
		Session: sess,
		Cancel:  cancel,
		Done:    make(chan struct{}),
	}
	sess.OnChange(ai.notify)

	s.mu.Lock()
	s.imports[importID] = ai
	s.mu.Unlock()

	go func() {
		defer s.limiter.Release()
		defer func() {
			if r := recover(); r != nil {
				slog.Error("panic in import",
					"import_id", importID,
					"panic", r,
				)
				ai.Result = &ImportResult{
					ImportID: importID,
					OwnerID:  ownerID,
					FileName: fileName,
					Phase:    PhaseFailed,
					Error:    fmt.Sprintf("internal error: %v", r),
				}
			}
			cancel()
			ai.closeListeners()
			close(ai.Done)
			s.cleanup(importID, s.opts.ResultRetention)
		}()

		pipeline := &Pipeline{
			Sink:      s.sink,
			BatchSize: s.opts.BatchSize,
			Pause:     s.opts.BatchPause,
		}
		result := pipeline.Run(runCtx, sess, content, mappings)
		ai.Result = result

		s.persistRun(result)
	}()

	return importID, nil
}

// persistRun records the finished run and its failed rows for history.
// Persistence failures are logged, never surfaced to the import itself.
func (s *Service) persistRun(result *ImportResult) {
	if s.runs == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	err := s.runs.RecordRun(ctx, RunSummary{
		ImportID: result.ImportID,
		OwnerID:  result.OwnerID,
		FileName: result.FileName,
		Stats:    result.Stats,
		Status:   result.Phase,
		Duration: result.Duration,
	})
	if err != nil {
		slog.Warn("failed to record import run",
			"import_id", result.ImportID,
			"error", err,
		)
		return
	}

	if len(result.FailedRows) > 0 {
		if err := s.runs.RecordFailedRows(ctx, result.ImportID, result.FailedRows); err != nil {
			slog.Warn("failed to record failed rows",
				"import_id", result.ImportID,
				"error", err,
			)
		}
	}
}

// SubscribeProgress returns a channel receiving progress snapshots.
// The channel is closed when the import completes.
func (s *Service) SubscribeProgress(importID string) (<-chan ImportProgress, error) {
	ai, ok := s.lookup(importID)
	if !ok {
		return nil, fmt.Errorf("import not found: %s", importID)
	}

	ch := make(chan ImportProgress, 10)

	ai.listenerMu.Lock()
	if ai.closed {
		ai.listenerMu.Unlock()
		closed := make(chan ImportProgress, 1)
		closed <- ai.Session.Progress()
		close(closed)
		return closed, nil
	}
	ai.listeners = append(ai.listeners, ch)
	select {
	case ch <- ai.Session.Progress():
	default:
	}
	ai.listenerMu.Unlock()

	return ch, nil
}

// CancelImport requests a cooperative stop of an in-progress import.
func (s *Service) CancelImport(importID string) error {
	ai, ok := s.lookup(importID)
	if !ok {
		return fmt.Errorf("import not found: %s", importID)
	}

	ai.Session.Cancel()
	ai.Cancel()
	return nil
}

// Result blocks until the import completes and returns its result.
func (s *Service) Result(importID string) (*ImportResult, error) {
	ai, ok := s.lookup(importID)
	if !ok {
		return nil, fmt.Errorf("import not found: %s", importID)
	}

	<-ai.Done
	return ai.Result, nil
}

// Progress returns the current snapshot without blocking.
func (s *Service) Progress(importID string) (ImportProgress, error) {
	ai, ok := s.lookup(importID)
	if !ok {
		return ImportProgress{}, fmt.Errorf("import not found: %s", importID)
	}
	return ai.Session.Progress(), nil
}

// Log returns the session's log entries accumulated so far.
func (s *Service) Log(importID string) ([]LogEntry, error) {
	ai, ok := s.lookup(importID)
	if !ok {
		return nil, fmt.Errorf("import not found: %s", importID)
	}
	return ai.Session.Entries(), nil
}

// LimiterStatus reports concurrent import slots for monitoring.
func (s *Service) LimiterStatus() LimiterStatus {
	return s.limiter.Status()
}

// WaitForImports blocks until active imports drain, for graceful shutdown.
func (s *Service) WaitForImports(ctx context.Context) error {
	return s.limiter.WaitForDrain(ctx)
}

func (s *Service) lookup(importID string) (*activeImport, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ai, ok := s.imports[importID]
	return ai, ok
}

// cleanup drops a finished session from memory after the retention window.
func (s *Service) cleanup(importID string, after time.Duration) {
	time.AfterFunc(after, func() {
		s.mu.Lock()
		delete(s.imports, importID)
		s.mu.Unlock()
	})
}

// notify broadcasts a snapshot to all listeners without blocking.
func (ai *activeImport) notify(p ImportProgress) {
	ai.listenerMu.Lock()
	defer ai.listenerMu.Unlock()
	if ai.closed {
		return
	}
	for _, ch := range ai.listeners {
		select {
		case ch <- p:
		default:
		}
	}
}

func (ai *activeImport) closeListeners() {
	ai.listenerMu.Lock()
	defer ai.listenerMu.Unlock()
	if ai.closed {
		return
	}
	ai.closed = true
	for _, ch := range ai.listeners {
		close(ch)
	}
	ai.listeners = nil
}
