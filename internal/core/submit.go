package core

// submit.go groups transformed records into fixed-size batches and persists
// each batch through the RecordSink.
//
// Failure granularity is the whole batch: one insert statement carries the
// chunk, and if it fails every record in the chunk is marked errored. This
// is a deliberate coarse-grained policy, not a limitation to fix. A flat
// pause between batches paces the persistence layer; there is no adaptive
// backoff.

import (
	"context"
	"time"
)

// DefaultBatchSize is the number of records sent per insert.
const DefaultBatchSize = 50

// DefaultBatchPause is the flat delay between consecutive batches.
const DefaultBatchPause = 100 * time.Millisecond

// BatchSubmitter persists transformed records in fixed-size chunks.
type BatchSubmitter struct {
	Sink      RecordSink
	BatchSize int
	Pause     time.Duration
}

// Submit sends all records to the sink in batches, updating the session
// after each batch resolves. A failed batch does not stop later batches;
// cancellation (checked before each batch) does.
func (b *BatchSubmitter) Submit(ctx context.Context, sess *Session, records []Record, rawByLine map[int][]string) {
	size := b.BatchSize
	if size <= 0 {
		size = DefaultBatchSize
	}

	for start := 0; start < len(records); start += size {
		if sess.Cancelled() || ctx.Err() != nil {
			return
		}

		end := start + size
		if end > len(records) {
			end = len(records)
		}
		batch := records[start:end]

		if err := b.Sink.InsertBatch(ctx, sess.OwnerID, sess.ID, batch); err != nil {
			sess.batchFailed(batch, friendlyInsertError(err), rawByLine)
		} else {
			sess.batchSucceeded(batch)
		}

		if end < len(records) && b.Pause > 0 {
			select {
			case <-time.After(b.Pause):
			case <-ctx.Done():
				return
			}
		}
	}
}
