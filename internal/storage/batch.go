package storage

import (
	"context"
	"time"

	"go.uber.org/zap"

	"flowbridge/internal/errors"
	"flowbridge/pkg/records"
)

// CopyFn abstracts a backend's bulk insert capability. It inserts rows
// aligned to columns and returns the number of rows reported as inserted.
type CopyFn func(ctx context.Context, columns []string, rows [][]any) (int64, error)

// BatchWriter is a records.Collector that groups records into batches of
// Size and calls Copy per batch. Close flushes the remainder. It is not safe
// for concurrent use; each worker owns one.
//
// Progress is logged on each successful flush with running totals and the
// rows/sec since the previous flush.
type BatchWriter struct {
	ctx     context.Context
	columns []string
	size    int
	copy    CopyFn
	log     *zap.Logger
	onClose func() error

	batch     [][]any
	total     int64
	batches   int64
	start     time.Time
	lastFlush time.Time
	lastTotal int64
	closed    bool
}

// NewBatchWriter returns a writer flushing batches of size rows through fn.
// onClose, when non-nil, runs after the final flush.
func NewBatchWriter(ctx context.Context, columns []string, size int, fn CopyFn, log *zap.Logger, onClose func() error) (*BatchWriter, error) {
	if size <= 0 {
		return nil, errors.New("batch size must be > 0")
	}
	if fn == nil {
		return nil, errors.New("copy function must not be nil")
	}
	if log == nil {
		log = zap.NewNop()
	}
	now := time.Now()
	return &BatchWriter{
		ctx:       ctx,
		columns:   columns,
		size:      size,
		copy:      fn,
		log:       log,
		onClose:   onClose,
		batch:     make([][]any, 0, size),
		start:     now,
		lastFlush: now,
	}, nil
}

// Add buffers one record, flushing when the batch is full.
func (w *BatchWriter) Add(rec records.Record) error {
	if w.closed {
		return errors.New("batch writer closed")
	}
	if len(rec) != len(w.columns) {
		return &errors.ArityMismatchError{What: "row for columns", Want: len(w.columns), Got: len(rec)}
	}
	w.batch = append(w.batch, []any(rec.Copy()))
	if len(w.batch) >= w.size {
		return w.flush()
	}
	return nil
}

// Total is the number of rows reported written so far.
func (w *BatchWriter) Total() int64 { return w.total }

// Close flushes the pending batch and releases the backend.
func (w *BatchWriter) Close() error {
	if w.closed {
		return nil
	}
	w.closed = true
	err := w.flush()
	if err == nil {
		w.log.Info("loader: input closed", zap.Int64("total_inserted", w.total), zap.Int64("batches", w.batches))
	}
	if w.onClose != nil {
		if cerr := w.onClose(); cerr != nil && err == nil {
			err = cerr
		}
	}
	return err
}

func (w *BatchWriter) flush() error {
	if len(w.batch) == 0 {
		return nil
	}
	if err := w.ctx.Err(); err != nil {
		return err
	}
	n, err := w.copy(w.ctx, w.columns, w.batch)
	w.total += n
	// New backing array: backends may retain the rows they were handed.
	w.batch = make([][]any, 0, w.size)
	if err != nil {
		w.log.Error("loader: copy failed", zap.Int64("after", n), zap.Int64("total", w.total), zap.Error(err))
		return errors.Wrap(err, "bulk copy")
	}

	w.batches++
	now := time.Now()
	since := now.Sub(w.lastFlush)
	rps := float64(0)
	if since > 0 {
		rps = float64(w.total-w.lastTotal) / since.Seconds()
	}
	w.log.Debug("batch flushed",
		zap.Int64("batch", w.batches),
		zap.Float64("rps", rps),
		zap.Int64("inserted", n),
		zap.Int64("total_inserted", w.total),
		zap.Duration("elapsed", now.Sub(w.start).Truncate(time.Millisecond)),
	)
	w.lastFlush = now
	w.lastTotal = w.total
	return nil
}
