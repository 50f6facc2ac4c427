package service

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sentinelpdp/pdp/internal/domain/audit"
)

// AuditService decouples audit persistence from the decision hot path:
// Record hands the row to a buffered channel and returns, and a single
// background worker batches rows into AuditStore.Append calls. A full
// channel applies bounded backpressure (up to sendTimeout) before dropping
// the record, so a slow audit sink can never stall a decision.
type AuditService struct {
	store   audit.AuditStore
	records chan audit.AuditRecord
	logger  *slog.Logger
	wg      sync.WaitGroup

	batchSize     int
	flushInterval time.Duration
	sendTimeout   time.Duration

	dropped atomic.Int64
}

// AuditOption configures AuditService.
type AuditOption func(*AuditService)

// WithBatchSize sets how many records accumulate before an early flush.
func WithBatchSize(n int) AuditOption {
	return func(s *AuditService) { s.batchSize = n }
}

// WithFlushInterval sets how often a partial batch is flushed anyway.
func WithFlushInterval(d time.Duration) AuditOption {
	return func(s *AuditService) { s.flushInterval = d }
}

// WithChannelSize sets the record channel's buffer capacity.
func WithChannelSize(n int) AuditOption {
	return func(s *AuditService) { s.records = make(chan audit.AuditRecord, n) }
}

// WithSendTimeout bounds how long Record blocks on a full channel before
// dropping the record. Zero drops immediately.
func WithSendTimeout(d time.Duration) AuditOption {
	return func(s *AuditService) { s.sendTimeout = d }
}

// NewAuditService builds an AuditService over store. Call Start to launch
// the worker and Stop to flush and shut it down.
func NewAuditService(store audit.AuditStore, logger *slog.Logger, opts ...AuditOption) *AuditService {
	s := &AuditService{
		store:         store,
		records:       make(chan audit.AuditRecord, 1000),
		logger:        logger,
		batchSize:     100,
		flushInterval: time.Second,
		sendTimeout:   100 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

var _ AuditRecorder = (*AuditService)(nil)

// Start launches the background flush worker.
func (s *AuditService) Start(ctx context.Context) {
	s.wg.Add(1)
	go s.worker(ctx)
}

// Record enqueues one audit row. It tries a non-blocking send first, then
// waits up to sendTimeout for the worker to catch up, and finally drops
// the record with a warning. Losing a row under sustained overload beats
// stalling decisions.
func (s *AuditService) Record(record audit.AuditRecord) {
	select {
	case s.records <- record:
		return
	default:
	}

	if s.sendTimeout > 0 {
		t := time.NewTimer(s.sendTimeout)
		defer t.Stop()
		select {
		case s.records <- record:
			return
		case <-t.C:
		}
	}

	n := s.dropped.Add(1)
	s.logger.Warn("audit record dropped, channel full",
		"tenant", record.Tenant,
		"principal", record.Principal,
		"total_dropped", n,
	)
}

// Dropped returns how many records have been discarded on a full channel.
func (s *AuditService) Dropped() int64 {
	return s.dropped.Load()
}

// Stop closes the channel, flushes whatever the worker still holds, and
// waits for it to exit. Record must not be called after Stop.
func (s *AuditService) Stop() {
	close(s.records)
	s.wg.Wait()
}

func (s *AuditService) worker(ctx context.Context) {
	defer s.wg.Done()

	batch := make([]audit.AuditRecord, 0, s.batchSize)
	ticker := time.NewTicker(s.flushInterval)
	defer ticker.Stop()

	for {
		select {
		case record, ok := <-s.records:
			if !ok {
				s.finalFlush(batch)
				return
			}
			batch = append(batch, record)
			if len(batch) >= s.batchSize {
				s.flush(ctx, batch)
				batch = batch[:0]
			}

		case <-ticker.C:
			if len(batch) > 0 {
				s.flush(ctx, batch)
				batch = batch[:0]
			}

		case <-ctx.Done():
			// Drain what producers already enqueued, then flush once.
			for {
				select {
				case record, ok := <-s.records:
					if !ok {
						s.finalFlush(batch)
						return
					}
					batch = append(batch, record)
				default:
					s.finalFlush(batch)
					return
				}
			}
		}
	}
}

// finalFlush writes the last batch under its own deadline, since the
// context that drove the worker is gone by the time it runs.
func (s *AuditService) finalFlush(batch []audit.AuditRecord) {
	if len(batch) == 0 {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	s.flush(ctx, batch)
}

// flush appends one batch, logging rather than propagating failure.
func (s *AuditService) flush(ctx context.Context, batch []audit.AuditRecord) {
	if err := s.store.Append(ctx, batch...); err != nil {
		s.logger.Error("audit batch write failed", "error", err, "count", len(batch))
	}
}
