// Package batch tracks execution batches on the client and keeps the
// orchestrator's running counters.
package batch

import (
	"log/slog"
	"sync"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/google/uuid"

	"github.com/coldbell/chronos/backend/internal/clock"
	"github.com/coldbell/chronos/backend/internal/codec"
	"github.com/coldbell/chronos/backend/internal/errs"
	"github.com/coldbell/chronos/backend/internal/logging"
	"github.com/coldbell/chronos/backend/internal/metrics"
)

const fullSuccessBps = 10_000

type Status string

const (
	StatusPending  Status = "PENDING"
	StatusExecuted Status = "EXECUTED"
	StatusFailed   Status = "FAILED"
)

type Batch struct {
	ID            string
	Creator       solana.PublicKey
	Size          uint8
	ExecutedCount uint8
	Status        Status
	CreatedAt     time.Time
	ExecutedAt    *time.Time
	ErrorCode     *uint16
}

type Stats struct {
	TotalBatches    uint64
	TotalExecutions uint64
	TotalFailures   uint64
	SuccessRateBps  uint16
}

type Coordinator struct {
	clock   clock.Clock
	metrics *metrics.Metrics
	logger  *slog.Logger

	mu      sync.Mutex
	batches map[string]*Batch
	stats   Stats
}

func New(clk clock.Clock, m *metrics.Metrics, logger *slog.Logger) *Coordinator {
	if clk == nil {
		clk = clock.Real{}
	}
	if m == nil {
		m = metrics.NewNop()
	}
	return &Coordinator{
		clock:   clk,
		metrics: m,
		logger:  logging.Component(logger, "batch"),
		batches: make(map[string]*Batch),
		stats:   Stats{SuccessRateBps: fullSuccessBps},
	}
}

func (c *Coordinator) CreateBatch(creator solana.PublicKey, size int) (Batch, error) {
	if size < codec.MinBatchSize || size > codec.MaxBatchSize {
		return Batch{}, errs.New(errs.KindInvalidBatchSize, creator.String(), "batch size %d outside %d..%d", size, codec.MinBatchSize, codec.MaxBatchSize)
	}
	b := &Batch{
		ID:        uuid.NewString(),
		Creator:   creator,
		Size:      uint8(size),
		Status:    StatusPending,
		CreatedAt: c.clock.Now(),
	}

	c.mu.Lock()
	c.batches[b.ID] = b
	c.stats.TotalBatches++
	c.mu.Unlock()

	c.metrics.Batches.WithLabelValues("created").Inc()
	c.logger.Debug("batch created", "id", b.ID, "creator", creator, "size", size)
	return *b, nil
}

func (c *Coordinator) Execute(id string) (Batch, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	b, err := c.pending(id)
	if err != nil {
		return Batch{}, err
	}
	now := c.clock.Now()
	b.Status = StatusExecuted
	b.ExecutedCount = b.Size
	b.ExecutedAt = &now
	c.stats.TotalExecutions += uint64(b.Size)

	c.metrics.Batches.WithLabelValues("executed").Inc()
	c.logger.Info("batch executed", "id", id, "transactions", b.Size)
	return *b, nil
}

// MarkFailed is terminal. The success rate is recomputed as executions over
// executions plus this one failed attempt.
func (c *Coordinator) MarkFailed(id string, code uint16) (Batch, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	b, err := c.pending(id)
	if err != nil {
		return Batch{}, err
	}
	b.Status = StatusFailed
	b.ErrorCode = &code
	c.stats.TotalFailures++
	attempts := c.stats.TotalExecutions + 1
	c.stats.SuccessRateBps = uint16(c.stats.TotalExecutions * fullSuccessBps / attempts)

	c.metrics.Batches.WithLabelValues("failed").Inc()
	c.logger.Warn("batch failed", "id", id, "error_code", code)
	return *b, nil
}

func (c *Coordinator) Get(id string) (Batch, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	b, ok := c.batches[id]
	if !ok {
		return Batch{}, errs.New(errs.KindBatchNotFound, id, "batch not found")
	}
	return *b, nil
}

func (c *Coordinator) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stats
}

func (c *Coordinator) pending(id string) (*Batch, error) {
	b, ok := c.batches[id]
	if !ok {
		return nil, errs.New(errs.KindBatchNotFound, id, "batch not found")
	}
	if b.Status != StatusPending {
		return nil, errs.New(errs.KindBatchNotPending, id, "batch is %s", b.Status)
	}
	return b, nil
}
