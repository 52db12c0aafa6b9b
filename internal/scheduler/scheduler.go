// Package scheduler simulates the guaranteed-slot reservation network. A
// Scheduler is built once per client session and torn down with Close.
package scheduler

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/coldbell/chronos/backend/internal/clock"
	"github.com/coldbell/chronos/backend/internal/codec"
	"github.com/coldbell/chronos/backend/internal/errs"
	"github.com/coldbell/chronos/backend/internal/logging"
	"github.com/coldbell/chronos/backend/internal/metrics"
)

const (
	DefaultConfirmDelay = 500 * time.Millisecond
	DefaultPriority     = 5
	JITPriority         = 10
	JITLead             = time.Second
	MaxAOTLead          = 60 * time.Second
)

var ErrClosed = errors.New("scheduler closed")

type Status string

const (
	StatusPending   Status = "PENDING"
	StatusConfirmed Status = "CONFIRMED"
	StatusExecuted  Status = "EXECUTED"
	StatusFailed    Status = "FAILED"
	StatusExpired   Status = "EXPIRED"
)

type Reservation struct {
	ID             string
	SlotTime       time.Time
	Type           codec.ReservationType
	Status         Status
	Priority       uint8
	ConfirmationID string
	RequestedAt    time.Time
	ConfirmedAt    *time.Time
	ExecutedAt     *time.Time
}

type entry struct {
	res    Reservation
	cancel chan struct{}
}

type Scheduler struct {
	clock        clock.Clock
	confirmDelay time.Duration
	capacity     CapacitySource
	metrics      *metrics.Metrics
	logger       *slog.Logger

	mu           sync.Mutex
	reservations map[string]*entry
	reserved     uint64
	closed       bool

	stop chan struct{}
	wg   sync.WaitGroup
}

type Option func(*Scheduler)

func WithClock(c clock.Clock) Option {
	return func(s *Scheduler) { s.clock = c }
}

func WithConfirmDelay(d time.Duration) Option {
	return func(s *Scheduler) { s.confirmDelay = d }
}

func WithCapacitySource(src CapacitySource) Option {
	return func(s *Scheduler) { s.capacity = src }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Scheduler) { s.metrics = m }
}

func WithLogger(logger *slog.Logger) Option {
	return func(s *Scheduler) { s.logger = logger }
}

func New(opts ...Option) *Scheduler {
	s := &Scheduler{
		clock:        clock.Real{},
		confirmDelay: DefaultConfirmDelay,
		reservations: make(map[string]*entry),
		stop:         make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.capacity == nil {
		s.capacity = RandomCapacity{}
	}
	if s.metrics == nil {
		s.metrics = metrics.NewNop()
	}
	s.logger = logging.Component(s.logger, "scheduler")
	return s
}

// Close stops every pending confirmation and waits for the timers to exit.
func (s *Scheduler) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	close(s.stop)
	s.mu.Unlock()
	s.wg.Wait()
}

// ReserveSlot records a Pending reservation and schedules its confirmation.
// A zero priority means DefaultPriority.
func (s *Scheduler) ReserveSlot(ctx context.Context, slotTime time.Time, typ codec.ReservationType, priority uint8) (Reservation, error) {
	if err := ctx.Err(); err != nil {
		return Reservation{}, err
	}
	if priority == 0 {
		priority = DefaultPriority
	}
	if priority < codec.MinPriority || priority > codec.MaxPriority {
		return Reservation{}, errs.New(errs.KindInvalidArgument, "", "priority %d outside %d..%d", priority, codec.MinPriority, codec.MaxPriority)
	}
	if typ != codec.ReservationAOT && typ != codec.ReservationJIT {
		return Reservation{}, errs.New(errs.KindInvalidArgument, "", "unknown reservation type %d", uint8(typ))
	}

	now := s.clock.Now()
	e := &entry{
		res: Reservation{
			ID:             fmt.Sprintf("res_%d_%s", now.UnixMilli(), shortID()),
			SlotTime:       slotTime,
			Type:           typ,
			Status:         StatusPending,
			Priority:       priority,
			ConfirmationID: fmt.Sprintf("conf_%d_%s", slotTime.UnixMilli(), shortID()),
			RequestedAt:    now,
		},
		cancel: make(chan struct{}),
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return Reservation{}, ErrClosed
	}
	s.reservations[e.res.ID] = e
	s.reserved++
	timer := s.clock.After(s.confirmDelay)
	s.wg.Add(1)
	s.mu.Unlock()

	go s.awaitConfirmation(e.res.ID, timer, e.cancel)

	s.metrics.ReservationTransitions.WithLabelValues(string(StatusPending)).Inc()
	s.logger.Debug("slot reserved", "id", e.res.ID, "type", typ, "slot_time", slotTime, "priority", priority)
	return e.res, nil
}

func (s *Scheduler) ReserveJIT(ctx context.Context) (Reservation, error) {
	return s.ReserveSlot(ctx, s.clock.Now().Add(JITLead), codec.ReservationJIT, JITPriority)
}

func (s *Scheduler) ReserveAOT(ctx context.Context, lead time.Duration, priority uint8) (Reservation, error) {
	if lead < 0 || lead > MaxAOTLead {
		return Reservation{}, errs.New(errs.KindInvalidArgument, "", "AOT lead %s outside 0..%s", lead, MaxAOTLead)
	}
	return s.ReserveSlot(ctx, s.clock.Now().Add(lead), codec.ReservationAOT, priority)
}

func (s *Scheduler) awaitConfirmation(id string, timer <-chan time.Time, cancel <-chan struct{}) {
	defer s.wg.Done()
	select {
	case <-timer:
		s.confirm(id)
	case <-cancel:
	case <-s.stop:
	}
}

func (s *Scheduler) confirm(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.reservations[id]
	if !ok || e.res.Status != StatusPending {
		return
	}
	now := s.clock.Now()
	e.res.Status = StatusConfirmed
	e.res.ConfirmedAt = &now
	s.metrics.ReservationTransitions.WithLabelValues(string(StatusConfirmed)).Inc()
}

// CancelReservation removes a Pending or Confirmed reservation.
func (s *Scheduler) CancelReservation(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.reservations[id]
	if !ok {
		return errs.New(errs.KindReservationNotFound, id, "reservation not found")
	}
	if e.res.Status == StatusExecuted {
		return errs.New(errs.KindCannotCancelExecuted, id, "cannot cancel executed reservation")
	}
	delete(s.reservations, id)
	close(e.cancel)
	s.logger.Debug("reservation cancelled", "id", id)
	return nil
}

// ExecuteWithGuarantee runs payload in the reserved slot and returns an
// opaque 64-hex execution handle.
func (s *Scheduler) ExecuteWithGuarantee(ctx context.Context, payload []byte, id string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.reservations[id]
	if !ok {
		return "", errs.New(errs.KindReservationNotFound, id, "reservation not found")
	}
	now := s.clock.Now()
	if status := effectiveStatus(e.res, now); status != StatusConfirmed {
		return "", errs.New(errs.KindReservationNotConfirmed, id, "reservation is %s", status)
	}

	handle, err := executionHandle()
	if err != nil {
		return "", fmt.Errorf("generate execution handle: %w", err)
	}
	e.res.Status = StatusExecuted
	e.res.ExecutedAt = &now
	s.metrics.ReservationTransitions.WithLabelValues(string(StatusExecuted)).Inc()
	s.metrics.Executions.Inc()
	s.logger.Info("executed with guarantee", "id", id, "handle", handle, "payload_bytes", len(payload))
	return handle, nil
}

// ReservationStatus returns a copy of the reservation with its status
// evaluated against the current time.
func (s *Scheduler) ReservationStatus(id string) (Reservation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.reservations[id]
	if !ok {
		return Reservation{}, errs.New(errs.KindReservationNotFound, id, "reservation not found")
	}
	res := e.res
	res.Status = effectiveStatus(res, s.clock.Now())
	return res, nil
}

func effectiveStatus(r Reservation, now time.Time) Status {
	switch r.Status {
	case StatusPending, StatusConfirmed:
		if now.After(r.SlotTime) {
			return StatusExpired
		}
	}
	return r.Status
}

func shortID() string {
	return uuid.NewString()[:8]
}

func executionHandle() (string, error) {
	var b [32]byte
	if _, err := rand.Read(b[:]); err != nil {
		return "", err
	}
	return hex.EncodeToString(b[:]), nil
}
