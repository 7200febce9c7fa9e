package syncer

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"
)

// ErrCycleRunning is returned by TriggerNow while a cycle is in flight.
var ErrCycleRunning = errors.New("sync cycle already running")

// Status is a snapshot of the scheduler for the status endpoint.
type Status struct {
	Running   bool         `json:"running"`
	LastCycle *CycleResult `json:"lastCycle,omitempty"`
	LastError string       `json:"lastError,omitempty"`
}

// Scheduler runs the reconciler once at startup and then on a fixed
// interval, measured from the end of each cycle so slow cycles never
// overlap. Cycle errors are logged and surfaced via Status, never fatal.
type Scheduler struct {
	reconciler *Reconciler
	interval   time.Duration

	cancel context.CancelFunc
	wg     sync.WaitGroup

	// cycleMu serializes cycles; manual triggers use TryLock so callers
	// get an immediate busy answer instead of queueing behind the loop.
	cycleMu sync.Mutex

	mu        sync.Mutex
	running   bool
	lastCycle *CycleResult
	lastError error
}

func NewScheduler(reconciler *Reconciler, interval time.Duration) *Scheduler {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	return &Scheduler{reconciler: reconciler, interval: interval}
}

// Start launches the background loop. The first cycle begins immediately.
func (s *Scheduler) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel

	s.wg.Add(1)
	go s.loop(ctx)
}

// Stop cancels the loop and waits for any in-flight cycle to finish.
func (s *Scheduler) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()
}

func (s *Scheduler) loop(ctx context.Context) {
	defer s.wg.Done()

	for {
		s.cycleMu.Lock()
		s.runCycle(ctx)
		s.cycleMu.Unlock()

		timer := time.NewTimer(s.interval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
	}
}

// TriggerNow runs one cycle on the caller's goroutine. Returns
// ErrCycleRunning if a cycle is already in flight.
func (s *Scheduler) TriggerNow(ctx context.Context) (CycleResult, error) {
	if !s.cycleMu.TryLock() {
		return CycleResult{}, ErrCycleRunning
	}
	defer s.cycleMu.Unlock()

	return s.runCycle(ctx)
}

// runCycle executes one reconciliation and records the outcome. The
// caller must hold cycleMu.
func (s *Scheduler) runCycle(ctx context.Context) (CycleResult, error) {
	if err := ctx.Err(); err != nil {
		return CycleResult{}, err
	}

	s.mu.Lock()
	s.running = true
	s.mu.Unlock()

	result, err := s.reconciler.Run(ctx)
	if err != nil {
		log.Printf("syncer: cycle failed: %v", err)
	} else {
		log.Printf("syncer: cycle done: synced=%d deleted=%d failed=%d elapsed=%s",
			result.Synced, result.Deleted, result.Failed,
			result.FinishedAt.Sub(result.StartedAt).Round(time.Millisecond))
	}

	s.mu.Lock()
	s.running = false
	s.lastError = err
	if err == nil {
		s.lastCycle = &result
	}
	s.mu.Unlock()

	return result, err
}

// Status reports whether a cycle is in flight and the last outcome.
func (s *Scheduler) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()

	status := Status{Running: s.running, LastCycle: s.lastCycle}
	if s.lastError != nil {
		status.LastError = s.lastError.Error()
	}
	return status
}
