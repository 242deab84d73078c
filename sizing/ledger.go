package sizing

import (
	"context"
	"sync"
)

// Ledger tracks the CPU and memory reserved by operators that are currently
// running anywhere in the process, across concurrent runs. Every snapshot it
// reports is the wrapped accountant's budget minus live reservations.
type Ledger struct {
	inner Accountant

	mu     sync.Mutex
	cpu    float64
	mem    float64
	active int
}

// NewLedger wraps an accountant with reservation tracking.
func NewLedger(inner Accountant) *Ledger {
	return &Ledger{inner: inner}
}

var (
	sharedOnce   sync.Once
	sharedLedger *Ledger
)

// Shared returns the process-wide ledger over the local host.
func Shared() *Ledger {
	sharedOnce.Do(func() {
		sharedLedger = NewLedger(NewHostAccountant(Config{}))
	})
	return sharedLedger
}

// Available returns the current snapshot: the inner budget minus every live
// reservation, never negative.
func (l *Ledger) Available(ctx context.Context, req Request) (Budget, error) {
	b, err := l.inner.Available(ctx, req)
	if err != nil {
		return Budget{}, err
	}
	l.mu.Lock()
	b.CPU -= l.cpu
	b.MemoryGB -= l.mem
	l.mu.Unlock()
	return b.clamp(), nil
}

// Reserve records a reservation and returns the function that releases it.
// Release is idempotent.
func (l *Ledger) Reserve(cpu, memGB float64) func() {
	l.mu.Lock()
	l.cpu += cpu
	l.mem += memGB
	l.active++
	l.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			l.mu.Lock()
			l.cpu -= cpu
			l.mem -= memGB
			l.active--
			l.mu.Unlock()
		})
	}
}

// InUse returns the reserved CPU, memory and the number of live reservations.
func (l *Ledger) InUse() (cpu, memGB float64, active int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.cpu, l.mem, l.active
}
