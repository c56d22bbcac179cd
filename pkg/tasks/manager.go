package tasks

import (
	"context"
	"sort"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/Sumatoshi-tech/parsegraph/pkg/telemetry"
)

const tracerName = "github.com/Sumatoshi-tech/parsegraph/pkg/tasks"

type activeHolder struct {
	kind     Kind
	priority int
	handle   *Handle
}

type waiter struct {
	kind     Kind
	priority int
	ready    chan *Lease
	failed   chan struct{}
}

// Manager schedules Analysis/Mutation/Exclusive leases. The zero value is
// not usable; construct with NewManager.
type Manager struct {
	mu sync.Mutex

	analysisCount int
	mutationCount int
	exclusive     bool

	accessLevel int
	holders     []*activeHolder
	waiters     []*waiter

	tracer  trace.Tracer
	metrics *telemetry.REDMetrics
}

// NewManager creates an idle Manager. metrics is optional and may be nil;
// tracing always uses the globally registered TracerProvider, a no-op
// until a host calls telemetry.Init.
func NewManager(metrics *telemetry.REDMetrics) *Manager {
	return &Manager{tracer: otel.Tracer(tracerName), metrics: metrics}
}

// Acquire requests a lease of the given kind and priority. If blocking is
// true and the lease cannot be granted immediately, Acquire parks the
// caller (signalling any lower-priority active holders to voluntarily
// finish via their Handle.Trigger) until a slot opens or ctx is done. If
// blocking is false, Acquire returns ErrInterrupted immediately instead of
// parking.
func (m *Manager) Acquire(ctx context.Context, kind Kind, priority int, blocking bool) (*Lease, error) {
	ctx, span := m.tracer.Start(ctx, "tasks.Acquire", trace.WithAttributes(
		attribute.String("task.kind", kind.String()),
		attribute.Int("task.priority", priority),
		attribute.Bool("task.blocking", blocking),
	))
	defer span.End()

	start := time.Now()

	lease, err := m.acquire(ctx, kind, priority, blocking)

	status := "granted"
	if err != nil {
		status = "interrupted"
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}

	if m.metrics != nil {
		m.metrics.RecordRequest(ctx, "acquire_"+kind.String(), status, time.Since(start))
	}

	return lease, err
}

func (m *Manager) acquire(ctx context.Context, kind Kind, priority int, blocking bool) (*Lease, error) {
	m.mu.Lock()

	if priority < m.accessLevel {
		m.mu.Unlock()

		return nil, ErrInterrupted
	}

	if m.admitsLocked(kind) && !m.hasHigherOrEqualWaiterLocked(priority) {
		lease := m.grantLocked(kind, priority)
		m.mu.Unlock()

		return lease, nil
	}

	if !blocking {
		m.mu.Unlock()

		return nil, ErrInterrupted
	}

	m.triggerLowerPriorityHoldersLocked(priority)

	w := &waiter{kind: kind, priority: priority, ready: make(chan *Lease, 1), failed: make(chan struct{}, 1)}
	m.waiters = append(m.waiters, w)
	m.mu.Unlock()

	select {
	case lease := <-w.ready:
		return lease, nil
	case <-w.failed:
		return nil, ErrInterrupted
	case <-ctx.Done():
		m.removeWaiter(w)

		// A grant may have raced the cancellation: wakeWaitersLocked could
		// have already sent on w.ready just before removeWaiter ran. Drain
		// and release it rather than leaking a held slot nobody frees.
		select {
		case lease := <-w.ready:
			lease.Release()
		default:
		}

		return nil, ErrInterrupted
	}
}

// TryAcquire is the non-blocking form of Acquire.
func (m *Manager) TryAcquire(ctx context.Context, kind Kind, priority int) (*Lease, error) {
	return m.Acquire(ctx, kind, priority, false)
}

// admitsLocked reports whether kind may be granted given the current mode.
// Must be called with mu held.
func (m *Manager) admitsLocked(kind Kind) bool {
	if m.exclusive {
		return false
	}

	if kind == Exclusive {
		return m.analysisCount == 0 && m.mutationCount == 0
	}

	return true
}

// hasHigherOrEqualWaiterLocked reports whether a queued waiter outranks
// (or ties) priority — in which case a new, equal-or-lower-priority
// request must queue behind it rather than jump ahead. Must be called
// with mu held.
func (m *Manager) hasHigherOrEqualWaiterLocked(priority int) bool {
	for _, w := range m.waiters {
		if w.priority >= priority {
			return true
		}
	}

	return false
}

func (m *Manager) grantLocked(kind Kind, priority int) *Lease {
	switch kind {
	case Analysis:
		m.analysisCount++
	case Mutation:
		m.mutationCount++
	case Exclusive:
		m.exclusive = true
	}

	handle := &Handle{}
	m.holders = append(m.holders, &activeHolder{kind: kind, priority: priority, handle: handle})

	return &Lease{manager: m, kind: kind, priority: priority, handle: handle}
}

// triggerLowerPriorityHoldersLocked signals every active holder whose
// priority is strictly lower than priority, so they may finish
// voluntarily and free a slot for the parking caller. Must be called with
// mu held.
func (m *Manager) triggerLowerPriorityHoldersLocked(priority int) {
	for _, h := range m.holders {
		if h.priority < priority {
			h.handle.Trigger()
		}
	}
}

func (m *Manager) removeWaiter(target *waiter) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for i, w := range m.waiters {
		if w == target {
			m.waiters = append(m.waiters[:i], m.waiters[i+1:]...)

			return
		}
	}
}

func (m *Manager) release(l *Lease) {
	m.mu.Lock()

	for i, h := range m.holders {
		if h.handle == l.handle {
			m.holders = append(m.holders[:i], m.holders[i+1:]...)

			break
		}
	}

	switch l.kind {
	case Analysis:
		m.analysisCount--
	case Mutation:
		m.mutationCount--
	case Exclusive:
		m.exclusive = false
	}

	m.wakeWaitersLocked()
	m.mu.Unlock()
}

// wakeWaitersLocked grants leases to as many queued waiters, in
// descending priority order, as the current mode now admits. Must be
// called with mu held.
func (m *Manager) wakeWaitersLocked() {
	if len(m.waiters) == 0 {
		return
	}

	sort.SliceStable(m.waiters, func(i, j int) bool { return m.waiters[i].priority > m.waiters[j].priority })

	remaining := m.waiters[:0]

	for _, w := range m.waiters {
		if w.priority < m.accessLevel {
			close(w.failed)

			continue
		}

		if m.admitsLocked(w.kind) {
			lease := m.grantLocked(w.kind, w.priority)
			w.ready <- lease

			continue
		}

		remaining = append(remaining, w)
	}

	m.waiters = remaining
}

// SetAccessLevel signals every active holder with priority < level to
// finish (via Handle.Trigger), fails every queued waiter with priority <
// level, and makes future acquisitions with priority < level fail with
// ErrInterrupted until the level is lowered again.
func (m *Manager) SetAccessLevel(level int) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.accessLevel = level

	for _, h := range m.holders {
		if h.priority < level {
			h.handle.Trigger()
		}
	}

	remaining := m.waiters[:0]

	for _, w := range m.waiters {
		if w.priority < level {
			close(w.failed)

			continue
		}

		remaining = append(remaining, w)
	}

	m.waiters = remaining
}

// AccessLevel returns the manager's current access-level threshold.
func (m *Manager) AccessLevel() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.accessLevel
}
