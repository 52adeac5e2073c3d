package orchestration

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/koscakluka/ema-interview/core/events"
	"github.com/koscakluka/ema-interview/core/ledger"
	"github.com/koscakluka/ema-interview/core/metrics"
	"github.com/koscakluka/ema-interview/core/planner"
	"golang.org/x/sync/semaphore"
)

// Manager starts interview sessions and keeps track of them. It is safe for
// concurrent use.
type Manager struct {
	pool          *ServicePool
	config        Config
	bank          *planner.Bank
	metrics       *metrics.Metrics
	onEvent       func(events.Event)
	fallbackAudio []byte
	newID         func() string

	sem *semaphore.Weighted
	wg  sync.WaitGroup

	mu       sync.RWMutex
	closed   bool
	sessions map[string]*controller
	// archive holds the final state of ended sessions, oldest first.
	archive      map[string]archivedSession
	archiveOrder []string
}

type archivedSession struct {
	state   State
	entries []ledger.Entry
}

func NewManager(pool *ServicePool, opts ...ManagerOption) (*Manager, error) {
	if pool == nil {
		return nil, errors.New("service pool is required")
	}

	m := &Manager{
		pool:     pool,
		config:   DefaultConfig(),
		sessions: map[string]*controller{},
		archive:  map[string]archivedSession{},
	}
	for _, opt := range opts {
		opt(m)
	}
	if err := m.config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if m.bank == nil {
		m.bank = planner.DefaultBank()
	}
	if m.newID == nil {
		m.newID = uuid.NewString
	}
	m.sem = semaphore.NewWeighted(int64(m.config.MaxConcurrentSessions))
	return m, nil
}

// StartSession begins a new interview and returns its id. The session keeps
// running after ctx is cancelled; use AbortSession to stop it.
func (m *Manager) StartSession(ctx context.Context, candidate, position, roomRef string) (string, error) {
	ctx, span := tracer.Start(ctx, "start session")
	defer span.End()

	candidate = strings.TrimSpace(candidate)
	if candidate == "" {
		return "", recordError(span, ErrMissingCandidate)
	}
	position = strings.TrimSpace(position)
	if position == "" {
		position = m.bank.DefaultPosition
	}

	m.mu.RLock()
	closed := m.closed
	m.mu.RUnlock()
	if closed {
		return "", recordError(span, ErrManagerClosed)
	}

	if !m.sem.TryAcquire(1) {
		m.metrics.SessionRejected()
		logger.Warn("rejecting session, at capacity", "max_sessions", m.config.MaxConcurrentSessions)
		return "", recordError(span, ErrTooManySessions)
	}

	lease, err := m.pool.Acquire()
	if err != nil {
		m.sem.Release(1)
		return "", recordError(span, fmt.Errorf("failed to acquire services: %w", err))
	}

	info := sessionInfo{
		id:        m.newID(),
		candidate: candidate,
		position:  position,
		roomRef:   roomRef,
		startedAt: time.Now(),
	}
	c, err := newController(context.WithoutCancel(ctx), info, m, lease)
	if err != nil {
		lease.Release()
		m.sem.Release(1)
		return "", recordError(span, err)
	}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		_ = c.failStart(ErrManagerClosed)
		lease.Release()
		m.sem.Release(1)
		return "", recordError(span, ErrManagerClosed)
	}
	if _, ok := m.sessions[info.id]; ok {
		m.mu.Unlock()
		err := c.failStart(fmt.Errorf("%w: duplicate session id %s", ErrInternal, info.id))
		lease.Release()
		m.sem.Release(1)
		return "", recordError(span, err)
	}
	m.sessions[info.id] = c
	m.wg.Add(1)
	m.mu.Unlock()

	if err := c.start(); err != nil {
		m.mu.Lock()
		delete(m.sessions, info.id)
		m.mu.Unlock()
		lease.Release()
		m.sem.Release(1)
		m.wg.Done()
		return "", recordError(span, err)
	}

	m.metrics.SessionStarted()
	go func() {
		defer m.wg.Done()
		c.run()
		c.persister.wait()
		lease.Release()
		m.sem.Release(1)
		m.retire(c)
	}()
	return info.id, nil
}

// retire moves an ended session into the bounded archive.
func (m *Manager) retire(c *controller) {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.sessions, c.id)
	m.archive[c.id] = archivedSession{state: c.State(), entries: c.ledger.Entries()}
	m.archiveOrder = append(m.archiveOrder, c.id)
	for len(m.archiveOrder) > m.config.ArchiveSize {
		delete(m.archive, m.archiveOrder[0])
		m.archiveOrder = m.archiveOrder[1:]
	}
}

// GetSessionState returns the latest snapshot of a running or recently ended
// session.
func (m *Manager) GetSessionState(id string) (State, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if c, ok := m.sessions[id]; ok {
		return c.State(), nil
	}
	if archived, ok := m.archive[id]; ok {
		return archived.state, nil
	}
	return State{}, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
}

// Transcript returns the ledger entries recorded so far.
func (m *Manager) Transcript(id string) ([]ledger.Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if c, ok := m.sessions[id]; ok {
		return c.ledger.Entries(), nil
	}
	if archived, ok := m.archive[id]; ok {
		return append([]ledger.Entry(nil), archived.entries...), nil
	}
	return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
}

// AbortSession stops a running session. The ledger recorded so far is kept.
func (m *Manager) AbortSession(id string) error {
	m.mu.RLock()
	c, running := m.sessions[id]
	_, archived := m.archive[id]
	m.mu.RUnlock()

	switch {
	case running:
		if c.State().Status.Terminal() {
			return fmt.Errorf("%w: %s", ErrSessionEnded, id)
		}
		c.requestAbort(ErrSessionAborted)
		return nil
	case archived:
		return fmt.Errorf("%w: %s", ErrSessionEnded, id)
	default:
		return fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
}

// Wait blocks until the session ends or ctx is done and returns its final
// state.
func (m *Manager) Wait(ctx context.Context, id string) (State, error) {
	m.mu.RLock()
	c, ok := m.sessions[id]
	m.mu.RUnlock()
	if !ok {
		return m.GetSessionState(id)
	}

	select {
	case <-c.done:
		return c.State(), nil
	case <-ctx.Done():
		return c.State(), ctx.Err()
	}
}

// ActiveSessions returns the ids of sessions that are still running.
func (m *Manager) ActiveSessions() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	ids := make([]string, 0, len(m.sessions))
	for id := range m.sessions {
		ids = append(ids, id)
	}
	return ids
}

// Close aborts every running session and waits for them to wind down. New
// sessions are rejected from the moment Close is called.
func (m *Manager) Close(ctx context.Context) error {
	m.mu.Lock()
	m.closed = true
	running := make([]*controller, 0, len(m.sessions))
	for _, c := range m.sessions {
		running = append(running, c)
	}
	m.mu.Unlock()

	for _, c := range running {
		c.requestAbort(ErrManagerClosed)
	}

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("failed to wait for sessions to end: %w", ctx.Err())
	}
}
