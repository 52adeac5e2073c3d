package orchestration

import (
	"context"
	"time"

	"github.com/koscakluka/ema-interview/core/ledger"
	"github.com/koscakluka/ema-interview/core/metrics"
	"github.com/koscakluka/ema-interview/core/persistence"
)

type persistOp struct {
	name string
	run  func(ctx context.Context) error
}

// persister forwards ledger appends to the store in order on its own
// goroutine. A nil persister drops everything.
type persister struct {
	store     persistence.Store
	sessionID string
	baseCtx   context.Context
	timeout   time.Duration
	metrics   *metrics.Metrics

	queue chan persistOp
	done  chan struct{}
}

func newPersister(ctx context.Context, store persistence.Store, sessionID string, queueSize int, timeout time.Duration, m *metrics.Metrics) *persister {
	if store == nil {
		return nil
	}

	p := &persister{
		store:     store,
		sessionID: sessionID,
		baseCtx:   context.WithoutCancel(ctx),
		timeout:   timeout,
		metrics:   m,
		queue:     make(chan persistOp, queueSize),
		done:      make(chan struct{}),
	}
	go p.run()
	return p
}

func (p *persister) run() {
	defer close(p.done)
	for op := range p.queue {
		ctx, cancel := context.WithTimeout(p.baseCtx, p.timeout)
		err := op.run(ctx)
		cancel()
		if err != nil {
			p.metrics.PersistenceError(op.name)
			logger.Warn("failed to persist session record",
				"session_id", p.sessionID,
				"operation", op.name,
				"error", err,
			)
		}
	}
}

func (p *persister) appendUtterance(utterance ledger.Utterance) {
	if p == nil {
		return
	}

	op := persistOp{name: "append_utterance", run: func(ctx context.Context) error {
		return p.store.AppendUtterance(ctx, p.sessionID, utterance)
	}}
	select {
	case p.queue <- op:
	default:
		p.metrics.PersistenceError("queue_full")
		logger.Warn("persistence queue full, dropping utterance",
			"session_id", p.sessionID,
			"utterance_id", utterance.ID,
		)
	}
}

// finalize queues the summary and closes the queue. The summary is written
// after every pending append.
func (p *persister) finalize(summary persistence.Summary) {
	if p == nil {
		return
	}

	op := persistOp{name: "finalize_session", run: func(ctx context.Context) error {
		return p.store.FinalizeSession(ctx, p.sessionID, summary)
	}}
	select {
	case p.queue <- op:
	case <-time.After(p.timeout):
		p.metrics.PersistenceError("queue_full")
		logger.Warn("persistence queue full, dropping session summary", "session_id", p.sessionID)
	}
	close(p.queue)
}

// discard stops the persister without writing a summary.
func (p *persister) discard() {
	if p == nil {
		return
	}
	close(p.queue)
}

// wait blocks until everything queued has been written.
func (p *persister) wait() {
	if p == nil {
		return
	}
	<-p.done
}
