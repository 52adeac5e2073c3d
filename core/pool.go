package orchestration

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"sync"

	"github.com/koscakluka/ema-interview/core/persistence"
	"github.com/koscakluka/ema-interview/core/planner"
)

// Services are the external collaborators shared by every session.
type Services struct {
	Transport    Transport
	SpeechToText SpeechToText
	TextToSpeech TextToSpeech
	// LLM is optional. Without it every interviewer line comes from the
	// question bank.
	LLM planner.LLM
	// Persistence is optional.
	Persistence persistence.Store
}

func (s Services) validate() error {
	var errs []error
	if s.Transport == nil {
		errs = append(errs, errors.New("transport is required"))
	}
	if s.SpeechToText == nil {
		errs = append(errs, errors.New("speech to text is required"))
	}
	if s.TextToSpeech == nil {
		errs = append(errs, errors.New("text to speech is required"))
	}
	return errors.Join(errs...)
}

// ServicePool hands the shared collaborators to sessions and counts how many
// sessions hold them. Closing the pool waits for every lease to be released
// before closing the collaborators.
type ServicePool struct {
	services Services

	mu      sync.Mutex
	refs    int
	closed  bool
	drained chan struct{}

	shutdown sync.Once
}

func NewServicePool(services Services) (*ServicePool, error) {
	if err := services.validate(); err != nil {
		return nil, fmt.Errorf("invalid services: %w", err)
	}
	return &ServicePool{services: services, drained: make(chan struct{})}, nil
}

// Lease is one session's hold on the pool.
type Lease struct {
	Services

	pool    *ServicePool
	release sync.Once
}

func (p *ServicePool) Acquire() (*Lease, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil, ErrPoolClosed
	}
	p.refs++
	return &Lease{Services: p.services, pool: p}, nil
}

// Release returns the lease. Calling it more than once is a no-op.
func (l *Lease) Release() {
	l.release.Do(func() {
		l.pool.mu.Lock()
		defer l.pool.mu.Unlock()
		l.pool.refs--
		if l.pool.closed && l.pool.refs == 0 {
			close(l.pool.drained)
		}
	})
}

func (p *ServicePool) Refs() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.refs
}

// Close rejects new leases, waits for outstanding ones and closes every
// collaborator that has a Close method. Collaborators are closed only once;
// a Close that timed out waiting for leases can be retried.
func (p *ServicePool) Close(ctx context.Context) error {
	p.mu.Lock()
	if !p.closed {
		p.closed = true
		if p.refs == 0 {
			close(p.drained)
		}
	}
	p.mu.Unlock()

	select {
	case <-p.drained:
	case <-ctx.Done():
		return fmt.Errorf("failed to drain service pool: %w", ctx.Err())
	}

	var err error
	p.shutdown.Do(func() { err = p.closeServices() })
	return err
}

func (p *ServicePool) closeServices() error {
	var errs []error
	seen := map[any]bool{}
	for _, service := range []any{
		p.services.Transport,
		p.services.SpeechToText,
		p.services.TextToSpeech,
		p.services.LLM,
		p.services.Persistence,
	} {
		if service == nil {
			continue
		}
		if reflect.TypeOf(service).Comparable() {
			if seen[service] {
				continue
			}
			seen[service] = true
		}

		switch closer := service.(type) {
		case interface{ Close() error }:
			if err := closer.Close(); err != nil {
				errs = append(errs, fmt.Errorf("failed to close %T: %w", service, err))
			}
		case interface{ Close() }:
			closer.Close()
		}
	}
	return errors.Join(errs...)
}
