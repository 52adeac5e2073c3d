package persistence

import (
	"context"
	"sync"

	"github.com/koscakluka/ema-interview/core/ledger"
)

// MemoryStore keeps records in process. It is safe for concurrent use.
type MemoryStore struct {
	mu         sync.RWMutex
	utterances map[string][]ledger.Utterance
	summaries  map[string]Summary
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		utterances: map[string][]ledger.Utterance{},
		summaries:  map[string]Summary{},
	}
}

func (s *MemoryStore) AppendUtterance(_ context.Context, sessionID string, utterance ledger.Utterance) error {
	if sessionID == "" {
		return ErrInvalidID
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.utterances[sessionID] = append(s.utterances[sessionID], utterance)
	return nil
}

func (s *MemoryStore) FinalizeSession(_ context.Context, sessionID string, summary Summary) error {
	if sessionID == "" {
		return ErrInvalidID
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.summaries[sessionID] = summary
	return nil
}

func (s *MemoryStore) Utterances(_ context.Context, sessionID string) ([]ledger.Utterance, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	utterances, ok := s.utterances[sessionID]
	if !ok {
		return nil, ErrNotFound
	}
	return append([]ledger.Utterance(nil), utterances...), nil
}

func (s *MemoryStore) LoadSummary(_ context.Context, sessionID string) (Summary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	summary, ok := s.summaries[sessionID]
	if !ok {
		return Summary{}, ErrNotFound
	}
	return summary, nil
}
