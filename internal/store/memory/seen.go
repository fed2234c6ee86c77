package memory

import (
	"context"
	"sync"
)

// SeenStore remembers surfaced entry ids per alert.
type SeenStore struct {
	mu   sync.Mutex
	seen map[string]map[string]struct{}
}

func NewSeenStore() *SeenStore { return &SeenStore{seen: make(map[string]map[string]struct{})} }

func (s *SeenStore) Unseen(_ context.Context, alertID string, ids []string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	set := s.seen[alertID]
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, ok := set[id]; !ok {
			out = append(out, id)
		}
	}
	return out, nil
}

func (s *SeenStore) Mark(_ context.Context, alertID string, ids []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	set, ok := s.seen[alertID]
	if !ok {
		set = make(map[string]struct{}, len(ids))
		s.seen[alertID] = set
	}
	for _, id := range ids {
		set[id] = struct{}{}
	}
	return nil
}
