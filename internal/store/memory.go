package store

import (
	"context"
	"sync"
)

// Memory implements Membership on process-local maps. It exists for tests
// and for running the coordinator without a Redis endpoint; it has the same
// delete-when-empty semantics as the Redis implementation.
type Memory struct {
	mu       sync.Mutex
	channels map[string]map[string]struct{}
}

func NewMemory() *Memory {
	return &Memory{channels: make(map[string]map[string]struct{})}
}

func (s *Memory) AddMember(_ context.Context, channelID, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	set := s.channels[channelID]
	if set == nil {
		set = make(map[string]struct{})
		s.channels[channelID] = set
	}
	set[userID] = struct{}{}
	return nil
}

func (s *Memory) RemoveMember(_ context.Context, channelID, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	set := s.channels[channelID]
	if set == nil {
		return nil
	}
	delete(set, userID)
	if len(set) == 0 {
		delete(s.channels, channelID)
	}
	return nil
}

func (s *Memory) ListMembers(_ context.Context, channelID string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	set := s.channels[channelID]
	out := make([]string, 0, len(set))
	for userID := range set {
		out = append(out, userID)
	}
	return out, nil
}

// HasChannel reports whether a set exists for the channel at all. Tests use
// it to assert that emptied channels are deleted rather than left empty.
func (s *Memory) HasChannel(channelID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.channels[channelID]
	return ok
}
