package api

import (
	"context"
	"sort"
	"sync"

	"github.com/danielkorkin/tiktok-depression-survey/internal/services"
)

// memoryStore keeps everything in maps. It backs tests and the memory
// database driver; data is lost on restart.
type memoryStore struct {
	mu           sync.RWMutex
	participants map[string]*services.Participant // by key
	submissions  map[string]*services.Submission  // by participant id
	consents     []*services.ConsentRecord
}

// NewMemoryStore returns an empty in-memory Store.
func NewMemoryStore() Store {
	return newMemoryStore()
}

func newMemoryStore() *memoryStore {
	return &memoryStore{
		participants: map[string]*services.Participant{},
		submissions:  map[string]*services.Submission{},
		consents:     []*services.ConsentRecord{},
	}
}

func (s *memoryStore) FindParticipantByKey(_ context.Context, key string) (*services.Participant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.participants[key]
	if !ok {
		return nil, nil
	}
	copy := *p
	_, copy.HasSubmission = s.submissions[p.ID]
	return &copy, nil
}

func (s *memoryStore) CreateParticipant(_ context.Context, p *services.Participant) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.participants[p.Key]; ok {
		return services.ErrDuplicateKey
	}
	copy := *p
	copy.HasSubmission = false
	s.participants[p.Key] = &copy
	return nil
}

// CreateSubmission checks and inserts under one lock, so at most one
// submission per participant is ever stored.
func (s *memoryStore) CreateSubmission(_ context.Context, sub *services.Submission) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.submissions[sub.ParticipantID]; ok {
		return services.ErrSubmissionExists
	}
	copy := *sub
	s.submissions[sub.ParticipantID] = &copy
	return nil
}

func (s *memoryStore) CreateConsentRecord(_ context.Context, cr *services.ConsentRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	copy := *cr
	s.consents = append(s.consents, &copy)
	return nil
}

func (s *memoryStore) ListSubmissions(context.Context) ([]*services.Submission, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*services.Submission, 0, len(s.submissions))
	for _, sub := range s.submissions {
		copy := *sub
		out = append(out, &copy)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

func (s *memoryStore) consentCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.consents)
}

func (s *memoryStore) submissionCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.submissions)
}

func (s *memoryStore) Ping(context.Context) error { return nil }
func (s *memoryStore) Close() error               { return nil }
