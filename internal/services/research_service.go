package services

import (
	"context"
	"time"

	log "github.com/sirupsen/logrus"
)

// ResearchService serves the researcher export. Submissions reference
// participants by internal id only, never by key.
type ResearchService struct {
	store ResearchStore
	now   func() time.Time
	log   log.FieldLogger
}

func NewResearchService(store ResearchStore) *ResearchService {
	return &ResearchService{
		store: store,
		now:   func() time.Time { return time.Now().UTC() },
		log:   log.WithField("prefix", "research"),
	}
}

func (s *ResearchService) WithLogger(l log.FieldLogger) {
	s.log = l
}

func (s *ResearchService) ListSubmissions(ctx context.Context) ([]*Submission, error) {
	subs, err := s.store.ListSubmissions(ctx)
	if err != nil {
		s.log.WithError(err).Error("list submissions")
		return nil, NewStorageError("list submissions", err)
	}
	if subs == nil {
		subs = []*Submission{}
	}
	s.log.WithField("count", len(subs)).Info("submissions exported")
	return subs, nil
}
