package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

// stubSurveyStore backs every store interface of the package with maps.
type stubSurveyStore struct {
	mu           sync.Mutex
	participants map[string]*Participant
	submissions  map[string]*Submission
	consents     []*ConsentRecord
	createErr    error
	findErr      error
	duplicates   int
	findCalls    int
}

func newStubSurveyStore() *stubSurveyStore {
	return &stubSurveyStore{
		participants: map[string]*Participant{},
		submissions:  map[string]*Submission{},
	}
}

func (s *stubSurveyStore) FindParticipantByKey(_ context.Context, key string) (*Participant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.findCalls++
	if s.findErr != nil {
		return nil, s.findErr
	}
	p, ok := s.participants[key]
	if !ok {
		return nil, nil
	}
	copy := *p
	_, copy.HasSubmission = s.submissions[p.ID]
	return &copy, nil
}

func (s *stubSurveyStore) CreateParticipant(_ context.Context, p *Participant) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.createErr != nil {
		return s.createErr
	}
	if s.duplicates > 0 {
		s.duplicates--
		return ErrDuplicateKey
	}
	if _, ok := s.participants[p.Key]; ok {
		return ErrDuplicateKey
	}
	copy := *p
	s.participants[p.Key] = &copy
	return nil
}

func (s *stubSurveyStore) CreateSubmission(_ context.Context, sub *Submission) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.createErr != nil {
		return s.createErr
	}
	if _, ok := s.submissions[sub.ParticipantID]; ok {
		return ErrSubmissionExists
	}
	copy := *sub
	s.submissions[sub.ParticipantID] = &copy
	return nil
}

func (s *stubSurveyStore) CreateConsentRecord(_ context.Context, cr *ConsentRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.createErr != nil {
		return s.createErr
	}
	copy := *cr
	s.consents = append(s.consents, &copy)
	return nil
}

func (s *stubSurveyStore) ListSubmissions(context.Context) ([]*Submission, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.findErr != nil {
		return nil, s.findErr
	}
	out := make([]*Submission, 0, len(s.submissions))
	for _, sub := range s.submissions {
		copy := *sub
		out = append(out, &copy)
	}
	return out, nil
}

func (s *stubSurveyStore) addParticipant(id, key string, over18 *bool) {
	s.participants[key] = &Participant{ID: id, Key: key, UsesPlatform: true, IsEnglish: true, IsOver13: true, IsOver18: over18}
}

func fixedNow() time.Time { return time.Date(2025, 9, 18, 12, 0, 0, 0, time.UTC) }

func newTestParticipantService(store ParticipantStore) *ParticipantService {
	svc := NewParticipantService(store)
	svc.now = fixedNow
	svc.idGen = func() string { return "P1" }
	svc.keyGen = func() (string, error) { return "ABCDEF123", nil }
	return svc
}

func TestCheckEligibilityCreatesParticipant(t *testing.T) {
	store := newStubSurveyStore()
	svc := newTestParticipantService(store)

	res, err := svc.CheckEligibility(context.Background(), EligibilityRequest{
		UsesPlatform: boolPtr(true), IsEnglish: boolPtr(true), IsOver13: boolPtr(true), IsOver18: boolPtr(false),
	})
	if err != nil {
		t.Fatalf("CheckEligibility error: %v", err)
	}
	if res.Key != "ABCDEF123" || res.State != StateEligible {
		t.Fatalf("unexpected result: %+v", res)
	}
	p := store.participants["ABCDEF123"]
	if p == nil || p.ID != "P1" || p.IsOver18 == nil || *p.IsOver18 {
		t.Fatalf("participant not stored as minor: %+v", p)
	}
}

func TestCheckEligibilityRejectsIneligible(t *testing.T) {
	cases := []EligibilityRequest{
		{UsesPlatform: boolPtr(false), IsEnglish: boolPtr(true), IsOver13: boolPtr(true)},
		{UsesPlatform: boolPtr(true), IsEnglish: boolPtr(false), IsOver13: boolPtr(true)},
		{UsesPlatform: boolPtr(true), IsEnglish: boolPtr(true), IsOver13: boolPtr(false)},
		{UsesPlatform: boolPtr(true), IsEnglish: boolPtr(true), DateOfBirth: "2014-01-01"},
	}
	for i, req := range cases {
		store := newStubSurveyStore()
		_, err := newTestParticipantService(store).CheckEligibility(context.Background(), req)
		se, ok := AsServiceError(err)
		if !ok || se.Code != ErrorInvalid || se.Fields["eligibility"] == "" {
			t.Fatalf("case %d: expected eligibility error, got %v", i, err)
		}
		if len(store.participants) != 0 {
			t.Fatalf("case %d: ineligible participant stored", i)
		}
	}
}

func TestCheckEligibilityMissingAnswers(t *testing.T) {
	_, err := newTestParticipantService(newStubSurveyStore()).CheckEligibility(context.Background(), EligibilityRequest{})
	se, ok := AsServiceError(err)
	if !ok || se.Code != ErrorInvalid {
		t.Fatalf("expected validation error, got %v", err)
	}
	for _, f := range []string{"usesPlatform", "isEnglish", "isOver13"} {
		if se.Fields[f] == "" {
			t.Fatalf("missing field error for %s: %+v", f, se.Fields)
		}
	}
}

func TestCheckEligibilityFromDateOfBirth(t *testing.T) {
	cases := []struct {
		dob    string
		over18 bool
	}{
		{"2007-09-18", true},  // 18th birthday today
		{"2007-09-19", false}, // 18 tomorrow
		{"2012-09-18", false}, // 13 today
	}
	for _, c := range cases {
		store := newStubSurveyStore()
		res, err := newTestParticipantService(store).CheckEligibility(context.Background(), EligibilityRequest{
			UsesPlatform: boolPtr(true), IsEnglish: boolPtr(true), DateOfBirth: c.dob,
		})
		if err != nil {
			t.Fatalf("%s: %v", c.dob, err)
		}
		if res.IsOver18 == nil || *res.IsOver18 != c.over18 {
			t.Fatalf("%s: over18 = %v, want %v", c.dob, res.IsOver18, c.over18)
		}
	}

	_, err := newTestParticipantService(newStubSurveyStore()).CheckEligibility(context.Background(), EligibilityRequest{
		UsesPlatform: boolPtr(true), IsEnglish: boolPtr(true), DateOfBirth: "2012-09-19",
	})
	if se, ok := AsServiceError(err); !ok || se.Fields["eligibility"] == "" {
		t.Fatalf("12-year-old should be ineligible, got %v", err)
	}
	_, err = newTestParticipantService(newStubSurveyStore()).CheckEligibility(context.Background(), EligibilityRequest{
		UsesPlatform: boolPtr(true), IsEnglish: boolPtr(true), DateOfBirth: "2030-01-01",
	})
	if se, ok := AsServiceError(err); !ok || se.Fields["dateOfBirth"] == "" {
		t.Fatalf("future birth date should be rejected, got %v", err)
	}
}

func TestCheckEligibilityRetriesKeyCollisions(t *testing.T) {
	store := newStubSurveyStore()
	store.duplicates = 2
	svc := newTestParticipantService(store)
	keys := []string{"AAAAAAAA1", "AAAAAAAA2", "AAAAAAAA3"}
	svc.keyGen = func() (string, error) {
		k := keys[0]
		keys = keys[1:]
		return k, nil
	}
	res, err := svc.CheckEligibility(context.Background(), EligibilityRequest{
		UsesPlatform: boolPtr(true), IsEnglish: boolPtr(true), IsOver13: boolPtr(true),
	})
	if err != nil {
		t.Fatalf("CheckEligibility error: %v", err)
	}
	if res.Key != "AAAAAAAA3" {
		t.Fatalf("expected third key, got %s", res.Key)
	}

	store = newStubSurveyStore()
	store.duplicates = maxKeyAttempts
	_, err = newTestParticipantService(store).CheckEligibility(context.Background(), EligibilityRequest{
		UsesPlatform: boolPtr(true), IsEnglish: boolPtr(true), IsOver13: boolPtr(true),
	})
	if !IsCode(err, ErrorStorage) {
		t.Fatalf("expected storage error after exhausting attempts, got %v", err)
	}
}

func TestGenerateParticipantKey(t *testing.T) {
	seen := map[string]bool{}
	for i := 0; i < 50; i++ {
		k, err := GenerateParticipantKey()
		if err != nil {
			t.Fatalf("generate: %v", err)
		}
		if len(k) != 9 {
			t.Fatalf("key length %d", len(k))
		}
		for _, r := range k {
			if !(r >= '0' && r <= '9') && !(r >= 'A' && r <= 'Z') {
				t.Fatalf("unexpected rune %q in %s", r, k)
			}
		}
		seen[k] = true
	}
	if len(seen) < 50 {
		t.Fatalf("expected distinct keys, got %d", len(seen))
	}
}

func TestVerifyParticipant(t *testing.T) {
	store := newStubSurveyStore()
	store.addParticipant("P1", "KEY000001", boolPtr(true))
	svc := newTestParticipantService(store)

	view, err := svc.Verify(context.Background(), " key000001 ")
	if err != nil {
		t.Fatalf("Verify error: %v", err)
	}
	if view.ID != "P1" || view.State != StateConsentPending {
		t.Fatalf("unexpected view: %+v", view)
	}

	if _, err := svc.Verify(context.Background(), "NOPE"); !IsCode(err, ErrorNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}

	store.submissions["P1"] = &Submission{ID: "S1", ParticipantID: "P1"}
	_, err = svc.Verify(context.Background(), "KEY000001")
	se, ok := AsServiceError(err)
	if !ok || se.Code != ErrorConflict || se.Message != "Survey already completed." {
		t.Fatalf("expected already completed conflict, got %v", err)
	}
}

func TestVerifyStorageFailure(t *testing.T) {
	store := newStubSurveyStore()
	store.findErr = errors.New("db down")
	_, err := newTestParticipantService(store).Verify(context.Background(), "KEY000001")
	if !IsCode(err, ErrorStorage) || !errors.Is(err, store.findErr) {
		t.Fatalf("expected wrapped storage error, got %v", err)
	}
}
