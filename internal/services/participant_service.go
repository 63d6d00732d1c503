package services

import (
	"context"
	"crypto/rand"
	"errors"
	"math/big"
	"strings"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
)

const (
	participantKeyLength   = 9
	participantKeyAlphabet = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZ"
	maxKeyAttempts         = 5
	dateOfBirthLayout      = "2006-01-02"
)

// EligibilityRequest carries the screening answers. When DateOfBirth is set
// the age flags are derived from it.
type EligibilityRequest struct {
	UsesPlatform *bool
	IsEnglish    *bool
	IsOver13     *bool
	IsOver18     *bool
	DateOfBirth  string
}

type EligibilityResult struct {
	Key      string
	IsOver18 *bool
	State    ParticipationState
}

// ParticipantView is what a returning participant learns about their record.
type ParticipantView struct {
	ID       string
	Key      string
	IsOver18 *bool
	State    ParticipationState
}

type ParticipantService struct {
	store  ParticipantStore
	now    func() time.Time
	idGen  func() string
	keyGen func() (string, error)
	log    log.FieldLogger
}

func NewParticipantService(store ParticipantStore) *ParticipantService {
	return &ParticipantService{
		store:  store,
		now:    func() time.Time { return time.Now().UTC() },
		idGen:  uuid.NewString,
		keyGen: GenerateParticipantKey,
		log:    log.WithField("prefix", "participant"),
	}
}

func (s *ParticipantService) WithLogger(l log.FieldLogger) {
	s.log = l
}

// GenerateParticipantKey returns a random uppercase base36 key.
func GenerateParticipantKey() (string, error) {
	var b strings.Builder
	base := big.NewInt(int64(len(participantKeyAlphabet)))
	for i := 0; i < participantKeyLength; i++ {
		n, err := rand.Int(rand.Reader, base)
		if err != nil {
			return "", err
		}
		b.WriteByte(participantKeyAlphabet[n.Int64()])
	}
	return b.String(), nil
}

// NormalizeKey trims and upper-cases a typed participant key.
func NormalizeKey(key string) string {
	return strings.ToUpper(strings.TrimSpace(key))
}

func ageOn(dob, now time.Time) int {
	age := now.Year() - dob.Year()
	if now.Month() < dob.Month() || (now.Month() == dob.Month() && now.Day() < dob.Day()) {
		age--
	}
	return age
}

// CheckEligibility screens a prospective participant and, if eligible,
// creates their record and issues a key.
func (s *ParticipantService) CheckEligibility(ctx context.Context, req EligibilityRequest) (*EligibilityResult, error) {
	fields := FieldErrors{}
	if req.UsesPlatform == nil {
		fields.Add("usesPlatform", "required")
	}
	if req.IsEnglish == nil {
		fields.Add("isEnglish", "required")
	}
	over13, over18 := req.IsOver13, req.IsOver18
	if dob := strings.TrimSpace(req.DateOfBirth); dob != "" {
		born, err := time.Parse(dateOfBirthLayout, dob)
		now := s.now()
		switch {
		case err != nil:
			fields.Add("dateOfBirth", "must be a date like 2006-01-02")
		case born.After(now):
			fields.Add("dateOfBirth", "cannot be in the future")
		default:
			age := ageOn(born, now)
			a13, a18 := age > 12, age >= 18
			over13, over18 = &a13, &a18
		}
	} else if over13 == nil {
		fields.Add("isOver13", "required")
	}
	if err := fields.Err("Missing or invalid required fields."); err != nil {
		return nil, err
	}

	if !*req.UsesPlatform || !*req.IsEnglish || !*over13 {
		return nil, NewValidationError("Not eligible for this study.", map[string]string{
			"eligibility": "participants must use the platform, primarily speak English and be at least 13",
		})
	}

	p := &Participant{
		ID:           s.idGen(),
		UsesPlatform: true,
		IsEnglish:    true,
		IsOver13:     true,
		IsOver18:     over18,
		CreatedAt:    s.now(),
	}
	for attempt := 1; ; attempt++ {
		key, err := s.keyGen()
		if err != nil {
			return nil, NewStorageError("generate participant key", err)
		}
		p.Key = key
		err = s.store.CreateParticipant(ctx, p)
		if err == nil {
			break
		}
		if errors.Is(err, ErrDuplicateKey) && attempt < maxKeyAttempts {
			s.log.WithField("attempt", attempt).Warn("participant key collision, retrying")
			continue
		}
		s.log.WithError(err).Error("create participant")
		return nil, NewStorageError("create participant", err)
	}
	s.log.WithField("participant_id", p.ID).Info("participant created")
	return &EligibilityResult{Key: p.Key, IsOver18: p.IsOver18, State: StateEligible}, nil
}

// Verify resolves a returning participant. A participant who already
// submitted cannot continue.
func (s *ParticipantService) Verify(ctx context.Context, key string) (*ParticipantView, error) {
	key = NormalizeKey(key)
	if key == "" {
		return nil, NewValidationError("User key is required.", map[string]string{"key": "required"})
	}
	p, err := s.store.FindParticipantByKey(ctx, key)
	if err != nil {
		s.log.WithError(err).Error("find participant")
		return nil, NewStorageError("find participant", err)
	}
	if p == nil {
		return nil, NewNotFoundError("User not found.")
	}
	if p.HasSubmission {
		return nil, NewConflictError("Survey already completed.")
	}
	return &ParticipantView{ID: p.ID, Key: p.Key, IsOver18: p.IsOver18, State: StateConsentPending}, nil
}
