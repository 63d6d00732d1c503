package services

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
)

// Outcomes passed to SubmissionRecorder.SubmissionResult.
const (
	ResultCreated  = "created"
	ResultInvalid  = "invalid"
	ResultNotFound = "not_found"
	ResultConflict = "conflict"
	ResultError    = "error"
)

const (
	minParticipantAge = 13
	maxParticipantAge = 120
	invalidFieldsMsg  = "Missing or invalid required fields."
	alreadySubmitted  = "Survey already submitted for this user."
)

// SubmissionRecorder receives pipeline counters. The metrics package
// provides the Prometheus implementation.
type SubmissionRecorder interface {
	SubmissionResult(result string)
	ActivityRejected(field string)
	ScoreConverted(method ScoreMethod)
	ChunksEncrypted(n int)
}

type noopRecorder struct{}

func (noopRecorder) SubmissionResult(string)    {}
func (noopRecorder) ActivityRejected(string)    {}
func (noopRecorder) ScoreConverted(ScoreMethod) {}
func (noopRecorder) ChunksEncrypted(int)        {}

type SubmissionResult struct {
	ID     string
	Score  int
	Method ScoreMethod
	State  ParticipationState
}

// SubmissionService turns a survey submission into a stored Submission:
// participant lookup, validation, scoring, activity extraction, optional
// encryption and a check-and-create under a per-key lock.
type SubmissionService struct {
	store     SubmissionStore
	converter Converter
	extractor *Extractor
	encryptor *ChunkEncryptor
	receipts  *ReceiptIssuer
	locker    Locker
	metrics   SubmissionRecorder
	now       func() time.Time
	idGen     func() string
	log       log.FieldLogger
}

func NewSubmissionService(store SubmissionStore, converter Converter, extractor *Extractor) *SubmissionService {
	if converter == nil {
		converter = SumConverter{}
	}
	return &SubmissionService{
		store:     store,
		converter: converter,
		extractor: extractor,
		locker:    NewKeyedMutex(),
		metrics:   noopRecorder{},
		now:       func() time.Time { return time.Now().UTC() },
		idGen:     uuid.NewString,
		log:       log.WithField("prefix", "submission"),
	}
}

// WithEncryptor stores activity lists as ciphertext chunks.
func (s *SubmissionService) WithEncryptor(e *ChunkEncryptor) { s.encryptor = e }

// WithReceipts makes a valid consent receipt a precondition of submitting.
func (s *SubmissionService) WithReceipts(r *ReceiptIssuer) { s.receipts = r }

func (s *SubmissionService) WithLocker(l Locker) {
	if l != nil {
		s.locker = l
	}
}

func (s *SubmissionService) WithRecorder(r SubmissionRecorder) {
	if r != nil {
		s.metrics = r
	}
}

func (s *SubmissionService) WithLogger(l log.FieldLogger) { s.log = l }

// Submit validates and stores a submission. Every failing field is reported
// in one validation error and nothing is written unless all checks pass.
func (s *SubmissionService) Submit(ctx context.Context, req *SubmissionRequest) (*SubmissionResult, error) {
	res, err := s.submit(ctx, req)
	switch {
	case err == nil:
		s.metrics.SubmissionResult(ResultCreated)
	case IsCode(err, ErrorInvalid):
		s.metrics.SubmissionResult(ResultInvalid)
	case IsCode(err, ErrorNotFound):
		s.metrics.SubmissionResult(ResultNotFound)
	case IsCode(err, ErrorConflict):
		s.metrics.SubmissionResult(ResultConflict)
	default:
		s.metrics.SubmissionResult(ResultError)
	}
	return res, err
}

func (s *SubmissionService) submit(ctx context.Context, req *SubmissionRequest) (*SubmissionResult, error) {
	if req == nil {
		return nil, NewInvalidError("empty submission")
	}
	fields := FieldErrors{}
	key := NormalizeKey(req.Key)

	var participant *Participant
	if key == "" {
		fields.Add("key", "required")
	} else {
		p, err := s.store.FindParticipantByKey(ctx, key)
		if err != nil {
			s.log.WithError(err).Error("find participant")
			return nil, NewStorageError("find participant", err)
		}
		if p == nil {
			return nil, NewNotFoundError("User not found.")
		}
		if p.HasSubmission {
			return nil, NewConflictError(alreadySubmitted)
		}
		participant = p
	}

	score := s.score(req, participant, fields)
	s.checkConsent(req, participant, fields)
	if req.AgreedTerms == nil || !*req.AgreedTerms {
		fields.Add("agreedTerms", "you must agree to the terms")
	}
	if participant.IsMinor() && (req.AgreedExtra == nil || !*req.AgreedExtra) {
		fields.Add("extraTerms", "participants under 18 must agree to the additional terms")
	}
	if age := req.Demographics.Age; age != nil && (*age < minParticipantAge || *age > maxParticipantAge) {
		fields.Add("age", "must be between 13 and 120")
	}
	if tz := req.Timezone; tz != "" {
		if _, err := time.LoadLocation(tz); err != nil || tz == "Local" {
			fields.Add("timezone", "must be an IANA time zone name")
		}
	}
	export := s.extract(req.Activity, fields)

	if err := fields.Err(invalidFieldsMsg); err != nil {
		return nil, err
	}

	video, liked, err := s.payloads(export)
	if err != nil {
		return nil, err
	}
	sub := &Submission{
		ID:             s.idGen(),
		ParticipantID:  participant.ID,
		Score:          score.Score,
		ScoreMethod:    score.Method,
		TScore:         score.TScore,
		StandardError:  score.StandardError,
		Demographics:   req.Demographics,
		VideoPayload:   video,
		LikedPayload:   liked,
		AgreedTerms:    true,
		SubmittedAt:    req.SubmittedAt,
		Timezone:       req.Timezone,
		RequestVersion: req.Version,
		CreatedAt:      s.now(),
	}
	if participant.IsMinor() {
		sub.AgreedExtra = req.AgreedExtra
	}
	if sub.RequestVersion == 0 {
		sub.RequestVersion = RequestV3
	}

	if err := s.create(ctx, key, sub); err != nil {
		return nil, err
	}
	s.metrics.ScoreConverted(sub.ScoreMethod)
	s.log.WithFields(log.Fields{
		"submission_id": sub.ID,
		"method":        sub.ScoreMethod,
		"version":       sub.RequestVersion,
		"encrypted":     video.Kind == PayloadEncrypted,
	}).Info("submission stored")
	return &SubmissionResult{ID: sub.ID, Score: sub.Score, Method: sub.ScoreMethod, State: StateSubmitted}, nil
}

// create is the check-and-create step. The lock covers concurrent requests
// for one key; the store's unique constraint covers everything else.
func (s *SubmissionService) create(ctx context.Context, key string, sub *Submission) error {
	unlock, err := s.locker.Lock(ctx, key)
	if err != nil {
		s.log.WithError(err).Error("acquire submission lock")
		return NewStorageError("acquire submission lock", err)
	}
	defer unlock()

	current, err := s.store.FindParticipantByKey(ctx, key)
	if err != nil {
		s.log.WithError(err).Error("find participant")
		return NewStorageError("find participant", err)
	}
	if current == nil {
		return NewNotFoundError("User not found.")
	}
	if current.HasSubmission {
		return NewConflictError(alreadySubmitted)
	}
	if err := s.store.CreateSubmission(ctx, sub); err != nil {
		if errors.Is(err, ErrSubmissionExists) {
			return NewConflictError(alreadySubmitted)
		}
		s.log.WithError(err).Error("create submission")
		return NewStorageError("create submission", err)
	}
	return nil
}

func (s *SubmissionService) converterFor(instrument string) (Converter, bool) {
	switch strings.ToLower(instrument) {
	case "":
		return s.converter, true
	case PHQ9.Name:
		return SumConverter{}, true
	case PROMISDepression8.Name, string(ScoreMethodPROMIS):
		return PROMISConverter{}, true
	default:
		return nil, false
	}
}

func (s *SubmissionService) score(req *SubmissionRequest, p *Participant, fields FieldErrors) ScoreResult {
	if req.Score != nil {
		if len(req.Answers) > 0 {
			fields.Add("score", "send either answers or a score, not both")
			return ScoreResult{}
		}
		if *req.Score < 0 || *req.Score > PHQ9.MaxTotal() {
			fields.Add("score", "must be between 0 and 27")
			return ScoreResult{}
		}
		return ScoreResult{Score: *req.Score, Method: ScoreMethodSum}
	}
	conv, ok := s.converterFor(req.Instrument)
	if !ok {
		fields.Add("answers", "unknown instrument "+req.Instrument)
		return ScoreResult{}
	}
	if len(req.Answers) == 0 {
		fields.Add("answers", "required")
		return ScoreResult{}
	}
	res, err := conv.Convert(req.Answers, AgeBandFor(p))
	if err != nil {
		fields.Add("answers", err.Error())
		return ScoreResult{}
	}
	return res
}

func (s *SubmissionService) checkConsent(req *SubmissionRequest, p *Participant, fields FieldErrors) {
	if s.receipts == nil {
		return
	}
	if req.ConsentReceipt == "" {
		fields.Add("consent", "the consent form must be completed first")
		return
	}
	claims, err := s.receipts.Verify(req.ConsentReceipt)
	if err != nil {
		fields.Add("consent", "consent receipt is invalid or expired")
		return
	}
	if p.IsMinor() && !claims.Minor {
		fields.Add("consent", "participants under 18 need a consent form signed by a parent")
	}
}

func (s *SubmissionService) extract(in ActivityInput, fields FieldErrors) *ActivityExport {
	if s.extractor == nil {
		fields.Add(FieldActivity, "activity extraction is not configured")
		return nil
	}
	if in.empty() {
		fields.Add(FieldVideoList, "an activity export is required")
		s.metrics.ActivityRejected(FieldVideoList)
		return nil
	}
	var (
		export *ActivityExport
		err    error
	)
	switch {
	case len(in.File) > 0:
		export, err = s.extractor.ExtractFile(in.File)
	case in.Document != nil:
		export, err = s.extractor.Extract(in.Document)
	default:
		export, err = s.extractor.ExtractManual(in.VideoText, in.LikedText)
	}
	if err != nil {
		var ee *ExtractionError
		if errors.As(err, &ee) {
			fields.Add(ee.Field, ee.Reason)
			s.metrics.ActivityRejected(ee.Field)
		} else {
			fields.Add(FieldActivity, err.Error())
			s.metrics.ActivityRejected(FieldActivity)
		}
		return nil
	}
	return export
}

func (s *SubmissionService) payloads(export *ActivityExport) (ActivityPayload, ActivityPayload, error) {
	if s.encryptor == nil {
		return PlainPayload(export.VideoList), PlainPayload(export.LikedList), nil
	}
	video, err := s.encryptor.Encrypt(export.VideoList)
	if err != nil {
		s.log.WithError(err).Error("encrypt video list")
		return ActivityPayload{}, ActivityPayload{}, err
	}
	liked, err := s.encryptor.Encrypt(export.LikedList)
	if err != nil {
		s.log.WithError(err).Error("encrypt liked list")
		return ActivityPayload{}, ActivityPayload{}, err
	}
	s.metrics.ChunksEncrypted(len(video) + len(liked))
	return EncryptedPayload(video), EncryptedPayload(liked), nil
}
