package services

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
)

var consentDateLayouts = []string{time.RFC3339, "2006-01-02"}

// ConsentRequest is the consent form as submitted. Parent fields are only
// required when IsMinor is set.
type ConsentRequest struct {
	ParticipantName string
	Signature       string
	SignatureDate   string
	IsMinor         bool
	ParentName      string
	ParentSignature string
	ParentDate      string
}

type ConsentResult struct {
	ID      string
	Receipt string
	State   ParticipationState
}

type ConsentService struct {
	store    ConsentStore
	receipts *ReceiptIssuer
	now      func() time.Time
	idGen    func() string
	log      log.FieldLogger
}

// NewConsentService stores consent forms. When receipts is nil no receipt is
// issued and submissions do not check consent.
func NewConsentService(store ConsentStore, receipts *ReceiptIssuer) *ConsentService {
	return &ConsentService{
		store:    store,
		receipts: receipts,
		now:      func() time.Time { return time.Now().UTC() },
		idGen:    uuid.NewString,
		log:      log.WithField("prefix", "consent"),
	}
}

func (s *ConsentService) WithLogger(l log.FieldLogger) {
	s.log = l
}

func parseConsentDate(v string) (time.Time, bool) {
	for _, layout := range consentDateLayouts {
		if t, err := time.Parse(layout, strings.TrimSpace(v)); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

func isImageDataURL(v string) bool {
	return strings.HasPrefix(v, "data:image/") && strings.Contains(v, ",")
}

func (s *ConsentService) Sign(ctx context.Context, req ConsentRequest) (*ConsentResult, error) {
	fields := FieldErrors{}
	if strings.TrimSpace(req.ParticipantName) == "" {
		fields.Add("participantName", "required")
	}
	if !isImageDataURL(req.Signature) {
		fields.Add("signature", "must be a signature image")
	}
	signed, ok := parseConsentDate(req.SignatureDate)
	if !ok {
		fields.Add("signatureDate", "must be a valid date")
	}
	var parentDate *time.Time
	if req.IsMinor {
		if strings.TrimSpace(req.ParentName) == "" {
			fields.Add("parentName", "required for participants under 18")
		}
		if !isImageDataURL(req.ParentSignature) {
			fields.Add("parentSignature", "required for participants under 18")
		}
		if t, ok := parseConsentDate(req.ParentDate); ok {
			parentDate = &t
		} else {
			fields.Add("parentDate", "required for participants under 18")
		}
	}
	if err := fields.Err("Missing or invalid required fields."); err != nil {
		return nil, err
	}

	cr := &ConsentRecord{
		ID:              s.idGen(),
		ParticipantName: strings.TrimSpace(req.ParticipantName),
		Signature:       req.Signature,
		SignatureDate:   signed,
		IsMinor:         req.IsMinor,
		Completed:       true,
		CreatedAt:       s.now(),
	}
	if req.IsMinor {
		cr.ParentName = strings.TrimSpace(req.ParentName)
		cr.ParentSignature = req.ParentSignature
		cr.ParentDate = parentDate
	}
	if err := s.store.CreateConsentRecord(ctx, cr); err != nil {
		s.log.WithError(err).Error("store consent record")
		return nil, NewStorageError("store consent record", err)
	}

	res := &ConsentResult{ID: cr.ID, State: StateConsentDone}
	if s.receipts != nil {
		tok, err := s.receipts.Issue(req.IsMinor)
		if err != nil {
			s.log.WithError(err).Error("sign consent receipt")
			return nil, NewCryptoError("sign consent receipt", err)
		}
		res.Receipt = tok
	}
	return res, nil
}
