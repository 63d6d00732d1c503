package services

import (
	"context"
	"time"
)

// Participant is a study participant identified only by an opaque key.
type Participant struct {
	ID            string    `json:"id"`
	Key           string    `json:"user_key"`
	UsesPlatform  bool      `json:"uses_platform"`
	IsEnglish     bool      `json:"is_english"`
	IsOver13      bool      `json:"is_over_13"`
	IsOver18      *bool     `json:"is_over_18"`
	CreatedAt     time.Time `json:"created_at"`
	HasSubmission bool      `json:"has_submission"`
}

// IsMinor reports whether the participant explicitly declared being under 18.
// Unknown age is not treated as a minor.
func (p *Participant) IsMinor() bool {
	return p != nil && p.IsOver18 != nil && !*p.IsOver18
}

// Demographics are optional fields collected by later survey versions.
type Demographics struct {
	Age    *int   `json:"age,omitempty"`
	Gender string `json:"gender,omitempty"`
}

// Submission is the single stored survey result for a participant.
type Submission struct {
	ID             string          `json:"id"`
	ParticipantID  string          `json:"participant_id"`
	Score          int             `json:"score"`
	ScoreMethod    ScoreMethod     `json:"score_method"`
	TScore         *float64        `json:"t_score,omitempty"`
	StandardError  *float64        `json:"standard_error,omitempty"`
	Demographics   Demographics    `json:"demographics"`
	VideoPayload   ActivityPayload `json:"video_payload"`
	LikedPayload   ActivityPayload `json:"liked_payload"`
	AgreedTerms    bool            `json:"agreed_terms"`
	AgreedExtra    *bool           `json:"agreed_extra,omitempty"`
	SubmittedAt    *time.Time      `json:"submitted_at,omitempty"`
	Timezone       string          `json:"timezone,omitempty"`
	RequestVersion int             `json:"request_version"`
	CreatedAt      time.Time       `json:"created_at"`
}

// ConsentRecord is stored on its own with no link to a participant or submission.
type ConsentRecord struct {
	ID              string     `json:"id"`
	ParticipantName string     `json:"participant_name"`
	Signature       string     `json:"signature"`
	SignatureDate   time.Time  `json:"signature_date"`
	IsMinor         bool       `json:"is_minor"`
	ParentName      string     `json:"parent_name,omitempty"`
	ParentSignature string     `json:"parent_signature,omitempty"`
	ParentDate      *time.Time `json:"parent_date,omitempty"`
	Completed       bool       `json:"completed"`
	CreatedAt       time.Time  `json:"created_at"`
}

// ParticipationState tracks where a participant is in the survey flow.
type ParticipationState string

const (
	StateNotEligible    ParticipationState = "not_eligible"
	StateEligible       ParticipationState = "eligible"
	StateConsentPending ParticipationState = "consent_pending"
	StateConsentDone    ParticipationState = "consent_done"
	StateSubmitted      ParticipationState = "submitted"
)

type ParticipantStore interface {
	FindParticipantByKey(ctx context.Context, key string) (*Participant, error)
	CreateParticipant(ctx context.Context, p *Participant) error
}

type SubmissionStore interface {
	FindParticipantByKey(ctx context.Context, key string) (*Participant, error)
	CreateSubmission(ctx context.Context, s *Submission) error
}

type ConsentStore interface {
	CreateConsentRecord(ctx context.Context, cr *ConsentRecord) error
}

type ResearchStore interface {
	ListSubmissions(ctx context.Context) ([]*Submission, error)
}
