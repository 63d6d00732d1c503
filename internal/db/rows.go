package db

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/danielkorkin/tiktok-depression-survey/internal/services"
)

// Queries use ? placeholders and named parameters; the Postgres store
// rebinds them to $n.
const (
	selectParticipantByKey = `SELECT p.id AS id, p.user_key AS user_key, p.uses_platform AS uses_platform,
	p.is_english AS is_english, p.is_over_13 AS is_over_13, p.is_over_18 AS is_over_18, p.created_at AS created_at,
	EXISTS (SELECT 1 FROM submissions s WHERE s.participant_id = p.id) AS has_submission
FROM participants p WHERE p.user_key = ?`

	insertParticipant = `INSERT INTO participants (id, user_key, uses_platform, is_english, is_over_13, is_over_18, created_at)
VALUES (:id, :user_key, :uses_platform, :is_english, :is_over_13, :is_over_18, :created_at)`

	countSubmissions = `SELECT COUNT(*) FROM submissions WHERE participant_id = ?`

	insertSubmission = `INSERT INTO submissions (id, participant_id, score, score_method, t_score, standard_error,
	age, gender, video_kind, video_payload, liked_kind, liked_payload, agreed_terms, agreed_extra,
	submitted_at, timezone, request_version, created_at)
VALUES (:id, :participant_id, :score, :score_method, :t_score, :standard_error,
	:age, :gender, :video_kind, :video_payload, :liked_kind, :liked_payload, :agreed_terms, :agreed_extra,
	:submitted_at, :timezone, :request_version, :created_at)`

	selectSubmissions = `SELECT id, participant_id, score, score_method, t_score, standard_error,
	age, gender, video_kind, video_payload, liked_kind, liked_payload, agreed_terms, agreed_extra,
	submitted_at, timezone, request_version, created_at
FROM submissions ORDER BY created_at, id`

	insertConsent = `INSERT INTO consent_records (id, participant_name, signature, signature_date, is_minor,
	parent_name, parent_signature, parent_date, completed, created_at)
VALUES (:id, :participant_name, :signature, :signature_date, :is_minor,
	:parent_name, :parent_signature, :parent_date, :completed, :created_at)`
)

type participantRow struct {
	ID            string       `db:"id"`
	Key           string       `db:"user_key"`
	UsesPlatform  bool         `db:"uses_platform"`
	IsEnglish     bool         `db:"is_english"`
	IsOver13      bool         `db:"is_over_13"`
	IsOver18      sql.NullBool `db:"is_over_18"`
	CreatedAt     time.Time    `db:"created_at"`
	HasSubmission bool         `db:"has_submission"`
}

func participantToRow(p *services.Participant) participantRow {
	row := participantRow{
		ID:           p.ID,
		Key:          p.Key,
		UsesPlatform: p.UsesPlatform,
		IsEnglish:    p.IsEnglish,
		IsOver13:     p.IsOver13,
		CreatedAt:    p.CreatedAt.UTC(),
	}
	if p.IsOver18 != nil {
		row.IsOver18 = sql.NullBool{Bool: *p.IsOver18, Valid: true}
	}
	return row
}

func (r participantRow) participant() *services.Participant {
	p := &services.Participant{
		ID:            r.ID,
		Key:           r.Key,
		UsesPlatform:  r.UsesPlatform,
		IsEnglish:     r.IsEnglish,
		IsOver13:      r.IsOver13,
		CreatedAt:     r.CreatedAt.UTC(),
		HasSubmission: r.HasSubmission,
	}
	if r.IsOver18.Valid {
		v := r.IsOver18.Bool
		p.IsOver18 = &v
	}
	return p
}

type submissionRow struct {
	ID             string          `db:"id"`
	ParticipantID  string          `db:"participant_id"`
	Score          int             `db:"score"`
	ScoreMethod    string          `db:"score_method"`
	TScore         sql.NullFloat64 `db:"t_score"`
	StandardError  sql.NullFloat64 `db:"standard_error"`
	Age            sql.NullInt64   `db:"age"`
	Gender         sql.NullString  `db:"gender"`
	VideoKind      string          `db:"video_kind"`
	VideoPayload   string          `db:"video_payload"`
	LikedKind      string          `db:"liked_kind"`
	LikedPayload   string          `db:"liked_payload"`
	AgreedTerms    bool            `db:"agreed_terms"`
	AgreedExtra    sql.NullBool    `db:"agreed_extra"`
	SubmittedAt    sql.NullTime    `db:"submitted_at"`
	Timezone       sql.NullString  `db:"timezone"`
	RequestVersion int             `db:"request_version"`
	CreatedAt      time.Time       `db:"created_at"`
}

func submissionToRow(s *services.Submission) (submissionRow, error) {
	video, err := json.Marshal(s.VideoPayload)
	if err != nil {
		return submissionRow{}, fmt.Errorf("encode video payload: %w", err)
	}
	liked, err := json.Marshal(s.LikedPayload)
	if err != nil {
		return submissionRow{}, fmt.Errorf("encode liked payload: %w", err)
	}
	row := submissionRow{
		ID:             s.ID,
		ParticipantID:  s.ParticipantID,
		Score:          s.Score,
		ScoreMethod:    string(s.ScoreMethod),
		Gender:         nullString(s.Demographics.Gender),
		VideoKind:      string(s.VideoPayload.Kind),
		VideoPayload:   string(video),
		LikedKind:      string(s.LikedPayload.Kind),
		LikedPayload:   string(liked),
		AgreedTerms:    s.AgreedTerms,
		Timezone:       nullString(s.Timezone),
		RequestVersion: s.RequestVersion,
		CreatedAt:      s.CreatedAt.UTC(),
	}
	if s.TScore != nil {
		row.TScore = sql.NullFloat64{Float64: *s.TScore, Valid: true}
	}
	if s.StandardError != nil {
		row.StandardError = sql.NullFloat64{Float64: *s.StandardError, Valid: true}
	}
	if s.Demographics.Age != nil {
		row.Age = sql.NullInt64{Int64: int64(*s.Demographics.Age), Valid: true}
	}
	if s.AgreedExtra != nil {
		row.AgreedExtra = sql.NullBool{Bool: *s.AgreedExtra, Valid: true}
	}
	if s.SubmittedAt != nil {
		row.SubmittedAt = sql.NullTime{Time: s.SubmittedAt.UTC(), Valid: true}
	}
	return row, nil
}

func (r submissionRow) submission() (*services.Submission, error) {
	s := &services.Submission{
		ID:             r.ID,
		ParticipantID:  r.ParticipantID,
		Score:          r.Score,
		ScoreMethod:    services.ScoreMethod(r.ScoreMethod),
		Demographics:   services.Demographics{Gender: r.Gender.String},
		AgreedTerms:    r.AgreedTerms,
		Timezone:       r.Timezone.String,
		RequestVersion: r.RequestVersion,
		CreatedAt:      r.CreatedAt.UTC(),
	}
	if err := json.Unmarshal([]byte(r.VideoPayload), &s.VideoPayload); err != nil {
		return nil, fmt.Errorf("decode video payload of %s: %w", r.ID, err)
	}
	if err := json.Unmarshal([]byte(r.LikedPayload), &s.LikedPayload); err != nil {
		return nil, fmt.Errorf("decode liked payload of %s: %w", r.ID, err)
	}
	if r.TScore.Valid {
		v := r.TScore.Float64
		s.TScore = &v
	}
	if r.StandardError.Valid {
		v := r.StandardError.Float64
		s.StandardError = &v
	}
	if r.Age.Valid {
		v := int(r.Age.Int64)
		s.Demographics.Age = &v
	}
	if r.AgreedExtra.Valid {
		v := r.AgreedExtra.Bool
		s.AgreedExtra = &v
	}
	if r.SubmittedAt.Valid {
		v := r.SubmittedAt.Time.UTC()
		s.SubmittedAt = &v
	}
	return s, nil
}

type consentRow struct {
	ID              string         `db:"id"`
	ParticipantName string         `db:"participant_name"`
	Signature       string         `db:"signature"`
	SignatureDate   time.Time      `db:"signature_date"`
	IsMinor         bool           `db:"is_minor"`
	ParentName      sql.NullString `db:"parent_name"`
	ParentSignature sql.NullString `db:"parent_signature"`
	ParentDate      sql.NullTime   `db:"parent_date"`
	Completed       bool           `db:"completed"`
	CreatedAt       time.Time      `db:"created_at"`
}

func consentToRow(cr *services.ConsentRecord) consentRow {
	row := consentRow{
		ID:              cr.ID,
		ParticipantName: cr.ParticipantName,
		Signature:       cr.Signature,
		SignatureDate:   cr.SignatureDate.UTC(),
		IsMinor:         cr.IsMinor,
		ParentName:      nullString(cr.ParentName),
		ParentSignature: nullString(cr.ParentSignature),
		Completed:       cr.Completed,
		CreatedAt:       cr.CreatedAt.UTC(),
	}
	if cr.ParentDate != nil {
		row.ParentDate = sql.NullTime{Time: cr.ParentDate.UTC(), Valid: true}
	}
	return row
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}
