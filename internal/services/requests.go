package services

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"
)

// Request versions accepted by DecodeSubmissionRequest. Version 3 is the
// canonical shape; 1 and 2 are kept so older clients can still submit.
const (
	RequestV1 = 1
	RequestV2 = 2
	RequestV3 = 3
)

// ActivityInput is the activity export in whichever form the client sent it.
// Exactly one of File, Document or VideoText is expected.
type ActivityInput struct {
	File      []byte
	Document  any
	VideoText string
	LikedText string
}

func (a ActivityInput) empty() bool {
	return len(a.File) == 0 && a.Document == nil && strings.TrimSpace(a.VideoText) == ""
}

// SubmissionRequest is the canonical submission all versions decode into.
type SubmissionRequest struct {
	Version        int
	Key            string
	Instrument     string
	Answers        []int
	Score          *int
	Activity       ActivityInput
	ConsentReceipt string
	AgreedTerms    *bool
	AgreedExtra    *bool
	Demographics   Demographics
	SubmittedAt    *time.Time
	Timezone       string
}

// VersionedRequest is one of SubmissionRequestV1, V2 or V3.
type VersionedRequest interface {
	Canonical() (*SubmissionRequest, error)
}

// SubmissionRequestV1 is the first survey form: a precomputed PHQ-9 total and
// the raw VideoList array.
type SubmissionRequestV1 struct {
	UserKey     string          `json:"userKey"`
	PHQ9Score   *float64        `json:"phq9Score"`
	VideoList   json.RawMessage `json:"videoList"`
	AgreedTerms *bool           `json:"agreedTerms"`
	AgreedExtra *bool           `json:"agreedExtra"`
}

func (r SubmissionRequestV1) Canonical() (*SubmissionRequest, error) {
	out := &SubmissionRequest{
		Version:     RequestV1,
		Key:         r.UserKey,
		AgreedTerms: r.AgreedTerms,
		AgreedExtra: r.AgreedExtra,
	}
	fields := FieldErrors{}
	switch {
	case r.PHQ9Score == nil:
		fields.Add("score", "required")
	case *r.PHQ9Score != math.Trunc(*r.PHQ9Score):
		fields.Add("score", "must be a whole number")
	default:
		score := int(*r.PHQ9Score)
		out.Score = &score
	}
	videos, err := decodeRaw(r.VideoList)
	if err != nil {
		fields.Add(FieldVideoList, "must be valid JSON")
	} else if videos != nil {
		out.Activity.Document = map[string]any{
			exportActivityKey: map[string]any{
				exportVideoSection: map[string]any{exportVideoListKey: videos},
			},
		}
	}
	if err := fields.Err("Missing or invalid required fields."); err != nil {
		return nil, err
	}
	return out, nil
}

// SubmissionRequestV2 added item answers, the whole export object, an
// optional like list and demographics.
type SubmissionRequestV2 struct {
	Version     int             `json:"version"`
	UserKey     string          `json:"userKey"`
	Answers     []int           `json:"answers"`
	TikTokData  json.RawMessage `json:"tiktokData"`
	LikedList   json.RawMessage `json:"likedList"`
	AgreedTerms *bool           `json:"agreedTerms"`
	AgreedExtra *bool           `json:"agreedExtra"`
	Age         *int            `json:"age"`
	Gender      string          `json:"gender"`
}

func (r SubmissionRequestV2) Canonical() (*SubmissionRequest, error) {
	out := &SubmissionRequest{
		Version:      RequestV2,
		Key:          r.UserKey,
		Instrument:   PHQ9.Name,
		Answers:      r.Answers,
		AgreedTerms:  r.AgreedTerms,
		AgreedExtra:  r.AgreedExtra,
		Demographics: Demographics{Age: r.Age, Gender: strings.TrimSpace(r.Gender)},
	}
	fields := FieldErrors{}
	doc, err := decodeRaw(r.TikTokData)
	if err != nil {
		fields.Add(FieldActivity, "must be valid JSON")
	}
	liked, err := decodeRaw(r.LikedList)
	if err != nil {
		fields.Add(FieldLikedList, "must be valid JSON")
	}
	if err := fields.Err("Missing or invalid required fields."); err != nil {
		return nil, err
	}
	if liked != nil {
		if root, ok := doc.(map[string]any); ok {
			if activity, ok := root[exportActivityKey].(map[string]any); ok {
				activity[exportLikeSection] = map[string]any{exportLikedListKey: liked}
			}
		}
	}
	out.Activity.Document = doc
	return out, nil
}

// ActivityRequest is the activity part of a version 3 request. File holds the
// export either as a JSON object or as the file's text in a string.
type ActivityRequest struct {
	File      json.RawMessage `json:"file"`
	VideoText string          `json:"videoText"`
	LikedText string          `json:"likedText"`
}

// SubmissionRequestV3 is the current survey form.
type SubmissionRequestV3 struct {
	Version        int             `json:"version"`
	Key            string          `json:"key"`
	Instrument     string          `json:"instrument"`
	Answers        []int           `json:"answers"`
	Activity       ActivityRequest `json:"activity"`
	ConsentReceipt string          `json:"consentReceipt"`
	AgreedTerms    *bool           `json:"agreedTerms"`
	AgreedExtra    *bool           `json:"agreedExtra"`
	Demographics   Demographics    `json:"demographics"`
	SubmittedAt    *time.Time      `json:"submittedAt"`
	Timezone       string          `json:"timezone"`
}

func (r SubmissionRequestV3) Canonical() (*SubmissionRequest, error) {
	out := &SubmissionRequest{
		Version:        RequestV3,
		Key:            r.Key,
		Instrument:     strings.TrimSpace(r.Instrument),
		Answers:        r.Answers,
		ConsentReceipt: strings.TrimSpace(r.ConsentReceipt),
		AgreedTerms:    r.AgreedTerms,
		AgreedExtra:    r.AgreedExtra,
		Demographics:   r.Demographics,
		SubmittedAt:    r.SubmittedAt,
		Timezone:       strings.TrimSpace(r.Timezone),
		Activity: ActivityInput{
			VideoText: r.Activity.VideoText,
			LikedText: r.Activity.LikedText,
		},
	}
	file := bytes.TrimSpace(r.Activity.File)
	switch {
	case len(file) == 0 || bytes.Equal(file, []byte("null")):
	case file[0] == '"':
		var text string
		if err := json.Unmarshal(file, &text); err != nil {
			return nil, NewValidationError("Missing or invalid required fields.", map[string]string{FieldActivity: "file must be a JSON object or string"})
		}
		out.Activity.File = []byte(text)
	default:
		out.Activity.File = append([]byte(nil), file...)
	}
	return out, nil
}

func decodeRaw(raw json.RawMessage) (any, error) {
	if len(bytes.TrimSpace(raw)) == 0 {
		return nil, nil
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, err
	}
	return v, nil
}

// DecodeSubmissionRequest picks the request version from the body and decodes
// it into the canonical request. Bodies without a version field are version 1.
func DecodeSubmissionRequest(body []byte) (*SubmissionRequest, error) {
	var probe struct {
		Version *int `json:"version"`
	}
	if err := json.Unmarshal(body, &probe); err != nil {
		return nil, decodeFailure(err)
	}
	version := RequestV1
	if probe.Version != nil {
		version = *probe.Version
	}
	var req VersionedRequest
	switch version {
	case RequestV1:
		req = &SubmissionRequestV1{}
	case RequestV2:
		req = &SubmissionRequestV2{}
	case RequestV3:
		req = &SubmissionRequestV3{}
	default:
		return nil, NewValidationError("Unsupported request version.", map[string]string{
			"version": fmt.Sprintf("unsupported version %d", version),
		})
	}
	if err := json.Unmarshal(body, req); err != nil {
		return nil, decodeFailure(err)
	}
	return req.Canonical()
}

// decodeFailure reports wrongly typed fields by name where the decoder knows it.
func decodeFailure(err error) error {
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &typeErr) && typeErr.Field != "" {
		return NewValidationError("Missing or invalid required fields.", map[string]string{
			requestFieldName(typeErr.Field): "must be a " + typeErr.Type.String(),
		})
	}
	return NewValidationError("Request body must be valid JSON.", map[string]string{"body": err.Error()})
}

var requestFieldNames = map[string]string{
	"userKey":     "key",
	"phq9Score":   "score",
	"agreedExtra": "extraTerms",
	"tiktokData":  FieldActivity,
}

func requestFieldName(jsonField string) string {
	if i := strings.Index(jsonField, "."); i >= 0 {
		head := jsonField[:i]
		if head == "demographics" {
			return jsonField[i+1:]
		}
		jsonField = head
	}
	if name, ok := requestFieldNames[jsonField]; ok {
		return name
	}
	return jsonField
}
