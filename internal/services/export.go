package services

import (
	"bytes"
	"encoding/csv"
	"strconv"
	"time"
)

var submissionCSVHeader = []string{
	"submission_id", "participant_id", "score", "score_method", "t_score", "standard_error",
	"age", "gender", "agreed_extra", "submitted_at", "timezone", "request_version", "created_at",
	"payload_kind", "video_count", "liked_count",
}

// ExportSubmissionsCSV renders one row per submission. Activity lists are
// summarized by kind and length; the records themselves stay in the JSON export.
func ExportSubmissionsCSV(subs []*Submission) ([]byte, error) {
	buf := &bytes.Buffer{}
	w := csv.NewWriter(buf)
	if err := w.Write(submissionCSVHeader); err != nil {
		return nil, err
	}
	for _, s := range subs {
		rec := []string{
			s.ID,
			s.ParticipantID,
			strconv.Itoa(s.Score),
			string(s.ScoreMethod),
			formatFloat(s.TScore),
			formatFloat(s.StandardError),
			formatInt(s.Demographics.Age),
			s.Demographics.Gender,
			formatBool(s.AgreedExtra),
			formatTime(s.SubmittedAt),
			s.Timezone,
			strconv.Itoa(s.RequestVersion),
			s.CreatedAt.UTC().Format(time.RFC3339),
			string(s.VideoPayload.Kind),
			strconv.Itoa(s.VideoPayload.Len()),
			strconv.Itoa(s.LikedPayload.Len()),
		}
		if err := w.Write(rec); err != nil {
			return nil, err
		}
	}
	w.Flush()
	return buf.Bytes(), w.Error()
}

// Empty cells stand for values the participant was never asked for.
func formatFloat(f *float64) string {
	if f == nil {
		return ""
	}
	return strconv.FormatFloat(*f, 'f', -1, 64)
}

func formatInt(i *int) string {
	if i == nil {
		return ""
	}
	return strconv.Itoa(*i)
}

func formatBool(b *bool) string {
	if b == nil {
		return ""
	}
	return strconv.FormatBool(*b)
}

func formatTime(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}
