package services

import (
	"context"
	"math"
	"sort"
)

// Severity is the PHQ-9 severity band of a legacy-range score.
type Severity string

const (
	SeverityMinimal          Severity = "minimal"
	SeverityMild             Severity = "mild"
	SeverityModerate         Severity = "moderate"
	SeverityModeratelySevere Severity = "moderately_severe"
	SeveritySevere           Severity = "severe"
)

var severityOrder = []Severity{
	SeverityMinimal, SeverityMild, SeverityModerate, SeverityModeratelySevere, SeveritySevere,
}

// SeverityFor bands a 0..27 score using the standard PHQ-9 cut points 5, 10, 15 and 20.
func SeverityFor(score int) Severity {
	switch {
	case score >= 20:
		return SeveritySevere
	case score >= 15:
		return SeverityModeratelySevere
	case score >= 10:
		return SeverityModerate
	case score >= 5:
		return SeverityMild
	default:
		return SeverityMinimal
	}
}

type SeverityCount struct {
	Severity Severity `json:"severity"`
	Count    int      `json:"count"`
}

type AnalyticsTimeseries struct {
	Date  string `json:"date"`
	Count int    `json:"count"`
}

// AnalyticsSummary aggregates stored submissions without exposing any row.
type AnalyticsSummary struct {
	TotalSubmissions int                   `json:"total_submissions"`
	MeanScore        float64               `json:"mean_score"`
	MeanTScore       *float64              `json:"mean_t_score,omitempty"`
	ByMethod         map[ScoreMethod]int   `json:"by_method"`
	Severity         []SeverityCount       `json:"severity"`
	Minors           int                   `json:"minors"`
	Encrypted        int                   `json:"encrypted"`
	Timeseries       []AnalyticsTimeseries `json:"timeseries"`
}

// Summary reports counts, mean scores, the severity distribution and
// submissions per day.
func (s *ResearchService) Summary(ctx context.Context) (*AnalyticsSummary, error) {
	subs, err := s.ListSubmissions(ctx)
	if err != nil {
		return nil, err
	}
	return summarize(subs), nil
}

func summarize(subs []*Submission) *AnalyticsSummary {
	out := &AnalyticsSummary{
		TotalSubmissions: len(subs),
		ByMethod:         map[ScoreMethod]int{},
	}
	bands := map[Severity]int{}
	countsByDay := map[string]int{}
	var scoreSum, tSum float64
	tN := 0
	for _, sub := range subs {
		scoreSum += float64(sub.Score)
		out.ByMethod[sub.ScoreMethod]++
		bands[SeverityFor(sub.Score)]++
		if sub.TScore != nil {
			tSum += *sub.TScore
			tN++
		}
		// AgreedExtra is only recorded for participants under 18.
		if sub.AgreedExtra != nil {
			out.Minors++
		}
		if sub.VideoPayload.Kind == PayloadEncrypted {
			out.Encrypted++
		}
		countsByDay[sub.CreatedAt.UTC().Format("2006-01-02")]++
	}
	if len(subs) > 0 {
		out.MeanScore = round2(scoreSum / float64(len(subs)))
	}
	if tN > 0 {
		m := round2(tSum / float64(tN))
		out.MeanTScore = &m
	}
	out.Severity = make([]SeverityCount, 0, len(severityOrder))
	for _, sev := range severityOrder {
		out.Severity = append(out.Severity, SeverityCount{Severity: sev, Count: bands[sev]})
	}
	out.Timeseries = buildTimeseries(countsByDay)
	return out
}

func round2(f float64) float64 { return math.Round(f*100) / 100 }

func buildTimeseries(counts map[string]int) []AnalyticsTimeseries {
	days := make([]string, 0, len(counts))
	for d := range counts {
		days = append(days, d)
	}
	sort.Strings(days)
	out := make([]AnalyticsTimeseries, 0, len(days))
	for _, d := range days {
		out = append(out, AnalyticsTimeseries{Date: d, Count: counts[d]})
	}
	return out
}
