package services

import (
	"fmt"
	"math"
)

// Instrument describes a questionnaire's item count and per-item bounds.
type Instrument struct {
	Name     string
	Items    int
	MinValue int
	MaxValue int
}

var (
	PHQ9              = Instrument{Name: "phq9", Items: 9, MinValue: 0, MaxValue: 3}
	PROMISDepression8 = Instrument{Name: "promis_depression_8a", Items: 8, MinValue: 1, MaxValue: 5}
)

// Validate checks answer count and bounds. Out-of-range answers are an input
// error and are never clamped here.
func (in Instrument) Validate(answers []int) error {
	if len(answers) != in.Items {
		return fmt.Errorf("expected %d answers for %s, got %d", in.Items, in.Name, len(answers))
	}
	for i, a := range answers {
		if a < in.MinValue || a > in.MaxValue {
			return fmt.Errorf("answer %d is %d, must be between %d and %d", i+1, a, in.MinValue, in.MaxValue)
		}
	}
	return nil
}

// MaxTotal is the largest raw sum the instrument can produce.
func (in Instrument) MaxTotal() int { return in.Items * in.MaxValue }

type AgeBand int

const (
	AgeBandAdult AgeBand = iota
	AgeBandPediatric
)

func (b AgeBand) String() string {
	if b == AgeBandPediatric {
		return "pediatric"
	}
	return "adult"
}

// AgeBandFor picks the pediatric table only when the participant declared being under 18.
func AgeBandFor(p *Participant) AgeBand {
	if p.IsMinor() {
		return AgeBandPediatric
	}
	return AgeBandAdult
}

type ScoreMethod string

const (
	ScoreMethodSum    ScoreMethod = "sum"
	ScoreMethodPROMIS ScoreMethod = "promis"
)

// ScoreResult is the converter output stored with a submission.
type ScoreResult struct {
	Score         int
	Method        ScoreMethod
	TScore        *float64
	StandardError *float64
}

// Converter turns validated item answers into a legacy PHQ-9 range score.
type Converter interface {
	Instrument() Instrument
	Method() ScoreMethod
	Convert(answers []int, band AgeBand) (ScoreResult, error)
}

// NewConverter returns the converter for a configured method name.
func NewConverter(method ScoreMethod) (Converter, error) {
	switch method {
	case ScoreMethodSum, "":
		return SumConverter{}, nil
	case ScoreMethodPROMIS:
		return PROMISConverter{}, nil
	default:
		return nil, fmt.Errorf("unknown scoring method %q", method)
	}
}

// SumConverter scores PHQ-9 directly as the sum of its nine answers.
type SumConverter struct{}

func (SumConverter) Instrument() Instrument { return PHQ9 }
func (SumConverter) Method() ScoreMethod    { return ScoreMethodSum }

func (c SumConverter) Convert(answers []int, _ AgeBand) (ScoreResult, error) {
	if err := PHQ9.Validate(answers); err != nil {
		return ScoreResult{}, err
	}
	return ScoreResult{Score: RawSum(answers), Method: ScoreMethodSum}, nil
}

// PROMISConverter converts the PROMIS Depression 8a raw sum to a T-score and then
// links that T-score back to the PHQ-9 range.
type PROMISConverter struct{}

func (PROMISConverter) Instrument() Instrument { return PROMISDepression8 }
func (PROMISConverter) Method() ScoreMethod    { return ScoreMethodPROMIS }

func (c PROMISConverter) Convert(answers []int, band AgeBand) (ScoreResult, error) {
	if err := PROMISDepression8.Validate(answers); err != nil {
		return ScoreResult{}, err
	}
	entry := RawToTScore(RawSum(answers), band)
	t, se := entry.TScore, entry.StandardError
	return ScoreResult{
		Score:         TScoreToPHQ9(t),
		Method:        ScoreMethodPROMIS,
		TScore:        &t,
		StandardError: &se,
	}, nil
}

func RawSum(answers []int) int {
	total := 0
	for _, a := range answers {
		total += a
	}
	return total
}

func tableFor(band AgeBand) map[int]TScoreEntry {
	if band == AgeBandPediatric {
		return promisPediatricDepression8a
	}
	return promisAdultDepression8a
}

func tableBounds(table map[int]TScoreEntry) (int, int) {
	lo, hi := math.MaxInt, math.MinInt
	for k := range table {
		if k < lo {
			lo = k
		}
		if k > hi {
			hi = k
		}
	}
	return lo, hi
}

// RawToTScore looks up raw in the band's table. Raw scores outside the table
// are floored to the lowest key or capped at the highest.
func RawToTScore(raw int, band AgeBand) TScoreEntry {
	table := tableFor(band)
	lo, hi := tableBounds(table)
	if raw < lo {
		raw = lo
	}
	if raw > hi {
		raw = hi
	}
	return table[raw]
}

// tieTolerance absorbs float noise so that midpoints between two linked
// T-scores compare as equal.
const tieTolerance = 1e-9

// TScoreToPHQ9 returns the PHQ-9 score whose linked T-score is closest to t.
// Ties go to the lowest PHQ-9 score.
func TScoreToPHQ9(t float64) int {
	best := 0
	bestDiff := math.Inf(1)
	for score, linked := range phq9Linking {
		diff := math.Abs(linked - t)
		if diff < bestDiff-tieTolerance {
			best, bestDiff = score, diff
		}
	}
	return best
}
