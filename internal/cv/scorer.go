package cv

import (
	"context"
	"fmt"

	"vitae/internal/pipeline"
	"vitae/internal/review"
	"vitae/internal/textutil"
)

// tokenTarget is the token count treated as a fully fleshed-out document for
// the richness component.
const tokenTarget = 120

// HeuristicScorer grades a parsed record on completeness and content
// richness. It is a pure function of the record, as the coordinator requires.
type HeuristicScorer struct{}

var _ pipeline.Scorer = (*HeuristicScorer)(nil)

// NewHeuristicScorer constructs the scorer.
func NewHeuristicScorer() *HeuristicScorer {
	return &HeuristicScorer{}
}

// Score weighs the record's fields into a [0,1] quality score and collects
// critical issues and warnings for the review gate.
func (s *HeuristicScorer) Score(ctx context.Context, record *pipeline.Record) (review.QualityReport, error) {
	if err := ctx.Err(); err != nil {
		return review.QualityReport{}, err
	}
	if record == nil {
		return review.QualityReport{}, fmt.Errorf("score: nil record")
	}

	report := review.QualityReport{}
	score := 0.0

	if record.Name != "" {
		score += 0.20
	} else {
		report.CriticalIssues = append(report.CriticalIssues, "no candidate name found")
	}
	if record.Email != "" || record.Phone != "" {
		score += 0.15
	} else {
		report.CriticalIssues = append(report.CriticalIssues, "no contact information found")
	}

	score += 0.20 * capRatio(len(record.Skills), 8)
	if len(record.Skills) == 0 {
		report.Warnings = append(report.Warnings, "no skills listed")
	}

	score += 0.25 * capRatio(len(record.Experience), 3)
	if len(record.Experience) == 0 {
		report.Warnings = append(report.Warnings, "no experience entries")
	} else {
		undated := 0
		for _, exp := range record.Experience {
			if exp.Start == "" {
				undated++
			}
		}
		if undated > 0 {
			report.Warnings = append(report.Warnings, fmt.Sprintf("%d experience entries without dates", undated))
		}
	}

	score += 0.10 * capRatio(len(record.Education), 2)
	if len(record.Education) == 0 {
		report.Warnings = append(report.Warnings, "no education entries")
	}

	tokens := textutil.NewFingerprint(record.SourceText).TokenCount()
	score += 0.10 * capRatio(tokens, tokenTarget)
	if tokens < tokenTarget/4 {
		report.Warnings = append(report.Warnings, "document text is sparse")
	}

	// Component weights sum to 1.0, but float addition can land a hair
	// above it and the gate rejects out-of-range scores.
	report.Score = min(score, 1)
	return report, nil
}

func capRatio(have, target int) float64 {
	if target <= 0 || have >= target {
		return 1
	}
	if have <= 0 {
		return 0
	}
	return float64(have) / float64(target)
}
