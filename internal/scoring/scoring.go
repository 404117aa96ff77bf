// Package scoring provides the review authenticity oracle consulted after a
// submission has been accepted by the ledger. A Scorer returns the
// probability that a review is genuine; Classify turns it into a verdict.
package scoring

import (
	"context"
	"errors"
	"fmt"
)

// Threshold is the score above which a review is labelled real.
const Threshold = 0.5

// Verdict labels.
const (
	LabelReal = "real"
	LabelFake = "fake"
)

// ErrScoreRange is returned when an oracle produces a score outside [0,1].
var ErrScoreRange = errors.New("score out of range")

// Scorer estimates the probability that a review text is genuine.
type Scorer interface {
	Score(ctx context.Context, text string) (float64, error)
}

// Verdict is the thresholded result of a score.
type Verdict struct {
	// Score is the raw probability that the review is genuine (0–1).
	Score float64 `json:"score"`

	// Label is "real" when Score > Threshold, otherwise "fake".
	Label string `json:"label"`

	// Confidence is the probability of the chosen label:
	// Score for "real", 1-Score for "fake".
	Confidence float64 `json:"confidence"`
}

// Classify maps a score to a Verdict.
func Classify(score float64) (Verdict, error) {
	if score < 0 || score > 1 || score != score {
		return Verdict{}, fmt.Errorf("%w: %v", ErrScoreRange, score)
	}
	if score > Threshold {
		return Verdict{Score: score, Label: LabelReal, Confidence: score}, nil
	}
	return Verdict{Score: score, Label: LabelFake, Confidence: 1 - score}, nil
}
