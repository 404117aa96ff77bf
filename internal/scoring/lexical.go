package scoring

import (
	"context"
	"strings"
	"unicode"

	"go.uber.org/zap"
)

// penalty is a single heuristic's contribution against genuineness.
type penalty struct {
	Rule   string
	Weight float64
}

// ruleFunc inspects a review text and returns zero or more penalties.
type ruleFunc func(text string) []penalty

// LexicalScorer is the default in-process Scorer. It starts every review at
// baseScore and subtracts weighted penalties for patterns common in
// fabricated reviews. It is a stand-in for a trained model, not a replacement.
type LexicalScorer struct {
	rules  []ruleFunc
	logger *zap.Logger
}

const baseScore = 0.8

// NewLexicalScorer returns a LexicalScorer loaded with the default rule set.
func NewLexicalScorer(logger *zap.Logger) *LexicalScorer {
	return &LexicalScorer{
		rules: []ruleFunc{
			rulePromotionalPhrases,
			ruleShouting,
			ruleExclamations,
			ruleTooShort,
			ruleRepetition,
		},
		logger: logger,
	}
}

// Score implements Scorer.
func (s *LexicalScorer) Score(ctx context.Context, text string) (float64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	score := baseScore
	var fired []string
	for _, r := range s.rules {
		for _, p := range r(text) {
			score -= p.Weight
			fired = append(fired, p.Rule)
		}
	}
	if score < 0 {
		score = 0
	}
	if len(fired) > 0 {
		s.logger.Debug("lexical penalties applied",
			zap.Strings("rules", fired),
			zap.Float64("score", score),
		)
	}
	return score, nil
}

// ── Rules ─────────────────────────────────────────────────────────────────────

// promotionalPhrases are stock superlatives and calls to action that rarely
// appear in organic reviews.
var promotionalPhrases = []string{
	"best product ever", "must buy", "buy now", "highly recommend to everyone",
	"five stars", "5 stars", "life changing", "100%", "amazing amazing",
	"click here", "discount code", "use my code", "worst product ever",
}

func rulePromotionalPhrases(text string) []penalty {
	var out []penalty
	lower := strings.ToLower(text)
	for _, phrase := range promotionalPhrases {
		if strings.Contains(lower, phrase) {
			out = append(out, penalty{Rule: "promotional_phrase", Weight: 0.15})
		}
	}
	return out
}

// ruleShouting flags texts written mostly in capitals.
func ruleShouting(text string) []penalty {
	var letters, upper int
	for _, r := range text {
		if unicode.IsLetter(r) {
			letters++
			if unicode.IsUpper(r) {
				upper++
			}
		}
	}
	if letters >= 10 && float64(upper)/float64(letters) > 0.6 {
		return []penalty{{Rule: "shouting", Weight: 0.2}}
	}
	return nil
}

func ruleExclamations(text string) []penalty {
	if strings.Count(text, "!") >= 3 {
		return []penalty{{Rule: "exclamations", Weight: 0.1}}
	}
	return nil
}

func ruleTooShort(text string) []penalty {
	if len(strings.Fields(text)) < 4 {
		return []penalty{{Rule: "too_short", Weight: 0.2}}
	}
	return nil
}

// ruleRepetition flags reviews where one word makes up a large share of
// the text, a common trait of keyword-stuffed reviews.
func ruleRepetition(text string) []penalty {
	var words []string
	for _, w := range strings.Fields(strings.ToLower(text)) {
		// Standalone punctuation such as "-" is not a word.
		if w = strings.TrimFunc(w, unicode.IsPunct); w != "" {
			words = append(words, w)
		}
	}
	if len(words) < 6 {
		return nil
	}
	counts := make(map[string]int, len(words))
	top := 0
	for _, w := range words {
		counts[w]++
		if counts[w] > top {
			top = counts[w]
		}
	}
	if float64(top)/float64(len(words)) > 0.3 {
		return []penalty{{Rule: "repetition", Weight: 0.15}}
	}
	return nil
}
