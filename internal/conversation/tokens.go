package conversation

import "unicode/utf8"

// DefaultCharsPerToken is the heuristic ratio of characters to tokens.
const DefaultCharsPerToken = 4

// TokenEstimator approximates how many model tokens a text uses.
type TokenEstimator interface {
	Estimate(text string) int
}

// EstimatorFunc adapts a function to TokenEstimator.
type EstimatorFunc func(text string) int

func (f EstimatorFunc) Estimate(text string) int { return f(text) }

// HeuristicEstimator estimates ceil(chars / CharsPerToken), counting runes.
type HeuristicEstimator struct {
	CharsPerToken int
}

// Estimate returns the approximate token count of text.
func (h HeuristicEstimator) Estimate(text string) int {
	cpt := h.CharsPerToken
	if cpt <= 0 {
		cpt = DefaultCharsPerToken
	}
	n := utf8.RuneCountInString(text)
	return (n + cpt - 1) / cpt
}

// EstimateHistory sums the estimate over every message's content.
func EstimateHistory(est TokenEstimator, history []Message) int {
	total := 0
	for _, m := range history {
		total += est.Estimate(m.Content)
	}
	return total
}
