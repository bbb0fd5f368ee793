package app

import (
	"math"
	"strconv"
	"strings"

	"future-kids-game-service/internal/domain"
)

const (
	// defaultBasePoints is used when a question doesn't carry its own value.
	defaultBasePoints = 100
	// speedFloor is the fraction of base points a correct answer earns at the
	// very end of the window; answers decay linearly from full value to this.
	speedFloor = 0.5
)

// Score evaluates a submitted answer against a question. It returns whether
// the answer is correct and how many points it earns. Answers reported
// slower than the window duration are rejected as late rather than scored.
func Score(question domain.Question, submitted string, timeSpentSecs, durationSecs float64) (bool, int, error) {
	if durationSecs > 0 && timeSpentSecs > durationSecs {
		return false, 0, domain.ErrAnswerTooLate
	}

	if !answerMatches(question, submitted) {
		return false, 0, nil
	}

	base := question.Points
	if base == 0 {
		base = defaultBasePoints
	}
	return true, int(math.Round(float64(base) * speedFactor(timeSpentSecs, durationSecs))), nil
}

// speedFactor decays linearly from 1.0 (instant) to speedFloor (at the
// deadline). A zero duration means untimed, so full value.
func speedFactor(timeSpentSecs, durationSecs float64) float64 {
	if durationSecs <= 0 {
		return 1.0
	}
	elapsed := math.Max(timeSpentSecs, 0)
	return 1.0 - (1.0-speedFloor)*(elapsed/durationSecs)
}

func answerMatches(question domain.Question, submitted string) bool {
	expected := question.CorrectAnswer
	switch question.Type {
	case domain.QuestionMultipleChoice:
		// Accept either the option index or the option text.
		if strings.TrimSpace(submitted) == strings.TrimSpace(expected) {
			return true
		}
		if idx, err := strconv.Atoi(strings.TrimSpace(expected)); err == nil {
			if idx >= 0 && idx < len(question.Options) {
				return strings.EqualFold(strings.TrimSpace(submitted), strings.TrimSpace(question.Options[idx]))
			}
		}
		return false
	default:
		// Short answer and true/false compare case-insensitively.
		return strings.EqualFold(strings.TrimSpace(submitted), strings.TrimSpace(expected))
	}
}
