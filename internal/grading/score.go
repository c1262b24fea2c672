// Package grading holds the pure functions of the exam core: scoring a
// submitted answer sheet against an answer key, computing remaining time
// from a server-recorded start instant, and parsing/validating answer keys.
// Nothing in this package performs I/O.
package grading

import (
	"math"
	"strings"

	"github.com/ujianku/ujianku-backend/internal/model"
)

// Grade is the outcome of scoring one answer sheet.
type Grade struct {
	Correct   int
	Incorrect int
	// Percent is round-half-up(Correct/Total*100), an integer 0..100.
	Percent int
}

// Score grades answers against key over questions 1..total. A question with
// no answer (absent or empty string) counts toward neither bucket. Answer
// comparison is case-insensitive, matching how choices are entered.
func Score(answers model.AnswerSheet, key model.AnswerKey, total int) Grade {
	var g Grade
	for i := 1; i <= total; i++ {
		answer := strings.TrimSpace(answers[i])
		if answer == "" {
			continue
		}
		if strings.EqualFold(answer, key[i]) {
			g.Correct++
		} else {
			g.Incorrect++
		}
	}
	if total > 0 {
		g.Percent = int(math.Round(float64(g.Correct) / float64(total) * 100))
	}
	return g
}
