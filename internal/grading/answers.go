package grading

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/ujianku/ujianku-backend/internal/model"
)

// ValidateAnswers checks an answer sheet against an exam's question range and
// choice set. It returns a per-question field error map, or nil when the
// sheet is valid. An empty sheet is valid (nothing answered). Out-of-range
// question numbers are rejected, not silently dropped.
func ValidateAnswers(answers model.AnswerSheet, total int, choiceSet string) map[string]string {
	fields := make(map[string]string)
	upperSet := strings.ToUpper(choiceSet)

	for q, choice := range answers {
		field := strconv.Itoa(q)
		if q < 1 || q > total {
			fields[field] = fmt.Sprintf("question number out of range 1..%d", total)
			continue
		}
		choice = strings.ToUpper(strings.TrimSpace(choice))
		if choice == "" {
			// Explicitly-empty answer is treated as unanswered.
			continue
		}
		if len(choice) != 1 || !strings.Contains(upperSet, choice) {
			fields[field] = fmt.Sprintf("choice must be one of %s", choiceSet)
		}
	}

	if len(fields) == 0 {
		return nil
	}
	return fields
}

// NormalizeAnswers returns a copy of the sheet with choices upper-cased and
// trimmed, and empty entries removed. Call after ValidateAnswers.
func NormalizeAnswers(answers model.AnswerSheet) model.AnswerSheet {
	normalized := make(model.AnswerSheet, len(answers))
	for q, choice := range answers {
		choice = strings.ToUpper(strings.TrimSpace(choice))
		if choice == "" {
			continue
		}
		normalized[q] = choice
	}
	return normalized
}
