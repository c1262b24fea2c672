package grading

import (
	"testing"

	"github.com/ujianku/ujianku-backend/internal/model"
)

func TestValidateAnswers(t *testing.T) {
	tests := []struct {
		name       string
		answers    model.AnswerSheet
		total      int
		choiceSet  string
		wantFields []string
	}{
		{
			name:      "valid sheet",
			answers:   model.AnswerSheet{1: "A", 2: "b", 3: "E"},
			total:     3,
			choiceSet: "ABCDE",
		},
		{
			name:      "empty sheet is valid",
			answers:   model.AnswerSheet{},
			total:     10,
			choiceSet: "ABCD",
		},
		{
			name:       "question zero rejected",
			answers:    model.AnswerSheet{0: "A"},
			total:      3,
			choiceSet:  "ABCD",
			wantFields: []string{"0"},
		},
		{
			name:       "question beyond total rejected",
			answers:    model.AnswerSheet{4: "A"},
			total:      3,
			choiceSet:  "ABCD",
			wantFields: []string{"4"},
		},
		{
			name:       "choice outside set rejected",
			answers:    model.AnswerSheet{1: "E"},
			total:      3,
			choiceSet:  "ABCD",
			wantFields: []string{"1"},
		},
		{
			name:      "explicitly empty answer allowed",
			answers:   model.AnswerSheet{1: ""},
			total:     3,
			choiceSet: "ABCD",
		},
		{
			name:       "multi-character answer rejected",
			answers:    model.AnswerSheet{1: "AB"},
			total:      3,
			choiceSet:  "ABCD",
			wantFields: []string{"1"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fields := ValidateAnswers(tt.answers, tt.total, tt.choiceSet)
			if len(tt.wantFields) == 0 {
				if fields != nil {
					t.Fatalf("expected valid sheet, got field errors %v", fields)
				}
				return
			}
			if fields == nil {
				t.Fatalf("expected field errors for %v, got none", tt.wantFields)
			}
			for _, f := range tt.wantFields {
				if _, ok := fields[f]; !ok {
					t.Errorf("missing field error for question %s in %v", f, fields)
				}
			}
		})
	}
}

func TestNormalizeAnswers(t *testing.T) {
	got := NormalizeAnswers(model.AnswerSheet{1: " a ", 2: "B", 3: "", 4: "  "})

	want := model.AnswerSheet{1: "A", 2: "B"}
	if len(got) != len(want) {
		t.Fatalf("normalized sheet = %v, want %v", got, want)
	}
	for q, choice := range want {
		if got[q] != choice {
			t.Errorf("question %d = %q, want %q", q, got[q], choice)
		}
	}
}
