package outfeed

import (
	"errors"
	"testing"
)

func TestDraftCleanTrimsAndDefaults(t *testing.T) {
	draft := Draft{
		ToolName:  "  quizmaster  ",
		Questions: []string{" what is go? ", "", "   ", "why channels?"},
	}

	clean, err := draft.Clean()
	if err != nil {
		t.Fatalf("clean failed: %v", err)
	}

	if clean.ToolName != "quizmaster" {
		t.Fatalf("expected trimmed tool name, got %q", clean.ToolName)
	}
	if len(clean.Questions) != 2 {
		t.Fatalf("expected 2 questions, got %d", len(clean.Questions))
	}
	if clean.Questions[0] != "what is go?" || clean.Questions[1] != "why channels?" {
		t.Fatalf("unexpected questions: %v", clean.Questions)
	}
	if clean.Difficulty != DifficultyEasy {
		t.Fatalf("expected difficulty to default to easy, got %q", clean.Difficulty)
	}
}

func TestDraftCleanRejectsEmptyToolName(t *testing.T) {
	_, err := Draft{ToolName: "   ", Questions: []string{"q"}}.Clean()
	if !errors.Is(err, ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}

	var verr ValidationError
	if !errors.As(err, &verr) || verr.Field != "tool_name" {
		t.Fatalf("expected tool_name field error, got %v", err)
	}
}

func TestDraftCleanRejectsBlankQuestions(t *testing.T) {
	_, err := Draft{ToolName: "tool", Questions: []string{"", "  "}}.Clean()
	if !errors.Is(err, ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}

	var verr ValidationError
	if !errors.As(err, &verr) || verr.Field != "questions" {
		t.Fatalf("expected questions field error, got %v", err)
	}
}

func TestDraftCleanRejectsUnknownDifficulty(t *testing.T) {
	_, err := Draft{
		ToolName:   "tool",
		Questions:  []string{"q"},
		Difficulty: Difficulty("impossible"),
	}.Clean()
	if !errors.Is(err, ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestFilterEmpty(t *testing.T) {
	cases := []struct {
		filter Filter
		want   bool
	}{
		{Filter{}, true},
		{Filter{Tool: "  "}, true},
		{Filter{Tool: "quiz"}, false},
		{Filter{Date: "2026-08-29"}, false},
	}

	for _, tc := range cases {
		if got := tc.filter.Empty(); got != tc.want {
			t.Fatalf("Empty(%+v) = %v, want %v", tc.filter, got, tc.want)
		}
	}
}

func TestRecordNormalizeDefaultsDifficulty(t *testing.T) {
	rec := Record{ID: "1"}
	rec.Normalize()
	if rec.Content.Difficulty != DifficultyEasy {
		t.Fatalf("expected easy, got %q", rec.Content.Difficulty)
	}

	rec = Record{Content: OutputContent{Difficulty: DifficultyHard}}
	rec.Normalize()
	if rec.Content.Difficulty != DifficultyHard {
		t.Fatalf("expected hard to be preserved, got %q", rec.Content.Difficulty)
	}
}

func TestErrorSentinels(t *testing.T) {
	if !errors.Is(NetworkError{Op: "fetch", Status: 502}, ErrNetwork) {
		t.Fatalf("expected NetworkError to match ErrNetwork")
	}
	if !errors.Is(&DecodeError{Op: "fetch"}, ErrDecode) {
		t.Fatalf("expected DecodeError to match ErrDecode")
	}
	if !errors.Is(SubmissionError{Status: 500}, ErrSubmission) {
		t.Fatalf("expected SubmissionError to match ErrSubmission")
	}
	if errors.Is(NetworkError{}, ErrSubmission) {
		t.Fatalf("did not expect NetworkError to match ErrSubmission")
	}
}
