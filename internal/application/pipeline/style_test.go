package pipeline

import (
	"context"
	"math"
	"strings"
	"testing"

	"inkwell-ai-api/internal/domain/entity"
)

func TestAnalyzeStyle(t *testing.T) {
	report := AnalyzeStyle("The fox ran. It hid under the barn! Who saw it?")

	// 三句共十一词
	if want := 11.0 / 3.0; math.Abs(report.SentenceLengthAvg-want) > 0.01 {
		t.Fatalf("SentenceLengthAvg = %f, want %f", report.SentenceLengthAvg, want)
	}
	if report.VocabularyComplexity <= 0 {
		t.Fatalf("VocabularyComplexity = %f, want > 0", report.VocabularyComplexity)
	}
	if report.DialogueRatio != 0 {
		t.Fatalf("DialogueRatio = %f, want 0 without quotes", report.DialogueRatio)
	}
}

func TestAnalyzeStyleEmpty(t *testing.T) {
	report := AnalyzeStyle("")
	if report.SentenceLengthAvg != 0 || report.VocabularyComplexity != 0 || report.DialogueRatio != 0 {
		t.Fatalf("empty text report = %+v, want zero values", report)
	}
}

func TestAnalyzeStyleDialogue(t *testing.T) {
	report := AnalyzeStyle(`"Run," she said. "Now."`)
	if report.DialogueRatio <= 0 {
		t.Fatalf("DialogueRatio = %f, want > 0 for quoted text", report.DialogueRatio)
	}
	if report.DialogueRatio > 1 {
		t.Fatalf("DialogueRatio = %f, want clamped to 1", report.DialogueRatio)
	}
}

func TestCompareStyleIdenticalText(t *testing.T) {
	text := "The fox ran across the field. It vanished into the hedge."
	report := CompareStyle(text, text)
	if math.Abs(report.Similarity-1.0) > 0.001 {
		t.Fatalf("Similarity of identical texts = %f, want 1.0", report.Similarity)
	}
}

func TestCompareStyleDivergentText(t *testing.T) {
	content := "Run. Hide. Wait."
	example := "The extraordinarily complicated machinery whirred continuously throughout the afternoon while the engineers deliberated about potential improvements to the fundamental architecture."

	report := CompareStyle(content, example)
	if report.Similarity < 0 || report.Similarity >= 0.9 {
		t.Fatalf("Similarity = %f, want low but in [0, 1)", report.Similarity)
	}
	if report.ExampleSentenceLengthAvg <= report.SentenceLengthAvg {
		t.Fatalf("example avg %f should exceed content avg %f",
			report.ExampleSentenceLengthAvg, report.SentenceLengthAvg)
	}
}

func TestStyleComparatorStage(t *testing.T) {
	stage := NewStyleComparator()
	if stage.Fatal() {
		t.Fatal("post-processing stage must not be fatal")
	}

	req := &entity.GenerationRequest{Kind: entity.KindText, StyleExample: "She walked slowly."}
	exec := NewExecution(req, nil, nil, nil)
	if err := stage.Run(context.Background(), exec); err == nil {
		t.Fatal("Run() on empty output should fail")
	}

	exec.Output = "He walked quickly through the market."
	if err := stage.Run(context.Background(), exec); err != nil {
		t.Fatalf("Run() error: %v", err)
	}
	if exec.StyleReport == nil {
		t.Fatal("StyleReport not attached")
	}
	if exec.StyleReport.Similarity <= 0 {
		t.Fatalf("Similarity = %f, want > 0 for similar prose", exec.StyleReport.Similarity)
	}
}

func TestStyleComparatorMissingExample(t *testing.T) {
	stage := NewStyleComparator()
	exec := NewExecution(&entity.GenerationRequest{Kind: entity.KindText}, nil, nil, nil)
	exec.Output = "Some generated prose."
	if err := stage.Run(context.Background(), exec); err == nil {
		t.Fatal("Run() without style example should fail")
	}
}

func TestRenderStyleAnalysis(t *testing.T) {
	out := renderStyleAnalysis(AnalyzeStyle("Short one."), AnalyzeStyle("A much longer reference sentence for comparison."))
	for _, section := range []string{"# Style Analysis", "## Your text", "## Reference example", "Average sentence length"} {
		if !strings.Contains(out, section) {
			t.Fatalf("rendered analysis missing %q:\n%s", section, out)
		}
	}
}
