package pipeline

import (
	"context"
	"testing"

	"inkwell-ai-api/internal/domain/entity"
)

func TestDetectCliches(t *testing.T) {
	tests := []struct {
		name         string
		text         string
		wantDetected []string
	}{
		{
			name:         "clean text",
			text:         "The rain traced silver lines down the window while Mara counted her last coins.",
			wantDetected: nil,
		},
		{
			name:         "single cliche",
			text:         "It was a dark and stormy night when the letter arrived.",
			wantDetected: []string{"it was a dark and stormy night"},
		},
		{
			name:         "case insensitive",
			text:         "SUDDENLY the lights went out.",
			wantDetected: []string{"suddenly"},
		},
		{
			name:         "multiple cliches",
			text:         "Suddenly, against all odds, she arrived in the nick of time.",
			wantDetected: []string{"suddenly", "against all odds", "in the nick of time"},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			report := DetectCliches(tc.text)
			if len(report.Detected) != len(tc.wantDetected) {
				t.Fatalf("Detected = %v, want %v", report.Detected, tc.wantDetected)
			}
			for i, want := range tc.wantDetected {
				if report.Detected[i] != want {
					t.Fatalf("Detected[%d] = %q, want %q", i, report.Detected[i], want)
				}
			}
			if len(tc.wantDetected) == 0 {
				if report.Severity != 0 {
					t.Fatalf("Severity = %f, want 0 for clean text", report.Severity)
				}
				if len(report.Suggestions) != 0 {
					t.Fatalf("Suggestions = %v, want none for clean text", report.Suggestions)
				}
				return
			}
			if report.Severity <= 0 || report.Severity > 1 {
				t.Fatalf("Severity = %f, want in (0, 1]", report.Severity)
			}
			if len(report.Suggestions) == 0 {
				t.Fatal("no suggestions for detected cliches")
			}
		})
	}
}

func TestClicheDetectorStage(t *testing.T) {
	stage := NewClicheDetector()
	if stage.Fatal() {
		t.Fatal("post-processing stage must not be fatal")
	}
	if stage.Status() != entity.JobStatusPostProcessing {
		t.Fatalf("Status() = %s, want post_processing", stage.Status())
	}

	exec := NewExecution(&entity.GenerationRequest{Kind: entity.KindText}, nil, nil, nil)
	if err := stage.Run(context.Background(), exec); err == nil {
		t.Fatal("Run() on empty output should fail")
	}

	exec.Output = "Little did they know the bridge was out."
	if err := stage.Run(context.Background(), exec); err != nil {
		t.Fatalf("Run() error: %v", err)
	}
	if exec.ClicheReport == nil || len(exec.ClicheReport.Detected) != 1 {
		t.Fatalf("ClicheReport = %+v, want one detection", exec.ClicheReport)
	}
}
