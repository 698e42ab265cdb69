package entity

import (
	"testing"
)

func TestJobStatusTerminal(t *testing.T) {
	terminal := []JobStatus{JobStatusCompleted, JobStatusCancelled, JobStatusFailed}
	active := []JobStatus{JobStatusQueued, JobStatusAdmitted, JobStatusBuilding, JobStatusEnhancing, JobStatusGenerating, JobStatusPostProcessing}

	for _, s := range terminal {
		if !s.Terminal() {
			t.Errorf("%s.Terminal() = false, want true", s)
		}
	}
	for _, s := range active {
		if s.Terminal() {
			t.Errorf("%s.Terminal() = true, want false", s)
		}
	}
}

func TestJobProgressMonotone(t *testing.T) {
	job := NewJob("j1", GenerationRequest{Kind: KindText}, 100)

	job.UpdateProgress(40)
	job.UpdateProgress(20) // 回退被忽略
	if job.Progress != 40 {
		t.Fatalf("Progress = %d, want 40", job.Progress)
	}
	job.UpdateProgress(150)
	if job.Progress != 100 {
		t.Fatalf("Progress = %d, want clamped 100", job.Progress)
	}
}

func TestJobEnterStageIgnoredAfterTerminal(t *testing.T) {
	job := NewJob("j1", GenerationRequest{Kind: KindText}, 100)
	job.Cancel()
	job.EnterStage(JobStatusGenerating)
	if job.Status != JobStatusCancelled {
		t.Fatalf("Status = %s, want cancelled to stick", job.Status)
	}
}

func TestJobCompleteSetsTerminalFields(t *testing.T) {
	job := NewJob("j1", GenerationRequest{Kind: KindText}, 400)
	job.Admit()
	if job.Status != JobStatusAdmitted || job.StartedAt == nil {
		t.Fatalf("after Admit: status=%s startedAt=%v", job.Status, job.StartedAt)
	}

	job.Complete(150)
	if job.Status != JobStatusCompleted {
		t.Fatalf("Status = %s, want completed", job.Status)
	}
	if job.CommittedCredits != 150 {
		t.Fatalf("CommittedCredits = %d, want 150", job.CommittedCredits)
	}
	if job.Progress != 100 {
		t.Fatalf("Progress = %d, want 100", job.Progress)
	}
	if job.EndedAt == nil {
		t.Fatal("EndedAt not set")
	}
	if job.Duration() < 0 {
		t.Fatalf("Duration() = %v, want non-negative", job.Duration())
	}
}

func TestJobCancelKeepsStreamedContent(t *testing.T) {
	job := NewJob("j1", GenerationRequest{Kind: KindText}, 400)
	job.AppendContent("partial ")
	job.AppendContent("output")
	job.Cancel()

	if job.StreamedContent != "partial output" {
		t.Fatalf("StreamedContent = %q, want kept after cancel", job.StreamedContent)
	}
	if job.CommittedCredits != 0 {
		t.Fatalf("CommittedCredits = %d, want 0", job.CommittedCredits)
	}
}

func TestJobSnapshotIsolation(t *testing.T) {
	job := NewJob("j1", GenerationRequest{Kind: KindText}, 400)
	job.AddWarning("w1")
	job.ClicheReport = &ClicheReport{Detected: []string{"suddenly"}, Severity: 0.1}
	job.Admit()

	snap := job.Snapshot()

	// 修改原件不得影响快照
	job.AddWarning("w2")
	job.ClicheReport.Detected[0] = "mutated"
	*job.StartedAt = job.StartedAt.AddDate(1, 0, 0)

	if len(snap.Warnings) != 1 || snap.Warnings[0] != "w1" {
		t.Fatalf("snapshot warnings = %v, want [w1]", snap.Warnings)
	}
	if snap.ClicheReport.Detected[0] != "suddenly" {
		t.Fatalf("snapshot report = %v, want original detection", snap.ClicheReport.Detected)
	}
	if snap.StartedAt.Equal(*job.StartedAt) {
		t.Fatal("snapshot StartedAt aliases the original")
	}
}
