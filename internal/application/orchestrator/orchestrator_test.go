package orchestrator

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"inkwell-ai-api/internal/application/credit"
	"inkwell-ai-api/internal/application/pipeline"
	"inkwell-ai-api/internal/application/provider"
	"inkwell-ai-api/internal/domain/entity"
	apperrors "inkwell-ai-api/pkg/errors"
)

// fakeText 脚本化的文本供应商
type fakeText struct {
	mu          sync.Mutex
	completeOut string
	completeErr error
	openErr     error
	chunks      []provider.Chunk
	tailErr     error
	blockTail   bool
	start       chan struct{}
	streams     int
}

func (f *fakeText) Complete(ctx context.Context, params provider.TextParams) (string, provider.Usage, error) {
	if f.completeErr != nil {
		return "", provider.Usage{}, f.completeErr
	}
	return f.completeOut, provider.Usage{}, nil
}

func (f *fakeText) Stream(ctx context.Context, params provider.TextParams) (provider.ChunkStream, error) {
	f.mu.Lock()
	f.streams++
	f.mu.Unlock()
	if f.openErr != nil {
		return nil, f.openErr
	}
	return &fakeStream{ctx: ctx, chunks: f.chunks, tailErr: f.tailErr, blockTail: f.blockTail, start: f.start}, nil
}

func (f *fakeText) streamCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.streams
}

type fakeStream struct {
	ctx       context.Context
	chunks    []provider.Chunk
	pos       int
	tailErr   error
	blockTail bool
	start     chan struct{}
}

func (s *fakeStream) Recv() (*provider.Chunk, error) {
	if s.start != nil {
		<-s.start
		s.start = nil
	}
	if s.pos < len(s.chunks) {
		c := s.chunks[s.pos]
		s.pos++
		return &c, nil
	}
	if s.blockTail {
		<-s.ctx.Done()
		return nil, s.ctx.Err()
	}
	if s.tailErr != nil {
		return nil, s.tailErr
	}
	return nil, io.EOF
}

func (s *fakeStream) Close() {}

type failingSource struct{}

func (failingSource) Collect(ctx context.Context, q pipeline.ContextQuery) (*pipeline.StoryContext, error) {
	return nil, fmt.Errorf("vector store unreachable")
}

func newTestOrchestrator(t *testing.T, text provider.TextGenerator, source pipeline.ContextSource, limit int64, opts Options) (*Orchestrator, *credit.Ledger) {
	t.Helper()
	ledger := credit.NewLedger(0, nil)
	if limit > 0 {
		ledger.SetLimit("p1", limit)
	}
	factory := pipeline.NewFactory(text, nil, source, 2000)
	orch := New(ledger, factory, nil, opts)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = orch.Shutdown(ctx)
	})
	return orch, ledger
}

func textRequest(words int) entity.GenerationRequest {
	return entity.GenerationRequest{
		Kind:        entity.KindText,
		ProjectID:   "p1",
		Prompt:      "write the confrontation scene",
		ProseMode:   entity.ProseModeBasic,
		LengthWords: words,
	}
}

// collectEvents 读事件直到扇出关闭（终态后）
func collectEvents(t *testing.T, ch <-chan entity.StreamEvent) []entity.StreamEvent {
	t.Helper()
	var events []entity.StreamEvent
	timeout := time.After(5 * time.Second)
	for {
		select {
		case ev, ok := <-ch:
			if !ok {
				return events
			}
			events = append(events, ev)
		case <-timeout:
			t.Fatal("timed out waiting for job events")
		}
	}
}

func awaitTerminal(t *testing.T, orch *Orchestrator, jobID string) entity.Job {
	t.Helper()
	ch, unsubscribe, err := orch.Subscribe(jobID)
	if err != nil {
		t.Fatalf("Subscribe() error: %v", err)
	}
	defer unsubscribe()
	collectEvents(t, ch)

	job, err := orch.Snapshot(jobID)
	if err != nil {
		t.Fatalf("Snapshot() error: %v", err)
	}
	return job
}

func errorCode(err error) apperrors.ErrorCode {
	return apperrors.AsAppError(err).Code
}

func TestSubmitRejectsMalformedRequest(t *testing.T) {
	orch, _ := newTestOrchestrator(t, &fakeText{}, nil, 0, Options{})

	req := textRequest(300)
	req.Prompt = "   "
	_, err := orch.Submit(context.Background(), req)
	if errorCode(err) != apperrors.CodeMalformedRequest {
		t.Fatalf("Submit() error = %v, want malformed request code", err)
	}
	if jobs := orch.Jobs(); len(jobs) != 0 {
		t.Fatalf("jobs after rejection = %d, want 0", len(jobs))
	}
}

func TestSubmitRejectsUnknownKind(t *testing.T) {
	orch, _ := newTestOrchestrator(t, &fakeText{}, nil, 0, Options{})

	req := textRequest(300)
	req.Kind = "music"
	_, err := orch.Submit(context.Background(), req)
	if errorCode(err) != apperrors.CodeMalformedRequest {
		t.Fatalf("Submit() error = %v, want malformed request code", err)
	}
}

func TestSubmitRejectsInsufficientCredits(t *testing.T) {
	// basic 300 词的预估为 400，上限给 100
	orch, ledger := newTestOrchestrator(t, &fakeText{}, nil, 100, Options{})

	_, err := orch.Submit(context.Background(), textRequest(300))
	if errorCode(err) != apperrors.CodeInsufficientCredits {
		t.Fatalf("Submit() error = %v, want insufficient credits code", err)
	}
	if jobs := orch.Jobs(); len(jobs) != 0 {
		t.Fatalf("jobs after rejection = %d, want 0", len(jobs))
	}
	// 拒绝不得留下悬挂预留
	if acc := ledger.Balance("p1"); acc.Reserved != 0 {
		t.Fatalf("reserved after rejection = %d, want 0", acc.Reserved)
	}
}

func TestJobCompletesAndSettlesActualUsage(t *testing.T) {
	text := &fakeText{chunks: []provider.Chunk{
		{Delta: "The door "},
		{Delta: "swung open."},
		{Usage: &provider.Usage{PromptTokens: 40, CompletionTokens: 60}},
	}}
	orch, ledger := newTestOrchestrator(t, text, nil, 10_000, Options{})

	job, err := orch.Submit(context.Background(), textRequest(300))
	if err != nil {
		t.Fatalf("Submit() error: %v", err)
	}
	if job.Status != entity.JobStatusQueued {
		t.Fatalf("submitted status = %s, want queued", job.Status)
	}
	if job.ReservedCredits != 400 {
		t.Fatalf("reserved credits = %d, want 400", job.ReservedCredits)
	}

	final := awaitTerminal(t, orch, job.ID)
	if final.Status != entity.JobStatusCompleted {
		t.Fatalf("final status = %s, want completed (%s)", final.Status, final.ErrorMessage)
	}
	if final.StreamedContent != "The door swung open." {
		t.Fatalf("streamed content = %q", final.StreamedContent)
	}
	if final.Progress != 100 {
		t.Fatalf("final progress = %d, want 100", final.Progress)
	}
	if final.TokensPrompt != 40 || final.TokensCompletion != 60 {
		t.Fatalf("usage = %d/%d, want 40/60", final.TokensPrompt, final.TokensCompletion)
	}
	// basic 模式按实际 100 token 计 100，预留 400 的差额退回
	if final.CommittedCredits != 100 {
		t.Fatalf("committed credits = %d, want 100", final.CommittedCredits)
	}
	acc := ledger.Balance("p1")
	if acc.Reserved != 0 || acc.Committed != 100 {
		t.Fatalf("balance = %+v, want reserved=0 committed=100", acc)
	}
}

func TestDegradedStagesStillComplete(t *testing.T) {
	text := &fakeText{
		completeErr: fmt.Errorf("enhancer quota exhausted"),
		chunks: []provider.Chunk{
			{Delta: "Generated anyway."},
			{Usage: &provider.Usage{PromptTokens: 10, CompletionTokens: 10}},
		},
	}
	orch, _ := newTestOrchestrator(t, text, failingSource{}, 0, Options{})

	req := textRequest(300)
	req.UseContext = true
	req.EnhancePrompt = true
	job, err := orch.Submit(context.Background(), req)
	if err != nil {
		t.Fatalf("Submit() error: %v", err)
	}

	final := awaitTerminal(t, orch, job.ID)
	if final.Status != entity.JobStatusCompleted {
		t.Fatalf("final status = %s, want completed despite degraded stages", final.Status)
	}
	if len(final.Warnings) != 2 {
		t.Fatalf("warnings = %v, want one per degraded stage", final.Warnings)
	}
	for _, w := range final.Warnings {
		if !strings.Contains(w, "context_builder") && !strings.Contains(w, "prompt_enhancer") {
			t.Fatalf("unexpected warning source: %q", w)
		}
	}
	if final.StreamedContent != "Generated anyway." {
		t.Fatalf("streamed content = %q", final.StreamedContent)
	}
}

func TestGeneratorFailureRefundsWithoutUsage(t *testing.T) {
	text := &fakeText{openErr: fmt.Errorf("provider down")}
	orch, ledger := newTestOrchestrator(t, text, nil, 10_000, Options{})

	job, err := orch.Submit(context.Background(), textRequest(300))
	if err != nil {
		t.Fatalf("Submit() error: %v", err)
	}

	final := awaitTerminal(t, orch, job.ID)
	if final.Status != entity.JobStatusFailed {
		t.Fatalf("final status = %s, want failed", final.Status)
	}
	if !strings.Contains(final.ErrorMessage, "provider down") {
		t.Fatalf("error message = %q", final.ErrorMessage)
	}
	// 供应商未计费，预留全额退回
	if final.CommittedCredits != 0 {
		t.Fatalf("committed credits = %d, want 0", final.CommittedCredits)
	}
	acc := ledger.Balance("p1")
	if acc.Reserved != 0 || acc.Committed != 0 {
		t.Fatalf("balance = %+v, want full refund", acc)
	}
}

func TestGeneratorFailureChargesReportedUsage(t *testing.T) {
	text := &fakeText{
		chunks: []provider.Chunk{
			{Delta: "partial output "},
			{Usage: &provider.Usage{PromptTokens: 30, CompletionTokens: 70}},
		},
		tailErr: fmt.Errorf("stream reset"),
	}
	orch, ledger := newTestOrchestrator(t, text, nil, 10_000, Options{})

	job, err := orch.Submit(context.Background(), textRequest(300))
	if err != nil {
		t.Fatalf("Submit() error: %v", err)
	}

	final := awaitTerminal(t, orch, job.ID)
	if final.Status != entity.JobStatusFailed {
		t.Fatalf("final status = %s, want failed", final.Status)
	}
	// 供应商已上报 100 token，按用量计费不退
	if final.CommittedCredits != 100 {
		t.Fatalf("committed credits = %d, want 100", final.CommittedCredits)
	}
	if acc := ledger.Balance("p1"); acc.Committed != 100 || acc.Reserved != 0 {
		t.Fatalf("balance = %+v, want reserved=0 committed=100", acc)
	}
}

func TestCancelMidStreamRefundsAndKeepsContent(t *testing.T) {
	text := &fakeText{
		chunks:    []provider.Chunk{{Delta: "hello "}},
		blockTail: true,
	}
	orch, ledger := newTestOrchestrator(t, text, nil, 10_000, Options{})

	job, err := orch.Submit(context.Background(), textRequest(300))
	if err != nil {
		t.Fatalf("Submit() error: %v", err)
	}

	ch, unsubscribe, err := orch.Subscribe(job.ID)
	if err != nil {
		t.Fatalf("Subscribe() error: %v", err)
	}
	defer unsubscribe()

	// 等到第一个内容块流出再取消
	timeout := time.After(5 * time.Second)
	for sawChunk := false; !sawChunk; {
		select {
		case ev := <-ch:
			sawChunk = ev.Kind == entity.EventChunk
		case <-timeout:
			t.Fatal("timed out waiting for first chunk")
		}
	}
	if err := orch.Cancel(context.Background(), job.ID); err != nil {
		t.Fatalf("Cancel() error: %v", err)
	}
	collectEvents(t, ch)

	final, err := orch.Snapshot(job.ID)
	if err != nil {
		t.Fatalf("Snapshot() error: %v", err)
	}
	if final.Status != entity.JobStatusCancelled {
		t.Fatalf("final status = %s, want cancelled", final.Status)
	}
	if final.StreamedContent != "hello " {
		t.Fatalf("streamed content = %q, want partial output kept", final.StreamedContent)
	}
	if final.CommittedCredits != 0 {
		t.Fatalf("committed credits = %d, want 0", final.CommittedCredits)
	}
	if acc := ledger.Balance("p1"); acc.Reserved != 0 || acc.Committed != 0 {
		t.Fatalf("balance = %+v, want full refund", acc)
	}

	// 取消是幂等的：终态后再取消仍是成功的无操作
	if err := orch.Cancel(context.Background(), job.ID); err != nil {
		t.Fatalf("Cancel() after terminal error: %v", err)
	}
}

func TestCancelUnknownJob(t *testing.T) {
	orch, _ := newTestOrchestrator(t, &fakeText{}, nil, 0, Options{})
	if err := orch.Cancel(context.Background(), "missing"); errorCode(err) != apperrors.CodeJobNotFound {
		t.Fatalf("Cancel() error = %v, want job not found code", err)
	}
}

func TestQueuedJobWaitsForSlot(t *testing.T) {
	text := &fakeText{
		chunks:    []provider.Chunk{{Delta: "busy "}},
		blockTail: true,
	}
	orch, _ := newTestOrchestrator(t, text, nil, 0, Options{MaxConcurrent: 1})

	first, err := orch.Submit(context.Background(), textRequest(100))
	if err != nil {
		t.Fatalf("Submit() error: %v", err)
	}
	// 等第一个任务占住唯一的槽
	deadline := time.Now().Add(5 * time.Second)
	for text.streamCount() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("first job never started streaming")
		}
		time.Sleep(5 * time.Millisecond)
	}

	second, err := orch.Submit(context.Background(), textRequest(100))
	if err != nil {
		t.Fatalf("Submit() error: %v", err)
	}
	time.Sleep(50 * time.Millisecond)
	snap, err := orch.Snapshot(second.ID)
	if err != nil {
		t.Fatalf("Snapshot() error: %v", err)
	}
	if snap.Status != entity.JobStatusQueued {
		t.Fatalf("second job status = %s, want queued while slot is held", snap.Status)
	}

	// 取消排队中的任务：未执行任何阶段，立即终态
	if err := orch.Cancel(context.Background(), second.ID); err != nil {
		t.Fatalf("Cancel() error: %v", err)
	}
	final := awaitTerminal(t, orch, second.ID)
	if final.Status != entity.JobStatusCancelled {
		t.Fatalf("second job status = %s, want cancelled", final.Status)
	}
	if final.StartedAt != nil {
		t.Fatal("queued job should never have started")
	}

	_ = orch.Cancel(context.Background(), first.ID)
}

func TestProgressIsMonotone(t *testing.T) {
	var chunks []provider.Chunk
	for i := 0; i < 20; i++ {
		chunks = append(chunks, provider.Chunk{Delta: "word word word word word "})
	}
	chunks = append(chunks, provider.Chunk{Usage: &provider.Usage{PromptTokens: 10, CompletionTokens: 90}})
	// 流在订阅建立前不开闸，保证观察到全部实时事件
	text := &fakeText{chunks: chunks, start: make(chan struct{})}
	orch, _ := newTestOrchestrator(t, text, nil, 0, Options{SubscriberBuffer: 256})

	job, err := orch.Submit(context.Background(), textRequest(100))
	if err != nil {
		t.Fatalf("Submit() error: %v", err)
	}

	ch, unsubscribe, err := orch.Subscribe(job.ID)
	if err != nil {
		t.Fatalf("Subscribe() error: %v", err)
	}
	defer unsubscribe()
	close(text.start)

	last := -1
	for _, ev := range collectEvents(t, ch) {
		if ev.Progress < last {
			t.Fatalf("progress went backwards: %d after %d", ev.Progress, last)
		}
		last = ev.Progress
	}
	if last != 100 {
		t.Fatalf("final progress = %d, want 100", last)
	}
}

func TestSubscribeAfterTerminalReplays(t *testing.T) {
	text := &fakeText{chunks: []provider.Chunk{
		{Delta: "alpha "},
		{Delta: "omega"},
	}}
	orch, _ := newTestOrchestrator(t, text, nil, 0, Options{})

	job, err := orch.Submit(context.Background(), textRequest(100))
	if err != nil {
		t.Fatalf("Submit() error: %v", err)
	}
	awaitTerminal(t, orch, job.ID)

	// 终态后的订阅重放全部内容块并以终态事件收尾
	ch, unsubscribe, err := orch.Subscribe(job.ID)
	if err != nil {
		t.Fatalf("Subscribe() error: %v", err)
	}
	defer unsubscribe()

	events := collectEvents(t, ch)
	if len(events) == 0 {
		t.Fatal("no replayed events")
	}
	var content strings.Builder
	last := -1
	for _, ev := range events {
		if ev.Kind == entity.EventChunk {
			content.WriteString(ev.ContentDelta)
		}
		// 重放给单个订阅者的进度同样不得回退
		if ev.Progress < last {
			t.Fatalf("replayed progress went backwards: %d after %d", ev.Progress, last)
		}
		last = ev.Progress
	}
	if content.String() != "alpha omega" {
		t.Fatalf("replayed content = %q, want %q", content.String(), "alpha omega")
	}
	if lastEv := events[len(events)-1]; lastEv.Kind != entity.EventTerminal {
		t.Fatalf("last event kind = %s, want terminal", lastEv.Kind)
	}
}

func TestShutdownCancelsInflightJobs(t *testing.T) {
	text := &fakeText{
		chunks:    []provider.Chunk{{Delta: "stuck "}},
		blockTail: true,
	}
	ledger := credit.NewLedger(0, nil)
	factory := pipeline.NewFactory(text, nil, nil, 2000)
	orch := New(ledger, factory, nil, Options{})

	job, err := orch.Submit(context.Background(), textRequest(100))
	if err != nil {
		t.Fatalf("Submit() error: %v", err)
	}
	deadline := time.Now().Add(5 * time.Second)
	for text.streamCount() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("job never started streaming")
		}
		time.Sleep(5 * time.Millisecond)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := orch.Shutdown(ctx); err != nil {
		t.Fatalf("Shutdown() error: %v", err)
	}

	final, err := orch.Snapshot(job.ID)
	if err != nil {
		t.Fatalf("Snapshot() error: %v", err)
	}
	if final.Status != entity.JobStatusCancelled {
		t.Fatalf("status after shutdown = %s, want cancelled", final.Status)
	}
	// 在途任务的额度在退出前结清
	if acc := ledger.Balance("p1"); acc.Reserved != 0 {
		t.Fatalf("reserved after shutdown = %d, want 0", acc.Reserved)
	}
}
