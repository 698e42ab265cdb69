package orchestrator

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"inkwell-ai-api/internal/application/credit"
	"inkwell-ai-api/internal/application/pipeline"
	"inkwell-ai-api/internal/domain/entity"
	"inkwell-ai-api/internal/domain/repository"
	apperrors "inkwell-ai-api/pkg/errors"
	"inkwell-ai-api/pkg/logger"
	"inkwell-ai-api/pkg/metrics"
)

var tracer = otel.Tracer("orchestrator")

// Options 编排器运行参数
type Options struct {
	// MaxConcurrent 在途任务并发上限
	MaxConcurrent int
	// HistoryLimit 终态任务的保留条数
	HistoryLimit int
	// SubscriberBuffer 订阅者通道的基础缓冲
	SubscriberBuffer int
	// StageTimeout 非生成阶段的单阶段超时
	StageTimeout time.Duration
	// GenerateTimeout 生成阶段超时
	GenerateTimeout time.Duration
}

func (o Options) withDefaults() Options {
	if o.MaxConcurrent <= 0 {
		o.MaxConcurrent = 3
	}
	if o.HistoryLimit <= 0 {
		o.HistoryLimit = 50
	}
	if o.SubscriberBuffer <= 0 {
		o.SubscriberBuffer = 64
	}
	if o.StageTimeout <= 0 {
		o.StageTimeout = 30 * time.Second
	}
	if o.GenerateTimeout <= 0 {
		o.GenerateTimeout = 5 * time.Minute
	}
	return o
}

// Orchestrator 生成任务编排器
//
// 提交即准入：先校验请求、预留额度，再排队等并发槽；
// 额度不足或参数非法时不会创建任务。每个任务由独立的
// worker 协程推进流水线，观察者通过订阅事件流跟进。
type Orchestrator struct {
	ledger  *credit.Ledger
	factory *pipeline.Factory
	limiter *Limiter
	archive repository.ArchiveRepository

	registry *registry
	opts     Options

	// rootCtx 所有任务的父上下文，Shutdown 时整体取消
	rootCtx  context.Context
	shutdown context.CancelFunc
	wg       sync.WaitGroup
}

// New 创建编排器
// archive 可为 nil，此时终态任务不做持久化归档。
func New(ledger *credit.Ledger, factory *pipeline.Factory, archive repository.ArchiveRepository, opts Options) *Orchestrator {
	opts = opts.withDefaults()
	rootCtx, cancel := context.WithCancel(context.Background())
	return &Orchestrator{
		ledger:   ledger,
		factory:  factory,
		limiter:  NewLimiter(opts.MaxConcurrent),
		archive:  archive,
		registry: newRegistry(opts.HistoryLimit),
		opts:     opts,
		rootCtx:  rootCtx,
		shutdown: cancel,
	}
}

// Submit 提交生成请求
// 通过准入后返回排队中的任务快照；任务异步执行。
func (o *Orchestrator) Submit(ctx context.Context, req entity.GenerationRequest) (entity.Job, error) {
	ctx, span := tracer.Start(ctx, "orchestrator.Submit")
	defer span.End()

	req = req.Normalized()
	if err := req.Validate(); err != nil {
		metrics.AdmissionRejected.WithLabelValues("malformed").Inc()
		span.RecordError(err)
		return entity.Job{}, apperrors.New(apperrors.CodeMalformedRequest, "malformed generation request").
			WithDetail(err.Error()).WithError(err)
	}

	estimated, err := credit.Estimate(&req)
	if err != nil {
		metrics.AdmissionRejected.WithLabelValues("unsupported_kind").Inc()
		span.RecordError(err)
		return entity.Job{}, apperrors.New(apperrors.CodeUnsupportedKind, "unsupported generation kind").
			WithDetail(err.Error()).WithError(err)
	}

	// 额度预留先于并发槽：排队中的任务也已占住额度
	reservation, err := o.ledger.Reserve(ctx, req.ProjectID, estimated)
	if err != nil {
		metrics.AdmissionRejected.WithLabelValues("insufficient_credits").Inc()
		span.RecordError(err)
		return entity.Job{}, apperrors.New(apperrors.CodeInsufficientCredits, "insufficient credits").
			WithDetail(err.Error()).WithError(err)
	}
	metrics.CreditsReserved.WithLabelValues(string(req.Kind)).Add(float64(estimated))

	jobID := uuid.NewString()
	span.SetAttributes(
		attribute.String("job_id", jobID),
		attribute.String("kind", string(req.Kind)),
		attribute.Int64("credits.reserved", estimated),
	)

	jobCtx, cancel := context.WithCancel(o.rootCtx)
	m := &managedJob{
		job:    entity.NewJob(jobID, req, estimated),
		cancel: cancel,
		bcast:  newBroadcaster(jobID, o.opts.SubscriberBuffer),
	}
	o.registry.add(m)

	snapshot := m.snapshot()
	o.publishStatus(m, entity.EventStageChange)

	logger.Info(ctx, "generation job submitted",
		"job_id", jobID,
		"project_id", req.ProjectID,
		"kind", string(req.Kind),
		"reserved_credits", estimated,
	)

	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		o.run(jobCtx, m, reservation)
	}()

	return snapshot, nil
}

// Cancel 请求取消任务
// 幂等：重复取消与取消已终态的任务都是成功的无操作。
func (o *Orchestrator) Cancel(ctx context.Context, jobID string) error {
	_, span := tracer.Start(ctx, "orchestrator.Cancel")
	span.SetAttributes(attribute.String("job_id", jobID))
	defer span.End()

	m, ok := o.registry.get(jobID)
	if !ok {
		return apperrors.New(apperrors.CodeJobNotFound, "generation job not found").WithDetail(jobID)
	}

	m.mu.Lock()
	if m.job.Status.Terminal() {
		m.mu.Unlock()
		return nil
	}
	m.job.RequestCancel()
	m.mu.Unlock()

	// 协作式取消：排队中的等待立即被打断，
	// 执行中的任务在下一个检查点停下。
	m.cancel()
	logger.Info(ctx, "generation job cancel requested", "job_id", jobID)
	return nil
}

// Snapshot 任务当前快照
func (o *Orchestrator) Snapshot(jobID string) (entity.Job, error) {
	m, ok := o.registry.get(jobID)
	if !ok {
		return entity.Job{}, apperrors.New(apperrors.CodeJobNotFound, "generation job not found").WithDetail(jobID)
	}
	return m.snapshot(), nil
}

// Jobs 所有在表任务（活跃 + 有限历史）的快照
func (o *Orchestrator) Jobs() []entity.Job {
	return o.registry.list()
}

// Subscribe 订阅任务事件流
// 迟到订阅会先重放已流出的内容；任务已终态时通道在重放后关闭。
func (o *Orchestrator) Subscribe(jobID string) (<-chan entity.StreamEvent, func(), error) {
	m, ok := o.registry.get(jobID)
	if !ok {
		return nil, nil, apperrors.New(apperrors.CodeJobNotFound, "generation job not found").WithDetail(jobID)
	}
	ch, unsubscribe := m.bcast.Subscribe()
	return ch, unsubscribe, nil
}

// Balance 项目额度快照
func (o *Orchestrator) Balance(projectID string) entity.CreditAccount {
	return o.ledger.Balance(projectID)
}

// Shutdown 取消所有在途任务并等待 worker 退出
func (o *Orchestrator) Shutdown(ctx context.Context) error {
	o.shutdown()

	done := make(chan struct{})
	go func() {
		o.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// run 任务 worker：排队 -> 执行流水线 -> 结算 -> 收尾
func (o *Orchestrator) run(ctx context.Context, m *managedJob, reservation *credit.Reservation) {
	ctx, span := tracer.Start(ctx, "orchestrator.run")
	span.SetAttributes(attribute.String("job_id", m.job.ID))
	defer span.End()

	req := m.job.Request
	queuedAt := time.Now()

	slot, err := o.limiter.Acquire(ctx)
	metrics.GenerationQueueWait.Observe(time.Since(queuedAt).Seconds())
	if err != nil {
		// 排队期间被取消：未执行任何阶段，额度全额退回
		o.settleCancelled(ctx, m, reservation)
		o.finish(ctx, m, nil)
		return
	}

	m.mu.Lock()
	m.job.Admit()
	m.mu.Unlock()
	o.publishStatus(m, entity.EventStageChange)

	exec := pipeline.NewExecution(&req,
		func(p int) { o.onProgress(m, p) },
		func(delta string) { o.onChunk(m, delta) },
		func(stage, msg string) { o.onWarning(m, stage, msg) },
	)

	outcome := o.runStages(ctx, m, exec)
	o.settle(ctx, m, exec, reservation, outcome)
	o.finish(ctx, m, slot)
}

type runOutcome struct {
	status entity.JobStatus
	err    error
}

// runStages 依序执行流水线阶段并应用失败策略
func (o *Orchestrator) runStages(ctx context.Context, m *managedJob, exec *pipeline.Execution) runOutcome {
	for _, stage := range o.factory.Build(exec.Request) {
		if cancelled(ctx, m) {
			return runOutcome{status: entity.JobStatusCancelled}
		}

		m.mu.Lock()
		m.job.EnterStage(stage.Status())
		m.mu.Unlock()
		o.publishStatus(m, entity.EventStageChange)

		timeout := o.opts.StageTimeout
		if stage.Status() == entity.JobStatusGenerating {
			timeout = o.opts.GenerateTimeout
		}
		stageCtx, cancel := context.WithTimeout(ctx, timeout)
		err := stage.Run(stageCtx, exec)
		cancel()

		if err == nil {
			continue
		}
		if cancelled(ctx, m) {
			return runOutcome{status: entity.JobStatusCancelled}
		}
		if stage.Fatal() {
			return runOutcome{status: entity.JobStatusFailed, err: fmt.Errorf("%s: %w", stage.Name(), err)}
		}
		// 非致命阶段失败：记警告降级，流水线继续
		o.onWarning(m, stage.Name(), err.Error())
	}

	if cancelled(ctx, m) {
		return runOutcome{status: entity.JobStatusCancelled}
	}
	return runOutcome{status: entity.JobStatusCompleted}
}

// settle 按任务结局结算额度并落终态
// 三种结算互斥：完成按实际用量提交，取消全额退回，
// 失败在供应商已上报用量时按用量提交、否则退回。
func (o *Orchestrator) settle(ctx context.Context, m *managedJob, exec *pipeline.Execution, reservation *credit.Reservation, outcome runOutcome) {
	req := m.job.Request

	switch outcome.status {
	case entity.JobStatusCompleted:
		committed := o.actualCost(&req, exec)
		if err := o.ledger.PartialCommit(ctx, reservation, committed); err != nil {
			logger.Error(ctx, "credit settlement failed", err, "job_id", m.job.ID)
		}
		refunded := reservation.Amount() - committed
		if refunded < 0 {
			refunded = 0
			committed = reservation.Amount()
		}
		metrics.CreditsCommitted.WithLabelValues(string(req.Kind)).Add(float64(committed))
		if refunded > 0 {
			metrics.CreditsRefunded.WithLabelValues(string(req.Kind)).Add(float64(refunded))
		}

		m.mu.Lock()
		m.job.TokensPrompt = exec.Usage.PromptTokens
		m.job.TokensCompletion = exec.Usage.CompletionTokens
		m.job.ClicheReport = exec.ClicheReport
		m.job.StyleReport = exec.StyleReport
		m.job.Complete(committed)
		m.mu.Unlock()

	case entity.JobStatusCancelled:
		o.settleCancelled(ctx, m, reservation)

	case entity.JobStatusFailed:
		var committed int64
		if exec.Usage.Total() > 0 {
			// 供应商已计费的部分不退
			committed = o.actualCost(&req, exec)
			if err := o.ledger.PartialCommit(ctx, reservation, committed); err != nil {
				logger.Error(ctx, "credit settlement failed", err, "job_id", m.job.ID)
			}
			metrics.CreditsCommitted.WithLabelValues(string(req.Kind)).Add(float64(committed))
		} else {
			if err := o.ledger.Release(ctx, reservation); err != nil {
				logger.Error(ctx, "credit release failed", err, "job_id", m.job.ID)
			}
			metrics.CreditsRefunded.WithLabelValues(string(req.Kind)).Add(float64(reservation.Amount()))
		}

		errMsg := "generation failed"
		if outcome.err != nil {
			errMsg = outcome.err.Error()
		}
		m.mu.Lock()
		m.job.TokensPrompt = exec.Usage.PromptTokens
		m.job.TokensCompletion = exec.Usage.CompletionTokens
		m.job.Fail(errMsg, committed)
		m.mu.Unlock()
	}
}

func (o *Orchestrator) settleCancelled(ctx context.Context, m *managedJob, reservation *credit.Reservation) {
	req := m.job.Request
	if err := o.ledger.Release(ctx, reservation); err != nil {
		logger.Error(ctx, "credit release failed", err, "job_id", m.job.ID)
	}
	metrics.CreditsRefunded.WithLabelValues(string(req.Kind)).Add(float64(reservation.Amount()))

	m.mu.Lock()
	m.job.Cancel()
	m.mu.Unlock()
}

// actualCost 完成或部分计费时的实际消耗
// 文本与头脑风暴按 token 用量折算；未上报用量时以产出字数兜底。
// 图像与风格分析为固定价，按预留额全额提交。
func (o *Orchestrator) actualCost(req *entity.GenerationRequest, exec *pipeline.Execution) int64 {
	switch req.Kind {
	case entity.KindText:
		tokens := exec.Usage.Total()
		if tokens == 0 {
			tokens = credit.EstimateTokens(len(strings.Fields(exec.Output)))
		}
		return credit.ActualTextCredits(req.ProseMode, tokens)
	default:
		est, err := credit.Estimate(req)
		if err != nil {
			return 0
		}
		return est
	}
}

// finish 发布终态事件、关闭扇出、归还槽位并归档
func (o *Orchestrator) finish(ctx context.Context, m *managedJob, slot *Slot) {
	snapshot := m.snapshot()

	o.publishTerminal(m, snapshot)
	m.bcast.Close()
	slot.Release()
	o.registry.markTerminal(snapshot.ID)

	metrics.GenerationJobsTotal.WithLabelValues(string(snapshot.Request.Kind), string(snapshot.Status)).Inc()
	metrics.GenerationDuration.WithLabelValues(string(snapshot.Request.Kind)).Observe(snapshot.Duration().Seconds())
	if total := snapshot.TokensPrompt; total > 0 {
		metrics.ProviderTokensUsed.WithLabelValues("prompt").Add(float64(total))
	}
	if total := snapshot.TokensCompletion; total > 0 {
		metrics.ProviderTokensUsed.WithLabelValues("completion").Add(float64(total))
	}

	logger.Info(ctx, "generation job finished",
		"job_id", snapshot.ID,
		"status", string(snapshot.Status),
		"committed_credits", snapshot.CommittedCredits,
		"duration_ms", snapshot.Duration().Milliseconds(),
	)

	if o.archive != nil {
		// 归档尽力而为，失败不影响任务结局
		archiveCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := o.archive.Save(archiveCtx, &snapshot); err != nil {
			logger.Warn(ctx, "failed to archive job", "job_id", snapshot.ID, "error", err.Error())
		}
	}
}

// cancelled 取消检查点
func cancelled(ctx context.Context, m *managedJob) bool {
	if ctx.Err() != nil {
		return true
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.job.CancelRequested
}

func (o *Orchestrator) onProgress(m *managedJob, p int) {
	m.mu.Lock()
	m.job.UpdateProgress(p)
	ev := entity.StreamEvent{
		JobID:    m.job.ID,
		Kind:     entity.EventProgress,
		Status:   m.job.Status,
		Progress: m.job.Progress,
		At:       time.Now(),
	}
	m.mu.Unlock()
	m.bcast.Publish(ev)
}

func (o *Orchestrator) onChunk(m *managedJob, delta string) {
	m.mu.Lock()
	m.job.AppendContent(delta)
	ev := entity.StreamEvent{
		JobID:        m.job.ID,
		Kind:         entity.EventChunk,
		Status:       m.job.Status,
		Progress:     m.job.Progress,
		ContentDelta: delta,
		At:           time.Now(),
	}
	m.mu.Unlock()
	m.bcast.Publish(ev)
}

func (o *Orchestrator) onWarning(m *managedJob, stage, msg string) {
	warning := fmt.Sprintf("%s: %s", stage, msg)
	m.mu.Lock()
	m.job.AddWarning(warning)
	ev := entity.StreamEvent{
		JobID:    m.job.ID,
		Kind:     entity.EventWarning,
		Status:   m.job.Status,
		Progress: m.job.Progress,
		Warning:  warning,
		At:       time.Now(),
	}
	m.mu.Unlock()
	m.bcast.Publish(ev)
}

func (o *Orchestrator) publishStatus(m *managedJob, kind entity.EventKind) {
	m.mu.Lock()
	ev := entity.StreamEvent{
		JobID:    m.job.ID,
		Kind:     kind,
		Status:   m.job.Status,
		Progress: m.job.Progress,
		At:       time.Now(),
	}
	m.mu.Unlock()
	m.bcast.Publish(ev)
}

func (o *Orchestrator) publishTerminal(m *managedJob, snapshot entity.Job) {
	m.bcast.Publish(entity.StreamEvent{
		JobID:    snapshot.ID,
		Kind:     entity.EventTerminal,
		Status:   snapshot.Status,
		Progress: snapshot.Progress,
		Error:    snapshot.ErrorMessage,
		At:       time.Now(),
	})
}
