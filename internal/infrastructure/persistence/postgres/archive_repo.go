package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/lib/pq"

	"inkwell-ai-api/internal/domain/entity"
)

// jobRecord 终态任务的归档行
type jobRecord struct {
	ID        string `gorm:"primaryKey;type:varchar(36)"`
	ProjectID string `gorm:"type:varchar(64);index:idx_jobs_project_created"`
	Kind      string `gorm:"type:varchar(32)"`
	Status    string `gorm:"type:varchar(32)"`

	// Request 原始请求，支持"按相同设置重新生成"
	Request []byte `gorm:"type:jsonb"`

	Content  string         `gorm:"type:text"`
	Warnings pq.StringArray `gorm:"type:text[]"`
	ErrorMsg string         `gorm:"type:text"`

	ReservedCredits  int64
	CommittedCredits int64
	TokensPrompt     int
	TokensCompletion int

	ClicheReport []byte `gorm:"type:jsonb"`
	StyleReport  []byte `gorm:"type:jsonb"`

	CreatedAt time.Time `gorm:"index:idx_jobs_project_created,sort:desc"`
	StartedAt *time.Time
	EndedAt   *time.Time
}

func (jobRecord) TableName() string {
	return "generation_jobs"
}

// ArchiveRepository 终态任务归档仓储
type ArchiveRepository struct {
	client *Client
}

// NewArchiveRepository 创建归档仓储
func NewArchiveRepository(client *Client) *ArchiveRepository {
	return &ArchiveRepository{client: client}
}

// Save 归档终态任务；同一任务重复写入取最后一次
func (r *ArchiveRepository) Save(ctx context.Context, job *entity.Job) error {
	ctx, span := tracer.Start(ctx, "postgres.ArchiveRepository.Save")
	defer span.End()

	record, err := toJobRecord(job)
	if err != nil {
		span.RecordError(err)
		return err
	}

	db := r.client.db.WithContext(ctx)
	if err := db.Save(record).Error; err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to archive job: %w", err)
	}
	return nil
}

// ListRecent 按时间倒序取项目最近的归档任务
func (r *ArchiveRepository) ListRecent(ctx context.Context, projectID string, limit int) ([]*entity.Job, error) {
	ctx, span := tracer.Start(ctx, "postgres.ArchiveRepository.ListRecent")
	defer span.End()

	if limit <= 0 {
		limit = 20
	}

	var records []jobRecord
	db := r.client.db.WithContext(ctx)
	err := db.Where("project_id = ?", projectID).
		Order("created_at DESC").
		Limit(limit).
		Find(&records).Error
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to list archived jobs: %w", err)
	}

	jobs := make([]*entity.Job, 0, len(records))
	for i := range records {
		job, err := fromJobRecord(&records[i])
		if err != nil {
			span.RecordError(err)
			return nil, err
		}
		jobs = append(jobs, job)
	}
	return jobs, nil
}

func toJobRecord(job *entity.Job) (*jobRecord, error) {
	reqJSON, err := json.Marshal(job.Request)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	record := &jobRecord{
		ID:               job.ID,
		ProjectID:        job.Request.ProjectID,
		Kind:             string(job.Request.Kind),
		Status:           string(job.Status),
		Request:          reqJSON,
		Content:          job.StreamedContent,
		Warnings:         pq.StringArray(job.Warnings),
		ErrorMsg:         job.ErrorMessage,
		ReservedCredits:  job.ReservedCredits,
		CommittedCredits: job.CommittedCredits,
		TokensPrompt:     job.TokensPrompt,
		TokensCompletion: job.TokensCompletion,
		CreatedAt:        job.CreatedAt,
		StartedAt:        job.StartedAt,
		EndedAt:          job.EndedAt,
	}

	if job.ClicheReport != nil {
		if record.ClicheReport, err = json.Marshal(job.ClicheReport); err != nil {
			return nil, fmt.Errorf("failed to marshal cliche report: %w", err)
		}
	}
	if job.StyleReport != nil {
		if record.StyleReport, err = json.Marshal(job.StyleReport); err != nil {
			return nil, fmt.Errorf("failed to marshal style report: %w", err)
		}
	}
	return record, nil
}

func fromJobRecord(record *jobRecord) (*entity.Job, error) {
	var req entity.GenerationRequest
	if len(record.Request) > 0 {
		if err := json.Unmarshal(record.Request, &req); err != nil {
			return nil, fmt.Errorf("failed to unmarshal request: %w", err)
		}
	}

	job := &entity.Job{
		ID:               record.ID,
		Request:          req,
		Status:           entity.JobStatus(record.Status),
		StreamedContent:  record.Content,
		Warnings:         []string(record.Warnings),
		ErrorMessage:     record.ErrorMsg,
		ReservedCredits:  record.ReservedCredits,
		CommittedCredits: record.CommittedCredits,
		TokensPrompt:     record.TokensPrompt,
		TokensCompletion: record.TokensCompletion,
		CreatedAt:        record.CreatedAt,
		StartedAt:        record.StartedAt,
		EndedAt:          record.EndedAt,
	}
	if job.Status == entity.JobStatusCompleted {
		job.Progress = 100
	}

	if len(record.ClicheReport) > 0 {
		var report entity.ClicheReport
		if err := json.Unmarshal(record.ClicheReport, &report); err != nil {
			return nil, fmt.Errorf("failed to unmarshal cliche report: %w", err)
		}
		job.ClicheReport = &report
	}
	if len(record.StyleReport) > 0 {
		var report entity.StyleReport
		if err := json.Unmarshal(record.StyleReport, &report); err != nil {
			return nil, fmt.Errorf("failed to unmarshal style report: %w", err)
		}
		job.StyleReport = &report
	}
	return job, nil
}
