// Package milvus 提供 Milvus 向量数据库访问层实现
package milvus

import (
	"context"
	"fmt"
	"strings"

	"github.com/milvus-io/milvus-sdk-go/v2/entity"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Repository 故事圣经向量检索仓储
type Repository struct {
	client *Client
}

// NewRepository 创建向量检索仓储
func NewRepository(client *Client) *Repository {
	return &Repository{client: client}
}

// SearchParams 检索参数
type SearchParams struct {
	ProjectID   string
	QueryVector []float32
	TopK        int
	Category    string
}

// SearchResult 检索结果
type SearchResult struct {
	ID       string
	Score    float32
	Category string
	Name     string
	Content  string
}

// CreateCollection 创建集合
func (r *Repository) CreateCollection(ctx context.Context, schema *entity.Schema) error {
	if r == nil || r.client == nil || r.client.milvus == nil {
		return fmt.Errorf("milvus client not configured")
	}
	ctx, span := tracer.Start(ctx, "milvus.CreateCollection",
		trace.WithAttributes(attribute.String("collection", schema.CollectionName)))
	defer span.End()

	collName := r.client.CollectionName(schema.CollectionName)
	schema.CollectionName = collName

	err := r.client.milvus.CreateCollection(ctx, schema, entity.DefaultShardNumber)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to create collection: %w", err)
	}

	return nil
}

// CreateIndex 创建 HNSW 索引
func (r *Repository) CreateIndex(ctx context.Context, collection string) error {
	if r == nil || r.client == nil || r.client.milvus == nil {
		return fmt.Errorf("milvus client not configured")
	}
	ctx, span := tracer.Start(ctx, "milvus.CreateIndex",
		trace.WithAttributes(attribute.String("collection", collection)))
	defer span.End()

	collName := r.client.CollectionName(collection)

	idx, err := entity.NewIndexHNSW(
		entity.COSINE,
		r.client.config.HNSWM,
		r.client.config.HNSWEfConstruction,
	)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to create index: %w", err)
	}

	err = r.client.milvus.CreateIndex(ctx, collName, "vector", idx, false)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to create index: %w", err)
	}

	return nil
}

// CreatePartition 创建项目分区
func (r *Repository) CreatePartition(ctx context.Context, collection, projectID string) error {
	if r == nil || r.client == nil || r.client.milvus == nil {
		return fmt.Errorf("milvus client not configured")
	}
	ctx, span := tracer.Start(ctx, "milvus.CreatePartition",
		trace.WithAttributes(
			attribute.String("collection", collection),
			attribute.String("partition", PartitionName(projectID)),
		))
	defer span.End()

	collName := r.client.CollectionName(collection)
	return r.client.milvus.CreatePartition(ctx, collName, PartitionName(projectID))
}

// SearchEntries 按类别检索故事圣经条目
func (r *Repository) SearchEntries(ctx context.Context, params *SearchParams) ([]*SearchResult, error) {
	if r == nil || r.client == nil || r.client.milvus == nil {
		return nil, fmt.Errorf("milvus client not configured")
	}
	ctx, span := tracer.Start(ctx, "milvus.SearchEntries",
		trace.WithAttributes(
			attribute.String("project_id", params.ProjectID),
			attribute.String("category", params.Category),
			attribute.Int("top_k", params.TopK),
		))
	defer span.End()

	collName := r.client.CollectionName(CollectionBibleEntries)
	partitionName := PartitionName(params.ProjectID)

	// 新项目的分区可能尚未创建，直接返回空结果
	if has, err := r.client.milvus.HasPartition(ctx, collName, partitionName); err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to check partition: %w", err)
	} else if !has {
		return []*SearchResult{}, nil
	}

	filter := fmt.Sprintf(`project_id == "%s"`, params.ProjectID)
	if params.Category != "" {
		filter += fmt.Sprintf(` && category == "%s"`, params.Category)
	}

	sp, err := entity.NewIndexHNSWSearchParam(128)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to create search param: %w", err)
	}

	results, err := r.client.milvus.Search(ctx,
		collName,
		[]string{partitionName},
		filter,
		[]string{"id", "category", "name", "content"},
		[]entity.Vector{entity.FloatVector(params.QueryVector)},
		"vector",
		entity.COSINE,
		params.TopK,
		sp,
	)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to search: %w", err)
	}

	var searchResults []*SearchResult
	for _, result := range results {
		for i := 0; i < result.ResultCount; i++ {
			sr := &SearchResult{
				Score: result.Scores[i],
			}

			if idCol, ok := result.Fields.GetColumn("id").(*entity.ColumnVarChar); ok {
				sr.ID = idCol.Data()[i]
			}
			if catCol, ok := result.Fields.GetColumn("category").(*entity.ColumnVarChar); ok {
				sr.Category = catCol.Data()[i]
			}
			if nameCol, ok := result.Fields.GetColumn("name").(*entity.ColumnVarChar); ok {
				sr.Name = nameCol.Data()[i]
			}
			if contentCol, ok := result.Fields.GetColumn("content").(*entity.ColumnVarChar); ok {
				sr.Content = contentCol.Data()[i]
			}

			searchResults = append(searchResults, sr)
		}
	}

	span.SetAttributes(attribute.Int("result_count", len(searchResults)))
	return searchResults, nil
}

// InsertEntries 插入故事圣经条目
func (r *Repository) InsertEntries(ctx context.Context, projectID string, entries []*BibleEntry) error {
	if r == nil || r.client == nil || r.client.milvus == nil {
		return fmt.Errorf("milvus client not configured")
	}
	ctx, span := tracer.Start(ctx, "milvus.InsertEntries",
		trace.WithAttributes(
			attribute.String("project_id", projectID),
			attribute.Int("count", len(entries)),
		))
	defer span.End()

	if len(entries) == 0 {
		return nil
	}

	collName := r.client.CollectionName(CollectionBibleEntries)
	partitionName := PartitionName(projectID)

	has, _ := r.client.milvus.HasPartition(ctx, collName, partitionName)
	if !has {
		if err := r.CreatePartition(ctx, CollectionBibleEntries, projectID); err != nil {
			return err
		}
	}

	ids := make([]string, len(entries))
	vectors := make([][]float32, len(entries))
	projectIDs := make([]string, len(entries))
	categories := make([]string, len(entries))
	names := make([]string, len(entries))
	contents := make([]string, len(entries))

	for i, e := range entries {
		ids[i] = e.ID
		vectors[i] = e.Vector
		projectIDs[i] = e.ProjectID
		categories[i] = e.Category
		names[i] = e.Name
		contents[i] = e.Content
	}

	idCol := entity.NewColumnVarChar("id", ids)
	vectorCol := entity.NewColumnFloatVector("vector", VectorDimension, vectors)
	projectCol := entity.NewColumnVarChar("project_id", projectIDs)
	categoryCol := entity.NewColumnVarChar("category", categories)
	nameCol := entity.NewColumnVarChar("name", names)
	contentCol := entity.NewColumnVarChar("content", contents)

	_, err := r.client.milvus.Insert(ctx, collName, partitionName,
		idCol, vectorCol, projectCol, categoryCol, nameCol, contentCol)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to insert entries: %w", err)
	}

	return nil
}

// DeleteEntries 删除条目
func (r *Repository) DeleteEntries(ctx context.Context, projectID string, ids []string) error {
	if r == nil || r.client == nil || r.client.milvus == nil {
		return fmt.Errorf("milvus client not configured")
	}
	if len(ids) == 0 {
		return nil
	}

	ctx, span := tracer.Start(ctx, "milvus.DeleteEntries",
		trace.WithAttributes(
			attribute.String("project_id", projectID),
			attribute.Int("count", len(ids)),
		))
	defer span.End()

	collName := r.client.CollectionName(CollectionBibleEntries)
	partitionName := PartitionName(projectID)

	if has, err := r.client.milvus.HasPartition(ctx, collName, partitionName); err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to check partition: %w", err)
	} else if !has {
		return nil
	}

	quoted := make([]string, len(ids))
	for i, id := range ids {
		quoted[i] = fmt.Sprintf("%q", id)
	}
	filter := fmt.Sprintf(`id in [%s]`, strings.Join(quoted, ", "))

	if err := r.client.milvus.Delete(ctx, collName, partitionName, filter); err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to delete entries: %w", err)
	}
	return nil
}

// EnsureBibleCollection 确保集合与索引可用（不存在则创建）。
// 约束：不会做 drop/rebuild 等破坏性操作。
func (r *Repository) EnsureBibleCollection(ctx context.Context) error {
	if r == nil || r.client == nil || r.client.milvus == nil {
		return fmt.Errorf("milvus client not configured")
	}

	exists, err := r.client.HasCollection(ctx, CollectionBibleEntries)
	if err != nil {
		return err
	}
	if !exists {
		if err := r.CreateCollection(ctx, BibleEntriesSchema()); err != nil {
			return err
		}
		// 新建集合时创建索引；若失败，允许后续由运维介入。
		_ = r.CreateIndex(ctx, CollectionBibleEntries)
	}

	return r.client.LoadCollection(ctx, CollectionBibleEntries)
}
