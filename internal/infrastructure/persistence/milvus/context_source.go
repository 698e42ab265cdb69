package milvus

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"inkwell-ai-api/internal/application/pipeline"
	"inkwell-ai-api/internal/application/provider"
	"inkwell-ai-api/pkg/metrics"
)

// 每个类别的召回条数
const entriesPerCategory = 5

// ContextSource 故事圣经素材来源的向量检索适配
// 把提示词向量化后，按类别分别召回最相关的条目。
type ContextSource struct {
	repo     *Repository
	embedder provider.Embedder
}

// NewContextSource 创建素材来源适配
func NewContextSource(repo *Repository, embedder provider.Embedder) *ContextSource {
	return &ContextSource{repo: repo, embedder: embedder}
}

// Collect 检索与提示词相关的故事圣经素材
func (s *ContextSource) Collect(ctx context.Context, q pipeline.ContextQuery) (*pipeline.StoryContext, error) {
	ctx, span := tracer.Start(ctx, "milvus.ContextSource.Collect")
	span.SetAttributes(attribute.String("project_id", q.ProjectID))
	defer span.End()

	start := time.Now()
	status := "ok"
	defer func() {
		metrics.ContextSearchDuration.WithLabelValues(status).Observe(time.Since(start).Seconds())
	}()

	vector, err := s.embedder.EmbedQuery(ctx, q.Query)
	if err != nil {
		status = "error"
		span.RecordError(err)
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}

	sc := &pipeline.StoryContext{}
	for _, category := range []string{CategoryCharacter, CategoryLocation, CategoryLore} {
		results, err := s.repo.SearchEntries(ctx, &SearchParams{
			ProjectID:   q.ProjectID,
			QueryVector: vector,
			TopK:        entriesPerCategory,
			Category:    category,
		})
		if err != nil {
			status = "error"
			span.RecordError(err)
			return nil, fmt.Errorf("failed to search %s entries: %w", category, err)
		}

		for _, r := range results {
			item := r.Content
			if r.Name != "" {
				item = r.Name + ": " + r.Content
			}
			switch category {
			case CategoryCharacter:
				sc.Characters = append(sc.Characters, item)
			case CategoryLocation:
				sc.Locations = append(sc.Locations, item)
			case CategoryLore:
				sc.Lore = append(sc.Lore, item)
			}
		}
	}

	span.SetAttributes(
		attribute.Int("characters", len(sc.Characters)),
		attribute.Int("locations", len(sc.Locations)),
		attribute.Int("lore", len(sc.Lore)),
	)
	return sc, nil
}
