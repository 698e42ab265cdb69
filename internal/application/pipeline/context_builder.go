package pipeline

import (
	"context"
	"fmt"
	"strings"

	"inkwell-ai-api/internal/domain/entity"
)

// ContextQuery 故事圣经检索条件
type ContextQuery struct {
	ProjectID string
	Query     string
	// TokenBudget 渲染后的上下文 token 预算
	TokenBudget int
}

// StoryContext 检索到的项目素材，按类别分组
type StoryContext struct {
	Characters []string
	Locations  []string
	Lore       []string
}

// Empty 是否没有任何素材
func (c *StoryContext) Empty() bool {
	return c == nil || (len(c.Characters) == 0 && len(c.Locations) == 0 && len(c.Lore) == 0)
}

// ContextSource 故事圣经素材来源端口（向量检索适配在基础设施层）
type ContextSource interface {
	Collect(ctx context.Context, q ContextQuery) (*StoryContext, error)
}

// contextBudget 各类素材的 token 预算分配
type contextBudget struct {
	characters int
	locations  int
	lore       int
}

// newContextBudget 按倾斜方向切分预算
func newContextBudget(total int, priority entity.ContextPriority) contextBudget {
	switch priority {
	case entity.PriorityCharacters:
		return contextBudget{
			characters: total * 7 / 10,
			locations:  total * 2 / 10,
			lore:       total * 1 / 10,
		}
	case entity.PriorityLocations:
		return contextBudget{
			characters: total * 2 / 10,
			locations:  total * 7 / 10,
			lore:       total * 1 / 10,
		}
	case entity.PriorityLore:
		return contextBudget{
			characters: total * 2 / 10,
			locations:  total * 1 / 10,
			lore:       total * 7 / 10,
		}
	default: // balanced
		return contextBudget{
			characters: total * 5 / 10,
			locations:  total * 3 / 10,
			lore:       total * 2 / 10,
		}
	}
}

// ContextBuilder 上下文构建阶段
// 非致命：检索失败时以空上下文继续并记录警告。
type ContextBuilder struct {
	source      ContextSource
	tokenBudget int
}

// NewContextBuilder 创建上下文构建阶段
func NewContextBuilder(source ContextSource, tokenBudget int) *ContextBuilder {
	if tokenBudget <= 0 {
		tokenBudget = 2000
	}
	return &ContextBuilder{source: source, tokenBudget: tokenBudget}
}

func (s *ContextBuilder) Name() string             { return "context_builder" }
func (s *ContextBuilder) Status() entity.JobStatus { return entity.JobStatusBuilding }
func (s *ContextBuilder) Fatal() bool              { return false }

// Run 检索并渲染故事圣经上下文
func (s *ContextBuilder) Run(ctx context.Context, exec *Execution) error {
	if s.source == nil {
		return fmt.Errorf("no context source configured")
	}

	sc, err := s.source.Collect(ctx, ContextQuery{
		ProjectID:   exec.Request.ProjectID,
		Query:       exec.Request.Prompt,
		TokenBudget: s.tokenBudget,
	})
	if err != nil {
		return fmt.Errorf("context collection failed: %w", err)
	}
	if sc.Empty() {
		return nil
	}

	budget := newContextBudget(s.tokenBudget, exec.Request.ContextPriority)
	exec.StoryContext = renderContext(sc, budget)
	return nil
}

// renderContext 把素材渲染为提示词片段，按预算截断
func renderContext(sc *StoryContext, budget contextBudget) string {
	var b strings.Builder
	writeSection(&b, "Characters", sc.Characters, budget.characters)
	writeSection(&b, "Locations", sc.Locations, budget.locations)
	writeSection(&b, "Lore", sc.Lore, budget.lore)
	return strings.TrimSpace(b.String())
}

func writeSection(b *strings.Builder, title string, items []string, tokenBudget int) {
	if len(items) == 0 || tokenBudget <= 0 {
		return
	}
	// 1 token ≈ 4 字符
	charBudget := tokenBudget * 4

	b.WriteString("## ")
	b.WriteString(title)
	b.WriteString("\n")
	used := 0
	for _, item := range items {
		if used+len(item) > charBudget {
			remain := charBudget - used
			if remain > 20 {
				b.WriteString("- ")
				b.WriteString(item[:remain])
				b.WriteString("…\n")
			}
			break
		}
		b.WriteString("- ")
		b.WriteString(item)
		b.WriteString("\n")
		used += len(item)
	}
	b.WriteString("\n")
}
