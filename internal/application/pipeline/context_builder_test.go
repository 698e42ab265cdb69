package pipeline

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"inkwell-ai-api/internal/domain/entity"
)

type staticSource struct {
	sc  *StoryContext
	err error
}

func (s staticSource) Collect(ctx context.Context, q ContextQuery) (*StoryContext, error) {
	return s.sc, s.err
}

func TestContextBuilderRendersSections(t *testing.T) {
	source := staticSource{sc: &StoryContext{
		Characters: []string{"Mara: a retired smuggler with a bad knee"},
		Locations:  []string{"The Undermarket: a flooded cellar bazaar"},
		Lore:       []string{"Iron is poisonous to the fae"},
	}}
	stage := NewContextBuilder(source, 2000)

	req := &entity.GenerationRequest{
		Kind:      entity.KindText,
		ProjectID: "p1",
		Prompt:    "Mara visits the Undermarket",
	}
	exec := NewExecution(req, nil, nil, nil)
	if err := stage.Run(context.Background(), exec); err != nil {
		t.Fatalf("Run() error: %v", err)
	}

	for _, want := range []string{"## Characters", "## Locations", "## Lore", "Mara", "Undermarket", "fae"} {
		if !strings.Contains(exec.StoryContext, want) {
			t.Fatalf("StoryContext missing %q:\n%s", want, exec.StoryContext)
		}
	}
}

func TestContextBuilderEmptyResult(t *testing.T) {
	stage := NewContextBuilder(staticSource{sc: &StoryContext{}}, 2000)
	exec := NewExecution(&entity.GenerationRequest{Kind: entity.KindText, ProjectID: "p1", Prompt: "x"}, nil, nil, nil)
	if err := stage.Run(context.Background(), exec); err != nil {
		t.Fatalf("Run() error: %v", err)
	}
	if exec.StoryContext != "" {
		t.Fatalf("StoryContext = %q, want empty", exec.StoryContext)
	}
}

func TestContextBuilderSourceFailure(t *testing.T) {
	stage := NewContextBuilder(staticSource{err: fmt.Errorf("milvus unreachable")}, 2000)
	if stage.Fatal() {
		t.Fatal("context builder must not be fatal")
	}
	exec := NewExecution(&entity.GenerationRequest{Kind: entity.KindText, ProjectID: "p1", Prompt: "x"}, nil, nil, nil)
	if err := stage.Run(context.Background(), exec); err == nil {
		t.Fatal("Run() should surface source failure for degradation")
	}
}

func TestContextBuilderNilSource(t *testing.T) {
	stage := NewContextBuilder(nil, 2000)
	exec := NewExecution(&entity.GenerationRequest{Kind: entity.KindText, ProjectID: "p1", Prompt: "x"}, nil, nil, nil)
	if err := stage.Run(context.Background(), exec); err == nil {
		t.Fatal("Run() without a source should fail")
	}
}

func TestContextBudgetSplit(t *testing.T) {
	tests := []struct {
		priority entity.ContextPriority
		want     contextBudget
	}{
		{entity.PriorityBalanced, contextBudget{characters: 500, locations: 300, lore: 200}},
		{entity.PriorityCharacters, contextBudget{characters: 700, locations: 200, lore: 100}},
		{entity.PriorityLocations, contextBudget{characters: 200, locations: 700, lore: 100}},
		{entity.PriorityLore, contextBudget{characters: 200, locations: 100, lore: 700}},
	}
	for _, tc := range tests {
		t.Run(string(tc.priority), func(t *testing.T) {
			if got := newContextBudget(1000, tc.priority); got != tc.want {
				t.Fatalf("newContextBudget(1000, %s) = %+v, want %+v", tc.priority, got, tc.want)
			}
		})
	}
}

func TestRenderContextTruncatesToBudget(t *testing.T) {
	long := strings.Repeat("a very long lore entry ", 50)
	sc := &StoryContext{Lore: []string{long, "second entry"}}

	// 10 token 预算 ≈ 40 字符，长条目被截断、后续条目被丢弃
	out := renderContext(sc, contextBudget{lore: 10})
	if !strings.Contains(out, "…") {
		t.Fatalf("long entry not truncated:\n%s", out)
	}
	if strings.Contains(out, "second entry") {
		t.Fatalf("entry beyond budget not dropped:\n%s", out)
	}
	if len(out) > 120 {
		t.Fatalf("rendered context length = %d, want bounded by budget", len(out))
	}
}

func TestStoryContextEmpty(t *testing.T) {
	var nilCtx *StoryContext
	if !nilCtx.Empty() {
		t.Fatal("nil context should be empty")
	}
	if !(&StoryContext{}).Empty() {
		t.Fatal("zero context should be empty")
	}
	if (&StoryContext{Lore: []string{"x"}}).Empty() {
		t.Fatal("populated context should not be empty")
	}
}
