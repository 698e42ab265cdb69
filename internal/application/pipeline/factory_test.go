package pipeline

import (
	"testing"

	"inkwell-ai-api/internal/domain/entity"
)

func stageNames(stages []Stage) []string {
	names := make([]string, 0, len(stages))
	for _, s := range stages {
		names = append(names, s.Name())
	}
	return names
}

func TestFactoryBuild(t *testing.T) {
	f := NewFactory(&scriptedText{}, nil, staticSource{}, 2000)

	tests := []struct {
		name string
		req  entity.GenerationRequest
		want []string
	}{
		{
			name: "bare text request",
			req:  entity.GenerationRequest{Kind: entity.KindText},
			want: []string{"generator"},
		},
		{
			name: "full text pipeline",
			req: entity.GenerationRequest{
				Kind: entity.KindText, UseContext: true, EnhancePrompt: true,
				DetectCliches: true, CompareStyle: true, StyleExample: "ref",
			},
			want: []string{"context_builder", "prompt_enhancer", "generator", "cliche_detector", "style_comparator"},
		},
		{
			name: "style comparison needs an example",
			req:  entity.GenerationRequest{Kind: entity.KindText, CompareStyle: true},
			want: []string{"generator"},
		},
		{
			name: "image gets context and enhancement",
			req:  entity.GenerationRequest{Kind: entity.KindImage, UseContext: true, EnhancePrompt: true},
			want: []string{"context_builder", "prompt_enhancer", "generator"},
		},
		{
			name: "post processors are text only",
			req:  entity.GenerationRequest{Kind: entity.KindImage, DetectCliches: true, CompareStyle: true, StyleExample: "ref"},
			want: []string{"generator"},
		},
		{
			name: "brainstorm gets context but no enhancement",
			req:  entity.GenerationRequest{Kind: entity.KindBrainstorm, UseContext: true, EnhancePrompt: true},
			want: []string{"context_builder", "generator"},
		},
		{
			name: "style analysis skips context",
			req:  entity.GenerationRequest{Kind: entity.KindStyleAnalysis, UseContext: true},
			want: []string{"generator"},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := stageNames(f.Build(&tc.req))
			if len(got) != len(tc.want) {
				t.Fatalf("stages = %v, want %v", got, tc.want)
			}
			for i := range got {
				if got[i] != tc.want[i] {
					t.Fatalf("stages = %v, want %v", got, tc.want)
				}
			}
		})
	}
}
