package pipeline

import (
	"context"
	"fmt"
	"math"
	"strings"

	"inkwell-ai-api/internal/domain/entity"
)

// StyleComparator 风格对比后处理阶段
// 尽力而为：失败只记警告，任务照常完成。
type StyleComparator struct{}

// NewStyleComparator 创建风格对比阶段
func NewStyleComparator() *StyleComparator { return &StyleComparator{} }

func (s *StyleComparator) Name() string             { return "style_comparator" }
func (s *StyleComparator) Status() entity.JobStatus { return entity.JobStatusPostProcessing }
func (s *StyleComparator) Fatal() bool              { return false }

// Run 对比生成产出与参考样例的风格统计
func (s *StyleComparator) Run(ctx context.Context, exec *Execution) error {
	if strings.TrimSpace(exec.Output) == "" {
		return fmt.Errorf("no generated content to analyze")
	}
	example := exec.Request.StyleExample
	if strings.TrimSpace(example) == "" {
		return fmt.Errorf("no style example on request")
	}

	report := CompareStyle(exec.Output, example)
	exec.StyleReport = &report
	return nil
}

// AnalyzeStyle 提取文本的风格统计量
func AnalyzeStyle(content string) entity.StyleReport {
	sentences := splitSentences(content)
	words := strings.Fields(content)

	var sentenceLengthAvg float64
	if len(sentences) > 0 {
		sentenceLengthAvg = float64(len(words)) / float64(len(sentences))
	}

	// 词汇复杂度：平均词长
	var vocabularyComplexity float64
	if len(words) > 0 {
		total := 0
		for _, w := range words {
			total += len(w)
		}
		vocabularyComplexity = float64(total) / float64(len(words))
	}

	// 对话占比：按引号对粗估
	var dialogueRatio float64
	if len(content) > 0 {
		pairs := strings.Count(content, `"`) / 2
		dialogueRatio = float64(pairs) * 50.0 / float64(len(content))
		if dialogueRatio > 1.0 {
			dialogueRatio = 1.0
		}
	}

	return entity.StyleReport{
		SentenceLengthAvg:    sentenceLengthAvg,
		VocabularyComplexity: vocabularyComplexity,
		DialogueRatio:        dialogueRatio,
	}
}

// CompareStyle 对比两段文本的风格统计并给出相似度
func CompareStyle(content, example string) entity.StyleReport {
	report := AnalyzeStyle(content)
	ref := AnalyzeStyle(example)

	report.ExampleSentenceLengthAvg = ref.SentenceLengthAvg
	report.ExampleVocabularyComplexity = ref.VocabularyComplexity
	report.ExampleDialogueRatio = ref.DialogueRatio

	// 各维度的相对偏差取平均，折算为相似度
	sim := 1.0 - (relativeDiff(report.SentenceLengthAvg, ref.SentenceLengthAvg)+
		relativeDiff(report.VocabularyComplexity, ref.VocabularyComplexity)+
		relativeDiff(report.DialogueRatio, ref.DialogueRatio))/3.0
	if sim < 0 {
		sim = 0
	}
	report.Similarity = sim
	return report
}

func relativeDiff(a, b float64) float64 {
	max := math.Max(math.Abs(a), math.Abs(b))
	if max == 0 {
		return 0
	}
	d := math.Abs(a-b) / max
	if d > 1 {
		d = 1
	}
	return d
}

func splitSentences(content string) []string {
	parts := strings.FieldsFunc(content, func(r rune) bool {
		return r == '.' || r == '!' || r == '?'
	})
	var sentences []string
	for _, p := range parts {
		if strings.TrimSpace(p) != "" {
			sentences = append(sentences, p)
		}
	}
	return sentences
}

// renderStyleAnalysis 渲染风格分析报告（style_analysis 请求类型的产出）
func renderStyleAnalysis(target, example entity.StyleReport) string {
	var b strings.Builder
	b.WriteString("# Style Analysis\n\n")
	b.WriteString("## Your text\n")
	writeStyleMetrics(&b, target)
	b.WriteString("\n## Reference example\n")
	writeStyleMetrics(&b, example)
	return b.String()
}

func writeStyleMetrics(b *strings.Builder, r entity.StyleReport) {
	fmt.Fprintf(b, "- Average sentence length: %.1f words\n", r.SentenceLengthAvg)
	fmt.Fprintf(b, "- Vocabulary complexity: %.2f\n", r.VocabularyComplexity)
	fmt.Fprintf(b, "- Dialogue ratio: %.2f\n", r.DialogueRatio)
}
