package pipeline

import (
	"context"
	"fmt"
	"strings"

	"inkwell-ai-api/internal/domain/entity"
)

// 常见创作陈词滥调
var knownCliches = []string{
	"it was a dark and stormy night",
	"suddenly",
	"all of a sudden",
	"little did they know",
	"unbeknownst to them",
	"meanwhile",
	"without warning",
	"out of nowhere",
	"against all odds",
	"in the nick of time",
	"love at first sight",
	"happily ever after",
	"plot twist",
	"the chosen one",
	"destiny calls",
}

var clicheSuggestions = []string{
	"Consider using more specific, original descriptions",
	"Try showing rather than telling",
	"Explore unique metaphors and imagery",
	"Focus on character-specific voice and perspective",
}

// ClicheDetector 陈词滥调检测后处理阶段
// 尽力而为：失败只记警告，任务照常完成。
type ClicheDetector struct{}

// NewClicheDetector 创建检测阶段
func NewClicheDetector() *ClicheDetector { return &ClicheDetector{} }

func (s *ClicheDetector) Name() string             { return "cliche_detector" }
func (s *ClicheDetector) Status() entity.JobStatus { return entity.JobStatusPostProcessing }
func (s *ClicheDetector) Fatal() bool              { return false }

// Run 在生成产出上执行检测并附加注解
func (s *ClicheDetector) Run(ctx context.Context, exec *Execution) error {
	if strings.TrimSpace(exec.Output) == "" {
		return fmt.Errorf("no generated content to analyze")
	}
	report := DetectCliches(exec.Output)
	exec.ClicheReport = &report
	return nil
}

// DetectCliches 扫描文本中的陈词滥调
func DetectCliches(text string) entity.ClicheReport {
	textLower := strings.ToLower(text)
	var detected []string
	severity := 0.0

	for _, cliche := range knownCliches {
		if strings.Contains(textLower, cliche) {
			detected = append(detected, cliche)
			severity += 1.0
		}
	}

	// 归一化：按文本长度折算严重度，0.0 - 1.0
	wordCount := len(strings.Fields(text))
	if wordCount > 0 {
		severity = severity / float64(wordCount) * 100.0
	}
	if severity > 1.0 {
		severity = 1.0
	}

	var suggestions []string
	if len(detected) > 0 {
		suggestions = append([]string(nil), clicheSuggestions...)
	}

	return entity.ClicheReport{
		Detected:    detected,
		Severity:    severity,
		Suggestions: suggestions,
	}
}
