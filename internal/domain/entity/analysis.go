// Package entity 定义领域实体
package entity

// ClicheReport 陈词滥调检测结果
type ClicheReport struct {
	Detected    []string `json:"detected_cliches"`
	Severity    float64  `json:"severity_score"` // 0.0 - 1.0
	Suggestions []string `json:"suggestions,omitempty"`
}

// StyleReport 风格对比结果
// 将生成文本与参考样例在若干统计维度上对比。
type StyleReport struct {
	SentenceLengthAvg    float64 `json:"sentence_length_avg"`
	VocabularyComplexity float64 `json:"vocabulary_complexity"`
	DialogueRatio        float64 `json:"dialogue_ratio"`

	ExampleSentenceLengthAvg    float64 `json:"example_sentence_length_avg,omitempty"`
	ExampleVocabularyComplexity float64 `json:"example_vocabulary_complexity,omitempty"`
	ExampleDialogueRatio        float64 `json:"example_dialogue_ratio,omitempty"`

	// Similarity 与参考样例的综合相似度，0.0 - 1.0
	Similarity float64 `json:"similarity,omitempty"`
}
