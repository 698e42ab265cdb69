// Package milvus 提供 Milvus 向量数据库访问层实现
package milvus

import (
	"github.com/milvus-io/milvus-sdk-go/v2/entity"
)

const (
	// CollectionBibleEntries 故事圣经条目集合
	CollectionBibleEntries = "bible_entries"

	// VectorDimension 向量维度
	VectorDimension = 1536

	// 条目类别，与上下文构建的分组对应
	CategoryCharacter = "character"
	CategoryLocation  = "location"
	CategoryLore      = "lore"
)

// BibleEntriesSchema 故事圣经条目 Collection Schema
func BibleEntriesSchema() *entity.Schema {
	return &entity.Schema{
		CollectionName: CollectionBibleEntries,
		Description:    "Story bible entries for semantic context retrieval",
		Fields: []*entity.Field{
			{
				Name:       "id",
				DataType:   entity.FieldTypeVarChar,
				PrimaryKey: true,
				AutoID:     false,
				TypeParams: map[string]string{
					"max_length": "64",
				},
			},
			{
				Name:     "vector",
				DataType: entity.FieldTypeFloatVector,
				TypeParams: map[string]string{
					"dim": "1536",
				},
			},
			{
				Name:     "project_id",
				DataType: entity.FieldTypeVarChar,
				TypeParams: map[string]string{
					"max_length": "64",
				},
			},
			{
				Name:     "category",
				DataType: entity.FieldTypeVarChar,
				TypeParams: map[string]string{
					"max_length": "32",
				},
			},
			{
				Name:     "name",
				DataType: entity.FieldTypeVarChar,
				TypeParams: map[string]string{
					"max_length": "256",
				},
			},
			{
				Name:     "content",
				DataType: entity.FieldTypeVarChar,
				TypeParams: map[string]string{
					"max_length": "65535",
				},
			},
		},
	}
}

// BibleEntry 故事圣经条目数据结构
type BibleEntry struct {
	ID        string    `json:"id"`
	Vector    []float32 `json:"vector"`
	ProjectID string    `json:"project_id"`
	Category  string    `json:"category"`
	Name      string    `json:"name"`
	Content   string    `json:"content"`
}

// PartitionName 生成项目分区名称
func PartitionName(projectID string) string {
	return "proj_" + projectID
}
