// Package model 定义了检索核心的数据结构。
package model

import "time"

// DocumentRecord 对应于数据库中的 documents 表。
// 它是每个已摄取文档的关系型底账：保存原始负载字段与合成的可嵌入文本，
// 供全量重建（reindex）任务读取。向量本身只存在于向量存储中。
type DocumentRecord struct {
	ID             uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	DocID          string    `gorm:"type:varchar(64);not null;uniqueIndex:idx_collection_doc,priority:2" json:"docId"`
	Collection     string    `gorm:"type:varchar(32);not null;uniqueIndex:idx_collection_doc,priority:1" json:"collection"`
	EmbeddableText string    `gorm:"type:text;not null" json:"embeddableText"`
	Metadata       string    `gorm:"type:json" json:"metadata"` // 负载元数据的 JSON 序列化
	ModelVersion   string    `gorm:"type:varchar(64)" json:"modelVersion"`
	CreatedAt      time.Time `gorm:"autoCreateTime" json:"createdAt"`
	UpdatedAt      time.Time `gorm:"autoUpdateTime" json:"updatedAt"`
}

// TableName 指定了此模型在数据库中对应的表名。
func (DocumentRecord) TableName() string {
	return "documents"
}

// SearchResult 定义了返回给调用方的单条检索结果。
// IntegrityCheck 集合的结果经过剥离：只保留 QuestionID 与 Score，
// Content 与 Metadata 永远为空。
type SearchResult struct {
	DocumentID string                 `json:"documentId,omitempty"`
	QuestionID string                 `json:"questionId,omitempty"`
	Score      float64                `json:"score"`
	Content    string                 `json:"content,omitempty"`
	Metadata   map[string]interface{} `json:"metadata,omitempty"`
}

// SearchQuery 是一次检索请求的参数集合，瞬态、不落盘。
type SearchQuery struct {
	Text     string                 `json:"query"`
	Filters  map[string]interface{} `json:"filters"`
	Limit    int                    `json:"limit"`
	MinScore float64                `json:"min_score"`
}

// IngestPayload 是一次写入请求的负载：集合相关的字段映射。
// 可选的 "id" 字段触发覆盖式重建，这是唯一的更新路径。
type IngestPayload map[string]interface{}
