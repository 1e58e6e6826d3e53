// Package vectorstore 定义了向量存储的抽象边界及其具体适配器。
//
// 距离契约：Query 返回的 Distance 统一归一化到 [0,1]，0 表示完全相同。
// 各适配器负责把后端的原生度量换算到该区间（ES 的 cosine kNN 得分为
// (1+cos)/2 的相似度，chromem 返回 cosine 相似度），上层排序器只做
// s = 1 - min(d, 1) 一种换算。
package vectorstore

import "context"

// FieldKind 描述集合元数据字段的类型，用于生成后端 schema。
type FieldKind string

const (
	FieldString  FieldKind = "string"  // 精确匹配的标识字段
	FieldInt     FieldKind = "int"     // 整数（user_id、priority 等）
	FieldBool    FieldKind = "bool"    // 布尔开关（is_published 等）
	FieldStrings FieldKind = "strings" // 字符串列表（tags、topics 等）
)

// CollectionSchema 描述一个集合在向量存储中的物理形态。
type CollectionSchema struct {
	Name       string
	Dims       int
	MetaFields map[string]FieldKind
}

// Record 是写入向量存储的一条文档。向量与元数据由存储独占持有，
// 覆盖写（同 ID Upsert）是存储层保证的原子操作。
type Record struct {
	ID           string
	Text         string
	Vector       []float32
	Metadata     map[string]interface{}
	ModelVersion string
}

// Hit 是一次近邻检索的原始命中。
type Hit struct {
	ID       string
	Distance float64
	Text     string
	Metadata map[string]interface{}
}

// Store 是检索核心消费的向量存储接口。
type Store interface {
	// EnsureCollection 确保集合存在（幂等）。
	EnsureCollection(ctx context.Context, schema CollectionSchema) error
	// Upsert 原子地写入或覆盖一条文档（last-writer-wins）。
	Upsert(ctx context.Context, collection string, rec Record) error
	// Query 在集合内执行过滤后的近邻检索，返回至多 topK 条命中。
	Query(ctx context.Context, collection string, vector []float32, filter Filter, topK int) ([]Hit, error)
	// Delete 按 id 删除文档，id 不存在时是 no-op。
	Delete(ctx context.Context, collection, id string) error
}
