package vectorstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"study-indexer-go/pkg/errs"
	"study-indexer-go/pkg/log"

	chromem "github.com/philippgille/chromem-go"
)

// ChromemStore 是基于 chromem-go 的内嵌 Store 实现，用于单机部署与测试。
// 向量全部预先算好再写入，chromem 自带的 embedding 函数永远不会被调用。
//
// chromem 的 where 过滤只支持字符串相等，且查询本身就是对全集合的暴力
// 余弦计算，所以这里统一取全量候选后在适配器侧用 Filter.Matches 过滤，
// 不损失正确性也不增加额外扫描。
type ChromemStore struct {
	db *chromem.DB
}

// metaKey 是在 chromem 文档元数据中存放完整 JSON 元数据的键。
// chromem 只接受 map[string]string，类型化的元数据走这份 JSON 往返。
const metaKey = "_meta"

// NewChromemStore 创建一个 ChromemStore。path 为空时使用纯内存模式。
func NewChromemStore(path string) (*ChromemStore, error) {
	if path == "" {
		return &ChromemStore{db: chromem.NewDB()}, nil
	}
	db, err := chromem.NewPersistentDB(path, true)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errs.ErrVectorStoreUnavailable, err)
	}
	return &ChromemStore{db: db}, nil
}

// noEmbeddingFunc 占位用，写入与查询都携带现成向量。
func noEmbeddingFunc(ctx context.Context, text string) ([]float32, error) {
	return nil, errors.New("embeddings must be precomputed")
}

// EnsureCollection 确保 chromem 集合存在（幂等）。
func (s *ChromemStore) EnsureCollection(ctx context.Context, schema CollectionSchema) error {
	if _, err := s.db.GetOrCreateCollection(schema.Name, nil, noEmbeddingFunc); err != nil {
		return fmt.Errorf("%w: %v", errs.ErrVectorStoreUnavailable, err)
	}
	return nil
}

// Upsert 写入或覆盖一条文档（chromem 按 ID 覆盖）。
func (s *ChromemStore) Upsert(ctx context.Context, collection string, rec Record) error {
	coll, err := s.db.GetOrCreateCollection(collection, nil, noEmbeddingFunc)
	if err != nil {
		return fmt.Errorf("%w: %v", errs.ErrVectorStoreUnavailable, err)
	}

	metaBytes, err := json.Marshal(rec.Metadata)
	if err != nil {
		return fmt.Errorf("failed to marshal metadata: %w", err)
	}
	doc := chromem.Document{
		ID:      rec.ID,
		Content: rec.Text,
		Metadata: map[string]string{
			metaKey:         string(metaBytes),
			"model_version": rec.ModelVersion,
		},
		Embedding: rec.Vector,
	}
	if err := coll.AddDocuments(ctx, []chromem.Document{doc}, 1); err != nil {
		return wrapChromemErr(ctx, err)
	}
	return nil
}

// Query 对集合做全量余弦检索，适配器侧求值过滤条件后截断到 topK。
// chromem 返回 cosine 相似度，换算为 distance = 1 - similarity。
func (s *ChromemStore) Query(ctx context.Context, collection string, vector []float32, filter Filter, topK int) ([]Hit, error) {
	coll := s.db.GetCollection(collection, noEmbeddingFunc)
	if coll == nil {
		return []Hit{}, nil
	}
	count := coll.Count()
	if count == 0 {
		return []Hit{}, nil
	}

	results, err := coll.QueryEmbedding(ctx, vector, count, nil, nil)
	if err != nil {
		return nil, wrapChromemErr(ctx, err)
	}

	hits := make([]Hit, 0, topK)
	for _, r := range results {
		meta := decodeMeta(r.Metadata)
		if !filter.Matches(meta) {
			continue
		}
		distance := 1 - float64(r.Similarity)
		if distance < 0 {
			distance = 0
		}
		if distance > 1 {
			distance = 1
		}
		hits = append(hits, Hit{
			ID:       r.ID,
			Distance: distance,
			Text:     r.Content,
			Metadata: meta,
		})
		if len(hits) == topK {
			break
		}
	}
	return hits, nil
}

// Delete 删除指定 id 的文档，id 不存在时为 no-op。
func (s *ChromemStore) Delete(ctx context.Context, collection, id string) error {
	coll := s.db.GetCollection(collection, noEmbeddingFunc)
	if coll == nil {
		return nil
	}
	if err := coll.Delete(ctx, nil, nil, id); err != nil {
		return wrapChromemErr(ctx, err)
	}
	return nil
}

func decodeMeta(raw map[string]string) map[string]interface{} {
	meta := map[string]interface{}{}
	if encoded, ok := raw[metaKey]; ok {
		if err := json.Unmarshal([]byte(encoded), &meta); err != nil {
			log.Warnf("解析 chromem 文档元数据失败: %v", err)
		}
	}
	return meta
}

func wrapChromemErr(ctx context.Context, err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", errs.ErrTimeout, err)
	}
	return fmt.Errorf("%w: %v", errs.ErrVectorStoreUnavailable, err)
}
