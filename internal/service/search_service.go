// Package service 提供了检索与摄取的业务逻辑。
package service

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"study-indexer-go/internal/model"
	"study-indexer-go/internal/policy"
	"study-indexer-go/internal/registry"
	"study-indexer-go/pkg/embedding"
	"study-indexer-go/pkg/errs"
	"study-indexer-go/pkg/log"
	"study-indexer-go/pkg/vectorstore"
)

// SearchService 接口定义了检索操作。
// 每次调用同步返回一批完整结果，没有游标或分页状态。
type SearchService interface {
	Search(ctx context.Context, collectionName string, query model.SearchQuery, requester *model.Requester) ([]model.SearchResult, error)
}

type searchService struct {
	registry        *registry.Registry
	embeddingClient embedding.Client
	store           vectorstore.Store
	overfetch       int
}

// NewSearchService 创建一个新的 SearchService 实例。
// overfetch 控制向存储层取回 limit 的多少倍原始候选，
// 用于补偿阈值过滤造成的损失。
func NewSearchService(reg *registry.Registry, embeddingClient embedding.Client, store vectorstore.Store, overfetch int) SearchService {
	if overfetch < 1 {
		overfetch = 3
	}
	return &searchService{
		registry:        reg,
		embeddingClient: embeddingClient,
		store:           store,
		overfetch:       overfetch,
	}
}

// Search 执行一次过滤 + 排序的语义检索。
func (s *searchService) Search(ctx context.Context, collectionName string, query model.SearchQuery, requester *model.Requester) ([]model.SearchResult, error) {
	log.Infof("[SearchService] 开始检索, collection: %s, query: '%s', limit: %d, minScore: %.2f",
		collectionName, query.Text, query.Limit, query.MinScore)

	// 1. 解析集合定义
	def, err := s.registry.Get(collectionName)
	if err != nil {
		return nil, err
	}

	// 2. 参数校验：越界的 limit 直接拒绝而不是静默截断，暴露调用方的 bug
	if query.Limit < def.MinLimit || query.Limit > def.MaxLimit {
		return nil, fmt.Errorf("%w: limit %d out of range [%d, %d] for collection '%s'",
			errs.ErrInvalidQuery, query.Limit, def.MinLimit, def.MaxLimit, def.Name)
	}
	if query.MinScore < 0 || query.MinScore > 1 {
		return nil, fmt.Errorf("%w: min_score %.4f out of range [0, 1]", errs.ErrInvalidQuery, query.MinScore)
	}
	if strings.TrimSpace(query.Text) == "" {
		return nil, fmt.Errorf("%w: query text is empty", errs.ErrInvalidQuery)
	}

	// 3. 构建最终过滤条件：访问控制子句与调用方过滤条件合取
	log.Infof("[SearchService] 步骤1: 计算访问控制过滤, access: %s", def.Access)
	accessClauses, err := policy.FilterFor(def, requester)
	if err != nil {
		log.Warnf("[SearchService] 访问控制拒绝请求: %v", err)
		return nil, err
	}
	callerClauses, err := def.ValidateFilters(query.Filters)
	if err != nil {
		return nil, err
	}
	filter := vectorstore.Filter{Clauses: append(accessClauses, callerClauses...)}
	log.Infof("[SearchService] 步骤1: 过滤条件构建完成, 共 %d 个子句", len(filter.Clauses))

	// 4. 向量化查询
	log.Info("[SearchService] 步骤2: 开始向量化查询")
	queryVector, err := s.embeddingClient.CreateEmbedding(ctx, query.Text)
	if err != nil {
		log.Errorf("[SearchService] 向量化查询失败: %v", err)
		return nil, err
	}
	log.Infof("[SearchService] 步骤2: 向量化查询成功, 向量维度: %d", len(queryVector))

	// 5. 带过滤的近邻检索，候选数取 limit 的 overfetch 倍
	topK := query.Limit * s.overfetch
	log.Infof("[SearchService] 步骤3: 执行向量检索, topK: %d", topK)
	hits, err := s.store.Query(ctx, def.Name, queryVector, filter, topK)
	if err != nil {
		log.Errorf("[SearchService] 向量检索失败: %v", err)
		return nil, err
	}
	log.Infof("[SearchService] 步骤3: 检索返回 %d 条原始候选", len(hits))

	// 6. 距离换算为相似度并应用阈值，这是唯一合法的“空结果”来源
	type scored struct {
		hit   vectorstore.Hit
		score float64
	}
	candidates := make([]scored, 0, len(hits))
	for _, hit := range hits {
		d := hit.Distance
		if d > 1 {
			d = 1
		}
		score := 1 - d
		if score < query.MinScore {
			continue
		}
		candidates = append(candidates, scored{hit: hit, score: score})
	}

	// 7. 排序：分数降序，平分时按 priority 降序、id 升序，保证确定性
	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].score != candidates[j].score {
			return candidates[i].score > candidates[j].score
		}
		pi, pj := metaNumber(candidates[i].hit.Metadata, "priority"), metaNumber(candidates[j].hit.Metadata, "priority")
		if pi != pj {
			return pi > pj
		}
		return candidates[i].hit.ID < candidates[j].hit.ID
	})

	// 8. 截断到 limit
	if len(candidates) > query.Limit {
		candidates = candidates[:query.Limit]
	}

	// 9. 组装结果，诚信比对集合只保留 question_id 与分数
	results := make([]model.SearchResult, 0, len(candidates))
	for _, c := range candidates {
		if def.Access == registry.AccessRestricted {
			results = append(results, model.SearchResult{
				QuestionID: metaString(c.hit.Metadata, "question_id"),
				Score:      c.score,
			})
			continue
		}
		results = append(results, model.SearchResult{
			DocumentID: c.hit.ID,
			Score:      c.score,
			Content:    c.hit.Text,
			Metadata:   c.hit.Metadata,
		})
	}

	log.Infof("[SearchService] 检索完成, collection: %s, 返回 %d 条结果", def.Name, len(results))
	return results, nil
}

// metaNumber 从元数据中取数值字段，缺失时返回 0。
func metaNumber(meta map[string]interface{}, field string) float64 {
	switch v := meta[field].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	case int64:
		return float64(v)
	default:
		return 0
	}
}

// metaString 从元数据中取字符串字段，缺失时返回空串。
func metaString(meta map[string]interface{}, field string) string {
	s, _ := meta[field].(string)
	return s
}
