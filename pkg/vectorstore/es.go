package vectorstore

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"study-indexer-go/internal/config"
	"study-indexer-go/pkg/errs"
	"study-indexer-go/pkg/log"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"
)

// ESStore 是基于 Elasticsearch dense_vector 的 Store 实现。
// 每个集合对应一个独立索引（<prefix>_<collection>），
// 元数据落在 metadata 子对象下，kNN 相似度固定为 cosine。
type ESStore struct {
	client      *elasticsearch.Client
	indexPrefix string
}

// NewESClient 根据配置创建 Elasticsearch 客户端。
func NewESClient(cfg config.ElasticsearchConfig) (*elasticsearch.Client, error) {
	return elasticsearch.NewClient(elasticsearch.Config{
		Addresses: []string{cfg.Addresses},
		Username:  cfg.Username,
		Password:  cfg.Password,
		Transport: &http.Transport{
			TLSClientConfig: &tls.Config{InsecureSkipVerify: true},
		},
	})
}

// NewESStore 创建一个新的 ESStore 实例。
func NewESStore(client *elasticsearch.Client, indexPrefix string) *ESStore {
	return &ESStore{client: client, indexPrefix: indexPrefix}
}

func (s *ESStore) indexName(collection string) string {
	return fmt.Sprintf("%s_%s", s.indexPrefix, collection)
}

// esDocument 是写入 Elasticsearch 的文档结构。
type esDocument struct {
	DocID        string                 `json:"doc_id"`
	TextContent  string                 `json:"text_content"`
	Vector       []float32              `json:"vector"`
	ModelVersion string                 `json:"model_version"`
	Metadata     map[string]interface{} `json:"metadata"`
}

// EnsureCollection 检查索引是否存在，如果不存在则按集合 schema 创建。
func (s *ESStore) EnsureCollection(ctx context.Context, schema CollectionSchema) error {
	indexName := s.indexName(schema.Name)
	res, err := s.client.Indices.Exists([]string{indexName}, s.client.Indices.Exists.WithContext(ctx))
	if err != nil {
		log.Errorf("检查索引是否存在时出错: %v", err)
		return wrapESErr(ctx, err)
	}
	defer res.Body.Close()
	if !res.IsError() && res.StatusCode == http.StatusOK {
		log.Infof("索引 '%s' 已存在", indexName)
		return nil
	}
	if res.StatusCode != http.StatusNotFound {
		log.Errorf("检查索引 '%s' 是否存在时收到意外的状态码: %d", indexName, res.StatusCode)
		return fmt.Errorf("%w: unexpected status %d", errs.ErrVectorStoreUnavailable, res.StatusCode)
	}

	mapping := buildMapping(schema)
	mappingBytes, err := json.Marshal(mapping)
	if err != nil {
		return err
	}

	createRes, err := s.client.Indices.Create(
		indexName,
		s.client.Indices.Create.WithContext(ctx),
		s.client.Indices.Create.WithBody(strings.NewReader(string(mappingBytes))),
	)
	if err != nil {
		log.Errorf("创建索引 '%s' 失败: %v", indexName, err)
		return wrapESErr(ctx, err)
	}
	defer createRes.Body.Close()
	if createRes.IsError() {
		log.Errorf("创建索引 '%s' 时 Elasticsearch 返回错误: %s", indexName, createRes.String())
		return fmt.Errorf("%w: create index failed", errs.ErrVectorStoreUnavailable)
	}

	log.Infof("索引 '%s' 创建成功", indexName)
	return nil
}

// buildMapping 从集合 schema 生成索引 mapping。
func buildMapping(schema CollectionSchema) map[string]interface{} {
	metaProps := map[string]interface{}{}
	for field, kind := range schema.MetaFields {
		switch kind {
		case FieldInt:
			metaProps[field] = map[string]interface{}{"type": "long"}
		case FieldBool:
			metaProps[field] = map[string]interface{}{"type": "boolean"}
		default:
			// string 与 strings 都落成 keyword，terms 过滤对两者语义一致
			metaProps[field] = map[string]interface{}{"type": "keyword"}
		}
	}
	return map[string]interface{}{
		"mappings": map[string]interface{}{
			"properties": map[string]interface{}{
				"doc_id":       map[string]interface{}{"type": "keyword"},
				"text_content": map[string]interface{}{"type": "text"},
				"vector": map[string]interface{}{
					"type":       "dense_vector",
					"dims":       schema.Dims,
					"index":      true,
					"similarity": "cosine",
				},
				"model_version": map[string]interface{}{"type": "keyword"},
				"metadata":      map[string]interface{}{"properties": metaProps},
			},
		},
	}
}

// Upsert 将单条文档索引到 Elasticsearch，同 ID 覆盖写。
func (s *ESStore) Upsert(ctx context.Context, collection string, rec Record) error {
	doc := esDocument{
		DocID:        rec.ID,
		TextContent:  rec.Text,
		Vector:       rec.Vector,
		ModelVersion: rec.ModelVersion,
		Metadata:     rec.Metadata,
	}
	docBytes, err := json.Marshal(doc)
	if err != nil {
		return err
	}

	req := esapi.IndexRequest{
		Index:      s.indexName(collection),
		DocumentID: rec.ID,
		Body:       bytes.NewReader(docBytes),
		Refresh:    "true",
	}
	res, err := req.Do(ctx, s.client)
	if err != nil {
		return wrapESErr(ctx, err)
	}
	defer res.Body.Close()

	if res.IsError() {
		log.Errorf("索引文档到 Elasticsearch 出错: %s", res.String())
		return fmt.Errorf("%w: index document failed", errs.ErrVectorStoreUnavailable)
	}
	return nil
}

// Query 执行过滤后的 kNN 检索。
// ES 的 cosine kNN 得分为 (1+cos)/2 的相似度，换算为 distance = 1 - score。
func (s *ESStore) Query(ctx context.Context, collection string, vector []float32, filter Filter, topK int) ([]Hit, error) {
	esQuery := map[string]interface{}{
		"knn": map[string]interface{}{
			"field":          "vector",
			"query_vector":   vector,
			"k":              topK,
			"num_candidates": topK * 10,
			"filter":         buildBoolFilter(filter),
		},
		"size":    topK,
		"_source": []string{"doc_id", "text_content", "metadata"},
	}

	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(esQuery); err != nil {
		return nil, fmt.Errorf("failed to encode es query: %w", err)
	}

	res, err := s.client.Search(
		s.client.Search.WithContext(ctx),
		s.client.Search.WithIndex(s.indexName(collection)),
		s.client.Search.WithBody(&buf),
	)
	if err != nil {
		return nil, wrapESErr(ctx, err)
	}
	defer res.Body.Close()

	if res.IsError() {
		bodyBytes, _ := io.ReadAll(res.Body)
		log.Errorf("Elasticsearch 返回错误, status: %s, body: %s", res.Status(), string(bodyBytes))
		return nil, fmt.Errorf("%w: search failed with status %s", errs.ErrVectorStoreUnavailable, res.Status())
	}

	var esResponse struct {
		Hits struct {
			Hits []struct {
				Source esDocument `json:"_source"`
				Score  float64    `json:"_score"`
			} `json:"hits"`
		} `json:"hits"`
	}
	if err := json.NewDecoder(res.Body).Decode(&esResponse); err != nil {
		return nil, fmt.Errorf("failed to decode es response: %w", err)
	}

	hits := make([]Hit, 0, len(esResponse.Hits.Hits))
	for _, h := range esResponse.Hits.Hits {
		distance := 1 - h.Score
		if distance < 0 {
			distance = 0
		}
		hits = append(hits, Hit{
			ID:       h.Source.DocID,
			Distance: distance,
			Text:     h.Source.TextContent,
			Metadata: h.Source.Metadata,
		})
	}
	return hits, nil
}

// buildBoolFilter 把 Filter 的合取子句翻译为 ES bool.must。
func buildBoolFilter(filter Filter) map[string]interface{} {
	must := make([]map[string]interface{}, 0, len(filter.Clauses))
	for _, c := range filter.Clauses {
		field := "metadata." + c.Field
		switch c.Op {
		case OpEq:
			must = append(must, map[string]interface{}{
				"term": map[string]interface{}{field: c.Value},
			})
		case OpIn:
			must = append(must, map[string]interface{}{
				"terms": map[string]interface{}{field: c.Values},
			})
		}
	}
	if len(must) == 0 {
		return map[string]interface{}{"match_all": map[string]interface{}{}}
	}
	return map[string]interface{}{
		"bool": map[string]interface{}{"must": must},
	}
}

// Delete 按 id 删除文档，404 视为成功（幂等删除）。
func (s *ESStore) Delete(ctx context.Context, collection, id string) error {
	req := esapi.DeleteRequest{
		Index:      s.indexName(collection),
		DocumentID: id,
		Refresh:    "true",
	}
	res, err := req.Do(ctx, s.client)
	if err != nil {
		return wrapESErr(ctx, err)
	}
	defer res.Body.Close()

	if res.IsError() && res.StatusCode != http.StatusNotFound {
		log.Errorf("从 Elasticsearch 删除文档出错: %s", res.String())
		return fmt.Errorf("%w: delete document failed", errs.ErrVectorStoreUnavailable)
	}
	return nil
}

// wrapESErr 把传输层错误映射到核心的错误分类，超时优先。
func wrapESErr(ctx context.Context, err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", errs.ErrTimeout, err)
	}
	return fmt.Errorf("%w: %v", errs.ErrVectorStoreUnavailable, err)
}
