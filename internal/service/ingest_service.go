package service

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"study-indexer-go/internal/model"
	"study-indexer-go/internal/policy"
	"study-indexer-go/internal/registry"
	"study-indexer-go/internal/repository"
	"study-indexer-go/pkg/embedding"
	"study-indexer-go/pkg/errs"
	"study-indexer-go/pkg/log"
	"study-indexer-go/pkg/vectorstore"

	"github.com/google/uuid"
)

// IngestService 接口定义了摄取操作。
// 负载里带已存在的 id 时执行覆盖式重建（重新合成文本、重新向量化、
// 整体覆盖写入），这是唯一的更新路径；不存在只改元数据不改向量的补丁，
// 以保证向量永远对应当前的可嵌入文本。
type IngestService interface {
	Ingest(ctx context.Context, collectionName string, payload model.IngestPayload, requester *model.Requester) (string, error)
	Delete(ctx context.Context, collectionName, docID string, requester *model.Requester) error
	ReindexCollection(ctx context.Context, collectionName string) (int, error)
}

type ingestService struct {
	registry        *registry.Registry
	embeddingClient embedding.Client
	store           vectorstore.Store
	docRepo         repository.DocumentRepository
}

// NewIngestService 创建一个新的 IngestService 实例。
func NewIngestService(reg *registry.Registry, embeddingClient embedding.Client, store vectorstore.Store, docRepo repository.DocumentRepository) IngestService {
	return &ingestService{
		registry:        reg,
		embeddingClient: embeddingClient,
		store:           store,
		docRepo:         docRepo,
	}
}

// Ingest 校验负载、合成可嵌入文本、向量化并原子写入。
func (s *ingestService) Ingest(ctx context.Context, collectionName string, payload model.IngestPayload, requester *model.Requester) (string, error) {
	log.Infof("[IngestService] 开始摄取, collection: %s", collectionName)

	// 1. 解析集合定义
	def, err := s.registry.Get(collectionName)
	if err != nil {
		return "", err
	}

	// 2. 所有者范围的写入前置检查
	if err := policy.CheckIngest(def, payload, requester); err != nil {
		log.Warnf("[IngestService] 写入被访问控制拒绝: %v", err)
		return "", err
	}

	// 3. 负载校验并提取元数据
	meta, err := def.ValidatePayload(payload)
	if err != nil {
		log.Warnf("[IngestService] 负载校验失败: %v", err)
		return "", err
	}

	// 4. 按集合规则合成可嵌入文本
	embeddableText := def.ComposeText(payload)
	if strings.TrimSpace(embeddableText) == "" {
		return "", fmt.Errorf("%w: composed embeddable text is empty", errs.ErrValidation)
	}

	// 5. 确定文档 ID：未提供时生成新 ID，提供已有 ID 即覆盖式重建
	docID, err := resolveDocID(payload)
	if err != nil {
		return "", err
	}
	log.Infof("[IngestService] 步骤1: 负载校验通过, docID: %s, 文本长度: %d", docID, len(embeddableText))

	// 6. 向量化
	log.Info("[IngestService] 步骤2: 开始向量化")
	vector, err := s.embeddingClient.CreateEmbedding(ctx, embeddableText)
	if err != nil {
		log.Errorf("[IngestService] 向量化失败: %v", err)
		return "", err
	}

	// 7. 阶段一：覆盖写入向量存储（同 ID last-writer-wins）。
	// 向量库写失败时底账保持原状，失败的文本不会被之后的全量重建悄悄带上线。
	log.Info("[IngestService] 步骤3: 写入向量存储")
	err = s.store.Upsert(ctx, def.Name, vectorstore.Record{
		ID:           docID,
		Text:         embeddableText,
		Vector:       vector,
		Metadata:     meta,
		ModelVersion: s.embeddingClient.ModelVersion(),
	})
	if err != nil {
		log.Errorf("[IngestService] 写入向量存储失败: %v", err)
		return "", err
	}

	// 8. 阶段二：写入底账表。底账是全量重建的事实来源，
	// 这里失败时调用方会收到错误，重试或重建会把两边拉回一致。
	metaBytes, err := json.Marshal(meta)
	if err != nil {
		return "", fmt.Errorf("failed to marshal metadata: %w", err)
	}
	record := &model.DocumentRecord{
		DocID:          docID,
		Collection:     def.Name,
		EmbeddableText: embeddableText,
		Metadata:       string(metaBytes),
		ModelVersion:   s.embeddingClient.ModelVersion(),
	}
	if err := s.docRepo.Upsert(record); err != nil {
		log.Errorf("[IngestService] 写入底账表失败: %v", err)
		return "", fmt.Errorf("failed to persist document record: %w", err)
	}

	log.Infof("[IngestService] 摄取完成, collection: %s, docID: %s", def.Name, docID)
	return docID, nil
}

// Delete 删除文档，目标不存在时为 no-op（并发删除不互相报错）。
// 删除前按底账里的所有者做访问控制：个人资料只能由所有者本人或管理员删除，
// 其余集合只对管理员开放。
func (s *ingestService) Delete(ctx context.Context, collectionName, docID string, requester *model.Requester) error {
	def, err := s.registry.Get(collectionName)
	if err != nil {
		return err
	}
	if strings.TrimSpace(docID) == "" {
		return fmt.Errorf("%w: document id is empty", errs.ErrValidation)
	}

	record, err := s.docRepo.FindByDocID(def.Name, docID)
	if err != nil {
		return fmt.Errorf("failed to load document record: %w", err)
	}
	if record == nil {
		// 目标不存在：对普通用户幂等返回成功，管理员继续向下清理
		// 可能残留的孤儿向量。
		if requester == nil || !requester.IsAdmin() {
			return nil
		}
	} else {
		var meta map[string]interface{}
		if record.Metadata != "" {
			if err := json.Unmarshal([]byte(record.Metadata), &meta); err != nil {
				return fmt.Errorf("failed to unmarshal metadata of '%s': %w", docID, err)
			}
		}
		if err := policy.CheckDelete(def, meta, requester); err != nil {
			log.Warnf("[IngestService] 删除被访问控制拒绝: %v", err)
			return err
		}
	}

	log.Infof("[IngestService] 删除文档, collection: %s, docID: %s", def.Name, docID)
	if err := s.store.Delete(ctx, def.Name, docID); err != nil {
		return err
	}
	if err := s.docRepo.DeleteByDocID(def.Name, docID); err != nil {
		log.Errorf("[IngestService] 删除底账记录失败: %v", err)
		return fmt.Errorf("failed to delete document record: %w", err)
	}
	return nil
}

// ReindexCollection 用当前模型重新向量化集合的全部底账记录并覆盖写入。
// 嵌入模型版本升级后的恢复路径，返回重建的文档数。
func (s *ingestService) ReindexCollection(ctx context.Context, collectionName string) (int, error) {
	def, err := s.registry.Get(collectionName)
	if err != nil {
		return 0, err
	}

	records, err := s.docRepo.FindAllByCollection(def.Name)
	if err != nil {
		return 0, fmt.Errorf("failed to load document records: %w", err)
	}
	log.Infof("[IngestService] 开始全量重建, collection: %s, 共 %d 条记录", def.Name, len(records))

	for i, record := range records {
		var meta map[string]interface{}
		if err := json.Unmarshal([]byte(record.Metadata), &meta); err != nil {
			return i, fmt.Errorf("failed to unmarshal metadata of '%s': %w", record.DocID, err)
		}

		vector, err := s.embeddingClient.CreateEmbedding(ctx, record.EmbeddableText)
		if err != nil {
			log.Errorf("[IngestService] 重建第 %d/%d 条时向量化失败: %v", i+1, len(records), err)
			return i, err
		}
		err = s.store.Upsert(ctx, def.Name, vectorstore.Record{
			ID:           record.DocID,
			Text:         record.EmbeddableText,
			Vector:       vector,
			Metadata:     meta,
			ModelVersion: s.embeddingClient.ModelVersion(),
		})
		if err != nil {
			return i, err
		}
		record.ModelVersion = s.embeddingClient.ModelVersion()
		if err := s.docRepo.Upsert(record); err != nil {
			return i, fmt.Errorf("failed to update document record: %w", err)
		}
	}

	log.Infof("[IngestService] 全量重建完成, collection: %s, 共 %d 条", def.Name, len(records))
	return len(records), nil
}

// resolveDocID 读取负载中的可选 id 字段，缺失时生成新的 UUID。
func resolveDocID(payload model.IngestPayload) (string, error) {
	raw, ok := payload["id"]
	if !ok || raw == nil {
		return uuid.NewString(), nil
	}
	id, ok := raw.(string)
	if !ok || strings.TrimSpace(id) == "" {
		return "", fmt.Errorf("%w: field 'id' must be a non-empty string", errs.ErrValidation)
	}
	return id, nil
}
