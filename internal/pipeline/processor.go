// Package pipeline 定义了课程内容异步导入的核心流程。
package pipeline

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"study-indexer-go/internal/model"
	"study-indexer-go/internal/registry"
	"study-indexer-go/internal/repository"
	"study-indexer-go/internal/service"
	"study-indexer-go/pkg/log"
	"study-indexer-go/pkg/storage"
	"study-indexer-go/pkg/tasks"
	"study-indexer-go/pkg/tika"
)

// Processor 封装了课程内容导入的所有依赖和逻辑：
// 从 MinIO 下载源文件、Tika 抽取文本、按 rune 分块、逐块摄取。
// 分块 ID 由课程与对象名决定，重复导入同一对象即覆盖式重建。
type Processor struct {
	storageClient *storage.Client
	tikaClient    *tika.Client
	ingestService service.IngestService
	docRepo       repository.DocumentRepository
	chunkSize     int
	chunkOverlap  int
}

// NewProcessor 创建一个新的 Processor 实例。
func NewProcessor(
	storageClient *storage.Client,
	tikaClient *tika.Client,
	ingestService service.IngestService,
	docRepo repository.DocumentRepository,
	chunkSize int,
	chunkOverlap int,
) *Processor {
	return &Processor{
		storageClient: storageClient,
		tikaClient:    tikaClient,
		ingestService: ingestService,
		docRepo:       docRepo,
		chunkSize:     chunkSize,
		chunkOverlap:  chunkOverlap,
	}
}

// Process 是导入任务的主函数。
func (p *Processor) Process(ctx context.Context, task tasks.ContentImportTask) error {
	log.Infof("[Processor] 开始处理导入任务, Object: %s, Course: %s, Week: %s", task.ObjectName, task.CourseID, task.WeekID)

	// 1. 从 MinIO 下载源文件
	log.Infof("[Processor] 步骤1: 从MinIO下载文件, Object: %s", task.ObjectName)
	object, err := p.storageClient.GetObject(ctx, task.ObjectName)
	if err != nil {
		log.Errorf("[Processor] 从MinIO下载文件失败, Object: %s, Error: %v", task.ObjectName, err)
		return fmt.Errorf("从 MinIO 下载文件失败: %w", err)
	}
	defer object.Close()

	buf := new(bytes.Buffer)
	size, err := buf.ReadFrom(object)
	if err != nil {
		log.Errorf("[Processor] 从MinIO对象流中读取内容失败, Error: %v", err)
		return fmt.Errorf("读取MinIO对象流失败: %w", err)
	}
	log.Infof("[Processor] 步骤1: 文件下载成功, 大小: %d字节", size)
	if size == 0 {
		log.Warnf("[Processor] 文件 '%s' 内容为空, 处理中止", task.ObjectName)
		return errors.New("文件内容为空")
	}

	// 2. 使用 Tika 提取文本
	log.Info("[Processor] 步骤2: 使用Tika提取文本内容")
	textContent, err := p.tikaClient.ExtractText(ctx, bytes.NewReader(buf.Bytes()), task.FileName)
	if err != nil {
		log.Errorf("[Processor] 使用Tika提取文本失败, FileName: %s, Error: %v", task.FileName, err)
		return fmt.Errorf("使用 Tika 提取文本失败: %w", err)
	}
	if strings.TrimSpace(textContent) == "" {
		log.Warnf("[Processor] Tika提取的文本内容为空, 处理中止, FileName: %s", task.FileName)
		return errors.New("提取的文本内容为空")
	}
	log.Infof("[Processor] 步骤2: 文本提取成功, 内容长度: %d 字符", utf8.RuneCountInString(textContent))

	// 3. 文本切块
	log.Infof("[Processor] 步骤3: 进行文本分块, chunkSize: %d, chunkOverlap: %d", p.chunkSize, p.chunkOverlap)
	chunks := SplitText(textContent, p.chunkSize, p.chunkOverlap)
	log.Infof("[Processor] 步骤3: 文本分块完成, 共生成 %d 个分块", len(chunks))
	if len(chunks) == 0 {
		return errors.New("未生成任何文本分块")
	}

	// 4. 逐块摄取：分块 ID 稳定，重复导入同一对象触发覆盖式重建
	requester := &model.Requester{UserID: task.RequestedBy, Role: model.RoleAdmin}
	prefix := ChunkIDPrefix(task.CourseID, task.ObjectName)
	ingested := map[string]struct{}{}
	for i, chunk := range chunks {
		docID := fmt.Sprintf("%s%d", prefix, i)
		payload := model.IngestPayload{
			"id":        docID,
			"course_id": task.CourseID,
			"week_id":   task.WeekID,
			"text":      chunk,
		}
		if task.LectureID != "" {
			payload["lecture_id"] = task.LectureID
		}
		if len(task.Topics) > 0 {
			payload["topics"] = task.Topics
		}
		if _, err := p.ingestService.Ingest(ctx, registry.CollectionCourseContent, payload, requester); err != nil {
			log.Errorf("[Processor] 分块 %d/%d 摄取失败, Error: %v", i+1, len(chunks), err)
			return fmt.Errorf("分块 %d 摄取失败: %w", i, err)
		}
		ingested[docID] = struct{}{}
		log.Infof("[Processor] 分块 %d/%d 摄取成功, docID: %s", i+1, len(chunks), docID)
	}

	// 5. 清理重导入后多出来的旧分块
	stale, err := p.docRepo.FindByDocIDPrefix(registry.CollectionCourseContent, prefix)
	if err != nil {
		log.Warnf("[Processor] 查询旧分块失败, 跳过清理: %v", err)
		return nil
	}
	for _, record := range stale {
		if _, ok := ingested[record.DocID]; ok {
			continue
		}
		if err := p.ingestService.Delete(ctx, registry.CollectionCourseContent, record.DocID, requester); err != nil {
			log.Warnf("[Processor] 清理旧分块 '%s' 失败: %v", record.DocID, err)
		}
	}

	log.Infof("[Processor] 导入任务处理完成, Object: %s, 共 %d 个分块", task.ObjectName, len(chunks))
	return nil
}

// ChunkIDPrefix 生成某次导入的分块 ID 前缀。
// 对象名里的路径分隔符替换掉，保持 ID 可读且无歧义。
func ChunkIDPrefix(courseID, objectName string) string {
	object := strings.NewReplacer("/", "_", " ", "_").Replace(objectName)
	return fmt.Sprintf("%s_%s_chunk_", courseID, object)
}

// SplitText 将长文本按指定大小和重叠进行切分（按 rune 计）。
func SplitText(text string, chunkSize int, chunkOverlap int) []string {
	if chunkSize <= chunkOverlap {
		return simpleSplit(text, chunkSize)
	}

	var chunks []string
	runes := []rune(text)
	if len(runes) == 0 {
		return nil
	}

	step := chunkSize - chunkOverlap
	for i := 0; i < len(runes); i += step {
		end := i + chunkSize
		if end > len(runes) {
			end = len(runes)
		}
		chunks = append(chunks, string(runes[i:end]))
		if end == len(runes) {
			break
		}
	}
	return chunks
}

func simpleSplit(text string, chunkSize int) []string {
	var chunks []string
	runes := []rune(text)
	if len(runes) == 0 || chunkSize <= 0 {
		return nil
	}
	for i := 0; i < len(runes); i += chunkSize {
		end := i + chunkSize
		if end > len(runes) {
			end = len(runes)
		}
		chunks = append(chunks, string(runes[i:end]))
	}
	return chunks
}
