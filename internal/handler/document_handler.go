package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"study-indexer-go/internal/middleware"
	"study-indexer-go/internal/model"
	"study-indexer-go/internal/service"
	"study-indexer-go/pkg/log"
)

// DocumentHandler 结构体定义了文档摄取与删除相关的处理器。
type DocumentHandler struct {
	ingestService service.IngestService
}

// NewDocumentHandler 创建一个新的 DocumentHandler 实例。
func NewDocumentHandler(ingestService service.IngestService) *DocumentHandler {
	return &DocumentHandler{
		ingestService: ingestService,
	}
}

// Add 返回指定集合的文档摄取处理函数。
// 请求体即集合的载荷对象；携带已存在的 id 表示覆盖式重建索引。
func (h *DocumentHandler) Add(collection string) gin.HandlerFunc {
	return func(c *gin.Context) {
		var payload model.IngestPayload
		if err := c.ShouldBindJSON(&payload); err != nil {
			log.Warnf("[DocumentHandler] 请求体解析失败, collection: %s, error: %v", collection, err)
			c.JSON(http.StatusBadRequest, gin.H{"error": "无效的请求体"})
			return
		}
		log.Infof("[DocumentHandler] 收到文档摄取请求, collection: %s", collection)

		requester, ok := middleware.RequesterFrom(c)
		if !ok {
			log.Errorf("[DocumentHandler] 无法从 Gin 上下文中获取用户信息")
			c.JSON(http.StatusInternalServerError, gin.H{"error": "无法获取用户信息"})
			return
		}

		docID, err := h.ingestService.Ingest(c.Request.Context(), collection, payload, requester)
		if err != nil {
			log.Errorf("[DocumentHandler] 文档摄取失败, collection: %s, error: %v", collection, err)
			respondError(c, err)
			return
		}

		log.Infof("[DocumentHandler] 文档摄取成功, collection: %s, docID: %s", collection, docID)
		respondOK(c, gin.H{"id": docID})
	}
}

// Delete 处理删除指定集合中某个文档的请求。删除不存在的文档同样返回成功。
func (h *DocumentHandler) Delete(c *gin.Context) {
	collection := c.Param("collection")
	docID := c.Param("id")
	log.Infof("[DocumentHandler] 收到文档删除请求, collection: %s, docID: %s", collection, docID)

	requester, ok := middleware.RequesterFrom(c)
	if !ok {
		log.Errorf("[DocumentHandler] 无法从 Gin 上下文中获取用户信息")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "无法获取用户信息"})
		return
	}

	if err := h.ingestService.Delete(c.Request.Context(), collection, docID, requester); err != nil {
		log.Errorf("[DocumentHandler] 文档删除失败, collection: %s, docID: %s, error: %v", collection, docID, err)
		respondError(c, err)
		return
	}

	log.Infof("[DocumentHandler] 文档删除成功, collection: %s, docID: %s", collection, docID)
	respondOK(c, gin.H{"id": docID})
}
