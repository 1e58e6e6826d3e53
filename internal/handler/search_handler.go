package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"study-indexer-go/internal/middleware"
	"study-indexer-go/internal/model"
	"study-indexer-go/internal/service"
	"study-indexer-go/pkg/log"
)

// searchRequest 是所有集合搜索接口共用的请求体。
// limit 与 min_score 缺省时采用默认值，显式传入的非法值会被拒绝。
type searchRequest struct {
	Query    string                 `json:"query"`
	Filters  map[string]interface{} `json:"filters"`
	Limit    *int                   `json:"limit"`
	MinScore *float64               `json:"min_score"`
}

const (
	defaultSearchLimit = 10
	defaultMinScore    = 0.0
)

// SearchHandler 结构体定义了搜索相关的处理器。
type SearchHandler struct {
	searchService service.SearchService
	timeout       time.Duration
}

// NewSearchHandler 创建一个新的 SearchHandler 实例。
func NewSearchHandler(searchService service.SearchService, timeout time.Duration) *SearchHandler {
	return &SearchHandler{
		searchService: searchService,
		timeout:       timeout,
	}
}

// Search 返回指定集合的搜索处理函数，所有集合共用同一套解析与超时逻辑。
func (h *SearchHandler) Search(collection string) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req searchRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			log.Warnf("[SearchHandler] 请求体解析失败, collection: %s, error: %v", collection, err)
			c.JSON(http.StatusBadRequest, gin.H{"error": "无效的请求体"})
			return
		}
		log.Infof("[SearchHandler] 收到搜索请求, collection: %s, query: %s", collection, req.Query)

		requester, ok := middleware.RequesterFrom(c)
		if !ok {
			log.Errorf("[SearchHandler] 无法从 Gin 上下文中获取用户信息")
			c.JSON(http.StatusInternalServerError, gin.H{"error": "无法获取用户信息"})
			return
		}

		limit := defaultSearchLimit
		if req.Limit != nil {
			limit = *req.Limit
		}
		minScore := defaultMinScore
		if req.MinScore != nil {
			minScore = *req.MinScore
		}

		query := model.SearchQuery{
			Text:     req.Query,
			Filters:  req.Filters,
			Limit:    limit,
			MinScore: minScore,
		}

		ctx, cancel := context.WithTimeout(c.Request.Context(), h.timeout)
		defer cancel()

		results, err := h.searchService.Search(ctx, collection, query, requester)
		if err != nil {
			log.Errorf("[SearchHandler] 搜索服务返回错误, collection: %s, error: %v", collection, err)
			respondError(c, err)
			return
		}

		log.Infof("[SearchHandler] 搜索成功, collection: %s, query: '%s', 返回 %d 条结果", collection, req.Query, len(results))
		respondOK(c, results)
	}
}
