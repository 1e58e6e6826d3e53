package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"study-indexer-go/internal/middleware"
	"study-indexer-go/internal/registry"
	"study-indexer-go/internal/service"
	"study-indexer-go/pkg/kafka"
	"study-indexer-go/pkg/log"
	"study-indexer-go/pkg/storage"
	"study-indexer-go/pkg/tasks"
)

// AdminHandler 结构体定义了管理员专属接口的处理器。
type AdminHandler struct {
	ingestService service.IngestService
	producer      *kafka.Producer
	storageClient *storage.Client
	reg           *registry.Registry
}

// NewAdminHandler 创建一个新的 AdminHandler 实例。
func NewAdminHandler(ingestService service.IngestService, producer *kafka.Producer, storageClient *storage.Client, reg *registry.Registry) *AdminHandler {
	return &AdminHandler{
		ingestService: ingestService,
		producer:      producer,
		storageClient: storageClient,
		reg:           reg,
	}
}

// importRequest 是课程内容导入接口的请求体，指向一个已上传到对象存储的源文件。
type importRequest struct {
	ObjectName string   `json:"object_name" binding:"required"`
	FileName   string   `json:"file_name" binding:"required"`
	CourseID   string   `json:"course_id" binding:"required"`
	WeekID     string   `json:"week_id" binding:"required"`
	LectureID  string   `json:"lecture_id"`
	Topics     []string `json:"topics"`
}

// ImportCourseContent 接收导入请求并投递异步任务，由消费端完成下载、抽取与分块摄取。
func (h *AdminHandler) ImportCourseContent(c *gin.Context) {
	if h.producer == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "导入管道未启用"})
		return
	}

	var req importRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		log.Warnf("[AdminHandler] 导入请求体解析失败, error: %v", err)
		c.JSON(http.StatusBadRequest, gin.H{"error": "无效的请求体"})
		return
	}

	requester, ok := middleware.RequesterFrom(c)
	if !ok {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "无法获取用户信息"})
		return
	}

	// 投递前确认对象存在，坏的对象名在请求侧就报错而不是留给消费端
	if _, err := h.storageClient.StatObject(c.Request.Context(), req.ObjectName); err != nil {
		log.Warnf("[AdminHandler] 导入对象不存在或不可访问, Object: %s, error: %v", req.ObjectName, err)
		c.JSON(http.StatusBadRequest, gin.H{"error": "指定的对象不存在或不可访问"})
		return
	}

	task := tasks.ContentImportTask{
		ObjectName:  req.ObjectName,
		FileName:    req.FileName,
		CourseID:    req.CourseID,
		WeekID:      req.WeekID,
		LectureID:   req.LectureID,
		Topics:      req.Topics,
		RequestedBy: requester.UserID,
	}

	log.Infof("[AdminHandler] 投递课程内容导入任务, Object: %s, Course: %s", req.ObjectName, req.CourseID)
	if err := h.producer.ProduceImportTask(c.Request.Context(), task); err != nil {
		log.Errorf("[AdminHandler] 投递导入任务失败, Object: %s, error: %v", req.ObjectName, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "投递导入任务失败"})
		return
	}

	respondOK(c, gin.H{"object_name": req.ObjectName, "status": "queued"})
}

// reindexRequest 可选地指定单个集合；为空时重建全部集合。
type reindexRequest struct {
	Collection string `json:"collection"`
}

// Reindex 依据底账记录对集合做全量重建索引，返回每个集合处理的文档数。
func (h *AdminHandler) Reindex(c *gin.Context) {
	var req reindexRequest
	// 请求体允许为空
	_ = c.ShouldBindJSON(&req)

	var names []string
	if req.Collection != "" {
		names = []string{req.Collection}
	} else {
		for _, def := range h.reg.All() {
			names = append(names, def.Name)
		}
	}

	log.Infof("[AdminHandler] 开始全量重建索引, 集合: %v", names)
	counts := make(map[string]int, len(names))
	for _, name := range names {
		count, err := h.ingestService.ReindexCollection(c.Request.Context(), name)
		if err != nil {
			log.Errorf("[AdminHandler] 集合 '%s' 重建索引失败, error: %v", name, err)
			respondError(c, err)
			return
		}
		counts[name] = count
		log.Infof("[AdminHandler] 集合 '%s' 重建索引完成, 共 %d 篇文档", name, count)
	}

	respondOK(c, counts)
}
