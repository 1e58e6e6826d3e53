// Package handler 定义了所有 HTTP 接口的处理器。
package handler

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"study-indexer-go/pkg/errs"
)

// respondOK 以统一的响应信封返回成功结果。
func respondOK(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, gin.H{"code": 200, "data": data, "message": "success"})
}

// respondError 将业务错误映射为对应的 HTTP 状态码。
// 失败必须显式上报，绝不以空结果掩盖。
func respondError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, errs.ErrUnknownCollection):
		status = http.StatusNotFound
	case errors.Is(err, errs.ErrValidation), errors.Is(err, errs.ErrInvalidQuery):
		status = http.StatusBadRequest
	case errors.Is(err, errs.ErrAccessDenied):
		status = http.StatusForbidden
	case errors.Is(err, errs.ErrEmbeddingUnavailable), errors.Is(err, errs.ErrVectorStoreUnavailable):
		status = http.StatusBadGateway
	case errors.Is(err, errs.ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		status = http.StatusGatewayTimeout
	}
	c.JSON(status, gin.H{"error": err.Error()})
}
