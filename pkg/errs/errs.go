// Package errs 定义了检索核心对外暴露的错误分类。
// 调用方（课程管理后端、对话智能体）依赖这些哨兵错误区分
// “没有命中结果”与“检索子系统不可用”，核心永远不会把错误悄悄转换为空结果。
package errs

import "errors"

var (
	// ErrUnknownCollection 表示目标集合未在注册表中定义。
	ErrUnknownCollection = errors.New("unknown collection")
	// ErrValidation 表示写入负载缺少必填字段或字段类型/内容非法。
	ErrValidation = errors.New("validation error")
	// ErrInvalidQuery 表示查询参数超出允许范围（limit、min_score、过滤字段）。
	ErrInvalidQuery = errors.New("invalid query")
	// ErrEmbeddingUnavailable 表示向量化服务调用失败。
	ErrEmbeddingUnavailable = errors.New("embedding unavailable")
	// ErrVectorStoreUnavailable 表示向量存储读写失败。
	ErrVectorStoreUnavailable = errors.New("vector store unavailable")
	// ErrTimeout 表示 embed 或向量检索在调用方给定的超时内未完成。
	ErrTimeout = errors.New("operation timed out")
	// ErrAccessDenied 表示请求者上下文缺少访问该集合所需的身份信息。
	ErrAccessDenied = errors.New("access denied")
)

// Is 是 errors.Is 的简单转发，省去调用方重复 import。
func Is(err, target error) bool {
	return errors.Is(err, target)
}
