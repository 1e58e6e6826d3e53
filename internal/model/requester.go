// Package model 包含了应用的数据模型定义。
package model

// 角色常量，与外部认证层签发的 JWT role 声明对齐。
const (
	RoleAdmin   = "ADMIN"
	RoleStudent = "STUDENT"
	RoleTeacher = "TEACHER"
)

// Requester 描述一次 search/add 调用的请求者上下文。
// 它由外部认证层（JWT）提供，核心只消费、不派生。
type Requester struct {
	UserID   uint     `json:"userId"`
	Username string   `json:"username"`
	Role     string   `json:"role"`
	Courses  []string `json:"courses"` // 已选课程 course_id 集合
}

// IsAdmin 判断请求者是否持有管理员能力。
func (r *Requester) IsAdmin() bool {
	return r != nil && r.Role == RoleAdmin
}

// EnrolledIn 判断请求者是否选修了指定课程。
func (r *Requester) EnrolledIn(courseID string) bool {
	if r == nil {
		return false
	}
	for _, c := range r.Courses {
		if c == courseID {
			return true
		}
	}
	return false
}
