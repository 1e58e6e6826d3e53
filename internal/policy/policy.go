// Package policy 实现按集合的访问控制策略。
// FilterFor 是纯函数：同样的定义与请求者永远产出同样的过滤子句，
// 没有自己的持久化状态；它在每次 search 之前、以及写入带所有者
// 数据的 ingest 之前被求值。
package policy

import (
	"fmt"

	"study-indexer-go/internal/model"
	"study-indexer-go/internal/registry"
	"study-indexer-go/pkg/errs"
	"study-indexer-go/pkg/vectorstore"
)

// FilterFor 为一次检索计算强制的访问控制子句。
// 返回的子句与调用方过滤条件在上层 AND 合并后整体下推到向量存储。
func FilterFor(def *registry.CollectionDefinition, requester *model.Requester) ([]vectorstore.Clause, error) {
	if requester == nil {
		return nil, fmt.Errorf("%w: requester context is missing", errs.ErrAccessDenied)
	}

	switch def.Access {
	case registry.AccessPublic:
		// 公开集合：非管理员只能看到已发布条目（字段存在时）
		if def.HasField("is_published") && !requester.IsAdmin() {
			return []vectorstore.Clause{
				{Field: "is_published", Op: vectorstore.OpEq, Value: true},
			}, nil
		}
		return nil, nil

	case registry.AccessCourseScoped, registry.AccessRestricted:
		// 课程范围集合：限定在请求者已选课程内；
		// 诚信比对的 check 操作同样按课程范围过滤，原文剥离由排序器负责
		clauses, err := courseClauses(requester)
		if err != nil {
			return nil, err
		}
		return clauses, nil

	case registry.AccessUserPrivate:
		// 用户私有集合：owner_user_id 必须精确等于请求者，
		// 管理员没有隐式越权，跨用户访问是独立的带审计操作
		if requester.UserID == 0 {
			return nil, fmt.Errorf("%w: user-private collection requires a user id", errs.ErrAccessDenied)
		}
		return []vectorstore.Clause{
			{Field: "owner_user_id", Op: vectorstore.OpEq, Value: int(requester.UserID)},
		}, nil

	default:
		return nil, fmt.Errorf("%w: collection '%s' has unknown access class", errs.ErrAccessDenied, def.Name)
	}
}

// CheckIngest 在写入前校验所有者范围的数据归属。
// 个人资料的 owner_user_id 必须等于请求者本人（管理员代写除外）。
func CheckIngest(def *registry.CollectionDefinition, payload map[string]interface{}, requester *model.Requester) error {
	if requester == nil {
		return fmt.Errorf("%w: requester context is missing", errs.ErrAccessDenied)
	}
	if def.Access != registry.AccessUserPrivate {
		return nil
	}
	if requester.IsAdmin() {
		return nil
	}
	owner, ok := payload["owner_user_id"]
	if !ok {
		// 缺失由负载校验报 ValidationError，这里不重复判定
		return nil
	}
	if !sameUserID(owner, requester.UserID) {
		return fmt.Errorf("%w: cannot write resources owned by another user", errs.ErrAccessDenied)
	}
	return nil
}

// CheckDelete 在删除前校验请求者对目标文档的处置权限。
// 个人资料只能由所有者本人删除（管理员可代办）；其余集合都是受管内容，
// 删除属于策展操作，只对管理员开放。meta 是目标文档的底账元数据。
func CheckDelete(def *registry.CollectionDefinition, meta map[string]interface{}, requester *model.Requester) error {
	if requester == nil {
		return fmt.Errorf("%w: requester context is missing", errs.ErrAccessDenied)
	}
	if requester.IsAdmin() {
		return nil
	}
	if def.Access == registry.AccessUserPrivate {
		if owner, ok := meta["owner_user_id"]; ok && sameUserID(owner, requester.UserID) {
			return nil
		}
		return fmt.Errorf("%w: cannot delete resources owned by another user", errs.ErrAccessDenied)
	}
	return fmt.Errorf("%w: deleting from collection '%s' requires admin", errs.ErrAccessDenied, def.Name)
}

// courseClauses 生成课程范围过滤，未选任何课程的请求者拿不到任何结果。
func courseClauses(requester *model.Requester) ([]vectorstore.Clause, error) {
	if requester.UserID == 0 {
		return nil, fmt.Errorf("%w: course-scoped collection requires a user id", errs.ErrAccessDenied)
	}
	courses := make([]interface{}, 0, len(requester.Courses))
	for _, c := range requester.Courses {
		courses = append(courses, c)
	}
	if len(courses) == 0 && !requester.IsAdmin() {
		// 空集合成员条件在存储层恒为假，保持显式下推以避免误放行
		courses = append(courses, "")
	}
	if requester.IsAdmin() && len(courses) == 0 {
		// 管理员未绑定课程时可跨课程检索
		return nil, nil
	}
	return []vectorstore.Clause{
		{Field: "course_id", Op: vectorstore.OpIn, Values: courses},
	}, nil
}

func sameUserID(owner interface{}, userID uint) bool {
	switch v := owner.(type) {
	case int:
		return v == int(userID)
	case int64:
		return v == int64(userID)
	case uint:
		return v == userID
	case float64:
		return v == float64(userID)
	default:
		return false
	}
}
