// Package registry 实现集合模式注册表。
// 五个集合（FAQ、课程导学、课程内容、个人资料、诚信比对）在进程启动时
// 定义一次，此后只读；新增集合类型需要新的部署，不存在运行时模式变更。
// 摄取与检索逻辑只写一份，按这里的定义参数化，避免把管道复制五遍。
package registry

import (
	"fmt"
	"sort"
	"strings"

	"study-indexer-go/pkg/errs"
	"study-indexer-go/pkg/vectorstore"
)

// AccessClass 是集合的访问控制类别。
type AccessClass string

const (
	// AccessPublic 公开集合：默认只暴露 is_published=true 的条目。
	AccessPublic AccessClass = "public"
	// AccessCourseScoped 课程范围集合：只暴露请求者已选课程的条目。
	AccessCourseScoped AccessClass = "course-scoped"
	// AccessUserPrivate 用户私有集合：只暴露 owner_user_id 等于请求者的条目。
	AccessUserPrivate AccessClass = "user-private"
	// AccessRestricted 受限集合（诚信比对）：检索按课程范围过滤，
	// 但结果永远只返回 question_id 与分数，原文不出边界。
	AccessRestricted AccessClass = "restricted"
)

// FieldSpec 描述集合负载中的一个字段。
type FieldSpec struct {
	Kind       vectorstore.FieldKind
	Required   bool // 摄取时必填
	Filterable bool // 允许作为查询过滤条件
	Embedded   bool // 参与可嵌入文本合成（非空校验按去除首尾空白后计）
	InMeta     bool // 作为元数据随文档存储
}

// CollectionDefinition 定义一个集合的文档形态与行为参数。创建后不可变。
type CollectionDefinition struct {
	Name       string      // 集合标识，如 "faq"
	Route      string      // HTTP 路由段，如 "faq"、"course-content"
	SearchVerb string      // 检索端点动词，诚信比对为 "check"，其余为 "search"
	Access     AccessClass
	Fields     map[string]FieldSpec
	MinLimit   int
	MaxLimit   int
	// ComposeText 按集合的合成规则把负载拼成待嵌入文本。
	// 调用前负载已通过 ValidatePayload。
	ComposeText func(payload map[string]interface{}) string
}

// HasField 判断集合是否定义了某个元数据字段。
func (d *CollectionDefinition) HasField(name string) bool {
	_, ok := d.Fields[name]
	return ok
}

// Schema 生成该集合在向量存储中的物理 schema。
func (d *CollectionDefinition) Schema(dims int) vectorstore.CollectionSchema {
	metaFields := map[string]vectorstore.FieldKind{}
	for name, spec := range d.Fields {
		if spec.InMeta {
			metaFields[name] = spec.Kind
		}
	}
	return vectorstore.CollectionSchema{Name: d.Name, Dims: dims, MetaFields: metaFields}
}

// ValidatePayload 校验摄取负载：必填字段齐全、类型正确、参与嵌入的
// 文本字段去除空白后非空。返回规范化后的元数据映射（仅 InMeta 字段）。
func (d *CollectionDefinition) ValidatePayload(payload map[string]interface{}) (map[string]interface{}, error) {
	meta := map[string]interface{}{}
	for name, spec := range d.Fields {
		raw, present := payload[name]
		if !present || raw == nil {
			if spec.Required {
				return nil, fmt.Errorf("%w: missing required field '%s'", errs.ErrValidation, name)
			}
			continue
		}
		value, err := coerceValue(name, spec.Kind, raw)
		if err != nil {
			return nil, err
		}
		if spec.Embedded {
			if s, ok := value.(string); ok && strings.TrimSpace(s) == "" {
				return nil, fmt.Errorf("%w: field '%s' is empty after trimming", errs.ErrValidation, name)
			}
		}
		if spec.InMeta {
			meta[name] = value
		}
	}
	for name := range payload {
		if name == "id" {
			continue
		}
		if !d.HasField(name) {
			return nil, fmt.Errorf("%w: unknown field '%s' for collection '%s'", errs.ErrValidation, name, d.Name)
		}
	}
	return meta, nil
}

// ValidateFilters 把调用方的过滤条件翻译为存储层子句。
// 字段必须在集合中定义且标记为可过滤；列表值与列表字段走集合成员语义。
func (d *CollectionDefinition) ValidateFilters(filters map[string]interface{}) ([]vectorstore.Clause, error) {
	if len(filters) == 0 {
		return nil, nil
	}
	// 字段名排序保证子句顺序确定，便于测试与日志比对
	names := make([]string, 0, len(filters))
	for name := range filters {
		names = append(names, name)
	}
	sort.Strings(names)

	clauses := make([]vectorstore.Clause, 0, len(names))
	for _, name := range names {
		spec, ok := d.Fields[name]
		if !ok || !spec.Filterable {
			return nil, fmt.Errorf("%w: field '%s' is not filterable on collection '%s'", errs.ErrInvalidQuery, name, d.Name)
		}
		raw := filters[name]
		switch v := raw.(type) {
		case []interface{}:
			clauses = append(clauses, vectorstore.Clause{Field: name, Op: vectorstore.OpIn, Values: v})
		default:
			if spec.Kind == vectorstore.FieldStrings {
				// 列表字段的标量过滤等价于单元素成员测试
				clauses = append(clauses, vectorstore.Clause{Field: name, Op: vectorstore.OpIn, Values: []interface{}{v}})
			} else {
				clauses = append(clauses, vectorstore.Clause{Field: name, Op: vectorstore.OpEq, Value: v})
			}
		}
	}
	return clauses, nil
}

// coerceValue 校验并规范化单个字段值。
func coerceValue(name string, kind vectorstore.FieldKind, raw interface{}) (interface{}, error) {
	switch kind {
	case vectorstore.FieldString:
		s, ok := raw.(string)
		if !ok {
			return nil, fmt.Errorf("%w: field '%s' must be a string", errs.ErrValidation, name)
		}
		return s, nil
	case vectorstore.FieldBool:
		b, ok := raw.(bool)
		if !ok {
			return nil, fmt.Errorf("%w: field '%s' must be a boolean", errs.ErrValidation, name)
		}
		return b, nil
	case vectorstore.FieldInt:
		switch v := raw.(type) {
		case int:
			return v, nil
		case int64:
			return int(v), nil
		case uint:
			return int(v), nil
		case float64:
			// JSON 数字反序列化为 float64
			if v != float64(int(v)) {
				return nil, fmt.Errorf("%w: field '%s' must be an integer", errs.ErrValidation, name)
			}
			return int(v), nil
		default:
			return nil, fmt.Errorf("%w: field '%s' must be an integer", errs.ErrValidation, name)
		}
	case vectorstore.FieldStrings:
		switch v := raw.(type) {
		case []string:
			return v, nil
		case []interface{}:
			out := make([]string, 0, len(v))
			for _, item := range v {
				s, ok := item.(string)
				if !ok {
					return nil, fmt.Errorf("%w: field '%s' must be a list of strings", errs.ErrValidation, name)
				}
				out = append(out, s)
			}
			return out, nil
		default:
			return nil, fmt.Errorf("%w: field '%s' must be a list of strings", errs.ErrValidation, name)
		}
	default:
		return nil, fmt.Errorf("%w: field '%s' has unsupported kind", errs.ErrValidation, name)
	}
}

// Registry 是进程级的集合模式注册表，启动后只读。
type Registry struct {
	defs  map[string]*CollectionDefinition
	order []string
}

// New 创建注册表并装入五个固定集合定义。
func New() *Registry {
	r := &Registry{defs: map[string]*CollectionDefinition{}}
	for _, def := range buildDefinitions() {
		r.defs[def.Name] = def
		r.order = append(r.order, def.Name)
	}
	return r
}

// Get 按名称取集合定义，未注册时返回 ErrUnknownCollection。
func (r *Registry) Get(name string) (*CollectionDefinition, error) {
	def, ok := r.defs[name]
	if !ok {
		return nil, fmt.Errorf("%w: '%s'", errs.ErrUnknownCollection, name)
	}
	return def, nil
}

// All 按注册顺序返回全部集合定义。
func (r *Registry) All() []*CollectionDefinition {
	out := make([]*CollectionDefinition, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.defs[name])
	}
	return out
}
