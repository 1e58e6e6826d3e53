package vectorstore

import "fmt"

// Op 是过滤子句的操作类型。
type Op string

const (
	// OpEq 要求字段值与给定值相等。
	OpEq Op = "eq"
	// OpIn 要求字段值属于给定集合（对列表字段则要求存在交集）。
	OpIn Op = "in"
)

// Clause 是单个元数据过滤条件。
type Clause struct {
	Field  string
	Op     Op
	Value  interface{}   // OpEq 使用
	Values []interface{} // OpIn 使用
}

// Filter 是若干子句的合取（AND）。访问控制子句与调用方过滤条件
// 在上层合并进同一个 Filter 后整体下推。
type Filter struct {
	Clauses []Clause
}

// Eq 追加一个相等条件并返回自身，便于链式构建。
func (f *Filter) Eq(field string, value interface{}) *Filter {
	f.Clauses = append(f.Clauses, Clause{Field: field, Op: OpEq, Value: value})
	return f
}

// In 追加一个集合成员条件并返回自身。
func (f *Filter) In(field string, values []interface{}) *Filter {
	f.Clauses = append(f.Clauses, Clause{Field: field, Op: OpIn, Values: values})
	return f
}

// Matches 在适配器侧对一条元数据求值，供无法把全部子句下推到
// 后端的适配器（chromem 的 where 只支持相等）做二次过滤。
func (f Filter) Matches(meta map[string]interface{}) bool {
	for _, c := range f.Clauses {
		v, ok := meta[c.Field]
		if !ok {
			return false
		}
		switch c.Op {
		case OpEq:
			if !valueEquals(v, c.Value) {
				return false
			}
		case OpIn:
			if !valueIn(v, c.Values) {
				return false
			}
		default:
			return false
		}
	}
	return true
}

// valueEquals 比较两个可能来自 JSON 反序列化的值。
// 数值统一走字符串化比较，避免 int 与 float64 的类型错配。
func valueEquals(a, b interface{}) bool {
	return normalize(a) == normalize(b)
}

// valueIn 判断 v（标量或列表）与给定集合是否有交集。
func valueIn(v interface{}, values []interface{}) bool {
	members := map[string]struct{}{}
	for _, m := range values {
		members[normalize(m)] = struct{}{}
	}
	switch list := v.(type) {
	case []interface{}:
		for _, item := range list {
			if _, ok := members[normalize(item)]; ok {
				return true
			}
		}
		return false
	case []string:
		for _, item := range list {
			if _, ok := members[normalize(item)]; ok {
				return true
			}
		}
		return false
	default:
		_, ok := members[normalize(v)]
		return ok
	}
}

func normalize(v interface{}) string {
	return fmt.Sprintf("%v", v)
}
