package registry

import (
	"fmt"
	"strings"

	"study-indexer-go/pkg/vectorstore"
)

// 集合名称常量。
const (
	CollectionFAQ              = "faq"
	CollectionCourseGuide      = "course_guide"
	CollectionCourseContent    = "course_content"
	CollectionPersonalResource = "personal_resource"
	CollectionIntegrityCheck   = "integrity_check"
)

// buildDefinitions 构造五个固定集合定义。
func buildDefinitions() []*CollectionDefinition {
	return []*CollectionDefinition{
		{
			// FAQ：公开问答库，question/answer 作为成对字段单独存储，
			// 永远不需要从合成文本里再解析回来。
			Name:       CollectionFAQ,
			Route:      "faq",
			SearchVerb: "search",
			Access:     AccessPublic,
			MinLimit:   1,
			MaxLimit:   50,
			Fields: map[string]FieldSpec{
				"question":     {Kind: vectorstore.FieldString, Required: true, Embedded: true, InMeta: true},
				"answer":       {Kind: vectorstore.FieldString, Required: true, Embedded: true, InMeta: true},
				"category":     {Kind: vectorstore.FieldString, Required: true, Filterable: true, InMeta: true},
				"tags":         {Kind: vectorstore.FieldStrings, Filterable: true, InMeta: true},
				"is_published": {Kind: vectorstore.FieldBool, Required: true, Filterable: true, InMeta: true},
				"priority":     {Kind: vectorstore.FieldInt, Filterable: true, InMeta: true},
			},
			ComposeText: func(payload map[string]interface{}) string {
				return fmt.Sprintf("QUESTION: %s\nANSWER: %s",
					strings.TrimSpace(asString(payload["question"])),
					strings.TrimSpace(asString(payload["answer"])))
			},
		},
		{
			// 课程导学：某课程覆盖/不覆盖的主题清单。
			Name:       CollectionCourseGuide,
			Route:      "course-guide",
			SearchVerb: "search",
			Access:     AccessPublic,
			MinLimit:   1,
			MaxLimit:   50,
			Fields: map[string]FieldSpec{
				"course_id": {Kind: vectorstore.FieldString, Required: true, Filterable: true, InMeta: true},
				"scope":     {Kind: vectorstore.FieldString, Required: true, Filterable: true, InMeta: true},
				"topics":    {Kind: vectorstore.FieldStrings, Required: true, Filterable: true, InMeta: true},
			},
			ComposeText: func(payload map[string]interface{}) string {
				label := "COVERED TOPICS"
				if asString(payload["scope"]) == "excluded" {
					label = "EXCLUDED TOPICS"
				}
				return fmt.Sprintf("%s: %s", label, strings.Join(asStrings(payload["topics"]), "; "))
			},
		},
		{
			// 课程内容：讲义/PDF 切块后的文本，按课程范围访问。
			Name:       CollectionCourseContent,
			Route:      "course-content",
			SearchVerb: "search",
			Access:     AccessCourseScoped,
			MinLimit:   1,
			MaxLimit:   50,
			Fields: map[string]FieldSpec{
				"course_id":  {Kind: vectorstore.FieldString, Required: true, Filterable: true, InMeta: true},
				"week_id":    {Kind: vectorstore.FieldString, Required: true, Filterable: true, InMeta: true},
				"lecture_id": {Kind: vectorstore.FieldString, Filterable: true, InMeta: true},
				"topics":     {Kind: vectorstore.FieldStrings, Filterable: true, InMeta: true},
				"text":       {Kind: vectorstore.FieldString, Required: true, Embedded: true},
			},
			ComposeText: func(payload map[string]interface{}) string {
				return strings.TrimSpace(asString(payload["text"]))
			},
		},
		{
			// 个人资料：用户私有的笔记/文档，owner_user_id 精确匹配。
			Name:       CollectionPersonalResource,
			Route:      "personal-resources",
			SearchVerb: "search",
			Access:     AccessUserPrivate,
			MinLimit:   1,
			MaxLimit:   50,
			Fields: map[string]FieldSpec{
				"owner_user_id": {Kind: vectorstore.FieldInt, Required: true, Filterable: true, InMeta: true},
				"course_id":     {Kind: vectorstore.FieldString, Filterable: true, InMeta: true},
				"folder_path":   {Kind: vectorstore.FieldString, Filterable: true, InMeta: true},
				"title":         {Kind: vectorstore.FieldString, InMeta: true},
				"text":          {Kind: vectorstore.FieldString, Required: true, Embedded: true},
			},
			ComposeText: func(payload map[string]interface{}) string {
				title := strings.TrimSpace(asString(payload["title"]))
				text := strings.TrimSpace(asString(payload["text"]))
				if title == "" {
					return text
				}
				return title + "\n" + text
			},
		},
		{
			// 诚信比对：只嵌入判分题目文本，检索结果只暴露 question_id 与分数。
			Name:       CollectionIntegrityCheck,
			Route:      "integrity-check",
			SearchVerb: "check",
			Access:     AccessRestricted,
			MinLimit:   1,
			MaxLimit:   20,
			Fields: map[string]FieldSpec{
				"course_id":     {Kind: vectorstore.FieldString, Required: true, Filterable: true, InMeta: true},
				"assignment_id": {Kind: vectorstore.FieldString, Required: true, Filterable: true, InMeta: true},
				"question_id":   {Kind: vectorstore.FieldString, Required: true, Filterable: true, InMeta: true},
				"text":          {Kind: vectorstore.FieldString, Required: true, Embedded: true},
			},
			ComposeText: func(payload map[string]interface{}) string {
				return strings.TrimSpace(asString(payload["text"]))
			},
		},
	}
}

func asString(v interface{}) string {
	s, _ := v.(string)
	return s
}

func asStrings(v interface{}) []string {
	switch list := v.(type) {
	case []string:
		return list
	case []interface{}:
		out := make([]string, 0, len(list))
		for _, item := range list {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}
