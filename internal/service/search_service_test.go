package service

import (
	"context"
	"math"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"study-indexer-go/internal/model"
	"study-indexer-go/internal/registry"
	"study-indexer-go/internal/repository"
	"study-indexer-go/pkg/errs"
	"study-indexer-go/pkg/vectorstore"
)

// fakeEmbedder 是确定性的词袋向量化器：固定词表上的词频向量，
// 共享词越多的文本余弦相似度越高。维度末位是常数偏置，避免零向量。
type fakeEmbedder struct{}

var fakeVocabulary = []string{
	"password", "reset", "calculator", "exam", "loop", "recursion",
	"algebra", "deadline", "essay", "plagiarism",
}

func (fakeEmbedder) CreateEmbedding(_ context.Context, text string) ([]float32, error) {
	vec := make([]float32, len(fakeVocabulary)+1)
	lower := strings.ToLower(text)
	for i, word := range fakeVocabulary {
		vec[i] = float32(strings.Count(lower, word))
	}
	vec[len(fakeVocabulary)] = 0.1
	// 归一化，余弦相似度即点积
	var norm float64
	for _, v := range vec {
		norm += float64(v) * float64(v)
	}
	norm = math.Sqrt(norm)
	for i := range vec {
		vec[i] = float32(float64(vec[i]) / norm)
	}
	return vec, nil
}

func (fakeEmbedder) ModelVersion() string { return "fake-embedder-v1" }

// memoryDocRepo 是 DocumentRepository 的内存实现，测试用。
type memoryDocRepo struct {
	mu      sync.Mutex
	records []*model.DocumentRecord
	nextID  uint
}

func newMemoryDocRepo() *memoryDocRepo {
	return &memoryDocRepo{nextID: 1}
}

func (r *memoryDocRepo) Upsert(record *model.DocumentRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.records {
		if existing.Collection == record.Collection && existing.DocID == record.DocID {
			existing.EmbeddableText = record.EmbeddableText
			existing.Metadata = record.Metadata
			existing.ModelVersion = record.ModelVersion
			return nil
		}
	}
	record.ID = r.nextID
	r.nextID++
	clone := *record
	r.records = append(r.records, &clone)
	return nil
}

func (r *memoryDocRepo) FindByDocID(collection, docID string) (*model.DocumentRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, record := range r.records {
		if record.Collection == collection && record.DocID == docID {
			clone := *record
			return &clone, nil
		}
	}
	return nil, nil
}

func (r *memoryDocRepo) FindAllByCollection(collection string) ([]*model.DocumentRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*model.DocumentRecord
	for _, record := range r.records {
		if record.Collection == collection {
			clone := *record
			out = append(out, &clone)
		}
	}
	return out, nil
}

func (r *memoryDocRepo) FindByDocIDPrefix(collection, prefix string) ([]*model.DocumentRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*model.DocumentRecord
	for _, record := range r.records {
		if record.Collection == collection && strings.HasPrefix(record.DocID, prefix) {
			clone := *record
			out = append(out, &clone)
		}
	}
	return out, nil
}

func (r *memoryDocRepo) DeleteByDocID(collection, docID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := r.records[:0]
	for _, record := range r.records {
		if record.Collection == collection && record.DocID == docID {
			continue
		}
		out = append(out, record)
	}
	r.records = out
	return nil
}

var _ repository.DocumentRepository = (*memoryDocRepo)(nil)

// newTestServices 搭建一套基于内存 chromem 的完整服务栈。
func newTestServices(t *testing.T) (SearchService, IngestService, *memoryDocRepo) {
	t.Helper()
	reg := registry.New()
	store, err := vectorstore.NewChromemStore("")
	require.NoError(t, err)
	for _, def := range reg.All() {
		require.NoError(t, store.EnsureCollection(context.Background(), def.Schema(len(fakeVocabulary)+1)))
	}
	repo := newMemoryDocRepo()
	search := NewSearchService(reg, fakeEmbedder{}, store, 3)
	ingest := NewIngestService(reg, fakeEmbedder{}, store, repo)
	return search, ingest, repo
}

func adminRequester() *model.Requester {
	return &model.Requester{UserID: 1, Username: "admin", Role: model.RoleAdmin}
}

func studentRequester(userID uint, courses ...string) *model.Requester {
	return &model.Requester{UserID: userID, Username: "student", Role: model.RoleStudent, Courses: courses}
}

func ingestFAQ(t *testing.T, ingest IngestService, id, question, answer string, published bool, priority int) {
	t.Helper()
	payload := model.IngestPayload{
		"question":     question,
		"answer":       answer,
		"category":     "exam",
		"is_published": published,
		"priority":     priority,
	}
	if id != "" {
		payload["id"] = id
	}
	_, err := ingest.Ingest(context.Background(), registry.CollectionFAQ, payload, adminRequester())
	require.NoError(t, err)
}

func TestSearchFAQRelevanceAndThreshold(t *testing.T) {
	search, ingest, _ := newTestServices(t)
	ctx := context.Background()

	ingestFAQ(t, ingest, "faq-calc", "Can I use a calculator in the exam?", "Yes, a basic calculator is allowed in the exam.", true, 0)
	ingestFAQ(t, ingest, "faq-pwd", "How do I reset my password?", "Use the reset link on the login page.", true, 0)

	results, err := search.Search(ctx, registry.CollectionFAQ, model.SearchQuery{
		Text:     "am I allowed to bring a calculator to the exam",
		Limit:    5,
		MinScore: 0.3,
	}, studentRequester(7))
	require.NoError(t, err)
	require.NotEmpty(t, results)
	require.Equal(t, "faq-calc", results[0].DocumentID)
	// 分数单调不增
	for i := 1; i < len(results); i++ {
		require.LessOrEqual(t, results[i].Score, results[i-1].Score)
	}
	for _, res := range results {
		require.GreaterOrEqual(t, res.Score, 0.3)
	}

	// 阈值拉满后合法地得到空结果
	results, err = search.Search(ctx, registry.CollectionFAQ, model.SearchQuery{
		Text:     "completely unrelated topic about essay deadline",
		Limit:    5,
		MinScore: 0.99,
	}, studentRequester(7))
	require.NoError(t, err)
	require.Empty(t, results)
}

func TestSearchRejectsInvalidParameters(t *testing.T) {
	search, _, _ := newTestServices(t)
	ctx := context.Background()
	requester := studentRequester(7)

	// 越界 limit 拒绝而不是截断
	_, err := search.Search(ctx, registry.CollectionFAQ, model.SearchQuery{Text: "q", Limit: 0}, requester)
	require.ErrorIs(t, err, errs.ErrInvalidQuery)
	_, err = search.Search(ctx, registry.CollectionFAQ, model.SearchQuery{Text: "q", Limit: 51}, requester)
	require.ErrorIs(t, err, errs.ErrInvalidQuery)

	_, err = search.Search(ctx, registry.CollectionFAQ, model.SearchQuery{Text: "q", Limit: 5, MinScore: 1.5}, requester)
	require.ErrorIs(t, err, errs.ErrInvalidQuery)

	_, err = search.Search(ctx, registry.CollectionFAQ, model.SearchQuery{Text: "   ", Limit: 5}, requester)
	require.ErrorIs(t, err, errs.ErrInvalidQuery)

	_, err = search.Search(ctx, "nonexistent", model.SearchQuery{Text: "q", Limit: 5}, requester)
	require.ErrorIs(t, err, errs.ErrUnknownCollection)

	// 不可过滤字段
	_, err = search.Search(ctx, registry.CollectionFAQ, model.SearchQuery{
		Text: "q", Limit: 5, Filters: map[string]interface{}{"question": "x"},
	}, requester)
	require.ErrorIs(t, err, errs.ErrInvalidQuery)
}

func TestSearchPublishedVisibility(t *testing.T) {
	search, ingest, _ := newTestServices(t)
	ctx := context.Background()

	ingestFAQ(t, ingest, "faq-pub", "How do I reset my password?", "Use the reset link.", true, 0)
	ingestFAQ(t, ingest, "faq-draft", "Draft: password reset flow rework", "New reset flow draft.", false, 0)

	query := model.SearchQuery{Text: "reset password", Limit: 10}

	// 学生只能看到已发布条目
	results, err := search.Search(ctx, registry.CollectionFAQ, query, studentRequester(7))
	require.NoError(t, err)
	require.Len(t, results, 1)
	require.Equal(t, "faq-pub", results[0].DocumentID)

	// 管理员能看到全部
	results, err = search.Search(ctx, registry.CollectionFAQ, query, adminRequester())
	require.NoError(t, err)
	require.Len(t, results, 2)
}

func TestSearchCourseIsolation(t *testing.T) {
	search, ingest, _ := newTestServices(t)
	ctx := context.Background()

	for id, course := range map[string]string{"cc-cs": "CS101", "cc-math": "MATH200"} {
		_, err := ingest.Ingest(ctx, registry.CollectionCourseContent, model.IngestPayload{
			"id":        id,
			"course_id": course,
			"week_id":   "w1",
			"text":      "This lecture covers loop and recursion patterns.",
		}, adminRequester())
		require.NoError(t, err)
	}

	query := model.SearchQuery{Text: "recursion and loop", Limit: 10}

	// 只选了 CS101 的学生看不到 MATH200 的内容
	results, err := search.Search(ctx, registry.CollectionCourseContent, query, studentRequester(7, "CS101"))
	require.NoError(t, err)
	require.Len(t, results, 1)
	require.Equal(t, "cc-cs", results[0].DocumentID)

	// 未选任何课程的学生得到空结果而不是错误
	results, err = search.Search(ctx, registry.CollectionCourseContent, query, studentRequester(8))
	require.NoError(t, err)
	require.Empty(t, results)

	// 调用方过滤与访问控制合取：过滤自己没选的课程得到空结果
	results, err = search.Search(ctx, registry.CollectionCourseContent, model.SearchQuery{
		Text: "recursion", Limit: 10, Filters: map[string]interface{}{"course_id": "MATH200"},
	}, studentRequester(7, "CS101"))
	require.NoError(t, err)
	require.Empty(t, results)
}

func TestSearchUserPrivateIsolation(t *testing.T) {
	search, ingest, _ := newTestServices(t)
	ctx := context.Background()

	for _, owner := range []int{7, 8} {
		_, err := ingest.Ingest(ctx, registry.CollectionPersonalResource, model.IngestPayload{
			"owner_user_id": owner,
			"title":         "Algebra notes",
			"text":          "My personal algebra revision notes.",
		}, adminRequester())
		require.NoError(t, err)
	}

	results, err := search.Search(ctx, registry.CollectionPersonalResource, model.SearchQuery{
		Text: "algebra notes", Limit: 10,
	}, studentRequester(7))
	require.NoError(t, err)
	require.Len(t, results, 1)
	require.Equal(t, 7, int(results[0].Metadata["owner_user_id"].(float64)))
}

func TestIntegrityCheckRedaction(t *testing.T) {
	search, ingest, _ := newTestServices(t)
	ctx := context.Background()

	_, err := ingest.Ingest(ctx, registry.CollectionIntegrityCheck, model.IngestPayload{
		"id":            "iq-1",
		"course_id":     "CS101",
		"assignment_id": "a1",
		"question_id":   "q42",
		"text":          "Explain why plagiarism detection uses essay similarity.",
	}, adminRequester())
	require.NoError(t, err)

	results, err := search.Search(ctx, registry.CollectionIntegrityCheck, model.SearchQuery{
		Text: "essay plagiarism similarity", Limit: 5,
	}, &model.Requester{UserID: 3, Role: model.RoleTeacher, Courses: []string{"CS101"}})
	require.NoError(t, err)
	require.Len(t, results, 1)

	// 只暴露 question_id 与分数，原文与元数据不出边界
	require.Equal(t, "q42", results[0].QuestionID)
	require.Greater(t, results[0].Score, 0.0)
	require.Empty(t, results[0].DocumentID)
	require.Empty(t, results[0].Content)
	require.Nil(t, results[0].Metadata)
}

func TestSearchTieBreakByPriorityThenID(t *testing.T) {
	search, ingest, _ := newTestServices(t)
	ctx := context.Background()

	// 三条完全相同的可嵌入文本，分数必然打平
	ingestFAQ(t, ingest, "faq-b", "calculator exam", "calculator exam", true, 1)
	ingestFAQ(t, ingest, "faq-a", "calculator exam", "calculator exam", true, 1)
	ingestFAQ(t, ingest, "faq-high", "calculator exam", "calculator exam", true, 9)

	results, err := search.Search(ctx, registry.CollectionFAQ, model.SearchQuery{
		Text: "calculator exam", Limit: 10,
	}, studentRequester(7))
	require.NoError(t, err)
	require.Len(t, results, 3)
	// priority 降序优先，平 priority 时 id 升序
	require.Equal(t, "faq-high", results[0].DocumentID)
	require.Equal(t, "faq-a", results[1].DocumentID)
	require.Equal(t, "faq-b", results[2].DocumentID)
}

func TestSearchTruncatesToLimit(t *testing.T) {
	search, ingest, _ := newTestServices(t)
	ctx := context.Background()

	ingestFAQ(t, ingest, "f1", "exam calculator", "exam calculator answer", true, 0)
	ingestFAQ(t, ingest, "f2", "exam calculator", "exam calculator answer", true, 0)
	ingestFAQ(t, ingest, "f3", "exam calculator", "exam calculator answer", true, 0)

	results, err := search.Search(ctx, registry.CollectionFAQ, model.SearchQuery{
		Text: "exam calculator", Limit: 2,
	}, studentRequester(7))
	require.NoError(t, err)
	require.Len(t, results, 2)
}
