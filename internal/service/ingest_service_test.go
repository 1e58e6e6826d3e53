package service

import (
	"context"
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"study-indexer-go/internal/model"
	"study-indexer-go/internal/registry"
	"study-indexer-go/pkg/errs"
	"study-indexer-go/pkg/vectorstore"
)

func TestIngestGeneratesIDWhenAbsent(t *testing.T) {
	_, ingest, repo := newTestServices(t)
	ctx := context.Background()

	docID, err := ingest.Ingest(ctx, registry.CollectionFAQ, model.IngestPayload{
		"question":     "How do I reset my password?",
		"answer":       "Use the reset link.",
		"category":     "account",
		"is_published": true,
	}, adminRequester())
	require.NoError(t, err)
	_, parseErr := uuid.Parse(docID)
	require.NoError(t, parseErr)

	record, err := repo.FindByDocID(registry.CollectionFAQ, docID)
	require.NoError(t, err)
	require.NotNil(t, record)
	require.Equal(t, "QUESTION: How do I reset my password?\nANSWER: Use the reset link.", record.EmbeddableText)
	require.Equal(t, "fake-embedder-v1", record.ModelVersion)
}

func TestIngestWithExistingIDOverwrites(t *testing.T) {
	search, ingest, repo := newTestServices(t)
	ctx := context.Background()

	ingestFAQ(t, ingest, "faq-1", "Can I use a calculator in the exam?", "Yes.", true, 0)
	// 同 ID 重写：重新合成、重新向量化、整体覆盖
	ingestFAQ(t, ingest, "faq-1", "How do I reset my password?", "Use the reset link.", true, 0)

	records, err := repo.FindAllByCollection(registry.CollectionFAQ)
	require.NoError(t, err)
	require.Len(t, records, 1)
	require.Contains(t, records[0].EmbeddableText, "password")

	// 旧文本不再命中，新文本立即可检索
	results, err := search.Search(ctx, registry.CollectionFAQ, model.SearchQuery{
		Text: "calculator exam", Limit: 5, MinScore: 0.5,
	}, studentRequester(7))
	require.NoError(t, err)
	require.Empty(t, results)

	results, err = search.Search(ctx, registry.CollectionFAQ, model.SearchQuery{
		Text: "reset password", Limit: 5, MinScore: 0.5,
	}, studentRequester(7))
	require.NoError(t, err)
	require.Len(t, results, 1)
	require.Equal(t, "faq-1", results[0].DocumentID)
}

func TestIngestValidation(t *testing.T) {
	_, ingest, _ := newTestServices(t)
	ctx := context.Background()

	_, err := ingest.Ingest(ctx, "nonexistent", model.IngestPayload{}, adminRequester())
	require.ErrorIs(t, err, errs.ErrUnknownCollection)

	_, err = ingest.Ingest(ctx, registry.CollectionFAQ, model.IngestPayload{
		"question": "incomplete",
	}, adminRequester())
	require.ErrorIs(t, err, errs.ErrValidation)

	// id 必须是非空字符串
	_, err = ingest.Ingest(ctx, registry.CollectionFAQ, model.IngestPayload{
		"id":           "  ",
		"question":     "q",
		"answer":       "a",
		"category":     "c",
		"is_published": true,
	}, adminRequester())
	require.ErrorIs(t, err, errs.ErrValidation)
}

func TestIngestOwnerPolicyEnforced(t *testing.T) {
	_, ingest, _ := newTestServices(t)
	ctx := context.Background()

	// 学生不能写别人的个人资料
	_, err := ingest.Ingest(ctx, registry.CollectionPersonalResource, model.IngestPayload{
		"owner_user_id": 99,
		"text":          "notes",
	}, studentRequester(7))
	require.ErrorIs(t, err, errs.ErrAccessDenied)

	// 写自己的可以
	_, err = ingest.Ingest(ctx, registry.CollectionPersonalResource, model.IngestPayload{
		"owner_user_id": 7,
		"text":          "notes",
	}, studentRequester(7))
	require.NoError(t, err)
}

func TestDeleteIdempotent(t *testing.T) {
	search, ingest, repo := newTestServices(t)
	ctx := context.Background()

	ingestFAQ(t, ingest, "faq-del", "Can I use a calculator?", "Yes.", true, 0)

	require.NoError(t, ingest.Delete(ctx, registry.CollectionFAQ, "faq-del", adminRequester()))
	// 重复删除与删除不存在的 ID 都成功
	require.NoError(t, ingest.Delete(ctx, registry.CollectionFAQ, "faq-del", adminRequester()))
	require.NoError(t, ingest.Delete(ctx, registry.CollectionFAQ, "never-existed", adminRequester()))

	record, err := repo.FindByDocID(registry.CollectionFAQ, "faq-del")
	require.NoError(t, err)
	require.Nil(t, record)

	results, err := search.Search(ctx, registry.CollectionFAQ, model.SearchQuery{
		Text: "calculator", Limit: 5,
	}, studentRequester(7))
	require.NoError(t, err)
	require.Empty(t, results)

	// 空 ID 与未知集合仍然报错
	require.ErrorIs(t, ingest.Delete(ctx, registry.CollectionFAQ, "  ", adminRequester()), errs.ErrValidation)
	require.ErrorIs(t, ingest.Delete(ctx, "nonexistent", "x", adminRequester()), errs.ErrUnknownCollection)
}

func TestDeletePersonalResourceRequiresOwner(t *testing.T) {
	search, ingest, _ := newTestServices(t)
	ctx := context.Background()

	docID, err := ingest.Ingest(ctx, registry.CollectionPersonalResource, model.IngestPayload{
		"owner_user_id": 7,
		"title":         "Essay notes",
		"text":          "essay deadline checklist",
	}, studentRequester(7))
	require.NoError(t, err)

	// 无请求者上下文与他人的删除请求都被拒绝
	require.ErrorIs(t, ingest.Delete(ctx, registry.CollectionPersonalResource, docID, nil), errs.ErrAccessDenied)
	require.ErrorIs(t, ingest.Delete(ctx, registry.CollectionPersonalResource, docID, studentRequester(8)), errs.ErrAccessDenied)

	// 文档对所有者仍然可见
	results, err := search.Search(ctx, registry.CollectionPersonalResource, model.SearchQuery{
		Text: "essay deadline", Limit: 5, MinScore: 0.3,
	}, studentRequester(7))
	require.NoError(t, err)
	require.Len(t, results, 1)
	require.Equal(t, docID, results[0].DocumentID)

	// 所有者本人可以删除
	require.NoError(t, ingest.Delete(ctx, registry.CollectionPersonalResource, docID, studentRequester(7)))
	results, err = search.Search(ctx, registry.CollectionPersonalResource, model.SearchQuery{
		Text: "essay deadline", Limit: 5,
	}, studentRequester(7))
	require.NoError(t, err)
	require.Empty(t, results)
}

func TestDeleteCourseContentAdminOnly(t *testing.T) {
	_, ingest, repo := newTestServices(t)
	ctx := context.Background()

	docID, err := ingest.Ingest(ctx, registry.CollectionCourseContent, model.IngestPayload{
		"id":        "cs101_week3_chunk_0",
		"course_id": "cs101",
		"week_id":   "week3",
		"text":      "recursion and loop invariants",
	}, adminRequester())
	require.NoError(t, err)

	// 选课学生也不能删除课程内容，分块 ID 可预测不构成授权
	require.ErrorIs(t, ingest.Delete(ctx, registry.CollectionCourseContent, docID, studentRequester(7, "cs101")), errs.ErrAccessDenied)
	record, err := repo.FindByDocID(registry.CollectionCourseContent, docID)
	require.NoError(t, err)
	require.NotNil(t, record)

	require.NoError(t, ingest.Delete(ctx, registry.CollectionCourseContent, docID, adminRequester()))
	record, err = repo.FindByDocID(registry.CollectionCourseContent, docID)
	require.NoError(t, err)
	require.Nil(t, record)
}

// failingStore 包装真实存储，可让 Upsert 按开关失败。
type failingStore struct {
	vectorstore.Store
	failUpsert bool
}

func (f *failingStore) Upsert(ctx context.Context, collection string, record vectorstore.Record) error {
	if f.failUpsert {
		return fmt.Errorf("%w: upsert rejected", errs.ErrVectorStoreUnavailable)
	}
	return f.Store.Upsert(ctx, collection, record)
}

func TestIngestStoreFailureLeavesCatalogUntouched(t *testing.T) {
	reg := registry.New()
	inner, err := vectorstore.NewChromemStore("")
	require.NoError(t, err)
	for _, def := range reg.All() {
		require.NoError(t, inner.EnsureCollection(context.Background(), def.Schema(len(fakeVocabulary)+1)))
	}
	store := &failingStore{Store: inner}
	repo := newMemoryDocRepo()
	ingest := NewIngestService(reg, fakeEmbedder{}, store, repo)
	ctx := context.Background()

	// 新文档写入失败时底账不得出现记录，否则全量重建会把失败的写入带上线
	store.failUpsert = true
	_, err = ingest.Ingest(ctx, registry.CollectionFAQ, model.IngestPayload{
		"id":           "faq-atomic",
		"question":     "Can I use a calculator?",
		"answer":       "Yes.",
		"category":     "exam",
		"is_published": true,
	}, adminRequester())
	require.ErrorIs(t, err, errs.ErrVectorStoreUnavailable)
	record, err := repo.FindByDocID(registry.CollectionFAQ, "faq-atomic")
	require.NoError(t, err)
	require.Nil(t, record)

	// 覆盖写失败时底账保留旧文本
	store.failUpsert = false
	ingestFAQ(t, ingest, "faq-atomic", "Can I use a calculator?", "Yes.", true, 0)
	store.failUpsert = true
	_, err = ingest.Ingest(ctx, registry.CollectionFAQ, model.IngestPayload{
		"id":           "faq-atomic",
		"question":     "How do I reset my password?",
		"answer":       "Use the reset link.",
		"category":     "account",
		"is_published": true,
	}, adminRequester())
	require.ErrorIs(t, err, errs.ErrVectorStoreUnavailable)
	record, err = repo.FindByDocID(registry.CollectionFAQ, "faq-atomic")
	require.NoError(t, err)
	require.NotNil(t, record)
	require.Contains(t, record.EmbeddableText, "calculator")
}

func TestReindexCollection(t *testing.T) {
	search, ingest, repo := newTestServices(t)
	ctx := context.Background()

	ingestFAQ(t, ingest, "faq-1", "Can I use a calculator in the exam?", "Yes.", true, 0)
	ingestFAQ(t, ingest, "faq-2", "How do I reset my password?", "Use the reset link.", true, 0)

	count, err := ingest.ReindexCollection(ctx, registry.CollectionFAQ)
	require.NoError(t, err)
	require.Equal(t, 2, count)

	// 重建后检索行为不变
	results, err := search.Search(ctx, registry.CollectionFAQ, model.SearchQuery{
		Text: "calculator exam", Limit: 5, MinScore: 0.5,
	}, studentRequester(7))
	require.NoError(t, err)
	require.Len(t, results, 1)
	require.Equal(t, "faq-1", results[0].DocumentID)

	records, err := repo.FindAllByCollection(registry.CollectionFAQ)
	require.NoError(t, err)
	for _, record := range records {
		require.Equal(t, "fake-embedder-v1", record.ModelVersion)
	}

	// 空集合重建返回 0
	count, err = ingest.ReindexCollection(ctx, registry.CollectionCourseGuide)
	require.NoError(t, err)
	require.Zero(t, count)
}
