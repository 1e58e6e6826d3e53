package vectorstore

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func newTestChromemStore(t *testing.T) *ChromemStore {
	t.Helper()
	store, err := NewChromemStore("") // 纯内存模式
	require.NoError(t, err)
	require.NoError(t, store.EnsureCollection(context.Background(), CollectionSchema{
		Name: "test_collection",
		Dims: 3,
	}))
	return store
}

func upsertTestDoc(t *testing.T, store *ChromemStore, id string, vector []float32, meta map[string]interface{}) {
	t.Helper()
	err := store.Upsert(context.Background(), "test_collection", Record{
		ID:           id,
		Text:         "text of " + id,
		Vector:       vector,
		Metadata:     meta,
		ModelVersion: "test-model-v1",
	})
	require.NoError(t, err)
}

func TestChromemStoreQueryOrdersByDistance(t *testing.T) {
	store := newTestChromemStore(t)

	// 单位向量，余弦相似度即点积
	upsertTestDoc(t, store, "exact", []float32{1, 0, 0}, map[string]interface{}{"course_id": "CS101"})
	upsertTestDoc(t, store, "near", []float32{0.6, 0.8, 0}, map[string]interface{}{"course_id": "CS101"})
	upsertTestDoc(t, store, "far", []float32{0, 1, 0}, map[string]interface{}{"course_id": "CS101"})

	hits, err := store.Query(context.Background(), "test_collection", []float32{1, 0, 0}, Filter{}, 3)
	require.NoError(t, err)
	require.Len(t, hits, 3)
	require.Equal(t, "exact", hits[0].ID)
	require.Equal(t, "near", hits[1].ID)
	require.Equal(t, "far", hits[2].ID)

	// 距离契约：[0,1]，0 为完全一致
	require.InDelta(t, 0.0, hits[0].Distance, 1e-4)
	require.InDelta(t, 0.4, hits[1].Distance, 1e-4)
	require.Greater(t, hits[2].Distance, hits[1].Distance)
	for _, h := range hits {
		require.GreaterOrEqual(t, h.Distance, 0.0)
		require.LessOrEqual(t, h.Distance, 1.0)
	}
}

func TestChromemStoreQueryAppliesFilter(t *testing.T) {
	store := newTestChromemStore(t)

	upsertTestDoc(t, store, "cs", []float32{1, 0, 0}, map[string]interface{}{"course_id": "CS101"})
	upsertTestDoc(t, store, "math", []float32{1, 0, 0}, map[string]interface{}{"course_id": "MATH200"})

	f := Filter{}
	f.In("course_id", []interface{}{"MATH200"})
	hits, err := store.Query(context.Background(), "test_collection", []float32{1, 0, 0}, f, 10)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	require.Equal(t, "math", hits[0].ID)
	require.Equal(t, "MATH200", hits[0].Metadata["course_id"])
}

func TestChromemStoreQueryTruncatesToTopK(t *testing.T) {
	store := newTestChromemStore(t)
	upsertTestDoc(t, store, "a", []float32{1, 0, 0}, nil)
	upsertTestDoc(t, store, "b", []float32{0.6, 0.8, 0}, nil)
	upsertTestDoc(t, store, "c", []float32{0, 1, 0}, nil)

	hits, err := store.Query(context.Background(), "test_collection", []float32{1, 0, 0}, Filter{}, 2)
	require.NoError(t, err)
	require.Len(t, hits, 2)
}

func TestChromemStoreUpsertOverwrites(t *testing.T) {
	store := newTestChromemStore(t)
	upsertTestDoc(t, store, "doc", []float32{1, 0, 0}, map[string]interface{}{"week_id": "w1"})
	upsertTestDoc(t, store, "doc", []float32{0, 1, 0}, map[string]interface{}{"week_id": "w2"})

	hits, err := store.Query(context.Background(), "test_collection", []float32{0, 1, 0}, Filter{}, 10)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	require.Equal(t, "doc", hits[0].ID)
	require.InDelta(t, 0.0, hits[0].Distance, 1e-4)
	require.Equal(t, "w2", hits[0].Metadata["week_id"])
}

func TestChromemStoreDeleteIdempotent(t *testing.T) {
	store := newTestChromemStore(t)
	upsertTestDoc(t, store, "doc", []float32{1, 0, 0}, nil)

	ctx := context.Background()
	require.NoError(t, store.Delete(ctx, "test_collection", "doc"))
	// 再删一次以及删除不存在的集合都不报错
	require.NoError(t, store.Delete(ctx, "test_collection", "doc"))
	require.NoError(t, store.Delete(ctx, "no_such_collection", "doc"))

	hits, err := store.Query(ctx, "test_collection", []float32{1, 0, 0}, Filter{}, 10)
	require.NoError(t, err)
	require.Empty(t, hits)
}

func TestChromemStoreQueryEmptyCollection(t *testing.T) {
	store := newTestChromemStore(t)
	hits, err := store.Query(context.Background(), "test_collection", []float32{1, 0, 0}, Filter{}, 5)
	require.NoError(t, err)
	require.Empty(t, hits)
}
