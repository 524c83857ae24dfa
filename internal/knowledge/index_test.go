package knowledge

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestIndex(t *testing.T) *Index {
	t.Helper()
	idx, err := NewIndex(DefaultConfig(), zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { idx.Close() })
	return idx
}

func TestAddAndSearch(t *testing.T) {
	idx := newTestIndex(t)
	ctx := context.Background()

	require.NoError(t, idx.AddDocument("goroutines", "Goroutines are lightweight threads managed by the Go runtime. Use channels to communicate between goroutines."))
	require.NoError(t, idx.AddDocument("channels", "Channels provide typed communication between goroutines. Buffered channels decouple sender and receiver."))
	require.NoError(t, idx.AddDocument("cooking", "Slow roasting brings out flavor in root vegetables."))

	results, err := idx.Search(ctx, "goroutines channels", 5)
	require.NoError(t, err)
	require.NotEmpty(t, results)

	for _, r := range results {
		assert.NotEqual(t, "cooking", r.Title)
		assert.Greater(t, r.Score, 0.0)
		assert.NotEmpty(t, r.Snippet)
	}
}

func TestSearchLimitsResults(t *testing.T) {
	idx := newTestIndex(t)
	ctx := context.Background()

	require.NoError(t, idx.AddDocument("doc-a", "database connection pooling"))
	require.NoError(t, idx.AddDocument("doc-b", "database index tuning"))
	require.NoError(t, idx.AddDocument("doc-c", "database replication setup"))

	results, err := idx.Search(ctx, "database", 2)
	require.NoError(t, err)
	assert.LessOrEqual(t, len(results), 2)
}

func TestSearchEmptyQuery(t *testing.T) {
	idx := newTestIndex(t)

	results, err := idx.Search(context.Background(), "   ", 5)
	require.NoError(t, err)
	assert.Nil(t, results)
}

func TestAddDocumentValidation(t *testing.T) {
	idx := newTestIndex(t)
	assert.Error(t, idx.AddDocument("", "body"))
}

func TestReAddReplacesDocument(t *testing.T) {
	idx := newTestIndex(t)

	require.NoError(t, idx.AddDocument("doc", "first version"))
	require.NoError(t, idx.AddDocument("doc", "second version"))

	count, err := idx.Count()
	require.NoError(t, err)
	assert.Equal(t, uint64(1), count)
}

func TestSnippetTruncation(t *testing.T) {
	long := ""
	for i := 0; i < 100; i++ {
		long += "word "
	}
	s := snippet(long, 50)
	assert.LessOrEqual(t, len(s), 54)
	assert.Contains(t, s, "...")

	assert.Equal(t, "short", snippet("short", 50))
}
