package retrieval

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// keywordEmbedder maps text onto a tiny bag-of-words space so similarity is
// predictable in tests.
type keywordEmbedder struct {
	mu         sync.Mutex
	vocabulary []string
	docCalls   int
	queryCalls int
	embedded   int
	err        error
}

func (e *keywordEmbedder) vector(text string) []float32 {
	text = strings.ToLower(text)
	v := make([]float32, len(e.vocabulary))
	for i, word := range e.vocabulary {
		v[i] = float32(strings.Count(text, word))
	}
	return v
}

func (e *keywordEmbedder) EmbedDocuments(_ context.Context, texts []string) ([][]float32, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.docCalls++
	if e.err != nil {
		return nil, e.err
	}
	e.embedded += len(texts)
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = e.vector(t)
	}
	return out, nil
}

func (e *keywordEmbedder) EmbedQuery(_ context.Context, text string) ([]float32, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.queryCalls++
	return e.vector(text), nil
}

func (e *keywordEmbedder) Model() string { return "keywords" }

func newKeywordEmbedder() *keywordEmbedder {
	return &keywordEmbedder{vocabulary: []string{"software", "nurse", "welder", "data", "teacher", "truck"}}
}

var nocCorpus = []string{
	"21232 Software developers and programmers write software code",
	"31301 Registered nurses and registered psychiatric nurses",
	"72106 Welders and related machine operators",
	"21211 Data scientists analyse data with software",
	"41220 Secondary school teacher",
	"73300 Transport truck drivers",
	"21231 Software engineers and designers design software systems",
}

func TestSearchRanksBySimilarity(t *testing.T) {
	emb := newKeywordEmbedder()
	idx, err := Build(context.Background(), nocCorpus, emb, nil, BuildConfig{BatchSize: 2, Workers: 3}, zap.NewNop())
	require.NoError(t, err)
	require.Equal(t, len(nocCorpus), idx.Len())

	results, err := idx.Search(context.Background(), "Software Developer", 2)
	require.NoError(t, err)
	require.Len(t, results, 2)
	for _, r := range results {
		assert.Contains(t, strings.ToLower(r), "software")
	}
	assert.True(t, strings.HasPrefix(results[0], "21231") || strings.HasPrefix(results[0], "21232"))
}

func TestSearchNeverReturnsMoreThanK(t *testing.T) {
	idx, err := Build(context.Background(), nocCorpus, newKeywordEmbedder(), nil, BuildConfig{}, nil)
	require.NoError(t, err)

	for _, k := range []int{1, 5, 100} {
		results, err := idx.Search(context.Background(), "software nurse welder", k)
		require.NoError(t, err)
		assert.LessOrEqual(t, len(results), k)
		assert.LessOrEqual(t, len(results), len(nocCorpus))
	}
}

func TestSearchEmptyInputs(t *testing.T) {
	emb := newKeywordEmbedder()

	empty, err := Build(context.Background(), nil, emb, nil, BuildConfig{}, nil)
	require.NoError(t, err)

	results, err := empty.Search(context.Background(), "software", 5)
	require.NoError(t, err)
	assert.NotNil(t, results)
	assert.Empty(t, results)

	idx, err := Build(context.Background(), nocCorpus, emb, nil, BuildConfig{}, nil)
	require.NoError(t, err)

	results, err = idx.Search(context.Background(), "   ", 5)
	require.NoError(t, err)
	assert.Empty(t, results)

	results, err = idx.Search(context.Background(), "software", 0)
	require.NoError(t, err)
	assert.Empty(t, results)

	assert.Equal(t, 0, emb.queryCalls)
}

func TestBuildPropagatesEmbedderError(t *testing.T) {
	emb := newKeywordEmbedder()
	emb.err = errors.New("quota")

	_, err := Build(context.Background(), nocCorpus, emb, nil, BuildConfig{BatchSize: 3}, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "quota")
}

func TestBuildReusesStore(t *testing.T) {
	ctx := context.Background()
	store, err := OpenStore(ctx, filepath.Join(t.TempDir(), "cache", "embeddings.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	first := newKeywordEmbedder()
	_, err = Build(ctx, nocCorpus, first, store, BuildConfig{BatchSize: 4}, nil)
	require.NoError(t, err)
	assert.Equal(t, len(nocCorpus), first.embedded)

	second := newKeywordEmbedder()
	extended := append(append([]string(nil), nocCorpus...), "62020 Food service supervisors")
	idx, err := Build(ctx, extended, second, store, BuildConfig{BatchSize: 4}, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, second.embedded)
	assert.Equal(t, len(extended), idx.Len())

	results, err := idx.Search(ctx, "truck", 1)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.True(t, strings.HasPrefix(results[0], "73300"))
}

func TestStoreRoundTripsVectors(t *testing.T) {
	ctx := context.Background()
	store, err := OpenStore(ctx, filepath.Join(t.TempDir(), "embeddings.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	in := map[string][]float32{"a": {0.25, -1.5, 3}, "b": {1}}
	require.NoError(t, store.Save(ctx, "m1", in))

	out, err := store.Load(ctx, "m1")
	require.NoError(t, err)
	assert.Equal(t, in, out)

	other, err := store.Load(ctx, "m2")
	require.NoError(t, err)
	assert.Empty(t, other)
}

func TestSplitRespectsChunkSize(t *testing.T) {
	para := strings.Repeat("x", 300)
	text := strings.Join([]string{para, para, para, para}, "\n\n")

	chunks := Split(text, 1000)
	require.Len(t, chunks, 2)
	assert.Equal(t, 3*300+2*2, len(chunks[0]))
	assert.Equal(t, para, chunks[1])

	for _, c := range chunks {
		assert.LessOrEqual(t, len([]rune(c)), 1000)
	}
}

func TestSplitCutsOversizedParagraphs(t *testing.T) {
	text := strings.Repeat("é", 2500)
	chunks := Split(text, 1000)
	require.Len(t, chunks, 3)
	assert.Equal(t, 1000, len([]rune(chunks[0])))
	assert.Equal(t, 500, len([]rune(chunks[2])))
	assert.Equal(t, text, strings.Join(chunks, ""))
}

func TestSplitNoOverlapAndSkipsBlank(t *testing.T) {
	text := "alpha\n\n\n\n  \n\nbeta\n\ngamma"
	chunks := Split(text, 11)
	assert.Equal(t, []string{"alpha\n\nbeta", "gamma"}, chunks)
	assert.Empty(t, Split("   \n\n  ", 1000))
}

func TestLoadDocument(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nocs.txt")
	require.NoError(t, os.WriteFile(path, []byte("page one\r\n\r\nmore\fpage two"), 0o600))

	pages, err := LoadDocument(path)
	require.NoError(t, err)
	require.Len(t, pages, 2)
	assert.Equal(t, []string{"page one\n\nmore", "page two"}, SplitPages(pages, 1000))
	assert.Len(t, Split(strings.Join(pages, "\n\n"), 1000), 1, "without the form feed both pages merge")

	_, err = LoadDocument(filepath.Join(t.TempDir(), "missing.txt"))
	assert.ErrorIs(t, err, ErrDocumentUnavailable)

	_, err = LoadDocument("")
	assert.ErrorIs(t, err, ErrDocumentUnavailable)
}

func TestBuildFromDocumentMissingFileIsFatal(t *testing.T) {
	_, err := BuildFromDocument(context.Background(), Options{Document: "/nonexistent/nocs.txt"}, newKeywordEmbedder(), nil)
	assert.ErrorIs(t, err, ErrDocumentUnavailable)
}
