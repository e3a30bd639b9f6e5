package retrieval

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/spigell/crs-roadmap/internal/ai"
	"github.com/spigell/crs-roadmap/internal/utils"
)

const (
	defaultBatchSize = 50
	defaultWorkers   = 4
)

// BuildConfig controls how the corpus is embedded.
type BuildConfig struct {
	// BatchSize is the number of chunks sent per embedding request.
	BatchSize int
	// Workers bounds concurrent embedding requests.
	Workers int
	// RequestsPerSecond paces embedding requests. Zero means unlimited.
	RequestsPerSecond float64
}

// Build embeds chunks and returns the resulting index. Vectors already present
// in store (which may be nil) are reused and fresh ones are written back.
func Build(ctx context.Context, chunks []string, embedder ai.Embedder, store *Store, cfg BuildConfig, logger *zap.Logger) (*Index, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	batchSize := cfg.BatchSize
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}
	workers := cfg.Workers
	if workers <= 0 {
		workers = defaultWorkers
	}

	limiter := rate.NewLimiter(rate.Inf, 1)
	if cfg.RequestsPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), 1)
	}

	model := embedder.Model()
	hashes := make([]string, len(chunks))
	for i, c := range chunks {
		hashes[i] = utils.Fingerprint(c)
	}

	cached := map[string][]float32{}
	if store != nil {
		var err error
		cached, err = store.Load(ctx, model)
		if err != nil {
			return nil, fmt.Errorf("load embedding cache: %w", err)
		}
	}

	vectors := make([][]float32, len(chunks))
	var missing []int
	for i, h := range hashes {
		if v, ok := cached[h]; ok {
			vectors[i] = v
			continue
		}
		missing = append(missing, i)
	}

	logger.Info("building retrieval index",
		zap.Int("chunks", len(chunks)),
		zap.Int("cached", len(chunks)-len(missing)),
		zap.Int("to_embed", len(missing)),
	)

	var (
		mu    sync.Mutex
		fresh = make(map[string][]float32, len(missing))
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)

	for start := 0; start < len(missing); start += batchSize {
		batch := missing[start:min(start+batchSize, len(missing))]

		g.Go(func() error {
			if err := limiter.Wait(gctx); err != nil {
				return err
			}

			texts := make([]string, len(batch))
			for i, pos := range batch {
				texts[i] = chunks[pos]
			}

			embedded, err := embedder.EmbedDocuments(gctx, texts)
			if err != nil {
				return fmt.Errorf("embed chunks %d-%d: %w", batch[0], batch[len(batch)-1], err)
			}
			if len(embedded) != len(batch) {
				return fmt.Errorf("embedder returned %d vectors for %d chunks", len(embedded), len(batch))
			}

			mu.Lock()
			defer mu.Unlock()
			for i, pos := range batch {
				vectors[pos] = embedded[i]
				fresh[hashes[pos]] = embedded[i]
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	if store != nil {
		if err := store.Save(ctx, model, fresh); err != nil {
			logger.Warn("saving embeddings to cache failed", zap.Error(err))
		}
	}

	return NewIndex(chunks, vectors, embedder)
}

// Options bundles everything needed to build the index from a document.
type Options struct {
	Document  string
	ChunkSize int
	CacheDB   string
	Build     BuildConfig
}

// BuildFromDocument loads and chunks the reference document and builds the
// index. Any failure here is fatal for the process.
func BuildFromDocument(ctx context.Context, opts Options, embedder ai.Embedder, logger *zap.Logger) (*Index, error) {
	pages, err := LoadDocument(opts.Document)
	if err != nil {
		return nil, err
	}

	chunks := SplitPages(pages, opts.ChunkSize)

	var store *Store
	if opts.CacheDB != "" {
		store, err = OpenStore(ctx, opts.CacheDB)
		if err != nil {
			return nil, err
		}
		defer store.Close()
	}

	return Build(ctx, chunks, embedder, store, opts.Build, logger)
}
