package rag

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Aman-CERP/amanrag/internal/embed"
	ragerrors "github.com/Aman-CERP/amanrag/internal/errors"
	"github.com/Aman-CERP/amanrag/internal/store"
)

// Service is the knowledge base. Mutations hold the write lock and the data
// directory's file lock while persisting; retrievals share the read lock.
type Service struct {
	mu sync.RWMutex

	opts     Options
	sel      *embed.Selection
	embedder embed.Embedder
	fitter   embed.Fitter // nil unless the embedder must be fit
	index    store.VectorIndex
	docs     *store.DocumentStore
	paths    store.Paths
	lock     *store.FileLock

	state      atomic.Int32
	consistent bool
	fitDocs    int
}

// New builds a service around an already selected embedder and loads any
// persisted state from opts.DataDir. Persisted state built with another
// embedder (fallback flag, model or dimension) is rejected.
func New(ctx context.Context, sel *embed.Selection, opts Options) (*Service, error) {
	if sel == nil || sel.Embedder == nil {
		return nil, ragerrors.New(ragerrors.ErrCodeNoEmbedder, "no embedder selected", nil)
	}
	if opts.DataDir == "" {
		return nil, ragerrors.ConfigError("data directory is required", nil)
	}
	if opts.IndexKind == "" {
		opts.IndexKind = store.IndexFlat
	}

	index, err := store.NewVectorIndex(opts.IndexKind, sel.Embedder.Dimensions())
	if err != nil {
		return nil, ragerrors.ConfigError("invalid vector index configuration", err)
	}

	paths := store.NewPaths(opts.DataDir, opts.IndexKind)
	s := &Service{
		opts:       opts,
		sel:        sel,
		embedder:   sel.Embedder,
		index:      index,
		docs:       store.NewDocumentStore(),
		paths:      paths,
		lock:       store.NewFileLock(paths.Lock),
		consistent: true,
	}
	if f, ok := sel.Fitter(); ok {
		s.fitter = f
	}

	if err := s.load(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

// load reads the three files. Missing files mean an empty knowledge base.
func (s *Service) load(ctx context.Context) error {
	s.setState(StateLoading)
	start := time.Now()

	if err := s.paths.EnsureDir(); err != nil {
		return ragerrors.New(ragerrors.ErrCodePersistFailed, "cannot create data directory", err).
			WithDetail("path", s.paths.Dir)
	}

	if !s.paths.Exists() {
		s.setState(StateReady)
		slog.Info("index_created",
			slog.String("data_dir", s.paths.Dir),
			slog.String("index_kind", string(s.index.Kind())),
			slog.String("model", s.embedder.ModelName()))
		return nil
	}

	meta, err := store.ReadMetadata(s.paths.Metadata)
	if err != nil {
		return err
	}
	if meta != nil {
		if err := s.checkCompatible(meta); err != nil {
			return err
		}
	}

	if err := s.docs.Load(s.paths.Docs); err != nil && ragerrors.GetCode(err) != ragerrors.ErrCodeFileNotFound {
		return err
	}
	// A kind switch makes the configured kind's file stale or absent; the
	// index is rebuilt from the documents below instead.
	kindChanged := meta != nil && meta.IndexKind != "" && meta.IndexKind != s.index.Kind()
	if !kindChanged {
		if err := s.index.Load(s.paths.Index); err != nil && ragerrors.GetCode(err) != ragerrors.ErrCodeFileNotFound {
			return err
		}
	}

	if s.fitter != nil && s.docs.Len() > 0 {
		n := s.docs.Len()
		if meta != nil && meta.FallbackFitDocs > 0 && meta.FallbackFitDocs <= n {
			n = meta.FallbackFitDocs
		} else {
			slog.Warn("fallback_fit_size_unknown",
				slog.Int("recorded", fitDocsOf(meta)),
				slog.Int("documents", n))
		}
		if err := s.fitter.Fit(s.docs.Texts()[:n]); err != nil {
			return ragerrors.Wrap(ragerrors.ErrCodeEmbeddingFailed, err)
		}
		s.fitDocs = n
	}

	if kindChanged {
		slog.Warn("index_kind_changed",
			slog.String("persisted", string(meta.IndexKind)),
			slog.String("configured", string(s.index.Kind())))
		if err := s.rebuild(ctx); err != nil {
			return err
		}
		if err := s.paths.RemoveStaleIndexes(); err != nil {
			slog.Warn("stale_index_remove_failed", slog.String("error", err.Error()))
		}
	} else if idx, docs := s.index.Count(), s.docs.Len(); idx != docs {
		if s.opts.RepairOnMismatch {
			if err := s.rebuild(ctx); err != nil {
				return err
			}
		} else {
			warn := ragerrors.ConsistencyWarning(idx, docs)
			slog.Warn("index_inconsistent", slog.Any("warning", ragerrors.FormatForLog(warn)))
			s.consistent = false
		}
	}

	s.setState(StateReady)
	slog.Info("index_loaded",
		slog.String("data_dir", s.paths.Dir),
		slog.Int("documents", s.docs.Len()),
		slog.Int("vectors", s.index.Count()),
		slog.String("index_kind", string(s.index.Kind())),
		slog.String("model", s.embedder.ModelName()),
		slog.Bool("use_fallback", s.sel.Fallback),
		slog.Bool("consistent", s.consistent),
		slog.Duration("duration", time.Since(start)))
	return nil
}

func fitDocsOf(m *store.Metadata) int {
	if m == nil {
		return 0
	}
	return m.FallbackFitDocs
}

// checkCompatible rejects persisted state from a different embedding space.
func (s *Service) checkCompatible(meta *store.Metadata) error {
	if meta.UseFallback != s.sel.Fallback {
		return ragerrors.New(ragerrors.ErrCodeModelMismatch,
			fmt.Sprintf("knowledge base was built with use_fallback=%t, active embedder has use_fallback=%t",
				meta.UseFallback, s.sel.Fallback), nil).
			WithDetail("persisted_model", meta.ModelName).
			WithDetail("active_model", s.embedder.ModelName()).
			WithSuggestion("Restore the original embedder or run 'amanrag clear'")
	}
	if meta.Dimension != 0 && meta.Dimension != s.embedder.Dimensions() {
		return ragerrors.New(ragerrors.ErrCodeDimensionMismatch,
			fmt.Sprintf("knowledge base has %d-dim vectors, active embedder produces %d",
				meta.Dimension, s.embedder.Dimensions()), nil).
			WithDetail("persisted_model", meta.ModelName).
			WithDetail("active_model", s.embedder.ModelName()).
			WithSuggestion("Restore the original embedder or run 'amanrag clear'")
	}
	if meta.ModelName != "" && meta.ModelName != s.embedder.ModelName() {
		return ragerrors.New(ragerrors.ErrCodeModelMismatch,
			fmt.Sprintf("knowledge base was built with %s, active embedder is %s",
				meta.ModelName, s.embedder.ModelName()), nil).
			WithSuggestion("Restore the original embedder or run 'amanrag clear'")
	}
	return nil
}

// rebuild re-embeds the whole document list into a fresh index.
func (s *Service) rebuild(ctx context.Context) error {
	texts := s.docs.Texts()
	slog.Warn("index_rebuild_started",
		slog.Int("vectors", s.index.Count()),
		slog.Int("documents", len(texts)))

	s.index.Reset()
	if len(texts) > 0 {
		if s.fitter != nil && !s.fitter.Fitted() {
			if err := s.fitter.Fit(texts); err != nil {
				return ragerrors.Wrap(ragerrors.ErrCodeEmbeddingFailed, err)
			}
			s.fitDocs = len(texts)
		}
		vecs, err := s.embedder.EmbedBatch(ctx, texts)
		if err != nil {
			return ragerrors.New(ragerrors.ErrCodeEmbeddingFailed, "failed to re-embed documents", err)
		}
		if err := s.index.Add(vecs); err != nil {
			return ragerrors.Wrap(ragerrors.ErrCodeIndexFailed, err)
		}
	}
	s.consistent = true
	return s.persist(ctx)
}

// AddDocument embeds and stores one text. An exact duplicate succeeds
// without changing anything. Failures after validation leave in-memory
// state as it was at the failure point.
func (s *Service) AddDocument(ctx context.Context, text string, metadata map[string]string) (AddResult, error) {
	if strings.TrimSpace(text) == "" {
		return AddResult{}, ragerrors.ValidationError("document text must be a non-empty string", nil)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.writable(); err != nil {
		return AddResult{}, err
	}
	if pos, ok := s.docs.Lookup(text); ok {
		slog.Debug("document_duplicate", slog.Int("position", pos))
		return AddResult{Duplicate: true, Position: pos, Total: s.docs.Len()}, nil
	}

	if err := s.ensureFitted([]string{text}); err != nil {
		return AddResult{}, err
	}

	vec, err := s.embedder.Embed(ctx, text)
	if err != nil {
		return AddResult{}, ragerrors.New(ragerrors.ErrCodeEmbeddingFailed, "failed to embed document", err)
	}
	if err := s.index.Add([][]float32{vec}); err != nil {
		return AddResult{}, ragerrors.Wrap(ragerrors.ErrCodeIndexFailed, err)
	}
	doc, _ := s.docs.Append(text, metadata)

	if err := s.persist(ctx); err != nil {
		return AddResult{}, err
	}

	slog.Info("document_added",
		slog.Int("position", doc.ID),
		slog.Int("total_docs", s.docs.Len()),
		slog.Int("chars", len(text)))
	return AddResult{Added: true, Position: doc.ID, Total: s.docs.Len()}, nil
}

// AddDocumentsBatch adds every non-empty text not already stored, with one
// embedding call. It returns the number added; on a persist failure it
// returns 0 and the error while the in-memory additions remain.
func (s *Service) AddDocumentsBatch(ctx context.Context, texts []string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.writable(); err != nil {
		return 0, err
	}

	seen := make(map[string]struct{}, len(texts))
	fresh := make([]string, 0, len(texts))
	for _, text := range texts {
		if strings.TrimSpace(text) == "" {
			continue
		}
		if _, ok := s.docs.Lookup(text); ok {
			continue
		}
		if _, ok := seen[text]; ok {
			continue
		}
		seen[text] = struct{}{}
		fresh = append(fresh, text)
	}
	if len(fresh) == 0 {
		return 0, nil
	}

	if err := s.ensureFitted(fresh); err != nil {
		return 0, err
	}

	vecs, err := s.embedder.EmbedBatch(ctx, fresh)
	if err != nil {
		return 0, ragerrors.New(ragerrors.ErrCodeEmbeddingFailed, "failed to embed documents", err)
	}
	if len(vecs) != len(fresh) {
		return 0, ragerrors.New(ragerrors.ErrCodeEmbeddingFailed,
			fmt.Sprintf("embedder returned %d vectors for %d texts", len(vecs), len(fresh)), nil)
	}
	if err := s.index.Add(vecs); err != nil {
		return 0, ragerrors.Wrap(ragerrors.ErrCodeIndexFailed, err)
	}
	for _, text := range fresh {
		s.docs.Append(text, nil)
	}

	if err := s.persist(ctx); err != nil {
		return 0, err
	}

	slog.Info("documents_added",
		slog.Int("added", len(fresh)),
		slog.Int("skipped", len(texts)-len(fresh)),
		slog.Int("total_docs", s.docs.Len()))
	return len(fresh), nil
}

// writable refuses mutations while the index and document store disagree
// on size: a new vector and its text would land at different positions.
// Retrieval keeps working. Clear or a restart with repair_on_mismatch
// recovers. Requires s.mu held.
func (s *Service) writable() error {
	if s.consistent {
		return nil
	}
	return ragerrors.ConsistencyWarning(s.index.Count(), s.docs.Len())
}

// ensureFitted fits the fallback embedder on the stored texts plus pending
// on first use. It never refits. Requires s.mu held.
func (s *Service) ensureFitted(pending []string) error {
	if s.fitter == nil || s.fitter.Fitted() {
		return nil
	}
	corpus := append(s.docs.Texts(), pending...)
	if err := s.fitter.Fit(corpus); err != nil {
		return ragerrors.Wrap(ragerrors.ErrCodeEmbeddingFailed, err)
	}
	s.fitDocs = len(corpus)
	slog.Info("fallback_fitted", slog.Int("corpus_docs", len(corpus)))
	return nil
}

// Retrieve returns up to k stored texts nearest to query. Hits whose
// distance is below threshold are dropped; threshold 0 keeps everything.
func (s *Service) Retrieve(ctx context.Context, query string, k int, threshold float32) (*RetrieveResult, error) {
	if strings.TrimSpace(query) == "" {
		return nil, ragerrors.New(ragerrors.ErrCodeQueryEmpty, "query must be a non-empty string", nil)
	}
	if k <= 0 {
		k = DefaultK
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.index.Count() == 0 || s.docs.Len() == 0 {
		return &RetrieveResult{Status: StatusInfo, Message: EmptyStoreMessage, Results: []Hit{}}, nil
	}

	qvec, err := s.embedder.Embed(ctx, query)
	if err != nil {
		return nil, ragerrors.New(ragerrors.ErrCodeEmbeddingFailed, "failed to embed query", err)
	}
	res, err := s.index.Search(qvec, k)
	if err != nil {
		return nil, ragerrors.Wrap(ragerrors.ErrCodeSearchFailed, err)
	}

	out := &RetrieveResult{Status: StatusSuccess, Results: make([]Hit, 0, len(res.Hits))}
	for _, h := range res.Hits {
		doc, ok := s.docs.Get(h.Position)
		if !ok {
			continue
		}
		if h.Distance < threshold {
			continue
		}
		out.Results = append(out.Results, Hit{
			Text:       doc.Text,
			Similarity: store.Similarity(h.Distance),
			Distance:   h.Distance,
			Rank:       len(out.Results) + 1,
			Position:   h.Position,
			Metadata:   doc.Metadata,
		})
	}

	slog.Debug("documents_retrieved",
		slog.Int("k", k),
		slog.Int("hits", len(out.Results)))
	return out, nil
}

// Stats returns a snapshot.
func (s *Service) Stats() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return Stats{
		TotalDocuments:     s.docs.Len(),
		EmbeddingDimension: s.embedder.Dimensions(),
		ModelName:          s.embedder.ModelName(),
		ModelType:          s.sel.Name,
		UseFallback:        s.sel.Fallback,
		IndexKind:          string(s.index.Kind()),
		IndexCount:         s.index.Count(),
		Consistent:         s.consistent,
		DataDir:            s.paths.Dir,
		IndexPath:          s.paths.Index,
		DocStorePath:       s.paths.Docs,
		MetadataPath:       s.paths.Metadata,
		State:              s.State().String(),
		FallbackRank:       s.fallbackRank(),
	}
}

// fallbackRank is the number of SVD components the fitted TF-IDF
// transform kept, 0 for model embedders or before the first fit.
func (s *Service) fallbackRank() int {
	if r, ok := s.fitter.(interface{ Rank() int }); ok {
		return r.Rank()
	}
	return 0
}

// Clear deletes the persisted files and empties the index, the document
// store and the fallback fit.
func (s *Service) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.lock.With(ctx, func() error {
		s.setState(StateLoading)
		defer s.setState(StateReady)

		removed := s.docs.Len()
		if err := s.paths.RemoveFiles(); err != nil {
			return ragerrors.New(ragerrors.ErrCodePersistFailed, "failed to delete knowledge base files", err)
		}
		s.index.Reset()
		s.docs.Reset()
		if s.fitter != nil {
			s.fitter.Reset()
		}
		s.fitDocs = 0
		s.consistent = true
		if c, ok := s.embedder.(*embed.CachedEmbedder); ok {
			c.Purge()
		}

		slog.Info("knowledge_base_cleared", slog.Int("removed_docs", removed))
		return nil
	})
}

// persist writes all three files under the data directory lock. Each file
// is replaced atomically; the set as a whole is not. Requires s.mu held.
func (s *Service) persist(ctx context.Context) error {
	if err := s.lock.Lock(ctx); err != nil {
		return err
	}
	defer func() {
		if err := s.lock.Unlock(); err != nil {
			slog.Warn("lock_release_failed", slog.String("error", err.Error()))
		}
	}()

	meta := &store.Metadata{
		TotalDocs:       s.docs.Len(),
		ModelName:       s.embedder.ModelName(),
		UseFallback:     s.sel.Fallback,
		Dimension:       s.embedder.Dimensions(),
		Provider:        s.sel.Name,
		IndexKind:       s.index.Kind(),
		FallbackFitDocs: s.fitDocs,
		UpdatedAt:       time.Now().UTC(),
	}

	var errs []error
	if err := s.index.Save(s.paths.Index); err != nil {
		errs = append(errs, err)
	}
	if err := s.docs.Save(s.paths.Docs); err != nil {
		errs = append(errs, err)
	}
	if err := store.WriteMetadata(s.paths.Metadata, meta); err != nil {
		errs = append(errs, err)
	}
	if len(errs) > 0 {
		return ragerrors.New(ragerrors.ErrCodePersistFailed, "failed to save knowledge base", stderrors.Join(errs...)).
			WithDetail("data_dir", s.paths.Dir)
	}
	return nil
}

// State returns the lifecycle state.
func (s *Service) State() State {
	return State(s.state.Load())
}

func (s *Service) setState(st State) {
	s.state.Store(int32(st))
}

// Selection returns the embedder selection the service runs on.
func (s *Service) Selection() *embed.Selection {
	return s.sel
}

// Close releases the embedder.
func (s *Service) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.embedder.Close()
}
