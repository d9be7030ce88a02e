// Package kb implements the retrieval knowledge base: a named collection of
// text chunks and their embeddings, persisted as one snapshot file per base
// and searchable by cosine similarity.
package kb

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/finlens-ai/finlens/internal/chunker"
	"github.com/finlens-ai/finlens/internal/domain"
	"github.com/finlens-ai/finlens/internal/port"
	"github.com/finlens-ai/finlens/internal/textnorm"
)

// Options tunes how a knowledge base is built.
type Options struct {
	TokenLimit  int // chunk token budget
	MaxChars    int // document length bound before chunking
	HeadChars   int // head retained by the length bound
	DefaultYear int // metadata fallback year
	BatchSize   int // chunks per embedding request
}

func (o Options) withDefaults() Options {
	if o.TokenLimit <= 0 {
		o.TokenLimit = chunker.DefaultTokenLimit
	}
	if o.MaxChars <= 0 {
		o.MaxChars = 35000
	}
	if o.HeadChars <= 0 {
		o.HeadChars = 20000
	}
	if o.BatchSize <= 0 {
		o.BatchSize = 32
	}
	return o
}

// KnowledgeBase owns the chunks, embeddings and metadata of one source
// document. Chunks and embeddings are parallel slices and are only ever
// replaced together.
type KnowledgeBase struct {
	name      string
	dir       string
	ai        port.AIProvider
	extractor port.TextExtractor
	opts      Options

	mu         sync.RWMutex
	chunks     []string
	embeddings [][]float32
	meta       domain.Metadata
	built      bool
}

type snapshot struct {
	Chunks     []string        `json:"chunks"`
	Embeddings [][]float32     `json:"embeddings"`
	Metadata   domain.Metadata `json:"metadata"`
}

// New creates an unbuilt knowledge base whose snapshot lives under dir.
func New(name, dir string, ai port.AIProvider, extractor port.TextExtractor, opts Options) *KnowledgeBase {
	return &KnowledgeBase{
		name:      name,
		dir:       dir,
		ai:        ai,
		extractor: extractor,
		opts:      opts.withDefaults(),
	}
}

// Name returns the base's registry name.
func (kb *KnowledgeBase) Name() string { return kb.name }

// Built reports whether the base holds a searchable chunk set.
func (kb *KnowledgeBase) Built() bool {
	kb.mu.RLock()
	defer kb.mu.RUnlock()
	return kb.built
}

// ChunkCount returns the number of stored chunks.
func (kb *KnowledgeBase) ChunkCount() int {
	kb.mu.RLock()
	defer kb.mu.RUnlock()
	return len(kb.chunks)
}

// Metadata returns the provenance record of the built base.
func (kb *KnowledgeBase) Metadata() domain.Metadata {
	kb.mu.RLock()
	defer kb.mu.RUnlock()
	return kb.meta
}

// SnapshotPath returns the location of the persisted snapshot.
func (kb *KnowledgeBase) SnapshotPath() string {
	return filepath.Join(kb.dir, kb.name+"_embeddings.json")
}

// Build populates the base from sourcePath. Without forceRebuild it first
// tries the persisted snapshot, in which case no extraction or embedding
// happens at all. Otherwise the document is extracted once, normalized,
// chunked, embedded in order and the resulting triple persisted, replacing
// any prior snapshot.
func (kb *KnowledgeBase) Build(ctx context.Context, sourcePath string, forceRebuild bool) error {
	kb.mu.Lock()
	defer kb.mu.Unlock()

	if !forceRebuild {
		loaded, err := kb.loadSnapshot()
		if err != nil {
			slog.Warn("snapshot unreadable, rebuilding", "name", kb.name, "error", err)
		}
		if loaded {
			slog.Info("knowledge base loaded from snapshot",
				"name", kb.name, "chunks", len(kb.chunks))
			return nil
		}
	}

	raw, err := kb.extractor.ExtractText(ctx, sourcePath)
	if err != nil {
		return fmt.Errorf("extract %s: %w", sourcePath, err)
	}
	text := textnorm.Clean(raw)
	if text == "" {
		return fmt.Errorf("%s: %w", sourcePath, port.ErrNoText)
	}
	text = textnorm.BoundLength(text, kb.opts.MaxChars, kb.opts.HeadChars)

	chunks := chunker.Chunk(text, kb.opts.TokenLimit)
	if len(chunks) == 0 {
		return fmt.Errorf("%s: %w", sourcePath, port.ErrNoText)
	}

	embeddings := make([][]float32, 0, len(chunks))
	for start := 0; start < len(chunks); start += kb.opts.BatchSize {
		end := start + kb.opts.BatchSize
		if end > len(chunks) {
			end = len(chunks)
		}
		vecs, err := kb.ai.EmbedBatch(ctx, chunks[start:end])
		if err != nil {
			return fmt.Errorf("embed chunks %d-%d: %w", start, end-1, err)
		}
		if len(vecs) != end-start {
			return fmt.Errorf("embed chunks %d-%d: got %d vectors, want %d", start, end-1, len(vecs), end-start)
		}
		embeddings = append(embeddings, vecs...)
	}

	kb.chunks = chunks
	kb.embeddings = embeddings
	kb.meta = ParseMetadata(sourcePath, kb.opts.DefaultYear)
	kb.built = true

	if err := kb.saveSnapshot(); err != nil {
		return fmt.Errorf("persist snapshot: %w", err)
	}
	slog.Info("knowledge base built",
		"name", kb.name, "source", sourcePath, "chunks", len(chunks))
	return nil
}

// Search embeds the query once and returns the topK chunks ranked by cosine
// similarity, descending, ties kept in original chunk order. Calling Search
// on an unbuilt base is a programming error and returns ErrNotBuilt.
func (kb *KnowledgeBase) Search(ctx context.Context, query string, topK int) ([]domain.ScoredChunk, error) {
	kb.mu.RLock()
	if !kb.built {
		kb.mu.RUnlock()
		return nil, port.ErrNotBuilt
	}
	chunks := kb.chunks
	embeddings := kb.embeddings
	kb.mu.RUnlock()

	if topK <= 0 {
		topK = 5
	}

	queryVec, err := kb.ai.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	scored := make([]domain.ScoredChunk, len(chunks))
	for i := range chunks {
		scored[i] = domain.ScoredChunk{
			Text:       chunks[i],
			Index:      i,
			Similarity: cosineSimilarity(queryVec, embeddings[i]),
		}
	}
	sort.SliceStable(scored, func(i, j int) bool {
		return scored[i].Similarity > scored[j].Similarity
	})
	if topK > len(scored) {
		topK = len(scored)
	}
	return scored[:topK], nil
}

// Remove deletes the persisted snapshot. Used to tear down ephemeral
// upload-derived bases; a missing file is not an error.
func (kb *KnowledgeBase) Remove() error {
	err := os.Remove(kb.SnapshotPath())
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}

func (kb *KnowledgeBase) saveSnapshot() error {
	data, err := json.Marshal(snapshot{
		Chunks:     kb.chunks,
		Embeddings: kb.embeddings,
		Metadata:   kb.meta,
	})
	if err != nil {
		return err
	}
	if err := os.MkdirAll(kb.dir, 0o755); err != nil {
		return err
	}
	return os.WriteFile(kb.SnapshotPath(), data, 0o644)
}

// loadSnapshot restores the triple from disk. Returns false without error
// when no snapshot exists.
func (kb *KnowledgeBase) loadSnapshot() (bool, error) {
	data, err := os.ReadFile(kb.SnapshotPath())
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	var snap snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return false, fmt.Errorf("decode snapshot: %w", err)
	}
	if len(snap.Chunks) == 0 || len(snap.Chunks) != len(snap.Embeddings) {
		return false, fmt.Errorf("snapshot inconsistent: %d chunks, %d embeddings", len(snap.Chunks), len(snap.Embeddings))
	}
	kb.chunks = snap.Chunks
	kb.embeddings = snap.Embeddings
	kb.meta = snap.Metadata
	kb.built = true
	return true, nil
}

func cosineSimilarity(a, b []float32) float64 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	var dot, normA, normB float64
	for i := 0; i < n; i++ {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
