package kb

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/finlens-ai/finlens/internal/domain"
	"github.com/finlens-ai/finlens/internal/port"
)

// Source is one configured (key, document) pair the registry builds at
// startup.
type Source struct {
	Key   string
	Label string
	Path  string
}

// Registry owns the named knowledge bases for the process lifetime. It is
// populated by Initialize and read-mostly afterwards; builds of the same
// name are serialized by a per-name lock.
type Registry struct {
	ai           port.AIProvider
	extractor    port.TextExtractor
	dir          string
	opts         Options
	referenceKey string
	sources      []Source

	mu    sync.RWMutex
	bases map[string]*KnowledgeBase

	locksMu sync.Mutex
	locks   map[string]*sync.Mutex
}

// NewRegistry creates an empty registry. sources must include an entry whose
// key equals referenceKey; the reference base is what every comparison is
// anchored to.
func NewRegistry(ai port.AIProvider, extractor port.TextExtractor, dir string, opts Options, referenceKey string, sources []Source) *Registry {
	return &Registry{
		ai:           ai,
		extractor:    extractor,
		dir:          dir,
		opts:         opts,
		referenceKey: referenceKey,
		sources:      sources,
		bases:        make(map[string]*KnowledgeBase),
		locks:        make(map[string]*sync.Mutex),
	}
}

// Initialize builds or loads every configured base. A missing document is
// logged and skipped; a failed build is logged and leaves that entry absent.
// One bad entry never aborts the others.
func (r *Registry) Initialize(ctx context.Context) {
	for _, src := range r.sources {
		if _, err := os.Stat(src.Path); err != nil {
			slog.Warn("source document missing, skipping", "key", src.Key, "path", src.Path)
			continue
		}
		if _, err := r.build(ctx, src.Key, src.Path, false); err != nil {
			slog.Error("knowledge base init failed", "key", src.Key, "error", err)
			continue
		}
	}
	slog.Info("knowledge base registry initialized", "bases", r.Len())
}

// Get returns the base registered under key.
func (r *Registry) Get(key string) (*KnowledgeBase, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	base, ok := r.bases[key]
	return base, ok
}

// Reference returns the fixed reference base.
func (r *Registry) Reference() (*KnowledgeBase, bool) {
	return r.Get(r.referenceKey)
}

// ReferenceKey returns the key of the fixed reference base.
func (r *Registry) ReferenceKey() string { return r.referenceKey }

// Len returns the number of registered bases.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.bases)
}

// Presets lists the successfully built comparison targets, excluding the
// reference base, in configuration order.
func (r *Registry) Presets() []domain.Preset {
	r.mu.RLock()
	defer r.mu.RUnlock()
	presets := make([]domain.Preset, 0, len(r.sources))
	for _, src := range r.sources {
		if src.Key == r.referenceKey {
			continue
		}
		if _, ok := r.bases[src.Key]; !ok {
			continue
		}
		presets = append(presets, domain.Preset{
			Key:      src.Key,
			Label:    src.Label,
			Filename: filepath.Base(src.Path),
		})
	}
	return presets
}

// Rebuild force-rebuilds the base registered under key from its configured
// source document. Returns the resulting chunk count. A missing source
// document surfaces as fs.ErrNotExist.
func (r *Registry) Rebuild(ctx context.Context, key string) (int, error) {
	src, ok := r.source(key)
	if !ok {
		return 0, fmt.Errorf("%s: %w", key, port.ErrPresetNotFound)
	}
	if _, err := os.Stat(src.Path); err != nil {
		return 0, fmt.Errorf("stat %s: %w", src.Path, fs.ErrNotExist)
	}
	base, err := r.build(ctx, key, src.Path, true)
	if err != nil {
		return 0, err
	}
	return base.ChunkCount(), nil
}

// NewEphemeral creates a request-scoped base that shares the registry's
// provider, extractor and snapshot directory but is never registered. The
// caller owns its lifecycle and must Remove it when done.
func (r *Registry) NewEphemeral(name string) *KnowledgeBase {
	return New(name, r.dir, r.ai, r.extractor, r.opts)
}

// build serializes builds per name, reusing the existing instance so the
// registry holds exactly one base per key.
func (r *Registry) build(ctx context.Context, key, path string, force bool) (*KnowledgeBase, error) {
	lock := r.nameLock(key)
	lock.Lock()
	defer lock.Unlock()

	r.mu.RLock()
	base, ok := r.bases[key]
	r.mu.RUnlock()
	if !ok {
		base = New(key, r.dir, r.ai, r.extractor, r.opts)
	}

	if err := base.Build(ctx, path, force); err != nil {
		return nil, err
	}

	r.mu.Lock()
	r.bases[key] = base
	r.mu.Unlock()
	return base, nil
}

func (r *Registry) source(key string) (Source, bool) {
	for _, src := range r.sources {
		if src.Key == key {
			return src, true
		}
	}
	return Source{}, false
}

func (r *Registry) nameLock(key string) *sync.Mutex {
	r.locksMu.Lock()
	defer r.locksMu.Unlock()
	lock, ok := r.locks[key]
	if !ok {
		lock = &sync.Mutex{}
		r.locks[key] = lock
	}
	return lock
}
