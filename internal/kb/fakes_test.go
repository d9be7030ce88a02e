package kb

import (
	"context"
	"errors"
	"hash/fnv"
	"strings"
	"sync"
)

// fakeAI is a deterministic in-process AIProvider: embeddings are word
// histograms over hash buckets, so texts sharing words score higher under
// cosine similarity.
type fakeAI struct {
	mu          sync.Mutex
	embedCalls  int
	batchCalls  int
	lastPrompt  string
	answer      string
	embedErr    error
	completeErr error
}

const fakeDim = 16

func (f *fakeAI) ModelName() string { return "fake-model" }

func (f *fakeAI) Embed(_ context.Context, text string) ([]float32, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.embedErr != nil {
		return nil, f.embedErr
	}
	f.embedCalls++
	return wordVector(text), nil
}

func (f *fakeAI) EmbedBatch(_ context.Context, texts []string) ([][]float32, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.embedErr != nil {
		return nil, f.embedErr
	}
	f.batchCalls++
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = wordVector(t)
	}
	return out, nil
}

func (f *fakeAI) Complete(_ context.Context, prompt string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.completeErr != nil {
		return "", f.completeErr
	}
	f.lastPrompt = prompt
	if f.answer != "" {
		return f.answer, nil
	}
	return "respuesta simulada", nil
}

func wordVector(text string) []float32 {
	vec := make([]float32, fakeDim)
	for _, w := range strings.Fields(strings.ToLower(text)) {
		w = strings.Trim(w, ".,:;?!()")
		if w == "" {
			continue
		}
		h := fnv.New32a()
		h.Write([]byte(w))
		vec[h.Sum32()%fakeDim]++
	}
	return vec
}

// fakeExtractor returns canned text per path; paths without an entry fall
// back to the default text.
type fakeExtractor struct {
	mu       sync.Mutex
	calls    int
	text     string
	perPath  map[string]string
	failPath string
}

func (f *fakeExtractor) ExtractText(_ context.Context, path string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.failPath != "" && path == f.failPath {
		return "", errors.New("boom")
	}
	if t, ok := f.perPath[path]; ok {
		return t, nil
	}
	return f.text, nil
}

func (f *fakeExtractor) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}
