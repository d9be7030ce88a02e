package service

import (
	"context"
	"fmt"
	"hash/fnv"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/finlens-ai/finlens/internal/kb"
	"github.com/finlens-ai/finlens/internal/port"
)

type fakeAI struct {
	lastPrompt string
}

func (f *fakeAI) ModelName() string { return "fake-model" }

func (f *fakeAI) Embed(_ context.Context, text string) ([]float32, error) {
	return wordVector(text), nil
}

func (f *fakeAI) EmbedBatch(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = wordVector(t)
	}
	return out, nil
}

func (f *fakeAI) Complete(_ context.Context, prompt string) (string, error) {
	f.lastPrompt = prompt
	return "análisis comparativo simulado", nil
}

func wordVector(text string) []float32 {
	vec := make([]float32, 16)
	for _, w := range strings.Fields(strings.ToLower(text)) {
		h := fnv.New32a()
		h.Write([]byte(strings.Trim(w, ".,:;?!")))
		vec[h.Sum32()%16]++
	}
	return vec
}

type fakeExtractor struct{ text string }

func (f *fakeExtractor) ExtractText(_ context.Context, _ string) (string, error) {
	return f.text, nil
}

func docText(label string, sentences int) string {
	var b strings.Builder
	for i := 0; i < sentences; i++ {
		fmt.Fprintf(&b, "La política %s número %d regula el efectivo y los equivalentes. ", label, i)
	}
	return strings.TrimSpace(b.String())
}

func buildRegistry(t *testing.T, aiProv *fakeAI, withReference bool) *kb.Registry {
	t.Helper()
	docs := t.TempDir()
	var sources []kb.Source
	if withReference {
		path := filepath.Join(docs, "SURA_COL_2024.pdf")
		require.NoError(t, os.WriteFile(path, []byte("stub"), 0o644))
		sources = append(sources, kb.Source{Key: "sura", Label: "ref", Path: path})
	}
	banPath := filepath.Join(docs, "BANCOLOMBIA_COL_2024.pdf")
	require.NoError(t, os.WriteFile(banPath, []byte("stub"), 0o644))
	sources = append(sources, kb.Source{Key: "bancolombia", Label: "Bancolombia", Path: banPath})

	reg := kb.NewRegistry(aiProv, &fakeExtractor{text: docText("contable", 30)}, t.TempDir(),
		kb.Options{TokenLimit: 40, DefaultYear: 2024}, "sura", sources)
	reg.Initialize(context.Background())
	return reg
}

func TestCompareAssemblesPromptAndAnswers(t *testing.T) {
	aiProv := &fakeAI{}
	reg := buildRegistry(t, aiProv, true)

	target, ok := reg.Get("bancolombia")
	require.True(t, ok)

	svc := NewAnalyzeService(aiProv, reg, 3)
	answer, err := svc.Compare(context.Background(), "¿Qué regula la política contable?", target)
	require.NoError(t, err)
	assert.Equal(t, "análisis comparativo simulado", answer)

	assert.Contains(t, aiProv.lastPrompt, "¿Qué regula la política contable?")
	assert.Contains(t, aiProv.lastPrompt, `empresa="SURA"`)
	assert.Contains(t, aiProv.lastPrompt, `empresa="BANCOLOMBIA"`)
	assert.Contains(t, aiProv.lastPrompt, "Extracto 1")
}

func TestCompareRequiresReference(t *testing.T) {
	aiProv := &fakeAI{}
	reg := buildRegistry(t, aiProv, false)

	target, ok := reg.Get("bancolombia")
	require.True(t, ok)

	svc := NewAnalyzeService(aiProv, reg, 3)
	_, err := svc.Compare(context.Background(), "pregunta", target)
	assert.ErrorIs(t, err, port.ErrReferenceUnavailable)
}

func TestCompareFailsOnUnbuiltTarget(t *testing.T) {
	aiProv := &fakeAI{}
	reg := buildRegistry(t, aiProv, true)

	svc := NewAnalyzeService(aiProv, reg, 3)
	_, err := svc.Compare(context.Background(), "pregunta", reg.NewEphemeral("upload-x"))
	assert.ErrorIs(t, err, port.ErrNotBuilt)
}
