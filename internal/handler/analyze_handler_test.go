package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"hash/fnv"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/finlens-ai/finlens/internal/kb"
	"github.com/finlens-ai/finlens/internal/service"
)

type fakeAI struct{}

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

func (f *fakeAI) Complete(_ context.Context, _ string) (string, error) {
	return "respuesta del modelo", nil
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

type envelope struct {
	OK     bool   `json:"ok"`
	Answer string `json:"answer"`
	Error  string `json:"error"`
	Chunks int    `json:"chunks"`
}

type testEnv struct {
	app       *fiber.App
	suraPath  string
	uploadDir string
}

func newTestEnv(t *testing.T, apiKey string) *testEnv {
	t.Helper()
	docs := t.TempDir()
	text := strings.TrimSpace(strings.Repeat("La política contable regula el efectivo y los equivalentes. ", 30))

	suraPath := filepath.Join(docs, "SURA_COL_2024.pdf")
	require.NoError(t, os.WriteFile(suraPath, []byte("stub"), 0o644))
	banPath := filepath.Join(docs, "BANCOLOMBIA_COL_2024.pdf")
	require.NoError(t, os.WriteFile(banPath, []byte("stub"), 0o644))

	aiProv := &fakeAI{}
	reg := kb.NewRegistry(aiProv, &fakeExtractor{text: text}, t.TempDir(),
		kb.Options{TokenLimit: 40, DefaultYear: 2024}, "sura", []kb.Source{
			{Key: "sura", Label: "Grupo Sura (referencia)", Path: suraPath},
			{Key: "bancolombia", Label: "Bancolombia (Colombia)", Path: banPath},
		})
	reg.Initialize(context.Background())

	uploadDir := t.TempDir()
	svc := service.NewAnalyzeService(aiProv, reg, 3)
	h := NewAnalyzeHandler(svc, reg, uploadDir, apiKey)

	app := fiber.New()
	h.Register(app)
	return &testEnv{app: app, suraPath: suraPath, uploadDir: uploadDir}
}

type formField struct{ name, value string }

type formFile struct{ field, name, content string }

func multipartRequest(t *testing.T, fields []formField, files []formFile) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for _, f := range fields {
		require.NoError(t, w.WriteField(f.name, f.value))
	}
	for _, f := range files {
		fw, err := w.CreateFormFile(f.field, f.name)
		require.NoError(t, err)
		_, err = fw.Write([]byte(f.content))
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())

	req := httptest.NewRequest(http.MethodPost, "/analyze", &buf)
	req.Header.Set("Content-Type", w.FormDataContentType())
	return req
}

func decode(t *testing.T, resp *http.Response) envelope {
	t.Helper()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	var env envelope
	require.NoError(t, json.Unmarshal(body, &env), "body: %s", body)
	return env
}

func TestIndexListsPresets(t *testing.T) {
	env := newTestEnv(t, "clave")
	resp, err := env.app.Test(httptest.NewRequest(http.MethodGet, "/", nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "Bancolombia (Colombia)")
	assert.Contains(t, string(body), "BANCOLOMBIA_COL_2024.pdf")
	assert.Contains(t, string(body), `value="bancolombia"`)
}

func TestAnalyzeRejectsEmptyQuestion(t *testing.T) {
	env := newTestEnv(t, "clave")
	req := multipartRequest(t, []formField{{"question", "   "}}, nil)
	resp, err := env.app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	out := decode(t, resp)
	assert.False(t, out.OK)
	assert.Contains(t, out.Error, "pregunta")
}

func TestAnalyzeRejectsMissingAPIKey(t *testing.T) {
	env := newTestEnv(t, "")
	req := multipartRequest(t, []formField{{"question", "¿qué dice?"}}, nil)
	resp, err := env.app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	assert.Contains(t, decode(t, resp).Error, "OPENAI_API_KEY")
}

func TestAnalyzeRejectsMissingFileAndPreset(t *testing.T) {
	env := newTestEnv(t, "clave")
	req := multipartRequest(t, []formField{{"question", "¿qué dice?"}}, nil)
	resp, err := env.app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Contains(t, decode(t, resp).Error, "PDF")
}

func TestAnalyzeRejectsUnknownPreset(t *testing.T) {
	env := newTestEnv(t, "clave")
	req := multipartRequest(t, []formField{
		{"question", "¿qué dice?"},
		{"preset_key", "inexistente"},
	}, nil)
	resp, err := env.app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Contains(t, decode(t, resp).Error, "inexistente")
}

func TestAnalyzeRejectsNonPDFUpload(t *testing.T) {
	env := newTestEnv(t, "clave")
	req := multipartRequest(t,
		[]formField{{"question", "¿qué dice?"}},
		[]formFile{{"pdf", "notas.txt", "contenido"}},
	)
	resp, err := env.app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Contains(t, decode(t, resp).Error, "solo .pdf")
}

func TestAnalyzeRejectsEmptyUpload(t *testing.T) {
	env := newTestEnv(t, "clave")
	req := multipartRequest(t,
		[]formField{{"question", "¿qué dice?"}},
		[]formFile{{"pdf", "VACIO_COL_2024.pdf", ""}},
	)
	resp, err := env.app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestAnalyzeWithPreset(t *testing.T) {
	env := newTestEnv(t, "clave")
	req := multipartRequest(t, []formField{
		{"question", "¿Qué regula la política contable?"},
		{"preset_key", "bancolombia"},
	}, nil)
	resp, err := env.app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	out := decode(t, resp)
	assert.True(t, out.OK)
	assert.Equal(t, "respuesta del modelo", out.Answer)
}

func TestAnalyzeWithUploadCleansUp(t *testing.T) {
	env := newTestEnv(t, "clave")
	req := multipartRequest(t,
		[]formField{{"question", "¿Qué regula la política contable?"}},
		[]formFile{{"pdf", "ACME_COL_2024.pdf", "%PDF-stub"}},
	)
	resp, err := env.app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	out := decode(t, resp)
	assert.True(t, out.OK)
	assert.NotEmpty(t, out.Answer)

	// Ephemeral state must be gone once the request is answered.
	entries, err := os.ReadDir(env.uploadDir)
	require.NoError(t, err)
	assert.Empty(t, entries, "upload dir must be cleaned up")
}

func TestRebuildReference(t *testing.T) {
	env := newTestEnv(t, "clave")
	resp, err := env.app.Test(httptest.NewRequest(http.MethodPost, "/rebuild-sura", nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	out := decode(t, resp)
	assert.True(t, out.OK)
	assert.Positive(t, out.Chunks)
}

func TestRebuildReferenceMissingDocument(t *testing.T) {
	env := newTestEnv(t, "clave")
	require.NoError(t, os.Remove(env.suraPath))

	resp, err := env.app.Test(httptest.NewRequest(http.MethodPost, "/rebuild-sura", nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.False(t, decode(t, resp).OK)
}

func TestSanitizeFilename(t *testing.T) {
	assert.Equal(t, "SURA_COL_2024.pdf", sanitizeFilename("SURA_COL_2024.pdf"))
	assert.Equal(t, "informe_anual.pdf", sanitizeFilename("informe anual.pdf"))
	assert.Equal(t, "x.pdf", sanitizeFilename("../../x.pdf"))
	assert.Equal(t, "documento.pdf", sanitizeFilename("..."))
}
