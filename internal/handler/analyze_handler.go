package handler

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"html/template"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/gofiber/fiber/v3"
	"github.com/google/uuid"

	"github.com/finlens-ai/finlens/internal/kb"
	"github.com/finlens-ai/finlens/internal/port"
	"github.com/finlens-ai/finlens/internal/service"
)

//go:embed index.html
var indexHTML string

var indexTmpl = template.Must(template.New("index").Parse(indexHTML))

// AnalyzeHandler handles the web form, the analyze endpoint and the
// reference rebuild endpoint.
type AnalyzeHandler struct {
	svc       *service.AnalyzeService
	registry  *kb.Registry
	uploadDir string
	apiKey    string
}

// NewAnalyzeHandler creates a new analyze handler.
func NewAnalyzeHandler(svc *service.AnalyzeService, registry *kb.Registry, uploadDir, apiKey string) *AnalyzeHandler {
	return &AnalyzeHandler{
		svc:       svc,
		registry:  registry,
		uploadDir: uploadDir,
		apiKey:    apiKey,
	}
}

// Register sets up the routes.
func (h *AnalyzeHandler) Register(app *fiber.App) {
	app.Get("/", h.Index)
	app.Post("/analyze", h.Analyze)
	app.Post("/rebuild-sura", h.RebuildReference)
}

// Index serves the interactive form with the available preset targets.
func (h *AnalyzeHandler) Index(c fiber.Ctx) error {
	var buf bytes.Buffer
	if err := indexTmpl.Execute(&buf, fiber.Map{
		"Presets": h.registry.Presets(),
	}); err != nil {
		slog.Error("index template failed", "error", err)
		return jsonError(c, fiber.StatusInternalServerError, "Error interno")
	}
	c.Set(fiber.HeaderContentType, fiber.MIMETextHTMLCharsetUTF8)
	return c.Send(buf.Bytes())
}

// Analyze answers a question by comparing the reference base against either
// a preset base or an uploaded PDF. Upload-derived bases are request-scoped:
// the temp file and snapshot are removed before the response goes out.
func (h *AnalyzeHandler) Analyze(c fiber.Ctx) error {
	question := strings.TrimSpace(c.FormValue("question"))
	if question == "" {
		return jsonError(c, fiber.StatusBadRequest, "La pregunta no puede estar vacía")
	}
	if h.apiKey == "" {
		return jsonError(c, fiber.StatusInternalServerError, "OPENAI_API_KEY no está configurada")
	}

	target, cleanup, status, msg := h.resolveTarget(c)
	if cleanup != nil {
		defer cleanup()
	}
	if status != 0 {
		return jsonError(c, status, msg)
	}

	answer, err := h.svc.Compare(c.Context(), question, target)
	if err != nil {
		if errors.Is(err, port.ErrReferenceUnavailable) {
			return jsonError(c, fiber.StatusInternalServerError, "La base de conocimiento de referencia no está inicializada")
		}
		slog.Error("analyze failed", "target", target.Name(), "error", err)
		return jsonError(c, fiber.StatusInternalServerError, fmt.Sprintf("Error interno: %v", err))
	}

	return c.JSON(fiber.Map{"ok": true, "answer": answer})
}

// RebuildReference force-rebuilds the fixed reference base from its source
// document.
func (h *AnalyzeHandler) RebuildReference(c fiber.Ctx) error {
	chunks, err := h.registry.Rebuild(c.Context(), h.registry.ReferenceKey())
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return jsonError(c, fiber.StatusNotFound, "No se encontró el documento de referencia")
		}
		slog.Error("reference rebuild failed", "error", err)
		return jsonError(c, fiber.StatusInternalServerError, fmt.Sprintf("Error interno: %v", err))
	}
	return c.JSON(fiber.Map{"ok": true, "chunks": chunks})
}

// resolveTarget picks the comparison base: a registry preset when preset_key
// is present, otherwise an ephemeral base built from the uploaded PDF. The
// returned cleanup tears down ephemeral state and is non-nil only for
// uploads. A non-zero status means the request is rejected with msg.
func (h *AnalyzeHandler) resolveTarget(c fiber.Ctx) (base *kb.KnowledgeBase, cleanup func(), status int, msg string) {
	if presetKey := strings.TrimSpace(c.FormValue("preset_key")); presetKey != "" {
		base, ok := h.registry.Get(presetKey)
		if !ok {
			return nil, nil, fiber.StatusBadRequest, "Empresa predefinida desconocida: " + presetKey
		}
		return base, nil, 0, ""
	}

	fileHeader, err := c.FormFile("pdf")
	if err != nil {
		return nil, nil, fiber.StatusBadRequest, "No se envió archivo PDF"
	}
	if fileHeader.Filename == "" || fileHeader.Size == 0 {
		return nil, nil, fiber.StatusBadRequest, "Archivo PDF inválido"
	}
	if !allowedFile(fileHeader.Filename) {
		return nil, nil, fiber.StatusBadRequest, "Formato no permitido (solo .pdf)"
	}

	id := uuid.NewString()
	// Own subdirectory per request so the original filename survives for
	// metadata parsing.
	dir := filepath.Join(h.uploadDir, id)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, nil, fiber.StatusInternalServerError, fmt.Sprintf("Error interno: %v", err)
	}
	dst := filepath.Join(dir, sanitizeFilename(fileHeader.Filename))

	base = h.registry.NewEphemeral("upload-" + id)
	cleanup = func() {
		if err := os.RemoveAll(dir); err != nil {
			slog.Warn("upload cleanup failed", "dir", dir, "error", err)
		}
		if err := base.Remove(); err != nil {
			slog.Warn("snapshot cleanup failed", "name", base.Name(), "error", err)
		}
	}

	if err := c.SaveFile(fileHeader, dst); err != nil {
		return nil, cleanup, fiber.StatusInternalServerError, fmt.Sprintf("Error interno: %v", err)
	}

	if err := base.Build(c.Context(), dst, false); err != nil {
		if errors.Is(err, port.ErrNoText) {
			return nil, cleanup, fiber.StatusBadRequest, "No se pudo extraer texto del PDF (¿es un escaneo sin OCR?)"
		}
		slog.Error("upload build failed", "file", fileHeader.Filename, "error", err)
		return nil, cleanup, fiber.StatusInternalServerError, fmt.Sprintf("Error interno: %v", err)
	}
	return base, cleanup, 0, ""
}

func allowedFile(filename string) bool {
	return strings.EqualFold(filepath.Ext(filename), ".pdf")
}

// sanitizeFilename strips path components and replaces anything outside a
// conservative character set, in the spirit of werkzeug's secure_filename.
func sanitizeFilename(name string) string {
	name = filepath.Base(name)
	var b strings.Builder
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9',
			r == '.', r == '-', r == '_':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	out := b.String()
	if out == "" || strings.Trim(out, "._") == "" {
		out = "documento.pdf"
	}
	return out
}

func jsonError(c fiber.Ctx, status int, msg string) error {
	return c.Status(status).JSON(fiber.Map{"ok": false, "error": msg})
}
