package main

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/cors"
	fiberlogger "github.com/gofiber/fiber/v3/middleware/logger"
	"github.com/gofiber/fiber/v3/middleware/recover"
	"github.com/joho/godotenv"

	"github.com/finlens-ai/finlens/internal/adapter/ai"
	"github.com/finlens-ai/finlens/internal/adapter/pdf"
	"github.com/finlens-ai/finlens/internal/handler"
	"github.com/finlens-ai/finlens/internal/kb"
	"github.com/finlens-ai/finlens/internal/service"
	"github.com/finlens-ai/finlens/pkg/config"
)

// maxUploadSize caps multipart bodies; larger requests are rejected by the
// serving layer before any handler runs.
const maxUploadSize = 20 * 1024 * 1024

func main() {
	// ── Load .env file ───────────────────────────────────────────────────
	_ = godotenv.Load() // silently ignore if .env doesn't exist

	// ── Configuration ────────────────────────────────────────────────────
	cfg := config.Load()

	slog.Info("starting FinLens",
		"port", cfg.Port,
		"embed_model", cfg.EmbedModel,
		"completion_model", cfg.CompletionModel,
		"data_dir", cfg.DataDir,
	)

	for _, dir := range []string{cfg.DataDir, cfg.UploadDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			slog.Error("failed to create directory", "dir", dir, "error", err)
			os.Exit(1)
		}
	}

	// ── Adapters ─────────────────────────────────────────────────────────
	openAI := ai.NewOpenAIProvider(ai.Config{
		BaseURL:         cfg.OpenAIBaseURL,
		APIKey:          cfg.OpenAIAPIKey,
		EmbedModel:      cfg.EmbedModel,
		CompletionModel: cfg.CompletionModel,
		Timeout:         cfg.RequestTimeout,
	})
	extractor := pdf.NewExtractor()

	// ── Knowledge base registry ──────────────────────────────────────────
	sources := []kb.Source{{
		Key:   cfg.ReferenceKey,
		Label: "Grupo Sura (referencia)",
		Path:  filepath.Join(cfg.DocsDir, cfg.ReferenceFile),
	}}
	presets, err := config.LoadPresets(cfg.PresetsPath)
	if err != nil {
		slog.Warn("presets file not loaded", "path", cfg.PresetsPath, "error", err)
	}
	for _, p := range presets {
		sources = append(sources, kb.Source{
			Key:   p.Key,
			Label: p.Label,
			Path:  filepath.Join(cfg.DocsDir, p.File),
		})
	}

	registry := kb.NewRegistry(openAI, extractor, cfg.DataDir, kb.Options{
		TokenLimit:  cfg.TokenLimit,
		MaxChars:    cfg.MaxChars,
		HeadChars:   cfg.HeadChars,
		DefaultYear: cfg.DefaultYear,
	}, cfg.ReferenceKey, sources)

	initCtx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	registry.Initialize(initCtx)
	cancel()

	// ── Services ─────────────────────────────────────────────────────────
	analyzeService := service.NewAnalyzeService(openAI, registry, cfg.TopK)

	// ── Fiber App ────────────────────────────────────────────────────────
	app := fiber.New(fiber.Config{
		AppName:      cfg.AppName,
		BodyLimit:    maxUploadSize,
		ReadTimeout:  5 * time.Minute,
		WriteTimeout: 5 * time.Minute,
	})

	// Global middleware
	app.Use(recover.New())
	app.Use(fiberlogger.New())
	app.Use(cors.New())

	// ── Routes ───────────────────────────────────────────────────────────
	analyzeHandler := handler.NewAnalyzeHandler(analyzeService, registry, cfg.UploadDir, cfg.OpenAIAPIKey)
	analyzeHandler.Register(app)

	// Health check
	app.Get("/health", func(c fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status": "healthy",
			"app":    cfg.AppName,
			"bases":  registry.Len(),
		})
	})

	// ── Start ────────────────────────────────────────────────────────────
	slog.Info("listening", "port", cfg.Port)
	if err := app.Listen(":" + cfg.Port); err != nil {
		slog.Error("server failed", "error", err)
		os.Exit(1)
	}
}
