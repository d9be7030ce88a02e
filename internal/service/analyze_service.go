package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/finlens-ai/finlens/internal/domain"
	"github.com/finlens-ai/finlens/internal/kb"
	"github.com/finlens-ai/finlens/internal/port"
	"github.com/finlens-ai/finlens/internal/prompt"
)

// AnalyzeService answers questions by retrieving chunks from the reference
// base and a comparison target, assembling the comparison prompt and
// relaying it to the completion model.
type AnalyzeService struct {
	ai       port.AIProvider
	registry *kb.Registry
	topK     int
}

// NewAnalyzeService creates a new analyze service. topK is the number of
// chunks retrieved per base.
func NewAnalyzeService(ai port.AIProvider, registry *kb.Registry, topK int) *AnalyzeService {
	if topK <= 0 {
		topK = 3
	}
	return &AnalyzeService{ai: ai, registry: registry, topK: topK}
}

// Compare retrieves the most relevant chunks for question from the reference
// base and from target, builds the comparison prompt and returns the model
// answer.
func (s *AnalyzeService) Compare(ctx context.Context, question string, target *kb.KnowledgeBase) (string, error) {
	ref, ok := s.registry.Reference()
	if !ok || !ref.Built() || ref.ChunkCount() == 0 {
		return "", port.ErrReferenceUnavailable
	}

	refHits, err := ref.Search(ctx, question, s.topK)
	if err != nil {
		return "", fmt.Errorf("search reference: %w", err)
	}
	targetHits, err := target.Search(ctx, question, s.topK)
	if err != nil {
		return "", fmt.Errorf("search %s: %w", target.Name(), err)
	}

	p := prompt.BuildComparison(question,
		ref.Metadata(), chunkTexts(refHits),
		target.Metadata(), chunkTexts(targetHits))

	slog.Info("comparison prompt assembled",
		"target", target.Name(),
		"reference_chunks", len(refHits),
		"target_chunks", len(targetHits),
		"prompt_chars", len(p),
		"model", s.ai.ModelName(),
	)

	answer, err := s.ai.Complete(ctx, p)
	if err != nil {
		return "", fmt.Errorf("complete: %w", err)
	}
	return answer, nil
}

func chunkTexts(hits []domain.ScoredChunk) []string {
	texts := make([]string, len(hits))
	for i, hit := range hits {
		texts[i] = hit.Text
	}
	return texts
}
