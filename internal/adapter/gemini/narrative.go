package gemini

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"

	"github.com/hearthdata/market-engine/internal/domain"
	"github.com/hearthdata/market-engine/internal/observability"
)

// Generator implements domain.NarrativeGenerator using the Gemini API.
type Generator struct {
	client  *genai.Client
	model   string
	metrics *observability.Metrics
	logger  *slog.Logger
}

// NewGenerator creates a Gemini-backed narrative generator.
func NewGenerator(ctx context.Context, apiKey, model string, metrics *observability.Metrics, logger *slog.Logger) (*Generator, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("API key is required")
	}
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}
	return &Generator{client: client, model: model, metrics: metrics, logger: logger}, nil
}

// MarketNarrative produces a short qualitative summary of a region's market
// trajectory from its yearly series.
func (g *Generator) MarketNarrative(ctx context.Context, entry *domain.RegionEntry, yearly []domain.YearPoint) (string, error) {
	model := g.client.GenerativeModel(g.model)
	model.SetTemperature(0.2) // low temperature for consistent, factual tone

	resp, err := model.GenerateContent(ctx, genai.Text(buildPrompt(entry, yearly)))
	if err != nil {
		g.metrics.NarrativeRequests.WithLabelValues("error").Inc()
		return "", fmt.Errorf("generate narrative: %w", err)
	}

	text, err := extractText(resp)
	if err != nil {
		g.metrics.NarrativeRequests.WithLabelValues("error").Inc()
		return "", err
	}
	g.metrics.NarrativeRequests.WithLabelValues("success").Inc()
	return text, nil
}

func (g *Generator) Close() error {
	if g.client != nil {
		return g.client.Close()
	}
	return nil
}

func buildPrompt(entry *domain.RegionEntry, yearly []domain.YearPoint) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Write a two-sentence, plain-language summary of the housing market in %s ", entry.Key)
	fmt.Fprintf(&b, "based on this yearly median home value series. Mention the overall trend and the latest value (%s: %.0f). ", entry.LatestPeriod, entry.LatestValue)
	b.WriteString("Do not give financial advice.\n\n")
	for _, p := range yearly {
		fmt.Fprintf(&b, "%s: %.0f\n", p.Year, p.Value)
	}
	return b.String()
}

func extractText(resp *genai.GenerateContentResponse) (string, error) {
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return "", fmt.Errorf("empty narrative response")
	}
	var b strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if t, ok := part.(genai.Text); ok {
			b.WriteString(string(t))
		}
	}
	text := strings.TrimSpace(b.String())
	if text == "" {
		return "", fmt.Errorf("narrative response had no text parts")
	}
	return text, nil
}
