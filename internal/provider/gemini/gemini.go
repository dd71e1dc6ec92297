package gemini

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"google.golang.org/genai"

	"finsights/internal/domain"
)

// DefaultModel is used when settings carry no model name.
const DefaultModel = "gemini-2.5-flash"

// Factory builds provider clients per run from the API key held in the
// settings snapshot, and validates candidate keys on settings update.
type Factory struct {
	logger *slog.Logger
}

func NewFactory(logger *slog.Logger) *Factory {
	return &Factory{logger: logger.With("provider", "gemini")}
}

// New creates a client bound to one API key. Called at run start with
// the snapshot's key so mid-run key rotation is not observed.
func (f *Factory) New(ctx context.Context, apiKey, model string) (*Client, error) {
	if apiKey == "" {
		return nil, domain.NewFetchError(domain.FailureAuth, domain.ErrNotConfigured)
	}
	if model == "" {
		model = DefaultModel
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, classify(fmt.Errorf("init genai client: %w", err))
	}

	return &Client{client: client, model: model, logger: f.logger}, nil
}

// ValidateKey issues a minimal ungrounded generation to confirm the key
// works before a settings update commits it.
func (f *Factory) ValidateKey(ctx context.Context, apiKey, model string) error {
	client, err := f.New(ctx, apiKey, model)
	if err != nil {
		return fmt.Errorf("%w: %w", domain.ErrInvalidCredential, err)
	}

	resp, err := client.client.Models.GenerateContent(
		ctx,
		client.model,
		[]*genai.Content{genai.NewContentFromText("Reply with the single word OK", genai.RoleUser)},
		nil,
	)
	if err != nil {
		return fmt.Errorf("%w: %w", domain.ErrInvalidCredential, classify(err))
	}
	if len(resp.Candidates) == 0 {
		return fmt.Errorf("%w: empty response from test call", domain.ErrInvalidCredential)
	}
	return nil
}

// Client calls the Gemini API with Google Search grounding.
type Client struct {
	client *genai.Client
	model  string
	logger *slog.Logger
}

// Summarize asks for grounded news on one category query and returns
// the raw text plus grounding citations.
func (c *Client) Summarize(ctx context.Context, req domain.SummaryRequest) (*domain.ProviderResponse, error) {
	searchTool := &genai.Tool{GoogleSearch: &genai.GoogleSearch{}}
	config := &genai.GenerateContentConfig{
		Tools: []*genai.Tool{searchTool},
	}

	prompt := buildPrompt(req)

	resp, err := c.client.Models.GenerateContent(
		ctx,
		c.model,
		[]*genai.Content{genai.NewContentFromText(prompt, genai.RoleUser)},
		config,
	)
	if err != nil {
		return nil, classify(err)
	}

	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return nil, domain.NewFetchError(domain.FailureProvider, fmt.Errorf("response has no candidates"))
	}

	candidate := resp.Candidates[0]

	var text strings.Builder
	for _, part := range candidate.Content.Parts {
		if part.Text != "" {
			text.WriteString(part.Text)
		}
	}

	var citations []domain.Citation
	if candidate.GroundingMetadata != nil {
		for i, chunk := range candidate.GroundingMetadata.GroundingChunks {
			if chunk.Web == nil || chunk.Web.URI == "" {
				continue
			}
			citations = append(citations, domain.Citation{
				Index: i + 1,
				URL:   chunk.Web.URI,
				Title: chunk.Web.Title,
			})
		}
	}

	c.logger.Debug("provider response",
		"job", req.JobName,
		"chars", text.Len(),
		"citations", len(citations),
	)

	return &domain.ProviderResponse{
		Text:      text.String(),
		Citations: citations,
	}, nil
}

// buildPrompt requests JSON output in the prompt text itself: the API
// rejects response_mime_type when the search grounding tool is active.
func buildPrompt(req domain.SummaryRequest) string {
	var sb strings.Builder

	maxArticles := req.MaxArticles
	if maxArticles <= 0 {
		maxArticles = 5
	}

	fmt.Fprintf(&sb, "Find %d news articles about: %s\n", maxArticles, req.Query)
	sb.WriteString("For each article provide: title, summary, content, stocks_mentioned (array of NSE symbols), impact (positive/negative/neutral), sentiment_score (-10 to +10), sentiment_explanation.\n")
	sb.WriteString("Focus on news from today.")

	if len(req.PreferredSources) > 0 {
		sources := req.PreferredSources
		if len(sources) > 10 {
			sources = sources[:10]
		}
		fmt.Fprintf(&sb, "\n\nPrefer information from these trusted Indian financial news sources: %s.", strings.Join(sources, ", "))
	}

	sb.WriteString("\n\nRespond with a JSON object containing an \"articles\" array.")

	return sb.String()
}
