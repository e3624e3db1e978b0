package discovery

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/nvakili/kashef/internal/metrics"
	"github.com/nvakili/kashef/shared/httpclient"
)

const extractionSystemPrompt = `You extract shopping constraints from one user message.
Reply with a single JSON object, no prose, using only these fields:
{"brand":"","category":"","city":"","price_min":0,"price_max":0,
"min_warranty_months":0,"min_seller_score":0,"keywords":[],
"attributes":{},"required":[],"dismissed":[],"summary":""}
Omit fields the message does not mention. "required" and "dismissed" take
topic names from: keywords, attributes, price, brand, city, category, score,
warranty. Prices are absolute amounts in the local currency.`

// llmDelta is the wire schema the extraction model replies with.
type llmDelta struct {
	Brand             string            `json:"brand"`
	Category          string            `json:"category"`
	City              string            `json:"city"`
	PriceMin          int64             `json:"price_min"`
	PriceMax          int64             `json:"price_max"`
	MinWarrantyMonths int               `json:"min_warranty_months"`
	MinSellerScore    float64           `json:"min_seller_score"`
	Keywords          []string          `json:"keywords"`
	Attributes        map[string]string `json:"attributes"`
	Required          []string          `json:"required"`
	Dismissed         []string          `json:"dismissed"`
	Summary           string            `json:"summary"`
}

// LLMExtractor calls an OpenAI-compatible chat completion endpoint to parse
// utterances, falling back to the rule extractor on any failure so a model
// outage never degrades below deterministic extraction.
type LLMExtractor struct {
	baseURL    string
	apiKey     string
	model      string
	httpClient *http.Client
	fallback   *RuleExtractor
}

func NewLLMExtractor(baseURL, apiKey, model string, fallback *RuleExtractor) *LLMExtractor {
	baseURL = strings.TrimSuffix(baseURL, "/")
	baseURL = strings.TrimSuffix(baseURL, "/v1")
	return &LLMExtractor{
		baseURL:    baseURL,
		apiKey:     apiKey,
		model:      model,
		httpClient: httpclient.New(httpclient.WithTimeout(15 * time.Second)),
		fallback:   fallback,
	}
}

func (e *LLMExtractor) Extract(ctx context.Context, utterance string, current ConstraintSet) (Delta, error) {
	parsed, err := e.complete(ctx, utterance, current)
	if err != nil {
		if e.fallback != nil {
			// The degraded path still answers, so count the outage here; the
			// caller never sees the error.
			metrics.ExtractorFailures.Inc()
			slog.Warn("llm extraction failed, using rule fallback", "error", err)
			return e.fallback.Extract(ctx, utterance, current)
		}
		return Delta{}, err
	}
	return parsed.toDelta(), nil
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

func (e *LLMExtractor) complete(ctx context.Context, utterance string, current ConstraintSet) (*llmDelta, error) {
	snapshot, _ := json.Marshal(current)
	reqBody, err := json.Marshal(chatRequest{
		Model: e.model,
		Messages: []chatMessage{
			{Role: "system", Content: extractionSystemPrompt},
			{Role: "user", Content: fmt.Sprintf("Current constraints: %s\nUser message: %s", snapshot, utterance)},
		},
		Temperature: 0,
		MaxTokens:   512,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.baseURL+"/v1/chat/completions", bytes.NewReader(reqBody))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if e.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+e.apiKey)
	}

	resp, err := e.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("extraction request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("extraction endpoint returned %d: %s", resp.StatusCode, truncate(string(body), 200))
	}

	var cr chatResponse
	if err := json.Unmarshal(body, &cr); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if len(cr.Choices) == 0 {
		return nil, fmt.Errorf("empty completion")
	}

	content := extractJSON(cr.Choices[0].Message.Content)
	var parsed llmDelta
	if err := json.Unmarshal([]byte(content), &parsed); err != nil {
		return nil, fmt.Errorf("decode delta: %w", err)
	}
	return &parsed, nil
}

func (p *llmDelta) toDelta() Delta {
	d := Delta{
		Brand:      strings.TrimSpace(p.Brand),
		Category:   strings.TrimSpace(p.Category),
		City:       strings.TrimSpace(p.City),
		Keywords:   p.Keywords,
		Attributes: p.Attributes,
		Summary:    strings.TrimSpace(p.Summary),
	}
	if p.PriceMin > 0 {
		v := p.PriceMin
		d.PriceMin = &v
	}
	if p.PriceMax > 0 {
		v := p.PriceMax
		d.PriceMax = &v
	}
	if p.MinWarrantyMonths > 0 {
		v := p.MinWarrantyMonths
		d.MinWarrantyMonths = &v
	}
	if p.MinSellerScore > 0 {
		v := p.MinSellerScore
		d.MinSellerScore = &v
	}
	for _, t := range p.Required {
		d.Require = append(d.Require, Topic(strings.ToLower(strings.TrimSpace(t))))
	}
	for _, t := range p.Dismissed {
		d.Dismiss = append(d.Dismiss, Topic(strings.ToLower(strings.TrimSpace(t))))
	}
	return d
}

// extractJSON strips markdown fences and surrounding prose around the first
// top-level JSON object in a completion.
func extractJSON(content string) string {
	start := strings.IndexByte(content, '{')
	end := strings.LastIndexByte(content, '}')
	if start >= 0 && end > start {
		return content[start : end+1]
	}
	return content
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
