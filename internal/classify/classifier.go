// Package classify calls the AI provider for accounting suggestions and
// normalizes its structured responses.
package classify

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/tiktoken-go/tokenizer"
)

const systemPrompt = `You are an expert accounting assistant for Norwegian accounting firms.
Your task is to analyze invoice documents and suggest appropriate accounting entries.

Given OCR-extracted text from an invoice, provide:
1. Suggested account number (Norwegian chart of accounts format)
2. Suggested VAT code (Norwegian VAT codes: 0, 1, 2, 3, 5, 6)
3. Confidence level (0.0 to 1.0)
4. Risk assessment (low, medium, high)

Respond ONLY with valid JSON in this exact format:
{
    "account_number": "string or null",
    "vat_code": "string or null",
    "confidence": 0.0-1.0,
    "risk_level": "low|medium|high",
    "reasoning": "brief explanation"
}

Be conservative with confidence scores. If information is unclear, use lower confidence.
Flag high risk if:
- Account number seems unusual for the transaction type
- VAT code doesn't match typical patterns
- Amounts are unusually large
- Missing critical information`

const (
	defaultModel           = "gpt-4o-mini"
	defaultMaxPromptTokens = 8000
	temperature            = 0.3
)

// Result is the normalized suggestion from the provider. AccountNumber
// and VATCode may be empty when the provider could not determine them;
// validity is judged downstream by the rules.
type Result struct {
	AccountNumber string  `json:"account_number"`
	VATCode       string  `json:"vat_code"`
	Confidence    float64 `json:"confidence"`
	RiskHint      string  `json:"risk_level"`
	Reasoning     string  `json:"reasoning"`
}

// PromptStats describes the prompt actually sent, for the audit trail.
type PromptStats struct {
	Tokens    int
	Truncated bool
}

// Option configures the classifier.
type Option func(*Classifier)

// WithModel overrides the provider model.
func WithModel(model string) Option {
	return func(c *Classifier) {
		if model != "" {
			c.model = model
		}
	}
}

// WithMaxPromptTokens bounds the OCR text sent to the provider. Longer
// texts are truncated at a token boundary.
func WithMaxPromptTokens(n int) Option {
	return func(c *Classifier) {
		if n > 0 {
			c.maxPromptTokens = n
		}
	}
}

// Classifier turns extracted invoice text into an accounting suggestion
// via the chat completions API.
type Classifier struct {
	client          *Client
	model           string
	maxPromptTokens int

	codecOnce sync.Once
	codec     tokenizer.Codec
	codecErr  error
}

// NewClassifier creates a classifier over the given API client.
func NewClassifier(client *Client, opts ...Option) *Classifier {
	c := &Classifier{
		client:          client,
		model:           defaultModel,
		maxPromptTokens: defaultMaxPromptTokens,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Suggest asks the provider for an accounting suggestion. Malformed
// provider responses are errors, never silently-defaulted values.
func (c *Classifier) Suggest(ctx context.Context, ocrText string) (*Result, PromptStats, error) {
	text, stats, err := c.fitToBudget(ocrText)
	if err != nil {
		return nil, stats, err
	}

	resp, err := c.client.CreateChatCompletion(ctx, &ChatCompletionRequest{
		Model: c.model,
		Messages: []Message{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: userPrompt(text)},
		},
		Temperature:    temperature,
		ResponseFormat: &ResponseFormat{Type: "json_object"},
	})
	if err != nil {
		return nil, stats, fmt.Errorf("suggestion generation failed: %w", err)
	}

	if len(resp.Choices) == 0 {
		return nil, stats, fmt.Errorf("malformed provider response: no choices")
	}

	result, err := parseResult(resp.Choices[0].Message.Content)
	if err != nil {
		return nil, stats, err
	}
	return result, stats, nil
}

// PromptForAudit returns the full prompt sent for the given text, for the
// audit trail.
func (c *Classifier) PromptForAudit(ocrText string) string {
	text, _, err := c.fitToBudget(ocrText)
	if err != nil {
		text = ocrText
	}
	return "System: " + systemPrompt + "\n\nUser: " + userPrompt(text)
}

func userPrompt(text string) string {
	return fmt.Sprintf("Analyze this invoice document and provide accounting suggestions:\n\n%s\n\nProvide your analysis in the required JSON format.", text)
}

func parseResult(content string) (*Result, error) {
	var raw struct {
		AccountNumber *string  `json:"account_number"`
		VATCode       *string  `json:"vat_code"`
		Confidence    *float64 `json:"confidence"`
		RiskLevel     string   `json:"risk_level"`
		Reasoning     string   `json:"reasoning"`
	}
	if err := json.Unmarshal([]byte(content), &raw); err != nil {
		return nil, fmt.Errorf("malformed provider response: %w", err)
	}

	result := &Result{
		RiskHint:  strings.ToLower(raw.RiskLevel),
		Reasoning: raw.Reasoning,
	}
	if raw.AccountNumber != nil {
		result.AccountNumber = *raw.AccountNumber
	}
	if raw.VATCode != nil {
		result.VATCode = *raw.VATCode
	}
	if raw.Confidence != nil {
		if *raw.Confidence < 0 || *raw.Confidence > 1 {
			return nil, fmt.Errorf("malformed provider response: confidence %v out of range", *raw.Confidence)
		}
		result.Confidence = *raw.Confidence
	}
	if result.RiskHint == "" {
		result.RiskHint = "medium"
	}
	return result, nil
}

func (c *Classifier) getCodec() (tokenizer.Codec, error) {
	c.codecOnce.Do(func() {
		codec, err := tokenizer.ForModel(tokenizer.Model(c.model))
		if err != nil {
			// Unknown models fall back to the newest encoding.
			codec, err = tokenizer.Get(tokenizer.O200kBase)
		}
		c.codec, c.codecErr = codec, err
	})
	return c.codec, c.codecErr
}

// fitToBudget counts prompt tokens for the OCR text and truncates it at a
// token boundary when it exceeds the configured budget.
func (c *Classifier) fitToBudget(text string) (string, PromptStats, error) {
	codec, err := c.getCodec()
	if err != nil {
		return "", PromptStats{}, fmt.Errorf("failed to load tokenizer: %w", err)
	}

	ids, _, err := codec.Encode(text)
	if err != nil {
		return "", PromptStats{}, fmt.Errorf("failed to tokenize text: %w", err)
	}
	if len(ids) <= c.maxPromptTokens {
		return text, PromptStats{Tokens: len(ids)}, nil
	}

	truncated, err := codec.Decode(ids[:c.maxPromptTokens])
	if err != nil {
		return "", PromptStats{}, fmt.Errorf("failed to truncate text: %w", err)
	}
	return truncated, PromptStats{Tokens: c.maxPromptTokens, Truncated: true}, nil
}
