package predictor

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"text/template"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/ericfisherdev/issuetriage/internal/domain/model"
	"github.com/ericfisherdev/issuetriage/internal/domain/port/driven"
)

// Compile-time interface satisfaction check.
var _ driven.LabelPredictor = (*AnthropicPredictor)(nil)

// DefaultAnthropicModel is used when no model is configured.
const DefaultAnthropicModel = "claude-haiku-4-5"

// ErrAPIKeyRequired is returned when no Anthropic API key is configured.
var ErrAPIKeyRequired = errors.New("anthropic API key required: set ISSUETRIAGE_ANTHROPIC_API_KEY")

const classifyPromptTemplate = `You classify GitHub issues into exactly one of these categories:
{{range .Categories}}- {{.Name}}{{if .Description}}: {{.Description}}{{end}}
{{end}}
Reply with JSON only, no prose, in this shape:
{"primary_label": "<category>", "primary_score": <0..1>, "secondary_label": "<category>", "secondary_score": <0..1>}

The secondary label is the next most likely category. Scores are your confidence.

Issue:
{{.Text}}`

// AnthropicPredictor asks a Claude model to pick the top-2 categories.
type AnthropicPredictor struct {
	client     anthropic.Client
	model      anthropic.Model
	categories []model.Category
	prompt     *template.Template
}

// NewAnthropicPredictor creates a predictor for the given categories. Extra
// request options (base URL, HTTP client) are appended after the API key.
// Retries are disabled: every prediction is attempted once.
func NewAnthropicPredictor(apiKey, modelName string, categories []model.Category, opts ...option.RequestOption) (*AnthropicPredictor, error) {
	if apiKey == "" {
		return nil, ErrAPIKeyRequired
	}
	if modelName == "" {
		modelName = DefaultAnthropicModel
	}

	tmpl, err := template.New("classify").Parse(classifyPromptTemplate)
	if err != nil {
		return nil, fmt.Errorf("parse classify template: %w", err)
	}

	reqOpts := append([]option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithMaxRetries(0),
	}, opts...)

	return &AnthropicPredictor{
		client:     anthropic.NewClient(reqOpts...),
		model:      anthropic.Model(modelName),
		categories: categories,
		prompt:     tmpl,
	}, nil
}

// Predict classifies text. Labels outside the configured categories are
// discarded; an unknown primary label yields nil, nil.
func (p *AnthropicPredictor) Predict(ctx context.Context, text string) (*model.Prediction, error) {
	var buf bytes.Buffer
	err := p.prompt.Execute(&buf, struct {
		Categories []model.Category
		Text       string
	}{p.categories, text})
	if err != nil {
		return nil, fmt.Errorf("render classify prompt: %w", err)
	}

	message, err := p.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     p.model,
		MaxTokens: 256,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(buf.String())),
		},
	})
	if err != nil {
		var apiErr *anthropic.Error
		if errors.As(err, &apiErr) {
			return nil, &driven.UpstreamError{StatusCode: apiErr.StatusCode, Err: err}
		}
		return nil, fmt.Errorf("anthropic messages: %w", err)
	}

	if len(message.Content) == 0 || message.Content[0].Type != "text" {
		return nil, fmt.Errorf("unexpected response format: no text block")
	}

	var out predictResponse
	if err := json.Unmarshal([]byte(extractJSON(message.Content[0].Text)), &out); err != nil {
		return nil, fmt.Errorf("decode classification: %w", err)
	}

	out.PrimaryLabel = p.canonical(out.PrimaryLabel)
	out.SecondaryLabel = p.canonical(out.SecondaryLabel)
	if out.SecondaryLabel == "" {
		out.SecondaryScore = 0
	}
	return toPrediction(out)
}

// canonical maps a returned label onto the configured category spelling,
// or "" when it is not one of them.
func (p *AnthropicPredictor) canonical(label string) string {
	label = strings.TrimSpace(label)
	for _, c := range p.categories {
		if strings.EqualFold(c.Name, label) {
			return c.Name
		}
	}
	return ""
}

// extractJSON trims any text around the outermost JSON object.
func extractJSON(s string) string {
	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start < 0 || end < start {
		return s
	}
	return s[start : end+1]
}
