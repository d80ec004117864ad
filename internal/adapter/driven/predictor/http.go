// Package predictor implements the LabelPredictor port against a remote
// text classifier or the Anthropic Messages API.
package predictor

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/ericfisherdev/issuetriage/internal/domain/model"
	"github.com/ericfisherdev/issuetriage/internal/domain/port/driven"
)

// Compile-time interface satisfaction check.
var _ driven.LabelPredictor = (*HTTPPredictor)(nil)

// predictorHTTPClient enforces a 30-second timeout as a safety net alongside
// context cancellation.
var predictorHTTPClient = &http.Client{Timeout: 30 * time.Second}

type predictRequest struct {
	Text string `json:"text"`
}

type predictResponse struct {
	PrimaryLabel   string  `json:"primary_label"`
	PrimaryScore   float64 `json:"primary_score"`
	SecondaryLabel string  `json:"secondary_label"`
	SecondaryScore float64 `json:"secondary_score"`
}

// HTTPPredictor calls a classifier service that answers
// POST {"text": ...} with the top-2 labels and their scores.
type HTTPPredictor struct {
	url    string
	client *http.Client
}

// NewHTTPPredictor creates a predictor posting to url. A nil client uses a
// default client with a 30-second timeout.
func NewHTTPPredictor(url string, client *http.Client) *HTTPPredictor {
	if client == nil {
		client = predictorHTTPClient
	}
	return &HTTPPredictor{url: url, client: client}
}

// Predict classifies text. It returns nil, nil when the classifier answers
// 204 No Content or with an empty primary label. The request is attempted
// once.
func (p *HTTPPredictor) Predict(ctx context.Context, text string) (*model.Prediction, error) {
	body, err := json.Marshal(predictRequest{Text: text})
	if err != nil {
		return nil, fmt.Errorf("marshal predict request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create predict request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("predict request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNoContent {
		return nil, nil
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, &driven.UpstreamError{
			StatusCode: resp.StatusCode,
			Err:        fmt.Errorf("classifier: %s", bytes.TrimSpace(msg)),
		}
	}

	var out predictResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode predict response: %w", err)
	}

	return toPrediction(out)
}

// toPrediction validates a classifier answer.
func toPrediction(out predictResponse) (*model.Prediction, error) {
	if out.PrimaryLabel == "" {
		return nil, nil
	}
	if !validScore(out.PrimaryScore) || !validScore(out.SecondaryScore) {
		return nil, fmt.Errorf("classifier returned scores outside [0,1]: %v, %v", out.PrimaryScore, out.SecondaryScore)
	}

	return &model.Prediction{
		PrimaryLabel:   out.PrimaryLabel,
		PrimaryScore:   out.PrimaryScore,
		SecondaryLabel: out.SecondaryLabel,
		SecondaryScore: out.SecondaryScore,
	}, nil
}

func validScore(s float64) bool {
	return s >= 0 && s <= 1
}
