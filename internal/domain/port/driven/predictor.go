package driven

import (
	"context"

	"github.com/ericfisherdev/issuetriage/internal/domain/model"
)

// LabelPredictor classifies free text into the categorization taxonomy.
// Predict returns nil, nil when the predictor has no answer.
type LabelPredictor interface {
	Predict(ctx context.Context, text string) (*model.Prediction, error)
}
