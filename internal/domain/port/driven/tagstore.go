package driven

import (
	"context"

	"github.com/ericfisherdev/issuetriage/internal/domain/model"
)

// TagStore defines the driven port for tags and their associations with
// issues. Tag names match ignoring case.
type TagStore interface {
	Create(ctx context.Context, tag model.Tag) (model.Tag, error)
	Update(ctx context.Context, tag model.Tag) error
	GetByID(ctx context.Context, id int64) (*model.Tag, error)
	FindByName(ctx context.Context, name string) (*model.Tag, error)
	// GetOrCreate returns the tag named name, creating it when absent.
	GetOrCreate(ctx context.Context, name string) (model.Tag, error)
	ListAll(ctx context.Context) ([]model.Tag, error)

	// ApplyTag associates a tag with an issue. Applying twice is a no-op.
	ApplyTag(ctx context.Context, issueID, tagID int64) error
	// ReplaceAppliedTags sets the issue's applied tags to exactly tagIDs.
	ReplaceAppliedTags(ctx context.Context, issueID int64, tagIDs []int64) error
	ListAppliedTags(ctx context.Context, issueID int64) ([]model.Tag, error)

	// ReplacePredictedTags replaces all predictions for an issue atomically.
	ReplacePredictedTags(ctx context.Context, issueID int64, predictions []model.PredictedTag) error
	ListPredictedTags(ctx context.Context, issueID int64) ([]model.PredictedTag, error)
}
