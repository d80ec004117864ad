package driven

import (
	"context"

	"github.com/ericfisherdev/issuetriage/internal/domain/model"
)

// RepoStore defines the driven port for repository persistence.
// Add returns ErrRepoAlreadyExists if the user already tracks owner/name.
// Get methods return nil, nil when nothing matches.
type RepoStore interface {
	Add(ctx context.Context, repo model.Repository) (model.Repository, error)
	Update(ctx context.Context, repo model.Repository) error
	GetByID(ctx context.Context, userID, id int64) (*model.Repository, error)
	GetByOwnerName(ctx context.Context, userID int64, owner, name string) (*model.Repository, error)
	ListByUser(ctx context.Context, userID int64) ([]model.Repository, error)
	// ListByOwnerName returns every user's registration of owner/name.
	ListByOwnerName(ctx context.Context, owner, name string) ([]model.Repository, error)
}
