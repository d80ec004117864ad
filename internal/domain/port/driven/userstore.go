package driven

import (
	"context"

	"github.com/ericfisherdev/issuetriage/internal/domain/model"
)

// UserStore defines the driven port for users.
type UserStore interface {
	GetOrCreate(ctx context.Context, login string) (model.User, error)
	// GetByLogin returns nil, nil if the user does not exist.
	GetByLogin(ctx context.Context, login string) (*model.User, error)
}
