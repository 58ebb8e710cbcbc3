package repository

import (
	"context"

	"github.com/smallbiznis/smallbiznis-users/internal/domain"
)

// AccountRepository is the durable keyed store of account records. Absent
// records are reported as pgx.ErrNoRows wrapped in context.
type AccountRepository interface {
	GetByUsername(ctx context.Context, username string) (domain.Account, error)
	GetByEmail(ctx context.Context, email string) (domain.Account, error)
	List(ctx context.Context, role domain.Role) ([]domain.AccountSummary, error)
	Create(ctx context.Context, account domain.Account) (domain.Account, error)
	Update(ctx context.Context, account domain.Account) (domain.Account, error)
	Delete(ctx context.Context, username string) error
}

// MessageRepository owns the dependent message records cascaded on account
// deletion.
type MessageRepository interface {
	DeleteAllForParticipant(ctx context.Context, username string) (int64, error)
}
