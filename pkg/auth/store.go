package auth

import (
	"context"

	"github.com/google/uuid"
	"github.com/tendant/simple-social-auth/pkg/domain"
)

// UserStore is the document store the services read and write users through.
// Create and Save report uniqueness violations as domain.ErrPersistenceConflict
// children; Save also rejects stale revisions.
type UserStore interface {
	Create(ctx context.Context, user *domain.User) error
	Save(ctx context.Context, user *domain.User) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.User, error)
	GetByUsername(ctx context.Context, username string) (*domain.User, error)
	GetByProviderSubject(ctx context.Context, provider domain.Provider, subject string) (*domain.User, error)
	GetByConfirmationToken(ctx context.Context, token string) (*domain.User, error)
	ListByEmail(ctx context.Context, email string) ([]*domain.User, error)
}

// Link outcomes reported to Metrics.
const (
	LinkOutcomeLinked   = "linked"
	LinkOutcomeRejected = "rejected"
	LinkOutcomeConflict = "conflict"
	LinkOutcomeError    = "error"
)

// Metrics receives counters from the services.
type Metrics interface {
	LinkCompleted(provider domain.Provider, outcome string)
	LazyUserCreated(attempts int)
	PasswordRehashed(fromAlgorithm string)
}

type nopMetrics struct{}

func (nopMetrics) LinkCompleted(domain.Provider, string) {}
func (nopMetrics) LazyUserCreated(int)                   {}
func (nopMetrics) PasswordRehashed(string)               {}

func metricsOrNop(m Metrics) Metrics {
	if m == nil {
		return nopMetrics{}
	}
	return m
}
