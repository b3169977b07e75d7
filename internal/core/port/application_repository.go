package port

import (
	"context"

	"github.com/arklim/sso-broker/internal/core/domain"
)

// ApplicationRepository reads client-application metadata. Applications are
// provisioned out-of-band; the broker never writes them.
type ApplicationRepository interface {
	GetByID(ctx context.Context, applicationID string) (*domain.Application, error)
	GetByIDs(ctx context.Context, applicationIDs []string) ([]domain.Application, error)
}
