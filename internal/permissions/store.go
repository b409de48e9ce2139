package permissions

import (
	"context"
	"net/http"
	"time"

	"github.com/opexlabs/formscore/internal/models"
	apperrors "github.com/opexlabs/formscore/pkg/errors"
)

var (
	// ErrGrantNotFound indicates the referenced permission id does not exist.
	ErrGrantNotFound = apperrors.New("PERMISSION_NOT_FOUND", "Permission not found", http.StatusNotFound)
	// ErrStoreUnavailable indicates the record store failed to respond; callers
	// must treat the guarded action as denied but report the failure as an
	// infrastructure error, never as an authorization denial.
	ErrStoreUnavailable = apperrors.ErrStoreUnavailable
)

// Store is the durable collaborator holding permission grants. Implementations
// must provide atomic per-record writes; no cross-record transactions are
// required. All calls honour the supplied context deadline and surface
// infrastructure failures as ErrStoreUnavailable.
type Store interface {
	// Insert persists a new grant, failing if the id already exists.
	Insert(ctx context.Context, grant *models.PermissionGrant) error

	// GetByID loads a single grant, returning ErrGrantNotFound when absent.
	GetByID(ctx context.Context, id string) (*models.PermissionGrant, error)

	// GetBySubject returns every grant for the user regardless of the active
	// flag or expiry; filtering to effective grants is the evaluator's job.
	GetBySubject(ctx context.Context, userID string) ([]models.PermissionGrant, error)

	// MarkRevoked atomically flips a grant inactive and stamps the revocation
	// metadata. This is the only in-place mutation a grant ever receives.
	MarkRevoked(ctx context.Context, id, revokedBy string, revokedAt time.Time, notes *string) error
}
