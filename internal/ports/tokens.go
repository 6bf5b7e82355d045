package ports

import (
	"context"

	"github.com/viralforge/mesh/services/integrations/M62-access-control-bridge/internal/domain"
)

// TokenLifecycle is the slice of the credential manager the operational
// surface uses. Neither operation ever exposes the raw token to callers of
// the HTTP API; handlers only read metadata off the returned credential.
type TokenLifecycle interface {
	// ForceRefresh discards cached layers and re-authenticates.
	ForceRefresh(ctx context.Context) (domain.Credential, error)
	// Inspect reads the durable credential record without refreshing and
	// without expiry filtering, so operators can see an expired token.
	Inspect(ctx context.Context) (domain.Credential, bool, error)
}
