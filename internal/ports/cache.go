package ports

import (
	"context"
	"time"

	"github.com/viralforge/mesh/services/integrations/M62-access-control-bridge/internal/domain"
)

// CredentialStore is the durable cross-process home of the vendor credential.
// All fields live under one composite key whose TTL equals the remaining
// token lifetime, so an expired credential evicts itself.
type CredentialStore interface {
	// Save persists the credential. A credential failing domain validation
	// or already expired is rejected with domain.ErrInvalidInput.
	Save(ctx context.Context, cred domain.Credential) error
	// Load fetches the stored credential. A missing key returns found=false
	// with no error. A corrupt record is treated as absent and removed, so
	// callers fall through to re-authentication instead of failing.
	Load(ctx context.Context) (domain.Credential, bool, error)
	Clear(ctx context.Context) error
}

// ReleaseFunc frees an acquired refresh lock. Release failures are logged by
// the adapter, not returned; the lock TTL bounds the damage either way.
type ReleaseFunc func(ctx context.Context)

// RefreshLock serializes credential refresh across processes.
type RefreshLock interface {
	// Acquire polls for the lock until wait elapses. ok=false means another
	// holder kept it the whole time; that is contention, not an error.
	Acquire(ctx context.Context, wait time.Duration) (release ReleaseFunc, ok bool, err error)
}
