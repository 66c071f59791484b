package location

import "context"

// Provider interface defines the methods for fingerprint providers.
type Provider interface {
	GetFingerprint(ctx context.Context) (Fingerprint, error)
}
