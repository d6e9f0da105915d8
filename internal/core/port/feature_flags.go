package port

import "context"

// FeatureFlagProvider resolves boolean rollout flags, optionally per user.
type FeatureFlagProvider interface {
	GetBooleanValue(ctx context.Context, flagKey, userID string) (bool, error)
}
