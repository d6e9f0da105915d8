package redis

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	red "github.com/redis/go-redis/v9"

	"github.com/hmcts/wa-task-management-api-sub002/internal/core/port"
)

const (
	defaultFeatureFlagPrefix = "wa:feature_flags"
	// allUsersField holds the value applied to users without an individual override.
	allUsersField = "*"
)

// FeatureFlagRepository resolves boolean flags from one Redis hash per flag. Hash fields are user
// ids plus "*" for everyone.
type FeatureFlagRepository struct {
	client   *red.Client
	prefix   string
	defaults map[string]bool
}

// NewFeatureFlagRepository constructs the flag store. defaults apply when Redis has no value.
func NewFeatureFlagRepository(client *red.Client, keyPrefix string, defaults map[string]bool) *FeatureFlagRepository {
	prefix := strings.TrimSpace(keyPrefix)
	if prefix == "" {
		prefix = defaultFeatureFlagPrefix
	}
	copied := make(map[string]bool, len(defaults))
	for k, v := range defaults {
		copied[k] = v
	}
	return &FeatureFlagRepository{client: client, prefix: prefix, defaults: copied}
}

var _ port.FeatureFlagProvider = (*FeatureFlagRepository)(nil)

// GetBooleanValue returns the user's override, then the all-users value, then the default.
func (r *FeatureFlagRepository) GetBooleanValue(ctx context.Context, flagKey, userID string) (bool, error) {
	key := r.key(flagKey)
	if key == "" {
		return false, fmt.Errorf("flag key is required")
	}

	fields := []string{allUsersField}
	if userID = strings.TrimSpace(userID); userID != "" {
		fields = []string{userID, allUsersField}
	}

	values, err := r.client.HMGet(ctx, key, fields...).Result()
	if err != nil && !errors.Is(err, red.Nil) {
		return r.defaults[flagKey], fmt.Errorf("redis hmget feature flag: %w", err)
	}

	for _, value := range values {
		raw, ok := value.(string)
		if !ok {
			continue
		}
		parsed, parseErr := strconv.ParseBool(raw)
		if parseErr != nil {
			return r.defaults[flagKey], fmt.Errorf("parse feature flag %s: %w", flagKey, parseErr)
		}
		return parsed, nil
	}
	return r.defaults[flagKey], nil
}

// SetBooleanValue stores a value for one user, or for everyone when userID is empty.
func (r *FeatureFlagRepository) SetBooleanValue(ctx context.Context, flagKey, userID string, value bool) error {
	key := r.key(flagKey)
	if key == "" {
		return fmt.Errorf("flag key is required")
	}
	field := strings.TrimSpace(userID)
	if field == "" {
		field = allUsersField
	}
	if err := r.client.HSet(ctx, key, field, strconv.FormatBool(value)).Err(); err != nil {
		return fmt.Errorf("redis hset feature flag: %w", err)
	}
	return nil
}

func (r *FeatureFlagRepository) key(flagKey string) string {
	flagKey = strings.TrimSpace(flagKey)
	if flagKey == "" {
		return ""
	}
	return fmt.Sprintf("%s:%s", r.prefix, flagKey)
}
