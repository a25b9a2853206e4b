// Package cache holds placement lookups (member to zone and structure,
// structure to zone) in front of the directory store. Values are opaque
// bytes so the backing store can be process memory or Redis.
package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	id "mutuelle/pkg/domain"
)

var ErrCacheMiss = errors.New("cache miss")

// DefaultTTL bounds how long a placement may be served after the member is
// moved to another structure.
const DefaultTTL = 5 * time.Minute

type Cache interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}

func MemberKey(memberID id.MemberID) string {
	return fmt.Sprintf("placement:member:%d", int64(memberID))
}

func StructureKey(structureID id.StructureID) string {
	return fmt.Sprintf("placement:structure:%d", int64(structureID))
}
