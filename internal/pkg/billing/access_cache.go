package billing

import (
	"fmt"
	"log"
	"time"

	"github.com/appgoblin/AppGoblin/internal/pkg/cache"
)

const paidAccessCacheTTL = 5 * time.Minute

func paidAccessCacheKey(userID uint) string {
	return fmt.Sprintf("billing:paid_access:%d", userID)
}

// CachedPaidAccess is HasPaidAccess behind a short-lived Redis cache. Webhook
// reconciliation invalidates the entry, so subscription changes take effect
// on the next request rather than after the TTL.
func (s *Service) CachedPaidAccess(userID uint) (bool, error) {
	key := paidAccessCacheKey(userID)
	if val, err := cache.Get(key); err == nil {
		return val == "true", nil
	}

	paid, err := s.HasPaidAccess(userID)
	if err != nil {
		return false, err
	}
	if err := cache.Set(key, fmt.Sprintf("%t", paid), paidAccessCacheTTL); err != nil {
		log.Printf("caching paid access for user %d failed: %v", userID, err)
	}
	return paid, nil
}

// InvalidatePaidAccess drops the cached paid-access answer for a user.
func InvalidatePaidAccess(userID uint) {
	if err := cache.Delete(paidAccessCacheKey(userID)); err != nil {
		log.Printf("invalidating paid access cache for user %d failed: %v", userID, err)
	}
}
