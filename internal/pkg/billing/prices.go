package billing

import (
	"strings"

	"github.com/appgoblin/AppGoblin/internal/pkg/env"
)

// Price selector keys offered on the pricing page. Each maps to a Stripe
// price id configured in the environment.
const (
	PriceKeyAppDev     = "app_dev"
	PriceKeyB2BSDK     = "b2b_sdk"
	PriceKeyB2BAppAds  = "b2b_appads"
	PriceKeyB2BPremium = "b2b_premium"
)

// PriceMap resolves price selector keys to Stripe price ids.
type PriceMap map[string]string

// LoadPriceMapFromEnv builds the fixed selector mapping from the environment.
// Keys with no configured price id are left out, so checkout attempts against
// them fail with ErrInvalidPriceKey.
func LoadPriceMapFromEnv() PriceMap {
	m := PriceMap{}
	for key, envVar := range map[string]string{
		PriceKeyAppDev:     "STRIPE_PRICE_APP_DEV_ID",
		PriceKeyB2BSDK:     "STRIPE_PRICE_B2B_SDK_ID",
		PriceKeyB2BAppAds:  "STRIPE_PRICE_B2B_APPADS_ID",
		PriceKeyB2BPremium: "STRIPE_PRICE_B2B_PREMIUM_ID",
	} {
		if id := strings.TrimSpace(env.GetEnv(envVar, "")); id != "" {
			m[key] = id
		}
	}
	return m
}

// KeyForPriceID reverse-maps a Stripe price id to its selector key. Returns
// the empty string for unknown price ids (e.g. plans retired from the map).
func (m PriceMap) KeyForPriceID(priceID string) string {
	for key, id := range m {
		if id == priceID {
			return key
		}
	}
	return ""
}

// MissingKeys lists known selector keys without a configured price id, for
// startup diagnostics.
func (m PriceMap) MissingKeys() []string {
	var missing []string
	for _, key := range []string{PriceKeyAppDev, PriceKeyB2BSDK, PriceKeyB2BAppAds, PriceKeyB2BPremium} {
		if m[key] == "" {
			missing = append(missing, key)
		}
	}
	return missing
}

// Resolve maps a selector key to its Stripe price id.
func (m PriceMap) Resolve(key string) (string, error) {
	id, ok := m[strings.TrimSpace(key)]
	if !ok || id == "" {
		return "", ErrInvalidPriceKey
	}
	return id, nil
}
