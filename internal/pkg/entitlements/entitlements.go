package entitlements

import (
	"strings"

	"github.com/appgoblin/AppGoblin/internal/pkg/billing"
)

type Plan string

const (
	PlanFree       Plan = "free"
	PlanAppDev     Plan = "app_dev"
	PlanB2BSDK     Plan = "b2b_sdk"
	PlanB2BAppAds  Plan = "b2b_appads"
	PlanB2BPremium Plan = "b2b_premium"
)

// Features is the capability set a plan unlocks in the product surface.
type Features struct {
	SDKData         bool `json:"sdk_data"`
	AdsData         bool `json:"ads_data"`
	ExportAccess    bool `json:"export_access"`
	PrioritySupport bool `json:"priority_support"`
}

// PlanForPriceKey maps a checkout price selector to its plan.
func PlanForPriceKey(priceKey string) Plan {
	switch strings.ToLower(strings.TrimSpace(priceKey)) {
	case billing.PriceKeyAppDev:
		return PlanAppDev
	case billing.PriceKeyB2BSDK:
		return PlanB2BSDK
	case billing.PriceKeyB2BAppAds:
		return PlanB2BAppAds
	case billing.PriceKeyB2BPremium:
		return PlanB2BPremium
	default:
		return PlanFree
	}
}

// ForPlan returns the capability set a plan unlocks. Unknown plans get the
// free tier.
func ForPlan(plan Plan) Features {
	switch plan {
	case PlanB2BPremium:
		return Features{SDKData: true, AdsData: true, ExportAccess: true, PrioritySupport: true}
	case PlanB2BSDK:
		return Features{SDKData: true, ExportAccess: true}
	case PlanB2BAppAds:
		return Features{AdsData: true, ExportAccess: true}
	case PlanAppDev:
		return Features{ExportAccess: true}
	default:
		return Features{}
	}
}
