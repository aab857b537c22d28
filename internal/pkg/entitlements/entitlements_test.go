package entitlements

import "testing"

func TestPlanForPriceKey(t *testing.T) {
	cases := []struct {
		key  string
		want Plan
	}{
		{"app_dev", PlanAppDev},
		{"b2b_sdk", PlanB2BSDK},
		{"b2b_appads", PlanB2BAppAds},
		{"b2b_premium", PlanB2BPremium},
		{" B2B_PREMIUM ", PlanB2BPremium},
		{"", PlanFree},
		{"legacy_gold", PlanFree},
	}
	for _, tc := range cases {
		if got := PlanForPriceKey(tc.key); got != tc.want {
			t.Errorf("PlanForPriceKey(%q) = %q, want %q", tc.key, got, tc.want)
		}
	}
}

func TestForPlanCapabilities(t *testing.T) {
	if f := ForPlan(PlanFree); f.SDKData || f.AdsData || f.ExportAccess {
		t.Errorf("free plan must not unlock paid features: %+v", f)
	}
	if f := ForPlan(PlanB2BSDK); !f.SDKData || f.AdsData {
		t.Errorf("sdk plan capabilities wrong: %+v", f)
	}
	if f := ForPlan(PlanB2BPremium); !f.SDKData || !f.AdsData || !f.ExportAccess || !f.PrioritySupport {
		t.Errorf("premium plan must unlock everything: %+v", f)
	}
}
