package billing

import (
	"github.com/spa/backend/internal/domain/billing"
)

// ChargePolicyProvider supplies the rate snapshot a recalculation runs with.
// The rates in force are read once per operation so that a config change
// mid-flight cannot produce an invoice computed under two policies.
type ChargePolicyProvider interface {
	Current() billing.ChargePolicy
}

// StaticChargePolicyProvider serves one fixed policy, loaded from
// configuration at startup.
type StaticChargePolicyProvider struct {
	policy billing.ChargePolicy
}

// NewStaticChargePolicyProvider creates a provider around a fixed policy
func NewStaticChargePolicyProvider(policy billing.ChargePolicy) *StaticChargePolicyProvider {
	return &StaticChargePolicyProvider{policy: policy}
}

// Current returns the configured policy
func (p *StaticChargePolicyProvider) Current() billing.ChargePolicy {
	return p.policy
}
