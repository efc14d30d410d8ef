package config

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestValidateCommissionPolicy(t *testing.T) {
	cases := []struct {
		name    string
		policy  CommissionPolicy
		wantErr bool
	}{
		{"default", DefaultCommissionPolicy(), false},
		{"zero rate", CommissionPolicy{Rate: decimal.Zero, CodePrefix: "CRYPT"}, true},
		{"rate of one", CommissionPolicy{Rate: decimal.NewFromInt(1), CodePrefix: "CRYPT"}, true},
		{"lowercase prefix", CommissionPolicy{Rate: decimal.RequireFromString("0.1"), CodePrefix: "crypt"}, true},
		{"prefix with digits", CommissionPolicy{Rate: decimal.RequireFromString("0.1"), CodePrefix: "AB1"}, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := ValidateCommissionPolicy(tc.policy)
			if tc.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestCommissionPolicyHolderDefaults(t *testing.T) {
	var holder *CommissionPolicyHolder
	policy := holder.Get()
	assert.True(t, policy.Rate.Equal(decimal.RequireFromString("0.05")))
	assert.Equal(t, "CRYPT", policy.CodePrefix)

	static := NewStaticCommissionPolicyHolder(CommissionPolicy{Rate: decimal.RequireFromString("0.1"), CodePrefix: "PART"})
	assert.Equal(t, "PART", static.Get().CodePrefix)
}
