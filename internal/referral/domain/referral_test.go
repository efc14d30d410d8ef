package domain

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPayoutEligible(t *testing.T) {
	base := Referral{
		Status:                StatusFullyPaid,
		CommissionEligible:    true,
		TotalCommissionEarned: decimal.NewFromInt(5000),
	}
	assert.True(t, base.PayoutEligible())

	tests := []struct {
		name   string
		mutate func(r *Referral)
	}{
		{name: "not fully paid", mutate: func(r *Referral) { r.Status = StatusWon }},
		{name: "not commission eligible", mutate: func(r *Referral) { r.CommissionEligible = false }},
		{name: "payout requested", mutate: func(r *Referral) { r.PayoutRequested = true }},
		{name: "nothing earned", mutate: func(r *Referral) { r.TotalCommissionEarned = decimal.Zero }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := base
			tt.mutate(&r)
			assert.False(t, r.PayoutEligible())
		})
	}
}

func TestEligibleIgnoringRequest(t *testing.T) {
	r := Referral{
		Status:                StatusFullyPaid,
		CommissionEligible:    true,
		PayoutRequested:       true,
		TotalCommissionEarned: decimal.NewFromInt(1),
	}
	assert.False(t, r.PayoutEligible())
	assert.True(t, r.EligibleIgnoringRequest())
	assert.True(t, r.PayoutRequested)
}

func TestParseStatus(t *testing.T) {
	s, ok := ParseStatus("meeting_scheduled")
	require.True(t, ok)
	assert.Equal(t, StatusMeetingScheduled, s)

	_, ok = ParseStatus("archived")
	assert.False(t, ok)
	_, ok = ParseStatus("WON")
	assert.False(t, ok)
}

func TestNewCodeMatchesPattern(t *testing.T) {
	for i := 0; i < 50; i++ {
		code, err := NewCode("CRYPT")
		require.NoError(t, err)
		assert.True(t, ValidCode(code), code)
	}
}

func TestValidCode(t *testing.T) {
	assert.True(t, ValidCode("CRYPT-AB12CD"))
	assert.False(t, ValidCode("CRYPT-ab12cd"))
	assert.False(t, ValidCode("CRYPT-AB12C"))
	assert.False(t, ValidCode("C-AB12CD"))
	assert.False(t, ValidCode("CRYPT-AB12CD'--"))
}

func TestLeadStatusFor(t *testing.T) {
	got, ok := LeadStatusFor(StatusFullyPaid)
	assert.True(t, ok)
	assert.Equal(t, LeadStatusConverted, got)

	got, ok = LeadStatusFor(StatusLost)
	assert.True(t, ok)
	assert.Equal(t, LeadStatusLost, got)

	_, ok = LeadStatusFor(StatusNegotiation)
	assert.False(t, ok)
}
