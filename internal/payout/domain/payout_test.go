package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCanTransition(t *testing.T) {
	all := []Status{StatusPending, StatusProcessing, StatusPaid, StatusFailed, StatusCancelled}
	allowed := map[Status][]Status{
		StatusPending:    {StatusProcessing, StatusPaid, StatusFailed},
		StatusProcessing: {StatusPaid, StatusFailed},
	}

	for _, from := range all {
		for _, to := range all {
			want := false
			for _, ok := range allowed[from] {
				if ok == to {
					want = true
				}
			}
			assert.Equal(t, want, from.CanTransition(to), "%s -> %s", from, to)
		}
	}
}

func TestParseProcessTarget(t *testing.T) {
	for _, raw := range []string{"processing", "paid", "failed"} {
		_, ok := ParseProcessTarget(raw)
		assert.True(t, ok, raw)
	}
	for _, raw := range []string{"pending", "cancelled", "PAID", ""} {
		_, ok := ParseProcessTarget(raw)
		assert.False(t, ok, raw)
	}
}

func TestActive(t *testing.T) {
	assert.True(t, StatusPending.Active())
	assert.True(t, StatusProcessing.Active())
	assert.False(t, StatusPaid.Active())
	assert.False(t, StatusFailed.Active())
	assert.False(t, StatusCancelled.Active())
}
