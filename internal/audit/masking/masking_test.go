package masking

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMaskSecret(t *testing.T) {
	assert.Equal(t, "", MaskSecret("  "))
	assert.Equal(t, "****", MaskSecret("123"))
	assert.Equal(t, "****7890", MaskSecret("1234567890"))
}

func TestMaskSensitiveOnlyTouchesListedKeys(t *testing.T) {
	out := MaskSensitive(map[string]any{
		"account_number": "0123456789",
		"bank_code":      "058",
		"nested": map[string]any{
			"account_number": "9876543210",
		},
		"amount": 12,
	})

	assert.Equal(t, "****6789", out["account_number"])
	assert.Equal(t, "058", out["bank_code"])
	assert.Equal(t, "****3210", out["nested"].(map[string]any)["account_number"])
	assert.Equal(t, 12, out["amount"])
}
