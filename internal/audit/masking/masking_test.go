package masking

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMaskSecret(t *testing.T) {
	assert.Equal(t, "", MaskSecret("  "))
	assert.Equal(t, "****", MaskSecret("abc"))
	assert.Equal(t, "****7890", MaskSecret("FT1234567890"))
}

func TestMaskMetadata(t *testing.T) {
	out := MaskMetadata(map[string]any{
		"bank_transaction_no": "FT1234567890",
		"amount":              int64(500),
		"nested":              map[string]any{"vnp_SecureHash": "deadbeefcafe"},
		"  ":                  "dropped",
	})

	assert.Equal(t, "****7890", out["bank_transaction_no"])
	assert.Equal(t, int64(500), out["amount"])
	assert.Equal(t, map[string]any{"vnp_SecureHash": "****cafe"}, out["nested"])
	assert.Len(t, out, 3)
}
