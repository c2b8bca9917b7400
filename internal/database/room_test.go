package database

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRandomCodeFormat(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 200; i++ {
		code := randomCode(codeLength)
		assert.Len(t, code, 6)
		for _, r := range code {
			assert.True(t, (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9'), "unexpected rune %q in code %q", r, code)
		}
		seen[code] = true
	}
	// 36^6 codes; 200 draws colliding would mean a broken generator.
	assert.Greater(t, len(seen), 190)
}

func TestNormalizeCode(t *testing.T) {
	assert.Equal(t, "AB12CD", NormalizeCode("ab12cd"))
	assert.Equal(t, "AB12CD", NormalizeCode("  Ab12Cd "))
	assert.Equal(t, "AB12CD", NormalizeCode("AB12CD"))
}
