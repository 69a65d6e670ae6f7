package identity

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDerivation_Deterministic(t *testing.T) {
	a := PayerUUID("acme-health")
	b := PayerUUID("acme-health")
	assert.Equal(t, a, b, "same input must derive the same UUID across calls")
}

func TestDerivation_CaseInsensitive(t *testing.T) {
	assert.Equal(t, PayerUUID("Acme-Health"), PayerUUID("acme-health"))
}

func TestDerivation_DifferentInputsDiffer(t *testing.T) {
	assert.NotEqual(t, OrganizationUUID("12-3456789"), OrganizationUUID("98-7654321"))
}

func TestRateUUID_FloatCanonicalization(t *testing.T) {
	// 81.8 and 81.80 must hash identically: the fixed-point formatter in
	// RateUUID is what guarantees this, not Go's float equality.
	a := RateUUID("p", "o", "99213", "CPT", 81.8, "professional", "negotiated", "fp")
	b := RateUUID("p", "o", "99213", "CPT", 81.80, "professional", "negotiated", "fp")
	assert.Equal(t, a, b)
}

func TestRateUUID_DistinctOnAnyField(t *testing.T) {
	base := RateUUID("p", "o", "99213", "CPT", 81.8, "professional", "negotiated", "fp")
	assert.NotEqual(t, base, RateUUID("p2", "o", "99213", "CPT", 81.8, "professional", "negotiated", "fp"))
	assert.NotEqual(t, base, RateUUID("p", "o", "99214", "CPT", 81.8, "professional", "negotiated", "fp"))
	assert.NotEqual(t, base, RateUUID("p", "o", "99213", "CPT", 81.9, "professional", "negotiated", "fp"))
}

func TestValidNPI(t *testing.T) {
	cases := []struct {
		name string
		npi  string
		want bool
	}{
		{"valid test NPI", "1234567893", true},
		{"fails luhn", "1234567890", false},
		{"too short", "123456789", false},
		{"non-digit", "12345abcde", false},
		{"empty", "", false},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			assert.Equal(t, c.want, ValidNPI(c.npi))
		})
	}
}
