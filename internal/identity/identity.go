// Package identity derives deterministic UUIDv5 identifiers for every
// canonical entity and validates National Provider Identifiers via the
// Luhn check digit the CMS NPPES registry assigns them under.
//
// Every derivation here is a pure function of its inputs: the same
// canonicalized string always produces the same UUID, which is what lets
// the pipeline reproduce identical rate_uuid values across reruns on
// identical input (Testable Property 1).
package identity

import (
	"strconv"
	"strings"

	"github.com/google/uuid"
)

// Namespace is the fixed UUID namespace every derivation in this package
// hashes under. It is a project constant, not a well-known RFC namespace,
// so identifiers minted here never collide with UUIDs from an unrelated
// system that happens to hash the same plain string.
var Namespace = uuid.MustParse("7f3c9e10-7b44-5e8a-9b8e-5a1c6d4f9a21")

func derive(parts ...string) string {
	canon := strings.ToLower(strings.Join(parts, "|"))
	return uuid.NewSHA1(Namespace, []byte(canon)).String()
}

// PayerUUID derives a Payer's identifier from its configured endpoint name.
func PayerUUID(payerName string) string {
	return derive("payer", payerName)
}

// OrganizationUUID derives an Organization's identifier from its TIN alone,
// the canonical model's TIN-only natural key.
func OrganizationUUID(tin string) string {
	return derive("organization", tin)
}

// ProviderUUID derives a Provider's identifier from its NPI alone.
func ProviderUUID(npi string) string {
	return derive("provider", npi)
}

// RateUUID derives a Rate's identifier from the full tuple that determines
// whether two negotiated terms are "the same rate": payer, organization,
// service code, billing code vocabulary, the negotiated amount itself,
// billing class, rate type, and the fingerprint of whatever plan the rate
// was published under. The rate amount is canonicalized via a fixed-point
// string (not Go's default float formatting) so that 81.8 and 81.80 never
// hash to different UUIDs.
func RateUUID(payerUUID, organizationUUID, serviceCode, billingCodeType string, negotiatedRate float64, billingClass, rateType, planFingerprint string) string {
	rate := strconv.FormatFloat(negotiatedRate, 'f', 4, 64)
	return derive("rate", payerUUID, organizationUUID, serviceCode, billingCodeType, rate, billingClass, rateType, planFingerprint)
}
