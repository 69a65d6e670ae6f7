// Package model defines the canonical entities the pipeline emits: payers,
// organizations, providers, rates, and analytics rollups. Every entity
// carries a deterministic UUID assigned by internal/identity so reruns on
// the same input reproduce the same identifiers.
package model

import "time"

// BillingCodeType enumerates the vocabularies recognized by the Quality
// Gate. LOCAL codes are payer-defined and passed through verbatim.
type BillingCodeType string

const (
	BillingCodeCPT    BillingCodeType = "CPT"
	BillingCodeHCPCS  BillingCodeType = "HCPCS"
	BillingCodeICD    BillingCodeType = "ICD"
	BillingCodeMSDRG  BillingCodeType = "MS-DRG"
	BillingCodeLOCAL  BillingCodeType = "LOCAL"
	BillingCodeCustom BillingCodeType = "CUSTOM"
)

// Recognized reports whether t is one of the vocabularies the Quality Gate
// accepts without rejection.
func (t BillingCodeType) Recognized() bool {
	switch t {
	case BillingCodeCPT, BillingCodeHCPCS, BillingCodeICD, BillingCodeMSDRG, BillingCodeLOCAL, BillingCodeCustom:
		return true
	default:
		return false
	}
}

// Payer is the top-level entity for a configured MRF endpoint. One Payer is
// created per pipeline run.
type Payer struct {
	PayerUUID   string    `parquet:"payer_uuid"`
	Name        string    `parquet:"name"`
	IndexURL    string    `parquet:"index_url"`
	LastScraped time.Time `parquet:"last_scraped,timestamp"`
}

// Organization is keyed by TIN alone; multiple providers (NPIs) may belong
// to the same organization.
type Organization struct {
	OrganizationUUID string  `parquet:"organization_uuid"`
	TIN              string  `parquet:"tin"`
	OrganizationName *string `parquet:"organization_name,optional"`
	NPICount         int32   `parquet:"npi_count"`
	IsFacility       bool    `parquet:"is_facility"`
}

// Provider is keyed by NPI alone. NPI must be 10 ASCII digits and Luhn
// valid; see internal/identity.ValidNPI.
type Provider struct {
	ProviderUUID     string  `parquet:"provider_uuid"`
	NPI              string  `parquet:"npi"`
	OrganizationUUID string  `parquet:"organization_uuid"`
	Specialty        *string `parquet:"specialty,optional"`
	AddressLine      *string `parquet:"address_line,optional"`
	City             *string `parquet:"city,optional"`
	State            *string `parquet:"state,optional"`
	ZIP              *string `parquet:"zip,optional"`
	IsActive         bool    `parquet:"is_active"`
}

// PlanDetails carries the optional per-file plan metadata a payer's root
// object may declare. All fields are nil when the source file omits plan
// metadata (common in multi-plan files).
type PlanDetails struct {
	PlanName       *string `parquet:"plan_name,optional"`
	PlanID         *string `parquet:"plan_id,optional"`
	PlanIDType     *string `parquet:"plan_id_type,optional"`
	PlanMarketType *string `parquet:"plan_market_type,optional"`
	IssuerName     *string `parquet:"issuer_name,optional"`
	PlanSponsor    *string `parquet:"plan_sponsor_name,optional"`
}

// Fingerprint canonicalizes the plan details into the string used by the
// rate_uuid derivation (internal/identity.RateUUID's plan_fingerprint
// input). Two PlanDetails with the same populated fields fingerprint
// identically regardless of pointer identity.
func (p PlanDetails) Fingerprint() string {
	deref := func(s *string) string {
		if s == nil {
			return ""
		}
		return *s
	}
	return deref(p.PlanID) + "|" + deref(p.PlanIDType) + "|" + deref(p.PlanMarketType)
}

// DataLineage carries payer-specific detail that the canonical model does
// not otherwise surface as columns: bundle/capitation JSON blobs, modifier
// codes, and free-text additional information. Nested objects are encoded
// as JSON strings so the columnar schema stays fixed.
type DataLineage struct {
	BundledCodesJSON      *string  `parquet:"bundled_codes_json,optional"`
	CoveredServicesJSON   *string  `parquet:"covered_services_json,optional"`
	BillingCodeModifier   []string `parquet:"billing_code_modifier,optional,list"`
	AdditionalInformation *string  `parquet:"additional_information,optional"`
	SourceFile            string   `parquet:"source_file"`
}

// Rate is the principal output entity. RateUUID is derived from the tuple
// (payer_uuid, organization_uuid, service_code, billing_code_type,
// negotiated_rate, billing_class, rate_type, plan_fingerprint) so identical
// negotiated terms reproduce the same identifier across runs.
type Rate struct {
	RateUUID         string          `parquet:"rate_uuid"`
	PayerUUID        string          `parquet:"payer_uuid"`
	OrganizationUUID string          `parquet:"organization_uuid"`
	ServiceCode      string          `parquet:"service_code"`
	BillingCodeType  BillingCodeType `parquet:"billing_code_type"`
	BillingCode      string          `parquet:"billing_code"`
	NegotiatedRate   float64         `parquet:"negotiated_rate"`
	BillingClass     string          `parquet:"billing_class"`
	RateType         string          `parquet:"rate_type"`
	ServiceCodes     []string        `parquet:"service_codes,optional,list"`
	ExpirationDate   *string         `parquet:"expiration_date,optional"`
	PlanDetails
	DataLineage
}

// Analytics is an aggregated rollup per (service_code, geographic_scope)
// computed once at end of run, not per record.
type Analytics struct {
	PayerUUID         string  `parquet:"payer_uuid"`
	ServiceCode       string  `parquet:"service_code"`
	GeographicScope   string  `parquet:"geographic_scope"`
	RateCount         int64   `parquet:"rate_count"`
	MinRate           float64 `parquet:"min_rate"`
	MaxRate           float64 `parquet:"max_rate"`
	MeanRate          float64 `parquet:"mean_rate"`
	MedianRate        float64 `parquet:"median_rate"`
	OrganizationCount int64   `parquet:"organization_count"`
}
