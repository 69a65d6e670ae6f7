package model

// RawInNetworkItem mirrors the shape payers publish inside an in_network
// file's top-level array, after handler normalization (internal/handler).
// This is the Normalizer's input contract.
type RawInNetworkItem struct {
	NegotiationArrangement string              `json:"negotiation_arrangement"`
	BillingCode            string              `json:"billing_code"`
	BillingCodeType        string              `json:"billing_code_type"`
	Name                   string              `json:"name"`
	Description            string              `json:"description"`
	NegotiatedRates        []RawNegotiatedRate `json:"negotiated_rates"`
	BundledCodes           []RawBundledCode    `json:"bundled_codes,omitempty"`
	CoveredServices        []RawCoveredService `json:"covered_services,omitempty"`
}

type RawBundledCode struct {
	BillingCodeType string `json:"billing_code_type"`
	BillingCode     string `json:"billing_code"`
}

type RawCoveredService struct {
	BillingCodeType string `json:"billing_code_type"`
	BillingCode     string `json:"billing_code"`
}

// RawNegotiatedRate holds either inline ProviderGroups or a list of
// ProviderReferences ids that the Provider-Reference Resolver must resolve
// against the file's provider_references table.
type RawNegotiatedRate struct {
	ProviderGroups     []RawProviderGroup  `json:"provider_groups,omitempty"`
	ProviderReferences []int               `json:"provider_references,omitempty"`
	NegotiatedPrices   []RawNegotiatedPrice `json:"negotiated_prices"`
}

type RawProviderGroup struct {
	NPI []string `json:"npi"`
	TIN RawTIN   `json:"tin"`
}

type RawTIN struct {
	Type  string `json:"type"`
	Value string `json:"value"`
}

type RawNegotiatedPrice struct {
	NegotiatedType      string   `json:"negotiated_type"`
	NegotiatedRate      float64  `json:"negotiated_rate"`
	ServiceCode         []string `json:"service_code"`
	BillingClass        string   `json:"billing_class"`
	ExpirationDate      string   `json:"expiration_date"`
	BillingCodeModifier []string `json:"billing_code_modifier,omitempty"`
	AdditionalInformation string `json:"additional_information,omitempty"`
}

// RawProviderReference is the shape of one entry in a file's top-level
// provider_references array, consumed by the Provider-Reference Resolver
// before in_network items are processed.
type RawProviderReference struct {
	ProviderGroupID int                `json:"provider_group_id"`
	ProviderGroups  []RawProviderGroup `json:"provider_groups"`
}

// RawPlanMetadata captures the optional root-level plan fields a TOC or
// in-network file may declare.
type RawPlanMetadata struct {
	ReportingEntityName string `json:"reporting_entity_name"`
	ReportingEntityType string `json:"reporting_entity_type"`
	PlanName            string `json:"plan_name"`
	PlanIDType          string `json:"plan_id_type"`
	PlanID              string `json:"plan_id"`
	PlanMarketType      string `json:"plan_market_type"`
	IssuerName          string `json:"issuer_name"`
	PlanSponsorName     string `json:"plan_sponsor_name"`
	LastUpdatedOn       string `json:"last_updated_on"`
	Version             string `json:"version"`
}
