// Package normalize resolves provider references or inline provider groups
// into canonical Organizations and Providers, and emits one Rate per
// (negotiated_price, service_code) pair — a cartesian product — after
// applying the whitelist -> bounds -> billing_code_type filtering order.
package normalize

import (
	"encoding/json"
	"strings"

	"github.com/healthrates/mrf-engine/internal/identity"
	"github.com/healthrates/mrf-engine/internal/model"
	"github.com/healthrates/mrf-engine/internal/pipeline"
	"github.com/healthrates/mrf-engine/internal/progress"
	"github.com/healthrates/mrf-engine/internal/quality"
	"github.com/healthrates/mrf-engine/internal/streamparse"
)

// Whitelist is the configured set of admissible billing codes; an empty
// whitelist admits every code.
type Whitelist map[string]struct{}

func NewWhitelist(codes []string) Whitelist {
	w := make(Whitelist, len(codes))
	for _, c := range codes {
		w[c] = struct{}{}
	}
	return w
}

func (w Whitelist) Admits(code string) bool {
	if len(w) == 0 {
		return true
	}
	_, ok := w[code]
	return ok
}

// Emitted is one fully normalized row: a Rate plus the Organization and
// Providers it references, handed to the Batcher together so referential
// integrity (Testable Property 2) holds without a second lookup pass.
type Emitted struct {
	Rate         model.Rate
	Organization model.Organization
	Providers    []model.Provider
}

// Normalizer turns RawInNetworkItems into Emitted rows.
type Normalizer struct {
	PayerUUID string
	PlanMeta  model.RawPlanMetadata
	Whitelist Whitelist
	Gate      *quality.Gate
	Tracker   progress.Tracker // optional; receives a one-shot sample of each Quality Gate rejection rule

	loggedRejection map[string]bool
}

// logRejectionOnce surfaces verr through Tracker the first time a given
// rule rejects a row, so an operator watching the run can see *why* rows
// are failing (a misconfigured accuracy or completeness threshold) without
// a warning line for every one of what could be millions of rejected rows.
func (n *Normalizer) logRejectionOnce(verr *pipeline.ValidationError) {
	if n.Tracker == nil || verr == nil {
		return
	}
	if n.loggedRejection == nil {
		n.loggedRejection = map[string]bool{}
	}
	if n.loggedRejection[verr.Rule] {
		return
	}
	n.loggedRejection[verr.Rule] = true
	n.Tracker.LogWarning(verr.Error())
}

// Normalize processes one RawInNetworkItem, resolving provider references
// via refs (nil if the file had no provider_references section), and calls
// emit once per admitted Rate. Normalize returns no error: whitelist,
// bounds and Quality Gate rejections increment the Gate's counters, an
// unrecognized billing_code_type is skipped without a counter, and a
// bundled_codes/covered_services list that fails to JSON-encode is left out
// of the lineage.
func (n *Normalizer) Normalize(item model.RawInNetworkItem, refs streamparse.ProviderGroupTable, emit func(Emitted)) {
	if !n.Whitelist.Admits(item.BillingCode) {
		n.Gate.Counters.RejectedWhitelist++
		return
	}

	lineage := baseLineage(item)

	for _, nr := range item.NegotiatedRates {
		groups := nr.ProviderGroups
		if len(groups) == 0 && len(nr.ProviderReferences) > 0 && refs != nil {
			for _, id := range nr.ProviderReferences {
				groups = append(groups, refs[id]...)
			}
		}
		if len(groups) == 0 {
			continue
		}

		for _, group := range groups {
			org, providers := n.resolveGroup(group)

			for _, price := range nr.NegotiatedPrices {
				if price.NegotiatedRate <= 0 ||
					!n.Gate.RateSane(price.NegotiatedRate) ||
					n.Gate.ExceedsReasonableCeiling(item.BillingCode, price.NegotiatedRate) {
					n.Gate.Counters.RejectedBounds++
					continue
				}
				if !quality.CheckBillingCodeType(item.BillingCodeType) {
					continue // unrecognized vocabulary; filtering order's final step
				}

				for _, serviceCode := range price.ServiceCode {
					rate := n.buildRate(item, price, serviceCode, org, lineage)

					cand := quality.Candidate{
						TIN:             org.TIN,
						BillingCode:     item.BillingCode,
						BillingCodeType: item.BillingCodeType,
						NegotiatedRate:  price.NegotiatedRate,
						ServiceCode:     serviceCode,
						BillingClass:    price.BillingClass,
					}
					if len(providers) > 0 {
						cand.NPI = providers[0].NPI
					}

					admitted, verr := n.Gate.Admit(cand)
					if !admitted {
						n.logRejectionOnce(verr)
						continue
					}

					emit(Emitted{Rate: rate, Organization: org, Providers: providers})
				}
			}
		}
	}
}

// resolveGroup derives one Organization (keyed by TIN) and N Providers
// (keyed by NPI) from a raw provider group.
func (n *Normalizer) resolveGroup(group model.RawProviderGroup) (model.Organization, []model.Provider) {
	org := model.Organization{
		OrganizationUUID: identity.OrganizationUUID(group.TIN.Value),
		TIN:              group.TIN.Value,
		NPICount:         int32(len(group.NPI)),
		IsFacility:       strings.EqualFold(group.TIN.Type, "ein") && len(group.NPI) > 1,
	}

	providers := make([]model.Provider, 0, len(group.NPI))
	for _, npi := range group.NPI {
		providers = append(providers, model.Provider{
			ProviderUUID:     identity.ProviderUUID(npi),
			NPI:              npi,
			OrganizationUUID: org.OrganizationUUID,
			IsActive:         true,
		})
	}
	return org, providers
}

func (n *Normalizer) buildRate(item model.RawInNetworkItem, price model.RawNegotiatedPrice, serviceCode string, org model.Organization, lineage model.DataLineage) model.Rate {
	plan := model.PlanDetails{}
	if n.PlanMeta.PlanName != "" {
		v := n.PlanMeta.PlanName
		plan.PlanName = &v
	}
	if n.PlanMeta.PlanID != "" {
		v := n.PlanMeta.PlanID
		plan.PlanID = &v
	}
	if n.PlanMeta.PlanIDType != "" {
		v := n.PlanMeta.PlanIDType
		plan.PlanIDType = &v
	}
	if n.PlanMeta.PlanMarketType != "" {
		v := n.PlanMeta.PlanMarketType
		plan.PlanMarketType = &v
	}
	if n.PlanMeta.IssuerName != "" {
		v := n.PlanMeta.IssuerName
		plan.IssuerName = &v
	}
	if n.PlanMeta.PlanSponsorName != "" {
		v := n.PlanMeta.PlanSponsorName
		plan.PlanSponsor = &v
	}

	l := lineage
	if len(price.BillingCodeModifier) > 0 {
		l.BillingCodeModifier = price.BillingCodeModifier
	}
	if price.AdditionalInformation != "" {
		v := price.AdditionalInformation
		l.AdditionalInformation = &v
	}

	var expiration *string
	if price.ExpirationDate != "" {
		v := price.ExpirationDate
		expiration = &v
	}

	rateUUID := identity.RateUUID(n.PayerUUID, org.OrganizationUUID, serviceCode, item.BillingCodeType, price.NegotiatedRate, price.BillingClass, price.NegotiatedType, plan.Fingerprint())

	return model.Rate{
		RateUUID:         rateUUID,
		PayerUUID:        n.PayerUUID,
		OrganizationUUID: org.OrganizationUUID,
		ServiceCode:      serviceCode,
		BillingCodeType:  model.BillingCodeType(item.BillingCodeType),
		BillingCode:      item.BillingCode,
		NegotiatedRate:   price.NegotiatedRate,
		BillingClass:     price.BillingClass,
		RateType:         price.NegotiatedType,
		ServiceCodes:     price.ServiceCode,
		ExpirationDate:   expiration,
		PlanDetails:      plan,
		DataLineage:      l,
	}
}

// baseLineage JSON-encodes an item's bundled_codes / covered_services into
// opaque strings: bundle arrangements populate bundled_codes_json,
// capitation arrangements populate covered_services_json, and the two are
// mutually exclusive in practice.
func baseLineage(item model.RawInNetworkItem) model.DataLineage {
	l := model.DataLineage{}
	if len(item.BundledCodes) > 0 {
		if b, err := json.Marshal(item.BundledCodes); err == nil {
			s := string(b)
			l.BundledCodesJSON = &s
		}
	}
	if len(item.CoveredServices) > 0 {
		if b, err := json.Marshal(item.CoveredServices); err == nil {
			s := string(b)
			l.CoveredServicesJSON = &s
		}
	}
	return l
}
