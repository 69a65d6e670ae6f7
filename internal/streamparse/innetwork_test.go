package streamparse

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/healthrates/mrf-engine/internal/model"
)

const fixtureInNetwork = `{
	"reporting_entity_name": "Test Plan",
	"provider_references": [
		{"provider_group_id": 1, "provider_groups": [{"npi": ["1234567893"], "tin": {"type": "ein", "value": "12-3456789"}}]}
	],
	"in_network": [
		{
			"billing_code": "99213",
			"billing_code_type": "CPT",
			"negotiated_rates": [
				{"provider_references": [1], "negotiated_prices": [{"negotiated_type": "negotiated", "negotiated_rate": 100.0, "service_code": ["11"], "billing_class": "professional"}]}
			]
		},
		{
			"billing_code": "99214",
			"billing_code_type": "CPT",
			"negotiated_rates": [
				{"provider_groups": [{"npi": ["9876543210"], "tin": {"type": "ein", "value": "99-9999999"}}],
				 "negotiated_prices": [{"negotiated_type": "negotiated", "negotiated_rate": 150.0, "service_code": ["11"], "billing_class": "professional"}]}
			]
		}
	]
}`

func TestExtractProviderReferences(t *testing.T) {
	table, meta, err := ExtractProviderReferences(strings.NewReader(fixtureInNetwork), "file.json")
	require.NoError(t, err)
	require.Contains(t, table, 1)
	require.Len(t, table[1], 1)
	assert.Equal(t, "12-3456789", table[1][0].TIN.Value)
	assert.Equal(t, "Test Plan", meta.ReportingEntityName)
}

func TestExtractProviderReferences_AbsentSectionYieldsEmptyTable(t *testing.T) {
	doc := `{"in_network": [{"billing_code": "99213"}]}`
	table, _, err := ExtractProviderReferences(strings.NewReader(doc), "file.json")
	require.NoError(t, err)
	assert.Empty(t, table)
}

func TestExtractProviderReferences_CapturesPlanMetadataAheadOfInNetwork(t *testing.T) {
	doc := `{"plan_name": "Gold PPO", "plan_id_type": "HIOS", "plan_id": "123", "issuer_name": "Acme Health", "in_network": [{"billing_code": "99213"}]}`
	_, meta, err := ExtractProviderReferences(strings.NewReader(doc), "file.json")
	require.NoError(t, err)
	assert.Equal(t, "Gold PPO", meta.PlanName)
	assert.Equal(t, "HIOS", meta.PlanIDType)
	assert.Equal(t, "123", meta.PlanID)
	assert.Equal(t, "Acme Health", meta.IssuerName)
}

func TestIterateInNetwork_YieldsEveryItem(t *testing.T) {
	var codes []string
	err := IterateInNetwork(strings.NewReader(fixtureInNetwork), "file.json", nil, func(item model.RawInNetworkItem) error {
		codes = append(codes, item.BillingCode)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"99213", "99214"}, codes)
}

func TestIterateInNetwork_NoInNetworkKeyYieldsNothing(t *testing.T) {
	doc := `{"reporting_entity_name": "no in_network here"}`
	called := false
	err := IterateInNetwork(strings.NewReader(doc), "file.json", nil, func(model.RawInNetworkItem) error {
		called = true
		return nil
	})
	require.NoError(t, err)
	assert.False(t, called)
}

func TestIterateInNetwork_YieldErrorPropagates(t *testing.T) {
	sentinel := assert.AnError
	err := IterateInNetwork(strings.NewReader(fixtureInNetwork), "file.json", nil, func(model.RawInNetworkItem) error {
		return sentinel
	})
	assert.ErrorIs(t, err, sentinel)
}

func TestIterateInNetwork_WhitelistStillYieldsEveryItemWithoutSimd(t *testing.T) {
	// On hosts without simdjson support the whitelist is enforced later by
	// the Normalizer, not here: IterateInNetwork's prefilter only activates
	// when UseSimd is true, so every item must still reach yield regardless
	// of whether the whitelist would admit its billing_code.
	if UseSimd {
		t.Skip("host supports simdjson; prefilter behavior covered by TestIterateInNetwork_SimdPrefilterShortCircuitsRejectedCodes")
	}
	whitelist := map[string]struct{}{"99214": {}}
	var codes []string
	err := IterateInNetwork(strings.NewReader(fixtureInNetwork), "file.json", whitelist, func(item model.RawInNetworkItem) error {
		codes = append(codes, item.BillingCode)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"99213", "99214"}, codes)
}

func TestIterateInNetwork_SimdPrefilterShortCircuitsRejectedCodes(t *testing.T) {
	if !UseSimd {
		t.Skip("host has no simdjson (AVX2/AVX512) support")
	}
	whitelist := map[string]struct{}{"99214": {}}
	var items []model.RawInNetworkItem
	err := IterateInNetwork(strings.NewReader(fixtureInNetwork), "file.json", whitelist, func(item model.RawInNetworkItem) error {
		items = append(items, item)
		return nil
	})
	require.NoError(t, err)
	require.Len(t, items, 2)

	assert.Equal(t, "99213", items[0].BillingCode)
	assert.Empty(t, items[0].NegotiatedRates, "a whitelist-rejected item is short-circuited before negotiated_rates is decoded")

	assert.Equal(t, "99214", items[1].BillingCode)
	assert.NotEmpty(t, items[1].NegotiatedRates, "a whitelist-admitted item still gets the full decode")
}
