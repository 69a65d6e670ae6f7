package normalize

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/healthrates/mrf-engine/internal/model"
	"github.com/healthrates/mrf-engine/internal/quality"
)

// fakeTracker records LogWarning calls; the other progress.Tracker methods
// are no-ops, since these tests only care about rejection sampling.
type fakeTracker struct {
	warnings []string
}

func (f *fakeTracker) SetStage(string)                 {}
func (f *fakeTracker) SetProgress(current, total int64) {}
func (f *fakeTracker) SetCounter(name string, value int64) {}
func (f *fakeTracker) LogWarning(msg string)            { f.warnings = append(f.warnings, msg) }
func (f *fakeTracker) Done()                            {}

func newGate() *quality.Gate {
	return &quality.Gate{Thresholds: quality.Thresholds{
		MinCompletenessPct: 50,
		MinAccuracyScore:   0.1,
		MinRate:            decimal.NewFromFloat(0.01),
		MaxRate:            decimal.NewFromFloat(1_000_000),
	}}
}

func baseItem() model.RawInNetworkItem {
	return model.RawInNetworkItem{
		BillingCode:     "99213",
		BillingCodeType: "CPT",
		NegotiatedRates: []model.RawNegotiatedRate{
			{
				ProviderGroups: []model.RawProviderGroup{
					{NPI: []string{"1234567893"}, TIN: model.RawTIN{Type: "ein", Value: "12-3456789"}},
				},
				NegotiatedPrices: []model.RawNegotiatedPrice{
					{NegotiatedType: "negotiated", NegotiatedRate: 125.50, ServiceCode: []string{"11", "22"}, BillingClass: "professional"},
				},
			},
		},
	}
}

func TestNormalize_EmitsOnePerPriceServiceCodeCartesianProduct(t *testing.T) {
	n := &Normalizer{PayerUUID: "payer-1", Gate: newGate()}
	var emitted []Emitted
	n.Normalize(baseItem(), nil, func(e Emitted) { emitted = append(emitted, e) })

	require.Len(t, emitted, 2, "one negotiated_price with 2 service codes must emit 2 rates")
	assert.ElementsMatch(t, []string{"11", "22"}, []string{emitted[0].Rate.ServiceCode, emitted[1].Rate.ServiceCode})
	for _, e := range emitted {
		assert.Equal(t, "12-3456789", e.Organization.TIN)
		require.Len(t, e.Providers, 1)
		assert.Equal(t, "1234567893", e.Providers[0].NPI)
	}
}

func TestNormalize_WhitelistRejectsUnlistedCode(t *testing.T) {
	gate := newGate()
	n := &Normalizer{PayerUUID: "payer-1", Gate: gate, Whitelist: NewWhitelist([]string{"99214"})}
	var emitted []Emitted
	n.Normalize(baseItem(), nil, func(e Emitted) { emitted = append(emitted, e) })

	assert.Empty(t, emitted)
	assert.Equal(t, int64(1), gate.Counters.RejectedWhitelist)
}

func TestNormalize_NonPositiveRateRejectedByBounds(t *testing.T) {
	gate := newGate()
	n := &Normalizer{PayerUUID: "payer-1", Gate: gate}
	item := baseItem()
	item.NegotiatedRates[0].NegotiatedPrices[0].NegotiatedRate = 0

	var emitted []Emitted
	n.Normalize(item, nil, func(e Emitted) { emitted = append(emitted, e) })

	assert.Empty(t, emitted)
	assert.Equal(t, int64(1), gate.Counters.RejectedBounds)
}

func TestNormalize_BoundsCheckedBeforeBillingCodeType(t *testing.T) {
	// A zero rate under an unrecognized billing_code_type must be counted
	// as a bounds rejection, not silently skipped by the vocabulary check —
	// this is the filtering-order invariant (whitelist -> bounds -> type).
	gate := newGate()
	n := &Normalizer{PayerUUID: "payer-1", Gate: gate}
	item := baseItem()
	item.BillingCodeType = "NOT-A-VOCAB"
	item.NegotiatedRates[0].NegotiatedPrices[0].NegotiatedRate = 0

	n.Normalize(item, nil, func(Emitted) { t.Fatal("should not emit") })
	assert.Equal(t, int64(1), gate.Counters.RejectedBounds)
}

func TestNormalize_UnrecognizedBillingCodeTypeSkipped(t *testing.T) {
	gate := newGate()
	n := &Normalizer{PayerUUID: "payer-1", Gate: gate}
	item := baseItem()
	item.BillingCodeType = "NOT-A-VOCAB"

	var emitted []Emitted
	n.Normalize(item, nil, func(e Emitted) { emitted = append(emitted, e) })

	assert.Empty(t, emitted)
	// Not counted against any Gate counter: the filtering order's final
	// step is a silent skip.
	assert.Equal(t, int64(0), gate.Counters.RejectedBounds)
	assert.Equal(t, int64(0), gate.Counters.RejectedWhitelist)
}

func TestNormalize_AboveMaxRateRejectedByBounds(t *testing.T) {
	gate := newGate()
	gate.Thresholds.MaxRate = decimal.NewFromFloat(50000)
	n := &Normalizer{PayerUUID: "payer-1", Gate: gate}
	item := baseItem()
	item.NegotiatedRates[0].NegotiatedPrices[0].NegotiatedRate = 60000

	var emitted []Emitted
	n.Normalize(item, nil, func(e Emitted) { emitted = append(emitted, e) })

	assert.Empty(t, emitted, "60000 exceeds the configured global max_rate of 50000")
	assert.Equal(t, int64(1), gate.Counters.RejectedBounds)
}

func TestNormalize_BelowMinRateRejectedByBounds(t *testing.T) {
	gate := newGate()
	gate.Thresholds.MinRate = decimal.NewFromFloat(1)
	n := &Normalizer{PayerUUID: "payer-1", Gate: gate}
	item := baseItem()
	item.NegotiatedRates[0].NegotiatedPrices[0].NegotiatedRate = 0.99

	var emitted []Emitted
	n.Normalize(item, nil, func(e Emitted) { emitted = append(emitted, e) })

	assert.Empty(t, emitted, "0.99 is below the configured global min_rate of 1")
	assert.Equal(t, int64(1), gate.Counters.RejectedBounds)
}

func TestNormalize_LogsEachRejectionRuleOnlyOnce(t *testing.T) {
	gate := newGate()
	gate.Thresholds.MinAccuracyScore = 2 // unreachable, every candidate fails accuracy
	tracker := &fakeTracker{}
	n := &Normalizer{PayerUUID: "payer-1", Gate: gate, Tracker: tracker}

	// baseItem carries 2 service codes, so Admit is consulted twice for the
	// same rule; only the first rejection should produce a log line.
	n.Normalize(baseItem(), nil, func(Emitted) { t.Fatal("should not emit") })

	require.Len(t, tracker.warnings, 1)
	assert.Contains(t, tracker.warnings[0], "accuracy")
	assert.Equal(t, int64(2), gate.Counters.RejectedAccuracy)
}

func TestNormalize_HighCostProcedureCeilingRejectedByBounds(t *testing.T) {
	gate := newGate()
	gate.Thresholds.MaxReasonableRates = map[string]decimal.Decimal{"99213": decimal.NewFromFloat(100)}
	n := &Normalizer{PayerUUID: "payer-1", Gate: gate}

	var emitted []Emitted
	n.Normalize(baseItem(), nil, func(e Emitted) { emitted = append(emitted, e) })

	assert.Empty(t, emitted, "125.50 exceeds the configured 99213 ceiling of 100")
	assert.Equal(t, int64(1), gate.Counters.RejectedBounds)
}

func TestNormalize_ResolvesProviderReferences(t *testing.T) {
	gate := newGate()
	n := &Normalizer{PayerUUID: "payer-1", Gate: gate}
	item := baseItem()
	item.NegotiatedRates[0].ProviderGroups = nil
	item.NegotiatedRates[0].ProviderReferences = []int{7}

	refs := map[int][]model.RawProviderGroup{
		7: {{NPI: []string{"1234567893"}, TIN: model.RawTIN{Type: "ein", Value: "55-5555555"}}},
	}

	var emitted []Emitted
	n.Normalize(item, refs, func(e Emitted) { emitted = append(emitted, e) })

	require.Len(t, emitted, 2)
	assert.Equal(t, "55-5555555", emitted[0].Organization.TIN)
}

func TestNormalize_NoMatchingGroupsEmitsNothing(t *testing.T) {
	gate := newGate()
	n := &Normalizer{PayerUUID: "payer-1", Gate: gate}
	item := baseItem()
	item.NegotiatedRates[0].ProviderGroups = nil
	item.NegotiatedRates[0].ProviderReferences = []int{99}

	n.Normalize(item, map[int][]model.RawProviderGroup{}, func(Emitted) { t.Fatal("should not emit") })
}

func TestNormalize_RateUUIDDeterministicAcrossCalls(t *testing.T) {
	n1 := &Normalizer{PayerUUID: "payer-1", Gate: newGate()}
	n2 := &Normalizer{PayerUUID: "payer-1", Gate: newGate()}

	var first, second model.Rate
	n1.Normalize(baseItem(), nil, func(e Emitted) {
		if first.RateUUID == "" {
			first = e.Rate
		}
	})
	n2.Normalize(baseItem(), nil, func(e Emitted) {
		if second.RateUUID == "" {
			second = e.Rate
		}
	})

	assert.Equal(t, first.RateUUID, second.RateUUID)
}
