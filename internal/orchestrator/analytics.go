package orchestrator

import (
	"sort"

	"github.com/healthrates/mrf-engine/internal/model"
)

// analyticsAccumulator rolls up rates by service_code as they stream past,
// computed incrementally so the orchestrator never has to hold the full
// rate set in memory to produce the end-of-run Analytics entity.
type analyticsAccumulator struct {
	byCode map[string]*codeStats
}

type codeStats struct {
	rates []float64
	orgs  map[string]struct{}
}

func newAnalyticsAccumulator() *analyticsAccumulator {
	return &analyticsAccumulator{byCode: map[string]*codeStats{}}
}

func (a *analyticsAccumulator) Observe(rate model.Rate) {
	s, ok := a.byCode[rate.ServiceCode]
	if !ok {
		s = &codeStats{orgs: map[string]struct{}{}}
		a.byCode[rate.ServiceCode] = s
	}
	s.rates = append(s.rates, rate.NegotiatedRate)
	s.orgs[rate.OrganizationUUID] = struct{}{}
}

// Rollup computes the Analytics rows for payerUUID, scoped to a single
// national geographic_scope — per-region scoping is left to a downstream
// enrichment step outside this engine's boundary.
func (a *analyticsAccumulator) Rollup(payerUUID string) []model.Analytics {
	out := make([]model.Analytics, 0, len(a.byCode))
	for code, s := range a.byCode {
		if len(s.rates) == 0 {
			continue
		}
		sorted := append([]float64(nil), s.rates...)
		sort.Float64s(sorted)

		min, max, sum := sorted[0], sorted[len(sorted)-1], 0.0
		for _, r := range sorted {
			sum += r
		}
		mean := sum / float64(len(sorted))
		median := sorted[len(sorted)/2]
		if len(sorted)%2 == 0 {
			median = (sorted[len(sorted)/2-1] + sorted[len(sorted)/2]) / 2
		}

		out = append(out, model.Analytics{
			PayerUUID:         payerUUID,
			ServiceCode:       code,
			GeographicScope:   "national",
			RateCount:         int64(len(sorted)),
			MinRate:           min,
			MaxRate:           max,
			MeanRate:          mean,
			MedianRate:        median,
			OrganizationCount: int64(len(s.orgs)),
		})
	}
	return out
}
