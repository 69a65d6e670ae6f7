// Package quality implements the Quality Gate: per-row completeness and
// accuracy scoring, admission against configured thresholds, and the
// rejection counters that feed the end-of-run manifest.
package quality

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/healthrates/mrf-engine/internal/identity"
	"github.com/healthrates/mrf-engine/internal/model"
	"github.com/healthrates/mrf-engine/internal/pipeline"
)

// Thresholds configures the gate from the run's processing.* (completeness,
// accuracy) and quality_rules.* (rate bounds, per-code ceilings) config keys.
type Thresholds struct {
	MinCompletenessPct float64 // 0-100
	MinAccuracyScore   float64 // 0-1
	MinRate            decimal.Decimal
	MaxRate            decimal.Decimal
	MaxReasonableRates map[string]decimal.Decimal // billing_code -> ceiling
}

// Gate scores and admits candidate rows, accumulating Counters as it goes.
type Gate struct {
	Thresholds Thresholds
	Counters   pipeline.Counters
}

// Candidate is the minimal shape the Quality Gate needs to score a rate
// before it is admitted into the canonical model — populated by the
// Normalizer just before emission.
type Candidate struct {
	NPI             string
	TIN             string
	BillingCode     string
	BillingCodeType string
	NegotiatedRate  float64
	ServiceCode     string
	BillingClass    string
}

// requiredFields lists the candidate fields completeness is computed over.
// A field counts as present when it is non-empty (or non-zero for the
// rate).
func (c Candidate) requiredFields() []bool {
	return []bool{
		c.NPI != "",
		c.TIN != "",
		c.BillingCode != "",
		c.BillingCodeType != "",
		c.NegotiatedRate > 0,
		c.ServiceCode != "",
		c.BillingClass != "",
	}
}

// Completeness returns the fraction (0-1) of required fields present.
func (c Candidate) Completeness() float64 {
	fields := c.requiredFields()
	present := 0
	for _, ok := range fields {
		if ok {
			present++
		}
	}
	return float64(present) / float64(len(fields))
}

// Accuracy is the product of three independent factors: NPI Luhn validity,
// rate sanity, and TIN format validity.
func (g *Gate) Accuracy(c Candidate) float64 {
	npiFactor := 0.5
	if identity.ValidNPI(c.NPI) {
		npiFactor = 1.0
	}

	rateFactor := 0.6
	if g.RateSane(c.NegotiatedRate) {
		rateFactor = 1.0
	}

	tinFactor := 0.8
	if validTINFormat(c.TIN) {
		tinFactor = 1.0
	}

	return npiFactor * rateFactor * tinFactor
}

// RateSane reports whether rate falls within [MinRate, MaxRate] (a zero
// threshold is treated as unconfigured, not as a literal zero bound). This is
// the same check the Normalizer's bounds stage applies as a hard rejection;
// Accuracy only consults it as one of three soft scoring factors.
func (g *Gate) RateSane(rate float64) bool {
	r := decimal.NewFromFloat(rate)
	if !g.Thresholds.MinRate.IsZero() && r.LessThan(g.Thresholds.MinRate) {
		return false
	}
	if !g.Thresholds.MaxRate.IsZero() && r.GreaterThan(g.Thresholds.MaxRate) {
		return false
	}
	return true
}

// validTINFormat checks the EIN-shaped "NN-NNNNNNN" pattern TIN values
// carry, without requiring a specific TIN type tag (some payers omit it).
func validTINFormat(tin string) bool {
	if len(tin) != 10 || tin[2] != '-' {
		return false
	}
	for i, r := range tin {
		if i == 2 {
			continue
		}
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// ExceedsReasonableCeiling reports whether rate is above the configured
// high_cost_procedures ceiling for billingCode. Codes with no configured
// ceiling always pass.
func (g *Gate) ExceedsReasonableCeiling(billingCode string, rate float64) bool {
	ceiling, ok := g.Thresholds.MaxReasonableRates[billingCode]
	if !ok {
		return false
	}
	return decimal.NewFromFloat(rate).GreaterThan(ceiling)
}

// Admit scores c against the configured thresholds. Whitelist and bounds
// are expected to have already been applied by the Normalizer before Admit
// is called, so Admit only evaluates completeness and accuracy, in that
// order, short-circuiting on the first failing rule and incrementing the
// matching counter. A rejection's rule and measured value are carried in a
// *pipeline.ValidationError rather than a bare string so the caller can
// report the specific reason a row didn't qualify.
func (g *Gate) Admit(c Candidate) (admitted bool, verr *pipeline.ValidationError) {
	completeness := c.Completeness() * 100
	if completeness < g.Thresholds.MinCompletenessPct {
		g.Counters.RejectedCompleteness++
		return false, &pipeline.ValidationError{
			Rule:   "completeness",
			Detail: fmt.Sprintf("%.1f%% below minimum %.1f%%", completeness, g.Thresholds.MinCompletenessPct),
		}
	}

	accuracy := g.Accuracy(c)
	if accuracy < g.Thresholds.MinAccuracyScore {
		g.Counters.RejectedAccuracy++
		return false, &pipeline.ValidationError{
			Rule:   "accuracy",
			Detail: fmt.Sprintf("score %.2f below minimum %.2f", accuracy, g.Thresholds.MinAccuracyScore),
		}
	}

	g.Counters.Admitted++
	return true, nil
}

// CheckBillingCodeType reports whether t is a recognized vocabulary; the
// Normalizer calls this as the last step of its filtering order.
func CheckBillingCodeType(t string) bool {
	return model.BillingCodeType(t).Recognized()
}
