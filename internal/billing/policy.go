// Package billing evaluates the credit policy of a conversion: which
// ceilings apply and how many credits a completed job costs.
package billing

import (
	"errors"
	"math"
)

// ErrInvalidMetric is returned when a metric is zero, negative or not a number.
var ErrInvalidMetric = errors.New("billing: metric must be a positive number")

// Unit is the dimension a policy measures.
type Unit string

const (
	// UnitSeconds measures media duration.
	UnitSeconds Unit = "seconds"
	// UnitBytes measures file size.
	UnitBytes Unit = "bytes"
)

// Policy is the billing rule for one kind of conversion.
type Policy struct {
	// Unit is what the submitted metric measures.
	Unit Unit
	// FreeTrialEligible allows the one-time free trial to cover this kind.
	FreeTrialEligible bool
	// FreeTrialCeiling is the largest metric accepted on the free trial.
	FreeTrialCeiling float64
	// MeteredCeiling is the largest metric accepted when paying with credits.
	MeteredCeiling float64
	// UnitsPerCredit charges one credit per started block of this many units.
	// Zero means the job costs FlatCost regardless of the metric.
	UnitsPerCredit float64
	// FlatCost is the cost when UnitsPerCredit is zero.
	FlatCost int
}

// ValidateMetric rejects metrics that cannot be billed.
func (p Policy) ValidateMetric(metric float64) error {
	if math.IsNaN(metric) || math.IsInf(metric, 0) || metric <= 0 {
		return ErrInvalidMetric
	}
	return nil
}

// Ceiling returns the metric limit for the given billing mode.
func (p Policy) Ceiling(freeTrial bool) float64 {
	if freeTrial {
		return p.FreeTrialCeiling
	}
	return p.MeteredCeiling
}

// Exceeds reports whether metric is above the ceiling for the mode.
// A ceiling of zero means unlimited.
func (p Policy) Exceeds(metric float64, freeTrial bool) bool {
	limit := p.Ceiling(freeTrial)
	return limit > 0 && metric > limit
}

// Cost returns the credits a completed metered job with this metric costs.
// Per-unit policies round up and never charge less than one credit.
func (p Policy) Cost(metric float64) int {
	if p.UnitsPerCredit <= 0 {
		return p.FlatCost
	}
	if metric <= 0 {
		return 1
	}
	cost := int(math.Ceil(metric / p.UnitsPerCredit))
	if cost < 1 {
		cost = 1
	}
	return cost
}

// VideoPolicy is the default rule for duration-billed video kinds:
// one credit per started minute, 30 seconds on the free trial and
// 120 seconds when metered.
func VideoPolicy() Policy {
	return Policy{
		Unit:              UnitSeconds,
		FreeTrialEligible: true,
		FreeTrialCeiling:  30,
		MeteredCeiling:    120,
		UnitsPerCredit:    60,
	}
}

// FlatPolicy is a one-price rule with a size ceiling and no free trial.
func FlatPolicy(cost int, maxBytes float64) Policy {
	return Policy{
		Unit:           UnitBytes,
		MeteredCeiling: maxBytes,
		FlatCost:       cost,
	}
}
