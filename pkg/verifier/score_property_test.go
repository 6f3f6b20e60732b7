//go:build property
// +build property

// Property-based tests for the scoring and aggregate arithmetic.
package verifier_test

import (
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"github.com/VitaClaim-Labs/vitaclaim/pkg/chain"
	"github.com/VitaClaim-Labs/vitaclaim/pkg/contracts"
	"github.com/VitaClaim-Labs/vitaclaim/pkg/registry"
	"github.com/VitaClaim-Labs/vitaclaim/pkg/treasury"
	"github.com/VitaClaim-Labs/vitaclaim/pkg/verifier"
)

func propFixture(loggedDays, periodDays uint64) *verifier.Verifier {
	plans := registry.NewMemPlans()
	plans.SetPlan(1, contracts.PlanDetails{
		Rules:     []contracts.MetricRule{{Metric: "calories", Min: 1500, Max: 2500}},
		Threshold: 80,
	})
	profiles := registry.NewMemProfiles()
	profiles.Subscribe("ST1USER", 1)
	logs := registry.NewMemLogs()
	for block := uint64(0); block < loggedDays; block++ {
		logs.PutLog("ST1USER", block, contracts.DailyLog{Calories: 2000})
	}
	book := treasury.NewBook()
	book.Credit("ST1USER", 1_000_000)
	return verifier.New(verifier.Config{
		Admin:               "ST1ADMIN",
		MaxPeriods:          1_000_000,
		VerificationFee:     0,
		ComplianceThreshold: 80,
	}, plans, profiles, logs, book, chain.NewManualClock(1000))
}

// Property: score = floor(compliantDays * 100 / periodDays), always in 0..100.
func TestScoreFloorDivision(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("score is floor(logged*100/period) and bounded", prop.ForAll(
		func(logged, period uint64) bool {
			if period == 0 || period > 365 {
				return true
			}
			if logged > period {
				logged = period
			}
			v := propFixture(logged, period)
			score, err := v.CalculateAdherenceScore("ST1USER", 1, 0, period)
			if err != nil {
				return false
			}
			return score == logged*100/period && score <= 100
		},
		gen.UInt64Range(0, 365),
		gen.UInt64Range(1, 365),
	))

	properties.TestingRun(t)
}

// Property: the running mean never leaves [0, 100] and TotalPeriods
// counts every verification exactly once.
func TestAggregateMeanBounds(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 50
	properties := gopter.NewProperties(parameters)

	properties.Property("aggregate mean stays within score bounds", prop.ForAll(
		func(loggedPerPeriod []uint64) bool {
			const period = uint64(10)
			logs := registry.NewMemLogs()
			plans := registry.NewMemPlans()
			plans.SetPlan(1, contracts.PlanDetails{
				Rules:     []contracts.MetricRule{{Metric: "calories", Min: 1500, Max: 2500}},
				Threshold: 80,
			})
			profiles := registry.NewMemProfiles()
			profiles.Subscribe("ST1USER", 1)
			book := treasury.NewBook()
			v := verifier.New(verifier.Config{
				Admin:               "ST1ADMIN",
				MaxPeriods:          1_000_000,
				VerificationFee:     0,
				ComplianceThreshold: 80,
			}, plans, profiles, logs, book, chain.NewManualClock(1000))

			for i, logged := range loggedPerPeriod {
				if logged > period {
					logged = period
				}
				start := uint64(i) * 1000
				for block := start; block < start+logged; block++ {
					logs.PutLog("ST1USER", block, contracts.DailyLog{Calories: 2000})
				}
				if _, err := v.VerifyPeriod("ST1USER", start, start+period); err != nil {
					return false
				}
			}

			agg, ok := v.GetAggregateScore("ST1USER")
			if len(loggedPerPeriod) == 0 {
				return !ok
			}
			return ok &&
				agg.TotalPeriods == uint64(len(loggedPerPeriod)) &&
				agg.AverageScore <= 100
		},
		gen.SliceOf(gen.UInt64Range(0, 10)),
	))

	properties.TestingRun(t)
}
