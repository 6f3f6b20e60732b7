package verifier_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/VitaClaim-Labs/vitaclaim/pkg/chain"
	"github.com/VitaClaim-Labs/vitaclaim/pkg/contracts"
	"github.com/VitaClaim-Labs/vitaclaim/pkg/registry"
	"github.com/VitaClaim-Labs/vitaclaim/pkg/treasury"
	"github.com/VitaClaim-Labs/vitaclaim/pkg/verifier"
)

const (
	admin contracts.Principal = "ST1ADMIN"
	user  contracts.Principal = "ST1USER"
)

type fixture struct {
	verifier *verifier.Verifier
	plans    *registry.MemPlans
	profiles *registry.MemProfiles
	logs     *registry.MemLogs
	book     *treasury.Book
	clock    *chain.ManualClock
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		plans:    registry.NewMemPlans(),
		profiles: registry.NewMemProfiles(),
		logs:     registry.NewMemLogs(),
		book:     treasury.NewBook(),
		clock:    chain.NewManualClock(1000),
	}
	f.book.Credit(user, 100_000)
	f.verifier = verifier.New(verifier.Config{
		Admin:               admin,
		MaxPeriods:          100,
		VerificationFee:     500,
		ComplianceThreshold: 80,
	}, f.plans, f.profiles, f.logs, f.book, f.clock)
	return f
}

// standardPlan is the reference plan: calories 1500-2500, protein 50-200,
// threshold 80.
func (f *fixture) standardPlan() {
	f.plans.SetPlan(1, contracts.PlanDetails{
		Rules: []contracts.MetricRule{
			{Metric: "calories", Min: 1500, Max: 2500},
			{Metric: "protein", Min: 50, Max: 200},
		},
		Threshold: 80,
	})
	f.profiles.Subscribe(user, 1)
}

func (f *fixture) logDays(start, end uint64, calories, protein uint64) {
	for block := start; block < end; block++ {
		f.logs.PutLog(user, block, contracts.DailyLog{
			Hash:      []byte("hash"),
			Calories:  calories,
			Nutrients: []contracts.Nutrient{{Nutrient: "protein", Value: protein}},
		})
	}
}

func TestSetAdmin(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.verifier.SetAdmin(admin, "ST2NEWADMIN"))
	assert.Equal(t, contracts.Principal("ST2NEWADMIN"), f.verifier.Admin())
}

func TestSetAdminRejectsNonAdmin(t *testing.T) {
	f := newFixture(t)
	err := f.verifier.SetAdmin(user, "ST2NEWADMIN")
	assert.ErrorIs(t, err, verifier.ErrNotAuthorized)
}

func TestSetMaxPeriods(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.verifier.SetMaxPeriods(admin, 200))
	assert.ErrorIs(t, f.verifier.SetMaxPeriods(admin, 0), verifier.ErrInvalidPeriod)
	assert.ErrorIs(t, f.verifier.SetMaxPeriods(user, 50), verifier.ErrNotAuthorized)
}

func TestSetVerificationFee(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.verifier.SetVerificationFee(admin, 1000))
	assert.ErrorIs(t, f.verifier.SetVerificationFee(user, 1), verifier.ErrNotAuthorized)
}

func TestVerificationFeeReflectsConfig(t *testing.T) {
	f := newFixture(t)
	assert.Equal(t, uint64(500), f.verifier.VerificationFee())
	require.NoError(t, f.verifier.SetVerificationFee(admin, 750))
	assert.Equal(t, uint64(750), f.verifier.VerificationFee())
}

func TestSubscribedPlanLookup(t *testing.T) {
	f := newFixture(t)
	f.standardPlan()

	planID, ok := f.verifier.SubscribedPlan(user)
	require.True(t, ok)
	assert.Equal(t, uint64(1), planID)

	_, ok = f.verifier.SubscribedPlan("ST9GHOST")
	assert.False(t, ok)
}

func TestSetComplianceThreshold(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.verifier.SetComplianceThreshold(admin, 90))
	assert.ErrorIs(t, f.verifier.SetComplianceThreshold(admin, 101), verifier.ErrInvalidThreshold)
	assert.ErrorIs(t, f.verifier.SetComplianceThreshold(admin, 0), verifier.ErrInvalidThreshold)
	assert.ErrorIs(t, f.verifier.SetComplianceThreshold(user, 50), verifier.ErrNotAuthorized)
}

func TestVerifyPeriodFullCompliance(t *testing.T) {
	f := newFixture(t)
	f.standardPlan()
	f.logDays(100, 130, 2000, 100)

	score, err := f.verifier.VerifyPeriod(user, 100, 130)
	require.NoError(t, err)
	assert.Equal(t, uint64(100), score)

	verif, ok := f.verifier.GetVerification(user, 100, 130)
	require.True(t, ok)
	assert.Equal(t, uint64(100), verif.Score)
	assert.True(t, verif.Status)
	assert.Equal(t, uint64(1000), verif.Timestamp)

	// Exactly one fee transfer of the configured amount, user -> admin.
	entries := f.book.Journal().Entries()
	require.Len(t, entries, 1)
	assert.Equal(t, treasury.Transfer{Amount: 500, From: user, To: admin}, entries[0].Transfer)

	agg, ok := f.verifier.GetAggregateScore(user)
	require.True(t, ok)
	assert.Equal(t, uint64(1), agg.TotalPeriods)
	assert.Equal(t, uint64(100), agg.AverageScore)
}

func TestVerifyPeriodMissingDaysCountAgainstScore(t *testing.T) {
	f := newFixture(t)
	f.standardPlan()
	// 10 compliant days logged out of a 20-block period.
	f.logDays(100, 110, 2000, 100)

	score, err := f.verifier.VerifyPeriod(user, 100, 120)
	require.NoError(t, err)
	assert.Equal(t, uint64(50), score)

	verif, ok := f.verifier.GetVerification(user, 100, 120)
	require.True(t, ok)
	assert.False(t, verif.Status, "50 is below the plan threshold of 80")
}

func TestVerifyPeriodVacuousRules(t *testing.T) {
	f := newFixture(t)
	// Plan tracks a nutrient the member never logs; those rules are
	// vacuously satisfied.
	f.plans.SetPlan(1, contracts.PlanDetails{
		Rules:     []contracts.MetricRule{{Metric: "sodium", Min: 0, Max: 2300}},
		Threshold: 80,
	})
	f.profiles.Subscribe(user, 1)
	f.logDays(100, 110, 2000, 100)

	score, err := f.verifier.VerifyPeriod(user, 100, 110)
	require.NoError(t, err)
	assert.Equal(t, uint64(100), score)
}

func TestVerifyPeriodNonCompliantCalories(t *testing.T) {
	f := newFixture(t)
	f.standardPlan()
	f.logDays(100, 110, 3000, 100) // calories above max

	score, err := f.verifier.VerifyPeriod(user, 100, 110)
	require.NoError(t, err)
	assert.Equal(t, uint64(0), score)
}

func TestVerifyPeriodInvalidPeriod(t *testing.T) {
	f := newFixture(t)

	_, err := f.verifier.VerifyPeriod(user, 130, 100)
	assert.ErrorIs(t, err, verifier.ErrInvalidPeriod)

	_, err = f.verifier.VerifyPeriod(user, 100, 100)
	assert.ErrorIs(t, err, verifier.ErrInvalidPeriod)

	_, err = f.verifier.VerifyPeriod(user, 0, 366)
	assert.ErrorIs(t, err, verifier.ErrInvalidPeriod)

	// 365 blocks exactly is allowed.
	f.standardPlan()
	_, err = f.verifier.VerifyPeriod(user, 0, 365)
	require.NoError(t, err)
}

func TestVerifyPeriodAlreadyVerified(t *testing.T) {
	f := newFixture(t)
	f.plans.SetPlan(1, contracts.PlanDetails{Rules: nil, Threshold: 80})
	f.profiles.Subscribe(user, 1)

	_, err := f.verifier.VerifyPeriod(user, 100, 130)
	require.NoError(t, err)

	_, err = f.verifier.VerifyPeriod(user, 100, 130)
	assert.ErrorIs(t, err, verifier.ErrAlreadyVerified)
}

func TestVerifyPeriodNoProfile(t *testing.T) {
	f := newFixture(t)
	_, err := f.verifier.VerifyPeriod(user, 100, 130)
	assert.ErrorIs(t, err, verifier.ErrInvalidUser)
}

func TestVerifyPeriodZeroPlan(t *testing.T) {
	f := newFixture(t)
	f.profiles.Subscribe(user, 0)
	_, err := f.verifier.VerifyPeriod(user, 100, 130)
	assert.ErrorIs(t, err, verifier.ErrInvalidPlan)
}

func TestVerifyPeriodUnknownPlan(t *testing.T) {
	f := newFixture(t)
	f.profiles.Subscribe(user, 7)
	_, err := f.verifier.VerifyPeriod(user, 100, 130)
	assert.ErrorIs(t, err, verifier.ErrInvalidPlan)
}

func TestVerifyPeriodFailedFeeLeavesNoState(t *testing.T) {
	f := newFixture(t)
	f.standardPlan()
	f.logDays(100, 130, 2000, 100)

	// Drain the member's balance so the fee transfer fails.
	poor := treasury.NewBook()
	broke := verifier.New(verifier.Config{
		Admin:               admin,
		MaxPeriods:          100,
		VerificationFee:     500,
		ComplianceThreshold: 80,
	}, f.plans, f.profiles, f.logs, poor, f.clock)

	_, err := broke.VerifyPeriod(user, 100, 130)
	require.Error(t, err)
	assert.ErrorIs(t, err, treasury.ErrInsufficientFunds)

	_, ok := broke.GetVerification(user, 100, 130)
	assert.False(t, ok, "failed call must not record a verification")
	_, ok = broke.GetAggregateScore(user)
	assert.False(t, ok, "failed call must not touch the aggregate")
	assert.Equal(t, 0, poor.Journal().Length())
}

func TestAggregateRunningMean(t *testing.T) {
	f := newFixture(t)
	f.standardPlan()

	// Period 1: fully compliant, score 100.
	f.logDays(100, 110, 2000, 100)
	_, err := f.verifier.VerifyPeriod(user, 100, 110)
	require.NoError(t, err)

	// Period 2: nothing logged, score 0.
	_, err = f.verifier.VerifyPeriod(user, 200, 210)
	require.NoError(t, err)

	agg, ok := f.verifier.GetAggregateScore(user)
	require.True(t, ok)
	assert.Equal(t, uint64(2), agg.TotalPeriods)
	assert.Equal(t, uint64(50), agg.AverageScore)
}

func TestCalculateAdherenceScore(t *testing.T) {
	f := newFixture(t)
	f.plans.SetPlan(1, contracts.PlanDetails{
		Rules:     []contracts.MetricRule{{Metric: "calories", Min: 1500, Max: 2500}},
		Threshold: 80,
	})
	for block := uint64(100); block < 110; block++ {
		f.logs.PutLog(user, block, contracts.DailyLog{Hash: []byte("hash"), Calories: 2000})
	}

	score, err := f.verifier.CalculateAdherenceScore(user, 1, 100, 120)
	require.NoError(t, err)
	assert.Equal(t, uint64(50), score)
}

func TestCalculateAdherenceScoreUnknownPlan(t *testing.T) {
	f := newFixture(t)
	_, err := f.verifier.CalculateAdherenceScore(user, 9, 100, 120)
	assert.ErrorIs(t, err, verifier.ErrInvalidPlan)
}

func TestGetVerificationStatusUnverified(t *testing.T) {
	f := newFixture(t)
	_, err := f.verifier.GetVerificationStatus(user, 100, 130)
	assert.ErrorIs(t, err, verifier.ErrVerificationFailed)
}

func TestGetVerificationStatusAfterVerify(t *testing.T) {
	f := newFixture(t)
	f.standardPlan()
	f.logDays(100, 130, 2000, 100)

	_, err := f.verifier.VerifyPeriod(user, 100, 130)
	require.NoError(t, err)

	status, err := f.verifier.GetVerificationStatus(user, 100, 130)
	require.NoError(t, err)
	assert.True(t, status)
}

func TestAggregateCeilingPanics(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.verifier.SetMaxPeriods(admin, 1))
	f.standardPlan()

	_, err := f.verifier.VerifyPeriod(user, 100, 110)
	require.NoError(t, err)

	assert.Panics(t, func() {
		_, _ = f.verifier.VerifyPeriod(user, 200, 210)
	})
}
