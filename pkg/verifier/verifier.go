// Package verifier implements the first pipeline stage: scoring a
// member's daily logs over a block-height period against their
// subscribed plan's rules, recording an immutable Verification per
// (user, period) key, and maintaining the per-member aggregate score.
//
// Every successful VerifyPeriod performs exactly one fee transfer from
// the caller to the administrator; a failed transfer aborts the call
// with no state change.
package verifier

import (
	"fmt"
	"sync"

	"github.com/VitaClaim-Labs/vitaclaim/pkg/chain"
	"github.com/VitaClaim-Labs/vitaclaim/pkg/contracts"
	"github.com/VitaClaim-Labs/vitaclaim/pkg/registry"
	"github.com/VitaClaim-Labs/vitaclaim/pkg/treasury"
)

// Domain errors, carrying the verifier's stable 1xx codes.
var (
	ErrNotAuthorized      = contracts.NewCodedError(100, "not authorized")
	ErrInvalidUser        = contracts.NewCodedError(101, "user has no profile")
	ErrInvalidPlan        = contracts.NewCodedError(102, "invalid or unknown plan")
	ErrInvalidPeriod      = contracts.NewCodedError(103, "invalid period")
	ErrInvalidScore       = contracts.NewCodedError(106, "score out of range")
	ErrInvalidThreshold   = contracts.NewCodedError(109, "threshold must be in 1..100")
	ErrVerificationFailed = contracts.NewCodedError(112, "no verification for period")
	ErrAlreadyVerified    = contracts.NewCodedError(113, "period already verified")
)

// MaxPeriodLength bounds a single verification period in blocks.
const MaxPeriodLength = 365

// Config is the verifier's initial configuration. All fields are
// admin-mutable afterward through the gated setters.
type Config struct {
	Admin               contracts.Principal
	MaxPeriods          uint64 // aggregate ceiling per member
	VerificationFee     uint64
	ComplianceThreshold uint64 // global default threshold, 1..100
}

// Verifier is the compliance-scoring stage. All exported operations are
// serialized behind one mutex: no call observes a partial effect of
// another.
type Verifier struct {
	mu sync.Mutex

	admin               contracts.Principal
	maxPeriods          uint64
	verificationFee     uint64
	complianceThreshold uint64

	verifications map[contracts.VerificationKey]contracts.Verification
	aggregates    map[contracts.Principal]contracts.AggregateScore

	plans    registry.PlanRegistry
	profiles registry.ProfileStore
	logs     registry.LogStore
	treasury treasury.Treasury
	clock    chain.HeightClock
}

// New creates a verifier over the given collaborators.
func New(cfg Config, plans registry.PlanRegistry, profiles registry.ProfileStore, logs registry.LogStore, tr treasury.Treasury, clock chain.HeightClock) *Verifier {
	return &Verifier{
		admin:               cfg.Admin,
		maxPeriods:          cfg.MaxPeriods,
		verificationFee:     cfg.VerificationFee,
		complianceThreshold: cfg.ComplianceThreshold,
		verifications:       make(map[contracts.VerificationKey]contracts.Verification),
		aggregates:          make(map[contracts.Principal]contracts.AggregateScore),
		plans:               plans,
		profiles:            profiles,
		logs:                logs,
		treasury:            tr,
		clock:               clock,
	}
}

// SetAdmin hands administration to a new principal.
func (v *Verifier) SetAdmin(caller, newAdmin contracts.Principal) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if caller != v.admin {
		return ErrNotAuthorized
	}
	v.admin = newAdmin
	return nil
}

// SetMaxPeriods sets the aggregate ceiling. Must be positive.
func (v *Verifier) SetMaxPeriods(caller contracts.Principal, n uint64) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if caller != v.admin {
		return ErrNotAuthorized
	}
	if n == 0 {
		return ErrInvalidPeriod
	}
	v.maxPeriods = n
	return nil
}

// SetVerificationFee sets the per-verification fee. Zero is allowed.
func (v *Verifier) SetVerificationFee(caller contracts.Principal, fee uint64) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if caller != v.admin {
		return ErrNotAuthorized
	}
	v.verificationFee = fee
	return nil
}

// SetComplianceThreshold sets the global threshold, 1..100.
func (v *Verifier) SetComplianceThreshold(caller contracts.Principal, threshold uint64) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if caller != v.admin {
		return ErrNotAuthorized
	}
	if threshold == 0 || threshold > 100 {
		return ErrInvalidThreshold
	}
	v.complianceThreshold = threshold
	return nil
}

// VerifyPeriod scores the caller's logs over [periodStart, periodEnd),
// charges the verification fee, records the Verification, and folds the
// score into the caller's aggregate. Returns the score.
//
// A missing daily log is excluded from the numerator but not the
// denominator: unlogged days count against the score. The pass/fail
// status is gated on the plan's own threshold.
func (v *Verifier) VerifyPeriod(caller contracts.Principal, periodStart, periodEnd uint64) (uint64, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if periodEnd <= periodStart || periodEnd-periodStart > MaxPeriodLength {
		return 0, ErrInvalidPeriod
	}

	key := contracts.VerificationKey{User: caller, PeriodStart: periodStart, PeriodEnd: periodEnd}
	if _, exists := v.verifications[key]; exists {
		return 0, ErrAlreadyVerified
	}

	planID, ok, err := v.profiles.SubscribedPlan(caller)
	if err != nil {
		return 0, fmt.Errorf("profile lookup: %w", err)
	}
	if !ok {
		return 0, ErrInvalidUser
	}
	if planID == 0 {
		return 0, ErrInvalidPlan
	}
	plan, err := v.plans.Plan(planID)
	if err != nil {
		return 0, fmt.Errorf("plan lookup: %w", err)
	}
	if plan == nil {
		return 0, ErrInvalidPlan
	}

	score, err := v.scorePeriod(caller, plan.Rules, periodStart, periodEnd)
	if err != nil {
		return 0, err
	}
	if score > 100 {
		return 0, ErrInvalidScore
	}

	// Fee and state mutation form one atomic unit: transfer first, and
	// only then write. A failed transfer leaves no trace of this call.
	if err := v.treasury.Transfer(v.verificationFee, caller, v.admin); err != nil {
		return 0, fmt.Errorf("verification fee transfer: %w", err)
	}

	v.verifications[key] = contracts.Verification{
		Score:     score,
		Status:    score >= plan.Threshold,
		Timestamp: v.clock.Height(),
	}
	v.foldAggregate(caller, score)

	return score, nil
}

// foldAggregate folds a new score into the member's running mean.
// Exceeding maxPeriods here is an invariant breach, not a user error:
// there is no path that writes more verifications than the ceiling under
// correct sequencing, so its occurrence is a bug signal.
func (v *Verifier) foldAggregate(user contracts.Principal, score uint64) {
	agg := v.aggregates[user]
	total := agg.TotalPeriods + 1
	if total > v.maxPeriods {
		panic(fmt.Sprintf("aggregate ceiling breached for %s: %d > %d", user, total, v.maxPeriods))
	}
	avg := (agg.AverageScore*agg.TotalPeriods + score) / total
	v.aggregates[user] = contracts.AggregateScore{TotalPeriods: total, AverageScore: avg}
}

// CalculateAdherenceScore scores a period against an explicit plan
// without recording anything. Pure read; no fee.
func (v *Verifier) CalculateAdherenceScore(user contracts.Principal, planID, periodStart, periodEnd uint64) (uint64, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if periodEnd <= periodStart {
		return 0, ErrInvalidPeriod
	}
	plan, err := v.plans.Plan(planID)
	if err != nil {
		return 0, fmt.Errorf("plan lookup: %w", err)
	}
	if plan == nil {
		return 0, ErrInvalidPlan
	}
	return v.scorePeriod(user, plan.Rules, periodStart, periodEnd)
}

// scorePeriod walks every block in [start, end) and computes
// floor(compliantDays * 100 / periodDays).
func (v *Verifier) scorePeriod(user contracts.Principal, rules []contracts.MetricRule, start, end uint64) (uint64, error) {
	var compliantDays uint64
	for block := start; block < end; block++ {
		log, err := v.logs.Log(user, block)
		if err != nil {
			return 0, fmt.Errorf("log lookup at %d: %w", block, err)
		}
		if log == nil {
			continue
		}
		if compliant(*log, rules) {
			compliantDays++
		}
	}
	periodDays := end - start
	return compliantDays * 100 / periodDays, nil
}

// compliant reports whether a day's log satisfies every rule naming
// either calories or a logged nutrient. Rules naming metrics absent
// from the log are vacuously satisfied.
func compliant(log contracts.DailyLog, rules []contracts.MetricRule) bool {
	for _, rule := range rules {
		if rule.Metric == "calories" {
			if log.Calories < rule.Min || log.Calories > rule.Max {
				return false
			}
		}
	}
	for _, nut := range log.Nutrients {
		for _, rule := range rules {
			if rule.Metric == nut.Nutrient {
				if nut.Value < rule.Min || nut.Value > rule.Max {
					return false
				}
			}
		}
	}
	return true
}

// GetVerification returns the recorded verification for a key, if any.
func (v *Verifier) GetVerification(user contracts.Principal, periodStart, periodEnd uint64) (*contracts.Verification, bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	verif, ok := v.verifications[contracts.VerificationKey{User: user, PeriodStart: periodStart, PeriodEnd: periodEnd}]
	if !ok {
		return nil, false
	}
	return &verif, true
}

// GetAggregateScore returns the member's aggregate, if any verification
// has ever been recorded.
func (v *Verifier) GetAggregateScore(user contracts.Principal) (*contracts.AggregateScore, bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	agg, ok := v.aggregates[user]
	if !ok {
		return nil, false
	}
	return &agg, true
}

// GetVerificationStatus returns the pass/fail status for a key.
func (v *Verifier) GetVerificationStatus(user contracts.Principal, periodStart, periodEnd uint64) (bool, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	verif, ok := v.verifications[contracts.VerificationKey{User: user, PeriodStart: periodStart, PeriodEnd: periodEnd}]
	if !ok {
		return false, ErrVerificationFailed
	}
	return verif.Status, nil
}

// Admin returns the current administrator.
func (v *Verifier) Admin() contracts.Principal {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.admin
}

// VerificationFee returns the currently configured fee.
func (v *Verifier) VerificationFee() uint64 {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.verificationFee
}

// SubscribedPlan returns the plan id the user's profile names, if any.
func (v *Verifier) SubscribedPlan(user contracts.Principal) (uint64, bool) {
	planID, ok, err := v.profiles.SubscribedPlan(user)
	if err != nil || !ok {
		return 0, false
	}
	return planID, true
}
