package contracts

// VerificationKey addresses a verification: one member, one half-open
// period of block heights [PeriodStart, PeriodEnd).
type VerificationKey struct {
	User        Principal `json:"user"`
	PeriodStart uint64    `json:"period_start"`
	PeriodEnd   uint64    `json:"period_end"`
}

// Verification is the immutable outcome of scoring one period.
// Written at most once per key; never updated or deleted.
type Verification struct {
	Score     uint64 `json:"score"`     // 0..100
	Status    bool   `json:"status"`    // score met the plan threshold
	Timestamp uint64 `json:"timestamp"` // block height at verification
}

// AggregateScore is the per-member running integer mean over every
// verification ever recorded. TotalPeriods never decreases.
type AggregateScore struct {
	TotalPeriods uint64 `json:"total_periods"`
	AverageScore uint64 `json:"average_score"`
}
