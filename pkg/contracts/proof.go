package contracts

// Proof is a time-bounded, revocable attestation that a member's period
// score met eligibility at issuance. Keyed by a monotonically increasing
// proof id, and secondarily by (user, period) so at most one proof exists
// per verified period.
type Proof struct {
	User        Principal `json:"user"`
	PeriodStart uint64    `json:"period_start"`
	PeriodEnd   uint64    `json:"period_end"`
	Score       uint64    `json:"score"`
	ProofHash   []byte    `json:"proof_hash"`
	IssuedAt    uint64    `json:"issued_at"` // block height
	Expiry      uint64    `json:"expiry"`    // block height; live while Expiry > now
	Status      bool      `json:"status"`    // false once revoked; revocation is terminal
	PlanID      uint64    `json:"plan_id"`
}

// Live reports whether the proof is unrevoked and unexpired at the
// given block height.
func (p Proof) Live(height uint64) bool {
	return p.Status && p.Expiry > height
}
