package contracts

// ClaimStatus is the settlement state of a discount claim.
type ClaimStatus string

const (
	ClaimPending  ClaimStatus = "PENDING"
	ClaimApproved ClaimStatus = "APPROVED"
	ClaimRejected ClaimStatus = "REJECTED"
)

// Terminal reports whether the status permits no further transition.
func (s ClaimStatus) Terminal() bool {
	return s == ClaimApproved || s == ClaimRejected
}

// Claim is an insurer-facing discount request referencing exactly one
// proof. Keyed by a monotonically increasing claim id, and secondarily by
// (user, proof id) so at most one claim exists per proof per member.
// Status leaves PENDING at most once.
type Claim struct {
	User           Principal   `json:"user"`
	ProofID        uint64      `json:"proof_id"`
	Insurer        Principal   `json:"insurer"`
	DiscountAmount uint64      `json:"discount_amount"`
	Status         ClaimStatus `json:"status"`
	SubmittedAt    uint64      `json:"submitted_at"` // block height
}
