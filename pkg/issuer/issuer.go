// Package issuer implements the second pipeline stage: minting an
// expiring, revocable Proof from a passing Verification. Each verified
// period yields at most one proof, ids are allocated monotonically, and
// every successful mint charges the proof fee from the caller to the
// administrator.
package issuer

import (
	"fmt"
	"sync"

	"github.com/VitaClaim-Labs/vitaclaim/pkg/chain"
	"github.com/VitaClaim-Labs/vitaclaim/pkg/contracts"
	"github.com/VitaClaim-Labs/vitaclaim/pkg/treasury"
)

// Domain errors, carrying the issuer's stable 2xx codes.
var (
	ErrNotAuthorized         = contracts.NewCodedError(200, "not authorized")
	ErrInvalidVerification   = contracts.NewCodedError(202, "no verification for period")
	ErrProofAlreadyGenerated = contracts.NewCodedError(203, "proof already generated for period")
	ErrInvalidProofHash      = contracts.NewCodedError(204, "proof hash must be non-empty")
	ErrInsufficientScore     = contracts.NewCodedError(207, "verification failed or score below eligibility")
	ErrInvalidProofID        = contracts.NewCodedError(208, "invalid proof id")
	ErrInvalidExpiry         = contracts.NewCodedError(209, "expiry must be positive")
	ErrProofExpired          = contracts.NewCodedError(210, "proof expired")
	ErrMaxProofsExceeded     = contracts.NewCodedError(213, "proof capacity exceeded")
)

// VerificationSource exposes recorded verifications to the issuer.
// Satisfied by *verifier.Verifier.
type VerificationSource interface {
	GetVerification(user contracts.Principal, periodStart, periodEnd uint64) (*contracts.Verification, bool)
}

// Config is the issuer's initial configuration; admin-mutable afterward.
type Config struct {
	Admin       contracts.Principal
	MaxProofs   uint64
	ProofFee    uint64
	ProofExpiry uint64 // lifetime in blocks
}

// Issuer is the proof-minting stage. Operations are serialized behind
// one mutex; proof ids start at zero and increase by one per mint.
type Issuer struct {
	mu sync.Mutex

	admin       contracts.Principal
	maxProofs   uint64
	proofFee    uint64
	proofExpiry uint64

	nextProofID uint64
	proofs      map[uint64]contracts.Proof
	byPeriod    map[contracts.VerificationKey]uint64

	verifications VerificationSource
	treasury      treasury.Treasury
	clock         chain.HeightClock
}

// New creates an issuer over the given collaborators.
func New(cfg Config, verifications VerificationSource, tr treasury.Treasury, clock chain.HeightClock) *Issuer {
	return &Issuer{
		admin:         cfg.Admin,
		maxProofs:     cfg.MaxProofs,
		proofFee:      cfg.ProofFee,
		proofExpiry:   cfg.ProofExpiry,
		proofs:        make(map[uint64]contracts.Proof),
		byPeriod:      make(map[contracts.VerificationKey]uint64),
		verifications: verifications,
		treasury:      tr,
		clock:         clock,
	}
}

// SetAdmin hands administration to a new principal.
func (i *Issuer) SetAdmin(caller, newAdmin contracts.Principal) error {
	i.mu.Lock()
	defer i.mu.Unlock()
	if caller != i.admin {
		return ErrNotAuthorized
	}
	i.admin = newAdmin
	return nil
}

// SetMaxProofs sets the id-space ceiling. Must be positive.
func (i *Issuer) SetMaxProofs(caller contracts.Principal, n uint64) error {
	i.mu.Lock()
	defer i.mu.Unlock()
	if caller != i.admin {
		return ErrNotAuthorized
	}
	if n == 0 {
		return ErrInvalidProofID
	}
	i.maxProofs = n
	return nil
}

// SetProofFee sets the minting fee. The fee doubles as the score
// eligibility bound in GenerateProof; raising it does not invalidate
// proofs already issued.
func (i *Issuer) SetProofFee(caller contracts.Principal, fee uint64) error {
	i.mu.Lock()
	defer i.mu.Unlock()
	if caller != i.admin {
		return ErrNotAuthorized
	}
	i.proofFee = fee
	return nil
}

// SetProofExpiry sets the proof lifetime in blocks. Must be positive.
func (i *Issuer) SetProofExpiry(caller contracts.Principal, expiry uint64) error {
	i.mu.Lock()
	defer i.mu.Unlock()
	if caller != i.admin {
		return ErrNotAuthorized
	}
	if expiry == 0 {
		return ErrInvalidExpiry
	}
	i.proofExpiry = expiry
	return nil
}

// GenerateProof mints a proof for the caller's verified period, charges
// the proof fee, and returns the allocated proof id.
//
// Eligibility requires the verification to have passed AND its score to
// be at least the proof fee. Gating the score on the fee rather than a
// separate threshold is deliberate and preserved exactly.
func (i *Issuer) GenerateProof(caller contracts.Principal, periodStart, periodEnd, planID uint64, proofHash []byte) (uint64, error) {
	i.mu.Lock()
	defer i.mu.Unlock()

	key := contracts.VerificationKey{User: caller, PeriodStart: periodStart, PeriodEnd: periodEnd}
	if _, exists := i.byPeriod[key]; exists {
		return 0, ErrProofAlreadyGenerated
	}

	verif, ok := i.verifications.GetVerification(caller, periodStart, periodEnd)
	if !ok {
		return 0, ErrInvalidVerification
	}
	if !verif.Status || verif.Score < i.proofFee {
		return 0, ErrInsufficientScore
	}
	if len(proofHash) == 0 {
		return 0, ErrInvalidProofHash
	}
	if i.nextProofID >= i.maxProofs {
		return 0, ErrMaxProofsExceeded
	}

	if err := i.treasury.Transfer(i.proofFee, caller, i.admin); err != nil {
		return 0, fmt.Errorf("proof fee transfer: %w", err)
	}

	proofID := i.nextProofID
	now := i.clock.Height()
	i.proofs[proofID] = contracts.Proof{
		User:        caller,
		PeriodStart: periodStart,
		PeriodEnd:   periodEnd,
		Score:       verif.Score,
		ProofHash:   proofHash,
		IssuedAt:    now,
		Expiry:      now + i.proofExpiry,
		Status:      true,
		PlanID:      planID,
	}
	i.byPeriod[key] = proofID
	i.nextProofID++

	return proofID, nil
}

// VerifyProof returns the proof's revocation status. Expired proofs
// fail regardless of status.
func (i *Issuer) VerifyProof(proofID uint64) (bool, error) {
	i.mu.Lock()
	defer i.mu.Unlock()

	proof, ok := i.proofs[proofID]
	if !ok {
		return false, ErrInvalidProofID
	}
	if proof.Expiry <= i.clock.Height() {
		return false, ErrProofExpired
	}
	return proof.Status, nil
}

// RevokeProof sets the proof's status to false. Only the administrator
// or the proof's own user may revoke. Idempotent; revocation is
// terminal.
func (i *Issuer) RevokeProof(caller contracts.Principal, proofID uint64) error {
	i.mu.Lock()
	defer i.mu.Unlock()

	proof, ok := i.proofs[proofID]
	if !ok {
		return ErrInvalidProofID
	}
	if caller != i.admin && caller != proof.User {
		return ErrNotAuthorized
	}
	proof.Status = false
	i.proofs[proofID] = proof
	return nil
}

// GetProof returns the proof record for an id, if any.
func (i *Issuer) GetProof(proofID uint64) (*contracts.Proof, bool) {
	i.mu.Lock()
	defer i.mu.Unlock()
	proof, ok := i.proofs[proofID]
	if !ok {
		return nil, false
	}
	return &proof, true
}

// GetProofByUser returns the proof id minted for (user, period), if any.
func (i *Issuer) GetProofByUser(user contracts.Principal, periodStart, periodEnd uint64) (uint64, bool) {
	i.mu.Lock()
	defer i.mu.Unlock()
	id, ok := i.byPeriod[contracts.VerificationKey{User: user, PeriodStart: periodStart, PeriodEnd: periodEnd}]
	return id, ok
}

// Admin returns the current administrator.
func (i *Issuer) Admin() contracts.Principal {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.admin
}

// ProofFee returns the currently configured minting fee.
func (i *Issuer) ProofFee() uint64 {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.proofFee
}
