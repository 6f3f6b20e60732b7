// Package claims implements the third pipeline stage: opening a
// discount claim against a registered insurer from a live proof, and the
// two-party settlement machine that resolves it. At most one claim
// exists per (user, proof); claim ids are allocated monotonically; every
// successful submission charges the claim fee from the caller to the
// administrator. Settlement itself moves no value.
package claims

import (
	"fmt"
	"sync"

	"github.com/VitaClaim-Labs/vitaclaim/pkg/chain"
	"github.com/VitaClaim-Labs/vitaclaim/pkg/contracts"
	"github.com/VitaClaim-Labs/vitaclaim/pkg/registry"
	"github.com/VitaClaim-Labs/vitaclaim/pkg/treasury"
)

// Domain errors, carrying the settler's stable 3xx codes.
var (
	ErrNotAuthorized         = contracts.NewCodedError(300, "not authorized")
	ErrInvalidProof          = contracts.NewCodedError(301, "no such proof")
	ErrClaimAlreadySubmitted = contracts.NewCodedError(303, "claim already submitted for proof")
	ErrInvalidClaimID        = contracts.NewCodedError(304, "invalid claim id")
	ErrInvalidStatus         = contracts.NewCodedError(307, "claim is not pending")
	ErrInvalidAmount         = contracts.NewCodedError(308, "discount amount must be positive")
	ErrInvalidUser           = contracts.NewCodedError(309, "proof belongs to another user")
	ErrMaxClaimsExceeded     = contracts.NewCodedError(312, "claim capacity exceeded")
	ErrInsurerNotRegistered  = contracts.NewCodedError(314, "insurer not registered")
	ErrClaimNotFound         = contracts.NewCodedError(315, "claim not found")
	ErrProofInvalidated      = contracts.NewCodedError(319, "proof revoked")
)

// ProofSource exposes minted proofs to the settler.
// Satisfied by *issuer.Issuer.
type ProofSource interface {
	GetProof(proofID uint64) (*contracts.Proof, bool)
}

// Config is the settler's initial configuration; admin-mutable afterward.
type Config struct {
	Admin     contracts.Principal
	MaxClaims uint64
	ClaimFee  uint64
}

// claimIndexKey enforces at-most-one claim per (user, proof).
type claimIndexKey struct {
	user    contracts.Principal
	proofID uint64
}

// Settler is the claim-settlement stage.
type Settler struct {
	mu sync.Mutex

	admin     contracts.Principal
	maxClaims uint64
	claimFee  uint64

	nextClaimID uint64
	claims      map[uint64]contracts.Claim
	byProof     map[claimIndexKey]uint64

	insurers registry.InsurerDirectory
	proofs   ProofSource
	treasury treasury.Treasury
	clock    chain.HeightClock
}

// New creates a settler over the given collaborators.
func New(cfg Config, insurers registry.InsurerDirectory, proofs ProofSource, tr treasury.Treasury, clock chain.HeightClock) *Settler {
	return &Settler{
		admin:     cfg.Admin,
		maxClaims: cfg.MaxClaims,
		claimFee:  cfg.ClaimFee,
		claims:    make(map[uint64]contracts.Claim),
		byProof:   make(map[claimIndexKey]uint64),
		insurers:  insurers,
		proofs:    proofs,
		treasury:  tr,
		clock:     clock,
	}
}

// SetAdmin hands administration to a new principal.
func (s *Settler) SetAdmin(caller, newAdmin contracts.Principal) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if caller != s.admin {
		return ErrNotAuthorized
	}
	s.admin = newAdmin
	return nil
}

// SetMaxClaims sets the id-space ceiling. Must be positive.
func (s *Settler) SetMaxClaims(caller contracts.Principal, n uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if caller != s.admin {
		return ErrNotAuthorized
	}
	if n == 0 {
		return ErrInvalidClaimID
	}
	s.maxClaims = n
	return nil
}

// SetClaimFee sets the submission fee. Zero is allowed.
func (s *Settler) SetClaimFee(caller contracts.Principal, fee uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if caller != s.admin {
		return ErrNotAuthorized
	}
	s.claimFee = fee
	return nil
}

// RegisterInsurer admits an insurer to the directory. Admin only;
// registration has no removal.
func (s *Settler) RegisterInsurer(caller, insurer contracts.Principal) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if caller != s.admin {
		return ErrNotAuthorized
	}
	s.insurers.Register(insurer)
	return nil
}

// IsInsurer reports whether the principal is a registered insurer.
func (s *Settler) IsInsurer(p contracts.Principal) bool {
	return s.insurers.IsRegistered(p)
}

// SubmitClaim opens a pending claim for the caller's proof against a
// registered insurer, charges the claim fee, and returns the claim id.
//
// The insurer check runs before any proof lookup; that ordering is part
// of the contract. Proof expiry is NOT re-checked here — only revocation
// status gates submission.
func (s *Settler) SubmitClaim(caller contracts.Principal, proofID uint64, insurer contracts.Principal, discountAmount uint64) (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.insurers.IsRegistered(insurer) {
		return 0, ErrInsurerNotRegistered
	}
	if discountAmount == 0 {
		return 0, ErrInvalidAmount
	}

	proof, ok := s.proofs.GetProof(proofID)
	if !ok {
		return 0, ErrInvalidProof
	}
	if proof.User != caller {
		return 0, ErrInvalidUser
	}
	if !proof.Status {
		return 0, ErrProofInvalidated
	}

	key := claimIndexKey{user: caller, proofID: proofID}
	if _, exists := s.byProof[key]; exists {
		return 0, ErrClaimAlreadySubmitted
	}
	if s.nextClaimID >= s.maxClaims {
		return 0, ErrMaxClaimsExceeded
	}

	if err := s.treasury.Transfer(s.claimFee, caller, s.admin); err != nil {
		return 0, fmt.Errorf("claim fee transfer: %w", err)
	}

	claimID := s.nextClaimID
	s.claims[claimID] = contracts.Claim{
		User:           caller,
		ProofID:        proofID,
		Insurer:        insurer,
		DiscountAmount: discountAmount,
		Status:         contracts.ClaimPending,
		SubmittedAt:    s.clock.Height(),
	}
	s.byProof[key] = claimID
	s.nextClaimID++

	return claimID, nil
}

// ApproveClaim resolves a pending claim to approved. Caller must be the
// claim's named insurer and still registered.
func (s *Settler) ApproveClaim(caller contracts.Principal, claimID uint64) error {
	return s.settle(caller, claimID, contracts.ClaimApproved)
}

// RejectClaim resolves a pending claim to rejected, under the same
// authorization rules as ApproveClaim.
func (s *Settler) RejectClaim(caller contracts.Principal, claimID uint64) error {
	return s.settle(caller, claimID, contracts.ClaimRejected)
}

func (s *Settler) settle(caller contracts.Principal, claimID uint64, target contracts.ClaimStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	claim, ok := s.claims[claimID]
	if !ok {
		return ErrClaimNotFound
	}
	if !s.insurers.IsRegistered(caller) || caller != claim.Insurer {
		return ErrNotAuthorized
	}
	if claim.Status != contracts.ClaimPending {
		return ErrInvalidStatus
	}

	claim.Status = target
	s.claims[claimID] = claim
	return nil
}

// GetClaim returns the claim record for an id, if any.
func (s *Settler) GetClaim(claimID uint64) (*contracts.Claim, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	claim, ok := s.claims[claimID]
	if !ok {
		return nil, false
	}
	return &claim, true
}

// GetClaimByUser returns the claim id opened for (user, proof), if any.
func (s *Settler) GetClaimByUser(user contracts.Principal, proofID uint64) (uint64, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.byProof[claimIndexKey{user: user, proofID: proofID}]
	return id, ok
}

// Admin returns the current administrator.
func (s *Settler) Admin() contracts.Principal {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.admin
}

// ClaimFee returns the currently configured submission fee.
func (s *Settler) ClaimFee() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.claimFee
}
