package claims_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/VitaClaim-Labs/vitaclaim/pkg/chain"
	"github.com/VitaClaim-Labs/vitaclaim/pkg/claims"
	"github.com/VitaClaim-Labs/vitaclaim/pkg/contracts"
	"github.com/VitaClaim-Labs/vitaclaim/pkg/registry"
	"github.com/VitaClaim-Labs/vitaclaim/pkg/treasury"
)

const (
	admin   contracts.Principal = "ST1ADMIN"
	user    contracts.Principal = "ST1USER"
	insurer contracts.Principal = "ST2INSURER"
)

// stubProofs is a canned ProofSource.
type stubProofs map[uint64]contracts.Proof

func (s stubProofs) GetProof(id uint64) (*contracts.Proof, bool) {
	p, ok := s[id]
	if !ok {
		return nil, false
	}
	return &p, true
}

type fixture struct {
	settler *claims.Settler
	proofs  stubProofs
	book    *treasury.Book
	clock   *chain.ManualClock
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		proofs: make(stubProofs),
		book:   treasury.NewBook(),
		clock:  chain.NewManualClock(1000),
	}
	f.book.Credit(user, 100_000)
	f.settler = claims.New(claims.Config{
		Admin:     admin,
		MaxClaims: 1000,
		ClaimFee:  100,
	}, registry.NewMemInsurers(), f.proofs, f.book, f.clock)
	return f
}

func (f *fixture) liveProof(id uint64) {
	f.proofs[id] = contracts.Proof{
		User:        user,
		PeriodStart: 100,
		PeriodEnd:   130,
		Score:       90,
		ProofHash:   []byte("hash"),
		IssuedAt:    1000,
		Expiry:      53_560,
		Status:      true,
		PlanID:      1,
	}
}

func TestRegisterInsurer(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.settler.RegisterInsurer(admin, insurer))
	assert.True(t, f.settler.IsInsurer(insurer))
}

func TestRegisterInsurerRejectsNonAdmin(t *testing.T) {
	f := newFixture(t)
	err := f.settler.RegisterInsurer(user, insurer)
	assert.ErrorIs(t, err, claims.ErrNotAuthorized)
	assert.False(t, f.settler.IsInsurer(insurer))
}

func TestSetAdmin(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.settler.SetAdmin(admin, "ST2NEWADMIN"))
	assert.Equal(t, contracts.Principal("ST2NEWADMIN"), f.settler.Admin())
}

func TestSetMaxClaims(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.settler.SetMaxClaims(admin, 500))
	assert.ErrorIs(t, f.settler.SetMaxClaims(admin, 0), claims.ErrInvalidClaimID)
	assert.ErrorIs(t, f.settler.SetMaxClaims(user, 5), claims.ErrNotAuthorized)
}

func TestSetClaimFee(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.settler.SetClaimFee(admin, 200))
	assert.ErrorIs(t, f.settler.SetClaimFee(user, 1), claims.ErrNotAuthorized)
}

func TestClaimFeeReflectsConfig(t *testing.T) {
	f := newFixture(t)
	assert.Equal(t, uint64(100), f.settler.ClaimFee())
	require.NoError(t, f.settler.SetClaimFee(admin, 250))
	assert.Equal(t, uint64(250), f.settler.ClaimFee())
}

func TestSubmitClaim(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.settler.RegisterInsurer(admin, insurer))
	f.liveProof(0)

	claimID, err := f.settler.SubmitClaim(user, 0, insurer, 1000)
	require.NoError(t, err)
	assert.Equal(t, uint64(0), claimID, "ids start at zero")

	claim, ok := f.settler.GetClaim(claimID)
	require.True(t, ok)
	assert.Equal(t, user, claim.User)
	assert.Equal(t, insurer, claim.Insurer)
	assert.Equal(t, uint64(1000), claim.DiscountAmount)
	assert.Equal(t, contracts.ClaimPending, claim.Status)
	assert.Equal(t, uint64(1000), claim.SubmittedAt)

	entries := f.book.Journal().Entries()
	require.Len(t, entries, 1)
	assert.Equal(t, treasury.Transfer{Amount: 100, From: user, To: admin}, entries[0].Transfer)

	id, ok := f.settler.GetClaimByUser(user, 0)
	require.True(t, ok)
	assert.Equal(t, claimID, id)
}

func TestSubmitClaimInsurerCheckPrecedesProofLookup(t *testing.T) {
	f := newFixture(t)
	// Proof exists, but the insurer is unregistered: the insurer check
	// must fire first.
	f.liveProof(0)

	_, err := f.settler.SubmitClaim(user, 0, insurer, 1000)
	assert.ErrorIs(t, err, claims.ErrInsurerNotRegistered)

	// Same result when the proof is also missing.
	_, err = f.settler.SubmitClaim(user, 42, insurer, 1000)
	assert.ErrorIs(t, err, claims.ErrInsurerNotRegistered)
}

func TestSubmitClaimZeroAmount(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.settler.RegisterInsurer(admin, insurer))
	f.liveProof(0)

	_, err := f.settler.SubmitClaim(user, 0, insurer, 0)
	assert.ErrorIs(t, err, claims.ErrInvalidAmount)
}

func TestSubmitClaimUnknownProof(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.settler.RegisterInsurer(admin, insurer))

	_, err := f.settler.SubmitClaim(user, 0, insurer, 1000)
	assert.ErrorIs(t, err, claims.ErrInvalidProof)
}

func TestSubmitClaimForeignProof(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.settler.RegisterInsurer(admin, insurer))
	f.liveProof(0)

	_, err := f.settler.SubmitClaim("ST3OTHER", 0, insurer, 1000)
	assert.ErrorIs(t, err, claims.ErrInvalidUser)
}

func TestSubmitClaimRevokedProof(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.settler.RegisterInsurer(admin, insurer))
	f.liveProof(0)
	p := f.proofs[0]
	p.Status = false
	f.proofs[0] = p

	_, err := f.settler.SubmitClaim(user, 0, insurer, 1000)
	assert.ErrorIs(t, err, claims.ErrProofInvalidated)
}

func TestSubmitClaimExpiredButUnrevokedProofIsAccepted(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.settler.RegisterInsurer(admin, insurer))
	f.liveProof(0)

	// Walk past expiry: submission only gates on revocation status.
	f.clock.Advance(100_000)

	_, err := f.settler.SubmitClaim(user, 0, insurer, 1000)
	require.NoError(t, err)
}

func TestSubmitClaimDuplicate(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.settler.RegisterInsurer(admin, insurer))
	f.liveProof(0)

	_, err := f.settler.SubmitClaim(user, 0, insurer, 1000)
	require.NoError(t, err)

	_, err = f.settler.SubmitClaim(user, 0, insurer, 1000)
	assert.ErrorIs(t, err, claims.ErrClaimAlreadySubmitted)
}

func TestSubmitClaimCapacity(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.settler.SetMaxClaims(admin, 1))
	require.NoError(t, f.settler.RegisterInsurer(admin, insurer))
	f.liveProof(0)
	f.liveProof(1)

	_, err := f.settler.SubmitClaim(user, 0, insurer, 1000)
	require.NoError(t, err)

	_, err = f.settler.SubmitClaim(user, 1, insurer, 1000)
	assert.ErrorIs(t, err, claims.ErrMaxClaimsExceeded)
}

func TestApproveClaim(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.settler.RegisterInsurer(admin, insurer))
	f.liveProof(0)
	claimID, err := f.settler.SubmitClaim(user, 0, insurer, 1000)
	require.NoError(t, err)

	require.NoError(t, f.settler.ApproveClaim(insurer, claimID))

	claim, ok := f.settler.GetClaim(claimID)
	require.True(t, ok)
	assert.Equal(t, contracts.ClaimApproved, claim.Status)
}

func TestRejectClaim(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.settler.RegisterInsurer(admin, insurer))
	f.liveProof(0)
	claimID, err := f.settler.SubmitClaim(user, 0, insurer, 1000)
	require.NoError(t, err)

	require.NoError(t, f.settler.RejectClaim(insurer, claimID))

	claim, ok := f.settler.GetClaim(claimID)
	require.True(t, ok)
	assert.Equal(t, contracts.ClaimRejected, claim.Status)
}

func TestSettleRejectsNonInsurer(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.settler.RegisterInsurer(admin, insurer))
	f.liveProof(0)
	claimID, err := f.settler.SubmitClaim(user, 0, insurer, 1000)
	require.NoError(t, err)

	assert.ErrorIs(t, f.settler.ApproveClaim("ST3FAKE", claimID), claims.ErrNotAuthorized)
	assert.ErrorIs(t, f.settler.RejectClaim("ST3FAKE", claimID), claims.ErrNotAuthorized)
}

func TestSettleRejectsWrongInsurer(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.settler.RegisterInsurer(admin, insurer))
	require.NoError(t, f.settler.RegisterInsurer(admin, "ST4OTHERINS"))
	f.liveProof(0)
	claimID, err := f.settler.SubmitClaim(user, 0, insurer, 1000)
	require.NoError(t, err)

	// Registered, but not the insurer named on the claim.
	assert.ErrorIs(t, f.settler.ApproveClaim("ST4OTHERINS", claimID), claims.ErrNotAuthorized)
}

func TestSettleUnknownClaim(t *testing.T) {
	f := newFixture(t)
	assert.ErrorIs(t, f.settler.ApproveClaim(insurer, 42), claims.ErrClaimNotFound)
	assert.ErrorIs(t, f.settler.RejectClaim(insurer, 42), claims.ErrClaimNotFound)
}

func TestSettleTerminalStatus(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.settler.RegisterInsurer(admin, insurer))
	f.liveProof(0)
	claimID, err := f.settler.SubmitClaim(user, 0, insurer, 1000)
	require.NoError(t, err)

	require.NoError(t, f.settler.ApproveClaim(insurer, claimID))

	assert.ErrorIs(t, f.settler.ApproveClaim(insurer, claimID), claims.ErrInvalidStatus)
	assert.ErrorIs(t, f.settler.RejectClaim(insurer, claimID), claims.ErrInvalidStatus)
}

func TestSubmitClaimFailedFeeLeavesNoState(t *testing.T) {
	f := newFixture(t)
	insurers := registry.NewMemInsurers()
	broke := claims.New(claims.Config{
		Admin:     admin,
		MaxClaims: 1000,
		ClaimFee:  100,
	}, insurers, f.proofs, treasury.NewBook(), f.clock)
	require.NoError(t, broke.RegisterInsurer(admin, insurer))
	f.liveProof(0)

	_, err := broke.SubmitClaim(user, 0, insurer, 1000)
	require.Error(t, err)
	assert.ErrorIs(t, err, treasury.ErrInsufficientFunds)

	_, ok := broke.GetClaim(0)
	assert.False(t, ok, "failed call must not store a claim")
	_, ok = broke.GetClaimByUser(user, 0)
	assert.False(t, ok, "failed call must not index a claim")
}
